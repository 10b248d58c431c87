package alerting

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"proxywatch/pkg/common"
	"proxywatch/pkg/models"
)

// Acknowledge 确认一条处于triggered状态的告警
// 状态机：只有triggered可以进入acknowledged
func (e *Engine) Acknowledge(ctx context.Context, alertID uint, userID uint) (*models.Alert, error) {
	alert, err := e.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	if alert.Status != models.AlertStatusTriggered {
		return nil, common.NewConflictError(fmt.Sprintf("告警状态为%s，无法确认", alert.Status), nil)
	}

	now := e.now()
	alert.Status = models.AlertStatusAcknowledged
	alert.AcknowledgedByID = &userID
	alert.AcknowledgedAt = &now

	if err := e.store.UpdateAlertStatus(ctx, alert); err != nil {
		return nil, err
	}

	e.logger.Info("告警已确认",
		zap.Uint("alert_id", alertID),
		zap.Uint("user_id", userID))
	return alert, nil
}

// Resolve 解决一条告警
// triggered与acknowledged均可直接进入resolved；resolved为终态，不允许再变更
func (e *Engine) Resolve(ctx context.Context, alertID uint) (*models.Alert, error) {
	alert, err := e.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	if alert.Status == models.AlertStatusResolved {
		return nil, common.NewConflictError("告警已解决，不允许重复操作", nil)
	}

	now := e.now()
	alert.Status = models.AlertStatusResolved
	alert.ResolvedAt = &now

	if err := e.store.UpdateAlertStatus(ctx, alert); err != nil {
		return nil, err
	}

	e.logger.Info("告警已解决", zap.Uint("alert_id", alertID))
	return alert, nil
}
