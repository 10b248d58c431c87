package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"proxywatch/pkg/common"
	"proxywatch/pkg/models"
)

// ListThresholds 查询所有告警规则
func (s *Storage) ListThresholds(ctx context.Context) ([]*models.AlertThreshold, error) {
	var thresholds []*models.AlertThreshold
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&thresholds).Error; err != nil {
		return nil, fmt.Errorf("查询告警规则失败: %w", err)
	}
	return thresholds, nil
}

// ListEnabledThresholds 查询所有启用的告警规则
func (s *Storage) ListEnabledThresholds(ctx context.Context) ([]*models.AlertThreshold, error) {
	var thresholds []*models.AlertThreshold
	if err := s.db.WithContext(ctx).Where("is_enabled = ?", true).Find(&thresholds).Error; err != nil {
		return nil, fmt.Errorf("查询启用的告警规则失败: %w", err)
	}
	return thresholds, nil
}

// GetThreshold 查询指定ID的告警规则
func (s *Storage) GetThreshold(ctx context.Context, id uint) (*models.AlertThreshold, error) {
	var threshold models.AlertThreshold
	err := s.db.WithContext(ctx).First(&threshold, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, common.NewNotFoundError(fmt.Sprintf("告警规则不存在: %d", id), err)
		}
		return nil, fmt.Errorf("查询告警规则失败: %w", err)
	}
	return &threshold, nil
}

// CreateThreshold 创建告警规则
func (s *Storage) CreateThreshold(ctx context.Context, threshold *models.AlertThreshold) error {
	if err := s.db.WithContext(ctx).Create(threshold).Error; err != nil {
		return fmt.Errorf("创建告警规则失败: %w", err)
	}
	return nil
}

// UpdateThreshold 更新告警规则
// 不会覆盖LastTriggeredAt，该字段仅由触发路径维护
func (s *Storage) UpdateThreshold(ctx context.Context, threshold *models.AlertThreshold) error {
	result := s.db.WithContext(ctx).Model(&models.AlertThreshold{}).
		Where("id = ?", threshold.ID).
		Select("name", "service_name", "metric_type", "operator", "threshold_value",
			"window_minutes", "is_enabled", "notify_email", "notify_webhook",
			"webhook_url", "cooldown_minutes").
		Updates(threshold)
	if result.Error != nil {
		return fmt.Errorf("更新告警规则失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return common.NewNotFoundError(fmt.Sprintf("告警规则不存在: %d", threshold.ID), nil)
	}
	return nil
}

// DeleteThreshold 删除告警规则，已产生的历史告警保留
func (s *Storage) DeleteThreshold(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.AlertThreshold{}, id)
	if result.Error != nil {
		return fmt.Errorf("删除告警规则失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return common.NewNotFoundError(fmt.Sprintf("告警规则不存在: %d", id), nil)
	}
	return nil
}

// ToggleThreshold 切换告警规则的启用状态
func (s *Storage) ToggleThreshold(ctx context.Context, id uint) (*models.AlertThreshold, error) {
	threshold, err := s.GetThreshold(ctx, id)
	if err != nil {
		return nil, err
	}

	threshold.IsEnabled = !threshold.IsEnabled
	err = s.db.WithContext(ctx).Model(&models.AlertThreshold{}).
		Where("id = ?", id).
		Update("is_enabled", threshold.IsEnabled).Error
	if err != nil {
		return nil, fmt.Errorf("切换告警规则状态失败: %w", err)
	}
	return threshold, nil
}

// MarkThresholdTriggered 条件更新规则的上次触发时间
// WHERE子句校验旧值，多个采集实例并发触发时只有一个能成功，
// 返回false表示本实例竞争失败，应放弃创建告警
func (s *Storage) MarkThresholdTriggered(ctx context.Context, threshold *models.AlertThreshold, triggeredAt time.Time) (bool, error) {
	db := s.db.WithContext(ctx).Model(&models.AlertThreshold{}).
		Where("id = ?", threshold.ID)
	if threshold.LastTriggeredAt == nil {
		db = db.Where("last_triggered_at IS NULL")
	} else {
		db = db.Where("last_triggered_at = ?", *threshold.LastTriggeredAt)
	}

	result := db.Update("last_triggered_at", triggeredAt)
	if result.Error != nil {
		return false, fmt.Errorf("更新规则触发时间失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	threshold.LastTriggeredAt = &triggeredAt
	return true, nil
}
