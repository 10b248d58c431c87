// Package notifier 提供站内收件箱通知渠道的实现
package notifier

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"proxywatch/pkg/models"
)

// OwnerStore 站内通知的写入接口
type OwnerStore interface {
	// CreateOwnerNotification 向站长收件箱写入一条通知，返回通知ID
	CreateOwnerNotification(ctx context.Context, title, content string) (uint, error)
}

// OwnerChannel 站内收件箱通知渠道
// 不发起网络调用，直接写入站长收件箱表
type OwnerChannel struct {
	store  OwnerStore
	logger *zap.Logger
}

// NewOwnerChannel 创建站内收件箱通知渠道
func NewOwnerChannel(store OwnerStore, logger *zap.Logger) *OwnerChannel {
	return &OwnerChannel{store: store, logger: logger}
}

// Send 写入站内通知
func (c *OwnerChannel) Send(ctx context.Context, notification *Notification) *models.NotificationResult {
	result := &models.NotificationResult{Provider: models.ProviderOwner}

	id, err := c.store.CreateOwnerNotification(ctx, notification.Title, notification.Content)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.MessageID = fmt.Sprintf("%d", id)
	c.logger.Info("站内通知已写入",
		zap.String("notification_id", notification.ID),
		zap.Uint("inbox_id", id))
	return result
}

// Provider 返回渠道类型
func (c *OwnerChannel) Provider() models.NotificationProvider {
	return models.ProviderOwner
}
