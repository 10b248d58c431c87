// Package notifier 提供通知分发管理功能
package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"proxywatch/pkg/models"
	"proxywatch/pkg/storage"
)

// 单渠道发送的默认超时时间
const defaultSendTimeout = 15 * time.Second

// Manager 通知分发管理器
// 按告警规则与渠道配置决定目标渠道，并发发送并记录每次尝试
type Manager struct {
	config      ChannelsConfig
	store       *storage.Storage
	logger      *zap.Logger
	sendTimeout time.Duration
}

// NewManager 创建通知分发管理器
func NewManager(config ChannelsConfig, store *storage.Storage, logger *zap.Logger) *Manager {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Manager{
		config:      config,
		store:       store,
		logger:      logger,
		sendTimeout: defaultSendTimeout,
	}
}

// Dispatch 将告警分发到所有启用的渠道
// 各渠道并发发送、互不影响，全部完成后统一落通知日志；
// 渠道失败只体现在结果中，绝不向调度方抛错
func (m *Manager) Dispatch(ctx context.Context, alert *models.Alert, threshold *models.AlertThreshold) []models.NotificationResult {
	notification := m.buildNotification(alert)
	channels := m.channelsFor(threshold)
	if len(channels) == 0 {
		m.logger.Debug("没有启用的通知渠道", zap.Uint("alert_id", alert.ID))
		return nil
	}

	results := make([]models.NotificationResult, len(channels))
	var wg sync.WaitGroup
	for i, channel := range channels {
		wg.Add(1)
		go func(i int, channel Channel) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, m.sendTimeout)
			defer cancel()
			results[i] = *channel.Send(sendCtx, notification)
		}(i, channel)
	}
	wg.Wait()

	for _, result := range results {
		m.recordResult(ctx, alert.ID, result)
	}
	return results
}

// buildNotification 把告警转换为一条通知消息
func (m *Manager) buildNotification(alert *models.Alert) *Notification {
	return &Notification{
		ID:             uuid.New().String(),
		Title:          "代理服务告警: " + alert.ServiceName,
		Content:        alert.Message,
		Level:          levelForMetric(alert.MetricType),
		ServiceName:    alert.ServiceName,
		MetricType:     string(alert.MetricType),
		CurrentValue:   alert.CurrentValue,
		ThresholdValue: alert.ThresholdValue,
		CreatedAt:      alert.CreatedAt,
	}
}

// channelsFor 按渠道配置与规则开关决定目标渠道
func (m *Manager) channelsFor(threshold *models.AlertThreshold) []Channel {
	channels := make([]Channel, 0, 4)

	if m.config.Owner.Enabled && threshold.NotifyEmail {
		channels = append(channels, NewOwnerChannel(m.store, m.logger))
	}
	if m.config.Telegram.Enabled() {
		channels = append(channels, NewTelegramChannel(m.config.Telegram, m.logger))
	}
	if m.config.Slack.Enabled() {
		channels = append(channels, NewSlackChannel(m.config.Slack, m.logger))
	}
	if threshold.NotifyWebhook {
		// 规则专属地址优先，否则回退全局订阅地址
		url := threshold.WebhookURL
		if url == "" {
			url = m.config.Webhook.URL
		}
		if url != "" {
			channels = append(channels, NewWebhookChannel(url, m.logger))
		}
	}

	return channels
}

// recordResult 记录一次发送结果：写通知日志并打审计日志
func (m *Manager) recordResult(ctx context.Context, alertID uint, result models.NotificationResult) {
	log := &models.NotificationLog{
		AlertID:   alertID,
		Provider:  result.Provider,
		Success:   result.Success,
		Error:     result.Error,
		MessageID: result.MessageID,
		CreatedAt: time.Now(),
	}
	if err := m.store.CreateNotificationLog(ctx, log); err != nil {
		m.logger.Error("写入通知日志失败",
			zap.Uint("alert_id", alertID),
			zap.String("provider", string(result.Provider)),
			zap.Error(err))
	}

	if result.Success {
		m.logger.Info("通知发送成功",
			zap.Uint("alert_id", alertID),
			zap.String("provider", string(result.Provider)),
			zap.String("message_id", result.MessageID))
	} else {
		m.logger.Warn("通知发送失败",
			zap.Uint("alert_id", alertID),
			zap.String("provider", string(result.Provider)),
			zap.String("error", result.Error))
	}
}

// levelForMetric 按指标类型推导通知级别
func levelForMetric(metricType models.MetricType) NotificationLevel {
	switch metricType {
	case models.MetricErrors5xxRate, models.MetricErrorTotalRate:
		return NotificationLevelCritical
	default:
		return NotificationLevelWarning
	}
}
