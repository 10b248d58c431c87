// Package notifier 提供Slack Webhook通知渠道的实现
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"proxywatch/pkg/models"
)

// SlackChannel Slack Webhook通知渠道
// 以attachment形式投递到预共享的Webhook地址
type SlackChannel struct {
	config SlackChannelConfig
	client *http.Client
	logger *zap.Logger
}

// NewSlackChannel 创建Slack通知渠道
func NewSlackChannel(config SlackChannelConfig, logger *zap.Logger) *SlackChannel {
	return &SlackChannel{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// slackField attachment中的一个字段
type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// slackAttachment Slack消息附件
type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text"`
	Fields []slackField `json:"fields"`
	Ts     int64        `json:"ts"`
}

// slackPayload Webhook请求体
type slackPayload struct {
	Attachments []slackAttachment `json:"attachments"`
}

// Send 向Slack Webhook投递通知
func (c *SlackChannel) Send(ctx context.Context, notification *Notification) *models.NotificationResult {
	result := &models.NotificationResult{Provider: models.ProviderSlack}

	payload := slackPayload{
		Attachments: []slackAttachment{{
			Color: colorForLevel(notification.Level),
			Title: notification.Title,
			Text:  notification.Content,
			Fields: []slackField{
				{Title: "服务", Value: notification.ServiceName, Short: true},
				{Title: "指标", Value: notification.MetricType, Short: true},
				{Title: "当前值", Value: fmt.Sprintf("%.2f", notification.CurrentValue), Short: true},
				{Title: "阈值", Value: fmt.Sprintf("%.2f", notification.ThresholdValue), Short: true},
			},
			Ts: notification.CreatedAt.Unix(),
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		result.Error = fmt.Sprintf("序列化请求体失败: %s", err.Error())
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		result.Error = fmt.Sprintf("创建HTTP请求失败: %s", err.Error())
		return result
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("发送HTTP请求失败: %s", err.Error())
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Error = fmt.Sprintf("HTTP响应状态异常: %d", resp.StatusCode)
		return result
	}

	result.Success = true
	c.logger.Info("Slack通知发送成功",
		zap.String("notification_id", notification.ID),
		zap.Int("status_code", resp.StatusCode))
	return result
}

// Provider 返回渠道类型
func (c *SlackChannel) Provider() models.NotificationProvider {
	return models.ProviderSlack
}

// colorForLevel 按级别选择attachment颜色
func colorForLevel(level NotificationLevel) string {
	switch level {
	case NotificationLevelCritical:
		return "#dc3545"
	case NotificationLevelWarning:
		return "#ffc107"
	default:
		return "#17a2b8"
	}
}
