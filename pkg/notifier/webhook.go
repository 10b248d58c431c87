// Package notifier 提供通用Webhook通知渠道的实现
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

// WebhookChannel 通用Webhook通知渠道
// 把完整的告警上下文以JSON形式POST给订阅方
type WebhookChannel struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhookChannel 创建通用Webhook通知渠道
func NewWebhookChannel(url string, logger *zap.Logger) *WebhookChannel {
	return &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Send 向订阅地址POST告警上下文
func (c *WebhookChannel) Send(ctx context.Context, notification *Notification) *models.NotificationResult {
	result := &models.NotificationResult{Provider: models.ProviderWebhook}

	body, err := json.Marshal(notification)
	if err != nil {
		result.Error = fmt.Sprintf("序列化请求体失败: %s", err.Error())
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		result.Error = fmt.Sprintf("创建HTTP请求失败: %s", err.Error())
		return result
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ProxyWatch-Notifier/1.0")

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
	result.MessageID = notification.ID
	c.logger.Info("Webhook通知发送成功",
		zap.String("notification_id", notification.ID),
		zap.String("url", c.url),
		zap.Int("status_code", resp.StatusCode))
	return result
}

// Provider 返回渠道类型
func (c *WebhookChannel) Provider() models.NotificationProvider {
	return models.ProviderWebhook
}
