// Package notifier 提供Telegram机器人通知渠道的实现
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"proxywatch/pkg/models"
)

// Telegram官方Bot API地址
const defaultTelegramAPIBase = "https://api.telegram.org"

// 响应体读取上限，防止异常响应撑爆内存
const maxResponseBytes = 4096

// TelegramChannel Telegram机器人通知渠道
type TelegramChannel struct {
	config TelegramChannelConfig
	client *http.Client
	logger *zap.Logger
}

// NewTelegramChannel 创建Telegram通知渠道
func NewTelegramChannel(config TelegramChannelConfig, logger *zap.Logger) *TelegramChannel {
	if config.ParseMode == "" {
		config.ParseMode = "HTML"
	}
	if config.APIBase == "" {
		config.APIBase = defaultTelegramAPIBase
	}

	return &TelegramChannel{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Send 调用Bot API的sendMessage发送通知
func (c *TelegramChannel) Send(ctx context.Context, notification *Notification) *models.NotificationResult {
	result := &models.NotificationResult{Provider: models.ProviderTelegram}

	payload := map[string]interface{}{
		"chat_id":    c.config.ChatID,
		"text":       c.formatText(notification),
		"parse_mode": c.config.ParseMode,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		result.Error = fmt.Sprintf("序列化请求体失败: %s", err.Error())
		return result
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.config.APIBase, c.config.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
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

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	// Bot API以{"ok":true,"result":{"message_id":...}}报告结果，
	// 失败时ok为false并携带description
	if !gjson.GetBytes(respBody, "ok").Bool() {
		description := gjson.GetBytes(respBody, "description").String()
		if description == "" {
			description = fmt.Sprintf("HTTP状态码 %d", resp.StatusCode)
		}
		result.Error = fmt.Sprintf("Bot API返回失败: %s", description)
		return result
	}

	result.Success = true
	result.MessageID = gjson.GetBytes(respBody, "result.message_id").String()
	c.logger.Info("Telegram通知发送成功",
		zap.String("notification_id", notification.ID),
		zap.String("message_id", result.MessageID))
	return result
}

// Provider 返回渠道类型
func (c *TelegramChannel) Provider() models.NotificationProvider {
	return models.ProviderTelegram
}

// formatText 渲染Telegram消息文本，按级别选择图标
func (c *TelegramChannel) formatText(n *Notification) string {
	icon := "⚠️"
	if n.Level == NotificationLevelCritical {
		icon = "🚨"
	}

	return fmt.Sprintf("%s <b>%s</b>\n\n%s\n\n服务: %s\n当前值: %.2f\n阈值: %.2f\n时间: %s",
		icon, n.Title, n.Content,
		n.ServiceName, n.CurrentValue, n.ThresholdValue,
		n.CreatedAt.Format("2006-01-02 15:04:05"))
}
