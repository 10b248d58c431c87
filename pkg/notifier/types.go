// Package notifier 提供告警通知的多渠道分发
package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"proxywatch/pkg/models"
)

// NotificationLevel 表示通知级别
type NotificationLevel string

const (
	// NotificationLevelInfo 信息级别
	NotificationLevelInfo NotificationLevel = "info"
	// NotificationLevelWarning 警告级别
	NotificationLevelWarning NotificationLevel = "warning"
	// NotificationLevelCritical 严重级别
	NotificationLevelCritical NotificationLevel = "critical"
)

// Notification 表示一条待分发的通知消息
type Notification struct {
	// 消息ID
	ID string `json:"id"`
	// 消息标题
	Title string `json:"title"`
	// 人类可读的消息内容
	Content string `json:"content"`
	// 消息级别
	Level NotificationLevel `json:"level"`
	// 触发告警的服务名称
	ServiceName string `json:"service_name"`
	// 指标类型
	MetricType string `json:"metric_type"`
	// 触发时的指标值
	CurrentValue float64 `json:"current_value"`
	// 触发时的阈值
	ThresholdValue float64 `json:"threshold_value"`
	// 创建时间
	CreatedAt time.Time `json:"created_at"`
}

// Channel 通知渠道接口
// Send只通过结果对象报告失败，渠道故障绝不作为错误向上传播
type Channel interface {
	// Send 发送通知并返回发送结果
	Send(ctx context.Context, notification *Notification) *models.NotificationResult
	// Provider 返回渠道类型
	Provider() models.NotificationProvider
}

// OwnerChannelConfig 站内收件箱渠道配置
type OwnerChannelConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// TelegramChannelConfig Telegram机器人渠道配置
type TelegramChannelConfig struct {
	// 机器人Token
	BotToken string `yaml:"bot-token" json:"bot_token"`
	// 目标会话ID
	ChatID string `yaml:"chat-id" json:"chat_id"`
	// 消息解析模式，默认HTML
	ParseMode string `yaml:"parse-mode" json:"parse_mode,omitempty"`
	// API地址，默认官方地址，可指向私有代理
	APIBase string `yaml:"api-base" json:"api_base,omitempty"`
}

// Enabled 判断Telegram渠道是否配置完整
func (c TelegramChannelConfig) Enabled() bool {
	return c.BotToken != "" && c.ChatID != ""
}

// Validate 校验Telegram渠道配置
func (c TelegramChannelConfig) Validate() error {
	if c.BotToken == "" && c.ChatID == "" {
		return nil
	}
	if c.BotToken == "" || c.ChatID == "" {
		return fmt.Errorf("telegram渠道的bot-token与chat-id必须同时配置")
	}
	return nil
}

// SlackChannelConfig Slack Webhook渠道配置
type SlackChannelConfig struct {
	// 预共享的Webhook地址
	WebhookURL string `yaml:"webhook-url" json:"webhook_url"`
}

// Enabled 判断Slack渠道是否已配置
func (c SlackChannelConfig) Enabled() bool {
	return c.WebhookURL != ""
}

// Validate 校验Slack渠道配置
func (c SlackChannelConfig) Validate() error {
	if c.WebhookURL == "" {
		return nil
	}
	if !strings.HasPrefix(c.WebhookURL, "http://") && !strings.HasPrefix(c.WebhookURL, "https://") {
		return fmt.Errorf("slack渠道的webhook-url必须是http(s)地址: %s", c.WebhookURL)
	}
	return nil
}

// WebhookChannelConfig 通用Webhook渠道配置
type WebhookChannelConfig struct {
	// 默认订阅地址，规则可单独覆盖
	URL string `yaml:"url" json:"url"`
}

// Validate 校验通用Webhook渠道配置
func (c WebhookChannelConfig) Validate() error {
	if c.URL == "" {
		return nil
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("webhook渠道的url必须是http(s)地址: %s", c.URL)
	}
	return nil
}

// ChannelsConfig 全部通知渠道的配置
type ChannelsConfig struct {
	Owner    OwnerChannelConfig    `yaml:"owner" json:"owner"`
	Telegram TelegramChannelConfig `yaml:"telegram" json:"telegram"`
	Slack    SlackChannelConfig    `yaml:"slack" json:"slack"`
	Webhook  WebhookChannelConfig  `yaml:"webhook" json:"webhook"`
}

// Validate 逐渠道校验配置
func (c ChannelsConfig) Validate() error {
	if err := c.Telegram.Validate(); err != nil {
		return err
	}
	if err := c.Slack.Validate(); err != nil {
		return err
	}
	return c.Webhook.Validate()
}
