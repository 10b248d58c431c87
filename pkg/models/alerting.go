// Package models 定义告警和通知相关的数据模型
package models

import (
	"time"
)

// MetricType 表示告警规则监控的指标类型
type MetricType string

const (
	// MetricErrors4xxRate 4xx错误率（百分比）
	MetricErrors4xxRate MetricType = "errors_4xx_rate"
	// MetricErrors5xxRate 5xx错误率（百分比）
	MetricErrors5xxRate MetricType = "errors_5xx_rate"
	// MetricErrorTotalRate 总错误率（百分比）
	MetricErrorTotalRate MetricType = "error_total_rate"
	// MetricLatencyAvg 平均延迟（毫秒）
	MetricLatencyAvg MetricType = "latency_avg"
	// MetricRequestsPerSecond 每秒请求数
	MetricRequestsPerSecond MetricType = "requests_per_second"
)

// ConditionType 表示告警条件的比较操作符
type ConditionType string

const (
	// ConditionGreaterThan 大于
	ConditionGreaterThan ConditionType = "gt"
	// ConditionLessThan 小于
	ConditionLessThan ConditionType = "lt"
	// ConditionGreaterThanOrEqual 大于等于
	ConditionGreaterThanOrEqual ConditionType = "gte"
	// ConditionLessThanOrEqual 小于等于
	ConditionLessThanOrEqual ConditionType = "lte"
	// ConditionEqual 等于
	ConditionEqual ConditionType = "eq"
)

// AlertThreshold 表示管理员配置的告警阈值规则
type AlertThreshold struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`
	// 规则名称
	Name string `gorm:"type:varchar(100);not null;comment:规则名称" json:"name" validate:"required,max=100"`
	// 目标服务名称，为空表示对所有服务生效
	ServiceName *string `gorm:"type:varchar(191);comment:目标服务名称" json:"service_name"`
	// 监控的指标类型
	MetricType MetricType `gorm:"type:varchar(32);not null;comment:指标类型" json:"metric_type" validate:"required,oneof=errors_4xx_rate errors_5xx_rate error_total_rate latency_avg requests_per_second"`
	// 比较操作符
	Operator ConditionType `gorm:"type:varchar(8);not null;comment:比较操作符" json:"operator" validate:"required,oneof=gt lt gte lte eq"`
	// 阈值
	ThresholdValue float64 `gorm:"not null;comment:阈值" json:"threshold_value"`
	// 统计窗口（分钟）
	WindowMinutes int `gorm:"not null;comment:统计窗口分钟" json:"window_minutes" validate:"gte=1"`
	// 是否启用
	// 布尔与计数字段不携带列默认值：gorm写入时会跳过带default标签的零值字段，
	// 导致显式创建的禁用规则被持久化为启用
	IsEnabled bool `gorm:"not null;comment:是否启用" json:"is_enabled"`
	// 是否通知站内收件箱
	NotifyEmail bool `gorm:"not null;comment:是否通知站内收件箱" json:"notify_email"`
	// 是否通知规则专属Webhook
	NotifyWebhook bool `gorm:"not null;comment:是否通知Webhook" json:"notify_webhook"`
	// 规则专属Webhook地址
	WebhookURL string `gorm:"type:varchar(500);comment:Webhook地址" json:"webhook_url" validate:"omitempty,url"`
	// 冷却时间（分钟），同一规则两次触发的最小间隔，0表示不冷却
	CooldownMinutes int `gorm:"not null;comment:冷却时间分钟" json:"cooldown_minutes" validate:"gte=0"`
	// 上次触发时间
	LastTriggeredAt *time.Time `gorm:"comment:上次触发时间" json:"last_triggered_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName 设置表名
func (AlertThreshold) TableName() string {
	return "proxy_alert_thresholds"
}

// AlertStatus 表示告警的生命周期状态
// 状态机：triggered -> acknowledged -> resolved，acknowledged可跳过，resolved为终态
type AlertStatus string

const (
	// AlertStatusTriggered 已触发
	AlertStatusTriggered AlertStatus = "triggered"
	// AlertStatusAcknowledged 已确认
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	// AlertStatusResolved 已解决
	AlertStatusResolved AlertStatus = "resolved"
)

// Alert 表示规则的一次触发记录
// 触发时的值为快照，之后修改规则不会影响历史告警
type Alert struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`
	// 关联的规则ID（仅引用，不随规则删除）
	ThresholdID uint `gorm:"not null;index;comment:规则ID" json:"threshold_id"`
	// 触发告警的服务名称
	ServiceName string `gorm:"type:varchar(191);not null;comment:服务名称" json:"service_name"`
	// 指标类型
	MetricType MetricType `gorm:"type:varchar(32);not null;comment:指标类型" json:"metric_type"`
	// 触发时的指标值（快照）
	CurrentValue float64 `gorm:"not null;comment:触发时指标值" json:"current_value"`
	// 触发时的阈值（快照）
	ThresholdValue float64 `gorm:"not null;comment:触发时阈值" json:"threshold_value"`
	// 告警状态
	Status AlertStatus `gorm:"type:varchar(16);not null;default:triggered;index;comment:告警状态" json:"status"`
	// 人类可读的告警描述
	Message string `gorm:"type:varchar(500);not null;comment:告警描述" json:"message"`
	// 触发时间
	CreatedAt time.Time `gorm:"index;comment:触发时间" json:"created_at"`
	// 确认人ID
	AcknowledgedByID *uint `gorm:"comment:确认人ID" json:"acknowledged_by_id"`
	// 确认时间
	AcknowledgedAt *time.Time `gorm:"comment:确认时间" json:"acknowledged_at"`
	// 解决时间
	ResolvedAt *time.Time `gorm:"comment:解决时间" json:"resolved_at"`
}

// TableName 设置表名
func (Alert) TableName() string {
	return "proxy_alerts"
}

// NotificationProvider 表示通知渠道类型
type NotificationProvider string

const (
	// ProviderOwner 站内收件箱通知
	ProviderOwner NotificationProvider = "owner"
	// ProviderTelegram Telegram机器人通知
	ProviderTelegram NotificationProvider = "telegram"
	// ProviderSlack Slack Webhook通知
	ProviderSlack NotificationProvider = "slack"
	// ProviderWebhook 通用Webhook通知
	ProviderWebhook NotificationProvider = "webhook"
)

// NotificationResult 表示单个渠道一次发送的结果
// 不作为独立实体持久化，但会写入通知日志
type NotificationResult struct {
	// 渠道类型
	Provider NotificationProvider `json:"provider"`
	// 是否成功
	Success bool `json:"success"`
	// 失败原因
	Error string `json:"error,omitempty"`
	// 渠道返回的消息ID（如果有）
	MessageID string `json:"message_id,omitempty"`
}

// NotificationLog 表示一次通知尝试的持久化日志（仅追加）
type NotificationLog struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`
	// 关联的告警ID
	AlertID uint `gorm:"not null;index;comment:告警ID" json:"alert_id"`
	// 渠道类型
	Provider NotificationProvider `gorm:"type:varchar(16);not null;comment:渠道类型" json:"provider"`
	// 是否成功
	Success bool `gorm:"not null;comment:是否成功" json:"success"`
	// 失败原因
	Error string `gorm:"type:varchar(500);comment:失败原因" json:"error"`
	// 渠道返回的消息ID
	MessageID string `gorm:"type:varchar(100);comment:消息ID" json:"message_id"`
	// 发送时间
	CreatedAt time.Time `gorm:"index;comment:发送时间" json:"created_at"`
}

// TableName 设置表名
func (NotificationLog) TableName() string {
	return "proxy_notification_logs"
}

// OwnerNotification 表示写入站长收件箱的一条站内通知
type OwnerNotification struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`
	// 通知标题
	Title string `gorm:"type:varchar(200);not null;comment:通知标题" json:"title"`
	// 通知内容
	Content string `gorm:"type:varchar(1000);not null;comment:通知内容" json:"content"`
	// 是否已读
	IsRead bool `gorm:"not null;default:0;comment:是否已读" json:"is_read"`
	// 创建时间
	CreatedAt time.Time `gorm:"index;comment:创建时间" json:"created_at"`
}

// TableName 设置表名
func (OwnerNotification) TableName() string {
	return "proxy_owner_notifications"
}
