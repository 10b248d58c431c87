// Package alerting 提供阈值规则评估与告警生命周期管理
package alerting

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"proxywatch/pkg/models"
	"proxywatch/pkg/storage"
)

// Dispatcher 通知分发接口
type Dispatcher interface {
	// Dispatch 将告警分发到所有启用的渠道，返回各渠道结果
	Dispatch(ctx context.Context, alert *models.Alert, threshold *models.AlertThreshold) []models.NotificationResult
}

// Engine 阈值规则引擎
// 每个采集周期用最新聚合评估全部启用规则，触发时创建告警并分发通知
type Engine struct {
	store      *storage.Storage
	dispatcher Dispatcher
	logger     *zap.Logger

	// 便于测试注入时间
	now func() time.Time
}

// NewEngine 创建阈值规则引擎
func NewEngine(store *storage.Storage, dispatcher Dispatcher, logger *zap.Logger) *Engine {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Engine{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// Evaluate 用当前周期的聚合结果评估所有启用的规则
// 单条规则的失败被隔离记录，不影响其余规则的评估
func (e *Engine) Evaluate(ctx context.Context, aggregates []*models.ServiceAggregate) {
	if len(aggregates) == 0 {
		return
	}

	thresholds, err := e.store.ListEnabledThresholds(ctx)
	if err != nil {
		e.logger.Error("加载告警规则失败", zap.Error(err))
		return
	}

	for _, threshold := range thresholds {
		if err := e.evaluateThreshold(ctx, threshold, aggregates); err != nil {
			e.logger.Error("评估告警规则失败",
				zap.Uint("threshold_id", threshold.ID),
				zap.String("name", threshold.Name),
				zap.Error(err))
		}
	}
}

// evaluateThreshold 评估单条规则
func (e *Engine) evaluateThreshold(ctx context.Context, threshold *models.AlertThreshold, aggregates []*models.ServiceAggregate) error {
	now := e.now()

	// 冷却期内不重复触发，这是对持续越限的滞回抑制
	if threshold.LastTriggeredAt != nil {
		cooldown := time.Duration(threshold.CooldownMinutes) * time.Minute
		if now.Sub(*threshold.LastTriggeredAt) < cooldown {
			return nil
		}
	}

	// 候选服务集合：规则未指定服务时为全部，指定时仅该服务（无聚合则跳过）
	candidates := aggregates
	if threshold.ServiceName != nil && *threshold.ServiceName != "" {
		candidates = nil
		for _, agg := range aggregates {
			if agg.ServiceName == *threshold.ServiceName {
				candidates = []*models.ServiceAggregate{agg}
				break
			}
		}
		if candidates == nil {
			return nil
		}
	}

	type breach struct {
		aggregate *models.ServiceAggregate
		value     float64
	}
	breaches := make([]breach, 0)
	for _, agg := range candidates {
		value := currentValue(threshold.MetricType, agg)
		if checkCondition(threshold.Operator, value, threshold.ThresholdValue) {
			breaches = append(breaches, breach{aggregate: agg, value: value})
		}
	}
	if len(breaches) == 0 {
		return nil
	}

	// 先以条件更新认领本次触发；并发采集实例竞争失败时放弃，
	// 避免同一越限产生重复告警
	claimed, err := e.store.MarkThresholdTriggered(ctx, threshold, now)
	if err != nil {
		return err
	}
	if !claimed {
		e.logger.Debug("规则触发竞争失败，跳过", zap.Uint("threshold_id", threshold.ID))
		return nil
	}

	for _, b := range breaches {
		if err := e.trigger(ctx, threshold, b.aggregate, b.value, now); err != nil {
			e.logger.Error("创建告警失败",
				zap.Uint("threshold_id", threshold.ID),
				zap.String("service", b.aggregate.ServiceName),
				zap.Error(err))
		}
	}
	return nil
}

// trigger 创建告警记录并分发通知
func (e *Engine) trigger(ctx context.Context, threshold *models.AlertThreshold, aggregate *models.ServiceAggregate, value float64, now time.Time) error {
	alert := &models.Alert{
		ThresholdID:  threshold.ID,
		ServiceName:  aggregate.ServiceName,
		MetricType:   threshold.MetricType,
		CurrentValue: value,
		// 阈值快照，规则之后被修改不影响历史告警
		ThresholdValue: threshold.ThresholdValue,
		Status:         models.AlertStatusTriggered,
		Message:        buildMessage(threshold, aggregate.ServiceName, value),
		CreatedAt:      now,
	}

	if err := e.store.CreateAlert(ctx, alert); err != nil {
		return err
	}

	e.logger.Info("触发告警",
		zap.Uint("alert_id", alert.ID),
		zap.String("rule", threshold.Name),
		zap.String("service", aggregate.ServiceName),
		zap.Float64("value", value),
		zap.Float64("threshold", threshold.ThresholdValue))

	e.dispatcher.Dispatch(ctx, alert, threshold)
	return nil
}

// currentValue 按指标类型从聚合中计算当前值
// 比率类指标为百分比，请求总数为0时按0处理
func currentValue(metricType models.MetricType, agg *models.ServiceAggregate) float64 {
	switch metricType {
	case models.MetricErrors4xxRate:
		return rate(agg.Errors4xx, agg.RequestsTotal)
	case models.MetricErrors5xxRate:
		return rate(agg.Errors5xx, agg.RequestsTotal)
	case models.MetricErrorTotalRate:
		return rate(agg.Errors4xx+agg.Errors5xx, agg.RequestsTotal)
	case models.MetricLatencyAvg:
		return float64(agg.AvgLatencyMs)
	case models.MetricRequestsPerSecond:
		return agg.RequestsPerSecond
	default:
		return 0
	}
}

// rate 计算百分比错误率
func rate(count, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}

// checkCondition 检查当前值是否满足触发条件
func checkCondition(operator models.ConditionType, value, threshold float64) bool {
	switch operator {
	case models.ConditionGreaterThan:
		return value > threshold
	case models.ConditionLessThan:
		return value < threshold
	case models.ConditionGreaterThanOrEqual:
		return value >= threshold
	case models.ConditionLessThanOrEqual:
		return value <= threshold
	case models.ConditionEqual:
		return value == threshold
	default:
		return false
	}
}

// metricLabels 指标类型的中文描述
var metricLabels = map[models.MetricType]string{
	models.MetricErrors4xxRate:     "4xx错误率",
	models.MetricErrors5xxRate:     "5xx错误率",
	models.MetricErrorTotalRate:    "总错误率",
	models.MetricLatencyAvg:        "平均延迟",
	models.MetricRequestsPerSecond: "每秒请求数",
}

// operatorLabels 操作符的中文描述
var operatorLabels = map[models.ConditionType]string{
	models.ConditionGreaterThan:        "超过",
	models.ConditionLessThan:           "低于",
	models.ConditionGreaterThanOrEqual: "达到",
	models.ConditionLessThanOrEqual:    "不高于",
	models.ConditionEqual:              "等于",
}

// buildMessage 生成人类可读的告警描述
// 无论任何通知渠道成败，该描述始终随告警记录保存
func buildMessage(threshold *models.AlertThreshold, serviceName string, value float64) string {
	metricLabel := metricLabels[threshold.MetricType]
	if metricLabel == "" {
		metricLabel = string(threshold.MetricType)
	}
	operatorLabel := operatorLabels[threshold.Operator]
	if operatorLabel == "" {
		operatorLabel = string(threshold.Operator)
	}

	return fmt.Sprintf("规则[%s]: 服务 %s 的%s当前为 %.2f，%s阈值 %.2f",
		threshold.Name, serviceName, metricLabel, value, operatorLabel, threshold.ThresholdValue)
}
