package storage

import (
	"context"
	"fmt"
	"time"

	"proxywatch/pkg/common"
	"proxywatch/pkg/models"
)

// trendBucket 单个时间桶的累加状态
type trendBucket struct {
	requestsTotal int64
	latencySum    int64
	latencyCount  int64
	errors4xx     int64
	errors5xx     int64
}

// Trend 计算指定窗口内按桶聚合的趋势序列
// 桶标签：hour为HH:MM（5分钟向下取整），day为HH:00，week为星期缩写
// 仅产出有观测值的桶，顺序为首次出现顺序，不补零
func (s *Storage) Trend(ctx context.Context, serviceName string, period models.TrendPeriod) (*models.TrendResult, error) {
	window, err := windowFor(period)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx).Model(&models.ServiceAggregate{}).
		Where("collected_at >= ?", s.now().Add(-window))
	if serviceName != "" {
		db = db.Where("service_name = ?", serviceName)
	}

	var aggregates []*models.ServiceAggregate
	if err := db.Order("collected_at ASC").Find(&aggregates).Error; err != nil {
		return nil, fmt.Errorf("查询趋势数据失败: %w", err)
	}

	labels := make([]string, 0)
	buckets := make(map[string]*trendBucket)

	for _, agg := range aggregates {
		label := bucketLabel(agg.CollectedAt, period)
		bucket, ok := buckets[label]
		if !ok {
			bucket = &trendBucket{}
			buckets[label] = bucket
			labels = append(labels, label)
		}

		bucket.requestsTotal += agg.RequestsTotal
		bucket.errors4xx += agg.Errors4xx
		bucket.errors5xx += agg.Errors5xx
		bucket.latencySum += agg.AvgLatencyMs
		bucket.latencyCount++
	}

	result := &models.TrendResult{
		Labels:        labels,
		RequestsTotal: make([]int64, 0, len(labels)),
		AvgLatency:    make([]int64, 0, len(labels)),
		Errors4xx:     make([]int64, 0, len(labels)),
		Errors5xx:     make([]int64, 0, len(labels)),
	}
	for _, label := range labels {
		bucket := buckets[label]
		result.RequestsTotal = append(result.RequestsTotal, bucket.requestsTotal)
		result.AvgLatency = append(result.AvgLatency, bucket.latencySum/bucket.latencyCount)
		result.Errors4xx = append(result.Errors4xx, bucket.errors4xx)
		result.Errors5xx = append(result.Errors5xx, bucket.errors5xx)
	}

	return result, nil
}

// windowFor 返回趋势周期对应的回看窗口
func windowFor(period models.TrendPeriod) (time.Duration, error) {
	switch period {
	case models.TrendPeriodHour:
		return time.Hour, nil
	case models.TrendPeriodDay:
		return 24 * time.Hour, nil
	case models.TrendPeriodWeek:
		return 7 * 24 * time.Hour, nil
	default:
		return 0, common.NewValidationError(fmt.Sprintf("未知的趋势周期: %s", period), nil)
	}
}

// bucketLabel 计算聚合行落入的桶标签
func bucketLabel(t time.Time, period models.TrendPeriod) string {
	switch period {
	case models.TrendPeriodHour:
		return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute()/5*5)
	case models.TrendPeriodDay:
		return fmt.Sprintf("%02d:00", t.Hour())
	default:
		return t.Weekday().String()[:3]
	}
}
