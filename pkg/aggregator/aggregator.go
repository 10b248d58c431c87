// Package aggregator 将原始指标样本归并为每服务的周期统计
package aggregator

import (
	"strings"
	"time"

	"proxywatch/pkg/models"
)

const (
	// 请求计数器族的名称后缀
	suffixRequestsTotal = "requests_total"
	// 请求耗时sum/count族的名称后缀
	suffixDurationSum   = "request_duration_seconds_sum"
	suffixDurationCount = "request_duration_seconds_count"

	// 两个标签都缺失时使用的回退分组键
	unknownService = "unknown"
)

// serviceAccumulator 单个服务在一个周期内的累加状态
type serviceAccumulator struct {
	requestsTotal float64
	errors4xx     float64
	errors5xx     float64
	durationSum   float64
	durationCount float64
	hasCounter    bool
}

// Aggregate 将一个采集周期的样本归并为每服务的聚合统计
// 分组键优先取service标签，缺失时回退entrypoint标签，再缺失则归入unknown
// 未观测到请求计数器的服务不会产出聚合行
func Aggregate(samples []models.MetricSample) []*models.ServiceAggregate {
	accumulators := make(map[string]*serviceAccumulator)
	order := make([]string, 0)

	accFor := func(key string) *serviceAccumulator {
		acc, ok := accumulators[key]
		if !ok {
			acc = &serviceAccumulator{}
			accumulators[key] = acc
			order = append(order, key)
		}
		return acc
	}

	for _, sample := range samples {
		switch {
		case strings.HasSuffix(sample.Name, suffixDurationSum):
			accFor(groupKey(sample.Labels)).durationSum += sample.Value

		case strings.HasSuffix(sample.Name, suffixDurationCount):
			accFor(groupKey(sample.Labels)).durationCount += sample.Value

		case strings.HasSuffix(sample.Name, suffixRequestsTotal):
			acc := accFor(groupKey(sample.Labels))
			acc.hasCounter = true
			acc.requestsTotal += sample.Value

			// 按code标签前缀拆分错误计数
			code := sample.Labels["code"]
			if strings.HasPrefix(code, "4") {
				acc.errors4xx += sample.Value
			} else if strings.HasPrefix(code, "5") {
				acc.errors5xx += sample.Value
			}
		}
	}

	now := time.Now()
	aggregates := make([]*models.ServiceAggregate, 0, len(order))
	for _, key := range order {
		acc := accumulators[key]
		if !acc.hasCounter {
			continue
		}

		var avgLatencyMs int64
		if acc.durationCount > 0 {
			avgLatencyMs = int64(acc.durationSum * 1000 / acc.durationCount)
		}

		aggregates = append(aggregates, &models.ServiceAggregate{
			ServiceName:   key,
			RequestsTotal: int64(acc.requestsTotal),
			Errors4xx:     int64(acc.errors4xx),
			Errors5xx:     int64(acc.errors5xx),
			AvgLatencyMs:  avgLatencyMs,
			// RequestsPerSecond需要对比两个持久化周期，由历史存储在写入时回填
			CollectedAt: now,
		})
	}

	return aggregates
}

// groupKey 计算样本的分组键
func groupKey(labels map[string]string) string {
	if service := labels["service"]; service != "" {
		return service
	}
	if entrypoint := labels["entrypoint"]; entrypoint != "" {
		return entrypoint
	}
	return unknownService
}
