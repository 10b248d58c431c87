package aggregator

import (
	"testing"

	"proxywatch/pkg/models"
)

func sample(name string, labels map[string]string, value float64) models.MetricSample {
	return models.MetricSample{Name: name, Labels: labels, Value: value}
}

func findAggregate(t *testing.T, aggs []*models.ServiceAggregate, service string) *models.ServiceAggregate {
	t.Helper()
	for _, agg := range aggs {
		if agg.ServiceName == service {
			return agg
		}
	}
	t.Fatalf("未找到服务 %s 的聚合结果", service)
	return nil
}

// TestAggregate_CounterSumAndErrorSplit 测试计数器求和与4xx/5xx拆分
func TestAggregate_CounterSumAndErrorSplit(t *testing.T) {
	samples := []models.MetricSample{
		sample("traefik_service_requests_total", map[string]string{"service": "a", "code": "200"}, 10),
		sample("traefik_service_requests_total", map[string]string{"service": "a", "code": "404"}, 2),
		sample("traefik_service_requests_total", map[string]string{"service": "a", "code": "500"}, 1),
	}

	aggs := Aggregate(samples)
	if len(aggs) != 1 {
		t.Fatalf("期望1个聚合结果, 实际 %d", len(aggs))
	}

	agg := findAggregate(t, aggs, "a")
	if agg.RequestsTotal != 13 {
		t.Errorf("请求总数错误: 期望13, 实际 %d", agg.RequestsTotal)
	}
	if agg.Errors4xx != 2 {
		t.Errorf("4xx错误数错误: 期望2, 实际 %d", agg.Errors4xx)
	}
	if agg.Errors5xx != 1 {
		t.Errorf("5xx错误数错误: 期望1, 实际 %d", agg.Errors5xx)
	}
}

// TestAggregate_LatencyDerivation 测试平均延迟推导（秒到毫秒）
func TestAggregate_LatencyDerivation(t *testing.T) {
	samples := []models.MetricSample{
		sample("traefik_service_requests_total", map[string]string{"service": "a", "code": "200"}, 10),
		sample("traefik_service_request_duration_seconds_sum", map[string]string{"service": "a"}, 2.5),
		sample("traefik_service_request_duration_seconds_count", map[string]string{"service": "a"}, 10),
	}

	agg := findAggregate(t, Aggregate(samples), "a")
	if agg.AvgLatencyMs != 250 {
		t.Errorf("平均延迟错误: 期望250ms, 实际 %d", agg.AvgLatencyMs)
	}
}

// TestAggregate_ZeroCount 测试耗时计数为0时延迟为0
func TestAggregate_ZeroCount(t *testing.T) {
	samples := []models.MetricSample{
		sample("traefik_service_requests_total", map[string]string{"service": "a", "code": "200"}, 5),
		sample("traefik_service_request_duration_seconds_sum", map[string]string{"service": "a"}, 2.5),
	}

	agg := findAggregate(t, Aggregate(samples), "a")
	if agg.AvgLatencyMs != 0 {
		t.Errorf("计数为0时平均延迟应为0, 实际 %d", agg.AvgLatencyMs)
	}
}

// TestAggregate_GroupKeyFallback 测试分组键回退逻辑
func TestAggregate_GroupKeyFallback(t *testing.T) {
	samples := []models.MetricSample{
		sample("traefik_service_requests_total", map[string]string{"service": "svc", "code": "200"}, 1),
		sample("traefik_entrypoint_requests_total", map[string]string{"entrypoint": "web", "code": "200"}, 2),
		sample("traefik_entrypoint_requests_total", map[string]string{"code": "200"}, 3),
	}

	aggs := Aggregate(samples)
	if len(aggs) != 3 {
		t.Fatalf("期望3个聚合结果, 实际 %d", len(aggs))
	}
	if findAggregate(t, aggs, "svc").RequestsTotal != 1 {
		t.Error("service标签分组错误")
	}
	if findAggregate(t, aggs, "web").RequestsTotal != 2 {
		t.Error("entrypoint标签回退分组错误")
	}
	if findAggregate(t, aggs, "unknown").RequestsTotal != 3 {
		t.Error("unknown回退分组错误")
	}
}

// TestAggregate_NoCounterNoGroup 测试只有耗时数据的服务不产出聚合行
func TestAggregate_NoCounterNoGroup(t *testing.T) {
	samples := []models.MetricSample{
		sample("traefik_service_request_duration_seconds_sum", map[string]string{"service": "orphan"}, 1.0),
		sample("traefik_service_request_duration_seconds_count", map[string]string{"service": "orphan"}, 5),
	}

	if aggs := Aggregate(samples); len(aggs) != 0 {
		t.Errorf("没有请求计数器的服务不应产出聚合行, 实际 %d 个", len(aggs))
	}
}

// TestAggregate_IgnoreUnknownFamilies 测试未知指标族被过滤
func TestAggregate_IgnoreUnknownFamilies(t *testing.T) {
	samples := []models.MetricSample{
		sample("go_goroutines", nil, 42),
		sample("traefik_config_reloads_total", nil, 3),
		sample("traefik_service_requests_total", map[string]string{"service": "a", "code": "200"}, 7),
	}

	aggs := Aggregate(samples)
	if len(aggs) != 1 {
		t.Fatalf("期望1个聚合结果, 实际 %d", len(aggs))
	}
	if aggs[0].RequestsTotal != 7 {
		t.Errorf("请求总数错误: %d", aggs[0].RequestsTotal)
	}
}

// TestAggregate_RPSLeftZero 测试聚合阶段不计算每秒请求数
func TestAggregate_RPSLeftZero(t *testing.T) {
	samples := []models.MetricSample{
		sample("traefik_service_requests_total", map[string]string{"service": "a", "code": "200"}, 100),
	}

	agg := findAggregate(t, Aggregate(samples), "a")
	if agg.RequestsPerSecond != 0 {
		t.Errorf("聚合阶段rps应为0, 实际 %f", agg.RequestsPerSecond)
	}
}
