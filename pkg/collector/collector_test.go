package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"proxywatch/pkg/alerting"
	"proxywatch/pkg/models"
	"proxywatch/pkg/storage"
)

// noopDispatcher 不做真实发送的分发器
type noopDispatcher struct{}

func (noopDispatcher) Dispatch(ctx context.Context, alert *models.Alert, threshold *models.AlertThreshold) []models.NotificationResult {
	return nil
}

// setupCollector 创建指向指标源地址的采集调度器与内存存储
func setupCollector(t *testing.T, metricsURL string) (*Collector, *storage.Storage) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开内存数据库失败: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层连接失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := storage.AutoMigrate(db); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}

	store := storage.New(db, zap.NewNop())
	engine := alerting.NewEngine(store, noopDispatcher{}, zap.NewNop())
	collector := New(Config{
		MetricsURL:      metricsURL,
		IntervalSeconds: 30,
	}, store, engine, zap.NewNop())
	return collector, store
}

const sampleMetricsText = `# HELP traefik_service_requests_total How many HTTP requests processed.
# TYPE traefik_service_requests_total counter
traefik_service_requests_total{code="200",service="api"} 90
traefik_service_requests_total{code="404",service="api"} 8
traefik_service_requests_total{code="502",service="api"} 2
traefik_service_request_duration_seconds_sum{service="api"} 25
traefik_service_request_duration_seconds_count{service="api"} 100
traefik_service_requests_total{code="200",service="web"} 50
`

// TestRunCycle_PersistsAggregates 测试完整采集周期的落库结果
func TestRunCycle_PersistsAggregates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleMetricsText))
	}))
	defer server.Close()

	collector, store := setupCollector(t, server.URL)
	if err := collector.runCycle(context.Background()); err != nil {
		t.Fatalf("采集周期失败: %v", err)
	}

	aggregates, err := store.QueryAggregates(context.Background(), storage.AggregateQuery{})
	if err != nil {
		t.Fatalf("查询聚合失败: %v", err)
	}
	if len(aggregates) != 2 {
		t.Fatalf("期望2个服务的聚合, 实际 %d", len(aggregates))
	}

	byService := make(map[string]*models.ServiceAggregate)
	for _, agg := range aggregates {
		byService[agg.ServiceName] = agg
	}
	api := byService["api"]
	if api == nil {
		t.Fatal("缺少api服务的聚合")
	}
	if api.RequestsTotal != 100 || api.Errors4xx != 8 || api.Errors5xx != 2 {
		t.Errorf("api聚合计数错误: %+v", api)
	}
	if api.AvgLatencyMs != 250 {
		t.Errorf("api平均延迟错误: %d", api.AvgLatencyMs)
	}
	if web := byService["web"]; web == nil || web.RequestsTotal != 50 {
		t.Errorf("web聚合错误: %+v", web)
	}
}

// TestRunCycle_EvaluatesThresholds 测试采集周期驱动阈值评估
func TestRunCycle_EvaluatesThresholds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleMetricsText))
	}))
	defer server.Close()

	collector, store := setupCollector(t, server.URL)
	ctx := context.Background()

	// api的4xx率为8%，越限
	if err := store.CreateThreshold(ctx, &models.AlertThreshold{
		Name:           "4xx过高",
		MetricType:     models.MetricErrors4xxRate,
		Operator:       models.ConditionGreaterThan,
		ThresholdValue: 5,
		IsEnabled:      true,
	}); err != nil {
		t.Fatalf("创建规则失败: %v", err)
	}

	if err := collector.runCycle(ctx); err != nil {
		t.Fatalf("采集周期失败: %v", err)
	}

	alerts, err := store.ListAlerts(ctx, storage.AlertQuery{})
	if err != nil {
		t.Fatalf("查询告警失败: %v", err)
	}
	if len(alerts) != 1 || alerts[0].ServiceName != "api" {
		t.Errorf("期望api产生1条告警: %+v", alerts)
	}
}

// TestRunCycle_SourceUnavailable 测试指标源不可用时不落任何数据
func TestRunCycle_SourceUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	collector, store := setupCollector(t, server.URL)
	if err := collector.runCycle(context.Background()); err == nil {
		t.Fatal("指标源不可用时采集周期应返回错误")
	}

	aggregates, err := store.QueryAggregates(context.Background(), storage.AggregateQuery{})
	if err != nil {
		t.Fatalf("查询聚合失败: %v", err)
	}
	if len(aggregates) != 0 {
		t.Errorf("指标源不可用时不应落库, 实际 %d 条", len(aggregates))
	}
}

// TestRunCycle_EmptyExposition 测试空指标文本按成功处理且不落库
func TestRunCycle_EmptyExposition(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# only comments here\n"))
	}))
	defer server.Close()

	collector, store := setupCollector(t, server.URL)
	if err := collector.runCycle(context.Background()); err != nil {
		t.Fatalf("空指标文本不应报错: %v", err)
	}

	aggregates, err := store.QueryAggregates(context.Background(), storage.AggregateQuery{})
	if err != nil {
		t.Fatalf("查询聚合失败: %v", err)
	}
	if len(aggregates) != 0 {
		t.Errorf("空指标文本不应落库, 实际 %d 条", len(aggregates))
	}
}

// TestFetch_BasicAuth 测试配置凭据时携带Basic Auth
func TestFetch_BasicAuth(t *testing.T) {
	var gotUser, gotPass string
	var gotOK bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, gotOK = r.BasicAuth()
		w.Write([]byte(""))
	}))
	defer server.Close()

	collector, _ := setupCollector(t, server.URL)
	collector.config.Username = "admin"
	collector.config.Password = "secret"

	if _, err := collector.fetch(context.Background()); err != nil {
		t.Fatalf("拉取失败: %v", err)
	}
	if !gotOK || gotUser != "admin" || gotPass != "secret" {
		t.Errorf("Basic Auth凭据错误: ok=%v user=%q pass=%q", gotOK, gotUser, gotPass)
	}
}

// TestConfigValidate 测试采集配置校验
func TestConfigValidate(t *testing.T) {
	if err := (Config{IntervalSeconds: 30}).Validate(); err == nil {
		t.Error("缺少指标地址应校验失败")
	}
	if err := (Config{MetricsURL: "http://127.0.0.1/metrics"}).Validate(); err == nil {
		t.Error("采集间隔非正数应校验失败")
	}
	if err := (Config{MetricsURL: "http://127.0.0.1/metrics", IntervalSeconds: 30}).Validate(); err != nil {
		t.Errorf("合法配置不应校验失败: %v", err)
	}
}
