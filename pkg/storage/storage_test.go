package storage

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"proxywatch/pkg/models"
)

// setupTestStorage 创建基于内存SQLite的存储实例
func setupTestStorage(t *testing.T) *Storage {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开内存数据库失败: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层连接失败: %v", err)
	}
	// 内存库在连接间不共享，限制为单连接
	sqlDB.SetMaxOpenConns(1)

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}

	return New(db, zap.NewNop())
}

func mustSave(t *testing.T, s *Storage, aggs ...*models.ServiceAggregate) {
	t.Helper()
	if _, err := s.SaveAggregates(context.Background(), aggs); err != nil {
		t.Fatalf("写入聚合失败: %v", err)
	}
}

// TestSaveAggregates_BackfillRPS 测试写入时根据上一周期回填rps
func TestSaveAggregates_BackfillRPS(t *testing.T) {
	s := setupTestStorage(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	first := &models.ServiceAggregate{ServiceName: "a", RequestsTotal: 100, CollectedAt: base}
	mustSave(t, s, first)
	if first.RequestsPerSecond != 0 {
		t.Errorf("首个周期rps应为0, 实际 %f", first.RequestsPerSecond)
	}

	second := &models.ServiceAggregate{ServiceName: "a", RequestsTotal: 200, CollectedAt: base.Add(10 * time.Second)}
	mustSave(t, s, second)
	if second.RequestsPerSecond != 10 {
		t.Errorf("rps回填错误: 期望10, 实际 %f", second.RequestsPerSecond)
	}
}

// TestSaveAggregates_CounterReset 测试计数器回绕时rps保持0
func TestSaveAggregates_CounterReset(t *testing.T) {
	s := setupTestStorage(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	mustSave(t, s, &models.ServiceAggregate{ServiceName: "a", RequestsTotal: 500, CollectedAt: base})

	// 代理重启后计数器从头开始
	reset := &models.ServiceAggregate{ServiceName: "a", RequestsTotal: 20, CollectedAt: base.Add(10 * time.Second)}
	mustSave(t, s, reset)
	if reset.RequestsPerSecond != 0 {
		t.Errorf("计数器回绕时rps应保持0, 实际 %f", reset.RequestsPerSecond)
	}
}

// TestQueryAggregates 测试按条件查询与倒序排序
func TestQueryAggregates(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	mustSave(t, s,
		&models.ServiceAggregate{ServiceName: "a", RequestsTotal: 1, CollectedAt: base},
		&models.ServiceAggregate{ServiceName: "b", RequestsTotal: 2, CollectedAt: base.Add(time.Minute)},
	)
	mustSave(t, s, &models.ServiceAggregate{ServiceName: "a", RequestsTotal: 3, CollectedAt: base.Add(2 * time.Minute)})

	all, err := s.QueryAggregates(ctx, AggregateQuery{})
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("期望3条记录, 实际 %d", len(all))
	}
	if !all[0].CollectedAt.After(all[2].CollectedAt) {
		t.Error("查询结果应按采集时间倒序")
	}

	onlyA, err := s.QueryAggregates(ctx, AggregateQuery{ServiceName: "a"})
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(onlyA) != 2 {
		t.Errorf("服务过滤错误: 期望2条, 实际 %d", len(onlyA))
	}

	limited, err := s.QueryAggregates(ctx, AggregateQuery{Limit: 1})
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("条数限制错误: 期望1条, 实际 %d", len(limited))
	}
}

// TestPruneOlderThan 测试仅删除超出保留期的记录
func TestPruneOlderThan(t *testing.T) {
	s := setupTestStorage(t)
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	mustSave(t, s,
		&models.ServiceAggregate{ServiceName: "old", RequestsTotal: 1, CollectedAt: now.AddDate(0, 0, -31)},
		&models.ServiceAggregate{ServiceName: "fresh", RequestsTotal: 1, CollectedAt: now.AddDate(0, 0, -29)},
	)

	deleted, err := s.PruneOlderThan(context.Background(), 30)
	if err != nil {
		t.Fatalf("清理失败: %v", err)
	}
	if deleted != 1 {
		t.Errorf("期望删除1条, 实际 %d", deleted)
	}

	remaining, err := s.QueryAggregates(context.Background(), AggregateQuery{})
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ServiceName != "fresh" {
		t.Errorf("保留期内的记录不应被删除: %+v", remaining)
	}
}

// TestPruneOlderThan_InvalidDays 测试非法保留天数
func TestPruneOlderThan_InvalidDays(t *testing.T) {
	s := setupTestStorage(t)
	if _, err := s.PruneOlderThan(context.Background(), 0); err == nil {
		t.Error("保留天数为0应返回错误")
	}
}

// TestTrend_WeekWindow 测试周趋势只包含最近7天
func TestTrend_WeekWindow(t *testing.T) {
	s := setupTestStorage(t)
	// 周一中午
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	// 最近7天每天一条，另有一条超出窗口（8天前也是周日，若未排除会混入Sun桶）
	for day := 0; day < 7; day++ {
		mustSave(t, s, &models.ServiceAggregate{
			ServiceName:   "a",
			RequestsTotal: 10,
			CollectedAt:   now.AddDate(0, 0, -day),
		})
	}
	mustSave(t, s, &models.ServiceAggregate{
		ServiceName:   "a",
		RequestsTotal: 10,
		CollectedAt:   now.AddDate(0, 0, -8),
	})

	trend, err := s.Trend(context.Background(), "a", models.TrendPeriodWeek)
	if err != nil {
		t.Fatalf("趋势计算失败: %v", err)
	}
	if len(trend.Labels) != 7 {
		t.Errorf("周趋势应只包含7个桶, 实际 %d: %v", len(trend.Labels), trend.Labels)
	}
	for i, label := range trend.Labels {
		if len(label) != 3 {
			t.Errorf("周趋势桶标签应为星期缩写: %q", label)
		}
		if trend.RequestsTotal[i] != 10 {
			t.Errorf("窗口外的记录不应计入桶 %s: %d", label, trend.RequestsTotal[i])
		}
	}
}

// TestTrend_BucketAggregation 测试桶内计数求和、延迟求平均
func TestTrend_BucketAggregation(t *testing.T) {
	s := setupTestStorage(t)
	now := time.Date(2026, 8, 24, 12, 14, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	// 两条记录落入同一个5分钟桶（12:10），一条落入12:00桶
	mustSave(t, s,
		&models.ServiceAggregate{ServiceName: "a", RequestsTotal: 10, Errors4xx: 1, AvgLatencyMs: 100, CollectedAt: now.Add(-12 * time.Minute)},
		&models.ServiceAggregate{ServiceName: "a", RequestsTotal: 20, Errors4xx: 2, AvgLatencyMs: 300, CollectedAt: now.Add(-3 * time.Minute)},
		&models.ServiceAggregate{ServiceName: "a", RequestsTotal: 5, Errors5xx: 1, AvgLatencyMs: 50, CollectedAt: now.Add(-2 * time.Minute)},
	)

	trend, err := s.Trend(context.Background(), "a", models.TrendPeriodHour)
	if err != nil {
		t.Fatalf("趋势计算失败: %v", err)
	}

	if len(trend.Labels) != 2 {
		t.Fatalf("期望2个桶, 实际 %d: %v", len(trend.Labels), trend.Labels)
	}
	// 首次出现顺序：12:00在前，12:10在后
	if trend.Labels[0] != "12:00" || trend.Labels[1] != "12:10" {
		t.Errorf("桶标签或顺序错误: %v", trend.Labels)
	}

	// 12:10桶：请求求和20+5，延迟平均(300+50)/2
	if trend.RequestsTotal[1] != 25 {
		t.Errorf("桶内请求求和错误: %d", trend.RequestsTotal[1])
	}
	if trend.AvgLatency[1] != 175 {
		t.Errorf("桶内延迟平均错误: %d", trend.AvgLatency[1])
	}
	if trend.Errors4xx[1] != 2 || trend.Errors5xx[1] != 1 {
		t.Errorf("桶内错误计数错误: 4xx=%d 5xx=%d", trend.Errors4xx[1], trend.Errors5xx[1])
	}
}

// TestTrend_UnknownPeriod 测试未知周期返回错误
func TestTrend_UnknownPeriod(t *testing.T) {
	s := setupTestStorage(t)
	if _, err := s.Trend(context.Background(), "", models.TrendPeriod("month")); err == nil {
		t.Error("未知趋势周期应返回错误")
	}
}

// TestCreateThreshold_PersistsDisabled 测试显式禁用的规则按原样持久化
func TestCreateThreshold_PersistsDisabled(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	threshold := &models.AlertThreshold{
		Name:        "草稿规则",
		MetricType:  models.MetricErrors4xxRate,
		Operator:    models.ConditionGreaterThan,
		IsEnabled:   false,
		NotifyEmail: false,
	}
	if err := s.CreateThreshold(ctx, threshold); err != nil {
		t.Fatalf("创建规则失败: %v", err)
	}

	reloaded, err := s.GetThreshold(ctx, threshold.ID)
	if err != nil {
		t.Fatalf("查询规则失败: %v", err)
	}
	if reloaded.IsEnabled {
		t.Error("显式创建的禁用规则不应被持久化为启用")
	}
	if reloaded.NotifyEmail {
		t.Error("显式关闭的站内通知开关不应被持久化为开启")
	}

	enabled, err := s.ListEnabledThresholds(ctx)
	if err != nil {
		t.Fatalf("查询启用规则失败: %v", err)
	}
	if len(enabled) != 0 {
		t.Errorf("禁用规则不应出现在启用列表中: %d", len(enabled))
	}
}

// TestMarkThresholdTriggered 测试条件更新的竞争语义
func TestMarkThresholdTriggered(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	threshold := &models.AlertThreshold{
		Name:       "t1",
		MetricType: models.MetricErrors5xxRate,
		Operator:   models.ConditionGreaterThan,
	}
	if err := s.CreateThreshold(ctx, threshold); err != nil {
		t.Fatalf("创建规则失败: %v", err)
	}

	now := time.Now()
	ok, err := s.MarkThresholdTriggered(ctx, threshold, now)
	if err != nil {
		t.Fatalf("条件更新失败: %v", err)
	}
	if !ok {
		t.Fatal("首次触发应认领成功")
	}

	// 模拟另一实例依然持有旧快照（LastTriggeredAt为nil）
	stale := &models.AlertThreshold{ID: threshold.ID}
	ok, err = s.MarkThresholdTriggered(ctx, stale, now.Add(time.Second))
	if err != nil {
		t.Fatalf("条件更新失败: %v", err)
	}
	if ok {
		t.Error("持有旧快照的实例应竞争失败")
	}
}

// TestUpdateThreshold_KeepsLastTriggeredAt 测试更新规则不覆盖触发时间
func TestUpdateThreshold_KeepsLastTriggeredAt(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	threshold := &models.AlertThreshold{
		Name:           "t1",
		MetricType:     models.MetricLatencyAvg,
		Operator:       models.ConditionGreaterThan,
		ThresholdValue: 100,
	}
	if err := s.CreateThreshold(ctx, threshold); err != nil {
		t.Fatalf("创建规则失败: %v", err)
	}
	triggeredAt := time.Now()
	if _, err := s.MarkThresholdTriggered(ctx, threshold, triggeredAt); err != nil {
		t.Fatalf("标记触发失败: %v", err)
	}

	threshold.ThresholdValue = 200
	threshold.LastTriggeredAt = nil
	if err := s.UpdateThreshold(ctx, threshold); err != nil {
		t.Fatalf("更新规则失败: %v", err)
	}

	reloaded, err := s.GetThreshold(ctx, threshold.ID)
	if err != nil {
		t.Fatalf("查询规则失败: %v", err)
	}
	if reloaded.ThresholdValue != 200 {
		t.Errorf("阈值更新未生效: %f", reloaded.ThresholdValue)
	}
	if reloaded.LastTriggeredAt == nil {
		t.Error("更新规则不应清空触发时间")
	}
}
