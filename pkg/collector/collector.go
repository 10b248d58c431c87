// Package collector 实现反向代理指标的周期采集调度
package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"proxywatch/pkg/aggregator"
	"proxywatch/pkg/alerting"
	"proxywatch/pkg/exposition"
	"proxywatch/pkg/storage"
)

// 指标文本读取上限（防止异常响应撑爆内存）
const maxMetricsBodyBytes = 16 << 20

// Config 采集调度器配置
type Config struct {
	// 指标暴露地址
	MetricsURL string `yaml:"metrics-url" json:"metrics_url"`
	// 可选的Basic Auth用户名
	Username string `yaml:"username" json:"username,omitempty"`
	// 可选的Basic Auth密码
	Password string `yaml:"password" json:"password,omitempty"`
	// 采集间隔（秒）
	IntervalSeconds int `yaml:"interval-seconds" json:"interval_seconds"`
	// 单次拉取超时（秒）
	FetchTimeoutSeconds int `yaml:"fetch-timeout-seconds" json:"fetch_timeout_seconds"`
}

// Validate 校验采集配置
func (c Config) Validate() error {
	if c.MetricsURL == "" {
		return fmt.Errorf("指标暴露地址不能为空")
	}
	if c.IntervalSeconds <= 0 {
		return fmt.Errorf("采集间隔必须为正数: %d", c.IntervalSeconds)
	}
	return nil
}

// Status 调度器运行状态，供管理接口查询
type Status struct {
	// 是否在运行
	Running bool `json:"running"`
	// 上次采集周期的开始时间
	LastCycleAt time.Time `json:"last_cycle_at"`
	// 上次采集周期的错误，空表示成功
	LastError string `json:"last_error"`
	// 上个周期聚合出的服务数
	LastServiceCount int `json:"last_service_count"`
}

// Collector 采集调度器
// 驱动完整的采集周期：拉取→解析→聚合→持久化→评估→通知
// 单飞保护：上个周期未结束时跳过新的触发，绝不并发或排队
type Collector struct {
	config Config
	store  *storage.Storage
	engine *alerting.Engine
	logger *zap.Logger
	client *http.Client

	// 单飞保护标记
	running atomic.Bool

	statusMu sync.RWMutex
	status   Status

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建采集调度器
func New(config Config, store *storage.Storage, engine *alerting.Engine, logger *zap.Logger) *Collector {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	if config.FetchTimeoutSeconds <= 0 {
		config.FetchTimeoutSeconds = 10
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Collector{
		config: config,
		store:  store,
		engine: engine,
		logger: logger,
		client: &http.Client{
			Timeout: time.Duration(config.FetchTimeoutSeconds) * time.Second,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 启动采集循环
func (c *Collector) Start() error {
	if err := c.config.Validate(); err != nil {
		return err
	}

	c.wg.Add(1)
	go c.run()

	c.logger.Info("采集调度器已启动",
		zap.String("url", c.config.MetricsURL),
		zap.Int("interval_seconds", c.config.IntervalSeconds))
	return nil
}

// Stop 停止采集循环并等待在途周期结束
func (c *Collector) Stop() {
	c.cancel()
	c.wg.Wait()
	c.logger.Info("采集调度器已停止")
}

// Status 返回调度器当前状态
func (c *Collector) Status() Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	status := c.status
	status.Running = c.ctx.Err() == nil
	return status
}

// run 采集主循环
func (c *Collector) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(time.Duration(c.config.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	// 启动后立即执行一次，不等第一个tick
	c.tick()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// tick 触发一个采集周期，单飞保护下上个周期未结束时直接跳过
func (c *Collector) tick() {
	if !c.running.CompareAndSwap(false, true) {
		c.logger.Warn("上个采集周期尚未结束，跳过本次触发")
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("采集周期发生panic", zap.Any("panic", r))
				c.setStatus(fmt.Sprintf("panic: %v", r), 0)
			}
		}()

		if err := c.runCycle(c.ctx); err != nil {
			c.logger.Error("采集周期失败", zap.Error(err))
			c.setStatus(err.Error(), 0)
		}
	}()
}

// runCycle 执行一个完整的采集周期
// 指标源不可用时提前返回、不落任何数据；
// 持久化失败时仍用内存中的聚合做阈值评估，不因存储故障漏报
func (c *Collector) runCycle(ctx context.Context) error {
	startedAt := time.Now()

	text, err := c.fetch(ctx)
	if err != nil {
		return fmt.Errorf("拉取指标失败: %w", err)
	}

	samples := exposition.Parse(text)
	aggregates := aggregator.Aggregate(samples)
	if len(aggregates) == 0 {
		c.logger.Debug("本周期没有可聚合的服务指标", zap.Int("samples", len(samples)))
		c.setStatus("", 0)
		return nil
	}

	saved, err := c.store.SaveAggregates(ctx, aggregates)
	if err != nil {
		c.logger.Error("持久化聚合失败，仍继续评估阈值", zap.Error(err))
	} else {
		c.logger.Debug("聚合已持久化",
			zap.Int("saved", saved),
			zap.Duration("elapsed", time.Since(startedAt)))
	}

	c.engine.Evaluate(ctx, aggregates)

	c.setStatus("", len(aggregates))
	return nil
}

// fetch 拉取指标暴露文本
func (c *Collector) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.MetricsURL, nil)
	if err != nil {
		return "", err
	}
	if c.config.Username != "" {
		req.SetBasicAuth(c.config.Username, c.config.Password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("指标源返回异常状态码: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetricsBodyBytes))
	if err != nil {
		return "", fmt.Errorf("读取响应体失败: %w", err)
	}
	return string(body), nil
}

// setStatus 更新调度器状态
func (c *Collector) setStatus(lastError string, serviceCount int) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.status.LastCycleAt = time.Now()
	c.status.LastError = lastError
	c.status.LastServiceCount = serviceCount
}
