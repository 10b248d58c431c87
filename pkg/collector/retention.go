package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"proxywatch/pkg/storage"
)

// RetentionConfig 历史数据保留策略配置
type RetentionConfig struct {
	// 聚合历史保留天数
	Days int `yaml:"days" json:"days"`
	// 清理任务的cron表达式（6字段，含秒），默认每天凌晨3点
	CronSpec string `yaml:"cron" json:"cron"`
}

// Validate 校验保留策略配置
func (c RetentionConfig) Validate() error {
	if c.Days <= 0 {
		return fmt.Errorf("保留天数必须为正数: %d", c.Days)
	}
	return nil
}

// RetentionJob 按保留策略定期清理聚合历史的后台任务
type RetentionJob struct {
	config RetentionConfig
	store  *storage.Storage
	logger *zap.Logger
	cron   *cron.Cron
}

// NewRetentionJob 创建清理任务
func NewRetentionJob(config RetentionConfig, store *storage.Storage, logger *zap.Logger) *RetentionJob {
	if config.CronSpec == "" {
		config.CronSpec = "0 0 3 * * *"
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	return &RetentionJob{
		config: config,
		store:  store,
		logger: logger,
		cron:   cron.New(cron.WithSeconds()),
	}
}

// Start 注册并启动清理任务
func (j *RetentionJob) Start() error {
	if err := j.config.Validate(); err != nil {
		return err
	}

	_, err := j.cron.AddFunc(j.config.CronSpec, j.runOnce)
	if err != nil {
		return fmt.Errorf("注册清理任务失败: %w", err)
	}

	j.cron.Start()
	j.logger.Info("历史清理任务已启动",
		zap.String("cron", j.config.CronSpec),
		zap.Int("retention_days", j.config.Days))
	return nil
}

// Stop 停止清理任务并等待在途执行结束
func (j *RetentionJob) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("历史清理任务已停止")
}

// runOnce 执行一次清理
func (j *RetentionJob) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := j.store.PruneOlderThan(ctx, j.config.Days)
	if err != nil {
		j.logger.Error("清理过期聚合失败", zap.Error(err))
		return
	}
	j.logger.Info("清理过期聚合完成", zap.Int64("deleted", deleted))
}
