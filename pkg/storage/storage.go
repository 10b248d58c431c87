// Package storage 提供遥测与告警数据的持久化存储
package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"proxywatch/pkg/common"
	"proxywatch/pkg/models"
)

// Storage 历史存储，持有四张表的全部访问逻辑：
// 服务聚合（仅追加）、告警规则、告警记录、通知日志（仅追加）
type Storage struct {
	db     *gorm.DB
	logger *zap.Logger

	// 便于测试注入时间
	now func() time.Time
}

// New 创建历史存储实例
func New(db *gorm.DB, logger *zap.Logger) *Storage {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Storage{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// AutoMigrate 执行存储相关的数据库迁移
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.ServiceAggregate{},
		&models.AlertThreshold{},
		&models.Alert{},
		&models.NotificationLog{},
		&models.OwnerNotification{},
	)
}

// SaveAggregates 持久化一个采集周期的聚合结果，返回写入条数
// 写入前根据同服务的上一条记录回填RequestsPerSecond：
// (当前总数-上次总数)/间隔秒数，计数器回绕（代理重启）或首个周期时保持0
func (s *Storage) SaveAggregates(ctx context.Context, aggregates []*models.ServiceAggregate) (int, error) {
	if len(aggregates) == 0 {
		return 0, nil
	}

	for _, agg := range aggregates {
		previous, err := s.latestBefore(ctx, agg.ServiceName, agg.CollectedAt)
		if err != nil {
			s.logger.Warn("查询上一周期聚合失败，rps保持0",
				zap.String("service", agg.ServiceName), zap.Error(err))
			continue
		}
		if previous == nil {
			continue
		}

		elapsed := agg.CollectedAt.Sub(previous.CollectedAt).Seconds()
		delta := agg.RequestsTotal - previous.RequestsTotal
		if elapsed > 0 && delta > 0 {
			agg.RequestsPerSecond = float64(delta) / elapsed
		}
	}

	if err := s.db.WithContext(ctx).Create(&aggregates).Error; err != nil {
		return 0, fmt.Errorf("写入服务聚合失败: %w", err)
	}

	return len(aggregates), nil
}

// latestBefore 查询某服务在指定时间之前最近的一条聚合
func (s *Storage) latestBefore(ctx context.Context, serviceName string, before time.Time) (*models.ServiceAggregate, error) {
	var agg models.ServiceAggregate
	err := s.db.WithContext(ctx).
		Where("service_name = ? AND collected_at < ?", serviceName, before).
		Order("collected_at DESC").
		First(&agg).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &agg, nil
}

// AggregateQuery 聚合历史查询参数
type AggregateQuery struct {
	// 服务名称过滤，空表示全部
	ServiceName string
	// 起始时间（含），零值表示不限制
	Start time.Time
	// 结束时间（含），零值表示不限制
	End time.Time
	// 返回条数上限，0表示使用默认值
	Limit int
}

// 查询默认与最大条数限制
const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// QueryAggregates 按条件查询聚合历史，按采集时间倒序返回
func (s *Storage) QueryAggregates(ctx context.Context, query AggregateQuery) ([]*models.ServiceAggregate, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	db := s.db.WithContext(ctx).Model(&models.ServiceAggregate{})
	if query.ServiceName != "" {
		db = db.Where("service_name = ?", query.ServiceName)
	}
	if !query.Start.IsZero() {
		db = db.Where("collected_at >= ?", query.Start)
	}
	if !query.End.IsZero() {
		db = db.Where("collected_at <= ?", query.End)
	}

	var aggregates []*models.ServiceAggregate
	if err := db.Order("collected_at DESC").Limit(limit).Find(&aggregates).Error; err != nil {
		return nil, fmt.Errorf("查询服务聚合失败: %w", err)
	}
	return aggregates, nil
}

// PruneOlderThan 删除采集时间早于保留期的聚合行，返回删除条数
func (s *Storage) PruneOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, common.NewValidationError(fmt.Sprintf("保留天数必须为正数: %d", retentionDays), nil)
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	result := s.db.WithContext(ctx).
		Where("collected_at < ?", cutoff).
		Delete(&models.ServiceAggregate{})
	if result.Error != nil {
		return 0, fmt.Errorf("清理过期聚合失败: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.logger.Info("清理过期聚合完成",
			zap.Int64("deleted", result.RowsAffected),
			zap.Int("retention_days", retentionDays))
	}
	return result.RowsAffected, nil
}
