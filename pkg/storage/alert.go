package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"proxywatch/pkg/common"
	"proxywatch/pkg/models"
)

// CreateAlert 创建告警记录
func (s *Storage) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if err := s.db.WithContext(ctx).Create(alert).Error; err != nil {
		return fmt.Errorf("创建告警记录失败: %w", err)
	}
	return nil
}

// GetAlert 查询指定ID的告警
func (s *Storage) GetAlert(ctx context.Context, id uint) (*models.Alert, error) {
	var alert models.Alert
	err := s.db.WithContext(ctx).First(&alert, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, common.NewNotFoundError(fmt.Sprintf("告警不存在: %d", id), err)
		}
		return nil, fmt.Errorf("查询告警失败: %w", err)
	}
	return &alert, nil
}

// AlertQuery 告警列表查询参数
type AlertQuery struct {
	// 状态过滤，空表示全部
	Status models.AlertStatus
	// 服务名称过滤，空表示全部
	ServiceName string
	// 返回条数上限，0表示使用默认值
	Limit int
}

// ListAlerts 按条件查询告警，按触发时间倒序返回
func (s *Storage) ListAlerts(ctx context.Context, query AlertQuery) ([]*models.Alert, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	db := s.db.WithContext(ctx).Model(&models.Alert{})
	if query.Status != "" {
		db = db.Where("status = ?", query.Status)
	}
	if query.ServiceName != "" {
		db = db.Where("service_name = ?", query.ServiceName)
	}

	var alerts []*models.Alert
	if err := db.Order("created_at DESC").Limit(limit).Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("查询告警列表失败: %w", err)
	}
	return alerts, nil
}

// UpdateAlertStatus 更新告警状态及相关字段
// 状态机校验由告警引擎负责，这里只做持久化
func (s *Storage) UpdateAlertStatus(ctx context.Context, alert *models.Alert) error {
	err := s.db.WithContext(ctx).Model(&models.Alert{}).
		Where("id = ?", alert.ID).
		Select("status", "acknowledged_by_id", "acknowledged_at", "resolved_at").
		Updates(alert).Error
	if err != nil {
		return fmt.Errorf("更新告警状态失败: %w", err)
	}
	return nil
}

// CreateNotificationLog 写入一条通知日志
func (s *Storage) CreateNotificationLog(ctx context.Context, log *models.NotificationLog) error {
	if err := s.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("写入通知日志失败: %w", err)
	}
	return nil
}

// ListNotificationLogs 查询最近的通知日志，按时间倒序返回
func (s *Storage) ListNotificationLogs(ctx context.Context, limit int) ([]*models.NotificationLog, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	var logs []*models.NotificationLog
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("查询通知日志失败: %w", err)
	}
	return logs, nil
}

// CreateOwnerNotification 向站长收件箱写入一条站内通知
func (s *Storage) CreateOwnerNotification(ctx context.Context, title, content string) (uint, error) {
	notification := &models.OwnerNotification{
		Title:     title,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		return 0, fmt.Errorf("写入站内通知失败: %w", err)
	}
	return notification.ID, nil
}
