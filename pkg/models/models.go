// Package models 定义反向代理遥测系统使用的数据模型
package models

import (
	"time"
)

// MetricSample 表示从指标暴露文本中解析出的一个样本
// 仅在单次采集周期内存在，聚合后即丢弃，不做持久化
type MetricSample struct {
	// 指标名称
	Name string `json:"name"`
	// 标签集合（键唯一、无序）
	Labels map[string]string `json:"labels,omitempty"`
	// 样本值
	Value float64 `json:"value"`
	// 可选的时间戳（epoch毫秒，0表示未携带）
	Timestamp int64 `json:"timestamp,omitempty"`
}

// ServiceAggregate 表示一个服务在单个采集周期内的聚合统计
// 由聚合器创建，历史存储负责持久化，写入后不再修改（仅追加）
type ServiceAggregate struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`
	// 服务名称（service标签，缺失时回退entrypoint标签）
	ServiceName string `gorm:"type:varchar(191);not null;index:idx_service_collected,priority:1;comment:服务名称" json:"service_name"`
	// 请求总数
	RequestsTotal int64 `gorm:"not null;default:0;comment:请求总数" json:"requests_total"`
	// 4xx错误数
	Errors4xx int64 `gorm:"column:errors_4xx;not null;default:0;comment:4xx错误数" json:"errors_4xx"`
	// 5xx错误数
	Errors5xx int64 `gorm:"column:errors_5xx;not null;default:0;comment:5xx错误数" json:"errors_5xx"`
	// 平均延迟（毫秒）
	AvgLatencyMs int64 `gorm:"not null;default:0;comment:平均延迟毫秒" json:"avg_latency_ms"`
	// 每秒请求数（持久化时根据上一周期回填）
	RequestsPerSecond float64 `gorm:"not null;default:0;comment:每秒请求数" json:"requests_per_second"`
	// 采集时间
	CollectedAt time.Time `gorm:"not null;index:idx_service_collected,priority:2;comment:采集时间" json:"collected_at"`
}

// TableName 设置表名
func (ServiceAggregate) TableName() string {
	return "proxy_service_aggregates"
}

// TrendPeriod 表示趋势统计的时间窗口
type TrendPeriod string

const (
	// TrendPeriodHour 最近一小时，5分钟粒度
	TrendPeriodHour TrendPeriod = "hour"
	// TrendPeriodDay 最近一天，小时粒度
	TrendPeriodDay TrendPeriod = "day"
	// TrendPeriodWeek 最近一周，天粒度
	TrendPeriodWeek TrendPeriod = "week"
)

// TrendResult 表示按桶对齐的趋势序列
// 各数组与Labels一一对应，仅包含有观测值的桶，顺序为首次出现顺序
type TrendResult struct {
	Labels        []string `json:"labels"`
	RequestsTotal []int64  `json:"requests_total"`
	AvgLatency    []int64  `json:"avg_latency"`
	Errors4xx     []int64  `json:"errors_4xx"`
	Errors5xx     []int64  `json:"errors_5xx"`
}
