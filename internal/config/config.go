// Package config 提供应用配置的加载与校验
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"proxywatch/pkg/collector"
	"proxywatch/pkg/common"
	"proxywatch/pkg/notifier"
)

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr 返回监听地址
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseType 数据库类型
type DatabaseType string

const (
	// DatabaseMySQL MySQL数据库
	DatabaseMySQL DatabaseType = "mysql"
	// DatabasePostgres PostgreSQL数据库
	DatabasePostgres DatabaseType = "postgres"
	// DatabaseSQLite SQLite数据库，适合单机小型部署
	DatabaseSQLite DatabaseType = "sqlite"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type     DatabaseType `yaml:"type"`
	Host     string       `yaml:"host"`
	Port     int          `yaml:"port"`
	User     string       `yaml:"user"`
	Password string       `yaml:"password"`
	DbName   string       `yaml:"db-name"`
	// SQLite数据文件路径
	Path string `yaml:"path"`
}

// Open 按配置打开数据库连接
func (c DatabaseConfig) Open() (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch c.Type {
	case DatabaseMySQL:
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.DbName)
		dialector = mysql.Open(dsn)
	case DatabasePostgres:
		dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=disable password=%s",
			c.Host, c.Port, c.User, c.DbName, c.Password)
		dialector = postgres.Open(dsn)
	case DatabaseSQLite:
		path := c.Path
		if path == "" {
			path = "proxywatch.db"
		}
		dialector = sqlite.Open(path)
	default:
		return nil, fmt.Errorf("未知的数据库类型: %s", c.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("打开数据库连接失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// Config 应用配置
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Log       common.LogConfig          `yaml:"log"`
	Database  DatabaseConfig            `yaml:"db"`
	Collector collector.Config          `yaml:"collector"`
	Retention collector.RetentionConfig `yaml:"retention"`
	Channels  notifier.ChannelsConfig   `yaml:"channels"`
}

// Load 从文件加载并校验配置
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig 返回带默认值的配置
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8780},
		Log: common.LogConfig{
			Level:   common.InfoLevel,
			Console: true,
		},
		Database: DatabaseConfig{Type: DatabaseSQLite},
		Collector: collector.Config{
			IntervalSeconds:     30,
			FetchTimeoutSeconds: 10,
		},
		Retention: collector.RetentionConfig{
			Days:     30,
			CronSpec: "0 0 3 * * *",
		},
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := c.Collector.Validate(); err != nil {
		return fmt.Errorf("采集配置无效: %w", err)
	}
	if err := c.Retention.Validate(); err != nil {
		return fmt.Errorf("保留策略配置无效: %w", err)
	}
	if err := c.Channels.Validate(); err != nil {
		return fmt.Errorf("通知渠道配置无效: %w", err)
	}
	return nil
}
