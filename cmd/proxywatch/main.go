// proxywatch 反向代理遥测与告警子系统
//
// 周期性拉取边缘代理控制面的指标暴露文本，聚合为每服务统计并持久化，
// 评估管理员配置的阈值规则，触发时向多个渠道分发通知
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"proxywatch/internal/config"
	"proxywatch/pkg/alerting"
	"proxywatch/pkg/api"
	"proxywatch/pkg/collector"
	"proxywatch/pkg/common"
	"proxywatch/pkg/notifier"
	"proxywatch/pkg/storage"
	"proxywatch/pkg/utils"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "启动失败: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := common.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer logger.Sync()

	db, err := cfg.Database.Open()
	if err != nil {
		return err
	}
	if err := storage.AutoMigrate(db); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}

	store := storage.New(db, logger.Named("storage"))
	notifierMgr := notifier.NewManager(cfg.Channels, store, logger.Named("notifier"))
	engine := alerting.NewEngine(store, notifierMgr, logger.Named("alerting"))

	coll := collector.New(cfg.Collector, store, engine, logger.Named("collector"))
	if err := coll.Start(); err != nil {
		return err
	}
	defer coll.Stop()

	retention := collector.NewRetentionJob(cfg.Retention, store, logger.Named("retention"))
	if err := retention.Start(); err != nil {
		return err
	}
	defer retention.Stop()

	app := fiber.New(fiber.Config{
		AppName:      "proxywatch",
		ErrorHandler: errorHandler,
	})
	api.NewAPI(store, engine, coll, logger.Named("api")).RegisterRoutes(app.Group("/api"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(cfg.Server.Addr())
	}()
	logger.Info("proxywatch已启动", zap.String("addr", cfg.Server.Addr()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP服务异常退出: %w", err)
	case sig := <-quit:
		logger.Info("接收到退出信号，开始关闭", zap.String("signal", sig.String()))
	}

	if err := app.Shutdown(); err != nil {
		logger.Error("关闭HTTP服务失败", zap.Error(err))
	}
	return nil
}

// errorHandler fiber全局错误处理
func errorHandler(c *fiber.Ctx, err error) error {
	return utils.ErrorResponse(c, err)
}
