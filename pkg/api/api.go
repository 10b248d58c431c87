// Package api 提供遥测与告警子系统的HTTP管理接口
package api

import (
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"proxywatch/pkg/alerting"
	"proxywatch/pkg/collector"
	"proxywatch/pkg/models"
	"proxywatch/pkg/storage"
	"proxywatch/pkg/utils"
)

// API 遥测与告警子系统的HTTP管理接口
type API struct {
	store     *storage.Storage
	engine    *alerting.Engine
	collector *collector.Collector
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewAPI 创建管理接口实例
func NewAPI(store *storage.Storage, engine *alerting.Engine, c *collector.Collector, logger *zap.Logger) *API {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &API{
		store:     store,
		engine:    engine,
		collector: c,
		validate:  validator.New(),
		logger:    logger,
	}
}

// RegisterRoutes 注册所有管理接口路由
func (api *API) RegisterRoutes(router fiber.Router) {
	group := router.Group("/proxywatch")

	// 阈值规则CRUD
	thresholdGroup := group.Group("/thresholds")
	thresholdGroup.Get("/", api.listThresholds)
	thresholdGroup.Post("/", api.createThreshold)
	thresholdGroup.Get("/:id", api.getThreshold)
	thresholdGroup.Put("/:id", api.updateThreshold)
	thresholdGroup.Delete("/:id", api.deleteThreshold)
	thresholdGroup.Patch("/:id/toggle", api.toggleThreshold)

	// 告警查询与生命周期操作
	alertGroup := group.Group("/alerts")
	alertGroup.Get("/", api.listAlerts)
	alertGroup.Post("/:id/acknowledge", api.acknowledgeAlert)
	alertGroup.Post("/:id/resolve", api.resolveAlert)

	// 遥测历史与趋势
	group.Get("/aggregates", api.listAggregates)
	group.Get("/trend", api.getTrend)

	// 通知日志与调度状态
	group.Get("/notifications", api.listNotificationLogs)
	group.Get("/status", api.getStatus)

	api.logger.Info("遥测管理接口路由已注册")
}

// parseID 解析路径中的ID参数
func parseID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

// listThresholds 查询所有阈值规则
func (api *API) listThresholds(c *fiber.Ctx) error {
	thresholds, err := api.store.ListThresholds(c.Context())
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return utils.SuccessResponse(c, thresholds)
}

// getThreshold 查询单条阈值规则
func (api *API) getThreshold(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return utils.FailResponse(c, utils.StatusBadRequest, "无效的规则ID")
	}

	threshold, err := api.store.GetThreshold(c.Context(), id)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return utils.SuccessResponse(c, threshold)
}

// createThreshold 创建阈值规则
func (api *API) createThreshold(c *fiber.Ctx) error {
	threshold := &models.AlertThreshold{}
	if err := c.BodyParser(threshold); err != nil {
		return utils.FailResponse(c, utils.StatusBadRequest, "请求体解析失败")
	}
	if threshold.WindowMinutes == 0 {
		threshold.WindowMinutes = 5
	}
	if err := api.validate.Struct(threshold); err != nil {
		return utils.FailResponse(c, utils.StatusBadRequest, "规则参数无效: "+err.Error())
	}

	// 新建规则不允许携带触发时间
	threshold.ID = 0
	threshold.LastTriggeredAt = nil

	if err := api.store.CreateThreshold(c.Context(), threshold); err != nil {
		return utils.ErrorResponse(c, err)
	}
	return utils.SuccessResponse(c, threshold)
}

// updateThreshold 更新阈值规则
func (api *API) updateThreshold(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return utils.FailResponse(c, utils.StatusBadRequest, "无效的规则ID")
	}

	threshold := &models.AlertThreshold{}
	if err := c.BodyParser(threshold); err != nil {
		return utils.FailResponse(c, utils.StatusBadRequest, "请求体解析失败")
	}
	threshold.ID = id
	if err := api.validate.Struct(threshold); err != nil {
		return utils.FailResponse(c, utils.StatusBadRequest, "规则参数无效: "+err.Error())
	}

	if err := api.store.UpdateThreshold(c.Context(), threshold); err != nil {
		return utils.ErrorResponse(c, err)
	}
	return utils.SuccessResponse(c, threshold)
}

// deleteThreshold 删除阈值规则
func (api *API) deleteThreshold(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return utils.FailResponse(c, utils.StatusBadRequest, "无效的规则ID")
	}

	if err := api.store.DeleteThreshold(c.Context(), id); err != nil {
		return utils.ErrorResponse(c, err)
	}
	return utils.SuccessResponse(c, nil)
}

// toggleThreshold 切换阈值规则启用状态
func (api *API) toggleThreshold(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return utils.FailResponse(c, utils.StatusBadRequest, "无效的规则ID")
	}

	threshold, err := api.store.ToggleThreshold(c.Context(), id)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return utils.SuccessResponse(c, threshold)
}

// listAlerts 查询告警列表
func (api *API) listAlerts(c *fiber.Ctx) error {
	query := storage.AlertQuery{
		Status:      models.AlertStatus(c.Query("status")),
		ServiceName: c.Query("service"),
		Limit:       c.QueryInt("limit"),
	}

	alerts, err := api.store.ListAlerts(c.Context(), query)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return utils.SuccessResponse(c, alerts)
}

// acknowledgeRequest 确认告警的请求体
type acknowledgeRequest struct {
	UserID uint `json:"user_id" validate:"required"`
}

// acknowledgeAlert 确认告警
func (api *API) acknowledgeAlert(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return utils.FailResponse(c, utils.StatusBadRequest, "无效的告警ID")
	}

	req := &acknowledgeRequest{}
	if err := c.BodyParser(req); err != nil {
		return utils.FailResponse(c, utils.StatusBadRequest, "请求体解析失败")
	}
	if err := api.validate.Struct(req); err != nil {
		return utils.FailResponse(c, utils.StatusBadRequest, "缺少操作人ID")
	}

	alert, err := api.engine.Acknowledge(c.Context(), id, req.UserID)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return utils.SuccessResponse(c, alert)
}

// resolveAlert 解决告警
func (api *API) resolveAlert(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return utils.FailResponse(c, utils.StatusBadRequest, "无效的告警ID")
	}

	alert, err := api.engine.Resolve(c.Context(), id)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return utils.SuccessResponse(c, alert)
}

// listAggregates 查询聚合历史
func (api *API) listAggregates(c *fiber.Ctx) error {
	query := storage.AggregateQuery{
		ServiceName: c.Query("service"),
		Limit:       c.QueryInt("limit"),
	}

	if start := c.Query("start"); start != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return utils.FailResponse(c, utils.StatusBadRequest, "无效的起始时间")
		}
		query.Start = t
	}
	if end := c.Query("end"); end != "" {
		t, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return utils.FailResponse(c, utils.StatusBadRequest, "无效的结束时间")
		}
		query.End = t
	}

	aggregates, err := api.store.QueryAggregates(c.Context(), query)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return utils.SuccessResponse(c, aggregates)
}

// getTrend 查询趋势序列
func (api *API) getTrend(c *fiber.Ctx) error {
	period := models.TrendPeriod(c.Query("period", string(models.TrendPeriodHour)))

	trend, err := api.store.Trend(c.Context(), c.Query("service"), period)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return utils.SuccessResponse(c, trend)
}

// listNotificationLogs 查询最近的通知日志
func (api *API) listNotificationLogs(c *fiber.Ctx) error {
	logs, err := api.store.ListNotificationLogs(c.Context(), c.QueryInt("limit"))
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return utils.SuccessResponse(c, logs)
}

// getStatus 查询采集调度器状态
func (api *API) getStatus(c *fiber.Ctx) error {
	return utils.SuccessResponse(c, api.collector.Status())
}
