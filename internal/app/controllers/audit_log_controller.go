package controllers

import (
	"strconv"

	"guestnet-http-service/internal/domain/models"
	"guestnet-http-service/internal/domain/services"
	"guestnet-http-service/internal/domain/services/container"
	"guestnet-http-service/internal/error/code"
	"guestnet-http-service/internal/error/response"

	"github.com/gin-gonic/gin"
)

// InterfaceAuditLogController 定义审计日志控制器接口
type InterfaceAuditLogController interface {
	GetAuditLogs()
}

// AuditLogController 审计日志查询控制器
type AuditLogController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
}

// NewAuditLogController 创建一个新的审计日志控制器
func NewAuditLogController(ctx *gin.Context, container *container.ServiceContainer) *AuditLogController {
	return &AuditLogController{
		Ctx:       ctx,
		Container: container,
	}
}

// HandleAuditLogFunc 返回一个处理审计日志请求的Gin处理函数
func HandleAuditLogFunc(container *container.ServiceContainer, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := NewAuditLogController(ctx, container)

		switch method {
		case "getAuditLogs":
			controller.GetAuditLogs()
		default:
			response.FailWithMessage(ctx, code.ErrBind, "无效的方法", nil)
		}
	}
}

// GetAuditLogs 查询审计日志
// @Summary      查询审计日志
// @Description  分页查询只追加的审计日志，支持按访问码、会话、动作和结果过滤
// @Tags         AuditLog
// @Accept       json
// @Produce      json
// @Param        page query int false "页码, 默认为1"
// @Param        page_size query int false "每页条数, 默认为20"
// @Param        access_code_id query int false "访问码ID"
// @Param        session_id query int false "会话ID"
// @Param        action query string false "动作类型"
// @Param        result query string false "结果(success/failed)"
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  ErrorResponse
// @Router       /audit_logs [get]
// @Security     BearerAuth
func (c *AuditLogController) GetAuditLogs() {
	var query models.PaginationQuery
	_ = c.Ctx.ShouldBindQuery(&query)
	query.Normalize(20, 200)

	filter := services.AuditLogFilter{
		Action: c.Ctx.Query("action"),
		Result: c.Ctx.Query("result"),
	}
	if idStr := c.Ctx.Query("access_code_id"); idStr != "" {
		if id, err := strconv.ParseUint(idStr, 10, 32); err == nil {
			codeID := uint(id)
			filter.AccessCodeID = &codeID
		}
	}
	if idStr := c.Ctx.Query("session_id"); idStr != "" {
		if id, err := strconv.ParseUint(idStr, 10, 32); err == nil {
			sessionID := uint(id)
			filter.SessionID = &sessionID
		}
	}

	auditService := c.Container.GetService("audit").(services.InterfaceAuditService)
	logs, total, err := auditService.GetAuditLogs(query.Page, query.PageSize, filter)
	if err != nil {
		response.FailWithMessage(c.Ctx, code.ErrDatabase, "查询审计日志失败: "+err.Error(), nil)
		return
	}

	response.Success(c.Ctx, gin.H{
		"pagination": models.NewPaginationResult(total, query.Page, query.PageSize),
		"data":       logs,
	})
}
