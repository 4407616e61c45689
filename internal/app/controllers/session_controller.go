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

// InterfaceSessionController 定义会话管理控制器接口
type InterfaceSessionController interface {
	GetSessions()
	GetSession()
	TerminateSession()
}

// SessionController 管理端会话控制器
type SessionController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
}

// NewSessionController 创建一个新的会话管理控制器
func NewSessionController(ctx *gin.Context, container *container.ServiceContainer) *SessionController {
	return &SessionController{
		Ctx:       ctx,
		Container: container,
	}
}

// HandleSessionFunc 返回一个处理会话管理请求的Gin处理函数
func HandleSessionFunc(container *container.ServiceContainer, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := NewSessionController(ctx, container)

		switch method {
		case "getSessions":
			controller.GetSessions()
		case "getSession":
			controller.GetSession()
		case "terminateSession":
			controller.TerminateSession()
		default:
			response.FailWithMessage(ctx, code.ErrBind, "无效的方法", nil)
		}
	}
}

// 1. GetSessions 获取会话列表
// @Summary      获取会话列表
// @Description  分页获取会话，支持按状态和访问码过滤
// @Tags         Session
// @Accept       json
// @Produce      json
// @Param        page query int false "页码, 默认为1"
// @Param        page_size query int false "每页条数, 默认为10"
// @Param        status query string false "会话状态(active/expired/terminated/quota_exceeded)"
// @Param        access_code_id query int false "访问码ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  ErrorResponse
// @Router       /sessions [get]
// @Security     BearerAuth
func (c *SessionController) GetSessions() {
	var query models.PaginationQuery
	_ = c.Ctx.ShouldBindQuery(&query)
	query.Normalize(10, 100)

	filter := services.SessionFilter{
		Status: c.Ctx.Query("status"),
	}
	if idStr := c.Ctx.Query("access_code_id"); idStr != "" {
		if id, err := strconv.ParseUint(idStr, 10, 32); err == nil {
			codeID := uint(id)
			filter.AccessCodeID = &codeID
		}
	}

	sessionService := c.Container.GetService("guest_session").(services.InterfaceGuestSessionService)
	sessions, total, err := sessionService.GetAllSessions(query.Page, query.PageSize, filter)
	if err != nil {
		response.FailWithMessage(c.Ctx, code.ErrDatabase, "查询会话列表失败: "+err.Error(), nil)
		return
	}

	var views []gin.H
	for i := range sessions {
		views = append(views, sessionView(&sessions[i]))
	}

	response.Success(c.Ctx, gin.H{
		"pagination": models.NewPaginationResult(total, query.Page, query.PageSize),
		"data":       views,
	})
}

// 2. GetSession 获取会话详情
// @Summary      获取会话详情
// @Description  根据ID获取会话详情，读取会惰性判定过期
// @Tags         Session
// @Accept       json
// @Produce      json
// @Param        id path int true "会话ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /sessions/{id} [get]
// @Security     BearerAuth
func (c *SessionController) GetSession() {
	idStr := c.Ctx.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		response.ParamError(c.Ctx, "无效的ID参数")
		return
	}

	sessionService := c.Container.GetService("guest_session").(services.InterfaceGuestSessionService)
	session, err := sessionService.GetSession(uint(id))
	if err != nil {
		if err == services.ErrSessionNotFound {
			response.Fail(c.Ctx, code.ErrSessionNotFound, nil)
			return
		}
		response.FailWithMessage(c.Ctx, code.ErrDatabase, "查询会话失败", nil)
		return
	}

	response.Success(c.Ctx, sessionView(session))
}

// 3. TerminateSession 强制终止会话
// @Summary      强制终止会话
// @Description  管理员强制下线指定会话。对已结束的会话幂等
// @Tags         Session
// @Accept       json
// @Produce      json
// @Param        id path int true "会话ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /sessions/{id}/terminate [post]
// @Security     BearerAuth
func (c *SessionController) TerminateSession() {
	idStr := c.Ctx.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		response.ParamError(c.Ctx, "无效的ID参数")
		return
	}

	sessionService := c.Container.GetService("guest_session").(services.InterfaceGuestSessionService)
	session, err := sessionService.TerminateSession(uint(id), "admin", requestMeta(c.Ctx))
	if err != nil {
		if err == services.ErrSessionNotFound {
			response.Fail(c.Ctx, code.ErrSessionNotFound, nil)
			return
		}
		response.FailWithMessage(c.Ctx, code.ErrDatabase, "终止会话失败", nil)
		return
	}

	response.Success(c.Ctx, sessionView(session))
}
