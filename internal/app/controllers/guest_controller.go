package controllers

import (
	"guestnet-http-service/internal/app/middleware"
	"guestnet-http-service/internal/domain/models"
	"guestnet-http-service/internal/domain/services"
	"guestnet-http-service/internal/domain/services/container"
	"guestnet-http-service/internal/error/code"
	"guestnet-http-service/internal/error/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// InterfaceGuestController 定义访客控制器接口
type InterfaceGuestController interface {
	Login()
	GetSession()
	GetQuotas()
	ReportUsage()
	Logout()
}

// GuestController 处理访客侧的会话请求
type GuestController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
}

// NewGuestController 创建一个新的访客控制器
func NewGuestController(ctx *gin.Context, container *container.ServiceContainer) *GuestController {
	return &GuestController{
		Ctx:       ctx,
		Container: container,
	}
}

// GuestLoginRequest 访客登录请求
type GuestLoginRequest struct {
	Code       string `json:"code" binding:"required" example:"XK7P2M9Q"`
	DeviceInfo string `json:"device_info" example:"iPhone 15; iOS 17.2"`
}

// UsageReportRequest 用量上报请求
type UsageReportRequest struct {
	DataConsumedMB *int64 `json:"data_consumed_mb" binding:"required" example:"350"`
}

// HandleGuestFunc 返回一个处理访客请求的Gin处理函数
func HandleGuestFunc(container *container.ServiceContainer, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := NewGuestController(ctx, container)

		switch method {
		case "login":
			controller.Login()
		case "getSession":
			controller.GetSession()
		case "getQuotas":
			controller.GetQuotas()
		case "reportUsage":
			controller.ReportUsage()
		case "logout":
			controller.Logout()
		default:
			response.FailWithMessage(ctx, code.ErrBind, "无效的方法", nil)
		}
	}
}

// requestMeta 从请求上下文提取审计所需的来源信息
func requestMeta(ctx *gin.Context) services.RequestMeta {
	return services.RequestMeta{
		RequestID: uuid.New().String(),
		IPAddress: ctx.ClientIP(),
		UserAgent: ctx.GetHeader("User-Agent"),
	}
}

// sessionView 构造统一的会话视图
func sessionView(session *models.GuestSession) gin.H {
	return gin.H{
		"session_id": session.ID,
		"status":     session.Status,
		"started_at": session.StartedAt,
		"expires_at": session.ExpiresAt,
		"quota": gin.H{
			"data_mb":      session.DataQuotaMB,
			"time_minutes": session.TimeQuotaMinutes,
		},
		"consumed": gin.H{
			"data_mb":      session.DataConsumedMB,
			"time_minutes": session.TimeConsumedMinutes,
		},
		"remaining": gin.H{
			"data_mb":      session.DataRemainingMB(),
			"time_minutes": session.TimeRemainingMinutes(),
		},
		"usage_percent": gin.H{
			"data": session.DataUsagePercent(),
			"time": session.TimeUsagePercent(),
		},
		"warnings":      session.Warnings(),
		"terminated_at": session.TerminatedAt,
	}
}

// 1. Login 访客凭访问码登录并创建会话
// @Summary      访客登录
// @Description  校验访问码，创建计量会话并返回会话令牌。任何校验失败统一返回访问被拒绝，不暴露具体原因
// @Tags         Guest
// @Accept       json
// @Produce      json
// @Param        request body GuestLoginRequest true "登录请求参数"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /guest/login [post]
func (c *GuestController) Login() {
	var req GuestLoginRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数", nil)
		return
	}

	meta := requestMeta(c.Ctx)
	sessionService := c.Container.GetService("guest_session").(services.InterfaceGuestSessionService)

	session, accessCode, err := sessionService.CreateSession(req.Code, req.DeviceInfo, meta)
	if err != nil {
		// 具体失败原因只进审计日志，对外一律访问被拒绝
		if services.IsValidationFailure(err) {
			response.Fail(c.Ctx, code.ErrAccessDenied, nil)
			return
		}
		if err == services.ErrConflictRetryExhausted {
			response.Fail(c.Ctx, code.ErrSessionConflict, nil)
			return
		}
		response.FailWithMessage(c.Ctx, code.ErrDatabase, "创建会话失败", nil)
		return
	}

	jwtService := c.Container.GetService("jwt").(services.InterfaceJWTService)
	token, err := jwtService.GenerateSessionToken(session)
	if err != nil {
		response.FailWithMessage(c.Ctx, code.ErrDatabase, "生成令牌失败", nil)
		return
	}

	response.Success(c.Ctx, gin.H{
		"token":          token,
		"session":        sessionView(session),
		"remaining_uses": accessCode.RemainingUses(),
	})
}

// 2. GetSession 获取当前会话详情
// @Summary      获取会话详情
// @Description  返回令牌绑定会话的状态、配额与消耗。时间消耗按墙钟实时推导
// @Tags         Guest
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /guest/session [get]
// @Security     BearerAuth
func (c *GuestController) GetSession() {
	sessionID, ok := middleware.GetSessionID(c.Ctx)
	if !ok {
		response.Fail(c.Ctx, code.ErrSessionTokenInvalid, nil)
		return
	}

	sessionService := c.Container.GetService("guest_session").(services.InterfaceGuestSessionService)
	session, err := sessionService.GetSession(sessionID)
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

// 3. GetQuotas 查询配额余量并评估阈值
// @Summary      查询配额余量
// @Description  返回两个维度的配额、消耗与余量，并触发尚未发送的阈值告警
// @Tags         Guest
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /guest/session/quotas [get]
// @Security     BearerAuth
func (c *GuestController) GetQuotas() {
	sessionID, ok := middleware.GetSessionID(c.Ctx)
	if !ok {
		response.Fail(c.Ctx, code.ErrSessionTokenInvalid, nil)
		return
	}

	meta := requestMeta(c.Ctx)
	sessionService := c.Container.GetService("guest_session").(services.InterfaceGuestSessionService)

	session, alerts, err := sessionService.CheckThresholds(sessionID, meta)
	if err != nil {
		if err == services.ErrSessionNotFound {
			response.Fail(c.Ctx, code.ErrSessionNotFound, nil)
			return
		}
		response.FailWithMessage(c.Ctx, code.ErrDatabase, "查询配额失败", nil)
		return
	}

	view := sessionView(session)
	view["new_alerts"] = alerts
	response.Success(c.Ctx, view)
}

// 4. ReportUsage 上报数据用量
// @Summary      上报数据用量
// @Description  接收计量探针上报的累计数据消耗。上报值与存量取较大者合并，重复上报幂等；达到或超过配额时会话被终止
// @Tags         Guest
// @Accept       json
// @Produce      json
// @Param        request body UsageReportRequest true "累计数据消耗(MB)"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /guest/session/usage [post]
// @Security     BearerAuth
func (c *GuestController) ReportUsage() {
	sessionID, ok := middleware.GetSessionID(c.Ctx)
	if !ok {
		response.Fail(c.Ctx, code.ErrSessionTokenInvalid, nil)
		return
	}

	var req UsageReportRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil || req.DataConsumedMB == nil || *req.DataConsumedMB < 0 {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数", nil)
		return
	}

	meta := requestMeta(c.Ctx)
	sessionService := c.Container.GetService("guest_session").(services.InterfaceGuestSessionService)

	session, exceeded, alerts, err := sessionService.ReportUsage(sessionID, *req.DataConsumedMB, meta)
	if err != nil {
		if err == services.ErrSessionNotFound {
			response.Fail(c.Ctx, code.ErrSessionNotFound, nil)
			return
		}
		response.FailWithMessage(c.Ctx, code.ErrDatabase, "上报用量失败", nil)
		return
	}

	view := sessionView(session)
	view["quota_exceeded"] = exceeded
	view["new_alerts"] = alerts
	response.Success(c.Ctx, view)
}

// 5. Logout 访客登出并终止会话
// @Summary      访客登出
// @Description  主动终止当前会话并返回用量汇总。对已结束的会话幂等
// @Tags         Guest
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /guest/logout [post]
// @Security     BearerAuth
func (c *GuestController) Logout() {
	sessionID, ok := middleware.GetSessionID(c.Ctx)
	if !ok {
		response.Fail(c.Ctx, code.ErrSessionTokenInvalid, nil)
		return
	}

	meta := requestMeta(c.Ctx)
	sessionService := c.Container.GetService("guest_session").(services.InterfaceGuestSessionService)

	session, err := sessionService.TerminateSession(sessionID, "user", meta)
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
