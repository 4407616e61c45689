package controllers

import (
	"strconv"
	"time"

	"guestnet-http-service/internal/domain/models"
	"guestnet-http-service/internal/domain/services"
	"guestnet-http-service/internal/domain/services/container"
	"guestnet-http-service/internal/error/code"
	"guestnet-http-service/internal/error/response"

	"github.com/gin-gonic/gin"
)

// InterfaceAccessCodeController 定义访问码控制器接口
type InterfaceAccessCodeController interface {
	GetAccessCodes()
	GetAccessCode()
	CreateAccessCode()
	DeactivateAccessCode()
	DeleteAccessCode()
}

// AccessCodeController 访问码管理控制器
type AccessCodeController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
}

// NewAccessCodeController 创建一个新的访问码控制器
func NewAccessCodeController(ctx *gin.Context, container *container.ServiceContainer) *AccessCodeController {
	return &AccessCodeController{
		Ctx:       ctx,
		Container: container,
	}
}

// CreateAccessCodeRequest 创建访问码请求
type CreateAccessCodeRequest struct {
	Level                  string `json:"level" binding:"required" example:"standard"`
	CustomDataQuotaMB      *int64 `json:"custom_data_quota_mb" example:"4096"`
	CustomTimeQuotaMinutes *int64 `json:"custom_time_quota_minutes" example:"720"`
	ExpiresAt              string `json:"expires_at" binding:"required" example:"2026-09-30T00:00:00Z"`
	MaxUses                int    `json:"max_uses" example:"1"`
	Remark                 string `json:"remark" example:"三楼会议室访客"`
}

// HandleAccessCodeFunc 返回一个处理访问码请求的Gin处理函数
func HandleAccessCodeFunc(container *container.ServiceContainer, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := NewAccessCodeController(ctx, container)

		switch method {
		case "getAccessCodes":
			controller.GetAccessCodes()
		case "getAccessCode":
			controller.GetAccessCode()
		case "createAccessCode":
			controller.CreateAccessCode()
		case "deactivateAccessCode":
			controller.DeactivateAccessCode()
		case "deleteAccessCode":
			controller.DeleteAccessCode()
		default:
			response.FailWithMessage(ctx, code.ErrBind, "无效的方法", nil)
		}
	}
}

// accessCodeView 构造访问码视图
func accessCodeView(ac *models.AccessCode) gin.H {
	return gin.H{
		"id":                        ac.ID,
		"code":                      ac.Code,
		"level":                     ac.Level,
		"custom_data_quota_mb":      ac.CustomDataQuotaMB,
		"custom_time_quota_minutes": ac.CustomTimeQuotaMinutes,
		"is_active":                 ac.IsActive,
		"expires_at":                ac.ExpiresAt,
		"max_uses":                  ac.MaxUses,
		"current_uses":              ac.CurrentUses,
		"remaining_uses":            ac.RemainingUses(),
		"last_used_at":              ac.LastUsedAt,
		"remark":                    ac.Remark,
		"created_at":                ac.CreatedAt,
	}
}

// 1. GetAccessCodes 获取访问码列表
// @Summary      获取访问码列表
// @Description  分页获取所有访问码
// @Tags         AccessCode
// @Accept       json
// @Produce      json
// @Param        page query int false "页码, 默认为1"
// @Param        page_size query int false "每页条数, 默认为10"
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  ErrorResponse
// @Router       /access_codes [get]
// @Security     BearerAuth
func (c *AccessCodeController) GetAccessCodes() {
	var query models.PaginationQuery
	_ = c.Ctx.ShouldBindQuery(&query)
	query.Normalize(10, 100)

	codeService := c.Container.GetService("access_code").(services.InterfaceAccessCodeService)
	codes, total, err := codeService.GetAllAccessCodes(query.Page, query.PageSize)
	if err != nil {
		response.FailWithMessage(c.Ctx, code.ErrDatabase, "查询访问码列表失败: "+err.Error(), nil)
		return
	}

	var views []gin.H
	for i := range codes {
		views = append(views, accessCodeView(&codes[i]))
	}

	response.Success(c.Ctx, gin.H{
		"pagination": models.NewPaginationResult(total, query.Page, query.PageSize),
		"data":       views,
	})
}

// 2. GetAccessCode 获取访问码详情
// @Summary      获取访问码详情
// @Description  根据ID获取访问码及其关联会话
// @Tags         AccessCode
// @Accept       json
// @Produce      json
// @Param        id path int true "访问码ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /access_codes/{id} [get]
// @Security     BearerAuth
func (c *AccessCodeController) GetAccessCode() {
	idStr := c.Ctx.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		response.ParamError(c.Ctx, "无效的ID参数")
		return
	}

	codeService := c.Container.GetService("access_code").(services.InterfaceAccessCodeService)
	ac, err := codeService.GetAccessCodeByID(uint(id))
	if err != nil {
		response.Fail(c.Ctx, code.ErrAccessCodeNotFound, nil)
		return
	}

	view := accessCodeView(ac)
	view["sessions"] = ac.Sessions
	response.Success(c.Ctx, view)
}

// 3. CreateAccessCode 创建访问码
// @Summary      创建访问码
// @Description  生成一个新的访问码。custom档位必须同时提供两项配额覆盖值，其余档位不允许携带覆盖值
// @Tags         AccessCode
// @Accept       json
// @Produce      json
// @Param        request body CreateAccessCodeRequest true "访问码参数"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /access_codes [post]
// @Security     BearerAuth
func (c *AccessCodeController) CreateAccessCode() {
	var req CreateAccessCodeRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数: "+err.Error(), nil)
		return
	}

	expiresAt, err := time.Parse(time.RFC3339, req.ExpiresAt)
	if err != nil {
		response.ParamError(c.Ctx, "无效的过期时间格式，应为RFC3339")
		return
	}
	if !expiresAt.After(time.Now()) {
		response.ParamError(c.Ctx, "过期时间必须晚于当前时间")
		return
	}

	maxUses := req.MaxUses
	if maxUses <= 0 {
		maxUses = 1
	}

	input := services.CreateAccessCodeInput{
		Level:                  models.AccessCodeLevel(req.Level),
		CustomDataQuotaMB:      req.CustomDataQuotaMB,
		CustomTimeQuotaMinutes: req.CustomTimeQuotaMinutes,
		ExpiresAt:              expiresAt,
		MaxUses:                maxUses,
		Remark:                 req.Remark,
	}

	codeService := c.Container.GetService("access_code").(services.InterfaceAccessCodeService)
	ac, err := codeService.CreateAccessCode(input, requestMeta(c.Ctx))
	if err != nil {
		if err == services.ErrQuotaConfig {
			response.Fail(c.Ctx, code.ErrAccessCodeQuotaConfig, nil)
			return
		}
		response.FailWithMessage(c.Ctx, code.ErrDatabase, "创建访问码失败: "+err.Error(), nil)
		return
	}

	response.Success(c.Ctx, accessCodeView(ac))
}

// 4. DeactivateAccessCode 停用访问码
// @Summary      停用访问码
// @Description  将访问码置为不可用，后续登录一律被拒绝；已有会话不受影响
// @Tags         AccessCode
// @Accept       json
// @Produce      json
// @Param        id path int true "访问码ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /access_codes/{id}/deactivate [post]
// @Security     BearerAuth
func (c *AccessCodeController) DeactivateAccessCode() {
	idStr := c.Ctx.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		response.ParamError(c.Ctx, "无效的ID参数")
		return
	}

	codeService := c.Container.GetService("access_code").(services.InterfaceAccessCodeService)
	ac, err := codeService.DeactivateAccessCode(uint(id), requestMeta(c.Ctx))
	if err != nil {
		if err == services.ErrCodeNotFound {
			response.Fail(c.Ctx, code.ErrAccessCodeNotFound, nil)
			return
		}
		response.FailWithMessage(c.Ctx, code.ErrDatabase, "停用访问码失败: "+err.Error(), nil)
		return
	}

	response.Success(c.Ctx, accessCodeView(ac))
}

// 5. DeleteAccessCode 删除访问码
// @Summary      删除访问码
// @Description  删除指定的访问码。仍有活跃会话的访问码不能删除
// @Tags         AccessCode
// @Accept       json
// @Produce      json
// @Param        id path int true "访问码ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /access_codes/{id} [delete]
// @Security     BearerAuth
func (c *AccessCodeController) DeleteAccessCode() {
	idStr := c.Ctx.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		response.ParamError(c.Ctx, "无效的ID参数")
		return
	}

	codeService := c.Container.GetService("access_code").(services.InterfaceAccessCodeService)
	if err := codeService.DeleteAccessCode(uint(id), requestMeta(c.Ctx)); err != nil {
		if err == services.ErrCodeNotFound {
			response.Fail(c.Ctx, code.ErrAccessCodeNotFound, nil)
			return
		}
		if err == services.ErrHasActiveSessions {
			response.Fail(c.Ctx, code.ErrAccessCodeHasActiveSessions, nil)
			return
		}
		response.FailWithMessage(c.Ctx, code.ErrDatabase, "删除访问码失败: "+err.Error(), nil)
		return
	}

	response.Success(c.Ctx, nil)
}
