package code

// 错误码消息映射
var codeMessageMap = map[int]string{
	// 通用错误码
	ErrSuccess:         "成功",
	ErrUnknown:         "未知错误",
	ErrBind:            "请求参数绑定错误",
	ErrValidation:      "请求参数验证错误",
	ErrTokenInvalid:    "无效的认证令牌",
	ErrTooManyRequests: "请求频率过高",

	// 访问码相关错误码
	ErrAccessDenied:                "访问被拒绝",
	ErrAccessCodeNotFound:          "访问码不存在",
	ErrAccessCodeQuotaConfig:       "自定义配额配置无效",
	ErrAccessCodeHasActiveSessions: "访问码仍有活跃会话",

	// 会话相关错误码
	ErrSessionNotFound:     "会话不存在",
	ErrSessionTokenInvalid: "会话令牌无效或已过期",
	ErrSessionConflict:     "会话并发冲突",

	// 管理员相关错误码
	ErrAdminNotFound:          "管理员不存在",
	ErrAdminPasswordIncorrect: "管理员密码错误",

	// 数据库相关错误码
	ErrDatabase:       "数据库错误",
	ErrRecordNotFound: "记录不存在",
}

// 错误码HTTP状态码映射
var codeStatusMap = map[int]int{
	// 通用错误码
	ErrSuccess:         StatusOK,
	ErrUnknown:         StatusInternalServerError,
	ErrBind:            StatusBadRequest,
	ErrValidation:      StatusBadRequest,
	ErrTokenInvalid:    StatusUnauthorized,
	ErrTooManyRequests: StatusTooManyRequests,

	// 访问码相关错误码
	ErrAccessDenied:                StatusUnauthorized,
	ErrAccessCodeNotFound:          StatusNotFound,
	ErrAccessCodeQuotaConfig:       StatusBadRequest,
	ErrAccessCodeHasActiveSessions: StatusConflict,

	// 会话相关错误码
	ErrSessionNotFound:     StatusNotFound,
	ErrSessionTokenInvalid: StatusUnauthorized,
	ErrSessionConflict:     StatusConflict,

	// 管理员相关错误码
	ErrAdminNotFound:          StatusNotFound,
	ErrAdminPasswordIncorrect: StatusUnauthorized,

	// 数据库相关错误码
	ErrDatabase:       StatusInternalServerError,
	ErrRecordNotFound: StatusNotFound,
}

// GetMessage 获取错误码对应的消息
func GetMessage(code int) string {
	if msg, ok := codeMessageMap[code]; ok {
		return msg
	}
	return "未知错误"
}

// GetStatus 获取错误码对应的HTTP状态码
func GetStatus(code int) int {
	if status, ok := codeStatusMap[code]; ok {
		return status
	}
	return StatusInternalServerError
}
