package code

// HTTP状态码.
const (
	// StatusOK - 200: 成功.
	StatusOK = 200
	// StatusBadRequest - 400: 请求参数错误.
	StatusBadRequest = 400
	// StatusUnauthorized - 401: 未授权.
	StatusUnauthorized = 401
	// StatusForbidden - 403: 禁止访问.
	StatusForbidden = 403
	// StatusNotFound - 404: 资源不存在.
	StatusNotFound = 404
	// StatusConflict - 409: 资源状态冲突.
	StatusConflict = 409
	// StatusInternalServerError - 500: 服务器内部错误.
	StatusInternalServerError = 500
	// StatusTooManyRequests - 429: 请求过多.
	StatusTooManyRequests = 429
)

// 通用错误码 (100xxx).
const (
	// ErrSuccess - 200: 成功.
	ErrSuccess int = iota + 100000
	// ErrUnknown - 500: 未知错误.
	ErrUnknown
	// ErrBind - 400: 请求参数绑定错误.
	ErrBind
	// ErrValidation - 400: 请求参数验证错误.
	ErrValidation
	// ErrTokenInvalid - 401: 令牌无效.
	ErrTokenInvalid
	// ErrTooManyRequests - 429: 请求频率过高.
	ErrTooManyRequests
)

// 访问码相关错误码 (101xxx).
const (
	// ErrAccessDenied - 401: 访问被拒绝（对外统一的访问码失败码，具体原因仅记录审计日志）.
	ErrAccessDenied int = iota + 101000
	// ErrAccessCodeNotFound - 404: 访问码不存在（仅管理端使用）.
	ErrAccessCodeNotFound
	// ErrAccessCodeQuotaConfig - 400: 自定义配额配置缺失或非法.
	ErrAccessCodeQuotaConfig
	// ErrAccessCodeHasActiveSessions - 409: 访问码仍有活跃会话，不能删除.
	ErrAccessCodeHasActiveSessions
)

// 会话相关错误码 (102xxx).
const (
	// ErrSessionNotFound - 404: 会话不存在.
	ErrSessionNotFound int = iota + 102000
	// ErrSessionTokenInvalid - 401: 会话令牌无效或已过期.
	ErrSessionTokenInvalid
	// ErrSessionConflict - 409: 会话并发冲突，重试已耗尽.
	ErrSessionConflict
)

// 管理员相关错误码 (103xxx).
const (
	// ErrAdminNotFound - 404: 管理员不存在.
	ErrAdminNotFound int = iota + 103000
	// ErrAdminPasswordIncorrect - 401: 管理员密码错误.
	ErrAdminPasswordIncorrect
)

// 数据库相关错误码 (105xxx).
const (
	// ErrDatabase - 500: 数据库错误.
	ErrDatabase int = iota + 105000
	// ErrRecordNotFound - 404: 记录不存在.
	ErrRecordNotFound
)
