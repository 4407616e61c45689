package routes

import (
	_ "guestnet-http-service/docs"
	"guestnet-http-service/internal/app/controllers"
	"guestnet-http-service/internal/app/middleware"
	"guestnet-http-service/internal/domain/services/container"
	"guestnet-http-service/internal/infrastructure/config"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

// SetupRouter 初始化并返回配置好的路由和服务容器
func SetupRouter(db *gorm.DB, cfg *config.Config) (*gin.Engine, *container.ServiceContainer) {
	// 初始化 Gin
	r := gin.Default()

	// 添加 CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})
	// 设置正确的Content-Type，确保UTF-8编码
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json; charset=utf-8")
		c.Next()
	})
	// 创建服务容器
	serviceContainer := container.NewServiceContainer(db, cfg, nil)
	// 初始化中间件
	middleware.InitAuthMiddleware(cfg, db)
	// 添加 Swagger 文档路由
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 注册路由
	registerRoutes(r, serviceContainer)
	return r, serviceContainer
}

// registerRoutes 配置所有API路由
func registerRoutes(
	r *gin.Engine,
	container *container.ServiceContainer,
) {
	// API 路由根路径
	api := r.Group("/api")
	// 注册公共路由
	registerPublicRoutes(api, container)
	// 注册访客会话路由
	registerGuestRoutes(api, container)
	// 注册管理端路由
	registerAdminRoutes(api, container)
}

// registerPublicRoutes 注册公共路由
func registerPublicRoutes(
	api *gin.RouterGroup,
	container *container.ServiceContainer,
) {
	// 添加IP限流中间件 - 每秒允许10个请求，最多突发20个请求
	api.Use(middleware.IPRateLimiter(10, 20))

	// 健康检查路由
	healthController := controllers.NewHealthCheckController()
	api.GET("/ping", healthController.Ping)
	api.GET("/health", healthController.Ping) // 兼容Docker健康检查的路由
	api.GET("/health/status", healthController.Status(container))

	// 管理员认证路由
	api.POST("/auth/login", controllers.HandleJWTFunc(container, "login"))

	// 访客登录路由，凭访问码换取会话令牌。
	// 单独收紧限流，访问码爆破的主要入口在这里
	loginGroup := api.Group("/guest")
	loginGroup.Use(middleware.CombinedRateLimiter(2, 5))
	loginGroup.POST("/login", controllers.HandleGuestFunc(container, "login"))
}

// registerGuestRoutes 注册访客会话路由，要求访客会话令牌
func registerGuestRoutes(
	api *gin.RouterGroup,
	container *container.ServiceContainer,
) {
	guest := api.Group("/guest")
	guest.Use(middleware.AuthenticateGuestSession())
	guest.Use(middleware.IPRateLimiter(20, 40))

	guest.GET("/session", controllers.HandleGuestFunc(container, "getSession"))
	guest.GET("/session/quotas", controllers.HandleGuestFunc(container, "getQuotas"))
	guest.POST("/session/usage", controllers.HandleGuestFunc(container, "reportUsage"))
	guest.POST("/logout", controllers.HandleGuestFunc(container, "logout"))
}

// registerAdminRoutes 注册需要管理员认证的路由
func registerAdminRoutes(
	api *gin.RouterGroup,
	container *container.ServiceContainer,
) {
	// 添加认证中间件
	auth := api.Group("/")
	auth.Use(middleware.AuthenticateSystemAdmin())

	// 添加通用限流中间件 - 每秒30个请求，最多突发50个请求
	auth.Use(middleware.IPRateLimiter(30, 50))

	// 管理员账号路由
	auth.PUT("/auth/password", controllers.HandleJWTFunc(container, "changePassword"))

	// 访问码路由
	codeGroup := auth.Group("/access_codes")
	codeGroup.GET("", controllers.HandleAccessCodeFunc(container, "getAccessCodes"))
	codeGroup.GET("/:id", controllers.HandleAccessCodeFunc(container, "getAccessCode"))
	codeGroup.POST("", controllers.HandleAccessCodeFunc(container, "createAccessCode"))
	codeGroup.POST("/:id/deactivate", controllers.HandleAccessCodeFunc(container, "deactivateAccessCode"))
	codeGroup.DELETE("/:id", controllers.HandleAccessCodeFunc(container, "deleteAccessCode"))

	// 会话管理路由
	sessionGroup := auth.Group("/sessions")
	sessionGroup.GET("", controllers.HandleSessionFunc(container, "getSessions"))
	sessionGroup.GET("/:id", controllers.HandleSessionFunc(container, "getSession"))
	sessionGroup.POST("/:id/terminate", controllers.HandleSessionFunc(container, "terminateSession"))

	// 审计日志路由
	auditGroup := auth.Group("/audit_logs")
	auditGroup.GET("", controllers.HandleAuditLogFunc(container, "getAuditLogs"))
}
