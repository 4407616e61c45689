package container

import (
	"context"
	"log"
	"sync"
	"time"

	"guestnet-http-service/internal/domain/services"
	"guestnet-http-service/internal/infrastructure/config"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// ServiceContainer 管理所有服务的依赖注入
type ServiceContainer struct {
	db     *gorm.DB
	config *config.Config
	redis  *redis.Client

	// 基础服务
	jwtService services.InterfaceJWTService

	// 数据存储服务
	redisService services.InterfaceRedisService

	// 网关控制服务
	networkService services.InterfaceNetworkService

	// 业务服务
	auditService        services.InterfaceAuditService
	accessCodeService   services.InterfaceAccessCodeService
	guestSessionService services.InterfaceGuestSessionService
	sweepService        services.InterfaceSweepService

	mu sync.RWMutex
}

// NewServiceContainer 创建新的服务容器
func NewServiceContainer(db *gorm.DB, cfg *config.Config, redisClient *redis.Client) *ServiceContainer {
	if db == nil {
		panic("数据库连接为空")
	}

	if cfg == nil {
		panic("配置为空")
	}

	// 测试Redis连接
	if redisClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Redis连接测试失败: %v，将不使用Redis缓存", err)
		}
	}

	container := &ServiceContainer{
		db:     db,
		config: cfg,
		redis:  redisClient,
	}
	container.initializeServices()
	return container
}

// initializeServices 初始化所有服务
func (c *ServiceContainer) initializeServices() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 初始化基础服务
	c.jwtService = services.NewJWTService(c.config, c.db)

	// 初始化Redis服务
	c.redisService = services.NewRedisService(c.config)

	// 初始化网关控制服务
	c.networkService = services.NewNetworkService(c.config)

	// 连接MQTT服务器
	if err := c.networkService.Connect(); err != nil {
		log.Printf("MQTT服务连接失败: %v", err)
	}

	// 初始化业务服务
	c.auditService = services.NewAuditService(c.db, c.config)
	c.accessCodeService = services.NewAccessCodeService(c.db, c.config, c.auditService)
	c.guestSessionService = services.NewGuestSessionService(
		c.db, c.config, c.accessCodeService, c.auditService, c.networkService, c.redisService,
	)

	// 初始化过期清扫服务
	c.sweepService = services.NewSweepService(c.config, c.guestSessionService)
}

// GetService 获取指定名称的服务
func (c *ServiceContainer) GetService(name string) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch name {
	case "config":
		return c.config
	case "db":
		return c.db
	case "jwt":
		return c.jwtService
	case "redis":
		return c.redisService
	case "network":
		return c.networkService
	case "audit":
		return c.auditService
	case "access_code":
		return c.accessCodeService
	case "guest_session":
		return c.guestSessionService
	case "sweep":
		return c.sweepService
	default:
		return nil
	}
}

// GetDB 获取数据库连接
func (c *ServiceContainer) GetDB() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}
