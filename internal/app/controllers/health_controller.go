package controllers

import (
	"github.com/gin-gonic/gin"

	"guestnet-http-service/internal/domain/services"
	"guestnet-http-service/internal/domain/services/container"
	"guestnet-http-service/internal/error/response"
)

// HealthCheckController 健康检查控制器
type HealthCheckController struct{}

// NewHealthCheckController 创建健康检查控制器实例
func NewHealthCheckController() *HealthCheckController {
	return &HealthCheckController{}
}

// Ping 健康检查端点
func (h *HealthCheckController) Ping(c *gin.Context) {
	response.Success(c, gin.H{
		"status":  "healthy",
		"message": "pong",
	})
}

// Status 依赖状态检查端点，逐项探测数据库、Redis和MQTT连接
func (h *HealthCheckController) Status(svcContainer *container.ServiceContainer) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbStatus := "up"
		if sqlDB, err := svcContainer.GetDB().DB(); err != nil || sqlDB.Ping() != nil {
			dbStatus = "down"
		}

		redisStatus := "up"
		if redisService, ok := svcContainer.GetService("redis").(services.InterfaceRedisService); !ok || redisService.Ping() != nil {
			redisStatus = "down"
		}

		mqttStatus := "down"
		if networkService, ok := svcContainer.GetService("network").(services.InterfaceNetworkService); ok && networkService.IsConnected() {
			mqttStatus = "up"
		}

		response.Success(c, gin.H{
			"database": dbStatus,
			"redis":    redisStatus,
			"mqtt":     mqttStatus,
		})
	}
}
