package services

import (
	"sync"
	"time"

	"guestnet-http-service/internal/infrastructure/config"
	"guestnet-http-service/pkg/logger"
)

// InterfaceSweepService 定义过期清扫服务接口
type InterfaceSweepService interface {
	Start()
	Stop()
}

// SweepService 周期性扫描并过期已到期的活跃会话。
// 清扫保证断网指令及时下发；会话状态本身的正确性由惰性判定兜底
type SweepService struct {
	Sessions InterfaceGuestSessionService
	interval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewSweepService 创建过期清扫服务，间隔为0时禁用
func NewSweepService(cfg *config.Config, sessions InterfaceGuestSessionService) InterfaceSweepService {
	return &SweepService{
		Sessions: sessions,
		interval: cfg.SweepInterval(),
		stopCh:   make(chan struct{}),
	}
}

// Start 启动后台清扫循环
func (s *SweepService) Start() {
	if s.interval <= 0 {
		logger.Info("过期清扫已禁用")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		logger.Info("过期清扫已启动，间隔 %s", s.interval)
		for {
			select {
			case <-ticker.C:
				count, err := s.Sessions.SweepExpiredSessions()
				if err != nil {
					logger.Error("过期清扫失败: %v", err)
					continue
				}
				if count > 0 {
					logger.Info("过期清扫完成，本轮过期 %d 个会话", count)
				}
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop 停止清扫循环并等待本轮结束
func (s *SweepService) Stop() {
	s.once.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}
