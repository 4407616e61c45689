package services

import (
	"guestnet-http-service/internal/domain/models"
	"guestnet-http-service/internal/infrastructure/config"
	"guestnet-http-service/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLogFilter 审计日志查询过滤条件
type AuditLogFilter struct {
	AccessCodeID *uint
	SessionID    *uint
	Action       string
	Result       string
}

// InterfaceAuditService 定义审计服务接口
type InterfaceAuditService interface {
	Record(entry *models.AuditLog)
	RecordTx(tx *gorm.DB, entry *models.AuditLog) error
	GetAuditLogs(page, pageSize int, filter AuditLogFilter) ([]models.AuditLog, int64, error)
}

// AuditService 提供只追加的审计记录服务
type AuditService struct {
	DB     *gorm.DB
	Config *config.Config
}

// NewAuditService 创建一个新的审计服务
func NewAuditService(db *gorm.DB, cfg *config.Config) InterfaceAuditService {
	return &AuditService{
		DB:     db,
		Config: cfg,
	}
}

// Record 追加一条审计记录。审计失败不阻断业务流程，只记录日志
func (s *AuditService) Record(entry *models.AuditLog) {
	if entry.RequestID == "" {
		entry.RequestID = uuid.New().String()
	}

	if err := s.DB.Create(entry).Error; err != nil {
		logger.Error("写入审计日志失败: action=%s err=%v", entry.Action, err)
	}
}

// RecordTx 在给定事务中追加一条审计记录，与业务变更一同提交
func (s *AuditService) RecordTx(tx *gorm.DB, entry *models.AuditLog) error {
	if entry.RequestID == "" {
		entry.RequestID = uuid.New().String()
	}
	return tx.Create(entry).Error
}

// GetAuditLogs 分页查询审计日志，支持按访问码、会话、动作和结果过滤
func (s *AuditService) GetAuditLogs(page, pageSize int, filter AuditLogFilter) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	query := s.DB.Model(&models.AuditLog{})
	if filter.AccessCodeID != nil {
		query = query.Where("access_code_id = ?", *filter.AccessCodeID)
	}
	if filter.SessionID != nil {
		query = query.Where("session_id = ?", *filter.SessionID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.Result != "" {
		query = query.Where("result = ?", filter.Result)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Order("id DESC").Offset(offset).Limit(pageSize).Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
