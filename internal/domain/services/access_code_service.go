package services

import (
	"errors"
	"fmt"
	"time"

	"guestnet-http-service/internal/domain/models"
	"guestnet-http-service/internal/infrastructure/config"
	"guestnet-http-service/utils"

	"gorm.io/gorm"
)

// 访问码校验失败的具体原因。对外统一表现为"访问被拒绝"，
// 具体原因只进入审计日志，避免成为猜码攻击的预言机
var (
	ErrCodeNotFound    = errors.New("访问码不存在")
	ErrCodeDeactivated = errors.New("访问码已停用")
	ErrCodeExpired     = errors.New("访问码已过期")
	ErrCodeExhausted   = errors.New("访问码使用次数已用尽")
)

// 访问码管理相关错误
var (
	ErrQuotaConfig       = errors.New("自定义配额配置缺失或非法")
	ErrHasActiveSessions = errors.New("访问码仍有活跃会话")
)

// IsValidationFailure 判断错误是否属于访问码校验失败
func IsValidationFailure(err error) bool {
	return errors.Is(err, ErrCodeNotFound) ||
		errors.Is(err, ErrCodeDeactivated) ||
		errors.Is(err, ErrCodeExpired) ||
		errors.Is(err, ErrCodeExhausted)
}

// QuotaBudget 表示一组(数据量, 连接时长)配额预算
type QuotaBudget struct {
	DataQuotaMB      int64 `json:"data_quota_mb"`
	TimeQuotaMinutes int64 `json:"time_quota_minutes"`
}

// 各档位的固定配额表
var tierQuotas = map[models.AccessCodeLevel]QuotaBudget{
	models.LevelPremium:  {DataQuotaMB: 2048, TimeQuotaMinutes: 480},
	models.LevelStandard: {DataQuotaMB: 1024, TimeQuotaMinutes: 240},
	models.LevelBasic:    {DataQuotaMB: 512, TimeQuotaMinutes: 120},
}

// RequestMeta 表示一次请求的来源信息，用于审计
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
}

// CreateAccessCodeInput 创建访问码的输入参数
type CreateAccessCodeInput struct {
	Level                  models.AccessCodeLevel
	CustomDataQuotaMB      *int64
	CustomTimeQuotaMinutes *int64
	ExpiresAt              time.Time
	MaxUses                int
	Remark                 string
}

// InterfaceAccessCodeService 定义访问码服务接口
type InterfaceAccessCodeService interface {
	CreateAccessCode(input CreateAccessCodeInput, meta RequestMeta) (*models.AccessCode, error)
	GetAccessCodeByID(id uint) (*models.AccessCode, error)
	GetAllAccessCodes(page, pageSize int) ([]models.AccessCode, int64, error)
	DeactivateAccessCode(id uint, meta RequestMeta) (*models.AccessCode, error)
	DeleteAccessCode(id uint, meta RequestMeta) error
	ValidateCode(codeStr string, now time.Time, meta RequestMeta) (*models.AccessCode, error)
	ResolveQuota(level models.AccessCodeLevel, customData, customTime *int64) (QuotaBudget, error)
}

// AccessCodeService 提供访问码相关的服务
type AccessCodeService struct {
	DB     *gorm.DB
	Config *config.Config
	Audit  InterfaceAuditService
}

// NewAccessCodeService 创建一个新的访问码服务
func NewAccessCodeService(db *gorm.DB, cfg *config.Config, audit InterfaceAuditService) InterfaceAccessCodeService {
	return &AccessCodeService{
		DB:     db,
		Config: cfg,
		Audit:  audit,
	}
}

// ResolveQuota 将档位（或自定义覆盖值）解析为配额预算。
// 档位策略集中在这里，调整预算不影响会话逻辑
func (s *AccessCodeService) ResolveQuota(level models.AccessCodeLevel, customData, customTime *int64) (QuotaBudget, error) {
	if level == models.LevelCustom {
		if customData == nil || customTime == nil || *customData <= 0 || *customTime <= 0 {
			return QuotaBudget{}, ErrQuotaConfig
		}
		return QuotaBudget{DataQuotaMB: *customData, TimeQuotaMinutes: *customTime}, nil
	}

	budget, ok := tierQuotas[level]
	if !ok {
		return QuotaBudget{}, ErrQuotaConfig
	}
	return budget, nil
}

// CreateAccessCode 创建访问码。自定义配额在这里提前校验，
// 配置错误在创建时暴露而不是留到会话创建时
func (s *AccessCodeService) CreateAccessCode(input CreateAccessCodeInput, meta RequestMeta) (*models.AccessCode, error) {
	if !input.Level.Valid() {
		return nil, ErrQuotaConfig
	}

	// 非自定义档位不允许携带覆盖值，自定义档位必须携带两个正值
	if input.Level != models.LevelCustom && (input.CustomDataQuotaMB != nil || input.CustomTimeQuotaMinutes != nil) {
		return nil, ErrQuotaConfig
	}
	if _, err := s.ResolveQuota(input.Level, input.CustomDataQuotaMB, input.CustomTimeQuotaMinutes); err != nil {
		return nil, err
	}

	if input.MaxUses < 1 {
		input.MaxUses = 1
	}

	code := &models.AccessCode{
		Level:                  input.Level,
		CustomDataQuotaMB:      input.CustomDataQuotaMB,
		CustomTimeQuotaMinutes: input.CustomTimeQuotaMinutes,
		IsActive:               true,
		ExpiresAt:              input.ExpiresAt,
		MaxUses:                input.MaxUses,
		Remark:                 input.Remark,
	}

	// 随机生成8位访问码，撞库时重试
	const maxAttempts = 5
	var err error
	for i := 0; i < maxAttempts; i++ {
		code.Code = utils.RandomAccessCode(8)
		err = s.DB.Create(code).Error
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("创建访问码失败: %w", err)
	}

	s.Audit.Record(&models.AuditLog{
		AccessCodeID: &code.ID,
		RequestID:    meta.RequestID,
		Action:       models.AuditActionCodeCreate,
		Result:       models.AuditResultSuccess,
		Details:      fmt.Sprintf(`{"level":"%s","max_uses":%d}`, code.Level, code.MaxUses),
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})

	return code, nil
}

// GetAccessCodeByID 获取访问码详情，带其全部会话
func (s *AccessCodeService) GetAccessCodeByID(id uint) (*models.AccessCode, error) {
	var code models.AccessCode
	if err := s.DB.Preload("Sessions").First(&code, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return &code, nil
}

// GetAllAccessCodes 分页获取访问码列表
func (s *AccessCodeService) GetAllAccessCodes(page, pageSize int) ([]models.AccessCode, int64, error) {
	var codes []models.AccessCode
	var total int64

	if err := s.DB.Model(&models.AccessCode{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := s.DB.Order("id DESC").Offset(offset).Limit(pageSize).Find(&codes).Error; err != nil {
		return nil, 0, err
	}

	return codes, total, nil
}

// DeactivateAccessCode 停用访问码。已创建的会话不受影响，
// 只阻止后续登录
func (s *AccessCodeService) DeactivateAccessCode(id uint, meta RequestMeta) (*models.AccessCode, error) {
	var code models.AccessCode
	if err := s.DB.First(&code, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}

	if err := s.DB.Model(&code).Update("is_active", false).Error; err != nil {
		return nil, err
	}
	code.IsActive = false

	s.Audit.Record(&models.AuditLog{
		AccessCodeID: &code.ID,
		RequestID:    meta.RequestID,
		Action:       models.AuditActionCodeDeactivate,
		Result:       models.AuditResultSuccess,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})

	return &code, nil
}

// DeleteAccessCode 删除访问码，仅当其没有任何活跃会话时允许
func (s *AccessCodeService) DeleteAccessCode(id uint, meta RequestMeta) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var code models.AccessCode
		if err := tx.First(&code, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCodeNotFound
			}
			return err
		}

		var activeCount int64
		if err := tx.Model(&models.GuestSession{}).
			Where("access_code_id = ? AND status = ?", code.ID, models.SessionStatusActive).
			Count(&activeCount).Error; err != nil {
			return err
		}
		if activeCount > 0 {
			return ErrHasActiveSessions
		}

		if err := tx.Delete(&code).Error; err != nil {
			return err
		}

		return s.Audit.RecordTx(tx, &models.AuditLog{
			AccessCodeID: &code.ID,
			RequestID:    meta.RequestID,
			Action:       models.AuditActionCodeDelete,
			Result:       models.AuditResultSuccess,
			IPAddress:    meta.IPAddress,
			UserAgent:    meta.UserAgent,
		})
	})
}

// ValidateCode 按固定顺序校验访问码：存在 -> 启用 -> 未过期 -> 次数未用尽。
// 第一个不通过的检查决定返回的失败原因。校验本身无副作用，
// 使用次数的递增推迟到会话创建事务中完成
func (s *AccessCodeService) ValidateCode(codeStr string, now time.Time, meta RequestMeta) (*models.AccessCode, error) {
	var code models.AccessCode
	err := s.DB.Where("code = ?", codeStr).First(&code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.auditValidation(nil, meta, ErrCodeNotFound)
			return nil, ErrCodeNotFound
		}
		return nil, err
	}

	if !code.IsActive {
		s.auditValidation(&code, meta, ErrCodeDeactivated)
		return nil, ErrCodeDeactivated
	}
	if !code.ExpiresAt.After(now) {
		s.auditValidation(&code, meta, ErrCodeExpired)
		return nil, ErrCodeExpired
	}
	if code.CurrentUses >= code.MaxUses {
		s.auditValidation(&code, meta, ErrCodeExhausted)
		return nil, ErrCodeExhausted
	}

	s.auditValidation(&code, meta, nil)
	return &code, nil
}

// auditValidation 记录一次校验尝试，无论成败
func (s *AccessCodeService) auditValidation(code *models.AccessCode, meta RequestMeta, failure error) {
	entry := &models.AuditLog{
		RequestID: meta.RequestID,
		Action:    models.AuditActionCodeValidate,
		Result:    models.AuditResultSuccess,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	}
	if code != nil {
		entry.AccessCodeID = &code.ID
	}
	if failure != nil {
		entry.Result = models.AuditResultFailed
		entry.Details = fmt.Sprintf(`{"reason":"%s"}`, failure.Error())
	}
	s.Audit.Record(entry)
}
