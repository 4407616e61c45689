package services

import (
	"errors"
	"fmt"
	"time"

	"guestnet-http-service/internal/domain/models"
	"guestnet-http-service/internal/infrastructure/config"
	"guestnet-http-service/pkg/logger"

	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 会话相关错误
var (
	ErrSessionNotFound        = errors.New("会话不存在")
	ErrConflictRetryExhausted = errors.New("并发冲突重试已耗尽")
)

// 配额维度与告警级别
const (
	DimensionData = "data"
	DimensionTime = "time"

	AlertLevelWarning  = "warning"
	AlertLevelCritical = "critical"
)

// ThresholdAlert 表示一次新触发的阈值告警
type ThresholdAlert struct {
	Dimension    string `json:"dimension"`
	Threshold    int    `json:"threshold"`
	Level        string `json:"level"`
	UsagePercent int    `json:"usage_percent"`
}

// 阈值表：每个(维度, 阈值)对应告警集中的一个标志位，
// 每个会话生命周期内每对至多触发一次
var thresholdTable = []struct {
	dimension string
	threshold int
	flag      models.WarningFlag
}{
	{DimensionData, 80, models.WarnData80},
	{DimensionData, 95, models.WarnData95},
	{DimensionTime, 80, models.WarnTime80},
	{DimensionTime, 95, models.WarnTime95},
}

// SessionFilter 会话查询过滤条件
type SessionFilter struct {
	Status       string
	AccessCodeID *uint
}

// InterfaceGuestSessionService 定义访客会话服务接口
type InterfaceGuestSessionService interface {
	CreateSession(codeStr, deviceInfo string, meta RequestMeta) (*models.GuestSession, *models.AccessCode, error)
	GetSession(id uint) (*models.GuestSession, error)
	ReportUsage(id uint, reportedDataMB int64, meta RequestMeta) (*models.GuestSession, bool, []ThresholdAlert, error)
	CheckThresholds(id uint, meta RequestMeta) (*models.GuestSession, []ThresholdAlert, error)
	TerminateSession(id uint, initiator string, meta RequestMeta) (*models.GuestSession, error)
	GetAllSessions(page, pageSize int, filter SessionFilter) ([]models.GuestSession, int64, error)
	SweepExpiredSessions() (int, error)
}

// GuestSessionService 提供访客会话的创建、配额跟踪与生命周期管理
type GuestSessionService struct {
	DB      *gorm.DB
	Config  *config.Config
	Codes   InterfaceAccessCodeService
	Audit   InterfaceAuditService
	Network InterfaceNetworkService
	Cache   InterfaceRedisService

	// 可注入的时钟，测试用
	now func() time.Time
}

// NewGuestSessionService 创建一个新的访客会话服务
func NewGuestSessionService(
	db *gorm.DB,
	cfg *config.Config,
	codes InterfaceAccessCodeService,
	audit InterfaceAuditService,
	network InterfaceNetworkService,
	cache InterfaceRedisService,
) InterfaceGuestSessionService {
	return &GuestSessionService{
		DB:      db,
		Config:  cfg,
		Codes:   codes,
		Audit:   audit,
		Network: network,
		Cache:   cache,
		now:     time.Now,
	}
}

// CreateSession 校验访问码并创建会话。
// 使用次数检查与递增、会话创建在同一事务内完成并对访问码行加锁，
// 防止两个并发登录同时通过检查而竞争最后一次使用机会
func (s *GuestSessionService) CreateSession(codeStr, deviceInfo string, meta RequestMeta) (*models.GuestSession, *models.AccessCode, error) {
	now := s.now()

	code, err := s.Codes.ValidateCode(codeStr, now, meta)
	if err != nil {
		return nil, nil, err
	}

	budget, err := s.Codes.ResolveQuota(code.Level, code.CustomDataQuotaMB, code.CustomTimeQuotaMinutes)
	if err != nil {
		return nil, nil, err
	}

	var session *models.GuestSession
	var lockedCode models.AccessCode

	// 有界重试，只处理事务冲突；校验失败不重试
	const maxRetries = 3
	for attempt := 0; attempt < maxRetries; attempt++ {
		session = nil
		err = s.DB.Transaction(func(tx *gorm.DB) error {
			if txErr := lockForUpdate(tx).
				Where("code = ?", code.Code).First(&lockedCode).Error; txErr != nil {
				if errors.Is(txErr, gorm.ErrRecordNotFound) {
					return ErrCodeNotFound
				}
				return txErr
			}

			// 锁内复核，快照可能已经过时
			if !lockedCode.IsActive {
				return ErrCodeDeactivated
			}
			if !lockedCode.ExpiresAt.After(now) {
				return ErrCodeExpired
			}
			if lockedCode.CurrentUses >= lockedCode.MaxUses {
				return ErrCodeExhausted
			}

			// 会话过期时刻取访问码过期与时间预算二者中较早者，
			// 会话绝不能活过其中任何一个约束
			expiresAt := now.Add(time.Duration(budget.TimeQuotaMinutes) * time.Minute)
			if lockedCode.ExpiresAt.Before(expiresAt) {
				expiresAt = lockedCode.ExpiresAt
			}

			session = &models.GuestSession{
				AccessCodeID:     lockedCode.ID,
				Status:           models.SessionStatusActive,
				DataQuotaMB:      budget.DataQuotaMB,
				TimeQuotaMinutes: budget.TimeQuotaMinutes,
				StartedAt:        now,
				ExpiresAt:        expiresAt,
				DeviceInfo:       deviceInfo,
				ClientIP:         meta.IPAddress,
			}
			if txErr := tx.Create(session).Error; txErr != nil {
				return txErr
			}

			if txErr := tx.Model(&models.AccessCode{}).
				Where("id = ?", lockedCode.ID).
				Updates(map[string]interface{}{
					"current_uses": gorm.Expr("current_uses + 1"),
					"last_used_at": now,
				}).Error; txErr != nil {
				return txErr
			}

			return s.Audit.RecordTx(tx, &models.AuditLog{
				AccessCodeID: &lockedCode.ID,
				SessionID:    &session.ID,
				RequestID:    meta.RequestID,
				Action:       models.AuditActionSessionCreate,
				Result:       models.AuditResultSuccess,
				Details: fmt.Sprintf(`{"data_quota_mb":%d,"time_quota_minutes":%d,"expires_at":"%s"}`,
					budget.DataQuotaMB, budget.TimeQuotaMinutes, session.ExpiresAt.Format(time.RFC3339)),
				IPAddress: meta.IPAddress,
				UserAgent: meta.UserAgent,
			})
		})

		if err == nil || !isRetryableTxError(err) {
			break
		}
		logger.Warning("创建会话事务冲突，第%d次重试: %v", attempt+1, err)
	}

	if err != nil {
		if isRetryableTxError(err) {
			return nil, nil, ErrConflictRetryExhausted
		}
		if IsValidationFailure(err) {
			// 锁内复核失败，校验时的快照已过时
			s.Audit.Record(&models.AuditLog{
				AccessCodeID: &code.ID,
				RequestID:    meta.RequestID,
				Action:       models.AuditActionSessionCreate,
				Result:       models.AuditResultFailed,
				Details:      fmt.Sprintf(`{"reason":"%s"}`, err.Error()),
				IPAddress:    meta.IPAddress,
				UserAgent:    meta.UserAgent,
			})
		}
		return nil, nil, err
	}

	lockedCode.CurrentUses++
	lockedCode.LastUsedAt = &now

	s.Network.PublishGrant(session)

	return session, &lockedCode, nil
}

// GetSession 读取会话，并作为读取的副作用惰性判定过期。
// 活跃会话的时间消耗按墙钟实时推导，不依赖客户端上报
func (s *GuestSessionService) GetSession(id uint) (*models.GuestSession, error) {
	// 终态会话不可变，缓存命中直接返回；未命中或缓存不可用再回源数据库
	if s.Cache != nil {
		if cached, err := s.Cache.GetSessionSummary(id); err == nil && cached.Status.Terminal() {
			return cached, nil
		}
	}

	now := s.now()

	session, _, err := s.expireIfDue(id, now)
	if err != nil {
		return nil, err
	}

	if session.Status == models.SessionStatusActive {
		session.TimeConsumedMinutes = derivedTimeConsumed(session, now)
	}

	return session, nil
}

// ReportUsage 应用一次外部计量上报并在必要时终止会话。
// 数据消耗按单调max合并而不是累加：上报可能乱序或重发，
// max保证重试幂等。时间消耗始终按墙钟推导，不采信上报值
func (s *GuestSessionService) ReportUsage(id uint, reportedDataMB int64, meta RequestMeta) (*models.GuestSession, bool, []ThresholdAlert, error) {
	now := s.now()

	var session models.GuestSession
	var alerts []ThresholdAlert
	exceeded := false
	expired := false

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if txErr := lockForUpdate(tx).
			First(&session, id).Error; txErr != nil {
			if errors.Is(txErr, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return txErr
		}

		// 终态会话拒绝一切变更：并发上报下这种竞争是预期的，
		// 按良性no-op处理，返回当前终态而不是报错
		if session.Status.Terminal() {
			return s.Audit.RecordTx(tx, &models.AuditLog{
				AccessCodeID: &session.AccessCodeID,
				SessionID:    &session.ID,
				RequestID:    meta.RequestID,
				Action:       models.AuditActionUsageReport,
				Result:       models.AuditResultFailed,
				Details:      fmt.Sprintf(`{"reason":"terminal_state","status":"%s","reported_mb":%d}`, session.Status, reportedDataMB),
				IPAddress:    meta.IPAddress,
				UserAgent:    meta.UserAgent,
			})
		}

		// 已到期的会话先行过期，再拒绝本次上报。
		// 被拒绝的上报与终态分支一样落一条失败审计
		if !now.Before(session.ExpiresAt) {
			expired = true
			if txErr := s.expireLocked(tx, &session, meta); txErr != nil {
				return txErr
			}
			return s.Audit.RecordTx(tx, &models.AuditLog{
				AccessCodeID: &session.AccessCodeID,
				SessionID:    &session.ID,
				RequestID:    meta.RequestID,
				Action:       models.AuditActionUsageReport,
				Result:       models.AuditResultFailed,
				Details:      fmt.Sprintf(`{"reason":"expired","reported_mb":%d}`, reportedDataMB),
				IPAddress:    meta.IPAddress,
				UserAgent:    meta.UserAgent,
			})
		}

		if reportedDataMB > session.DataConsumedMB {
			session.DataConsumedMB = reportedDataMB
		}
		session.TimeConsumedMinutes = derivedTimeConsumed(&session, now)

		// 阈值评估先于超额终止：控制流固定为 跟踪 -> 告警 -> 生命周期
		alerts = s.evaluateThresholds(&session)

		updates := map[string]interface{}{
			"data_consumed_mb":      session.DataConsumedMB,
			"time_consumed_minutes": session.TimeConsumedMinutes,
			"warnings_sent":         session.WarningsSent,
		}

		// 恰好等于配额同样触发超额终止
		if session.DataConsumedMB >= session.DataQuotaMB {
			exceeded = true
			prev := session.Status
			session.Status = models.SessionStatusQuotaExceeded
			terminatedAt := now
			session.TerminatedAt = &terminatedAt
			updates["status"] = session.Status
			updates["terminated_at"] = session.TerminatedAt

			if txErr := s.Audit.RecordTx(tx, statusChangeEntry(&session, prev, "quota_exceeded", meta)); txErr != nil {
				return txErr
			}
		}

		if txErr := tx.Model(&session).Updates(updates).Error; txErr != nil {
			return txErr
		}

		for _, alert := range alerts {
			if txErr := s.Audit.RecordTx(tx, &models.AuditLog{
				AccessCodeID: &session.AccessCodeID,
				SessionID:    &session.ID,
				RequestID:    meta.RequestID,
				Action:       models.AuditActionThresholdAlert,
				Result:       models.AuditResultSuccess,
				Details: fmt.Sprintf(`{"dimension":"%s","threshold":%d,"usage_percent":%d}`,
					alert.Dimension, alert.Threshold, alert.UsagePercent),
				IPAddress: meta.IPAddress,
				UserAgent: meta.UserAgent,
			}); txErr != nil {
				return txErr
			}
		}

		return s.Audit.RecordTx(tx, &models.AuditLog{
			AccessCodeID: &session.AccessCodeID,
			SessionID:    &session.ID,
			RequestID:    meta.RequestID,
			Action:       models.AuditActionUsageReport,
			Result:       models.AuditResultSuccess,
			Details:      fmt.Sprintf(`{"reported_mb":%d,"applied_mb":%d}`, reportedDataMB, session.DataConsumedMB),
			IPAddress:    meta.IPAddress,
			UserAgent:    meta.UserAgent,
		})
	})
	if err != nil {
		return nil, false, nil, err
	}

	for _, alert := range alerts {
		s.Network.PublishAlert(&session, alert)
	}
	if exceeded {
		s.Network.PublishRevoke(&session, "quota_exceeded")
		s.cacheTerminal(&session)
	}
	if expired {
		s.Network.PublishRevoke(&session, "expired")
		s.cacheTerminal(&session)
	}

	return &session, exceeded, alerts, nil
}

// CheckThresholds 重新评估阈值并持久化新触发的告警。
// 时间维度的告警只能在这里或上报时被发现，因为时间消耗是推导出来的
func (s *GuestSessionService) CheckThresholds(id uint, meta RequestMeta) (*models.GuestSession, []ThresholdAlert, error) {
	now := s.now()

	session, wasExpired, err := s.expireIfDue(id, now)
	if err != nil {
		return nil, nil, err
	}
	if wasExpired || session.Status.Terminal() {
		// 终态会话的告警集已冻结
		return session, nil, nil
	}

	var alerts []ThresholdAlert
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if txErr := lockForUpdate(tx).
			First(session, id).Error; txErr != nil {
			return txErr
		}
		if session.Status.Terminal() {
			return nil
		}

		session.TimeConsumedMinutes = derivedTimeConsumed(session, now)
		alerts = s.evaluateThresholds(session)
		if len(alerts) == 0 {
			return nil
		}

		if txErr := tx.Model(session).Updates(map[string]interface{}{
			"time_consumed_minutes": session.TimeConsumedMinutes,
			"warnings_sent":         session.WarningsSent,
		}).Error; txErr != nil {
			return txErr
		}

		for _, alert := range alerts {
			if txErr := s.Audit.RecordTx(tx, &models.AuditLog{
				AccessCodeID: &session.AccessCodeID,
				SessionID:    &session.ID,
				RequestID:    meta.RequestID,
				Action:       models.AuditActionThresholdAlert,
				Result:       models.AuditResultSuccess,
				Details: fmt.Sprintf(`{"dimension":"%s","threshold":%d,"usage_percent":%d}`,
					alert.Dimension, alert.Threshold, alert.UsagePercent),
				IPAddress: meta.IPAddress,
				UserAgent: meta.UserAgent,
			}); txErr != nil {
				return txErr
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	for _, alert := range alerts {
		s.Network.PublishAlert(session, alert)
	}

	return session, alerts, nil
}

// TerminateSession 显式终止会话（访客登出或管理员强制下线）。
// 对已处于终态的会话是良性no-op，返回当前状态
func (s *GuestSessionService) TerminateSession(id uint, initiator string, meta RequestMeta) (*models.GuestSession, error) {
	now := s.now()

	var session models.GuestSession
	terminated := false

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if txErr := lockForUpdate(tx).
			First(&session, id).Error; txErr != nil {
			if errors.Is(txErr, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return txErr
		}

		if session.Status.Terminal() {
			return nil
		}

		prev := session.Status
		session.Status = models.SessionStatusTerminated
		terminatedAt := now
		session.TerminatedAt = &terminatedAt
		// 终止时刻冻结推导时钟
		session.TimeConsumedMinutes = derivedTimeConsumed(&session, now)

		if txErr := tx.Model(&session).Updates(map[string]interface{}{
			"status":                session.Status,
			"terminated_at":         session.TerminatedAt,
			"time_consumed_minutes": session.TimeConsumedMinutes,
		}).Error; txErr != nil {
			return txErr
		}
		terminated = true

		action := models.AuditActionLogout
		if initiator == "admin" {
			action = models.AuditActionAdminTerminate
		}
		if txErr := s.Audit.RecordTx(tx, &models.AuditLog{
			AccessCodeID: &session.AccessCodeID,
			SessionID:    &session.ID,
			RequestID:    meta.RequestID,
			Action:       action,
			Result:       models.AuditResultSuccess,
			IPAddress:    meta.IPAddress,
			UserAgent:    meta.UserAgent,
		}); txErr != nil {
			return txErr
		}

		return s.Audit.RecordTx(tx, statusChangeEntry(&session, prev, initiator+"_terminated", meta))
	})
	if err != nil {
		return nil, err
	}

	if terminated {
		s.Network.PublishRevoke(&session, initiator+"_terminated")
		s.cacheTerminal(&session)
	}

	return &session, nil
}

// GetAllSessions 分页查询会话列表，支持按状态和访问码过滤
func (s *GuestSessionService) GetAllSessions(page, pageSize int, filter SessionFilter) ([]models.GuestSession, int64, error) {
	var sessions []models.GuestSession
	var total int64

	query := s.DB.Model(&models.GuestSession{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.AccessCodeID != nil {
		query = query.Where("access_code_id = ?", *filter.AccessCodeID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Order("id DESC").Offset(offset).Limit(pageSize).Find(&sessions).Error; err != nil {
		return nil, 0, err
	}

	return sessions, total, nil
}

// SweepExpiredSessions 扫描并过期所有已到期的活跃会话。
// 清扫只是为了及时断网，正确性不依赖它：惰性判定独立成立
func (s *GuestSessionService) SweepExpiredSessions() (int, error) {
	now := s.now()

	var ids []uint
	if err := s.DB.Model(&models.GuestSession{}).
		Where("status = ? AND expires_at <= ?", models.SessionStatusActive, now).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}

	count := 0
	for _, id := range ids {
		_, wasExpired, err := s.expireIfDue(id, now)
		if err != nil {
			logger.Warning("清扫会话 %d 失败: %v", id, err)
			continue
		}
		if wasExpired {
			count++
		}
	}

	return count, nil
}

// expireIfDue 加锁读取会话，若已到期则执行过期转换
func (s *GuestSessionService) expireIfDue(id uint, now time.Time) (*models.GuestSession, bool, error) {
	var session models.GuestSession
	expired := false

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if txErr := lockForUpdate(tx).
			First(&session, id).Error; txErr != nil {
			if errors.Is(txErr, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return txErr
		}

		if session.Status != models.SessionStatusActive || now.Before(session.ExpiresAt) {
			return nil
		}

		expired = true
		return s.expireLocked(tx, &session, RequestMeta{})
	})
	if err != nil {
		return nil, false, err
	}

	if expired {
		s.Network.PublishRevoke(&session, "expired")
		s.cacheTerminal(&session)
	}

	return &session, expired, nil
}

// expireLocked 在已持有行锁的事务内执行 ACTIVE -> EXPIRED 转换。
// 终止时刻回溯到计算出的过期时刻而不是发现时刻，保证审计准确
func (s *GuestSessionService) expireLocked(tx *gorm.DB, session *models.GuestSession, meta RequestMeta) error {
	prev := session.Status
	session.Status = models.SessionStatusExpired
	terminatedAt := session.ExpiresAt
	session.TerminatedAt = &terminatedAt
	session.TimeConsumedMinutes = derivedTimeConsumed(session, session.ExpiresAt)

	if err := tx.Model(session).Updates(map[string]interface{}{
		"status":                session.Status,
		"terminated_at":         session.TerminatedAt,
		"time_consumed_minutes": session.TimeConsumedMinutes,
	}).Error; err != nil {
		return err
	}

	return s.Audit.RecordTx(tx, statusChangeEntry(session, prev, "expired", meta))
}

// evaluateThresholds 评估两个维度的80%/95%阈值，
// 只返回本次新越过且尚未发送过的告警，并置位对应标志
func (s *GuestSessionService) evaluateThresholds(session *models.GuestSession) []ThresholdAlert {
	var fired []ThresholdAlert

	dataPct := session.DataUsagePercent()
	timePct := session.TimeUsagePercent()

	for _, t := range thresholdTable {
		pct := dataPct
		if t.dimension == DimensionTime {
			pct = timePct
		}
		if pct >= t.threshold && !session.WarningsSent.Has(t.flag) {
			session.WarningsSent |= t.flag
			level := AlertLevelWarning
			if t.threshold == 95 {
				level = AlertLevelCritical
			}
			fired = append(fired, ThresholdAlert{
				Dimension:    t.dimension,
				Threshold:    t.threshold,
				Level:        level,
				UsagePercent: pct,
			})
		}
	}

	return fired
}

// cacheTerminal 缓存终态会话摘要，失败只记录日志
func (s *GuestSessionService) cacheTerminal(session *models.GuestSession) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.CacheSessionSummary(session, 24*time.Hour); err != nil {
		logger.Warning("缓存会话摘要失败: session=%d err=%v", session.ID, err)
	}
}

// statusChangeEntry 构造一条状态转换审计记录，带前后状态与触发原因
func statusChangeEntry(session *models.GuestSession, prev models.SessionStatus, reason string, meta RequestMeta) *models.AuditLog {
	return &models.AuditLog{
		AccessCodeID: &session.AccessCodeID,
		SessionID:    &session.ID,
		RequestID:    meta.RequestID,
		Action:       models.AuditActionStatusChange,
		Result:       models.AuditResultSuccess,
		Details:      fmt.Sprintf(`{"from":"%s","to":"%s","reason":"%s"}`, prev, session.Status, reason),
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	}
}

// derivedTimeConsumed 按墙钟推导时间消耗: floor((now - startedAt) / 1分钟)。
// 上限为会话过期时刻，且不小于已冻结的存量值（单调不减）
func derivedTimeConsumed(session *models.GuestSession, now time.Time) int64 {
	end := now
	if end.After(session.ExpiresAt) {
		end = session.ExpiresAt
	}
	if end.Before(session.StartedAt) {
		return session.TimeConsumedMinutes
	}

	minutes := int64(end.Sub(session.StartedAt) / time.Minute)
	if minutes < session.TimeConsumedMinutes {
		return session.TimeConsumedMinutes
	}
	return minutes
}

// lockForUpdate 对后续查询加行级写锁。
// SQLite方言没有FOR UPDATE语法，其写入本身就是整库串行的
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// isRetryableTxError 判断错误是否为可重试的事务冲突（死锁/锁等待超时）
func isRetryableTxError(err error) bool {
	var mysqlErr *mysqldrv.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1213 || mysqlErr.Number == 1205
	}
	return false
}
