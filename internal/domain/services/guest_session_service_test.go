package services

import (
	"errors"
	"testing"
	"time"

	"guestnet-http-service/internal/domain/models"
	"guestnet-http-service/internal/infrastructure/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type sessionTestEnv struct {
	db  *gorm.DB
	svc *GuestSessionService
	now time.Time
}

func newSessionTestEnv(t *testing.T) *sessionTestEnv {
	t.Helper()

	db := newTestDB(t)
	cfg := &config.Config{}
	audit := NewAuditService(db, cfg)
	codes := NewAccessCodeService(db, cfg, audit)
	network := NewNetworkService(cfg)

	env := &sessionTestEnv{
		db:  db,
		now: time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC),
	}
	env.svc = &GuestSessionService{
		DB:      db,
		Config:  cfg,
		Codes:   codes,
		Audit:   audit,
		Network: network,
		now:     func() time.Time { return env.now },
	}
	return env
}

func (e *sessionTestEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

// createCode 直接插入一个访问码记录
func (e *sessionTestEnv) createCode(t *testing.T, codeStr string, level models.AccessCodeLevel, validFor time.Duration, maxUses int) *models.AccessCode {
	t.Helper()

	code := &models.AccessCode{
		Code:      codeStr,
		Level:     level,
		IsActive:  true,
		ExpiresAt: e.now.Add(validFor),
		MaxUses:   maxUses,
	}
	require.NoError(t, e.db.Create(code).Error)
	return code
}

func TestCreateSessionExpiryIsEarlierOfCodeAndBudget(t *testing.T) {
	env := newSessionTestEnv(t)

	// 访问码1小时后过期，basic时间预算120分钟：取访问码过期时刻
	env.createCode(t, "SHRT2345", models.LevelBasic, time.Hour, 1)
	session, _, err := env.svc.CreateSession("SHRT2345", "", RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, env.now.Add(time.Hour), session.ExpiresAt)

	// 访问码48小时后过期：取时间预算
	env.createCode(t, "LONG2345", models.LevelBasic, 48*time.Hour, 1)
	session, _, err = env.svc.CreateSession("LONG2345", "", RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, env.now.Add(120*time.Minute), session.ExpiresAt)
	assert.Equal(t, int64(512), session.DataQuotaMB)
	assert.Equal(t, int64(120), session.TimeQuotaMinutes)
}

func TestCreateSessionConsumesUse(t *testing.T) {
	env := newSessionTestEnv(t)
	code := env.createCode(t, "ONCE2345", models.LevelBasic, 24*time.Hour, 1)

	session, returnedCode, err := env.svc.CreateSession("ONCE2345", "laptop", RequestMeta{IPAddress: "10.0.0.2"})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, session.Status)
	assert.Equal(t, 0, returnedCode.RemainingUses())

	var reloaded models.AccessCode
	require.NoError(t, env.db.First(&reloaded, code.ID).Error)
	assert.Equal(t, 1, reloaded.CurrentUses)
	assert.NotNil(t, reloaded.LastUsedAt)

	// 单次使用的访问码不允许第二次登录
	_, _, err = env.svc.CreateSession("ONCE2345", "", RequestMeta{})
	assert.ErrorIs(t, err, ErrCodeExhausted)
	assert.True(t, IsValidationFailure(err))
}

func TestReportUsageMonotonicMax(t *testing.T) {
	env := newSessionTestEnv(t)
	env.createCode(t, "DATA2345", models.LevelBasic, 24*time.Hour, 1)
	session, _, err := env.svc.CreateSession("DATA2345", "", RequestMeta{})
	require.NoError(t, err)

	updated, exceeded, _, err := env.svc.ReportUsage(session.ID, 300, RequestMeta{})
	require.NoError(t, err)
	assert.False(t, exceeded)
	assert.Equal(t, int64(300), updated.DataConsumedMB)

	// 乱序到达的较小上报不回退计数
	updated, _, _, err = env.svc.ReportUsage(session.ID, 200, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, int64(300), updated.DataConsumedMB)

	// 重复上报幂等
	updated, _, alerts, err := env.svc.ReportUsage(session.ID, 300, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, int64(300), updated.DataConsumedMB)
	assert.Empty(t, alerts)
}

func TestReportUsageThresholdAlertsFireOnce(t *testing.T) {
	env := newSessionTestEnv(t)
	env.createCode(t, "ALRT2345", models.LevelStandard, 24*time.Hour, 1)
	session, _, err := env.svc.CreateSession("ALRT2345", "", RequestMeta{})
	require.NoError(t, err)

	// 820/1024 = 80% 触发数据80告警
	_, _, alerts, err := env.svc.ReportUsage(session.ID, 820, RequestMeta{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, DimensionData, alerts[0].Dimension)
	assert.Equal(t, 80, alerts[0].Threshold)
	assert.Equal(t, AlertLevelWarning, alerts[0].Level)

	// 同一阈值不重复触发
	_, _, alerts, err = env.svc.ReportUsage(session.ID, 850, RequestMeta{})
	require.NoError(t, err)
	assert.Empty(t, alerts)

	// 973/1024 = 95% 触发数据95告警
	_, _, alerts, err = env.svc.ReportUsage(session.ID, 973, RequestMeta{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, 95, alerts[0].Threshold)
	assert.Equal(t, AlertLevelCritical, alerts[0].Level)

	// 告警同时落入审计日志
	var alertAudits int64
	env.db.Model(&models.AuditLog{}).
		Where("action = ?", models.AuditActionThresholdAlert).
		Count(&alertAudits)
	assert.Equal(t, int64(2), alertAudits)
}

func TestReportUsageQuotaExceededAtBoundary(t *testing.T) {
	env := newSessionTestEnv(t)
	env.createCode(t, "FULL2345", models.LevelBasic, 24*time.Hour, 1)
	session, _, err := env.svc.CreateSession("FULL2345", "", RequestMeta{})
	require.NoError(t, err)

	// 恰好等于512MB配额：先触发阈值告警，再转入超额终止
	updated, exceeded, alerts, err := env.svc.ReportUsage(session.ID, 512, RequestMeta{})
	require.NoError(t, err)
	assert.True(t, exceeded)
	assert.Equal(t, models.SessionStatusQuotaExceeded, updated.Status)
	assert.NotNil(t, updated.TerminatedAt)
	assert.Len(t, alerts, 2)

	// 终态会话的后续上报是良性no-op
	final, exceeded, alerts, err := env.svc.ReportUsage(session.ID, 600, RequestMeta{})
	require.NoError(t, err)
	assert.False(t, exceeded)
	assert.Empty(t, alerts)
	assert.Equal(t, models.SessionStatusQuotaExceeded, final.Status)
	assert.Equal(t, int64(512), final.DataConsumedMB)
}

func TestDerivedTimeConsumption(t *testing.T) {
	env := newSessionTestEnv(t)
	env.createCode(t, "TIME2345", models.LevelBasic, 24*time.Hour, 1)
	session, _, err := env.svc.CreateSession("TIME2345", "", RequestMeta{})
	require.NoError(t, err)

	env.advance(30*time.Minute + 30*time.Second)
	got, err := env.svc.GetSession(session.ID)
	require.NoError(t, err)
	// 不足一分钟的部分向下取整
	assert.Equal(t, int64(30), got.TimeConsumedMinutes)
	assert.Equal(t, models.SessionStatusActive, got.Status)
}

func TestSessionExpiresLazilyOnRead(t *testing.T) {
	env := newSessionTestEnv(t)
	env.createCode(t, "LAZY2345", models.LevelBasic, 24*time.Hour, 1)
	session, _, err := env.svc.CreateSession("LAZY2345", "", RequestMeta{})
	require.NoError(t, err)

	env.advance(3 * time.Hour)
	got, err := env.svc.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusExpired, got.Status)
	// 终止时刻回溯到计算出的过期时刻，而不是发现过期的时刻
	require.NotNil(t, got.TerminatedAt)
	assert.True(t, got.TerminatedAt.Equal(session.ExpiresAt))
	// 时间消耗封顶在会话窗口长度
	assert.Equal(t, int64(120), got.TimeConsumedMinutes)
}

func TestReportUsageOnDueSessionExpiresInsteadOfApplying(t *testing.T) {
	env := newSessionTestEnv(t)
	env.createCode(t, "DUEX2345", models.LevelBasic, 24*time.Hour, 1)
	session, _, err := env.svc.CreateSession("DUEX2345", "", RequestMeta{})
	require.NoError(t, err)

	env.advance(3 * time.Hour)
	got, exceeded, alerts, err := env.svc.ReportUsage(session.ID, 400, RequestMeta{})
	require.NoError(t, err)
	assert.False(t, exceeded)
	assert.Empty(t, alerts)
	assert.Equal(t, models.SessionStatusExpired, got.Status)
	// 过期优先，本次上报的消耗不再采纳
	assert.Equal(t, int64(0), got.DataConsumedMB)

	// 被拒绝的上报与终态拒绝一样落一条失败审计
	var rejected int64
	env.db.Model(&models.AuditLog{}).
		Where("session_id = ? AND action = ? AND result = ?",
			session.ID, models.AuditActionUsageReport, models.AuditResultFailed).
		Count(&rejected)
	assert.Equal(t, int64(1), rejected)
}

func TestCheckThresholdsTimeDimension(t *testing.T) {
	env := newSessionTestEnv(t)
	env.createCode(t, "TTHR2345", models.LevelBasic, 24*time.Hour, 1)
	session, _, err := env.svc.CreateSession("TTHR2345", "", RequestMeta{})
	require.NoError(t, err)

	// 100/120 = 83% 触发时间80告警
	env.advance(100 * time.Minute)
	_, alerts, err := env.svc.CheckThresholds(session.ID, RequestMeta{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, DimensionTime, alerts[0].Dimension)
	assert.Equal(t, 80, alerts[0].Threshold)

	// 重复检查不再触发
	_, alerts, err = env.svc.CheckThresholds(session.ID, RequestMeta{})
	require.NoError(t, err)
	assert.Empty(t, alerts)

	// 115/120 = 96% 触发时间95告警
	env.advance(15 * time.Minute)
	_, alerts, err = env.svc.CheckThresholds(session.ID, RequestMeta{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, 95, alerts[0].Threshold)
	assert.Equal(t, AlertLevelCritical, alerts[0].Level)
}

func TestTerminateSessionFreezesClock(t *testing.T) {
	env := newSessionTestEnv(t)
	env.createCode(t, "STOP2345", models.LevelBasic, 24*time.Hour, 1)
	session, _, err := env.svc.CreateSession("STOP2345", "", RequestMeta{})
	require.NoError(t, err)

	env.advance(45 * time.Minute)
	terminated, err := env.svc.TerminateSession(session.ID, "user", RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusTerminated, terminated.Status)
	assert.Equal(t, int64(45), terminated.TimeConsumedMinutes)
	require.NotNil(t, terminated.TerminatedAt)
	assert.Equal(t, env.now, *terminated.TerminatedAt)

	// 终止后时钟不再前进
	env.advance(time.Hour)
	got, err := env.svc.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(45), got.TimeConsumedMinutes)

	// 重复终止是良性no-op
	again, err := env.svc.TerminateSession(session.ID, "admin", RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusTerminated, again.Status)
	assert.Equal(t, terminated.TerminatedAt.Unix(), again.TerminatedAt.Unix())
}

func TestTerminateSessionAuditTrail(t *testing.T) {
	env := newSessionTestEnv(t)
	env.createCode(t, "ADMN2345", models.LevelBasic, 24*time.Hour, 1)
	session, _, err := env.svc.CreateSession("ADMN2345", "", RequestMeta{})
	require.NoError(t, err)

	_, err = env.svc.TerminateSession(session.ID, "admin", RequestMeta{IPAddress: "10.1.1.1"})
	require.NoError(t, err)

	var adminTerminates, statusChanges int64
	env.db.Model(&models.AuditLog{}).
		Where("action = ? AND session_id = ?", models.AuditActionAdminTerminate, session.ID).
		Count(&adminTerminates)
	env.db.Model(&models.AuditLog{}).
		Where("action = ? AND session_id = ?", models.AuditActionStatusChange, session.ID).
		Count(&statusChanges)
	assert.Equal(t, int64(1), adminTerminates)
	assert.Equal(t, int64(1), statusChanges)
}

func TestSweepExpiredSessions(t *testing.T) {
	env := newSessionTestEnv(t)
	env.createCode(t, "SWP12345", models.LevelBasic, 24*time.Hour, 1)
	env.createCode(t, "SWP22345", models.LevelBasic, 24*time.Hour, 1)
	env.createCode(t, "SWP32345", models.LevelPremium, 24*time.Hour, 1)

	s1, _, err := env.svc.CreateSession("SWP12345", "", RequestMeta{})
	require.NoError(t, err)
	s2, _, err := env.svc.CreateSession("SWP22345", "", RequestMeta{})
	require.NoError(t, err)
	// premium预算480分钟，3小时后仍然活跃
	s3, _, err := env.svc.CreateSession("SWP32345", "", RequestMeta{})
	require.NoError(t, err)

	env.advance(3 * time.Hour)
	count, err := env.svc.SweepExpiredSessions()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	for _, id := range []uint{s1.ID, s2.ID} {
		var reloaded models.GuestSession
		require.NoError(t, env.db.First(&reloaded, id).Error)
		assert.Equal(t, models.SessionStatusExpired, reloaded.Status)
	}
	var active models.GuestSession
	require.NoError(t, env.db.First(&active, s3.ID).Error)
	assert.Equal(t, models.SessionStatusActive, active.Status)

	// 再次清扫没有新过期
	count, err = env.svc.SweepExpiredSessions()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestGetAllSessionsFilter(t *testing.T) {
	env := newSessionTestEnv(t)
	code := env.createCode(t, "LIST2345", models.LevelBasic, 24*time.Hour, 3)

	var first *models.GuestSession
	for i := 0; i < 3; i++ {
		session, _, err := env.svc.CreateSession("LIST2345", "", RequestMeta{})
		require.NoError(t, err)
		if first == nil {
			first = session
		}
	}
	_, err := env.svc.TerminateSession(first.ID, "admin", RequestMeta{})
	require.NoError(t, err)

	sessions, total, err := env.svc.GetAllSessions(1, 10, SessionFilter{Status: string(models.SessionStatusActive)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, sessions, 2)

	sessions, total, err = env.svc.GetAllSessions(1, 10, SessionFilter{AccessCodeID: &code.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, sessions, 3)
}

func TestCustomQuotaSession(t *testing.T) {
	env := newSessionTestEnv(t)

	code := &models.AccessCode{
		Code:                   "CUST2345",
		Level:                  models.LevelCustom,
		CustomDataQuotaMB:      int64Ptr(100),
		CustomTimeQuotaMinutes: int64Ptr(60),
		IsActive:               true,
		ExpiresAt:              env.now.Add(24 * time.Hour),
		MaxUses:                1,
	}
	require.NoError(t, env.db.Create(code).Error)

	session, _, err := env.svc.CreateSession("CUST2345", "", RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, int64(100), session.DataQuotaMB)
	assert.Equal(t, int64(60), session.TimeQuotaMinutes)
	assert.Equal(t, env.now.Add(60*time.Minute), session.ExpiresAt)

	// 100MB配额上报100MB：两个数据阈值告警与超额终止同时发生
	updated, exceeded, alerts, err := env.svc.ReportUsage(session.ID, 100, RequestMeta{})
	require.NoError(t, err)
	assert.True(t, exceeded)
	assert.Len(t, alerts, 2)
	assert.Equal(t, models.SessionStatusQuotaExceeded, updated.Status)
}

// summaryCache 进程内的会话摘要缓存，测试中替代Redis
type summaryCache struct {
	summaries map[uint]models.GuestSession
}

func newSummaryCache() *summaryCache {
	return &summaryCache{summaries: make(map[uint]models.GuestSession)}
}

func (c *summaryCache) Set(key string, value interface{}, expiration time.Duration) error {
	return nil
}

func (c *summaryCache) Get(key string, dest interface{}) error {
	return errors.New("缓存未命中")
}

func (c *summaryCache) Delete(key string) error { return nil }

func (c *summaryCache) CacheSessionSummary(session *models.GuestSession, expiration time.Duration) error {
	c.summaries[session.ID] = *session
	return nil
}

func (c *summaryCache) GetSessionSummary(sessionID uint) (*models.GuestSession, error) {
	session, ok := c.summaries[sessionID]
	if !ok {
		return nil, errors.New("缓存未命中")
	}
	copied := session
	return &copied, nil
}

func (c *summaryCache) Ping() error { return nil }

func TestGetSessionServesTerminalSummaryFromCache(t *testing.T) {
	env := newSessionTestEnv(t)
	cache := newSummaryCache()
	env.svc.Cache = cache

	env.createCode(t, "CACH2345", models.LevelBasic, 24*time.Hour, 1)
	session, _, err := env.svc.CreateSession("CACH2345", "", RequestMeta{})
	require.NoError(t, err)

	// 活跃期间读取不走缓存
	_, err = env.svc.GetSession(session.ID)
	require.NoError(t, err)
	assert.Empty(t, cache.summaries)

	env.advance(45 * time.Minute)
	terminated, err := env.svc.TerminateSession(session.ID, "user", RequestMeta{})
	require.NoError(t, err)
	require.Contains(t, cache.summaries, session.ID)

	// 删除数据库行后仍能读到终态摘要，读路径命中缓存
	require.NoError(t, env.db.Delete(&models.GuestSession{}, session.ID).Error)

	got, err := env.svc.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusTerminated, got.Status)
	assert.Equal(t, terminated.TimeConsumedMinutes, got.TimeConsumedMinutes)
}
