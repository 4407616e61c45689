package services

import (
	"fmt"
	"testing"
	"time"

	"guestnet-http-service/internal/domain/models"
	"guestnet-http-service/internal/infrastructure/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Admin{},
		&models.AccessCode{},
		&models.GuestSession{},
		&models.AuditLog{},
	))
	return db
}

func newCodeService(t *testing.T) (*gorm.DB, InterfaceAccessCodeService, InterfaceAuditService) {
	t.Helper()

	db := newTestDB(t)
	cfg := &config.Config{}
	audit := NewAuditService(db, cfg)
	return db, NewAccessCodeService(db, cfg, audit), audit
}

func int64Ptr(v int64) *int64 { return &v }

func TestResolveQuotaTiers(t *testing.T) {
	_, svc, _ := newCodeService(t)

	cases := []struct {
		level       models.AccessCodeLevel
		dataMB      int64
		timeMinutes int64
	}{
		{models.LevelPremium, 2048, 480},
		{models.LevelStandard, 1024, 240},
		{models.LevelBasic, 512, 120},
	}

	for _, tc := range cases {
		budget, err := svc.ResolveQuota(tc.level, nil, nil)
		require.NoError(t, err, "level %s", tc.level)
		assert.Equal(t, tc.dataMB, budget.DataQuotaMB)
		assert.Equal(t, tc.timeMinutes, budget.TimeQuotaMinutes)
	}
}

func TestResolveQuotaCustom(t *testing.T) {
	_, svc, _ := newCodeService(t)

	budget, err := svc.ResolveQuota(models.LevelCustom, int64Ptr(4096), int64Ptr(720))
	require.NoError(t, err)
	assert.Equal(t, int64(4096), budget.DataQuotaMB)
	assert.Equal(t, int64(720), budget.TimeQuotaMinutes)

	// 自定义档位必须同时提供两个正数覆盖值
	_, err = svc.ResolveQuota(models.LevelCustom, int64Ptr(4096), nil)
	assert.ErrorIs(t, err, ErrQuotaConfig)

	_, err = svc.ResolveQuota(models.LevelCustom, nil, int64Ptr(720))
	assert.ErrorIs(t, err, ErrQuotaConfig)

	_, err = svc.ResolveQuota(models.LevelCustom, int64Ptr(0), int64Ptr(720))
	assert.ErrorIs(t, err, ErrQuotaConfig)

	_, err = svc.ResolveQuota(models.LevelCustom, int64Ptr(4096), int64Ptr(-1))
	assert.ErrorIs(t, err, ErrQuotaConfig)
}

func TestCreateAccessCode(t *testing.T) {
	db, svc, _ := newCodeService(t)

	code, err := svc.CreateAccessCode(CreateAccessCodeInput{
		Level:     models.LevelStandard,
		ExpiresAt: time.Now().Add(24 * time.Hour),
		MaxUses:   3,
		Remark:    "前台访客",
	}, RequestMeta{IPAddress: "10.0.0.1"})
	require.NoError(t, err)

	assert.Len(t, code.Code, 8)
	assert.True(t, code.IsActive)
	assert.Equal(t, 3, code.MaxUses)
	assert.Equal(t, 0, code.CurrentUses)

	// 生成的字符集不包含易混淆字符
	for _, r := range code.Code {
		assert.NotContains(t, "0O1IL", string(r))
	}

	var auditCount int64
	db.Model(&models.AuditLog{}).
		Where("action = ? AND result = ?", models.AuditActionCodeCreate, models.AuditResultSuccess).
		Count(&auditCount)
	assert.Equal(t, int64(1), auditCount)
}

func TestCreateAccessCodeRejectsOverridesOnFixedTiers(t *testing.T) {
	_, svc, _ := newCodeService(t)

	_, err := svc.CreateAccessCode(CreateAccessCodeInput{
		Level:             models.LevelStandard,
		CustomDataQuotaMB: int64Ptr(4096),
		ExpiresAt:         time.Now().Add(time.Hour),
		MaxUses:           1,
	}, RequestMeta{})
	assert.ErrorIs(t, err, ErrQuotaConfig)
}

func TestValidateCodeOrderedChecks(t *testing.T) {
	db, svc, _ := newCodeService(t)
	now := time.Now()

	// 不存在
	_, err := svc.ValidateCode("NOPE1234", now, RequestMeta{})
	assert.ErrorIs(t, err, ErrCodeNotFound)

	// 已停用，即使同时也过期，停用优先
	deactivated := &models.AccessCode{
		Code: "DEAD2345", Level: models.LevelBasic, IsActive: false,
		ExpiresAt: now.Add(-time.Hour), MaxUses: 1,
	}
	require.NoError(t, db.Create(deactivated).Error)
	_, err = svc.ValidateCode("DEAD2345", now, RequestMeta{})
	assert.ErrorIs(t, err, ErrCodeDeactivated)

	// 已过期
	expired := &models.AccessCode{
		Code: "GONE2345", Level: models.LevelBasic, IsActive: true,
		ExpiresAt: now.Add(-time.Minute), MaxUses: 1,
	}
	require.NoError(t, db.Create(expired).Error)
	_, err = svc.ValidateCode("GONE2345", now, RequestMeta{})
	assert.ErrorIs(t, err, ErrCodeExpired)

	// 次数耗尽
	used := &models.AccessCode{
		Code: "USED2345", Level: models.LevelBasic, IsActive: true,
		ExpiresAt: now.Add(time.Hour), MaxUses: 2, CurrentUses: 2,
	}
	require.NoError(t, db.Create(used).Error)
	_, err = svc.ValidateCode("USED2345", now, RequestMeta{})
	assert.ErrorIs(t, err, ErrCodeExhausted)

	// 有效
	ok := &models.AccessCode{
		Code: "GOOD2345", Level: models.LevelBasic, IsActive: true,
		ExpiresAt: now.Add(time.Hour), MaxUses: 1,
	}
	require.NoError(t, db.Create(ok).Error)
	got, err := svc.ValidateCode("GOOD2345", now, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, ok.ID, got.ID)
}

func TestValidateCodeHasNoSideEffects(t *testing.T) {
	db, svc, _ := newCodeService(t)
	now := time.Now()

	code := &models.AccessCode{
		Code: "PURE2345", Level: models.LevelBasic, IsActive: true,
		ExpiresAt: now.Add(time.Hour), MaxUses: 1,
	}
	require.NoError(t, db.Create(code).Error)

	for i := 0; i < 3; i++ {
		_, err := svc.ValidateCode("PURE2345", now, RequestMeta{})
		require.NoError(t, err)
	}

	var reloaded models.AccessCode
	require.NoError(t, db.First(&reloaded, code.ID).Error)
	assert.Equal(t, 0, reloaded.CurrentUses)
	assert.Nil(t, reloaded.LastUsedAt)
}

func TestValidateCodeAuditsEveryAttempt(t *testing.T) {
	db, svc, _ := newCodeService(t)
	now := time.Now()

	_, _ = svc.ValidateCode("MISSING1", now, RequestMeta{IPAddress: "10.0.0.9"})

	code := &models.AccessCode{
		Code: "AUDT2345", Level: models.LevelBasic, IsActive: true,
		ExpiresAt: now.Add(time.Hour), MaxUses: 1,
	}
	require.NoError(t, db.Create(code).Error)
	_, err := svc.ValidateCode("AUDT2345", now, RequestMeta{})
	require.NoError(t, err)

	var failed, succeeded int64
	db.Model(&models.AuditLog{}).
		Where("action = ? AND result = ?", models.AuditActionCodeValidate, models.AuditResultFailed).
		Count(&failed)
	db.Model(&models.AuditLog{}).
		Where("action = ? AND result = ?", models.AuditActionCodeValidate, models.AuditResultSuccess).
		Count(&succeeded)
	assert.Equal(t, int64(1), failed)
	assert.Equal(t, int64(1), succeeded)
}

func TestDeactivateAccessCode(t *testing.T) {
	db, svc, _ := newCodeService(t)
	now := time.Now()

	code := &models.AccessCode{
		Code: "SHUT2345", Level: models.LevelBasic, IsActive: true,
		ExpiresAt: now.Add(time.Hour), MaxUses: 1,
	}
	require.NoError(t, db.Create(code).Error)

	updated, err := svc.DeactivateAccessCode(code.ID, RequestMeta{})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	// 停用后校验被拒绝
	_, err = svc.ValidateCode("SHUT2345", now, RequestMeta{})
	assert.ErrorIs(t, err, ErrCodeDeactivated)
}

func TestDeleteAccessCodeRefusesWithActiveSessions(t *testing.T) {
	db, svc, _ := newCodeService(t)
	now := time.Now()

	code := &models.AccessCode{
		Code: "BUSY2345", Level: models.LevelBasic, IsActive: true,
		ExpiresAt: now.Add(time.Hour), MaxUses: 1, CurrentUses: 1,
	}
	require.NoError(t, db.Create(code).Error)

	session := &models.GuestSession{
		AccessCodeID: code.ID, Status: models.SessionStatusActive,
		DataQuotaMB: 512, TimeQuotaMinutes: 120,
		StartedAt: now, ExpiresAt: now.Add(2 * time.Hour),
	}
	require.NoError(t, db.Create(session).Error)

	err := svc.DeleteAccessCode(code.ID, RequestMeta{})
	assert.ErrorIs(t, err, ErrHasActiveSessions)

	// 会话结束后允许删除
	require.NoError(t, db.Model(session).Update("status", models.SessionStatusTerminated).Error)
	require.NoError(t, svc.DeleteAccessCode(code.ID, RequestMeta{}))

	var count int64
	db.Model(&models.AccessCode{}).Where("id = ?", code.ID).Count(&count)
	assert.Equal(t, int64(0), count)
}
