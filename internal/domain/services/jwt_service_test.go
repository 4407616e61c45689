package services

import (
	"testing"
	"time"

	"guestnet-http-service/internal/domain/models"
	"guestnet-http-service/internal/infrastructure/config"
	"guestnet-http-service/utils"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJWTService(t *testing.T) (InterfaceJWTService, *config.Config) {
	t.Helper()

	cfg := &config.Config{
		JWTSecretKey:      "test-secret-key",
		TokenGraceSeconds: 120,
	}
	return NewJWTService(cfg, newTestDB(t)), cfg
}

func TestGenerateSessionTokenExpiryTracksSession(t *testing.T) {
	svc, cfg := newJWTService(t)

	expiresAt := time.Now().Add(90 * time.Minute).Truncate(time.Second)
	session := &models.GuestSession{
		BaseModel: models.BaseModel{ID: 7},
		Status:    models.SessionStatusActive,
		ExpiresAt: expiresAt,
	}

	tokenStr, err := svc.GenerateSessionToken(session)
	require.NoError(t, err)

	token, err := svc.ValidateToken(tokenStr)
	require.NoError(t, err)
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	require.True(t, ok)

	// 令牌有效期恰好为会话过期时刻加时钟偏差宽限
	exp, ok := mapClaims["exp"].(float64)
	require.True(t, ok)
	assert.Equal(t, expiresAt.Add(cfg.TokenGrace()).Unix(), int64(exp))
}

func TestSessionTokenRejectedAfterGraceWindow(t *testing.T) {
	svc, _ := newJWTService(t)

	// 会话早已过期，宽限期也已耗尽，令牌必须被拒绝
	session := &models.GuestSession{
		BaseModel: models.BaseModel{ID: 8},
		Status:    models.SessionStatusExpired,
		ExpiresAt: time.Now().Add(-10 * time.Minute),
	}

	tokenStr, err := svc.GenerateSessionToken(session)
	require.NoError(t, err)

	_, err = svc.ExtractClaims(tokenStr)
	assert.Error(t, err)
}

func TestExtractClaimsRoundTrip(t *testing.T) {
	svc, _ := newJWTService(t)

	session := &models.GuestSession{
		BaseModel: models.BaseModel{ID: 42},
		Status:    models.SessionStatusActive,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	guestToken, err := svc.GenerateSessionToken(session)
	require.NoError(t, err)

	claims, err := svc.ExtractClaims(guestToken)
	require.NoError(t, err)
	assert.Equal(t, RoleGuest, claims.Role)
	require.NotNil(t, claims.SessionID)
	assert.Equal(t, uint(42), *claims.SessionID)
	assert.Equal(t, "guestnet-http-service", claims.Issuer)

	adminToken, err := svc.GenerateAdminToken(3)
	require.NoError(t, err)

	claims, err = svc.ExtractClaims(adminToken)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.Equal(t, uint(3), claims.UserID)
	assert.Nil(t, claims.SessionID)
}

func TestExtractClaimsRejectsForgedSignature(t *testing.T) {
	svc, _ := newJWTService(t)

	other := NewJWTService(&config.Config{
		JWTSecretKey:      "another-secret",
		TokenGraceSeconds: 120,
	}, nil)
	forged, err := other.GenerateAdminToken(1)
	require.NoError(t, err)

	_, err = svc.ExtractClaims(forged)
	assert.Error(t, err)
}

func TestAdminLoginAndChangePassword(t *testing.T) {
	db := newTestDB(t)
	cfg := &config.Config{
		JWTSecretKey:      "test-secret-key",
		TokenGraceSeconds: 120,
	}
	svc := NewJWTService(cfg, db)

	hash, err := utils.HashPassword("initial-pass")
	require.NoError(t, err)
	admin := &models.Admin{Username: "admin", Password: hash, Status: "active"}
	require.NoError(t, db.Create(admin).Error)

	result, err := svc.Login("admin", "initial-pass")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, result.Role)
	assert.NotEmpty(t, result.Token)

	_, err = svc.Login("admin", "wrong-pass")
	assert.ErrorIs(t, err, ErrAdminLoginFailed)

	require.NoError(t, svc.ChangePassword(admin.ID, "initial-pass", "rotated-pass"))
	_, err = svc.Login("admin", "initial-pass")
	assert.ErrorIs(t, err, ErrAdminLoginFailed)
	_, err = svc.Login("admin", "rotated-pass")
	assert.NoError(t, err)
}
