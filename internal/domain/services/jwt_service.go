package services

import (
	"errors"
	"fmt"
	"time"

	"guestnet-http-service/internal/domain/models"
	"guestnet-http-service/internal/infrastructure/config"
	"guestnet-http-service/utils"

	"github.com/golang-jwt/jwt/v4"
	"gorm.io/gorm"
)

// 令牌角色
const (
	RoleAdmin = "admin"
	RoleGuest = "guest"
)

// ErrAdminLoginFailed 管理员登录失败
var ErrAdminLoginFailed = errors.New("用户名或密码错误")

// InterfaceJWTService 定义JWT服务接口
type InterfaceJWTService interface {
	GenerateAdminToken(adminID uint) (string, error)
	GenerateSessionToken(session *models.GuestSession) (string, error)
	ValidateToken(tokenString string) (*jwt.Token, error)
	ExtractClaims(tokenString string) (*JWTClaims, error)
	Login(username, password string) (*LoginResult, error)
	ChangePassword(adminID uint, oldPassword, newPassword string) error
}

// LoginResult 表示管理员登录结果
type LoginResult struct {
	Token     string      `json:"token"`
	UserID    uint        `json:"user_id"`
	Role      string      `json:"role"`
	Username  string      `json:"username"`
	CreatedAt interface{} `json:"created_at"`
}

// JWTService 提供JWT相关服务
type JWTService struct {
	secretKey  string
	issuer     string
	tokenGrace time.Duration
	DB         *gorm.DB
}

// JWTClaims 定义JWT令牌的声明结构
type JWTClaims struct {
	UserID    uint   `json:"user_id,omitempty"`
	SessionID *uint  `json:"session_id,omitempty"` // 访客会话ID，仅访客令牌携带
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// NewJWTService 创建一个新的JWT服务
func NewJWTService(cfg *config.Config, db *gorm.DB) InterfaceJWTService {
	return &JWTService{
		secretKey:  cfg.JWTSecretKey,
		issuer:     "guestnet-http-service",
		tokenGrace: cfg.TokenGrace(),
		DB:         db,
	}
}

// GenerateAdminToken 生成管理员令牌，有效期24小时
func (s *JWTService) GenerateAdminToken(adminID uint) (string, error) {
	expirationTime := time.Now().Add(24 * time.Hour)

	claims := &JWTClaims{
		UserID: adminID,
		Role:   RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secretKey))
}

// GenerateSessionToken 为访客会话生成会话令牌。
// 令牌有效期不超过会话过期时间加一个小的时钟偏差宽限期
func (s *JWTService) GenerateSessionToken(session *models.GuestSession) (string, error) {
	sessionID := session.ID
	expirationTime := session.ExpiresAt.Add(s.tokenGrace)

	claims := &JWTClaims{
		SessionID: &sessionID,
		Role:      RoleGuest,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secretKey))
}

// ValidateToken 验证JWT令牌
func (s *JWTService) ValidateToken(tokenString string) (*jwt.Token, error) {
	return jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// 验证签名算法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.secretKey), nil
	})
}

// ExtractClaims 从令牌中提取声明
func (s *JWTService) ExtractClaims(tokenString string) (*JWTClaims, error) {
	token, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	jwtClaims := &JWTClaims{}

	if issuer, ok := claims["iss"].(string); ok {
		jwtClaims.Issuer = issuer
	}
	if userID, ok := claims["user_id"].(float64); ok {
		jwtClaims.UserID = uint(userID)
	}
	if sessionID, ok := claims["session_id"].(float64); ok {
		sid := uint(sessionID)
		jwtClaims.SessionID = &sid
	}
	if role, ok := claims["role"].(string); ok {
		jwtClaims.Role = role
	}

	return jwtClaims, nil
}

// Login 处理管理员登录请求
func (s *JWTService) Login(username, password string) (*LoginResult, error) {
	var admin models.Admin
	if err := s.DB.Where("username = ?", username).First(&admin).Error; err != nil {
		return nil, ErrAdminLoginFailed
	}

	if admin.Status != "active" {
		return nil, ErrAdminLoginFailed
	}

	if !utils.CheckPasswordHash(password, admin.Password) {
		return nil, ErrAdminLoginFailed
	}

	token, err := s.GenerateAdminToken(admin.ID)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Token:     token,
		UserID:    admin.ID,
		Role:      RoleAdmin,
		Username:  admin.Username,
		CreatedAt: admin.CreatedAt,
	}, nil
}

// ChangePassword 修改管理员密码
func (s *JWTService) ChangePassword(adminID uint, oldPassword, newPassword string) error {
	var admin models.Admin
	if err := s.DB.First(&admin, adminID).Error; err != nil {
		return err
	}

	if !utils.CheckPasswordHash(oldPassword, admin.Password) {
		return ErrAdminLoginFailed
	}

	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return err
	}

	return s.DB.Model(&admin).Update("password", hash).Error
}
