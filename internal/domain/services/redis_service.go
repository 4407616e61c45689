package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"guestnet-http-service/internal/domain/models"
	"guestnet-http-service/internal/infrastructure/config"

	"github.com/go-redis/redis/v8"
)

// InterfaceRedisService defines the Redis service interface
type InterfaceRedisService interface {
	Set(key string, value interface{}, expiration time.Duration) error
	Get(key string, dest interface{}) error
	Delete(key string) error
	CacheSessionSummary(session *models.GuestSession, expiration time.Duration) error
	GetSessionSummary(sessionID uint) (*models.GuestSession, error)
	Ping() error
}

// RedisService handles Redis operations
type RedisService struct {
	Client *redis.Client
	Ctx    context.Context
}

// NewRedisService creates a new Redis service
func NewRedisService(cfg *config.Config) InterfaceRedisService {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: "", // No password set
		DB:       cfg.RedisDB,
	})

	ctx := context.Background()

	return &RedisService{
		Client: client,
		Ctx:    ctx,
	}
}

// Set sets a key-value pair in Redis with expiration
func (s *RedisService) Set(key string, value interface{}, expiration time.Duration) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return s.Client.Set(s.Ctx, key, jsonValue, expiration).Err()
}

// Get gets a value from Redis by key
func (s *RedisService) Get(key string, dest interface{}) error {
	val, err := s.Client.Get(s.Ctx, key).Result()
	if err != nil {
		return err
	}

	return json.Unmarshal([]byte(val), dest)
}

// Delete deletes a key from Redis
func (s *RedisService) Delete(key string) error {
	return s.Client.Del(s.Ctx, key).Err()
}

// CacheSessionSummary caches a terminal session summary.
// Terminal sessions are immutable, so the cache never goes stale
func (s *RedisService) CacheSessionSummary(session *models.GuestSession, expiration time.Duration) error {
	key := fmt.Sprintf("session_summary:%d", session.ID)
	return s.Set(key, session, expiration)
}

// GetSessionSummary gets a cached terminal session summary
func (s *RedisService) GetSessionSummary(sessionID uint) (*models.GuestSession, error) {
	var session models.GuestSession
	key := fmt.Sprintf("session_summary:%d", sessionID)
	if err := s.Get(key, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Ping checks the Redis connection
func (s *RedisService) Ping() error {
	ctx, cancel := context.WithTimeout(s.Ctx, 2*time.Second)
	defer cancel()
	return s.Client.Ping(ctx).Err()
}
