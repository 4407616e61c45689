package models

import (
	"time"
)

// AccessCodeLevel represents the quota tier of an access code
type AccessCodeLevel string

const (
	LevelPremium  AccessCodeLevel = "premium"
	LevelStandard AccessCodeLevel = "standard"
	LevelBasic    AccessCodeLevel = "basic"
	LevelCustom   AccessCodeLevel = "custom"
)

// Valid reports whether the level is one of the known tiers
func (l AccessCodeLevel) Valid() bool {
	switch l {
	case LevelPremium, LevelStandard, LevelBasic, LevelCustom:
		return true
	}
	return false
}

// AccessCode represents a single- or multi-use guest access credential
type AccessCode struct {
	BaseModel
	Code  string          `gorm:"type:varchar(8);uniqueIndex;not null" json:"code"`
	Level AccessCodeLevel `gorm:"type:varchar(20);not null;default:'standard'" json:"level"`

	// Custom quota overrides, present only when Level is custom
	CustomDataQuotaMB      *int64 `json:"custom_data_quota_mb,omitempty"`
	CustomTimeQuotaMinutes *int64 `json:"custom_time_quota_minutes,omitempty"`

	IsActive    bool       `gorm:"not null;default:true" json:"is_active"`
	ExpiresAt   time.Time  `gorm:"not null;index" json:"expires_at"`
	MaxUses     int        `gorm:"not null;default:1" json:"max_uses"`
	CurrentUses int        `gorm:"not null;default:0" json:"current_uses"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`

	Remark string `gorm:"type:varchar(255)" json:"remark,omitempty"`

	// Relations
	Sessions []GuestSession `gorm:"foreignKey:AccessCodeID" json:"sessions,omitempty"`
}

// RemainingUses returns how many logins the code still allows
func (a *AccessCode) RemainingUses() int {
	remaining := a.MaxUses - a.CurrentUses
	if remaining < 0 {
		return 0
	}
	return remaining
}
