package models

import (
	"math"
	"time"
)

// SessionStatus represents the lifecycle state of a guest session
type SessionStatus string

const (
	SessionStatusActive        SessionStatus = "active"
	SessionStatusExpired       SessionStatus = "expired"
	SessionStatusTerminated    SessionStatus = "terminated"
	SessionStatusQuotaExceeded SessionStatus = "quota_exceeded"
)

// Terminal reports whether the status permits no further transitions
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusExpired || s == SessionStatusTerminated || s == SessionStatusQuotaExceeded
}

// WarningFlag marks one (dimension, threshold) alert as already sent
type WarningFlag uint8

const (
	WarnData80 WarningFlag = 1 << iota
	WarnData95
	WarnTime80
	WarnTime95
)

// Has reports whether the flag set contains f
func (w WarningFlag) Has(f WarningFlag) bool {
	return w&f != 0
}

// GuestSession represents one metered guest network access session.
// Quota fields are copied from the access code at creation and never
// change afterwards; consumption fields only ever grow.
type GuestSession struct {
	BaseModel
	AccessCodeID uint          `gorm:"index;not null" json:"access_code_id"`
	Status       SessionStatus `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`

	DataQuotaMB      int64 `gorm:"not null" json:"data_quota_mb"`
	TimeQuotaMinutes int64 `gorm:"not null" json:"time_quota_minutes"`

	DataConsumedMB      int64 `gorm:"not null;default:0" json:"data_consumed_mb"`
	TimeConsumedMinutes int64 `gorm:"not null;default:0" json:"time_consumed_minutes"`

	StartedAt    time.Time  `gorm:"not null" json:"started_at"`
	ExpiresAt    time.Time  `gorm:"not null;index" json:"expires_at"`
	TerminatedAt *time.Time `json:"terminated_at,omitempty"`

	// Bitmask of threshold alerts already fired, frozen once terminal
	WarningsSent WarningFlag `gorm:"not null;default:0" json:"warnings_sent"`

	DeviceInfo string `gorm:"type:varchar(255)" json:"device_info,omitempty"`
	ClientIP   string `gorm:"type:varchar(45)" json:"client_ip,omitempty"`

	// Relations
	AccessCode *AccessCode `gorm:"foreignKey:AccessCodeID" json:"access_code,omitempty"`
}

// DataUsagePercent returns the rounded data usage percentage.
// May exceed 100 transiently before termination is applied.
func (s *GuestSession) DataUsagePercent() int {
	return usagePercent(s.DataConsumedMB, s.DataQuotaMB)
}

// TimeUsagePercent returns the rounded time usage percentage
func (s *GuestSession) TimeUsagePercent() int {
	return usagePercent(s.TimeConsumedMinutes, s.TimeQuotaMinutes)
}

// DataRemainingMB returns the unconsumed data budget, never negative
func (s *GuestSession) DataRemainingMB() int64 {
	if s.DataConsumedMB >= s.DataQuotaMB {
		return 0
	}
	return s.DataQuotaMB - s.DataConsumedMB
}

// TimeRemainingMinutes returns the unconsumed time budget, never negative
func (s *GuestSession) TimeRemainingMinutes() int64 {
	if s.TimeConsumedMinutes >= s.TimeQuotaMinutes {
		return 0
	}
	return s.TimeQuotaMinutes - s.TimeConsumedMinutes
}

// Warnings lists the threshold alerts already sent, in firing order
func (s *GuestSession) Warnings() []string {
	labels := []struct {
		flag WarningFlag
		name string
	}{
		{WarnData80, "data_80"},
		{WarnData95, "data_95"},
		{WarnTime80, "time_80"},
		{WarnTime95, "time_95"},
	}
	out := make([]string, 0, 4)
	for _, l := range labels {
		if s.WarningsSent.Has(l.flag) {
			out = append(out, l.name)
		}
	}
	return out
}

func usagePercent(consumed, quota int64) int {
	if quota <= 0 {
		return 0
	}
	return int(math.Round(float64(consumed) / float64(quota) * 100))
}
