package models

// AuditResult represents the outcome recorded for an audited action
type AuditResult string

const (
	AuditResultPending AuditResult = "pending"
	AuditResultSuccess AuditResult = "success"
	AuditResultFailed  AuditResult = "failed"
)

// AuditAction tags what kind of event an audit row records
type AuditAction string

const (
	AuditActionCodeValidate   AuditAction = "code_validate"
	AuditActionCodeCreate     AuditAction = "code_create"
	AuditActionCodeDeactivate AuditAction = "code_deactivate"
	AuditActionCodeDelete     AuditAction = "code_delete"
	AuditActionSessionCreate  AuditAction = "session_create"
	AuditActionUsageReport    AuditAction = "usage_report"
	AuditActionThresholdAlert AuditAction = "threshold_alert"
	AuditActionStatusChange   AuditAction = "status_change"
	AuditActionLogout         AuditAction = "logout"
	AuditActionAdminTerminate AuditAction = "admin_terminate"
)

// AuditLog is an append-only record of every validation attempt and
// state transition. Rows are never updated or deleted after insert.
type AuditLog struct {
	BaseModel
	AccessCodeID *uint  `gorm:"index" json:"access_code_id,omitempty"`
	SessionID    *uint  `gorm:"index" json:"session_id,omitempty"`
	RequestID    string `gorm:"type:varchar(36)" json:"request_id,omitempty"`

	Action  AuditAction `gorm:"type:varchar(50);not null;index" json:"action"`
	Result  AuditResult `gorm:"type:varchar(20);not null;index" json:"result"`
	Details string      `gorm:"type:text" json:"details,omitempty"`

	// Request provenance
	IPAddress string `gorm:"type:varchar(45)" json:"ip_address,omitempty"`
	UserAgent string `gorm:"type:varchar(255)" json:"user_agent,omitempty"`
}
