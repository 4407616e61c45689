package models

// Admin represents system administrators
type Admin struct {
	BaseModel
	Username string `gorm:"type:varchar(50);unique;not null" json:"username"`
	Password string `gorm:"type:varchar(100);not null" json:"-"` // Password not exposed in JSON
	Email    string `gorm:"type:varchar(100)" json:"email"`
	Status   string `gorm:"type:varchar(20);default:'active'" json:"status"` // Status: active, inactive
}
