package models

import "time"

// User is an operator account for the management API
type User struct {
	BaseModel
	Email       string     `gorm:"not null;uniqueIndex" json:"email" validate:"required,email"`
	Password    string     `gorm:"not null" json:"-"`
	Name        string     `json:"name"`
	Role        string     `gorm:"not null;default:'admin'" json:"role"`
	IsActive    bool       `gorm:"default:true" json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at"`
}
