package model

import "time"

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"` // UUID
	Username  string    `gorm:"type:varchar(64);not null" json:"username"`
	Email     string    `gorm:"uniqueIndex;type:varchar(128);not null" json:"email"`
	Password  string    `gorm:"type:varchar(128);not null" json:"-"` // BCrypt hash
	Role      string    `gorm:"type:varchar(16);not null;default:member" json:"role"`
	Image     string    `gorm:"type:varchar(512)" json:"image"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}
