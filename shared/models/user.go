package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/rbac"
)

// User represents an intranet account
type User struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Username     string     `json:"username" gorm:"uniqueIndex;not null"`
	Email        string     `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string     `json:"-" gorm:"not null"`
	FullName     string     `json:"full_name,omitempty"`
	Role         rbac.Role  `json:"role" gorm:"type:varchar(20);not null"`
	TenantID     *uuid.UUID `json:"tenant_id,omitempty" gorm:"type:uuid;index"`
	IsActive     bool       `json:"is_active" gorm:"not null"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	Tenant *Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Subject returns the authorization view of the user
func (u *User) Subject() rbac.Subject {
	return rbac.Subject{UserID: u.ID, Role: u.Role, TenantID: u.TenantID}
}

// DisplayName prefers the full name over the username
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// DisplayRole maps vorstand to the level specific board title of the home tenant
func (u *User) DisplayRole() string {
	if u.Role != rbac.RoleVorstand || u.Tenant == nil {
		return string(u.Role)
	}
	switch u.Tenant.Level {
	case LevelBundesverband:
		return "bundesvorstand"
	case LevelLandesverband:
		return "landesvorstand"
	case LevelBezirksverband:
		return "bezirksvorstand"
	case LevelKreisverband:
		return "kreisvorstand"
	}
	return string(u.Role)
}

// UserProfile is the payload of /auth/me
type UserProfile struct {
	ID                  uuid.UUID   `json:"id"`
	Username            string      `json:"username"`
	Email               string      `json:"email"`
	FullName            string      `json:"full_name,omitempty"`
	Role                rbac.Role   `json:"role"`
	IsActive            bool        `json:"is_active"`
	TenantID            *uuid.UUID  `json:"tenant_id,omitempty"`
	DisplayRole         string      `json:"display_role"`
	AccessibleTenantIDs []uuid.UUID `json:"accessible_tenant_ids"`
}

// NewUserProfile builds the profile view of u
func NewUserProfile(u *User, accessible []uuid.UUID) UserProfile {
	if accessible == nil {
		accessible = []uuid.UUID{}
	}
	return UserProfile{
		ID:                  u.ID,
		Username:            u.Username,
		Email:               u.Email,
		FullName:            u.FullName,
		Role:                u.Role,
		IsActive:            u.IsActive,
		TenantID:            u.TenantID,
		DisplayRole:         u.DisplayRole(),
		AccessibleTenantIDs: accessible,
	}
}
