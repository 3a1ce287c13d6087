package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TenantLevel labels the organizational level of a tenant
type TenantLevel string

const (
	LevelBundesverband  TenantLevel = "bundesverband"
	LevelLandesverband  TenantLevel = "landesverband"
	LevelBezirksverband TenantLevel = "bezirksverband"
	LevelKreisverband   TenantLevel = "kreisverband"
)

// Tenant represents an organizational unit in the tenant forest
type Tenant struct {
	ID           uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	Name         string      `json:"name" gorm:"not null"`
	Slug         string      `json:"slug" gorm:"uniqueIndex;not null"`
	Description  string      `json:"description,omitempty"`
	Level        TenantLevel `json:"level" gorm:"type:varchar(32);not null"`
	ParentID     *uuid.UUID  `json:"parent_id,omitempty" gorm:"type:uuid;index"`
	IsActive     bool        `json:"is_active" gorm:"not null"`
	LogoURL      string      `json:"logo_url,omitempty"`
	PrimaryColor string      `json:"primary_color,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`

	Children []Tenant `json:"children,omitempty" gorm:"-"`
}

// TableName returns the table name for the Tenant model
func (Tenant) TableName() string {
	return "tenants"
}

func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// IsRoot reports whether the tenant has no parent
func (t *Tenant) IsRoot() bool {
	return t.ParentID == nil
}
