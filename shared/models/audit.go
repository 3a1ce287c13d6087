package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditAction names a recorded write
type AuditAction string

const (
	ActionCreate  AuditAction = "create"
	ActionUpdate  AuditAction = "update"
	ActionDelete  AuditAction = "delete"
	ActionApprove AuditAction = "approve"
	ActionReject  AuditAction = "reject"
	ActionSend    AuditAction = "send"
	ActionUpload  AuditAction = "upload"
	ActionLogin   AuditAction = "login"
)

// AuditLog is one row of the audit trail
type AuditLog struct {
	ID         uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	UserID     *uuid.UUID  `json:"user_id,omitempty" gorm:"type:uuid;index"`
	Action     AuditAction `json:"action" gorm:"type:varchar(30);not null;index"`
	EntityType string      `json:"entity_type" gorm:"type:varchar(50);not null;index"`
	EntityID   *uuid.UUID  `json:"entity_id,omitempty" gorm:"type:uuid"`
	Details    string      `json:"details,omitempty" gorm:"type:text"`
	IPAddress  string      `json:"ip_address,omitempty" gorm:"type:varchar(45)"`
	CreatedAt  time.Time   `json:"created_at" gorm:"index"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// All lists every model for AutoMigrate
func All() []interface{} {
	return []interface{}{
		&Tenant{},
		&User{},
		&Category{},
		&Event{},
		&Meeting{},
		&Chapter{},
		&BoardMember{},
		&ChapterProtocol{},
		&MemberChange{},
		&EmailTemplate{},
		&EmailRecipient{},
		&Document{},
		&Amendment{},
		&AmendmentPassage{},
		&AuditLog{},
	}
}
