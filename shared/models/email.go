package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TemplateType selects who a template addresses
type TemplateType string

const (
	TemplateMember       TemplateType = "mitglied"
	TemplateRecipient    TemplateType = "empfaenger"
	TemplateNotification TemplateType = "benachrichtigung"
)

// ScenarioAmendment is the template scenario used for amendment notices
const ScenarioAmendment = "aenderungsantrag"

// EmailTemplate is a mail body scoped by scenario, type and optional chapter
type EmailTemplate struct {
	ID                 uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey"`
	Name               string       `json:"name" gorm:"not null"`
	Scenario           string       `json:"scenario" gorm:"type:varchar(40);not null;index"`
	Type               TemplateType `json:"typ" gorm:"type:varchar(20);not null"`
	ChapterID          *uuid.UUID   `json:"kreisverband_id,omitempty" gorm:"type:uuid;index"`
	Subject            string       `json:"betreff" gorm:"not null"`
	Body               string       `json:"inhalt" gorm:"type:text;not null"`
	AttachmentKey      string       `json:"-"`
	AttachmentFilename string       `json:"attachment_original_filename,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

func (EmailTemplate) TableName() string {
	return "email_templates"
}

func (t *EmailTemplate) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// HasAttachment reports whether a stored attachment is configured
func (t *EmailTemplate) HasAttachment() bool {
	return t.AttachmentKey != "" && t.AttachmentFilename != ""
}

// EmailRecipient is an additional notification address of a chapter
type EmailRecipient struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	ChapterID uuid.UUID `json:"kreisverband_id" gorm:"type:uuid;not null;index"`
	Name      string    `json:"name" gorm:"not null"`
	Email     string    `json:"email" gorm:"not null"`
	Role      string    `json:"rolle,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (EmailRecipient) TableName() string {
	return "email_recipients"
}

func (r *EmailRecipient) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
