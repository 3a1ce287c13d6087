package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventStatus represents the approval state of an event
type EventStatus string

const (
	EventStatusPending  EventStatus = "pending"
	EventStatusApproved EventStatus = "approved"
	EventStatusRejected EventStatus = "rejected"
)

// Valid reports whether s is one of the three known states
func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusPending, EventStatusApproved, EventStatusRejected:
		return true
	}
	return false
}

// Event represents a calendar entry submitted for a tenant
type Event struct {
	ID              uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	Title           string      `json:"title" gorm:"not null"`
	Description     string      `json:"description,omitempty" gorm:"type:text"`
	StartDate       Date        `json:"start_date" gorm:"not null;index"`
	StartTime       string      `json:"start_time,omitempty" gorm:"type:varchar(5)"`
	EndDate         *Date       `json:"end_date,omitempty"`
	EndTime         string      `json:"end_time,omitempty" gorm:"type:varchar(5)"`
	Location        string      `json:"location,omitempty"`
	LocationURL     string      `json:"location_url,omitempty"`
	Organizer       string      `json:"organizer,omitempty"`
	CategoryID      *uuid.UUID  `json:"category_id,omitempty" gorm:"type:uuid;index"`
	IsPublic        bool        `json:"is_public"`
	SubmitterName   string      `json:"submitter_name,omitempty"`
	SubmitterEmail  string      `json:"submitter_email,omitempty"`
	SubmitterID     uuid.UUID   `json:"submitter_id" gorm:"type:uuid;not null;index"`
	TenantID        uuid.UUID   `json:"tenant_id" gorm:"type:uuid;not null;index"`
	SourceTenantID  *uuid.UUID  `json:"source_tenant_id,omitempty" gorm:"type:uuid"`
	Status          EventStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	RejectionReason *string     `json:"rejection_reason,omitempty" gorm:"type:text"`
	ApprovedAt      *time.Time  `json:"approved_at,omitempty"`
	ApprovedBy      *uuid.UUID  `json:"approved_by,omitempty" gorm:"type:uuid"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// TableName returns the table name for the Event model
func (Event) TableName() string {
	return "events"
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// IsPending checks if the event is waiting for approval
func (e *Event) IsPending() bool {
	return e.Status == EventStatusPending
}

// Category groups events of one tenant
type Category struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name        string    `json:"name" gorm:"not null;uniqueIndex:idx_category_name_tenant"`
	Color       string    `json:"color" gorm:"type:varchar(7)"`
	Description string    `json:"description,omitempty"`
	TenantID    uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;uniqueIndex:idx_category_name_tenant"`
	IsActive    bool      `json:"is_active" gorm:"not null"`
	CreatedBy   uuid.UUID `json:"created_by" gorm:"type:uuid"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Category) TableName() string {
	return "categories"
}

func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
