package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DocumentType distinguishes statutes from rules of procedure
type DocumentType string

const (
	DocumentStatute          DocumentType = "satzung"
	DocumentRulesOfProcedure DocumentType = "geschaeftsordnung"
)

// Valid reports whether t is a known document type
func (t DocumentType) Valid() bool {
	return t == DocumentStatute || t == DocumentRulesOfProcedure
}

// Document is a governing document with its current text
type Document struct {
	ID          uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey"`
	Title       string       `json:"titel" gorm:"not null"`
	Type        DocumentType `json:"typ" gorm:"type:varchar(30);not null"`
	CurrentText string       `json:"aktueller_text,omitempty" gorm:"type:text"`
	Version     string       `json:"version,omitempty"`
	ValidFrom   *Date        `json:"gueltig_ab,omitempty"`
	FileKey     string       `json:"datei_pfad,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func (Document) TableName() string {
	return "documents"
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// AmendmentStatus is the decision state of an amendment
type AmendmentStatus string

const (
	AmendmentSubmitted AmendmentStatus = "eingereicht"
	AmendmentAccepted  AmendmentStatus = "angenommen"
	AmendmentRejected  AmendmentStatus = "abgelehnt"
)

// Valid reports whether s is a known amendment status
func (s AmendmentStatus) Valid() bool {
	switch s {
	case AmendmentSubmitted, AmendmentAccepted, AmendmentRejected:
		return true
	}
	return false
}

// Amendment is a motion to change a document
type Amendment struct {
	ID         uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	DocumentID uuid.UUID       `json:"document_id" gorm:"type:uuid;not null;index"`
	Title      string          `json:"titel,omitempty"`
	Applicant  string          `json:"antragsteller" gorm:"not null"`
	MotionText string          `json:"antrag_text,omitempty" gorm:"type:text"`
	OldWording string          `json:"alte_fassung,omitempty" gorm:"type:text"`
	NewWording string          `json:"neue_fassung,omitempty" gorm:"type:text"`
	Reasoning  string          `json:"begruendung,omitempty" gorm:"type:text"`
	Status     AmendmentStatus `json:"status" gorm:"type:varchar(20);not null"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`

	Passages []AmendmentPassage `json:"stellen" gorm:"foreignKey:AmendmentID"`
}

func (Amendment) TableName() string {
	return "amendments"
}

func (a *Amendment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = AmendmentSubmitted
	}
	return nil
}

// AmendmentPassage is one positioned change within an amendment
type AmendmentPassage struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	AmendmentID uuid.UUID `json:"aenderungsantrag_id" gorm:"type:uuid;not null;index"`
	Position    int       `json:"position"`
	Reference   string    `json:"bezug,omitempty"`
	OldWording  string    `json:"alte_fassung,omitempty" gorm:"type:text"`
	NewWording  string    `json:"neue_fassung,omitempty" gorm:"type:text"`
	ChangeText  string    `json:"aenderungstext,omitempty" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (AmendmentPassage) TableName() string {
	return "amendment_passages"
}

func (p *AmendmentPassage) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
