package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Board member role labels that receive member change notifications
const (
	BoardRoleChair     = "Kreisvorsitzender"
	BoardRoleTreasurer = "Kreisschatzmeister"
)

// Chapter is a regional chapter (Kreisverband), optionally linked to a tenant
type Chapter struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Name      string     `json:"name" gorm:"uniqueIndex;not null"`
	ShortCode string     `json:"kuerzel,omitempty" gorm:"type:varchar(20)"`
	Email     string     `json:"email,omitempty"`
	IsActive  bool       `json:"ist_aktiv" gorm:"not null"`
	TenantID  *uuid.UUID `json:"tenant_id,omitempty" gorm:"type:uuid;index"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	BoardMembers []BoardMember `json:"vorstandsmitglieder,omitempty" gorm:"foreignKey:ChapterID"`
}

func (Chapter) TableName() string {
	return "chapters"
}

func (c *Chapter) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// BoardMember is a member of a chapter board
type BoardMember struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	ChapterID uuid.UUID `json:"kreisverband_id" gorm:"type:uuid;not null;index"`
	Name      string    `json:"name" gorm:"not null"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"rolle" gorm:"not null"`
	TermStart *Date     `json:"amtszeit_start,omitempty"`
	TermEnd   *Date     `json:"amtszeit_ende,omitempty"`
	IsActive  bool      `json:"ist_aktiv" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (BoardMember) TableName() string {
	return "chapter_board_members"
}

func (b *BoardMember) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// ChapterProtocol is a meeting protocol of a chapter, optionally with an
// uploaded file
type ChapterProtocol struct {
	ID               uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	ChapterID        uuid.UUID `json:"kreisverband_id" gorm:"type:uuid;not null;index"`
	Title            string    `json:"titel" gorm:"not null"`
	Date             Date      `json:"datum" gorm:"not null"`
	Type             string    `json:"typ" gorm:"type:varchar(50);not null"`
	Description      string    `json:"beschreibung,omitempty" gorm:"type:text"`
	StorageKey       string    `json:"-"`
	OriginalFilename string    `json:"dateiname,omitempty"`
	UploadedByID     uuid.UUID `json:"hochgeladen_von_id" gorm:"type:uuid"`
	CreatedAt        time.Time `json:"created_at"`
}

// HasFile reports whether a file was uploaded with the protocol
func (p *ChapterProtocol) HasFile() bool {
	return p.StorageKey != ""
}

func (ChapterProtocol) TableName() string {
	return "chapter_protocols"
}

func (p *ChapterProtocol) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
