package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// InvitationVariant selects the recipient block printed on an invitation
type InvitationVariant string

const (
	InvitationFreeText                  InvitationVariant = "freitext"
	InvitationLandesvorstand            InvitationVariant = "landesvorstand"
	InvitationErweiterterLandesvorstand InvitationVariant = "erweiterter_landesvorstand"
)

// Meeting represents a board meeting with agenda and minutes
type Meeting struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Title      string    `json:"titel" gorm:"not null"`
	ShortTitle string    `json:"titel_kurz,omitempty"`
	Type       string    `json:"typ" gorm:"type:varchar(50);not null"`
	Date       Date      `json:"datum" gorm:"not null;index"`
	Time       string    `json:"uhrzeit,omitempty" gorm:"type:varchar(5)"`
	Place      string    `json:"ort,omitempty"`

	// Agenda is the raw agenda tree: strings or {"titel","unterpunkte"} objects
	Agenda datatypes.JSON `json:"tagesordnung"`
	// MinutesTexts runs parallel to the top-level agenda items
	MinutesTexts datatypes.JSON `json:"protokoll_top_texte"`

	Attendees        string            `json:"teilnehmer,omitempty" gorm:"type:text"`
	OtherAttendees   string            `json:"teilnehmer_sonstige,omitempty" gorm:"type:text"`
	Chair            string            `json:"sitzungsleitung,omitempty"`
	MinuteTaker      string            `json:"protokollfuehrer,omitempty"`
	Resolutions      string            `json:"beschluesse,omitempty" gorm:"type:text"`
	Variant          InvitationVariant `json:"einladung_variante" gorm:"type:varchar(40);not null"`
	RecipientsText   string            `json:"einladung_empfaenger_freitext,omitempty" gorm:"type:text"`
	SelectedInvitees datatypes.JSON    `json:"teilnehmer_eingeladene_auswahl"`
	InvitationPath   string            `json:"einladung_pfad,omitempty"`
	ProtocolPath     string            `json:"protokoll_pfad,omitempty"`
	CreatedByID      uuid.UUID         `json:"erstellt_von_id" gorm:"type:uuid"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// TableName returns the table name for the Meeting model
func (Meeting) TableName() string {
	return "meetings"
}

func (m *Meeting) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Variant == "" {
		m.Variant = InvitationFreeText
	}
	return nil
}
