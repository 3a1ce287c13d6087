package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Scenario is the kind of membership change
type Scenario string

const (
	ScenarioEintritt                Scenario = "eintritt"
	ScenarioAustritt                Scenario = "austritt"
	ScenarioVerbandswechselEintritt Scenario = "verbandswechsel_eintritt"
	ScenarioVerbandswechselAustritt Scenario = "verbandswechsel_austritt"
	ScenarioVerbandswechselIntern   Scenario = "verbandswechsel_intern"
	ScenarioVeraenderung            Scenario = "veraenderung"
)

// Scenarios lists all valid scenarios
func Scenarios() []Scenario {
	return []Scenario{
		ScenarioEintritt,
		ScenarioAustritt,
		ScenarioVerbandswechselEintritt,
		ScenarioVerbandswechselAustritt,
		ScenarioVerbandswechselIntern,
		ScenarioVeraenderung,
	}
}

// Valid reports whether s is a known scenario
func (s Scenario) Valid() bool {
	for _, known := range Scenarios() {
		if s == known {
			return true
		}
	}
	return false
}

// IsTransfer reports whether the scenario moves a member between chapters
func (s Scenario) IsTransfer() bool {
	switch s {
	case ScenarioVerbandswechselEintritt, ScenarioVerbandswechselAustritt, ScenarioVerbandswechselIntern:
		return true
	}
	return false
}

// MemberChangeStatus tracks whether notifications went out
type MemberChangeStatus string

const (
	MemberChangeDraft MemberChangeStatus = "entwurf"
	MemberChangeSent  MemberChangeStatus = "versendet"
)

// MemberChange records a membership change and its notification state
type MemberChange struct {
	ID              uuid.UUID          `json:"id" gorm:"type:uuid;primaryKey"`
	Scenario        Scenario           `json:"scenario" gorm:"type:varchar(40);not null;index"`
	MemberNumber    string             `json:"mitgliedsnummer,omitempty"`
	FirstName       string             `json:"vorname" gorm:"not null"`
	LastName        string             `json:"nachname" gorm:"not null"`
	Email           string             `json:"email,omitempty"`
	Phone           string             `json:"telefon,omitempty"`
	Street          string             `json:"strasse,omitempty"`
	HouseNumber     string             `json:"hausnummer,omitempty"`
	PostalCode      string             `json:"plz,omitempty"`
	City            string             `json:"ort,omitempty"`
	BirthDate       string             `json:"geburtsdatum,omitempty"`
	Remark          string             `json:"bemerkung,omitempty" gorm:"type:text"`
	ChapterID       *uuid.UUID         `json:"kreisverband_id,omitempty" gorm:"type:uuid;index"`
	SourceChapterID *uuid.UUID         `json:"kreisverband_alt_id,omitempty" gorm:"type:uuid"`
	TargetChapterID *uuid.UUID         `json:"kreisverband_neu_id,omitempty" gorm:"type:uuid"`
	Status          MemberChangeStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	CreatedByID     uuid.UUID          `json:"erstellt_von_id" gorm:"type:uuid"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func (MemberChange) TableName() string {
	return "member_changes"
}

func (m *MemberChange) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Status == "" {
		m.Status = MemberChangeDraft
	}
	return nil
}

// ChapterIDs returns the distinct chapters referenced by the change
func (m *MemberChange) ChapterIDs() []uuid.UUID {
	var ids []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	for _, id := range []*uuid.UUID{m.ChapterID, m.SourceChapterID, m.TargetChapterID} {
		if id != nil && !seen[*id] {
			seen[*id] = true
			ids = append(ids, *id)
		}
	}
	return ids
}
