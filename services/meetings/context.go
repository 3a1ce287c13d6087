package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/agenda"
	"github.com/julis-sh/intranet/shared/docgen"
	"github.com/julis-sh/intranet/shared/models"
)

var today = time.Now

// chapterOptions lists the active board members of active chapters as
// "name – role (chapter)"
func chapterOptions(db *gorm.DB) ([]string, error) {
	var rows []struct {
		Name        string
		Role        string
		ChapterName string
	}
	err := db.Table("chapter_board_members AS m").
		Select("m.name AS name, m.role AS role, c.name AS chapter_name").
		Joins("JOIN chapters AS c ON c.id = m.chapter_id").
		Where("m.is_active = ? AND c.is_active = ?", true, true).
		Order("c.name, m.role").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "load chapter board members")
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = fmt.Sprintf("%s – %s (%s)", r.Name, r.Role, r.ChapterName)
	}
	return out, nil
}

// selectedInvitees decodes the stored attendee selection; anything but a
// list counts as no selection
func selectedInvitees(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var items []interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, strings.TrimSpace(fmt.Sprint(item)))
		}
	}
	return out
}

func invitationOf(m *models.Meeting) agenda.Invitation {
	return agenda.Invitation{
		Variant:  m.Variant,
		FreeText: m.RecipientsText,
		Selected: selectedInvitees(m.SelectedInvitees),
		Others:   m.OtherAttendees,
	}
}

// buildContext renders the template variables of a meeting. Chapter
// options only matter for the protocol and may be nil for invitations.
func buildContext(m *models.Meeting, roster agenda.Roster, chapters []string) (docgen.Context, error) {
	nodes, err := agenda.Parse(m.Agenda)
	if err != nil {
		return nil, err
	}
	minutes, err := agenda.ParseMinutes(m.MinutesTexts)
	if err != nil {
		return nil, err
	}

	inv := invitationOf(m)
	presence := agenda.PresenceFor(inv, roster, chapters)

	ctx := docgen.Context{
		"titel":                         m.Title,
		"titel_kurz":                    m.ShortTitle,
		"typ":                           m.Type,
		"datum":                         m.Date.String(),
		"datum_dmy":                     m.Date.DMY(),
		"wochentag":                     m.Date.WeekdayDE(),
		"datum_erstellung":              today().Format("02.01.2006"),
		"uhrzeit":                       m.Time,
		"ort":                           m.Place,
		"tagesordnung":                  agenda.Outline(nodes),
		"top_mit_protokoll_text":        agenda.Transcript(agenda.Attach(nodes, minutes)),
		"teilnehmer":                    m.Attendees,
		"teilnehmer_eingeladene":        inv.Invited(),
		"teilnehmer_zeile":              inv.Line(),
		"teilnehmer_landesvorstand":     presence.Board,
		"teilnehmer_sonstige_anwesende": presence.Guests,
		"teilnehmer_kreisverbaende":     presence.Chapters,
		"anwesende_protokoll":           presence.Runs,
		"teilnehmer_sonstige":           m.OtherAttendees,
		"sitzungsleitung":               m.Chair,
		"protokollfuehrer":              m.MinuteTaker,
		"beschluesse":                   m.Resolutions,
		"einladungsempfaenger":          inv.RecipientsBlock(),
	}
	return ctx, nil
}
