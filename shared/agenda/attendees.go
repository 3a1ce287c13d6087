package agenda

import (
	"strings"

	"github.com/julis-sh/intranet/shared/models"
)

// Fixed recipient blocks of the two board invitation variants
const (
	RecipientsLandesvorstand = `- die Mitglieder des Landesvorstandes

nachrichtlich:
- die Landesgeschäftsstelle
- die Ombudsperson
- die Liberalen Schüler Schleswig-Holstein
- den Bundesvorsitzenden der Jungen Liberalen`

	RecipientsErweiterterLandesvorstand = `- die Mitglieder des Landesvorstandes
- die Kreisvorsitzenden

nachrichtlich:
- die Landesgeschäftsstelle
- die Ombudsperson
- die Liberalen Schüler Schleswig-Holstein
- den Bundesvorsitzenden der Jungen Liberalen`
)

const nbsp = "\u00a0"

// Invitation carries the attendee related fields of a meeting
type Invitation struct {
	Variant  models.InvitationVariant
	FreeText string
	Selected []string
	Others   string
}

// RecipientsBlock is the invitation recipient text for the variant
func (inv Invitation) RecipientsBlock() string {
	switch normalizeVariant(inv.Variant) {
	case models.InvitationLandesvorstand:
		return RecipientsLandesvorstand
	case models.InvitationErweiterterLandesvorstand:
		return RecipientsErweiterterLandesvorstand
	}
	return inv.FreeText
}

// Invited lists the selected attendees comma separated, or falls back to the
// recipient block
func (inv Invitation) Invited() string {
	names := nonEmpty(inv.Selected)
	if len(names) > 0 {
		return strings.Join(names, ", ")
	}
	return inv.RecipientsBlock()
}

// Line puts invited and other attendees on a single comma separated line
func (inv Invitation) Line() string {
	invited := inv.Invited()
	if strings.Contains(invited, "\n") {
		invited = strings.Join(nonEmpty(strings.Split(invited, "\n")), ", ")
	}
	others := strings.Join(nonEmpty(strings.Split(inv.Others, "\n")), ", ")
	switch {
	case others == "":
		return invited
	case invited == "":
		return others
	}
	return invited + ", " + others
}

// NameLine joins names with a comma and a non-breaking space so word
// processors wrap between names, never inside one
func NameLine(names []string) string {
	return strings.Join(nonEmpty(names), ","+nbsp)
}

// Roster is the configured board of the federation level: the first
// BoardSize names are board members, the rest are further attendees
type Roster struct {
	Names     []string
	BoardSize int
}

// Board returns the board member names
func (r Roster) Board() []string {
	if r.BoardSize >= len(r.Names) {
		return r.Names
	}
	return r.Names[:r.BoardSize]
}

// Guests returns the non-board names
func (r Roster) Guests() []string {
	if r.BoardSize >= len(r.Names) {
		return nil
	}
	return r.Names[r.BoardSize:]
}

// Options lists the selectable invitees for a variant. chapterOptions are
// the chapter board members, offered for the extended board only.
func (r Roster) Options(variant models.InvitationVariant, chapterOptions []string) []string {
	switch normalizeVariant(variant) {
	case models.InvitationLandesvorstand:
		return append([]string{}, r.Names...)
	case models.InvitationErweiterterLandesvorstand:
		return append(append([]string{}, r.Names...), chapterOptions...)
	}
	return []string{}
}

// Presence groups the attendees of a board meeting for the protocol
type Presence struct {
	Board    string
	Chapters string
	Guests   string
	Runs     Runs
}

// PresenceFor splits the selected invitees into board, chapter and guest
// lines. Only the board variants are grouped; free text other attendees are
// appended as their own block in every case.
func PresenceFor(inv Invitation, roster Roster, chapterOptions []string) Presence {
	var p Presence
	variant := normalizeVariant(inv.Variant)
	selected := map[string]bool{}
	for _, n := range nonEmpty(inv.Selected) {
		selected[n] = true
	}

	if len(selected) > 0 && (variant == models.InvitationLandesvorstand || variant == models.InvitationErweiterterLandesvorstand) {
		p.Board = NameLine(pick(roster.Board(), selected))
		p.Guests = NameLine(pick(roster.Guests(), selected))
		if variant == models.InvitationErweiterterLandesvorstand {
			p.Chapters = NameLine(pick(chapterOptions, selected))
		}
		p.Runs = appendBlock(p.Runs, "Anwesende des Landesvorstandes", p.Board)
		p.Runs = appendBlock(p.Runs, "Vertreter der Kreisverbände", p.Chapters)
		p.Runs = appendBlock(p.Runs, "Sonstige Anwesende", p.Guests)
	}

	if others := NameLine(strings.Split(inv.Others, "\n")); others != "" {
		p.Runs = appendBlock(p.Runs, "Sonstige", others)
	}
	return p
}

func appendBlock(runs Runs, heading, names string) Runs {
	if names == "" {
		return runs
	}
	return append(runs,
		Run{Text: heading, Bold: true, EndParagraph: true},
		Run{Text: names, EndParagraph: true},
	)
}

func pick(names []string, selected map[string]bool) []string {
	var out []string
	for _, n := range names {
		if selected[n] {
			out = append(out, n)
		}
	}
	return out
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func normalizeVariant(v models.InvitationVariant) models.InvitationVariant {
	return models.InvitationVariant(strings.ToLower(strings.TrimSpace(string(v))))
}
