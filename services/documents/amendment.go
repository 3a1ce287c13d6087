package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/docgen"
	"github.com/julis-sh/intranet/shared/mailer"
	"github.com/julis-sh/intranet/shared/models"
)

// passage is one change of an amendment as it appears in exports and mails
type passage struct {
	Reference  string
	OldWording string
	NewWording string
	ChangeText string
}

// defaultChangeText phrases a change from its old and new wording
func defaultChangeText(ref, oldWording, newWording string) string {
	switch {
	case oldWording == "" && newWording != "":
		if ref != "" {
			return fmt.Sprintf("In %s wird eingefügt:\n%s", ref, newWording)
		}
		return "Einfügung:\n" + newWording
	case oldWording != "" && newWording == "":
		if ref != "" {
			return ref + " wird gestrichen."
		}
		return "Streichung."
	case oldWording != "" && newWording != "":
		if ref != "" {
			return fmt.Sprintf("%s wird wie folgt geändert:\n%s", ref, newWording)
		}
		return "Ersetzung:\n" + newWording
	}
	return ""
}

// passagesOf lists the passages of a, ordered by position. An amendment
// without passages counts as one passage built from its own wording.
func passagesOf(a *models.Amendment) []passage {
	if len(a.Passages) == 0 {
		text := a.MotionText
		if text == "" {
			text = defaultChangeText("", a.OldWording, a.NewWording)
		}
		return []passage{{OldWording: a.OldWording, NewWording: a.NewWording, ChangeText: text}}
	}

	sorted := append([]models.AmendmentPassage(nil), a.Passages...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Position != sorted[j].Position {
			return sorted[i].Position < sorted[j].Position
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	out := make([]passage, len(sorted))
	for i, p := range sorted {
		text := p.ChangeText
		if text == "" {
			text = defaultChangeText(p.Reference, p.OldWording, p.NewWording)
		}
		out[i] = passage{Reference: p.Reference, OldWording: p.OldWording, NewWording: p.NewWording, ChangeText: text}
	}
	return out
}

// overview summarizes the passages for notification mails
func overview(passages []passage) string {
	parts := make([]string, len(passages))
	for i, p := range passages {
		if text := strings.TrimSpace(p.ChangeText); text != "" {
			parts[i] = text
			continue
		}
		parts[i] = fmt.Sprintf("Alte Fassung: %s\nNeue Fassung: %s", p.OldWording, p.NewWording)
	}
	return strings.Join(parts, "\n\n")
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

// buildDOCX renders an amendment with its change text and a synopsis table
func buildDOCX(a *models.Amendment, doc *models.Document) ([]byte, error) {
	b := docgen.NewBuilder().
		Heading("Änderungsantrag", 0).
		Paragraph(doc.Title)
	if a.Title != "" {
		b.Paragraph(a.Title)
	}
	b.Labeled("Antragsteller", a.Applicant)
	if a.Reasoning != "" {
		b.Heading("Begründung", 1).Paragraph(a.Reasoning)
	}

	passages := passagesOf(a)
	b.Heading("Änderungstext", 1)
	for _, p := range passages {
		if p.Reference != "" {
			b.Heading(p.Reference, 2)
		}
		b.Paragraph(p.ChangeText)
	}

	rows := make([][]string, len(passages))
	for i, p := range passages {
		rows[i] = []string{orDash(p.Reference), orDash(p.OldWording), orDash(p.NewWording)}
	}
	b.Heading("Synopse", 1).Table([]string{"Bezug", "Alte Fassung", "Neue Fassung"}, rows)
	return b.Bytes()
}

func exportName(a *models.Amendment, ext string) string {
	return fmt.Sprintf("aenderungsantrag_%s.%s", a.ID, ext)
}

// notifier mails amendment notices to the configured addresses
type notifier struct {
	mail       mailer.Sender
	recipients []string
	appURL     string
}

// ready reports whether notices can be sent at all
func (n *notifier) ready() bool {
	return n.mail.Configured() && len(n.recipients) > 0
}

// send mails one notice per general amendment template. It stops at the
// first delivery failure.
func (n *notifier) send(ctx context.Context, db *gorm.DB, a *models.Amendment, doc *models.Document) error {
	var templates []models.EmailTemplate
	err := db.Where("scenario = ? AND type = ? AND chapter_id IS NULL", models.ScenarioAmendment, models.TemplateNotification).
		Order("created_at").Find(&templates).Error
	if err != nil {
		return errors.Wrap(err, "load amendment templates")
	}
	if len(templates) == 0 {
		logrus.WithField("amendment_id", a.ID).Warn("No amendment notification template configured")
		return nil
	}

	vars := map[string]string{
		"dokument_titel":     doc.Title,
		"antragsteller":      a.Applicant,
		"antrag_text":        a.MotionText,
		"begruendung":        a.Reasoning,
		"link":               fmt.Sprintf("%s/dokumente/satzung/%s", n.appURL, doc.ID),
		"stellen_uebersicht": overview(passagesOf(a)),
	}
	for _, t := range templates {
		msg := mailer.Message{
			To:      n.recipients,
			Subject: mailer.Render(t.Subject, vars),
			Body:    mailer.Render(t.Body, vars),
		}
		if err := n.mail.Send(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}
