package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/mailer"
	"github.com/julis-sh/intranet/shared/models"
	"github.com/julis-sh/intranet/shared/storage"
)

// dispatcher sends the notification mails of a member change
type dispatcher struct {
	store storage.Store
	mail  mailer.Sender
}

// targets selects who gets notified
type targets struct {
	member   bool
	chapters bool
}

var allTargets = targets{member: true, chapters: true}

// changeVars holds the placeholders every notification of a change shares
func changeVars(db *gorm.DB, change *models.MemberChange) (map[string]string, error) {
	vars := map[string]string{
		"mitgliedsnummer": change.MemberNumber,
		"vorname":         change.FirstName,
		"nachname":        change.LastName,
		"email":           change.Email,
		"telefon":         change.Phone,
		"strasse":         change.Street,
		"hausnummer":      change.HouseNumber,
		"plz":             change.PostalCode,
		"ort":             change.City,
		"geburtsdatum":    change.BirthDate,
		"bemerkung":       change.Remark,
		"scenario":        string(change.Scenario),
		"eintrittsdatum":  "",
	}
	if !change.CreatedAt.IsZero() {
		vars["eintrittsdatum"] = change.CreatedAt.Format("02.01.2006")
	}

	names, err := chapterNames(db, change.ChapterIDs())
	if err != nil {
		return nil, err
	}
	vars["kreisverband"] = nameOf(names, change.ChapterID)
	vars["kreisverband_alt"] = nameOf(names, change.SourceChapterID)
	vars["kreisverband_neu"] = nameOf(names, change.TargetChapterID)
	vars["kreis"] = vars["kreisverband"]
	return vars, nil
}

func chapterNames(db *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	names := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var chapters []models.Chapter
	if err := db.Where("id IN ?", ids).Find(&chapters).Error; err != nil {
		return nil, errors.Wrap(err, "load chapter names")
	}
	for _, c := range chapters {
		names[c.ID] = c.Name
	}
	return names, nil
}

func nameOf(names map[uuid.UUID]string, id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return names[*id]
}

// pickTemplate prefers the template of the chapter over the general one
func pickTemplate(templates []models.EmailTemplate, chapterID *uuid.UUID) *models.EmailTemplate {
	if chapterID != nil {
		for i := range templates {
			if templates[i].ChapterID != nil && *templates[i].ChapterID == *chapterID {
				return &templates[i]
			}
		}
	}
	for i := range templates {
		if templates[i].ChapterID == nil {
			return &templates[i]
		}
	}
	return nil
}

func loadTemplates(db *gorm.DB, scenario string, typ models.TemplateType) ([]models.EmailTemplate, error) {
	var templates []models.EmailTemplate
	err := db.Where("scenario = ? AND type = ?", scenario, typ).Order("created_at").Find(&templates).Error
	return templates, errors.Wrap(err, "load email templates")
}

// recipientPerspective fills ihr_kreis and abgebend_oder_aufnehmend for a
// board member of chapterID
func recipientPerspective(change *models.MemberChange, vars map[string]string, chapterID uuid.UUID) (string, string) {
	if change.SourceChapterID != nil && change.TargetChapterID != nil {
		switch chapterID {
		case *change.SourceChapterID:
			return vars["kreisverband_alt"], "abgebend"
		case *change.TargetChapterID:
			return vars["kreisverband_neu"], "aufnehmend"
		}
		return "", ""
	}
	if change.ChapterID != nil {
		return vars["kreisverband"], ""
	}
	for _, key := range []string{"kreisverband", "kreisverband_alt", "kreisverband_neu"} {
		if vars[key] != "" {
			return vars[key], ""
		}
	}
	return "", ""
}

// dispatch renders and sends the notifications of change. Only database
// failures are returned; undeliverable mails are logged and skipped.
func (n *dispatcher) dispatch(ctx context.Context, db *gorm.DB, change *models.MemberChange, to targets) error {
	vars, err := changeVars(db, change)
	if err != nil {
		return err
	}

	if to.member && change.Email != "" {
		templates, err := loadTemplates(db, string(change.Scenario), models.TemplateMember)
		if err != nil {
			return err
		}
		if tpl := pickTemplate(templates, change.ChapterID); tpl != nil {
			n.send(ctx, change, tpl, change.Email, vars)
		}
	}

	chapterIDs := change.ChapterIDs()
	if !to.chapters || len(chapterIDs) == 0 {
		return nil
	}

	var board []models.BoardMember
	err = db.Where("chapter_id IN ? AND is_active = ? AND role IN ? AND email <> ''",
		chapterIDs, true, []string{models.BoardRoleChair, models.BoardRoleTreasurer}).
		Order("chapter_id, role").
		Find(&board).Error
	if err != nil {
		return errors.Wrap(err, "load chapter board recipients")
	}

	type officers struct{ chair, treasurer string }
	byChapter := make(map[uuid.UUID]*officers)
	for _, m := range board {
		o := byChapter[m.ChapterID]
		if o == nil {
			o = &officers{}
			byChapter[m.ChapterID] = o
		}
		if m.Role == models.BoardRoleChair {
			o.chair = m.Name
		} else {
			o.treasurer = m.Name
		}
	}

	templates, err := loadTemplates(db, string(change.Scenario), models.TemplateRecipient)
	if err != nil {
		return err
	}
	for _, m := range board {
		chapterID := m.ChapterID
		tpl := pickTemplate(templates, &chapterID)
		if tpl == nil {
			continue
		}
		own, direction := recipientPerspective(change, vars, chapterID)
		recipientVars := make(map[string]string, len(vars)+5)
		for k, v := range vars {
			recipientVars[k] = v
		}
		recipientVars["empfaenger_name"] = m.Name
		recipientVars["vorsitzender"] = byChapter[chapterID].chair
		recipientVars["schatzmeister"] = byChapter[chapterID].treasurer
		recipientVars["ihr_kreis"] = own
		recipientVars["abgebend_oder_aufnehmend"] = direction
		n.send(ctx, change, tpl, m.Email, recipientVars)
	}
	return nil
}

func (n *dispatcher) send(ctx context.Context, change *models.MemberChange, tpl *models.EmailTemplate, to string, vars map[string]string) {
	msg := mailer.Message{
		To:      []string{to},
		Subject: mailer.Render(tpl.Subject, vars),
		Body:    mailer.Render(tpl.Body, vars),
	}
	if att, ok := n.attachment(ctx, tpl); ok {
		msg.Attachments = []mailer.Attachment{att}
	}
	if err := n.mail.Send(ctx, msg); err != nil {
		logrus.WithFields(logrus.Fields{
			"member_change_id": change.ID,
			"template_id":      tpl.ID,
			"to":               to,
			"error":            err.Error(),
		}).Warn("Member change notification not sent")
	}
}

// attachment loads the stored template attachment; a missing file sends the
// mail without it
func (n *dispatcher) attachment(ctx context.Context, tpl *models.EmailTemplate) (mailer.Attachment, bool) {
	if !tpl.HasAttachment() {
		return mailer.Attachment{}, false
	}
	data, err := storage.ReadAll(ctx, n.store, tpl.AttachmentKey)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"template_id": tpl.ID,
			"key":         tpl.AttachmentKey,
			"error":       err.Error(),
		}).Warn("Template attachment unavailable")
		return mailer.Attachment{}, false
	}
	return mailer.Attachment{Filename: tpl.AttachmentFilename, Data: data}, true
}
