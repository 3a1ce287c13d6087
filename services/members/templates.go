package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/audit"
	"github.com/julis-sh/intranet/shared/mailer"
	"github.com/julis-sh/intranet/shared/middleware"
	"github.com/julis-sh/intranet/shared/models"
	"github.com/julis-sh/intranet/shared/storage"
	"github.com/julis-sh/intranet/shared/utils"
)

const (
	attachmentPrefix   = "email_templates"
	maxAttachmentBytes = 15 * 1024 * 1024
)

var attachmentExtensions = []string{".pdf", ".doc", ".docx", ".odt", ".txt", ".png", ".jpg", ".jpeg"}

// TemplateRequest creates an email template
type TemplateRequest struct {
	Name      string              `json:"name" binding:"required,max=255"`
	Scenario  string              `json:"scenario" binding:"required,max=40"`
	Type      models.TemplateType `json:"typ" binding:"required,oneof=mitglied empfaenger benachrichtigung"`
	ChapterID *uuid.UUID          `json:"kreisverband_id"`
	Subject   string              `json:"betreff" binding:"required,max=500"`
	Body      string              `json:"inhalt" binding:"required"`
}

// UpdateTemplateRequest changes the fields that are present
type UpdateTemplateRequest struct {
	Name      *string              `json:"name" binding:"omitempty,min=1,max=255"`
	Scenario  *string              `json:"scenario" binding:"omitempty,min=1,max=40"`
	Type      *models.TemplateType `json:"typ" binding:"omitempty,oneof=mitglied empfaenger benachrichtigung"`
	ChapterID *uuid.UUID           `json:"kreisverband_id"`
	Subject   *string              `json:"betreff" binding:"omitempty,min=1,max=500"`
	Body      *string              `json:"inhalt" binding:"omitempty,min=1"`
}

func (r *UpdateTemplateRequest) apply(t *models.EmailTemplate) {
	if r.Name != nil {
		t.Name = *r.Name
	}
	if r.Scenario != nil {
		t.Scenario = *r.Scenario
	}
	if r.Type != nil {
		t.Type = *r.Type
	}
	if r.ChapterID != nil {
		t.ChapterID = r.ChapterID
	}
	if r.Subject != nil {
		t.Subject = *r.Subject
	}
	if r.Body != nil {
		t.Body = *r.Body
	}
}

// TestMailRequest names the address a template preview goes to
type TestMailRequest struct {
	To string `json:"to" binding:"required,email"`
}

// sampleVars fills every placeholder with example data for test mails
func sampleVars(t *models.EmailTemplate) map[string]string {
	recipient := ""
	if t.Type == models.TemplateRecipient {
		recipient = "Anna Vorsitz"
	}
	return map[string]string{
		"vorname":                  "Max",
		"nachname":                 "Muster",
		"email":                    "max.muster@beispiel.de",
		"mitgliedsnummer":          "12345",
		"kreisverband":             "Kiel",
		"kreis":                    "Kiel",
		"kreisverband_alt":         "Flensburg",
		"kreisverband_neu":         "Kiel",
		"telefon":                  "0123 456789",
		"strasse":                  "Musterstraße",
		"hausnummer":               "1",
		"plz":                      "24103",
		"ort":                      "Kiel",
		"geburtsdatum":             "01.01.1990",
		"bemerkung":                "Test-Bemerkung",
		"scenario":                 t.Scenario,
		"eintrittsdatum":           "17.02.2025",
		"empfaenger_name":          recipient,
		"vorsitzender":             "Anna Vorsitz",
		"schatzmeister":            "Bernd Schatz",
		"ihr_kreis":                "Kiel",
		"abgebend_oder_aufnehmend": "abgebend",
	}
}

func loadTemplate(c *gin.Context, db *gorm.DB) (*models.EmailTemplate, error) {
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return nil, err
	}
	var t models.EmailTemplate
	if err := utils.FindByID(db, &t, id, "Email template"); err != nil {
		return nil, err
	}
	return &t, nil
}

func handleListTemplates(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		chapterID, err := utils.ParseUUIDQuery(c, "kreisverband_id")
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		query := d.db.WithContext(c.Request.Context()).Model(&models.EmailTemplate{})
		if scenario := c.Query("scenario"); scenario != "" {
			query = query.Where("scenario = ?", scenario)
		}
		if typ := c.Query("typ"); typ != "" {
			query = query.Where("type = ?", typ)
		}
		if chapterID != nil {
			query = query.Where("chapter_id = ?", *chapterID)
		}

		var templates []models.EmailTemplate
		if err := query.Order("scenario, type, name").Find(&templates).Error; err != nil {
			utils.RespondError(c, apperr.Internal("failed to list email templates", err))
			return
		}
		utils.OKResponse(c, "Email templates retrieved successfully", templates)
	}
}

func handleGetTemplate(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := loadTemplate(c, d.db.WithContext(c.Request.Context()))
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Email template retrieved successfully", t)
	}
}

func handleCreateTemplate(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		var req TemplateRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}
		db := d.db.WithContext(c.Request.Context())
		if err := checkChapterRef(db, req.ChapterID); err != nil {
			utils.RespondError(c, err)
			return
		}

		t := &models.EmailTemplate{
			Name:      req.Name,
			Scenario:  req.Scenario,
			Type:      req.Type,
			ChapterID: req.ChapterID,
			Subject:   req.Subject,
			Body:      req.Body,
		}
		if err := d.saveTemplate(c, db, user.ID, t, models.ActionCreate, "E-Mail-Vorlage erstellt: "); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.CreatedResponse(c, "Email template created successfully", t)
	}
}

func handleUpdateTemplate(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		db := d.db.WithContext(c.Request.Context())
		t, err := loadTemplate(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		var req UpdateTemplateRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}
		if err := checkChapterRef(db, req.ChapterID); err != nil {
			utils.RespondError(c, err)
			return
		}

		req.apply(t)
		if err := d.saveTemplate(c, db, user.ID, t, models.ActionUpdate, "E-Mail-Vorlage aktualisiert: "); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Email template updated successfully", t)
	}
}

func handleDeleteTemplate(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		ctx := c.Request.Context()
		db := d.db.WithContext(ctx)
		t, err := loadTemplate(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Delete(t).Error; err != nil {
				return err
			}
			row, err = d.audit.Record(tx, audit.For(c, user.ID, models.ActionDelete, "email_template", &t.ID, "E-Mail-Vorlage gelöscht: "+t.Name))
			return err
		})
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to delete email template", err))
			return
		}
		d.audit.Publish(row)
		removeStored(ctx, d.store, t.AttachmentKey)

		utils.OKResponse(c, "Email template deleted successfully", nil)
	}
}

// handleTestTemplate sends the template rendered with sample data
func handleTestTemplate(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		t, err := loadTemplate(c, d.db.WithContext(ctx))
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		var req TestMailRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}
		if !d.mail.Configured() {
			utils.RespondError(c, apperr.Unavailable("SMTP not configured"))
			return
		}

		vars := sampleVars(t)
		msg := mailer.Message{
			To:      []string{req.To},
			Subject: mailer.Render(t.Subject, vars),
			Body:    mailer.Render(t.Body, vars),
		}
		if att, ok := d.notify.attachment(ctx, t); ok {
			msg.Attachments = []mailer.Attachment{att}
		}
		if err := d.mail.Send(ctx, msg); err != nil {
			if apperr.Is(err, apperr.KindUnavailable) {
				utils.RespondError(c, err)
				return
			}
			utils.RespondError(c, apperr.ExternalService("E-Mail konnte nicht gesendet werden. SMTP prüfen (z. B. Verwaltung → Stammdaten → SMTP testen).", err))
			return
		}
		utils.OKResponse(c, "Test-E-Mail wurde an "+req.To+" gesendet.", nil)
	}
}

// handleUploadAttachment replaces the attachment of a template with the
// multipart file in "file"
func handleUploadAttachment(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		ctx := c.Request.Context()
		db := d.db.WithContext(ctx)
		t, err := loadTemplate(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		file, err := c.FormFile("file")
		if err == http.ErrMissingFile || (err == nil && file.Filename == "") {
			utils.BadRequestResponse(c, "Dateiname fehlt")
			return
		}
		if err != nil {
			utils.BadRequestResponse(c, "Invalid upload")
			return
		}
		if err := storage.CheckUpload(file.Filename, file.Size, attachmentExtensions, maxAttachmentBytes); err != nil {
			utils.RespondError(c, err)
			return
		}
		src, err := file.Open()
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to read upload", err))
			return
		}
		key := storage.NewKey(attachmentPrefix, file.Filename)
		err = d.store.Put(ctx, key, src)
		src.Close()
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to store upload", err))
			return
		}

		previous := t.AttachmentKey
		t.AttachmentKey = key
		t.AttachmentFilename = file.Filename
		if err := d.saveTemplate(c, db, user.ID, t, models.ActionUpload, "Anhang hochgeladen: "); err != nil {
			removeStored(ctx, d.store, key)
			utils.RespondError(c, err)
			return
		}
		removeStored(ctx, d.store, previous)

		utils.OKResponse(c, "Attachment uploaded successfully", t)
	}
}

func handleDeleteAttachment(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		ctx := c.Request.Context()
		db := d.db.WithContext(ctx)
		t, err := loadTemplate(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		previous := t.AttachmentKey
		t.AttachmentKey = ""
		t.AttachmentFilename = ""
		if err := d.saveTemplate(c, db, user.ID, t, models.ActionDelete, "Anhang entfernt: "); err != nil {
			utils.RespondError(c, err)
			return
		}
		removeStored(ctx, d.store, previous)

		utils.OKResponse(c, "Attachment removed successfully", t)
	}
}

func (d *deps) saveTemplate(c *gin.Context, db *gorm.DB, actorID uuid.UUID, t *models.EmailTemplate, action models.AuditAction, details string) error {
	var row *models.AuditLog
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(t).Error; err != nil {
			return err
		}
		var err error
		row, err = d.audit.Record(tx, audit.For(c, actorID, action, "email_template", &t.ID, details+t.Name))
		return err
	})
	if err != nil {
		return apperr.Internal("failed to save email template", err)
	}
	d.audit.Publish(row)
	return nil
}

// checkChapterRef verifies an optional chapter reference
func checkChapterRef(db *gorm.DB, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	var chapter models.Chapter
	return utils.FindByID(db, &chapter, *id, "Kreisverband")
}
