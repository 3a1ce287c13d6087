package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/audit"
	"github.com/julis-sh/intranet/shared/docgen"
	"github.com/julis-sh/intranet/shared/middleware"
	"github.com/julis-sh/intranet/shared/models"
	"github.com/julis-sh/intranet/shared/storage"
	"github.com/julis-sh/intranet/shared/utils"
)

const generatedPrefix = "sitzungen"

// document describes one of the two generated meeting documents
type document struct {
	name        string
	column      string
	protocol    bool
	created     string
	notCreated  string
	fileMissing string
}

var (
	invitation = document{
		name:        "einladung",
		column:      "invitation_path",
		created:     "Einladung erstellt",
		notCreated:  "Einladung nicht vorhanden. Bitte zuerst Einladung (DOCX) erzeugen.",
		fileMissing: "Einladungsdatei nicht gefunden.",
	}
	protocol = document{
		name:        "protokoll",
		column:      "protocol_path",
		protocol:    true,
		created:     "Protokoll erstellt",
		notCreated:  "Protokoll nicht vorhanden. Bitte zuerst Protokoll (DOCX) erzeugen.",
		fileMissing: "Protokolldatei nicht gefunden.",
	}
)

func (doc document) template() string {
	return doc.name + ".docx"
}

func (doc document) key(m *models.Meeting) string {
	return path.Join(generatedPrefix, fmt.Sprintf("%s_%s_%s.docx", doc.name, m.ID, m.Date))
}

func (doc document) stored(m *models.Meeting) string {
	if doc.protocol {
		return m.ProtocolPath
	}
	return m.InvitationPath
}

func (doc document) setStored(m *models.Meeting, key string) {
	if doc.protocol {
		m.ProtocolPath = key
	} else {
		m.InvitationPath = key
	}
}

func (d *deps) readTemplate(doc document) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.templateDir, doc.template()))
	if os.IsNotExist(err) {
		return nil, apperr.Unavailable("Template %s not found", doc.template())
	}
	if err != nil {
		return nil, apperr.Internal("failed to read template", err)
	}
	return data, nil
}

func handleGenerate(d *deps, doc document) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		ctx := c.Request.Context()
		db := d.db.WithContext(ctx)
		meeting, err := loadMeeting(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		template, err := d.readTemplate(doc)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var chapters []string
		if doc.protocol {
			if chapters, err = chapterOptions(db); err != nil {
				utils.RespondError(c, apperr.Internal("failed to load attendee options", err))
				return
			}
		}
		values, err := buildContext(meeting, d.roster, chapters)
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to build document context", err))
			return
		}
		rendered, err := d.filler.Fill(template, values)
		if err != nil {
			utils.RespondError(c, apperr.Internal("document generation failed", err))
			return
		}

		key := doc.key(meeting)
		if err := d.store.Put(ctx, key, bytes.NewReader(rendered)); err != nil {
			utils.RespondError(c, apperr.Internal("failed to store document", err))
			return
		}

		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(meeting).Update(doc.column, key).Error; err != nil {
				return err
			}
			row, err = d.audit.Record(tx, audit.For(c, user.ID, models.ActionCreate, "meeting", &meeting.ID, doc.created+": "+meeting.Title))
			return err
		})
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to save document path", err))
			return
		}
		d.audit.Publish(row)
		doc.setStored(meeting, key)

		logrus.WithFields(logrus.Fields{
			"meeting_id": meeting.ID,
			"document":   doc.name,
			"key":        key,
		}).Info("Meeting document generated")

		utils.OKResponse(c, doc.created, gin.H{"path": key})
	}
}

func handleDownloadPDF(d *deps, doc document) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		meeting, err := loadMeeting(c, d.db.WithContext(ctx))
		if apperr.Is(err, apperr.KindNotFound) {
			utils.NotFoundResponse(c, doc.notCreated)
			return
		}
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		key := doc.stored(meeting)
		if key == "" {
			utils.NotFoundResponse(c, doc.notCreated)
			return
		}
		ok, err := d.store.Exists(ctx, key)
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to look up document", err))
			return
		}
		if !ok {
			utils.NotFoundResponse(c, doc.fileMissing)
			return
		}

		data, err := storage.ReadAll(ctx, d.store, key)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		pdf, err := d.converter.ConvertBytes(ctx, data, path.Base(key))
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, docgen.PDFName(key)))
		c.Data(http.StatusOK, "application/pdf", pdf)
	}
}

// removeGenerated deletes stored documents of a deleted meeting. Failures
// only leave orphaned files behind.
func removeGenerated(ctx context.Context, store storage.Store, keys ...string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := store.Delete(ctx, key); err != nil {
			logrus.WithFields(logrus.Fields{
				"key":   key,
				"error": err.Error(),
			}).Warn("Failed to remove meeting document")
		}
	}
}
