package main

import (
	"context"
	"fmt"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/audit"
	"github.com/julis-sh/intranet/shared/middleware"
	"github.com/julis-sh/intranet/shared/models"
	"github.com/julis-sh/intranet/shared/storage"
	"github.com/julis-sh/intranet/shared/utils"
)

const (
	documentPrefix   = "dokumente"
	maxDocumentBytes = 20 * 1024 * 1024
)

var documentExtensions = []string{".pdf", ".docx", ".doc", ".odt", ".txt"}

// DocumentRequest creates a document
type DocumentRequest struct {
	Title       string              `json:"titel" binding:"required,max=255"`
	Type        models.DocumentType `json:"typ" binding:"required,oneof=satzung geschaeftsordnung"`
	CurrentText string              `json:"aktueller_text"`
	Version     string              `json:"version" binding:"max=50"`
	ValidFrom   *models.Date        `json:"gueltig_ab"`
}

// UpdateDocumentRequest changes the fields that are present
type UpdateDocumentRequest struct {
	Title       *string              `json:"titel" binding:"omitempty,min=1,max=255"`
	Type        *models.DocumentType `json:"typ" binding:"omitempty,oneof=satzung geschaeftsordnung"`
	CurrentText *string              `json:"aktueller_text"`
	Version     *string              `json:"version" binding:"omitempty,max=50"`
	ValidFrom   *models.Date         `json:"gueltig_ab"`
}

func (r *UpdateDocumentRequest) apply(doc *models.Document) {
	if r.Title != nil {
		doc.Title = *r.Title
	}
	if r.Type != nil {
		doc.Type = *r.Type
	}
	if r.CurrentText != nil {
		doc.CurrentText = *r.CurrentText
	}
	if r.Version != nil {
		doc.Version = *r.Version
	}
	if r.ValidFrom != nil {
		doc.ValidFrom = r.ValidFrom
	}
}

func loadDocument(c *gin.Context, db *gorm.DB) (*models.Document, error) {
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return nil, err
	}
	return findDocument(db, id)
}

func findDocument(db *gorm.DB, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	if err := utils.FindByID(db, &doc, id, "Document"); err != nil {
		return nil, err
	}
	return &doc, nil
}

func handleListDocuments(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := d.db.WithContext(c.Request.Context()).Model(&models.Document{})
		if typ := c.Query("typ"); typ != "" {
			query = query.Where("type = ?", typ)
		}
		var docs []models.Document
		if err := query.Order("title").Find(&docs).Error; err != nil {
			utils.RespondError(c, apperr.Internal("failed to list documents", err))
			return
		}
		utils.OKResponse(c, "Documents retrieved successfully", docs)
	}
}

func handleGetDocument(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := loadDocument(c, d.db.WithContext(c.Request.Context()))
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Document retrieved successfully", doc)
	}
}

func handleCreateDocument(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		var req DocumentRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}
		doc := &models.Document{
			Title:       req.Title,
			Type:        req.Type,
			CurrentText: req.CurrentText,
			Version:     req.Version,
			ValidFrom:   req.ValidFrom,
		}
		if err := d.saveDocument(c, user.ID, doc, models.ActionCreate, "Dokument erstellt: "); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.CreatedResponse(c, "Document created successfully", doc)
	}
}

func handleUpdateDocument(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		doc, err := loadDocument(c, d.db.WithContext(c.Request.Context()))
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		var req UpdateDocumentRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}
		req.apply(doc)
		if err := d.saveDocument(c, user.ID, doc, models.ActionUpdate, "Dokument aktualisiert: "); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Document updated successfully", doc)
	}
}

// handleUploadDocument replaces the file of a document with the multipart
// file in "datei"
func handleUploadDocument(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		ctx := c.Request.Context()
		doc, err := loadDocument(c, d.db.WithContext(ctx))
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		file, err := c.FormFile("datei")
		if err != nil {
			utils.BadRequestResponse(c, "datei is required")
			return
		}
		if err := storage.CheckUpload(file.Filename, file.Size, documentExtensions, maxDocumentBytes); err != nil {
			utils.RespondError(c, err)
			return
		}
		src, err := file.Open()
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to read upload", err))
			return
		}
		key := storage.NewKey(documentPrefix, file.Filename)
		err = d.store.Put(ctx, key, src)
		src.Close()
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to store upload", err))
			return
		}

		previous := doc.FileKey
		doc.FileKey = key
		if err := d.saveDocument(c, user.ID, doc, models.ActionUpload, "Dokumentdatei hochgeladen: "); err != nil {
			removeStored(ctx, d.store, key)
			utils.RespondError(c, err)
			return
		}
		removeStored(ctx, d.store, previous)

		utils.OKResponse(c, "Document file uploaded successfully", doc)
	}
}

func handleDownloadDocument(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		doc, err := loadDocument(c, d.db.WithContext(ctx))
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if doc.FileKey == "" {
			utils.NotFoundResponse(c, "Keine Datei zu diesem Dokument vorhanden.")
			return
		}
		rc, err := d.store.Get(ctx, doc.FileKey)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		defer rc.Close()

		c.DataFromReader(http.StatusOK, -1, "application/octet-stream", rc, map[string]string{
			"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, path.Base(doc.FileKey)),
		})
	}
}

// handleDeleteDocument removes the document with its amendments and file
func handleDeleteDocument(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		ctx := c.Request.Context()
		db := d.db.WithContext(ctx)
		doc, err := loadDocument(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			amendments := tx.Model(&models.Amendment{}).Select("id").Where("document_id = ?", doc.ID)
			if err := tx.Where("amendment_id IN (?)", amendments).Delete(&models.AmendmentPassage{}).Error; err != nil {
				return err
			}
			if err := tx.Where("document_id = ?", doc.ID).Delete(&models.Amendment{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(doc).Error; err != nil {
				return err
			}
			row, err = d.audit.Record(tx, audit.For(c, user.ID, models.ActionDelete, "document", &doc.ID, "Dokument gelöscht: "+doc.Title))
			return err
		})
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to delete document", err))
			return
		}
		d.audit.Publish(row)
		removeStored(ctx, d.store, doc.FileKey)

		utils.OKResponse(c, "Document deleted successfully", nil)
	}
}

func (d *deps) saveDocument(c *gin.Context, actorID uuid.UUID, doc *models.Document, action models.AuditAction, details string) error {
	var row *models.AuditLog
	err := d.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(doc).Error; err != nil {
			return err
		}
		var err error
		row, err = d.audit.Record(tx, audit.For(c, actorID, action, "document", &doc.ID, details+doc.Title))
		return err
	})
	if err != nil {
		return apperr.Internal("failed to save document", err)
	}
	d.audit.Publish(row)
	return nil
}

// removeStored deletes a file whose row no longer points at it. Failures
// only leave an orphaned file behind.
func removeStored(ctx context.Context, store storage.Store, key string) {
	if key == "" {
		return
	}
	if err := store.Delete(ctx, key); err != nil {
		logrus.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Warn("Failed to remove stored file")
	}
}
