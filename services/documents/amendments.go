package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/audit"
	"github.com/julis-sh/intranet/shared/middleware"
	"github.com/julis-sh/intranet/shared/models"
	"github.com/julis-sh/intranet/shared/utils"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// AmendmentRequest submits an amendment to a document
type AmendmentRequest struct {
	Title      string `json:"titel" binding:"max=500"`
	Applicant  string `json:"antragsteller" binding:"required,max=255"`
	MotionText string `json:"antrag_text" binding:"required"`
	OldWording string `json:"alte_fassung"`
	NewWording string `json:"neue_fassung"`
	Reasoning  string `json:"begruendung"`
}

// UpdateAmendmentRequest changes the fields that are present, including the
// decision status
type UpdateAmendmentRequest struct {
	Title      *string                 `json:"titel" binding:"omitempty,max=500"`
	Applicant  *string                 `json:"antragsteller" binding:"omitempty,min=1,max=255"`
	MotionText *string                 `json:"antrag_text"`
	OldWording *string                 `json:"alte_fassung"`
	NewWording *string                 `json:"neue_fassung"`
	Reasoning  *string                 `json:"begruendung"`
	Status     *models.AmendmentStatus `json:"status"`
}

func (r *UpdateAmendmentRequest) apply(a *models.Amendment) {
	if r.Title != nil {
		a.Title = *r.Title
	}
	if r.Applicant != nil {
		a.Applicant = *r.Applicant
	}
	if r.MotionText != nil {
		a.MotionText = *r.MotionText
	}
	if r.OldWording != nil {
		a.OldWording = *r.OldWording
	}
	if r.NewWording != nil {
		a.NewWording = *r.NewWording
	}
	if r.Reasoning != nil {
		a.Reasoning = *r.Reasoning
	}
	if r.Status != nil {
		a.Status = *r.Status
	}
}

func withPassages(db *gorm.DB) *gorm.DB {
	return db.Preload("Passages", func(db *gorm.DB) *gorm.DB {
		return db.Order("position, created_at")
	})
}

func loadAmendment(c *gin.Context, db *gorm.DB) (*models.Amendment, error) {
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return nil, err
	}
	var a models.Amendment
	if err := utils.FindByID(withPassages(db), &a, id, "Aenderungsantrag"); err != nil {
		return nil, err
	}
	return &a, nil
}

// loadAmendmentWithDocument also resolves the amended document
func loadAmendmentWithDocument(c *gin.Context, db *gorm.DB) (*models.Amendment, *models.Document, error) {
	a, err := loadAmendment(c, db)
	if err != nil {
		return nil, nil, err
	}
	doc, err := findDocument(db, a.DocumentID)
	if err != nil {
		return nil, nil, err
	}
	return a, doc, nil
}

func handleListAmendments(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		db := d.db.WithContext(c.Request.Context())
		doc, err := loadDocument(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		query := withPassages(db).Where("document_id = ?", doc.ID)
		if status := c.Query("status"); status != "" {
			query = query.Where("status = ?", status)
		}
		var amendments []models.Amendment
		if err := query.Order("created_at DESC").Find(&amendments).Error; err != nil {
			utils.RespondError(c, apperr.Internal("failed to list amendments", err))
			return
		}
		utils.OKResponse(c, "Amendments retrieved successfully", amendments)
	}
}

// handleCreateAmendment stores the amendment and, with send_emails=true,
// notifies the configured addresses
func handleCreateAmendment(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		sendEmails := false
		if raw := c.Query("send_emails"); raw != "" {
			if sendEmails, err = strconv.ParseBool(raw); err != nil {
				utils.BadRequestResponse(c, "send_emails must be true or false")
				return
			}
		}

		ctx := c.Request.Context()
		db := d.db.WithContext(ctx)
		doc, err := loadDocument(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		var req AmendmentRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}

		a := &models.Amendment{
			DocumentID: doc.ID,
			Title:      req.Title,
			Applicant:  req.Applicant,
			MotionText: req.MotionText,
			OldWording: req.OldWording,
			NewWording: req.NewWording,
			Reasoning:  req.Reasoning,
			Status:     models.AmendmentSubmitted,
		}
		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(a).Error; err != nil {
				return err
			}
			row, err = d.audit.Record(tx, audit.For(c, user.ID, models.ActionCreate, "aenderungsantrag", &a.ID,
				fmt.Sprintf("Änderungsantrag erstellt für Dokument %s: %s", doc.Title, a.Applicant)))
			return err
		})
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to create amendment", err))
			return
		}
		d.audit.Publish(row)
		a.Passages = []models.AmendmentPassage{}

		if sendEmails && d.notify.ready() {
			if err := d.notify.send(ctx, db, a, doc); err != nil {
				logrus.WithFields(logrus.Fields{
					"amendment_id": a.ID,
					"error":        err.Error(),
				}).Warn("Amendment notification not sent")
			}
		}
		utils.CreatedResponse(c, "Amendment created successfully", a)
	}
}

func handleUpdateAmendment(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		db := d.db.WithContext(c.Request.Context())
		a, err := loadAmendment(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		var req UpdateAmendmentRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}
		if req.Status != nil && !req.Status.Valid() {
			utils.BadRequestResponse(c, "Invalid status. Must be one of: eingereicht, angenommen, abgelehnt")
			return
		}

		req.apply(a)
		action := models.ActionUpdate
		switch {
		case req.Status == nil:
		case *req.Status == models.AmendmentAccepted:
			action = models.ActionApprove
		case *req.Status == models.AmendmentRejected:
			action = models.ActionReject
		}

		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Omit("Passages").Save(a).Error; err != nil {
				return err
			}
			row, err = d.audit.Record(tx, audit.For(c, user.ID, action, "aenderungsantrag", &a.ID, "Änderungsantrag aktualisiert: "+a.Applicant))
			return err
		})
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to update amendment", err))
			return
		}
		d.audit.Publish(row)

		utils.OKResponse(c, "Amendment updated successfully", a)
	}
}

func handleDeleteAmendment(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		db := d.db.WithContext(c.Request.Context())
		a, err := loadAmendment(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("amendment_id = ?", a.ID).Delete(&models.AmendmentPassage{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&models.Amendment{}, "id = ?", a.ID).Error; err != nil {
				return err
			}
			row, err = d.audit.Record(tx, audit.For(c, user.ID, models.ActionDelete, "aenderungsantrag", &a.ID, "Änderungsantrag gelöscht: "+a.Applicant))
			return err
		})
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to delete amendment", err))
			return
		}
		d.audit.Publish(row)

		utils.OKResponse(c, "Amendment deleted successfully", nil)
	}
}

func handleSendAmendmentEmail(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		ctx := c.Request.Context()
		db := d.db.WithContext(ctx)
		a, doc, err := loadAmendmentWithDocument(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if !d.notify.mail.Configured() {
			utils.ServiceUnavailableResponse(c, "E-Mail ist nicht konfiguriert (SMTP).")
			return
		}
		if len(d.notify.recipients) == 0 {
			utils.BadRequestResponse(c, "Keine Empfänger konfiguriert (DOCUMENT_AMENDMENT_NOTIFY_EMAILS).")
			return
		}

		if err := d.notify.send(ctx, db, a, doc); err != nil {
			utils.RespondError(c, err)
			return
		}
		if err := d.audit.Log(db, audit.For(c, user.ID, models.ActionSend, "aenderungsantrag", &a.ID, "Benachrichtigung versendet: "+a.Applicant)); err != nil {
			utils.RespondError(c, apperr.Internal("failed to record audit entry", err))
			return
		}

		utils.OKResponse(c, "E-Mails wurden versendet.", nil)
	}
}

func handleExportDOCX(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, doc, err := loadAmendmentWithDocument(c, d.db.WithContext(c.Request.Context()))
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		data, err := buildDOCX(a, doc)
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to build document", err))
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, exportName(a, "docx")))
		c.Data(http.StatusOK, docxContentType, data)
	}
}

func handleExportPDF(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		a, doc, err := loadAmendmentWithDocument(c, d.db.WithContext(ctx))
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		data, err := buildDOCX(a, doc)
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to build document", err))
			return
		}
		pdf, err := d.converter.ConvertBytes(ctx, data, exportName(a, "docx"))
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, exportName(a, "pdf")))
		c.Data(http.StatusOK, "application/pdf", pdf)
	}
}
