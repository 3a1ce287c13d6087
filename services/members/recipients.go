package main

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/audit"
	"github.com/julis-sh/intranet/shared/middleware"
	"github.com/julis-sh/intranet/shared/models"
	"github.com/julis-sh/intranet/shared/utils"
)

// RecipientRequest creates an email recipient of a chapter
type RecipientRequest struct {
	ChapterID uuid.UUID `json:"kreisverband_id" binding:"required"`
	Name      string    `json:"name" binding:"required,max=255"`
	Email     string    `json:"email" binding:"required,email"`
	Role      string    `json:"rolle" binding:"max=100"`
}

// UpdateRecipientRequest changes the fields that are present
type UpdateRecipientRequest struct {
	ChapterID *uuid.UUID `json:"kreisverband_id"`
	Name      *string    `json:"name" binding:"omitempty,min=1,max=255"`
	Email     *string    `json:"email" binding:"omitempty,email"`
	Role      *string    `json:"rolle" binding:"omitempty,max=100"`
}

func (r *UpdateRecipientRequest) apply(rec *models.EmailRecipient) {
	if r.ChapterID != nil {
		rec.ChapterID = *r.ChapterID
	}
	if r.Name != nil {
		rec.Name = *r.Name
	}
	if r.Email != nil {
		rec.Email = *r.Email
	}
	if r.Role != nil {
		rec.Role = *r.Role
	}
}

func loadRecipient(c *gin.Context, db *gorm.DB) (*models.EmailRecipient, error) {
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return nil, err
	}
	var rec models.EmailRecipient
	if err := utils.FindByID(db, &rec, id, "Email recipient"); err != nil {
		return nil, err
	}
	return &rec, nil
}

func handleListRecipients(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		chapterID, err := utils.ParseUUIDQuery(c, "kreisverband_id")
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		query := d.db.WithContext(c.Request.Context()).Model(&models.EmailRecipient{})
		if chapterID != nil {
			query = query.Where("chapter_id = ?", *chapterID)
		}
		var recipients []models.EmailRecipient
		if err := query.Order("chapter_id, role").Find(&recipients).Error; err != nil {
			utils.RespondError(c, apperr.Internal("failed to list email recipients", err))
			return
		}
		utils.OKResponse(c, "Email recipients retrieved successfully", recipients)
	}
}

func handleGetRecipient(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := loadRecipient(c, d.db.WithContext(c.Request.Context()))
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Email recipient retrieved successfully", rec)
	}
}

func handleCreateRecipient(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		var req RecipientRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}
		db := d.db.WithContext(c.Request.Context())
		if err := checkChapterRef(db, &req.ChapterID); err != nil {
			utils.RespondError(c, err)
			return
		}

		rec := &models.EmailRecipient{
			ChapterID: req.ChapterID,
			Name:      req.Name,
			Email:     req.Email,
			Role:      req.Role,
		}
		if err := d.saveRecipient(c, db, user.ID, rec, models.ActionCreate, "E-Mail-Empfänger erstellt: "); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.CreatedResponse(c, "Email recipient created successfully", rec)
	}
}

func handleUpdateRecipient(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		db := d.db.WithContext(c.Request.Context())
		rec, err := loadRecipient(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		var req UpdateRecipientRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}
		if err := checkChapterRef(db, req.ChapterID); err != nil {
			utils.RespondError(c, err)
			return
		}

		req.apply(rec)
		if err := d.saveRecipient(c, db, user.ID, rec, models.ActionUpdate, "E-Mail-Empfänger aktualisiert: "); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Email recipient updated successfully", rec)
	}
}

func handleDeleteRecipient(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		db := d.db.WithContext(c.Request.Context())
		rec, err := loadRecipient(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Delete(rec).Error; err != nil {
				return err
			}
			row, err = d.audit.Record(tx, audit.For(c, user.ID, models.ActionDelete, "email_recipient", &rec.ID, "E-Mail-Empfänger gelöscht: "+rec.Name))
			return err
		})
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to delete email recipient", err))
			return
		}
		d.audit.Publish(row)

		utils.OKResponse(c, "Email recipient deleted successfully", nil)
	}
}

func (d *deps) saveRecipient(c *gin.Context, db *gorm.DB, actorID uuid.UUID, rec *models.EmailRecipient, action models.AuditAction, details string) error {
	var row *models.AuditLog
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(rec).Error; err != nil {
			return err
		}
		var err error
		row, err = d.audit.Record(tx, audit.For(c, actorID, action, "email_recipient", &rec.ID, details+rec.Name))
		return err
	})
	if err != nil {
		return apperr.Internal("failed to save email recipient", err)
	}
	d.audit.Publish(row)
	return nil
}
