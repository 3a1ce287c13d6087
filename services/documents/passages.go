package main

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/audit"
	"github.com/julis-sh/intranet/shared/middleware"
	"github.com/julis-sh/intranet/shared/models"
	"github.com/julis-sh/intranet/shared/utils"
)

// PassageRequest adds a passage; without a position it goes last
type PassageRequest struct {
	Position   *int   `json:"position" binding:"omitempty,min=0"`
	Reference  string `json:"bezug" binding:"max=255"`
	OldWording string `json:"alte_fassung"`
	NewWording string `json:"neue_fassung"`
	ChangeText string `json:"aenderungstext"`
}

// UpdatePassageRequest changes the fields that are present
type UpdatePassageRequest struct {
	Position   *int    `json:"position" binding:"omitempty,min=0"`
	Reference  *string `json:"bezug" binding:"omitempty,max=255"`
	OldWording *string `json:"alte_fassung"`
	NewWording *string `json:"neue_fassung"`
	ChangeText *string `json:"aenderungstext"`
}

func (r *UpdatePassageRequest) apply(p *models.AmendmentPassage) {
	if r.Position != nil {
		p.Position = *r.Position
	}
	if r.Reference != nil {
		p.Reference = *r.Reference
	}
	if r.OldWording != nil {
		p.OldWording = *r.OldWording
	}
	if r.NewWording != nil {
		p.NewWording = *r.NewWording
	}
	if r.ChangeText != nil {
		p.ChangeText = *r.ChangeText
	}
}

// loadPassage finds a passage that belongs to the amendment in the path
func loadPassage(c *gin.Context, db *gorm.DB) (*models.AmendmentPassage, error) {
	amendmentID, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return nil, err
	}
	id, err := utils.ParseUUIDParam(c, "passage")
	if err != nil {
		return nil, err
	}
	var p models.AmendmentPassage
	err = db.Where("id = ? AND amendment_id = ?", id, amendmentID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Stelle")
	}
	if err != nil {
		return nil, apperr.Internal("failed to fetch passage", err)
	}
	return &p, nil
}

func handleListPassages(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := loadAmendment(c, d.db.WithContext(c.Request.Context()))
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		passages := a.Passages
		if passages == nil {
			passages = []models.AmendmentPassage{}
		}
		utils.OKResponse(c, "Passages retrieved successfully", passages)
	}
}

func handleCreatePassage(d *deps) gin.HandlerFunc {
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
		var req PassageRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}

		p := &models.AmendmentPassage{
			AmendmentID: a.ID,
			Reference:   req.Reference,
			OldWording:  req.OldWording,
			NewWording:  req.NewWording,
			ChangeText:  req.ChangeText,
		}
		if req.Position != nil {
			p.Position = *req.Position
		} else {
			p.Position = nextPosition(a.Passages)
		}
		if err := d.savePassage(c, user.ID, p, models.ActionCreate, "Stelle hinzugefügt zu Antrag von "+a.Applicant); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.CreatedResponse(c, "Passage created successfully", p)
	}
}

func nextPosition(passages []models.AmendmentPassage) int {
	next := 0
	for _, p := range passages {
		if p.Position >= next {
			next = p.Position + 1
		}
	}
	return next
}

func handleUpdatePassage(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		p, err := loadPassage(c, d.db.WithContext(c.Request.Context()))
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		var req UpdatePassageRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}
		req.apply(p)
		if err := d.savePassage(c, user.ID, p, models.ActionUpdate, "Stelle aktualisiert"); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Passage updated successfully", p)
	}
}

func handleDeletePassage(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		db := d.db.WithContext(c.Request.Context())
		p, err := loadPassage(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Delete(p).Error; err != nil {
				return err
			}
			row, err = d.audit.Record(tx, audit.For(c, user.ID, models.ActionDelete, "document_aenderung", &p.ID, "Stelle gelöscht"))
			return err
		})
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to delete passage", err))
			return
		}
		d.audit.Publish(row)
		utils.OKResponse(c, "Passage deleted successfully", nil)
	}
}

func (d *deps) savePassage(c *gin.Context, actorID uuid.UUID, p *models.AmendmentPassage, action models.AuditAction, details string) error {
	var row *models.AuditLog
	err := d.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(p).Error; err != nil {
			return err
		}
		var err error
		row, err = d.audit.Record(tx, audit.For(c, actorID, action, "document_aenderung", &p.ID, details))
		return err
	})
	if err != nil {
		return apperr.Internal("failed to save passage", err)
	}
	d.audit.Publish(row)
	return nil
}
