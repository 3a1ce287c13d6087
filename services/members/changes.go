package main

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/audit"
	"github.com/julis-sh/intranet/shared/middleware"
	"github.com/julis-sh/intranet/shared/models"
	"github.com/julis-sh/intranet/shared/utils"
)

// MemberChangeRequest records a membership change
type MemberChangeRequest struct {
	Scenario        models.Scenario `json:"scenario" binding:"required,scenario"`
	MemberNumber    string          `json:"mitgliedsnummer" binding:"max=50"`
	FirstName       string          `json:"vorname" binding:"required,max=255"`
	LastName        string          `json:"nachname" binding:"required,max=255"`
	Email           string          `json:"email" binding:"omitempty,email"`
	Phone           string          `json:"telefon" binding:"max=50"`
	Street          string          `json:"strasse" binding:"max=255"`
	HouseNumber     string          `json:"hausnummer" binding:"max=20"`
	PostalCode      string          `json:"plz" binding:"max=10"`
	City            string          `json:"ort" binding:"max=255"`
	BirthDate       string          `json:"geburtsdatum" binding:"max=20"`
	Remark          string          `json:"bemerkung"`
	ChapterID       *uuid.UUID      `json:"kreisverband_id"`
	SourceChapterID *uuid.UUID      `json:"kreisverband_alt_id"`
	TargetChapterID *uuid.UUID      `json:"kreisverband_neu_id"`
}

// checkChapters enforces the chapters each scenario needs for notification
func (r *MemberChangeRequest) checkChapters() error {
	switch {
	case r.Scenario == models.ScenarioAustritt && r.ChapterID == nil:
		return apperr.Validation("Bitte Kreisverband zur Benachrichtigung auswählen (z. B. austretender KV).")
	case (r.Scenario == models.ScenarioEintritt || r.Scenario == models.ScenarioVeraenderung) && r.ChapterID == nil:
		return apperr.Validation("Bitte Kreisverband auswählen.")
	case r.Scenario.IsTransfer() && (r.SourceChapterID == nil || r.TargetChapterID == nil):
		return apperr.Validation("Bitte beide Kreisverbände (von / nach) auswählen.")
	}
	return nil
}

func (r *MemberChangeRequest) change(createdBy uuid.UUID) *models.MemberChange {
	return &models.MemberChange{
		Scenario:        r.Scenario,
		MemberNumber:    r.MemberNumber,
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		Email:           r.Email,
		Phone:           r.Phone,
		Street:          r.Street,
		HouseNumber:     r.HouseNumber,
		PostalCode:      r.PostalCode,
		City:            r.City,
		BirthDate:       r.BirthDate,
		Remark:          r.Remark,
		ChapterID:       r.ChapterID,
		SourceChapterID: r.SourceChapterID,
		TargetChapterID: r.TargetChapterID,
		Status:          models.MemberChangeDraft,
		CreatedByID:     createdBy,
	}
}

// ResendRequest picks the notification targets; both default to true
type ResendRequest struct {
	SendToMember *bool `json:"send_to_member"`
	SendToKV     *bool `json:"send_to_kv"`
}

func (r *ResendRequest) targets() targets {
	return targets{
		member:   r.SendToMember == nil || *r.SendToMember,
		chapters: r.SendToKV == nil || *r.SendToKV,
	}
}

func loadChange(c *gin.Context, db *gorm.DB) (*models.MemberChange, error) {
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return nil, err
	}
	var change models.MemberChange
	if err := utils.FindByID(db, &change, id, "Member change"); err != nil {
		return nil, err
	}
	return &change, nil
}

func handleListChanges(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		chapterID, err := utils.ParseUUIDQuery(c, "kreisverband_id")
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		query := d.db.WithContext(c.Request.Context()).Model(&models.MemberChange{})
		if scenario := c.Query("scenario"); scenario != "" {
			query = query.Where("scenario = ?", scenario)
		}
		if chapterID != nil {
			query = query.Where("chapter_id = ?", *chapterID)
		}
		if status := c.Query("status"); status != "" {
			query = query.Where("status = ?", status)
		}

		skip, limit := utils.Pagination(c, 50, 200)
		var changes []models.MemberChange
		if err := query.Order("created_at DESC").Offset(skip).Limit(limit).Find(&changes).Error; err != nil {
			utils.RespondError(c, apperr.Internal("failed to list member changes", err))
			return
		}
		utils.OKResponse(c, "Member changes retrieved successfully", changes)
	}
}

func handleGetChange(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		change, err := loadChange(c, d.db.WithContext(c.Request.Context()))
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Member change retrieved successfully", change)
	}
}

// handleCreateChange stores the change and, unless send_emails=false, sends
// the notifications right away
func handleCreateChange(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		sendEmails := true
		if raw := c.Query("send_emails"); raw != "" {
			if sendEmails, err = strconv.ParseBool(raw); err != nil {
				utils.BadRequestResponse(c, "send_emails must be true or false")
				return
			}
		}

		var req MemberChangeRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}
		if err := req.checkChapters(); err != nil {
			utils.RespondError(c, err)
			return
		}

		ctx := c.Request.Context()
		db := d.db.WithContext(ctx)
		for _, id := range []*uuid.UUID{req.ChapterID, req.SourceChapterID, req.TargetChapterID} {
			if id == nil {
				continue
			}
			var chapter models.Chapter
			if err := utils.FindByID(db, &chapter, *id, "Kreisverband"); err != nil {
				utils.RespondError(c, err)
				return
			}
		}

		change := req.change(user.ID)
		if sendEmails {
			change.Status = models.MemberChangeSent
		}
		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(change).Error; err != nil {
				return err
			}
			row, err = d.audit.Record(tx, audit.For(c, user.ID, models.ActionCreate, "member_change", &change.ID,
				"Mitgliederänderung erfasst: "+string(change.Scenario)+" "+change.FirstName+" "+change.LastName))
			return err
		})
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to create member change", err))
			return
		}
		d.audit.Publish(row)

		if sendEmails {
			if err := d.notify.dispatch(ctx, db, change, allTargets); err != nil {
				utils.RespondError(c, apperr.Internal("failed to send notifications", err))
				return
			}
		}
		utils.CreatedResponse(c, "Member change created successfully", change)
	}
}

func handleSendChange(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		ctx := c.Request.Context()
		db := d.db.WithContext(ctx)
		change, err := loadChange(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if change.Status == models.MemberChangeSent {
			utils.RespondError(c, apperr.InvalidState("Emails already sent for this change"))
			return
		}

		if err := d.notify.dispatch(ctx, db, change, allTargets); err != nil {
			utils.RespondError(c, apperr.Internal("failed to send notifications", err))
			return
		}

		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(change).Update("status", models.MemberChangeSent).Error; err != nil {
				return err
			}
			row, err = d.audit.Record(tx, audit.For(c, user.ID, models.ActionSend, "member_change", &change.ID,
				"Benachrichtigungen versendet: "+change.FirstName+" "+change.LastName))
			return err
		})
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to update member change", err))
			return
		}
		d.audit.Publish(row)

		utils.OKResponse(c, "Emails sent", change)
	}
}

// handleResendChange repeats the notifications without touching the status
func handleResendChange(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		var req ResendRequest
		if c.Request.ContentLength != 0 {
			if err := utils.BindJSON(c, &req); err != nil {
				utils.RespondError(c, err)
				return
			}
		}
		to := req.targets()
		if !to.member && !to.chapters {
			utils.BadRequestResponse(c, "Mindestens eine Option (Mitglied oder KV) auswählen.")
			return
		}

		ctx := c.Request.Context()
		db := d.db.WithContext(ctx)
		change, err := loadChange(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if err := d.notify.dispatch(ctx, db, change, to); err != nil {
			utils.RespondError(c, apperr.Internal("failed to send notifications", err))
			return
		}

		row, err := d.audit.Record(db, audit.For(c, user.ID, models.ActionSend, "member_change", &change.ID,
			"Benachrichtigungen erneut versendet: "+change.FirstName+" "+change.LastName))
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to record audit entry", err))
			return
		}
		d.audit.Publish(row)

		utils.OKResponse(c, "Emails sent again", change)
	}
}
