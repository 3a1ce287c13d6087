package main

import (
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/audit"
	"github.com/julis-sh/intranet/shared/middleware"
	"github.com/julis-sh/intranet/shared/models"
	"github.com/julis-sh/intranet/shared/rbac"
	"github.com/julis-sh/intranet/shared/utils"
)

// MeetingRequest creates a meeting
type MeetingRequest struct {
	Title            string                   `json:"titel" binding:"required,max=255"`
	ShortTitle       string                   `json:"titel_kurz" binding:"max=255"`
	Type             string                   `json:"typ" binding:"required,max=50"`
	Date             models.Date              `json:"datum"`
	Time             string                   `json:"uhrzeit" binding:"omitempty,clock"`
	Place            string                   `json:"ort"`
	Agenda           json.RawMessage          `json:"tagesordnung"`
	MinutesTexts     json.RawMessage          `json:"protokoll_top_texte"`
	Attendees        string                   `json:"teilnehmer"`
	OtherAttendees   string                   `json:"teilnehmer_sonstige"`
	Chair            string                   `json:"sitzungsleitung"`
	MinuteTaker      string                   `json:"protokollfuehrer"`
	Resolutions      string                   `json:"beschluesse"`
	Variant          models.InvitationVariant `json:"einladung_variante" binding:"omitempty,oneof=freitext landesvorstand erweiterter_landesvorstand"`
	RecipientsText   string                   `json:"einladung_empfaenger_freitext"`
	SelectedInvitees []string                 `json:"teilnehmer_eingeladene_auswahl"`
}

// UpdateMeetingRequest changes the fields that are present
type UpdateMeetingRequest struct {
	Title            *string                   `json:"titel" binding:"omitempty,min=1,max=255"`
	ShortTitle       *string                   `json:"titel_kurz" binding:"omitempty,max=255"`
	Type             *string                   `json:"typ" binding:"omitempty,min=1,max=50"`
	Date             *models.Date              `json:"datum"`
	Time             *string                   `json:"uhrzeit" binding:"omitempty,clock"`
	Place            *string                   `json:"ort"`
	Agenda           *json.RawMessage          `json:"tagesordnung"`
	MinutesTexts     *json.RawMessage          `json:"protokoll_top_texte"`
	Attendees        *string                   `json:"teilnehmer"`
	OtherAttendees   *string                   `json:"teilnehmer_sonstige"`
	Chair            *string                   `json:"sitzungsleitung"`
	MinuteTaker      *string                   `json:"protokollfuehrer"`
	Resolutions      *string                   `json:"beschluesse"`
	Variant          *models.InvitationVariant `json:"einladung_variante" binding:"omitempty,oneof=freitext landesvorstand erweiterter_landesvorstand"`
	RecipientsText   *string                   `json:"einladung_empfaenger_freitext"`
	SelectedInvitees *[]string                 `json:"teilnehmer_eingeladene_auswahl"`
}

// protocolOnly drops everything but the minutes related fields
func (r *UpdateMeetingRequest) protocolOnly() {
	*r = UpdateMeetingRequest{
		MinutesTexts:     r.MinutesTexts,
		Attendees:        r.Attendees,
		OtherAttendees:   r.OtherAttendees,
		Chair:            r.Chair,
		MinuteTaker:      r.MinuteTaker,
		SelectedInvitees: r.SelectedInvitees,
		Resolutions:      r.Resolutions,
	}
}

// jsonList accepts a JSON list or null and stores it as a JSON column
func jsonList(raw json.RawMessage, field string) (datatypes.JSON, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var items []interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, apperr.Validation("%s must be a list", field)
	}
	return datatypes.JSON(raw), nil
}

func stringList(items []string) datatypes.JSON {
	if items == nil {
		return nil
	}
	data, _ := json.Marshal(items)
	return datatypes.JSON(data)
}

func (r *UpdateMeetingRequest) apply(m *models.Meeting) error {
	if r.Date != nil {
		if r.Date.IsZero() {
			return apperr.Validation("datum must not be empty")
		}
		m.Date = *r.Date
	}
	if r.Agenda != nil {
		agenda, err := jsonList(*r.Agenda, "tagesordnung")
		if err != nil {
			return err
		}
		m.Agenda = agenda
	}
	if r.MinutesTexts != nil {
		minutes, err := jsonList(*r.MinutesTexts, "protokoll_top_texte")
		if err != nil {
			return err
		}
		m.MinutesTexts = minutes
	}
	if r.SelectedInvitees != nil {
		m.SelectedInvitees = stringList(*r.SelectedInvitees)
	}
	if r.Variant != nil {
		m.Variant = *r.Variant
	}

	for _, f := range []struct {
		src *string
		dst *string
	}{
		{r.Title, &m.Title},
		{r.ShortTitle, &m.ShortTitle},
		{r.Type, &m.Type},
		{r.Time, &m.Time},
		{r.Place, &m.Place},
		{r.Attendees, &m.Attendees},
		{r.OtherAttendees, &m.OtherAttendees},
		{r.Chair, &m.Chair},
		{r.MinuteTaker, &m.MinuteTaker},
		{r.Resolutions, &m.Resolutions},
		{r.RecipientsText, &m.RecipientsText},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	return nil
}

func loadMeeting(c *gin.Context, db *gorm.DB) (*models.Meeting, error) {
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return nil, err
	}
	var m models.Meeting
	if err := utils.FindByID(db, &m, id, "Meeting"); err != nil {
		return nil, err
	}
	return &m, nil
}

func handleListMeetings(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		db := d.db.WithContext(c.Request.Context())
		skip, limit := utils.Pagination(c, 50, 200)

		query := db.Model(&models.Meeting{})
		if typ := c.Query("typ"); typ != "" {
			query = query.Where("type = ?", typ)
		}

		var meetings []models.Meeting
		if err := query.Order(`"date" DESC, "time"`).Offset(skip).Limit(limit).Find(&meetings).Error; err != nil {
			utils.RespondError(c, apperr.Internal("failed to list meetings", err))
			return
		}
		utils.OKResponse(c, "Meetings retrieved successfully", meetings)
	}
}

func handleAttendeeOptions(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		variant := models.InvitationVariant(strings.ToLower(strings.TrimSpace(c.Param("variant"))))
		var chapters []string
		if variant == models.InvitationErweiterterLandesvorstand {
			var err error
			if chapters, err = chapterOptions(d.db.WithContext(c.Request.Context())); err != nil {
				utils.RespondError(c, apperr.Internal("failed to load attendee options", err))
				return
			}
		}
		utils.OKResponse(c, "Attendee options retrieved successfully", d.roster.Options(variant, chapters))
	}
}

func handleCreateMeeting(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var req MeetingRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}
		if req.Date.IsZero() {
			utils.RespondError(c, apperr.Validation("datum is required"))
			return
		}
		agendaJSON, err := jsonList(req.Agenda, "tagesordnung")
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		minutesJSON, err := jsonList(req.MinutesTexts, "protokoll_top_texte")
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		meeting := models.Meeting{
			Title:            req.Title,
			ShortTitle:       req.ShortTitle,
			Type:             req.Type,
			Date:             req.Date,
			Time:             req.Time,
			Place:            req.Place,
			Agenda:           agendaJSON,
			MinutesTexts:     minutesJSON,
			Attendees:        req.Attendees,
			OtherAttendees:   req.OtherAttendees,
			Chair:            req.Chair,
			MinuteTaker:      req.MinuteTaker,
			Resolutions:      req.Resolutions,
			Variant:          req.Variant,
			RecipientsText:   req.RecipientsText,
			SelectedInvitees: stringList(req.SelectedInvitees),
			CreatedByID:      user.ID,
		}

		db := d.db.WithContext(c.Request.Context())
		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&meeting).Error; err != nil {
				return err
			}
			row, err = d.audit.Record(tx, audit.For(c, user.ID, models.ActionCreate, "meeting", &meeting.ID, "Sitzung angelegt: "+meeting.Title))
			return err
		})
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to create meeting", err))
			return
		}
		d.audit.Publish(row)

		utils.CreatedResponse(c, "Meeting created successfully", meeting)
	}
}

func handleGetMeeting(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		meeting, err := loadMeeting(c, d.db.WithContext(c.Request.Context()))
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Meeting retrieved successfully", meeting)
	}
}

func handleUpdateMeeting(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		db := d.db.WithContext(c.Request.Context())
		meeting, err := loadMeeting(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var req UpdateMeetingRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}
		if !rbac.HasMinRole(user.Role, rbac.RoleLeitung) {
			req.protocolOnly()
		}
		if err := req.apply(meeting); err != nil {
			utils.RespondError(c, err)
			return
		}

		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Save(meeting).Error; err != nil {
				return err
			}
			row, err = d.audit.Record(tx, audit.For(c, user.ID, models.ActionUpdate, "meeting", &meeting.ID, "Sitzung aktualisiert: "+meeting.Title))
			return err
		})
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to update meeting", err))
			return
		}
		d.audit.Publish(row)

		utils.OKResponse(c, "Meeting updated successfully", meeting)
	}
}

func handleDeleteMeeting(d *deps) gin.HandlerFunc {
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

		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Delete(meeting).Error; err != nil {
				return err
			}
			row, err = d.audit.Record(tx, audit.For(c, user.ID, models.ActionDelete, "meeting", &meeting.ID, "Sitzung gelöscht: "+meeting.Title))
			return err
		})
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to delete meeting", err))
			return
		}
		d.audit.Publish(row)

		removeGenerated(ctx, d.store, meeting.InvitationPath, meeting.ProtocolPath)
		utils.OKResponse(c, "Meeting deleted successfully", nil)
	}
}
