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

// EventFields are the calendar fields shared by intranet and public submissions
type EventFields struct {
	Title       string       `json:"title" binding:"required,max=255"`
	Description string       `json:"description"`
	StartDate   models.Date  `json:"start_date"`
	StartTime   string       `json:"start_time" binding:"omitempty,clock"`
	EndDate     *models.Date `json:"end_date"`
	EndTime     string       `json:"end_time" binding:"omitempty,clock"`
	Location    string       `json:"location" binding:"max=500"`
	LocationURL string       `json:"location_url" binding:"max=500"`
	Organizer   string       `json:"organizer" binding:"required,max=255"`
	CategoryID  *uuid.UUID   `json:"category_id"`
}

func (f *EventFields) validate() error {
	if f.StartDate.IsZero() {
		return apperr.Validation("start_date is required")
	}
	if f.EndDate != nil && !f.EndDate.IsZero() && f.EndDate.Before(f.StartDate.Time) {
		return apperr.Validation("end_date must not be before start_date")
	}
	return nil
}

func (f *EventFields) event() models.Event {
	e := models.Event{
		Title:       f.Title,
		Description: f.Description,
		StartDate:   f.StartDate,
		StartTime:   f.StartTime,
		EndTime:     f.EndTime,
		Location:    f.Location,
		LocationURL: f.LocationURL,
		Organizer:   f.Organizer,
		CategoryID:  f.CategoryID,
	}
	if f.EndDate != nil && !f.EndDate.IsZero() {
		e.EndDate = f.EndDate
	}
	return e
}

// CreateEventRequest is the intranet event form
type CreateEventRequest struct {
	EventFields
	IsPublic       *bool      `json:"is_public"`
	SubmitterName  string     `json:"submitter_name" binding:"max=255"`
	SubmitterEmail string     `json:"submitter_email" binding:"omitempty,email,max=255"`
	TargetTenantID *uuid.UUID `json:"target_tenant_id"`
}

// UpdateEventRequest changes only the fields that are sent
type UpdateEventRequest struct {
	Title       *string      `json:"title" binding:"omitempty,min=1,max=255"`
	Description *string      `json:"description"`
	StartDate   *models.Date `json:"start_date"`
	StartTime   *string      `json:"start_time" binding:"omitempty,clock"`
	EndDate     *models.Date `json:"end_date"`
	EndTime     *string      `json:"end_time" binding:"omitempty,clock"`
	Location    *string      `json:"location" binding:"omitempty,max=500"`
	LocationURL *string      `json:"location_url" binding:"omitempty,max=500"`
	Organizer   *string      `json:"organizer" binding:"omitempty,min=1,max=255"`
	CategoryID  *uuid.UUID   `json:"category_id"`
	IsPublic    *bool        `json:"is_public"`
}

func (r *UpdateEventRequest) apply(e *models.Event) {
	if r.Title != nil {
		e.Title = *r.Title
	}
	if r.Description != nil {
		e.Description = *r.Description
	}
	if r.StartDate != nil && !r.StartDate.IsZero() {
		e.StartDate = *r.StartDate
	}
	if r.StartTime != nil {
		e.StartTime = *r.StartTime
	}
	if r.EndDate != nil {
		e.EndDate = r.EndDate
		if r.EndDate.IsZero() {
			e.EndDate = nil
		}
	}
	if r.EndTime != nil {
		e.EndTime = *r.EndTime
	}
	if r.Location != nil {
		e.Location = *r.Location
	}
	if r.LocationURL != nil {
		e.LocationURL = *r.LocationURL
	}
	if r.Organizer != nil {
		e.Organizer = *r.Organizer
	}
	if r.CategoryID != nil {
		e.CategoryID = r.CategoryID
	}
	if r.IsPublic != nil {
		e.IsPublic = *r.IsPublic
	}
}

// RejectRequest carries the mandatory rejection reason
type RejectRequest struct {
	RejectionReason string `json:"rejection_reason"`
}

// checkCategory requires an active category of tenantID when one is given
func checkCategory(db *gorm.DB, categoryID *uuid.UUID, tenantID uuid.UUID) error {
	if categoryID == nil {
		return nil
	}
	ok, err := utils.Exists(db, &models.Category{}, "id = ? AND tenant_id = ? AND is_active = ?", *categoryID, tenantID, true)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Validation("Ungültige oder dem Tenant nicht zugeordnete Kategorie.")
	}
	return nil
}

func loadEvent(c *gin.Context, db *gorm.DB) (*models.Event, error) {
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return nil, err
	}
	var event models.Event
	if err := utils.FindByID(db, &event, id, "Event"); err != nil {
		return nil, err
	}
	return &event, nil
}

// filterDates narrows query to events starting within the start_date and
// end_date query parameters
func filterDates(c *gin.Context, query *gorm.DB) (*gorm.DB, error) {
	if raw := c.Query("start_date"); raw != "" {
		from, err := models.ParseDate(raw)
		if err != nil {
			return nil, apperr.Validation("%s", err.Error())
		}
		query = query.Where("start_date >= ?", from)
	}
	if raw := c.Query("end_date"); raw != "" {
		until, err := models.ParseDate(raw)
		if err != nil {
			return nil, apperr.Validation("%s", err.Error())
		}
		query = query.Where("start_date <= ?", until)
	}
	return query, nil
}

// handleListEvents lists the events of every visible tenant
func handleListEvents(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		requested, err := utils.ParseUUIDQuery(c, "tenant_id")
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		db := d.db.WithContext(c.Request.Context())
		visible, err := d.resolver.VisibleTenants(c.Request.Context(), user.Subject(), requested, true)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		events := []models.Event{}
		if visible.Len() == 0 {
			utils.OKResponse(c, "Events retrieved successfully", events)
			return
		}

		query := db.Where("tenant_id IN ?", visible.IDs())
		if raw := c.Query("status"); raw != "" {
			status := models.EventStatus(raw)
			if !status.Valid() {
				utils.BadRequestResponse(c, "Invalid status filter")
				return
			}
			query = query.Where("status = ?", status)
		}
		if query, err = filterDates(c, query); err != nil {
			utils.RespondError(c, err)
			return
		}

		skip, limit := utils.Pagination(c, 50, 200)
		if err := query.Order("start_date DESC, created_at DESC").Offset(skip).Limit(limit).Find(&events).Error; err != nil {
			utils.RespondError(c, apperr.Internal("failed to fetch events", err))
			return
		}
		utils.OKResponse(c, "Events retrieved successfully", events)
	}
}

// handleCreateEvent creates an event for the user's home tenant or an
// explicitly chosen target within reach
func handleCreateEvent(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var req CreateEventRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}
		if err := req.validate(); err != nil {
			utils.RespondError(c, err)
			return
		}

		target := req.TargetTenantID
		if target == nil {
			target = user.TenantID
		}
		if target == nil {
			utils.BadRequestResponse(c, "No target tenant specified and user has no tenant")
			return
		}

		ctx := c.Request.Context()
		db := d.db.WithContext(ctx)
		visible, err := d.resolver.VisibleTenants(ctx, user.Subject(), target, true)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if !visible.Contains(*target) {
			utils.ForbiddenResponse(c, "No access to target tenant")
			return
		}
		var tenant models.Tenant
		if err := utils.FindByID(db, &tenant, *target, "Tenant"); err != nil {
			utils.RespondError(c, err)
			return
		}
		if err := checkCategory(db, req.CategoryID, tenant.ID); err != nil {
			utils.RespondError(c, err)
			return
		}

		event := req.event()
		event.IsPublic = req.IsPublic == nil || *req.IsPublic
		event.SubmitterID = user.ID
		event.SubmitterName = req.SubmitterName
		if event.SubmitterName == "" {
			event.SubmitterName = user.DisplayName()
		}
		event.SubmitterEmail = req.SubmitterEmail
		if event.SubmitterEmail == "" {
			event.SubmitterEmail = user.Email
		}
		event.TenantID = tenant.ID
		event.SourceTenantID = user.TenantID
		d.flow.Create(&event, user.Subject(), tenant.IsRoot())

		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&event).Error; err != nil {
				return apperr.Internal("failed to create event", err)
			}
			row, err = d.audit.Record(tx, audit.For(c, user.ID, models.ActionCreate, "event", &event.ID, "Event erstellt: "+event.Title))
			return err
		})
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		d.audit.Publish(row)

		utils.CreatedResponse(c, "Event created successfully", event)
	}
}

func handleGetEvent(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		event, err := loadEvent(c, d.db.WithContext(c.Request.Context()))
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		ok, err := d.resolver.CanSee(c.Request.Context(), user.Subject(), event.TenantID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if !ok {
			utils.ForbiddenResponse(c, "No access to this event")
			return
		}
		utils.OKResponse(c, "Event retrieved successfully", event)
	}
}

// handleUpdateEvent applies the sent fields; a rejected event edited by its
// submitter goes back to review
func handleUpdateEvent(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		ctx := c.Request.Context()
		db := d.db.WithContext(ctx)
		event, err := loadEvent(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var req UpdateEventRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}

		if err := d.flow.Edit(ctx, event, user.Subject(), req.apply); err != nil {
			utils.RespondError(c, err)
			return
		}
		if event.EndDate != nil && event.EndDate.Before(event.StartDate.Time) {
			utils.BadRequestResponse(c, "end_date must not be before start_date")
			return
		}
		if req.CategoryID != nil {
			if err := checkCategory(db, req.CategoryID, event.TenantID); err != nil {
				utils.RespondError(c, err)
				return
			}
		}

		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Save(event).Error; err != nil {
				return apperr.Internal("failed to update event", err)
			}
			row, err = d.audit.Record(tx, audit.For(c, user.ID, models.ActionUpdate, "event", &event.ID, "Event aktualisiert: "+event.Title))
			return err
		})
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		d.audit.Publish(row)

		utils.OKResponse(c, "Event updated successfully", event)
	}
}

func handleDeleteEvent(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		ctx := c.Request.Context()
		db := d.db.WithContext(ctx)
		event, err := loadEvent(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if err := d.flow.Delete(ctx, event, user.Subject()); err != nil {
			utils.RespondError(c, err)
			return
		}

		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Delete(event).Error; err != nil {
				return apperr.Internal("failed to delete event", err)
			}
			row, err = d.audit.Record(tx, audit.For(c, user.ID, models.ActionDelete, "event", &event.ID, "Event gelöscht: "+event.Title))
			return err
		})
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		d.audit.Publish(row)

		utils.OKResponse(c, "Event deleted successfully", nil)
	}
}

// handleListPending lists events waiting for review, oldest first
func handleListPending(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		requested, err := utils.ParseUUIDQuery(c, "tenant_id")
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		visible, err := d.resolver.VisibleTenants(c.Request.Context(), user.Subject(), requested, true)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		events := []models.Event{}
		if visible.Len() > 0 {
			skip, limit := utils.Pagination(c, 50, 200)
			err = d.db.WithContext(c.Request.Context()).
				Where("tenant_id IN ? AND status = ?", visible.IDs(), models.EventStatusPending).
				Order("created_at ASC").
				Offset(skip).Limit(limit).
				Find(&events).Error
			if err != nil {
				utils.RespondError(c, apperr.Internal("failed to fetch pending events", err))
				return
			}
		}
		utils.OKResponse(c, "Pending events retrieved successfully", events)
	}
}

func handleApproveEvent(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		ctx := c.Request.Context()
		event, err := loadEvent(c, d.db.WithContext(ctx))
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if err := d.flow.Approve(ctx, event, user.Subject()); err != nil {
			utils.RespondError(c, err)
			return
		}
		if err := saveReview(c, d, user.ID, event, models.ActionApprove, "Event freigegeben: "); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Event approved", event)
	}
}

func handleRejectEvent(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		ctx := c.Request.Context()
		event, err := loadEvent(c, d.db.WithContext(ctx))
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		var req RejectRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}
		if err := d.flow.Reject(ctx, event, user.Subject(), req.RejectionReason); err != nil {
			utils.RespondError(c, err)
			return
		}
		if err := saveReview(c, d, user.ID, event, models.ActionReject, "Event abgelehnt: "); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Event rejected", event)
	}
}

// saveReview persists a review decision together with its audit row
func saveReview(c *gin.Context, d *deps, actorID uuid.UUID, event *models.Event, action models.AuditAction, details string) error {
	var row *models.AuditLog
	err := d.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(event).Error; err != nil {
			return apperr.Internal("failed to save event", err)
		}
		var err error
		row, err = d.audit.Record(tx, audit.For(c, actorID, action, "event", &event.ID, details+event.Title))
		return err
	})
	if err != nil {
		return err
	}
	d.audit.Publish(row)
	return nil
}
