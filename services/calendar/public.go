package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/audit"
	"github.com/julis-sh/intranet/shared/models"
	"github.com/julis-sh/intranet/shared/tenancy"
	"github.com/julis-sh/intranet/shared/utils"
)

const (
	calendarLandesverband = "landesverband"
	calendarKreisverband  = "kreisverband"
)

// TenantShort is the public view of a tenant
type TenantShort struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
}

// CalendarsResponse lists the two public calendars
type CalendarsResponse struct {
	Landesverband *TenantShort  `json:"landesverband"`
	Kreisverband  []TenantShort `json:"kreisverband"`
}

// PublicEventRequest is an event submitted without an account
type PublicEventRequest struct {
	EventFields
	SubmitterName  string     `json:"submitter_name" binding:"required,max=255"`
	SubmitterEmail string     `json:"submitter_email" binding:"required,email,max=255"`
	TenantID       *uuid.UUID `json:"tenant_id"`
}

func shortTenant(t models.Tenant) TenantShort {
	return TenantShort{ID: t.ID, Name: t.Name, Slug: t.Slug}
}

// publicTenants resolves which tenants a public request covers. The calendar
// parameter wins; otherwise the X-Tenant-Slug header or tenant_id selects a
// tenant and its subtree; without any of them every active tenant counts.
func publicTenants(c *gin.Context, d *deps) (tenancy.Set, error) {
	db := d.db.WithContext(c.Request.Context())

	switch c.Query("calendar") {
	case calendarLandesverband:
		return activeTenantIDs(db.Where("parent_id IS NULL"))
	case calendarKreisverband:
		return activeTenantIDs(db.Where("parent_id IS NOT NULL"))
	}

	var selected *uuid.UUID
	if slug := c.GetHeader("X-Tenant-Slug"); slug != "" {
		var tenant models.Tenant
		err := db.Where("slug = ? AND is_active = ?", slug, true).First(&tenant).Error
		if err == nil {
			selected = &tenant.ID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Internal("failed to resolve tenant slug", err)
		}
	}
	if selected == nil {
		id, err := utils.ParseUUIDQuery(c, "tenant_id")
		if err != nil {
			return nil, err
		}
		selected = id
	}
	if selected == nil {
		return activeTenantIDs(db)
	}

	descendants, err := d.resolver.Descendants(c.Request.Context(), *selected)
	if err != nil {
		return nil, err
	}
	set := tenancy.NewSet(*selected)
	set.Add(descendants...)
	return set, nil
}

func activeTenantIDs(query *gorm.DB) (tenancy.Set, error) {
	var ids []uuid.UUID
	if err := query.Model(&models.Tenant{}).Where("is_active = ?", true).Pluck("id", &ids).Error; err != nil {
		return nil, apperr.Internal("failed to load tenants", err)
	}
	return tenancy.NewSet(ids...), nil
}

// publishedEvents selects approved public events of the requested tenants
func publishedEvents(c *gin.Context, d *deps) (*gorm.DB, bool, error) {
	tenants, err := publicTenants(c, d)
	if err != nil {
		return nil, false, err
	}
	if tenants.Len() == 0 {
		return nil, false, nil
	}
	query := d.db.WithContext(c.Request.Context()).
		Where("status = ? AND is_public = ? AND tenant_id IN ?", models.EventStatusApproved, true, tenants.IDs())
	query, err = filterDates(c, query)
	if err != nil {
		return nil, false, err
	}
	return query, true, nil
}

func handlePublicCalendars(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		db := d.db.WithContext(c.Request.Context())

		var roots, children []models.Tenant
		if err := db.Where("parent_id IS NULL AND is_active = ?", true).Order("created_at, name").Find(&roots).Error; err != nil {
			utils.RespondError(c, apperr.Internal("failed to load tenants", err))
			return
		}
		if err := db.Where("parent_id IS NOT NULL AND is_active = ?", true).Order("name").Find(&children).Error; err != nil {
			utils.RespondError(c, apperr.Internal("failed to load tenants", err))
			return
		}

		resp := CalendarsResponse{Kreisverband: make([]TenantShort, 0, len(children))}
		if len(roots) > 0 {
			root := shortTenant(roots[0])
			resp.Landesverband = &root
		}
		for _, t := range children {
			resp.Kreisverband = append(resp.Kreisverband, shortTenant(t))
		}
		utils.OKResponse(c, "Calendars retrieved successfully", resp)
	}
}

// handlePublicEvents lists approved public events in chronological order
func handlePublicEvents(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		query, ok, err := publishedEvents(c, d)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		events := []models.Event{}
		if !ok {
			utils.OKResponse(c, "Events retrieved successfully", events)
			return
		}

		categoryID, err := utils.ParseUUIDQuery(c, "category_id")
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if categoryID != nil {
			query = query.Where("category_id = ?", *categoryID)
		}

		skip, limit := utils.Pagination(c, 100, 500)
		if err := query.Order("start_date ASC, start_time ASC").Offset(skip).Limit(limit).Find(&events).Error; err != nil {
			utils.RespondError(c, apperr.Internal("failed to fetch events", err))
			return
		}
		utils.OKResponse(c, "Events retrieved successfully", events)
	}
}

func handlePublicEvent(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		event, err := loadEvent(c, d.db.WithContext(c.Request.Context()))
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if event.Status != models.EventStatusApproved || !event.IsPublic {
			utils.NotFoundResponse(c, "Event not found")
			return
		}
		utils.OKResponse(c, "Event retrieved successfully", event)
	}
}

// handleSubmitPublicEvent files an event for review on behalf of the
// configured submitter account. Only chapter calendars take submissions.
func handleSubmitPublicEvent(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d.public.SubmitterUserID == nil {
			utils.ServiceUnavailableResponse(c, "Öffentliche Termin-Einreichung ist derzeit nicht konfiguriert.")
			return
		}

		var req PublicEventRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}
		if err := req.validate(); err != nil {
			utils.RespondError(c, err)
			return
		}

		db := d.db.WithContext(c.Request.Context())
		var submitter models.User
		err := db.Where("id = ? AND is_active = ?", *d.public.SubmitterUserID, true).First(&submitter).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.ServiceUnavailableResponse(c, "Öffentliche Termin-Einreichung ist derzeit nicht verfügbar.")
			return
		}
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to load submitter", err))
			return
		}

		tenantID := req.TenantID
		if tenantID == nil {
			tenantID = d.public.DefaultTenantID
		}
		if tenantID == nil {
			utils.BadRequestResponse(c, "Kein Ziel-Tenant angegeben.")
			return
		}
		var tenant models.Tenant
		err = db.Where("id = ? AND is_active = ?", *tenantID, true).First(&tenant).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.BadRequestResponse(c, "Ungültiger oder inaktiver Tenant.")
			return
		}
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to load tenant", err))
			return
		}
		if tenant.IsRoot() {
			utils.BadRequestResponse(c, "Öffentliche Einreichung nur für Kreisverbands-Termine. Landesverbands-Termine werden im Intranet angelegt.")
			return
		}
		if err := checkCategory(db, req.CategoryID, tenant.ID); err != nil {
			utils.RespondError(c, err)
			return
		}

		event := req.event()
		event.IsPublic = true
		event.SubmitterID = submitter.ID
		event.SubmitterName = req.SubmitterName
		event.SubmitterEmail = req.SubmitterEmail
		event.TenantID = tenant.ID
		event.Status = models.EventStatusPending

		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&event).Error; err != nil {
				return apperr.Internal("failed to create event", err)
			}
			entry := audit.For(c, submitter.ID, models.ActionCreate, "event", &event.ID, "Öffentlicher Termin eingereicht: "+event.Title)
			row, err = d.audit.Record(tx, entry)
			return err
		})
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		d.audit.Publish(row)

		logrus.WithFields(logrus.Fields{
			"event_id":  event.ID,
			"tenant_id": tenant.ID,
		}).Info("Public event submitted")
		utils.CreatedResponse(c, "Termin wurde zur Freigabe eingereicht.", event)
	}
}

func handlePublicCategories(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenants, err := publicTenants(c, d)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		categories := []models.Category{}
		if tenants.Len() > 0 {
			err = d.db.WithContext(c.Request.Context()).
				Where("tenant_id IN ? AND is_active = ?", tenants.IDs(), true).
				Order("name").
				Find(&categories).Error
			if err != nil {
				utils.RespondError(c, apperr.Internal("failed to fetch categories", err))
				return
			}
		}
		utils.OKResponse(c, "Categories retrieved successfully", categories)
	}
}

// handlePublicICal exports the same selection as the public list as iCalendar
func handlePublicICal(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		query, ok, err := publishedEvents(c, d)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		var events []models.Event
		if ok {
			if err := query.Order("start_date ASC").Find(&events).Error; err != nil {
				utils.RespondError(c, apperr.Internal("failed to fetch events", err))
				return
			}
		}
		c.Header("Content-Disposition", "attachment; filename=julis-kalender.ics")
		c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(renderICal(events, d.contact)))
	}
}
