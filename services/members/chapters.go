package main

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/audit"
	"github.com/julis-sh/intranet/shared/middleware"
	"github.com/julis-sh/intranet/shared/models"
	"github.com/julis-sh/intranet/shared/utils"
)

// ChapterRequest creates a chapter
type ChapterRequest struct {
	Name      string     `json:"name" binding:"required,max=255"`
	ShortCode string     `json:"kuerzel" binding:"max=20"`
	Email     string     `json:"email" binding:"omitempty,email"`
	IsActive  *bool      `json:"ist_aktiv"`
	TenantID  *uuid.UUID `json:"tenant_id"`
}

// UpdateChapterRequest changes the fields that are present
type UpdateChapterRequest struct {
	Name      *string    `json:"name" binding:"omitempty,min=1,max=255"`
	ShortCode *string    `json:"kuerzel" binding:"omitempty,max=20"`
	Email     *string    `json:"email" binding:"omitempty,email"`
	IsActive  *bool      `json:"ist_aktiv"`
	TenantID  *uuid.UUID `json:"tenant_id"`
}

// BoardMemberRequest creates or replaces a board member
type BoardMemberRequest struct {
	Name      string       `json:"name" binding:"required,max=255"`
	Email     string       `json:"email" binding:"omitempty,email"`
	Role      string       `json:"rolle" binding:"required,max=100"`
	TermStart *models.Date `json:"amtszeit_start"`
	TermEnd   *models.Date `json:"amtszeit_ende"`
	IsActive  *bool        `json:"ist_aktiv"`
}

func (r *BoardMemberRequest) apply(m *models.BoardMember) {
	m.Name = r.Name
	m.Email = r.Email
	m.Role = r.Role
	m.TermStart = r.TermStart
	m.TermEnd = r.TermEnd
	m.IsActive = r.IsActive == nil || *r.IsActive
}

// OverviewMember is one person in the board overview
type OverviewMember struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email,omitempty"`
	Role  string    `json:"rolle"`
}

// OverviewEntry groups the overview by chapter
type OverviewEntry struct {
	Chapter models.Chapter   `json:"kreisverband"`
	Members []OverviewMember `json:"mitglieder"`
}

// overviewRoles maps an overview group to the board role labels it covers.
// The first label of a group is the deputy chair, the rest are assessors.
var overviewRoles = map[string][]string{
	"vorsitz":       {models.BoardRoleChair},
	"schatzmeister": {models.BoardRoleTreasurer},
	"organisation":  {"stv. Kreisvorsitzender für Organisation", "Beisitzer für Organisation"},
	"programmatik":  {"stv. Kreisvorsitzender für Programmatik", "Beisitzer für Programmatik"},
	"presse":        {"stv. Kreisvorsitzender für Presse- und Öffentlichkeitsarbeit", "Beisitzer für Presse- und Öffentlichkeitsarbeit"},
}

func rolesForOverview(group string, withAssessors bool) []string {
	roles := overviewRoles[strings.ToLower(group)]
	if len(roles) > 1 && !withAssessors {
		return roles[:1]
	}
	return roles
}

// boolQuery reads an optional boolean query parameter
func boolQuery(c *gin.Context, name string) (*bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.Validation("Invalid %s", name)
	}
	return &v, nil
}

func loadChapter(c *gin.Context, db *gorm.DB) (*models.Chapter, error) {
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return nil, err
	}
	var chapter models.Chapter
	if err := utils.FindByID(db, &chapter, id, "Kreisverband"); err != nil {
		return nil, err
	}
	return &chapter, nil
}

func checkChapterName(db *gorm.DB, name string, exclude uuid.UUID) error {
	taken, err := utils.Exists(db, &models.Chapter{}, "name = ? AND id <> ?", name, exclude)
	if err != nil {
		return apperr.Internal("failed to check chapter name", err)
	}
	if taken {
		return apperr.Validation("Kreisverband with this name already exists")
	}
	return nil
}

func checkTenant(db *gorm.DB, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	var tenant models.Tenant
	return utils.FindByID(db, &tenant, *id, "Tenant")
}

func handleListChapters(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		active, err := boolQuery(c, "ist_aktiv")
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		query := d.db.WithContext(c.Request.Context()).Model(&models.Chapter{})
		if active != nil {
			query = query.Where("is_active = ?", *active)
		}
		var chapters []models.Chapter
		if err := query.Order("name").Find(&chapters).Error; err != nil {
			utils.RespondError(c, apperr.Internal("failed to list chapters", err))
			return
		}
		utils.OKResponse(c, "Chapters retrieved successfully", chapters)
	}
}

func handleBoardOverview(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		withAssessors := true
		if v, err := boolQuery(c, "mit_beisitzern"); err != nil {
			utils.RespondError(c, err)
			return
		} else if v != nil {
			withAssessors = *v
		}
		roles := rolesForOverview(c.Query("rolle"), withAssessors)
		if len(roles) == 0 {
			utils.BadRequestResponse(c, "Ungültige rolle. Erlaubt: vorsitz, schatzmeister, organisation, programmatik, presse")
			return
		}

		db := d.db.WithContext(c.Request.Context())
		var chapters []models.Chapter
		if err := db.Where("is_active = ?", true).Order("name").Find(&chapters).Error; err != nil {
			utils.RespondError(c, apperr.Internal("failed to list chapters", err))
			return
		}
		ids := make([]uuid.UUID, len(chapters))
		for i, ch := range chapters {
			ids[i] = ch.ID
		}

		var members []models.BoardMember
		if len(ids) > 0 {
			err := db.Where("chapter_id IN ? AND is_active = ? AND role IN ?", ids, true, roles).
				Order("role").Find(&members).Error
			if err != nil {
				utils.RespondError(c, apperr.Internal("failed to list board members", err))
				return
			}
		}
		byChapter := make(map[uuid.UUID][]OverviewMember)
		for _, m := range members {
			byChapter[m.ChapterID] = append(byChapter[m.ChapterID], OverviewMember{ID: m.ID, Name: m.Name, Email: m.Email, Role: m.Role})
		}

		overview := make([]OverviewEntry, len(chapters))
		for i, ch := range chapters {
			overview[i] = OverviewEntry{Chapter: ch, Members: byChapter[ch.ID]}
			if overview[i].Members == nil {
				overview[i].Members = []OverviewMember{}
			}
		}
		utils.OKResponse(c, "Board overview retrieved successfully", overview)
	}
}

func handleCreateChapter(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		var req ChapterRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}

		db := d.db.WithContext(c.Request.Context())
		if err := checkChapterName(db, req.Name, uuid.Nil); err != nil {
			utils.RespondError(c, err)
			return
		}
		if err := checkTenant(db, req.TenantID); err != nil {
			utils.RespondError(c, err)
			return
		}

		chapter := models.Chapter{
			Name:      req.Name,
			ShortCode: req.ShortCode,
			Email:     req.Email,
			IsActive:  req.IsActive == nil || *req.IsActive,
			TenantID:  req.TenantID,
		}
		if err := d.saveChapter(c, user.ID, &chapter, models.ActionCreate, "Kreisverband erstellt: "); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.CreatedResponse(c, "Chapter created successfully", chapter)
	}
}

func handleGetChapter(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := utils.ParseUUIDParam(c, "id")
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		var chapter models.Chapter
		err = d.db.WithContext(c.Request.Context()).
			Preload("BoardMembers", func(db *gorm.DB) *gorm.DB { return db.Order("role") }).
			First(&chapter, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.RespondError(c, apperr.NotFound("Kreisverband"))
			return
		}
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to load chapter", err))
			return
		}
		utils.OKResponse(c, "Chapter retrieved successfully", chapter)
	}
}

func handleUpdateChapter(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		db := d.db.WithContext(c.Request.Context())
		chapter, err := loadChapter(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		var req UpdateChapterRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}

		if req.Name != nil && *req.Name != chapter.Name {
			if err := checkChapterName(db, *req.Name, chapter.ID); err != nil {
				utils.RespondError(c, err)
				return
			}
			chapter.Name = *req.Name
		}
		if req.TenantID != nil {
			if err := checkTenant(db, req.TenantID); err != nil {
				utils.RespondError(c, err)
				return
			}
			chapter.TenantID = req.TenantID
		}
		if req.ShortCode != nil {
			chapter.ShortCode = *req.ShortCode
		}
		if req.Email != nil {
			chapter.Email = *req.Email
		}
		if req.IsActive != nil {
			chapter.IsActive = *req.IsActive
		}

		if err := d.saveChapter(c, user.ID, chapter, models.ActionUpdate, "Kreisverband aktualisiert: "); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Chapter updated successfully", chapter)
	}
}

func handleDeactivateChapter(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		chapter, err := loadChapter(c, d.db.WithContext(c.Request.Context()))
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		chapter.IsActive = false
		if err := d.saveChapter(c, user.ID, chapter, models.ActionDelete, "Kreisverband deaktiviert: "); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Chapter deactivated successfully", nil)
	}
}

func (d *deps) saveChapter(c *gin.Context, actorID uuid.UUID, chapter *models.Chapter, action models.AuditAction, detailsPrefix string) error {
	var row *models.AuditLog
	err := d.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(chapter).Error; err != nil {
			return err
		}
		var err error
		row, err = d.audit.Record(tx, audit.For(c, actorID, action, "kreisverband", &chapter.ID, detailsPrefix+chapter.Name))
		return err
	})
	if err != nil {
		return apperr.Internal("failed to save chapter", err)
	}
	d.audit.Publish(row)
	return nil
}

func handleListBoardMembers(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		db := d.db.WithContext(c.Request.Context())
		chapter, err := loadChapter(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		active, err := boolQuery(c, "ist_aktiv")
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		query := db.Where("chapter_id = ?", chapter.ID)
		if active != nil {
			query = query.Where("is_active = ?", *active)
		}
		var members []models.BoardMember
		if err := query.Order("role").Find(&members).Error; err != nil {
			utils.RespondError(c, apperr.Internal("failed to list board members", err))
			return
		}
		utils.OKResponse(c, "Board members retrieved successfully", members)
	}
}

func handleCreateBoardMember(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		db := d.db.WithContext(c.Request.Context())
		chapter, err := loadChapter(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		var req BoardMemberRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}

		member := models.BoardMember{ChapterID: chapter.ID}
		req.apply(&member)
		if err := d.saveBoardMember(c, user.ID, &member, models.ActionCreate, "Vorstandsmitglied erstellt: "); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.CreatedResponse(c, "Board member created successfully", member)
	}
}

func loadBoardMember(c *gin.Context, db *gorm.DB) (*models.BoardMember, error) {
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return nil, err
	}
	var member models.BoardMember
	if err := utils.FindByID(db, &member, id, "Vorstandsmitglied"); err != nil {
		return nil, err
	}
	return &member, nil
}

func handleUpdateBoardMember(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		member, err := loadBoardMember(c, d.db.WithContext(c.Request.Context()))
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		var req BoardMemberRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}
		req.apply(member)
		if err := d.saveBoardMember(c, user.ID, member, models.ActionUpdate, "Vorstandsmitglied aktualisiert: "); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Board member updated successfully", member)
	}
}

func handleDeleteBoardMember(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		db := d.db.WithContext(c.Request.Context())
		member, err := loadBoardMember(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Delete(member).Error; err != nil {
				return err
			}
			row, err = d.audit.Record(tx, audit.For(c, user.ID, models.ActionDelete, "vorstandsmitglied", &member.ID, "Vorstandsmitglied gelöscht: "+member.Name))
			return err
		})
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to delete board member", err))
			return
		}
		d.audit.Publish(row)
		utils.OKResponse(c, "Board member deleted successfully", nil)
	}
}

func (d *deps) saveBoardMember(c *gin.Context, actorID uuid.UUID, member *models.BoardMember, action models.AuditAction, detailsPrefix string) error {
	var row *models.AuditLog
	err := d.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(member).Error; err != nil {
			return err
		}
		var err error
		row, err = d.audit.Record(tx, audit.For(c, actorID, action, "vorstandsmitglied", &member.ID,
			detailsPrefix+member.Name+" ("+member.Role+")"))
		return err
	})
	if err != nil {
		return apperr.Internal("failed to save board member", err)
	}
	d.audit.Publish(row)
	return nil
}
