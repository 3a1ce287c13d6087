package main

import (
	"context"
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

// CreateTenantRequest represents the create tenant request
type CreateTenantRequest struct {
	Name         string             `json:"name" binding:"required,max=200"`
	Slug         string             `json:"slug" binding:"required,max=100"`
	Description  string             `json:"description"`
	Level        models.TenantLevel `json:"level" binding:"required,oneof=bundesverband landesverband bezirksverband kreisverband"`
	ParentID     *uuid.UUID         `json:"parent_id"`
	IsActive     *bool              `json:"is_active"`
	LogoURL      string             `json:"logo_url" binding:"omitempty,url"`
	PrimaryColor string             `json:"primary_color" binding:"omitempty,hexcolor"`
}

// UpdateTenantRequest represents the update tenant request
type UpdateTenantRequest struct {
	Name         *string             `json:"name" binding:"omitempty,max=200"`
	Slug         *string             `json:"slug" binding:"omitempty,max=100"`
	Description  *string             `json:"description"`
	Level        *models.TenantLevel `json:"level" binding:"omitempty,oneof=bundesverband landesverband bezirksverband kreisverband"`
	ParentID     *uuid.UUID          `json:"parent_id"`
	IsActive     *bool               `json:"is_active"`
	LogoURL      *string             `json:"logo_url" binding:"omitempty,url"`
	PrimaryColor *string             `json:"primary_color" binding:"omitempty,hexcolor"`
}

// accessibleTenants loads the active tenants the current user may see
func accessibleTenants(c *gin.Context, d *deps) ([]models.Tenant, error) {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		return nil, err
	}
	ids, err := d.resolver.AccessibleTenants(c.Request.Context(), user.Subject())
	if err != nil {
		return nil, apperr.Internal("failed to resolve tenants", err)
	}
	if len(ids) == 0 {
		return []models.Tenant{}, nil
	}

	query := d.db.WithContext(c.Request.Context()).Where("id IN ? AND is_active = ?", ids, true)
	if level := c.Query("level"); level != "" {
		query = query.Where("level = ?", level)
	}
	var tenants []models.Tenant
	if err := query.Order("name").Find(&tenants).Error; err != nil {
		return nil, apperr.Internal("failed to fetch tenants", err)
	}
	return tenants, nil
}

// handleGetTenants lists the tenants accessible to the current user
func handleGetTenants(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenants, err := accessibleTenants(c, d)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Tenants retrieved successfully", tenants)
	}
}

// handleGetTenantTree nests the accessible tenants below their parents.
// Tenants whose parent is not accessible become roots.
func handleGetTenantTree(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenants, err := accessibleTenants(c, d)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Tenant tree retrieved successfully", buildTree(tenants))
	}
}

func buildTree(tenants []models.Tenant) []models.Tenant {
	present := make(map[uuid.UUID]bool, len(tenants))
	children := make(map[uuid.UUID][]models.Tenant)
	for _, t := range tenants {
		present[t.ID] = true
	}
	var roots []models.Tenant
	for _, t := range tenants {
		if t.ParentID == nil || !present[*t.ParentID] {
			roots = append(roots, t)
			continue
		}
		children[*t.ParentID] = append(children[*t.ParentID], t)
	}

	// each id is attached once, so cyclic parent data cannot recurse forever
	attached := make(map[uuid.UUID]bool, len(tenants))
	var attach func(t models.Tenant) models.Tenant
	attach = func(t models.Tenant) models.Tenant {
		attached[t.ID] = true
		t.Children = []models.Tenant{}
		for _, child := range children[t.ID] {
			if !attached[child.ID] {
				t.Children = append(t.Children, attach(child))
			}
		}
		return t
	}

	out := make([]models.Tenant, 0, len(roots))
	for _, r := range roots {
		out = append(out, attach(r))
	}
	return out
}

// handleGetTenant returns one accessible tenant
func handleGetTenant(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, err := loadVisibleTenant(c, d)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Tenant retrieved successfully", tenant)
	}
}

func loadVisibleTenant(c *gin.Context, d *deps) (*models.Tenant, error) {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		return nil, err
	}
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return nil, err
	}
	accessible, err := d.resolver.AccessibleTenants(c.Request.Context(), user.Subject())
	if err != nil {
		return nil, apperr.Internal("failed to resolve tenants", err)
	}
	found := false
	for _, a := range accessible {
		if a == id {
			found = true
			break
		}
	}
	if !found {
		return nil, apperr.PermissionDenied("No access to this tenant")
	}

	var tenant models.Tenant
	if err := utils.FindByID(d.db.WithContext(c.Request.Context()), &tenant, id, "Tenant"); err != nil {
		return nil, err
	}
	return &tenant, nil
}

// handleGetTenantUsers lists the accounts homed in an accessible tenant
func handleGetTenantUsers(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, err := loadVisibleTenant(c, d)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var users []models.User
		if err := d.db.WithContext(c.Request.Context()).Where("tenant_id = ?", tenant.ID).Order("username").Find(&users).Error; err != nil {
			utils.RespondError(c, apperr.Internal("failed to fetch tenant users", err))
			return
		}
		utils.OKResponse(c, "Tenant users retrieved successfully", users)
	}
}

// handleCreateTenant handles tenant creation (admin only)
func handleCreateTenant(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var req CreateTenantRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}

		db := d.db.WithContext(c.Request.Context())
		tenant := models.Tenant{
			Name:         strings.TrimSpace(req.Name),
			Slug:         strings.ToLower(strings.TrimSpace(req.Slug)),
			Description:  req.Description,
			Level:        req.Level,
			ParentID:     req.ParentID,
			IsActive:     req.IsActive == nil || *req.IsActive,
			LogoURL:      req.LogoURL,
			PrimaryColor: req.PrimaryColor,
		}

		if err := checkSlug(db, tenant.Slug, uuid.Nil); err != nil {
			utils.RespondError(c, err)
			return
		}
		if tenant.ParentID != nil {
			ok, err := utils.Exists(db, &models.Tenant{}, "id = ?", *tenant.ParentID)
			if err != nil {
				utils.RespondError(c, err)
				return
			}
			if !ok {
				utils.RespondError(c, apperr.Validation("Parent tenant not found"))
				return
			}
		}

		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&tenant).Error; err != nil {
				return apperr.Internal("failed to create tenant", err)
			}
			var err error
			row, err = d.audit.Record(tx, audit.For(c, actor.ID, models.ActionCreate, "tenant", &tenant.ID, "Gliederung erstellt: "+tenant.Name))
			return err
		})
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		d.audit.Publish(row)

		utils.CreatedResponse(c, "Tenant created successfully", tenant)
	}
}

func checkSlug(db *gorm.DB, slug string, self uuid.UUID) error {
	taken, err := utils.Exists(db, &models.Tenant{}, "slug = ? AND id <> ?", slug, self)
	if err != nil {
		return err
	}
	if taken {
		return apperr.Validation("Tenant with this slug already exists")
	}
	return nil
}

// handleUpdateTenant handles updating a tenant (admin only)
func handleUpdateTenant(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		id, err := utils.ParseUUIDParam(c, "id")
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var req UpdateTenantRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}

		db := d.db.WithContext(c.Request.Context())
		var tenant models.Tenant
		if err := utils.FindByID(db, &tenant, id, "Tenant"); err != nil {
			utils.RespondError(c, err)
			return
		}

		if req.Name != nil {
			tenant.Name = strings.TrimSpace(*req.Name)
		}
		if req.Slug != nil {
			slug := strings.ToLower(strings.TrimSpace(*req.Slug))
			if err := checkSlug(db, slug, tenant.ID); err != nil {
				utils.RespondError(c, err)
				return
			}
			tenant.Slug = slug
		}
		if req.Description != nil {
			tenant.Description = *req.Description
		}
		if req.Level != nil {
			tenant.Level = *req.Level
		}
		if req.ParentID != nil {
			if err := checkParent(c.Request.Context(), d, tenant.ID, *req.ParentID); err != nil {
				utils.RespondError(c, err)
				return
			}
			tenant.ParentID = req.ParentID
		}
		if req.IsActive != nil {
			if tenant.IsActive && !*req.IsActive {
				if err := checkDeactivatable(db, tenant.ID); err != nil {
					utils.RespondError(c, err)
					return
				}
			}
			tenant.IsActive = *req.IsActive
		}
		if req.LogoURL != nil {
			tenant.LogoURL = *req.LogoURL
		}
		if req.PrimaryColor != nil {
			tenant.PrimaryColor = *req.PrimaryColor
		}

		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Save(&tenant).Error; err != nil {
				return apperr.Internal("failed to update tenant", err)
			}
			var err error
			row, err = d.audit.Record(tx, audit.For(c, actor.ID, models.ActionUpdate, "tenant", &tenant.ID, "Gliederung aktualisiert: "+tenant.Name))
			return err
		})
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		d.audit.Publish(row)

		utils.OKResponse(c, "Tenant updated successfully", tenant)
	}
}

// checkParent rejects a parent that does not exist or would close a cycle
func checkParent(ctx context.Context, d *deps, id, parentID uuid.UUID) error {
	if parentID == id {
		return apperr.Validation("A tenant cannot be its own parent")
	}
	ok, err := utils.Exists(d.db.WithContext(ctx), &models.Tenant{}, "id = ?", parentID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Validation("Parent tenant not found")
	}
	descendants, err := d.resolver.Descendants(ctx, id)
	if err != nil {
		return apperr.Internal("failed to resolve tenants", err)
	}
	for _, desc := range descendants {
		if desc == parentID {
			return apperr.Validation("A tenant cannot be moved below its own descendant")
		}
	}
	return nil
}

// handleDeactivateTenant flips the active flag; tenants are never deleted
func handleDeactivateTenant(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		id, err := utils.ParseUUIDParam(c, "id")
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		db := d.db.WithContext(c.Request.Context())
		var tenant models.Tenant
		if err := utils.FindByID(db, &tenant, id, "Tenant"); err != nil {
			utils.RespondError(c, err)
			return
		}

		if err := checkDeactivatable(db, tenant.ID); err != nil {
			utils.RespondError(c, err)
			return
		}

		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&tenant).Update("is_active", false).Error; err != nil {
				return apperr.Internal("failed to deactivate tenant", err)
			}
			var err error
			row, err = d.audit.Record(tx, audit.For(c, actor.ID, models.ActionDelete, "tenant", &tenant.ID, "Gliederung deaktiviert: "+tenant.Name))
			return err
		})
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		d.audit.Publish(row)

		utils.OKResponse(c, "Tenant deactivated successfully", nil)
	}
}

// checkDeactivatable blocks deactivation while active children exist
func checkDeactivatable(db *gorm.DB, id uuid.UUID) error {
	activeChildren, err := utils.Exists(db, &models.Tenant{}, "parent_id = ? AND is_active = ?", id, true)
	if err != nil {
		return err
	}
	if activeChildren {
		return apperr.InvalidState("Cannot deactivate tenant with active child tenants")
	}
	return nil
}
