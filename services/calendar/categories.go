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

// CategoryRequest creates a category of one tenant
type CategoryRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Color       string `json:"color" binding:"required,hexcolor,len=7"`
	Description string `json:"description"`
}

// UpdateCategoryRequest changes only the fields that are sent
type UpdateCategoryRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=1,max=100"`
	Color       *string `json:"color" binding:"omitempty,hexcolor,len=7"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

func checkCategoryName(db *gorm.DB, name string, tenantID uuid.UUID, exclude *uuid.UUID) error {
	query := "name = ? AND tenant_id = ?"
	args := []interface{}{name, tenantID}
	if exclude != nil {
		query += " AND id <> ?"
		args = append(args, *exclude)
	}
	taken, err := utils.Exists(db, &models.Category{}, query, args...)
	if err != nil {
		return err
	}
	if taken {
		return apperr.Validation("Category with this name already exists for this tenant")
	}
	return nil
}

// loadVisibleCategory loads the :id category if the user can see its tenant
func loadVisibleCategory(c *gin.Context, d *deps, user *models.User) (*models.Category, error) {
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return nil, err
	}
	var category models.Category
	if err := utils.FindByID(d.db.WithContext(c.Request.Context()), &category, id, "Category"); err != nil {
		return nil, err
	}
	ok, err := d.resolver.CanSee(c.Request.Context(), user.Subject(), category.TenantID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.PermissionDenied("No access to this category")
	}
	return &category, nil
}

func handleListCategories(d *deps) gin.HandlerFunc {
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

		categories := []models.Category{}
		if visible.Len() > 0 {
			query := d.db.WithContext(c.Request.Context()).Where("tenant_id IN ?", visible.IDs())
			if c.Query("include_inactive") != "true" {
				query = query.Where("is_active = ?", true)
			}
			if err := query.Order("name").Find(&categories).Error; err != nil {
				utils.RespondError(c, apperr.Internal("failed to fetch categories", err))
				return
			}
		}
		utils.OKResponse(c, "Categories retrieved successfully", categories)
	}
}

func handleCreateCategory(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		tenantID, err := utils.ParseUUIDQuery(c, "tenant_id")
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if tenantID == nil {
			utils.BadRequestResponse(c, "tenant_id is required")
			return
		}

		var req CategoryRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}

		ctx := c.Request.Context()
		db := d.db.WithContext(ctx)
		if _, err := d.resolver.RequiredTenants(ctx, user.Subject(), tenantID, true); err != nil {
			utils.RespondError(c, err)
			return
		}
		var tenant models.Tenant
		if err := utils.FindByID(db, &tenant, *tenantID, "Tenant"); err != nil {
			utils.RespondError(c, err)
			return
		}
		if err := checkCategoryName(db, req.Name, tenant.ID, nil); err != nil {
			utils.RespondError(c, err)
			return
		}

		category := models.Category{
			Name:        req.Name,
			Color:       req.Color,
			Description: req.Description,
			TenantID:    tenant.ID,
			IsActive:    true,
			CreatedBy:   user.ID,
		}
		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&category).Error; err != nil {
				return apperr.Internal("failed to create category", err)
			}
			row, err = d.audit.Record(tx, audit.For(c, user.ID, models.ActionCreate, "category", &category.ID, "Kategorie erstellt: "+category.Name))
			return err
		})
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		d.audit.Publish(row)

		utils.CreatedResponse(c, "Category created successfully", category)
	}
}

func handleGetCategory(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		category, err := loadVisibleCategory(c, d, user)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Category retrieved successfully", category)
	}
}

func handleUpdateCategory(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		category, err := loadVisibleCategory(c, d, user)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var req UpdateCategoryRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}

		db := d.db.WithContext(c.Request.Context())
		if req.Name != nil && *req.Name != category.Name {
			if err := checkCategoryName(db, *req.Name, category.TenantID, &category.ID); err != nil {
				utils.RespondError(c, err)
				return
			}
			category.Name = *req.Name
		}
		if req.Color != nil {
			category.Color = *req.Color
		}
		if req.Description != nil {
			category.Description = *req.Description
		}
		if req.IsActive != nil {
			category.IsActive = *req.IsActive
		}

		if err := saveCategory(c, d, user.ID, category, models.ActionUpdate, "Kategorie aktualisiert: "); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Category updated successfully", category)
	}
}

// handleDeactivateCategory hides a category; events keep their reference
func handleDeactivateCategory(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		category, err := loadVisibleCategory(c, d, user)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		category.IsActive = false
		if err := saveCategory(c, d, user.ID, category, models.ActionDelete, "Kategorie deaktiviert: "); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Category deactivated", nil)
	}
}

func saveCategory(c *gin.Context, d *deps, actorID uuid.UUID, category *models.Category, action models.AuditAction, details string) error {
	var row *models.AuditLog
	err := d.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(category).Error; err != nil {
			return apperr.Internal("failed to save category", err)
		}
		var err error
		row, err = d.audit.Record(tx, audit.For(c, actorID, action, "category", &category.ID, details+category.Name))
		return err
	})
	if err != nil {
		return err
	}
	d.audit.Publish(row)
	return nil
}
