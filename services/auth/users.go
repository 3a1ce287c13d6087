package main

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/audit"
	"github.com/julis-sh/intranet/shared/mailer"
	"github.com/julis-sh/intranet/shared/middleware"
	"github.com/julis-sh/intranet/shared/models"
	"github.com/julis-sh/intranet/shared/rbac"
	"github.com/julis-sh/intranet/shared/security"
	"github.com/julis-sh/intranet/shared/utils"
)

const welcomeSubject = "Dein Zugang zum JuLis-Intranet"

const welcomeBody = `<p>Hallo {name},</p>
<p>für dich wurde ein Zugang zum JuLis-Intranet eingerichtet.</p>
<p><strong>So meldest du dich an:</strong></p>
<ol>
  <li>Öffne die Anmeldeseite: <a href="{login_url}">{login_url}</a></li>
  <li>Melde dich mit deinem Benutzernamen <strong>{username}</strong> oder deiner E-Mail-Adresse ({email}) an.</li>
</ol>
<p>Bei Fragen wende dich an die Landesgeschäftsstelle.</p>
<p>Mit freundlichen Grüßen<br />{from_name}</p>`

// UserResponse adds the display role to a user
type UserResponse struct {
	models.User
	DisplayRole string `json:"display_role"`
}

func newUserResponse(u *models.User) UserResponse {
	return UserResponse{User: *u, DisplayRole: u.DisplayRole()}
}

// CreateUserRequest creates an account; without password the account gets a
// random one and must be reset by an admin
type CreateUserRequest struct {
	Username string     `json:"username" binding:"required,min=3,max=50"`
	Email    string     `json:"email" binding:"required,email"`
	FullName string     `json:"full_name"`
	Password string     `json:"password"`
	Role     rbac.Role  `json:"role" binding:"required,role"`
	TenantID *uuid.UUID `json:"tenant_id"`
}

// UpdateUserRequest changes only the fields that are present
type UpdateUserRequest struct {
	Email    *string    `json:"email" binding:"omitempty,email"`
	FullName *string    `json:"full_name"`
	Password *string    `json:"password"`
	Role     *rbac.Role `json:"role" binding:"omitempty,role"`
	TenantID *uuid.UUID `json:"tenant_id"`
	IsActive *bool      `json:"is_active"`
}

// SMTPTestRequest names the address receiving the test mail
type SMTPTestRequest struct {
	To string `json:"to" binding:"required,email"`
}

// handleListUsers lists every account
func handleListUsers(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var users []models.User
		if err := db.WithContext(c.Request.Context()).Preload("Tenant").Order("username").Find(&users).Error; err != nil {
			utils.RespondError(c, apperr.Internal("failed to fetch users", err))
			return
		}

		response := make([]UserResponse, len(users))
		for i := range users {
			response[i] = newUserResponse(&users[i])
		}
		utils.OKResponse(c, "Users retrieved successfully", response)
	}
}

// handleGetUser returns one account
func handleGetUser(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := utils.ParseUUIDParam(c, "id")
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		var user models.User
		if err := utils.FindByID(db.WithContext(c.Request.Context()).Preload("Tenant"), &user, id, "User"); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "User retrieved successfully", newUserResponse(&user))
	}
}

// handleCreateUser creates an account and sends the welcome mail when SMTP
// is configured
func handleCreateUser(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var req CreateUserRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}

		password := strings.TrimSpace(req.Password)
		if password == "" {
			if password, err = security.GeneratePassword(32); err != nil {
				utils.RespondError(c, apperr.Internal("failed to generate password", err))
				return
			}
		} else if msg := security.CheckPasswordStrength(password); msg != "" {
			utils.RespondError(c, apperr.Validation("%s", msg))
			return
		}
		hash, err := security.HashPassword(password)
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to hash password", err))
			return
		}

		db := d.db.WithContext(c.Request.Context())
		user := models.User{
			Username:     strings.TrimSpace(req.Username),
			Email:        strings.ToLower(strings.TrimSpace(req.Email)),
			FullName:     strings.TrimSpace(req.FullName),
			PasswordHash: hash,
			Role:         req.Role,
			TenantID:     req.TenantID,
			IsActive:     true,
		}

		taken, err := utils.Exists(db, &models.User{}, "username = ? OR email = ?", user.Username, user.Email)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if taken {
			utils.RespondError(c, apperr.Validation("Username or email already exists"))
			return
		}
		if err := checkTenant(db, req.TenantID); err != nil {
			utils.RespondError(c, err)
			return
		}

		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&user).Error; err != nil {
				return apperr.Internal("failed to create user", err)
			}
			var err error
			row, err = d.audit.Record(tx, audit.For(c, actor.ID, models.ActionCreate, "user", &user.ID, "Benutzer erstellt: "+user.DisplayName()))
			return err
		})
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		d.audit.Publish(row)

		if err := db.Preload("Tenant").First(&user, "id = ?", user.ID).Error; err != nil {
			utils.RespondError(c, apperr.Internal("failed to reload user", err))
			return
		}
		sendWelcome(c, d, &user)

		utils.CreatedResponse(c, "User created successfully", newUserResponse(&user))
	}
}

// sendWelcome never fails the request; the account exists either way
func sendWelcome(c *gin.Context, d *deps, user *models.User) {
	if !d.mailer.Configured() || user.Email == "" {
		return
	}
	body := mailer.Render(welcomeBody, map[string]string{
		"name":      user.DisplayName(),
		"login_url": d.cfg.AppURL + "/login",
		"email":     user.Email,
		"username":  user.Username,
		"from_name": d.cfg.SMTP.FromName,
	})
	err := d.mailer.Send(c.Request.Context(), mailer.Message{
		To:      []string{user.Email},
		Subject: welcomeSubject,
		Body:    body,
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id": user.ID,
			"email":   user.Email,
		}).WithError(err).Warn("Welcome mail not sent")
	}
}

func checkTenant(db *gorm.DB, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	ok, err := utils.Exists(db, &models.Tenant{}, "id = ?", *id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("Tenant")
	}
	return nil
}

// handleUpdateUser changes an account
func handleUpdateUser(d *deps) gin.HandlerFunc {
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

		var req UpdateUserRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}

		db := d.db.WithContext(c.Request.Context())
		var user models.User
		if err := utils.FindByID(db, &user, id, "User"); err != nil {
			utils.RespondError(c, err)
			return
		}

		updates := map[string]interface{}{}
		if req.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*req.Email))
			taken, err := utils.Exists(db, &models.User{}, "email = ? AND id <> ?", email, user.ID)
			if err != nil {
				utils.RespondError(c, err)
				return
			}
			if taken {
				utils.RespondError(c, apperr.Validation("Username or email already exists"))
				return
			}
			updates["email"] = email
		}
		if req.FullName != nil {
			updates["full_name"] = strings.TrimSpace(*req.FullName)
		}
		if req.Password != nil {
			if msg := security.CheckPasswordStrength(*req.Password); msg != "" {
				utils.RespondError(c, apperr.Validation("%s", msg))
				return
			}
			hash, err := security.HashPassword(*req.Password)
			if err != nil {
				utils.RespondError(c, apperr.Internal("failed to hash password", err))
				return
			}
			updates["password_hash"] = hash
		}
		if req.Role != nil {
			updates["role"] = *req.Role
		}
		if req.TenantID != nil {
			if err := checkTenant(db, req.TenantID); err != nil {
				utils.RespondError(c, err)
				return
			}
			updates["tenant_id"] = *req.TenantID
		}
		if req.IsActive != nil {
			updates["is_active"] = *req.IsActive
		}

		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if len(updates) > 0 {
				if err := tx.Model(&user).Updates(updates).Error; err != nil {
					return apperr.Internal("failed to update user", err)
				}
			}
			var err error
			row, err = d.audit.Record(tx, audit.For(c, actor.ID, models.ActionUpdate, "user", &user.ID, "Benutzer aktualisiert: "+user.DisplayName()))
			return err
		})
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		d.audit.Publish(row)

		if err := db.Preload("Tenant").First(&user, "id = ?", user.ID).Error; err != nil {
			utils.RespondError(c, apperr.Internal("failed to reload user", err))
			return
		}
		utils.OKResponse(c, "User updated successfully", newUserResponse(&user))
	}
}

// handleDeleteUser removes an account other than the caller's own
func handleDeleteUser(d *deps) gin.HandlerFunc {
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
		if id == actor.ID {
			utils.RespondError(c, apperr.Validation("Cannot delete yourself"))
			return
		}

		db := d.db.WithContext(c.Request.Context())
		var user models.User
		if err := utils.FindByID(db, &user, id, "User"); err != nil {
			utils.RespondError(c, err)
			return
		}

		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Delete(&user).Error; err != nil {
				return apperr.Internal("failed to delete user", err)
			}
			var err error
			row, err = d.audit.Record(tx, audit.For(c, actor.ID, models.ActionDelete, "user", &id, "Benutzer gelöscht: "+user.DisplayName()))
			return err
		})
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		d.audit.Publish(row)

		utils.OKResponse(c, "User deleted", nil)
	}
}

// handleListAudit lists the audit trail, newest first
func handleListAudit(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := utils.ParseUUIDQuery(c, "user_id")
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		skip, limit := utils.Pagination(c, 100, 500)

		query := db.WithContext(c.Request.Context()).Model(&models.AuditLog{})
		if entityType := c.Query("entity_type"); entityType != "" {
			query = query.Where("entity_type = ?", entityType)
		}
		if userID != nil {
			query = query.Where("user_id = ?", *userID)
		}
		if action := c.Query("action"); action != "" {
			query = query.Where("action = ?", action)
		}

		var total int64
		if err := query.Count(&total).Error; err != nil {
			utils.RespondError(c, apperr.Internal("failed to count audit logs", err))
			return
		}
		var rows []models.AuditLog
		if err := query.Order("created_at DESC").Offset(skip).Limit(limit).Find(&rows).Error; err != nil {
			utils.RespondError(c, apperr.Internal("failed to fetch audit logs", err))
			return
		}

		utils.OKResponse(c, "Audit logs retrieved successfully", utils.ListResponse{
			Items: rows,
			Total: total,
			Skip:  skip,
			Limit: limit,
		})
	}
}

// handleSMTPTest sends a test mail to check the SMTP settings
func handleSMTPTest(sender mailer.Sender) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SMTPTestRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}

		err := sender.Send(c.Request.Context(), mailer.Message{
			To:      []string{req.To},
			Subject: "JuLis SH Intranet – SMTP-Test",
			Body: "<p>Diese E-Mail wurde vom JuLis SH Intranet gesendet, um die SMTP-Konfiguration zu testen.</p>" +
				"<p>Wenn Sie diese Nachricht erhalten, funktioniert der E-Mail-Versand.</p>",
		})
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Test-E-Mail wurde an "+req.To+" gesendet.", nil)
	}
}
