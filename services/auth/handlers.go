package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/audit"
	"github.com/julis-sh/intranet/shared/middleware"
	"github.com/julis-sh/intranet/shared/models"
	"github.com/julis-sh/intranet/shared/security"
	"github.com/julis-sh/intranet/shared/utils"
)

const (
	loginAttempts = 10
	loginWindow   = time.Minute
)

// LoginRequest accepts the username or the email address
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the access token and the logged in user
type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        *models.User `json:"user"`
}

// TokenResponse is returned by refresh
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// ProfileUpdate changes only the fields that are present
type ProfileUpdate struct {
	FullName *string `json:"full_name"`
	Email    *string `json:"email" binding:"omitempty,email"`
}

// ChangePasswordRequest requires the current password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// handleLogin checks the credentials and issues an access token
func handleLogin(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !allowLogin(c, d.sessions) {
			utils.ErrorResponse(c, http.StatusTooManyRequests, "Too many login attempts. Please try again later.")
			return
		}

		var req LoginRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}

		db := d.db.WithContext(c.Request.Context())
		login := strings.TrimSpace(req.Username)

		var user models.User
		err := db.Where("username = ? OR email = ?", login, strings.ToLower(login)).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !security.VerifyPassword(req.Password, user.PasswordHash)) {
			logrus.WithField("username", login).Info("Failed login attempt")
			utils.RespondError(c, apperr.Unauthorized("Incorrect username or password"))
			return
		}
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to fetch user", err))
			return
		}
		if !user.IsActive {
			utils.RespondError(c, apperr.PermissionDenied("Inactive user account"))
			return
		}

		token, err := d.tokens.Issue(user.ID, user.Username, user.Role)
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to issue token", err))
			return
		}

		now := time.Now()
		if err := db.Model(&user).Update("last_login_at", now).Error; err != nil {
			logrus.WithError(err).Warn("Failed to record last login")
		}
		if err := d.audit.Log(db, audit.For(c, user.ID, models.ActionLogin, "user", &user.ID, "Anmeldung: "+user.DisplayName())); err != nil {
			logrus.WithError(err).Warn("Failed to audit login")
		}

		utils.OKResponse(c, "Login successful", LoginResponse{
			AccessToken: token,
			TokenType:   "bearer",
			User:        &user,
		})
	}
}

// allowLogin throttles login attempts per client address. Without Redis, or
// when Redis fails, attempts are not limited.
func allowLogin(c *gin.Context, sessions *utils.SessionStore) bool {
	if sessions == nil {
		return true
	}
	ok, err := sessions.AllowAttempt(c.Request.Context(), "login:"+c.ClientIP(), loginAttempts, loginWindow)
	if err != nil {
		logrus.WithError(err).Warn("Login throttle unavailable")
		return true
	}
	return ok
}

// handleLogout denylists the presented token until it expires
func handleLogout(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, claims := middleware.CurrentToken(c)
		if d.sessions != nil && claims != nil && claims.ExpiresAt != nil {
			ttl := time.Until(claims.ExpiresAt.Time)
			if err := d.sessions.RevokeToken(c.Request.Context(), token, ttl); err != nil {
				utils.RespondError(c, apperr.Unavailable("Logout is temporarily unavailable"))
				return
			}
		}
		utils.OKResponse(c, "Logged out", nil)
	}
}

// handleMe returns the profile of the current user
func handleMe(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		profile, err := buildProfile(c, d, user)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Profile retrieved successfully", profile)
	}
}

func buildProfile(c *gin.Context, d *deps, user *models.User) (models.UserProfile, error) {
	accessible, err := d.resolver.AccessibleTenants(c.Request.Context(), user.Subject())
	if err != nil {
		return models.UserProfile{}, apperr.Internal("failed to resolve tenants", err)
	}
	return models.NewUserProfile(user, accessible), nil
}

// handleRefresh issues a fresh token for the current user
func handleRefresh(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		token, err := d.tokens.Issue(user.ID, user.Username, user.Role)
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to issue token", err))
			return
		}
		utils.OKResponse(c, "Token refreshed successfully", TokenResponse{AccessToken: token, TokenType: "bearer"})
	}
}

// handleUpdateProfile changes name and email of the current user
func handleUpdateProfile(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var req ProfileUpdate
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}

		db := d.db.WithContext(c.Request.Context())
		updates := map[string]interface{}{}
		if req.FullName != nil {
			updates["full_name"] = strings.TrimSpace(*req.FullName)
		}
		if req.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*req.Email))
			if email != user.Email {
				taken, err := utils.Exists(db, &models.User{}, "email = ? AND id <> ?", email, user.ID)
				if err != nil {
					utils.RespondError(c, err)
					return
				}
				if taken {
					utils.RespondError(c, apperr.Validation("Diese E-Mail-Adresse wird bereits verwendet."))
					return
				}
			}
			updates["email"] = email
		}

		if len(updates) > 0 {
			if err := db.Model(user).Updates(updates).Error; err != nil {
				utils.RespondError(c, apperr.Internal("failed to update profile", err))
				return
			}
			if v, ok := updates["full_name"].(string); ok {
				user.FullName = v
			}
			if v, ok := updates["email"].(string); ok {
				user.Email = v
			}
		}

		profile, err := buildProfile(c, d, user)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Profile updated successfully", profile)
	}
}

// handleChangePassword replaces the password after checking the current one
func handleChangePassword(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var req ChangePasswordRequest
		if err := utils.BindJSON(c, &req); err != nil {
			utils.RespondError(c, err)
			return
		}
		if !security.VerifyPassword(req.CurrentPassword, user.PasswordHash) {
			utils.RespondError(c, apperr.Validation("Aktuelles Passwort ist falsch."))
			return
		}
		if msg := security.CheckPasswordStrength(req.NewPassword); msg != "" {
			utils.RespondError(c, apperr.Validation("%s", msg))
			return
		}

		hash, err := security.HashPassword(req.NewPassword)
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to hash password", err))
			return
		}

		db := d.db.WithContext(c.Request.Context())
		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(user).Update("password_hash", hash).Error; err != nil {
				return apperr.Internal("failed to update password", err)
			}
			row, err = d.audit.Record(tx, audit.For(c, user.ID, models.ActionUpdate, "user", &user.ID, "Passwort geändert"))
			return err
		})
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		d.audit.Publish(row)

		utils.OKResponse(c, "Passwort wurde geändert.", nil)
	}
}
