package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/models"
	"github.com/julis-sh/intranet/shared/rbac"
	"github.com/julis-sh/intranet/shared/security"
	"github.com/julis-sh/intranet/shared/utils"
)

const (
	contextUser   = "user"
	contextToken  = "token"
	contextClaims = "claims"
)

// AuthMiddleware validates bearer tokens and loads the acting user
type AuthMiddleware struct {
	db       *gorm.DB
	tokens   *security.TokenManager
	sessions *utils.SessionStore
}

// NewAuthMiddleware creates a new authentication middleware. sessions may be
// nil, in which case logged out tokens stay valid until they expire.
func NewAuthMiddleware(db *gorm.DB, tokens *security.TokenManager, sessions *utils.SessionStore) *AuthMiddleware {
	return &AuthMiddleware{db: db, tokens: tokens, sessions: sessions}
}

// RequireAuth middleware validates the token and attaches the user
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			abortWith(c, apperr.Unauthorized("Not authenticated"))
			return
		}

		if am.sessions != nil {
			revoked, err := am.sessions.IsRevoked(c.Request.Context(), tokenString)
			if err != nil {
				logrus.WithError(err).Warn("Token denylist unavailable")
			} else if revoked {
				abortWith(c, apperr.Unauthorized("Token has been revoked"))
				return
			}
		}

		claims, err := am.tokens.Parse(tokenString)
		if err != nil {
			abortWith(c, apperr.Unauthorized("Could not validate credentials"))
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			abortWith(c, apperr.Unauthorized("Could not validate credentials"))
			return
		}

		var user models.User
		err = am.db.WithContext(c.Request.Context()).Preload("Tenant").First(&user, "id = ?", userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			abortWith(c, apperr.Unauthorized("Could not validate credentials"))
			return
		}
		if err != nil {
			abortWith(c, apperr.Internal("failed to load user", err))
			return
		}
		if !user.IsActive {
			abortWith(c, apperr.PermissionDenied("Inactive user account"))
			return
		}

		c.Set(contextUser, &user)
		c.Set(contextToken, tokenString)
		c.Set(contextClaims, claims)
		c.Next()
	}
}

// RequireRole middleware rejects users below the given role
func (am *AuthMiddleware) RequireRole(min rbac.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := CurrentUser(c)
		if err != nil {
			abortWith(c, err)
			return
		}
		if err := rbac.Require(user.Subject(), min); err != nil {
			abortWith(c, err)
			return
		}
		c.Next()
	}
}

func abortWith(c *gin.Context, err error) {
	utils.RespondError(c, err)
	c.Abort()
}

// extractToken extracts the JWT token from the Authorization header
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}

	return authHeader
}

// CurrentUser returns the user attached by RequireAuth
func CurrentUser(c *gin.Context) (*models.User, error) {
	value, ok := c.Get(contextUser)
	if !ok {
		return nil, apperr.Unauthorized("Not authenticated")
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil, apperr.Unauthorized("Not authenticated")
	}
	return user, nil
}

// CurrentToken returns the raw bearer token and its claims
func CurrentToken(c *gin.Context) (string, *security.Claims) {
	token := c.GetString(contextToken)
	claims, _ := c.Get(contextClaims)
	parsed, _ := claims.(*security.Claims)
	return token, parsed
}
