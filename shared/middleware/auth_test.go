package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julis-sh/intranet/shared/rbac"
	"github.com/julis-sh/intranet/shared/testutil"
	"github.com/julis-sh/intranet/shared/utils"
)

func setupRouter(am *AuthMiddleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/me", am.RequireAuth(), func(c *gin.Context) {
		user, err := CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "ok", gin.H{"username": user.Username})
	})
	router.GET("/admin", am.RequireAuth(), am.RequireRole(rbac.RoleAdmin), func(c *gin.Context) {
		utils.OKResponse(c, "ok", nil)
	})
	return router
}

func TestRequireAuth(t *testing.T) {
	db := testutil.NewDB(t)
	tenant := testutil.CreateTenant(t, db, "Landesverband", nil)
	active := testutil.CreateUser(t, db, "anna", rbac.RoleVorstand, tenant)
	inactive := testutil.CreateUser(t, db, "bert", rbac.RoleVorstand, tenant)
	require.NoError(t, db.Model(inactive).Update("is_active", false).Error)

	router := setupRouter(NewAuthMiddleware(db, testutil.Tokens(), nil))

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid token", testutil.Token(t, active), http.StatusOK, "anna"},
		{"missing token", "", http.StatusUnauthorized, "Not authenticated"},
		{"garbage token", "Bearer nope", http.StatusUnauthorized, "Could not validate credentials"},
		{"inactive user", testutil.Token(t, inactive), http.StatusForbidden, "Inactive user account"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}
}

func TestRequireAuth_RevokedToken(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "anna", rbac.RoleAdmin, nil)

	mr := miniredis.RunT(t)
	sessions := utils.NewSessionStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	router := setupRouter(NewAuthMiddleware(db, testutil.Tokens(), sessions))

	header := testutil.Token(t, user)
	token := strings.TrimPrefix(header, "Bearer ")
	require.NoError(t, sessions.RevokeToken(context.Background(), token, time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", header)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "revoked")
}

func TestRequireRole(t *testing.T) {
	db := testutil.NewDB(t)
	admin := testutil.CreateUser(t, db, "admin", rbac.RoleAdmin, nil)
	staff := testutil.CreateUser(t, db, "staff", rbac.RoleLeitung, nil)
	router := setupRouter(NewAuthMiddleware(db, testutil.Tokens(), nil))

	for user, status := range map[string]int{
		testutil.Token(t, admin): http.StatusOK,
		testutil.Token(t, staff): http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", user)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, status, w.Code)
	}
}

func TestRequestID_Propagates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), Metrics("test"))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "abc")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "abc", w.Body.String())
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))
}
