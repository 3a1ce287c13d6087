package main

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/audit"
	"github.com/julis-sh/intranet/shared/middleware"
	"github.com/julis-sh/intranet/shared/models"
	"github.com/julis-sh/intranet/shared/rbac"
	"github.com/julis-sh/intranet/shared/storage"
	"github.com/julis-sh/intranet/shared/testutil"
	"github.com/julis-sh/intranet/shared/validation"
)

type fixture struct {
	db       *gorm.DB
	router   *gin.Engine
	store    storage.Store
	mailbox  *testutil.Mailbox
	admin    *models.User
	leitung  *models.User
	vorstand *models.User
	staff    *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	require.NoError(t, validation.Setup())
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	mailbox := &testutil.Mailbox{}
	d := newDeps(db, store, mailbox, middleware.NewAuthMiddleware(db, testutil.Tokens(), nil), audit.NewLogger(nil))
	router := gin.New()
	registerRoutes(router, d)

	return &fixture{
		db:       db,
		router:   router,
		store:    store,
		mailbox:  mailbox,
		admin:    testutil.CreateUser(t, db, "admin", rbac.RoleAdmin, nil),
		leitung:  testutil.CreateUser(t, db, "leitung", rbac.RoleLeitung, nil),
		vorstand: testutil.CreateUser(t, db, "vorstand", rbac.RoleVorstand, nil),
		staff:    testutil.CreateUser(t, db, "mitarbeiter", rbac.RoleMitarbeiter, nil),
	}
}

func (f *fixture) chapter(t *testing.T, name string, active bool) *models.Chapter {
	t.Helper()
	c := &models.Chapter{Name: name, IsActive: true}
	require.NoError(t, f.db.Create(c).Error)
	if !active {
		require.NoError(t, f.db.Model(c).Update("is_active", false).Error)
		c.IsActive = false
	}
	return c
}

func (f *fixture) boardMember(t *testing.T, chapter *models.Chapter, name, role, email string) *models.BoardMember {
	t.Helper()
	m := &models.BoardMember{ChapterID: chapter.ID, Name: name, Role: role, Email: email, IsActive: true}
	require.NoError(t, f.db.Create(m).Error)
	return m
}

func (f *fixture) template(t *testing.T, scenario models.Scenario, typ models.TemplateType, chapter *models.Chapter, subject, body string) *models.EmailTemplate {
	t.Helper()
	tpl := &models.EmailTemplate{
		Name:     string(scenario) + " " + string(typ),
		Scenario: string(scenario),
		Type:     typ,
		Subject:  subject,
		Body:     body,
	}
	if chapter != nil {
		tpl.ChapterID = &chapter.ID
	}
	require.NoError(t, f.db.Create(tpl).Error)
	return tpl
}

// upload sends a multipart form with one file and optional text fields
func (f *fixture) upload(t *testing.T, method, path string, user *models.User, field, filename string, data []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		part, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", testutil.Token(t, user))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestRouteRoles(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		method string
		path   string
		user   *models.User
		want   int
	}{
		{"staff lists chapters", http.MethodGet, "/kreisverband", f.staff, http.StatusOK},
		{"staff cannot see overview", http.MethodGet, "/kreisverband/landesverband/vorstand-uebersicht?rolle=vorsitz", f.staff, http.StatusForbidden},
		{"leitung cannot create chapters", http.MethodPost, "/kreisverband", f.leitung, http.StatusForbidden},
		{"staff cannot list member changes", http.MethodGet, "/member-changes", f.staff, http.StatusForbidden},
		{"vorstand lists member changes", http.MethodGet, "/member-changes", f.vorstand, http.StatusOK},
		{"vorstand cannot create member changes", http.MethodPost, "/member-changes", f.vorstand, http.StatusForbidden},
		{"vorstand cannot list templates", http.MethodGet, "/email-templates", f.vorstand, http.StatusForbidden},
		{"leitung lists recipients", http.MethodGet, "/email-recipients", f.leitung, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testutil.Do(t, f.router, tt.method, tt.path, testutil.Token(t, tt.user), nil)
			require.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w := testutil.Do(t, f.router, http.MethodGet, "/kreisverband", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
