package main

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/audit"
	"github.com/julis-sh/intranet/shared/middleware"
	"github.com/julis-sh/intranet/shared/models"
	"github.com/julis-sh/intranet/shared/rbac"
	"github.com/julis-sh/intranet/shared/tenancy"
	"github.com/julis-sh/intranet/shared/testutil"
	"github.com/julis-sh/intranet/shared/validation"
)

type fixture struct {
	db     *gorm.DB
	router *gin.Engine
	root   *models.Tenant
	kiel   *models.Tenant
	plon   *models.Tenant
	admin  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	require.NoError(t, validation.Setup())
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	d := &deps{
		db:       db,
		auth:     middleware.NewAuthMiddleware(db, testutil.Tokens(), nil),
		resolver: tenancy.NewResolver(tenancy.NewGormStore(db)),
		audit:    audit.NewLogger(nil),
	}
	router := gin.New()
	registerRoutes(router, d)

	root := testutil.CreateTenant(t, db, "Landesverband", nil)
	return &fixture{
		db:     db,
		router: router,
		root:   root,
		kiel:   testutil.CreateTenant(t, db, "Kiel", root),
		plon:   testutil.CreateTenant(t, db, "Plön", root),
		admin:  testutil.Token(t, testutil.CreateUser(t, db, "admin", rbac.RoleAdmin, nil)),
	}
}

func names(tenants []models.Tenant) []string {
	out := make([]string, len(tenants))
	for i, t := range tenants {
		out[i] = t.Name
	}
	return out
}

func TestGetTenants_Scoped(t *testing.T) {
	f := newFixture(t)
	kreis := testutil.CreateUser(t, f.db, "kreis", rbac.RoleVorstand, f.kiel)
	homeless := testutil.CreateUser(t, f.db, "ohne", rbac.RoleLeitung, nil)

	tests := []struct {
		name  string
		token string
		query string
		want  []string
	}{
		{"admin sees all", f.admin, "", []string{"Kiel", "Landesverband", "Plön"}},
		{"admin level filter", f.admin, "?level=kreisverband", []string{"Kiel", "Plön"}},
		{"chapter board sees own subtree", testutil.Token(t, kreis), "", []string{"Kiel"}},
		{"no home tenant sees nothing", testutil.Token(t, homeless), "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testutil.Do(t, f.router, http.MethodGet, "/tenants"+tt.query, tt.token, nil)
			require.Equal(t, http.StatusOK, w.Code)
			var tenants []models.Tenant
			testutil.Decode(t, w, &tenants)
			assert.Equal(t, tt.want, names(tenants))
		})
	}
}

func TestGetTenantTree(t *testing.T) {
	f := newFixture(t)
	testutil.CreateTenant(t, f.db, "Kiel-Nord", f.kiel)

	w := testutil.Do(t, f.router, http.MethodGet, "/tenants/tree", f.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var tree []models.Tenant
	testutil.Decode(t, w, &tree)
	require.Len(t, tree, 1)
	assert.Equal(t, "Landesverband", tree[0].Name)
	assert.Equal(t, []string{"Kiel", "Plön"}, names(tree[0].Children))
	assert.Equal(t, []string{"Kiel-Nord"}, names(tree[0].Children[0].Children))
}

func TestBuildTree_CyclicParents(t *testing.T) {
	a := models.Tenant{ID: uuid.New(), Name: "A"}
	b := models.Tenant{ID: uuid.New(), Name: "B", ParentID: &a.ID}
	a.ParentID = &b.ID

	// neither node qualifies as a root, so nothing is returned and nothing loops
	assert.Empty(t, buildTree([]models.Tenant{a, b}))
}

func TestGetTenant_NoAccess(t *testing.T) {
	f := newFixture(t)
	kreis := testutil.CreateUser(t, f.db, "kreis", rbac.RoleVorstand, f.kiel)

	w := testutil.Do(t, f.router, http.MethodGet, "/tenants/"+f.plon.ID.String(), testutil.Token(t, kreis), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "No access to this tenant", testutil.ErrorMessage(t, w))

	w = testutil.Do(t, f.router, http.MethodGet, "/tenants/"+f.kiel.ID.String(), testutil.Token(t, kreis), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetTenantUsers(t *testing.T) {
	f := newFixture(t)
	testutil.CreateUser(t, f.db, "anna", rbac.RoleMitarbeiter, f.kiel)
	staff := testutil.CreateUser(t, f.db, "bert", rbac.RoleMitarbeiter, f.kiel)

	w := testutil.Do(t, f.router, http.MethodGet, "/tenants/"+f.kiel.ID.String()+"/users", testutil.Token(t, staff), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutil.Do(t, f.router, http.MethodGet, "/tenants/"+f.kiel.ID.String()+"/users", f.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var users []models.User
	testutil.Decode(t, w, &users)
	assert.Len(t, users, 2)
}

func TestCreateTenant(t *testing.T) {
	f := newFixture(t)

	w := testutil.Do(t, f.router, http.MethodPost, "/tenants", f.admin, map[string]interface{}{
		"name":      "Lübeck",
		"slug":      "Luebeck",
		"level":     "kreisverband",
		"parent_id": f.root.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Tenant
	testutil.Decode(t, w, &created)
	assert.Equal(t, "luebeck", created.Slug)
	assert.True(t, created.IsActive)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"duplicate slug", map[string]interface{}{"name": "X", "slug": "luebeck", "level": "kreisverband"}},
		{"unknown level", map[string]interface{}{"name": "X", "slug": "x", "level": "ortsverband"}},
		{"unknown parent", map[string]interface{}{"name": "X", "slug": "y", "level": "kreisverband", "parent_id": uuid.New()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testutil.Do(t, f.router, http.MethodPost, "/tenants", f.admin, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	lead := testutil.CreateUser(t, f.db, "leitung", rbac.RoleLeitung, f.root)
	w = testutil.Do(t, f.router, http.MethodPost, "/tenants", testutil.Token(t, lead), map[string]interface{}{
		"name": "Z", "slug": "z", "level": "kreisverband",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUpdateTenant_RejectsCycles(t *testing.T) {
	f := newFixture(t)
	nord := testutil.CreateTenant(t, f.db, "Kiel-Nord", f.kiel)

	w := testutil.Do(t, f.router, http.MethodPut, "/tenants/"+f.kiel.ID.String(), f.admin, map[string]interface{}{"parent_id": nord.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.Do(t, f.router, http.MethodPut, "/tenants/"+f.kiel.ID.String(), f.admin, map[string]interface{}{"parent_id": f.kiel.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.Do(t, f.router, http.MethodPut, "/tenants/"+nord.ID.String(), f.admin, map[string]interface{}{
		"parent_id":     f.plon.ID,
		"primary_color": "#ffcc00",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated models.Tenant
	testutil.Decode(t, w, &updated)
	assert.Equal(t, f.plon.ID, *updated.ParentID)
	assert.Equal(t, "#ffcc00", updated.PrimaryColor)
}

func TestDeactivateTenant(t *testing.T) {
	f := newFixture(t)

	w := testutil.Do(t, f.router, http.MethodDelete, "/tenants/"+f.root.ID.String(), f.admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Cannot deactivate tenant with active child tenants", testutil.ErrorMessage(t, w))

	w = testutil.Do(t, f.router, http.MethodDelete, "/tenants/"+f.kiel.ID.String(), f.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var kiel models.Tenant
	require.NoError(t, f.db.First(&kiel, "id = ?", f.kiel.ID).Error)
	assert.False(t, kiel.IsActive)

	w = testutil.Do(t, f.router, http.MethodDelete, "/tenants/"+uuid.NewString(), f.admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateTenant_DeactivationKeepsChildGuard(t *testing.T) {
	f := newFixture(t)
	path := "/tenants/" + f.root.ID.String()

	w := testutil.Do(t, f.router, http.MethodPut, path, f.admin, map[string]interface{}{"is_active": false})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Cannot deactivate tenant with active child tenants", testutil.ErrorMessage(t, w))

	var root models.Tenant
	require.NoError(t, f.db.First(&root, "id = ?", f.root.ID).Error)
	assert.True(t, root.IsActive)

	w = testutil.Do(t, f.router, http.MethodPut, "/tenants/"+f.kiel.ID.String(), f.admin, map[string]interface{}{"is_active": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var kiel models.Tenant
	testutil.Decode(t, w, &kiel)
	assert.False(t, kiel.IsActive)
}
