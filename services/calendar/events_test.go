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
	"github.com/julis-sh/intranet/shared/config"
	"github.com/julis-sh/intranet/shared/eventflow"
	"github.com/julis-sh/intranet/shared/middleware"
	"github.com/julis-sh/intranet/shared/models"
	"github.com/julis-sh/intranet/shared/rbac"
	"github.com/julis-sh/intranet/shared/tenancy"
	"github.com/julis-sh/intranet/shared/testutil"
	"github.com/julis-sh/intranet/shared/validation"
)

type fixture struct {
	db        *gorm.DB
	router    *gin.Engine
	deps      *deps
	root      *models.Tenant
	kiel      *models.Tenant
	plon      *models.Tenant
	admin     *models.User
	kielBoard *models.User
	plonBoard *models.User
	staff     *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	require.NoError(t, validation.Setup())
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	resolver := tenancy.NewResolver(tenancy.NewGormStore(db))
	d := &deps{
		db:       db,
		auth:     middleware.NewAuthMiddleware(db, testutil.Tokens(), nil),
		resolver: resolver,
		flow:     eventflow.New(resolver),
		audit:    audit.NewLogger(nil),
	}
	router := gin.New()
	registerRoutes(router, d)

	root := testutil.CreateTenant(t, db, "Landesverband", nil)
	kiel := testutil.CreateTenant(t, db, "Kiel", root)
	plon := testutil.CreateTenant(t, db, "Plön", root)
	return &fixture{
		db:        db,
		router:    router,
		deps:      d,
		root:      root,
		kiel:      kiel,
		plon:      plon,
		admin:     testutil.CreateUser(t, db, "admin", rbac.RoleAdmin, nil),
		kielBoard: testutil.CreateUser(t, db, "kiel-vorstand", rbac.RoleVorstand, kiel),
		plonBoard: testutil.CreateUser(t, db, "ploen-vorstand", rbac.RoleVorstand, plon),
		staff:     testutil.CreateUser(t, db, "kiel-mitarbeiter", rbac.RoleMitarbeiter, kiel),
	}
}

// event inserts an event directly, bypassing the handlers
func (f *fixture) event(t *testing.T, title string, tenant *models.Tenant, submitter *models.User, status models.EventStatus, day string) *models.Event {
	t.Helper()
	date, err := models.ParseDate(day)
	require.NoError(t, err)
	e := &models.Event{
		Title:       title,
		StartDate:   date,
		Organizer:   "JuLis",
		IsPublic:    true,
		SubmitterID: submitter.ID,
		TenantID:    tenant.ID,
		Status:      status,
	}
	require.NoError(t, f.db.Create(e).Error)
	return e
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) models.Event {
	t.Helper()
	var e models.Event
	require.NoError(t, f.db.First(&e, "id = ?", id).Error)
	return e
}

func eventBody(extra map[string]interface{}) map[string]interface{} {
	body := map[string]interface{}{
		"title":      "Stammtisch",
		"start_date": "2026-11-05",
		"start_time": "19:00",
		"organizer":  "JuLis Kiel",
	}
	for k, v := range extra {
		body[k] = v
	}
	return body
}

func TestCreateEvent_InitialStatus(t *testing.T) {
	f := newFixture(t)
	rootStaff := testutil.CreateUser(t, f.db, "lv-mitarbeiter", rbac.RoleMitarbeiter, f.root)

	tests := []struct {
		name   string
		user   *models.User
		target *models.Tenant
		want   models.EventStatus
	}{
		{"staff in chapter waits for review", f.staff, nil, models.EventStatusPending},
		{"chapter board approves directly", f.kielBoard, nil, models.EventStatusApproved},
		{"root calendar never needs review", rootStaff, nil, models.EventStatusApproved},
		{"root staff targeting a chapter", rootStaff, f.kiel, models.EventStatusPending},
		{"admin targeting a chapter", f.admin, f.plon, models.EventStatusApproved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extra := map[string]interface{}{}
			if tt.target != nil {
				extra["target_tenant_id"] = tt.target.ID
			}
			w := testutil.Do(t, f.router, http.MethodPost, "/events", testutil.Token(t, tt.user), eventBody(extra))
			require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

			var created models.Event
			testutil.Decode(t, w, &created)
			assert.Equal(t, tt.want, created.Status)
			assert.Equal(t, tt.user.ID, created.SubmitterID)
			assert.Equal(t, tt.user.Email, created.SubmitterEmail)
			assert.Equal(t, tt.user.TenantID, created.SourceTenantID)
			assert.True(t, created.IsPublic)
			if tt.want == models.EventStatusApproved {
				require.NotNil(t, created.ApprovedBy)
				assert.Equal(t, tt.user.ID, *created.ApprovedBy)
			} else {
				assert.Nil(t, created.ApprovedAt)
			}
		})
	}

	var audits int64
	f.db.Model(&models.AuditLog{}).Where("entity_type = ? AND action = ?", "event", models.ActionCreate).Count(&audits)
	assert.Equal(t, int64(len(tests)), audits)
}

func TestCreateEvent_Rejected(t *testing.T) {
	f := newFixture(t)
	homeless := testutil.CreateUser(t, f.db, "ohne", rbac.RoleVorstand, nil)
	foreign := models.Category{Name: "Kreistag", Color: "#112233", TenantID: f.plon.ID, IsActive: true}
	require.NoError(t, f.db.Create(&foreign).Error)

	tests := []struct {
		name    string
		user    *models.User
		body    map[string]interface{}
		status  int
		message string
	}{
		{"missing start date", f.staff, eventBody(map[string]interface{}{"start_date": ""}), http.StatusBadRequest, "start_date is required"},
		{"bad clock", f.staff, eventBody(map[string]interface{}{"start_time": "25:00"}), http.StatusBadRequest, "start_time must be a time of day as HH:MM"},
		{"end before start", f.staff, eventBody(map[string]interface{}{"end_date": "2026-11-01"}), http.StatusBadRequest, "end_date must not be before start_date"},
		{"no tenant at all", homeless, eventBody(nil), http.StatusBadRequest, "No target tenant specified and user has no tenant"},
		{"sibling chapter", f.kielBoard, eventBody(map[string]interface{}{"target_tenant_id": f.plon.ID}), http.StatusForbidden, "No access to target tenant"},
		{"category of another tenant", f.staff, eventBody(map[string]interface{}{"category_id": foreign.ID}), http.StatusBadRequest, "Ungültige oder dem Tenant nicht zugeordnete Kategorie."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testutil.Do(t, f.router, http.MethodPost, "/events", testutil.Token(t, tt.user), tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.message, testutil.ErrorMessage(t, w))
		})
	}

	w := testutil.Do(t, f.router, http.MethodPost, "/events", testutil.Token(t, f.admin), eventBody(map[string]interface{}{
		"target_tenant_id": uuid.New(),
	}))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListEvents_Scoped(t *testing.T) {
	f := newFixture(t)
	f.event(t, "Kiel alt", f.kiel, f.staff, models.EventStatusApproved, "2026-01-10")
	f.event(t, "Kiel neu", f.kiel, f.staff, models.EventStatusPending, "2026-06-10")
	f.event(t, "Plön", f.plon, f.plonBoard, models.EventStatusApproved, "2026-03-10")

	titles := func(t *testing.T, token, query string) []string {
		t.Helper()
		w := testutil.Do(t, f.router, http.MethodGet, "/events"+query, token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var events []models.Event
		testutil.Decode(t, w, &events)
		out := make([]string, len(events))
		for i, e := range events {
			out[i] = e.Title
		}
		return out
	}

	admin := testutil.Token(t, f.admin)
	assert.Equal(t, []string{"Kiel neu", "Plön", "Kiel alt"}, titles(t, admin, ""))
	assert.Equal(t, []string{"Kiel neu", "Kiel alt"}, titles(t, testutil.Token(t, f.staff), ""))
	assert.Equal(t, []string{"Kiel alt"}, titles(t, admin, "?tenant_id="+f.kiel.ID.String()+"&status=approved"))
	assert.Equal(t, []string{"Plön"}, titles(t, admin, "?start_date=2026-02-01&end_date=2026-04-01"))
	assert.Empty(t, titles(t, testutil.Token(t, f.kielBoard), "?tenant_id="+f.plon.ID.String()))

	w := testutil.Do(t, f.router, http.MethodGet, "/events?status=archived", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid status filter", testutil.ErrorMessage(t, w))
}

func TestGetEvent_Visibility(t *testing.T) {
	f := newFixture(t)
	e := f.event(t, "Kiel", f.kiel, f.staff, models.EventStatusPending, "2026-01-10")

	w := testutil.Do(t, f.router, http.MethodGet, "/events/"+e.ID.String(), testutil.Token(t, f.plonBoard), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "No access to this event", testutil.ErrorMessage(t, w))

	w = testutil.Do(t, f.router, http.MethodGet, "/events/"+e.ID.String(), testutil.Token(t, f.kielBoard), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = testutil.Do(t, f.router, http.MethodGet, "/events/"+uuid.NewString(), testutil.Token(t, f.admin), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReviewEvent(t *testing.T) {
	f := newFixture(t)
	e := f.event(t, "Kiel", f.kiel, f.staff, models.EventStatusPending, "2026-01-10")
	path := "/admin/events/" + e.ID.String()

	w := testutil.Do(t, f.router, http.MethodPost, path+"/approve", testutil.Token(t, f.staff), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutil.Do(t, f.router, http.MethodPost, path+"/approve", testutil.Token(t, f.plonBoard), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "No access to this tenant", testutil.ErrorMessage(t, w))

	w = testutil.Do(t, f.router, http.MethodPost, path+"/approve", testutil.Token(t, f.kielBoard), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stored := f.reload(t, e.ID)
	assert.Equal(t, models.EventStatusApproved, stored.Status)
	require.NotNil(t, stored.ApprovedBy)
	assert.Equal(t, f.kielBoard.ID, *stored.ApprovedBy)

	w = testutil.Do(t, f.router, http.MethodPost, path+"/approve", testutil.Token(t, f.kielBoard), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Event is not pending (current status: approved)", testutil.ErrorMessage(t, w))

	var approvals int64
	f.db.Model(&models.AuditLog{}).Where("action = ? AND entity_id = ?", models.ActionApprove, e.ID).Count(&approvals)
	assert.Equal(t, int64(1), approvals)
}

func TestRejectEvent(t *testing.T) {
	f := newFixture(t)
	e := f.event(t, "Kiel", f.kiel, f.staff, models.EventStatusPending, "2026-01-10")
	path := "/admin/events/" + e.ID.String() + "/reject"
	token := testutil.Token(t, f.admin)

	w := testutil.Do(t, f.router, http.MethodPost, path, token, RejectRequest{RejectionReason: "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "rejection reason is required", testutil.ErrorMessage(t, w))
	assert.Equal(t, models.EventStatusPending, f.reload(t, e.ID).Status)

	w = testutil.Do(t, f.router, http.MethodPost, path, token, RejectRequest{RejectionReason: "Doppelt eingetragen"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stored := f.reload(t, e.ID)
	assert.Equal(t, models.EventStatusRejected, stored.Status)
	require.NotNil(t, stored.RejectionReason)
	assert.Equal(t, "Doppelt eingetragen", *stored.RejectionReason)
	assert.Nil(t, stored.ApprovedBy)
}

func TestUpdateEvent_ReopensRejected(t *testing.T) {
	f := newFixture(t)
	e := f.event(t, "Kiel", f.kiel, f.staff, models.EventStatusRejected, "2026-01-10")
	reason := "Ort fehlt"
	require.NoError(t, f.db.Model(e).Update("rejection_reason", reason).Error)
	other := testutil.CreateUser(t, f.db, "kollege", rbac.RoleMitarbeiter, f.kiel)

	w := testutil.Do(t, f.router, http.MethodPut, "/events/"+e.ID.String(), testutil.Token(t, other), map[string]string{"location": "Kiel"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Not authorized to modify this event", testutil.ErrorMessage(t, w))

	w = testutil.Do(t, f.router, http.MethodPut, "/events/"+e.ID.String(), testutil.Token(t, f.staff), map[string]string{
		"location": "Landeshaus",
		"end_time": "22:00",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored := f.reload(t, e.ID)
	assert.Equal(t, models.EventStatusPending, stored.Status)
	assert.Nil(t, stored.RejectionReason)
	assert.Equal(t, "Landeshaus", stored.Location)
	assert.Equal(t, "22:00", stored.EndTime)
	assert.Equal(t, "Kiel", stored.Title)
}

func TestUpdateEvent_BoardKeepsRejection(t *testing.T) {
	f := newFixture(t)
	e := f.event(t, "Kiel", f.kiel, f.staff, models.EventStatusRejected, "2026-01-10")

	w := testutil.Do(t, f.router, http.MethodPut, "/events/"+e.ID.String(), testutil.Token(t, f.kielBoard), map[string]string{"title": "Kiel (neu)"})
	require.Equal(t, http.StatusOK, w.Code)
	stored := f.reload(t, e.ID)
	assert.Equal(t, models.EventStatusRejected, stored.Status)
	assert.Equal(t, "Kiel (neu)", stored.Title)
}

func TestDeleteEvent(t *testing.T) {
	f := newFixture(t)
	e := f.event(t, "Kiel", f.kiel, f.staff, models.EventStatusApproved, "2026-01-10")

	w := testutil.Do(t, f.router, http.MethodDelete, "/events/"+e.ID.String(), testutil.Token(t, f.plonBoard), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutil.Do(t, f.router, http.MethodDelete, "/events/"+e.ID.String(), testutil.Token(t, f.staff), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var count int64
	f.db.Model(&models.Event{}).Where("id = ?", e.ID).Count(&count)
	assert.Zero(t, count)
}

func TestListPending(t *testing.T) {
	f := newFixture(t)
	first := f.event(t, "Erstes", f.kiel, f.staff, models.EventStatusPending, "2026-05-01")
	second := f.event(t, "Zweites", f.kiel, f.staff, models.EventStatusPending, "2026-02-01")
	f.event(t, "Fertig", f.kiel, f.staff, models.EventStatusApproved, "2026-02-01")
	f.event(t, "Plön", f.plon, f.plonBoard, models.EventStatusPending, "2026-02-01")

	w := testutil.Do(t, f.router, http.MethodGet, "/admin/events/pending", testutil.Token(t, f.kielBoard), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var events []models.Event
	testutil.Decode(t, w, &events)
	require.Len(t, events, 2)
	assert.Equal(t, first.ID, events[0].ID)
	assert.Equal(t, second.ID, events[1].ID)

	w = testutil.Do(t, f.router, http.MethodGet, "/admin/events/pending", testutil.Token(t, f.staff), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPublicConfigDefaultsOff(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, config.PublicConfig{}, f.deps.public)

	w := testutil.Do(t, f.router, http.MethodPost, "/public/events", "", eventBody(map[string]interface{}{
		"submitter_name":  "Gast",
		"submitter_email": "gast@example.org",
	}))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "Öffentliche Termin-Einreichung ist derzeit nicht konfiguriert.", testutil.ErrorMessage(t, w))
}
