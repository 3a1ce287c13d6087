package eventflow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/models"
	"github.com/julis-sh/intranet/shared/rbac"
)

type staticVisibility map[uuid.UUID]bool

func (v staticVisibility) CanSee(_ context.Context, _ rbac.Subject, tenantID uuid.UUID) (bool, error) {
	return v[tenantID], nil
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newFlow(visible ...uuid.UUID) *Flow {
	v := staticVisibility{}
	for _, id := range visible {
		v[id] = true
	}
	f := New(v)
	f.now = func() time.Time { return fixedNow }
	return f
}

func actor(role rbac.Role) rbac.Subject {
	return rbac.Subject{UserID: uuid.New(), Role: role}
}

func TestInitialStatus(t *testing.T) {
	tests := []struct {
		name   string
		root   bool
		role   rbac.Role
		expect models.EventStatus
	}{
		{"root tenant mitarbeiter", true, rbac.RoleMitarbeiter, models.EventStatusApproved},
		{"root tenant unknown role", true, rbac.Role("gast"), models.EventStatusApproved},
		{"child tenant mitarbeiter", false, rbac.RoleMitarbeiter, models.EventStatusPending},
		{"child tenant vorstand", false, rbac.RoleVorstand, models.EventStatusApproved},
		{"child tenant leitung", false, rbac.RoleLeitung, models.EventStatusApproved},
		{"child tenant admin", false, rbac.RoleAdmin, models.EventStatusApproved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, InitialStatus(tt.root, tt.role))
		})
	}
}

func TestCreate_StampsAutoApproval(t *testing.T) {
	f := newFlow()
	creator := actor(rbac.RoleVorstand)

	e := &models.Event{}
	f.Create(e, creator, false)
	assert.Equal(t, models.EventStatusApproved, e.Status)
	require.NotNil(t, e.ApprovedBy)
	assert.Equal(t, creator.UserID, *e.ApprovedBy)
	assert.Equal(t, fixedNow, *e.ApprovedAt)

	pending := &models.Event{}
	f.Create(pending, actor(rbac.RoleMitarbeiter), false)
	assert.Equal(t, models.EventStatusPending, pending.Status)
	assert.Nil(t, pending.ApprovedBy)
}

func TestApprove(t *testing.T) {
	tenant := uuid.New()
	f := newFlow(tenant)
	reviewer := actor(rbac.RoleVorstand)
	reason := "falsches Datum"

	e := &models.Event{TenantID: tenant, Status: models.EventStatusPending, RejectionReason: &reason}
	require.NoError(t, f.Approve(context.Background(), e, reviewer))
	assert.Equal(t, models.EventStatusApproved, e.Status)
	assert.Nil(t, e.RejectionReason)
	assert.Equal(t, reviewer.UserID, *e.ApprovedBy)
	assert.Equal(t, fixedNow, *e.ApprovedAt)

	err := f.Approve(context.Background(), e, reviewer)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
	assert.Contains(t, err.Error(), "approved")
}

func TestApprove_RequiresRankAndVisibility(t *testing.T) {
	tenant := uuid.New()
	f := newFlow(tenant)

	e := &models.Event{TenantID: tenant, Status: models.EventStatusPending}
	err := f.Approve(context.Background(), e, actor(rbac.RoleMitarbeiter))
	assert.True(t, apperr.Is(err, apperr.KindPermissionDenied))

	hidden := &models.Event{TenantID: uuid.New(), Status: models.EventStatusPending}
	err = f.Approve(context.Background(), hidden, actor(rbac.RoleLeitung))
	assert.True(t, apperr.Is(err, apperr.KindPermissionDenied))
	assert.Equal(t, models.EventStatusPending, hidden.Status)
}

func TestReject(t *testing.T) {
	tenant := uuid.New()
	f := newFlow(tenant)
	reviewer := actor(rbac.RoleVorstand)
	approver := uuid.New()
	approvedAt := fixedNow.Add(-time.Hour)

	e := &models.Event{TenantID: tenant, Status: models.EventStatusPending, ApprovedBy: &approver, ApprovedAt: &approvedAt}
	err := f.Reject(context.Background(), e, reviewer, "   ")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, models.EventStatusPending, e.Status)

	require.NoError(t, f.Reject(context.Background(), e, reviewer, "Doppelt eingetragen"))
	assert.Equal(t, models.EventStatusRejected, e.Status)
	assert.Equal(t, "Doppelt eingetragen", *e.RejectionReason)
	assert.Nil(t, e.ApprovedBy)
	assert.Nil(t, e.ApprovedAt)

	err = f.Reject(context.Background(), e, reviewer, "nochmal")
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
}

func TestEdit_RejectedBySubmitterReopens(t *testing.T) {
	tenant := uuid.New()
	f := newFlow()
	submitter := actor(rbac.RoleMitarbeiter)
	reason := "unvollständig"

	e := &models.Event{TenantID: tenant, SubmitterID: submitter.UserID, Status: models.EventStatusRejected, RejectionReason: &reason}
	err := f.Edit(context.Background(), e, submitter, func(e *models.Event) { e.Title = "Neu" })
	require.NoError(t, err)
	assert.Equal(t, "Neu", e.Title)
	assert.Equal(t, models.EventStatusPending, e.Status)
	assert.Nil(t, e.RejectionReason)
}

func TestEdit_RejectedByVorstandKeepsStatus(t *testing.T) {
	tenant := uuid.New()
	f := newFlow(tenant)
	reason := "unvollständig"

	e := &models.Event{TenantID: tenant, SubmitterID: uuid.New(), Status: models.EventStatusRejected, RejectionReason: &reason}
	require.NoError(t, f.Edit(context.Background(), e, actor(rbac.RoleVorstand), nil))
	assert.Equal(t, models.EventStatusRejected, e.Status)
	assert.Equal(t, &reason, e.RejectionReason)
}

func TestEdit_ApprovedBySubmitterStaysApproved(t *testing.T) {
	f := newFlow()
	submitter := actor(rbac.RoleMitarbeiter)

	e := &models.Event{TenantID: uuid.New(), SubmitterID: submitter.UserID, Status: models.EventStatusApproved}
	require.NoError(t, f.Edit(context.Background(), e, submitter, nil))
	assert.Equal(t, models.EventStatusApproved, e.Status)
}

func TestAuthorizeModify(t *testing.T) {
	tenant := uuid.New()
	f := newFlow(tenant)
	e := &models.Event{TenantID: tenant, SubmitterID: uuid.New()}

	assert.NoError(t, f.Delete(context.Background(), e, actor(rbac.RoleVorstand)))
	assert.True(t, apperr.Is(f.Delete(context.Background(), e, actor(rbac.RoleMitarbeiter)), apperr.KindPermissionDenied))

	hidden := &models.Event{TenantID: uuid.New(), SubmitterID: uuid.New()}
	err := f.Edit(context.Background(), hidden, actor(rbac.RoleLeitung), func(e *models.Event) { e.Title = "x" })
	assert.True(t, apperr.Is(err, apperr.KindPermissionDenied))
	assert.Empty(t, hidden.Title)
}
