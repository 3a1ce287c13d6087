package eventflow

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/models"
	"github.com/julis-sh/intranet/shared/rbac"
)

// Visibility answers whether a subject can see a tenant, descendants included
type Visibility interface {
	CanSee(ctx context.Context, s rbac.Subject, tenantID uuid.UUID) (bool, error)
}

// Flow drives the pending/approved/rejected lifecycle of events
type Flow struct {
	visibility Visibility
	now        func() time.Time
}

// New creates a flow using v for tenant checks
func New(v Visibility) *Flow {
	return &Flow{visibility: v, now: time.Now}
}

// InitialStatus decides the state of a new event. Root tenants take every
// event as approved; below that, vorstand rank approves on creation.
func InitialStatus(targetIsRoot bool, creator rbac.Role) models.EventStatus {
	if targetIsRoot || rbac.HasMinRole(creator, rbac.RoleVorstand) {
		return models.EventStatusApproved
	}
	return models.EventStatusPending
}

// Create sets the initial status of e and stamps approval when it starts approved
func (f *Flow) Create(e *models.Event, creator rbac.Subject, targetIsRoot bool) {
	e.Status = InitialStatus(targetIsRoot, creator.Role)
	e.RejectionReason = nil
	if e.Status == models.EventStatusApproved {
		f.stampApproval(e, creator.UserID)
	}
}

// Approve moves a pending event to approved
func (f *Flow) Approve(ctx context.Context, e *models.Event, actor rbac.Subject) error {
	if err := f.authorizeReviewer(ctx, e, actor); err != nil {
		return err
	}
	if !e.IsPending() {
		return apperr.InvalidState("Event is not pending (current status: %s)", e.Status)
	}
	e.Status = models.EventStatusApproved
	e.RejectionReason = nil
	f.stampApproval(e, actor.UserID)
	return nil
}

// Reject moves a pending event to rejected with a mandatory reason
func (f *Flow) Reject(ctx context.Context, e *models.Event, actor rbac.Subject, reason string) error {
	if err := f.authorizeReviewer(ctx, e, actor); err != nil {
		return err
	}
	if !e.IsPending() {
		return apperr.InvalidState("Event is not pending (current status: %s)", e.Status)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return apperr.Validation("rejection reason is required")
	}
	e.Status = models.EventStatusRejected
	e.RejectionReason = &reason
	e.ApprovedAt = nil
	e.ApprovedBy = nil
	return nil
}

// Edit authorizes actor, applies mutate and reopens a rejected event when the
// editor ranks below vorstand
func (f *Flow) Edit(ctx context.Context, e *models.Event, actor rbac.Subject, mutate func(*models.Event)) error {
	if err := f.AuthorizeModify(ctx, e, actor); err != nil {
		return err
	}
	wasRejected := e.Status == models.EventStatusRejected
	if mutate != nil {
		mutate(e)
	}
	if wasRejected && !rbac.HasMinRole(actor.Role, rbac.RoleVorstand) {
		e.Status = models.EventStatusPending
		e.RejectionReason = nil
	}
	return nil
}

// Delete authorizes removal; there is no state precondition
func (f *Flow) Delete(ctx context.Context, e *models.Event, actor rbac.Subject) error {
	return f.AuthorizeModify(ctx, e, actor)
}

// AuthorizeModify allows the submitter, or vorstand rank with tenant visibility
func (f *Flow) AuthorizeModify(ctx context.Context, e *models.Event, actor rbac.Subject) error {
	if e.SubmitterID == actor.UserID {
		return nil
	}
	if rbac.HasMinRole(actor.Role, rbac.RoleVorstand) {
		ok, err := f.visibility.CanSee(ctx, actor, e.TenantID)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return apperr.PermissionDenied("Not authorized to modify this event")
}

func (f *Flow) authorizeReviewer(ctx context.Context, e *models.Event, actor rbac.Subject) error {
	if err := rbac.Require(actor, rbac.RoleVorstand); err != nil {
		return err
	}
	ok, err := f.visibility.CanSee(ctx, actor, e.TenantID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.PermissionDenied("No access to this tenant")
	}
	return nil
}

func (f *Flow) stampApproval(e *models.Event, approver uuid.UUID) {
	now := f.now()
	e.ApprovedAt = &now
	e.ApprovedBy = &approver
}
