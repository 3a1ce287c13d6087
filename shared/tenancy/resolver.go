package tenancy

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/models"
	"github.com/julis-sh/intranet/shared/rbac"
)

// Store is the read side of the tenant forest the resolver needs
type Store interface {
	ChildIDs(ctx context.Context, parentID uuid.UUID) ([]uuid.UUID, error)
	AllIDs(ctx context.Context, activeOnly bool) ([]uuid.UUID, error)
}

// Resolver computes the tenant ids a subject may operate on
type Resolver struct {
	store Store
}

// NewResolver creates a resolver over store
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// VisibleTenants resolves the tenant set for s.
//
// Admins get exactly the requested tenant, or every tenant when none is
// requested. Everybody else sees their home tenant, plus its descendants when
// includeDescendants is set, narrowed to the requested tenant if given. A
// subject without home tenant sees nothing.
func (r *Resolver) VisibleTenants(ctx context.Context, s rbac.Subject, requested *uuid.UUID, includeDescendants bool) (Set, error) {
	if s.IsAdmin() {
		if requested != nil {
			return NewSet(*requested), nil
		}
		ids, err := r.store.AllIDs(ctx, false)
		if err != nil {
			return nil, err
		}
		return NewSet(ids...), nil
	}

	if s.TenantID == nil {
		return Set{}, nil
	}

	visible := NewSet(*s.TenantID)
	if includeDescendants {
		descendants, err := r.Descendants(ctx, *s.TenantID)
		if err != nil {
			return nil, err
		}
		visible.Add(descendants...)
	}

	if requested != nil {
		if visible.Contains(*requested) {
			return NewSet(*requested), nil
		}
		return Set{}, nil
	}
	return visible, nil
}

// RequiredTenants is VisibleTenants that fails instead of returning an empty set
func (r *Resolver) RequiredTenants(ctx context.Context, s rbac.Subject, requested *uuid.UUID, includeDescendants bool) (Set, error) {
	visible, err := r.VisibleTenants(ctx, s, requested, includeDescendants)
	if err != nil {
		return nil, err
	}
	if visible.Len() == 0 {
		return nil, apperr.PermissionDenied("No tenant access")
	}
	return visible, nil
}

// CanSee reports whether tenantID is within the subject's tenant and its descendants
func (r *Resolver) CanSee(ctx context.Context, s rbac.Subject, tenantID uuid.UUID) (bool, error) {
	visible, err := r.VisibleTenants(ctx, s, nil, true)
	if err != nil {
		return false, err
	}
	return visible.Contains(tenantID), nil
}

// AccessibleTenants lists what the profile endpoint reports: every active
// tenant for admins, home plus descendants otherwise
func (r *Resolver) AccessibleTenants(ctx context.Context, s rbac.Subject) ([]uuid.UUID, error) {
	if s.IsAdmin() {
		return r.store.AllIDs(ctx, true)
	}
	if s.TenantID == nil {
		return []uuid.UUID{}, nil
	}
	descendants, err := r.Descendants(ctx, *s.TenantID)
	if err != nil {
		return nil, err
	}
	return append([]uuid.UUID{*s.TenantID}, descendants...), nil
}

// Descendants walks the subtree below root with an explicit stack. Every
// tenant is visited at most once, so cyclic parent data terminates.
func (r *Resolver) Descendants(ctx context.Context, root uuid.UUID) ([]uuid.UUID, error) {
	visited := map[uuid.UUID]bool{root: true}
	stack := []uuid.UUID{root}
	var out []uuid.UUID

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := r.store.ChildIDs(ctx, current)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if visited[child] {
				continue
			}
			visited[child] = true
			out = append(out, child)
			stack = append(stack, child)
		}
	}
	return out, nil
}

// GormStore reads the tenant forest from the tenants table
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store backed by db
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) ChildIDs(ctx context.Context, parentID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("parent_id = ?", parentID).
		Order("name").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to load child tenants")
	}
	return ids, nil
}

func (s *GormStore) AllIDs(ctx context.Context, activeOnly bool) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := s.db.WithContext(ctx).Model(&models.Tenant{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Order("name").Pluck("id", &ids).Error; err != nil {
		return nil, errors.Wrap(err, "failed to load tenants")
	}
	return ids, nil
}
