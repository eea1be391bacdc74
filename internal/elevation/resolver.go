package elevation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"elevate.org/internal/dates"
	"elevate.org/internal/identity"
	"elevate.org/internal/obs"
)

// Resolver computes the identity a user acts as. It is the only place the
// authorization layer learns a user's role and branch.
type Resolver struct {
	store Store
	dir   identity.Directory
	now   func() time.Time
}

// NewResolver builds a Resolver; a nil now defaults to the wall clock.
func NewResolver(store Store, dir identity.Directory, now func() time.Time) *Resolver {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Resolver{store: store, dir: dir, now: now}
}

// Resolve returns the effective identity for today.
func (r *Resolver) Resolve(ctx context.Context, userID string) (EffectiveIdentity, error) {
	return r.ResolveAt(ctx, userID, dates.Of(r.now()))
}

// ResolveAt returns the effective identity on day. The grant window is
// checked directly so an expired but not yet swept grant never applies.
func (r *Resolver) ResolveAt(ctx context.Context, userID string, day dates.Date) (EffectiveIdentity, error) {
	staff, grant, ok, err := r.lookup(ctx, userID, day)
	if err != nil {
		return EffectiveIdentity{}, err
	}
	eff := EffectiveIdentity{
		UserID:   staff.UserID,
		StaffID:  staff.StaffID,
		RoleID:   staff.PermanentRoleID,
		BranchID: staff.PermanentBranchID,
	}
	if ok {
		eff.RoleID = grant.TargetRoleID
		if grant.TargetBranchID != "" {
			eff.BranchID = grant.TargetBranchID
		}
		eff.IsTemporary = true
		eff.RemainingDays = grant.EndDate.DaysSince(day)
		eff.GrantID = grant.ID
	}
	obs.RecordResolve(eff.IsTemporary)
	return eff, nil
}

// EffectiveBranches lists the permanent branch and, while an in-window grant
// targets another branch, that branch too.
func (r *Resolver) EffectiveBranches(ctx context.Context, userID string) ([]EffectiveBranch, error) {
	return r.EffectiveBranchesAt(ctx, userID, dates.Of(r.now()))
}

func (r *Resolver) EffectiveBranchesAt(ctx context.Context, userID string, day dates.Date) ([]EffectiveBranch, error) {
	staff, grant, ok, err := r.lookup(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	out := []EffectiveBranch{{BranchID: staff.PermanentBranchID, Type: BranchOriginal}}
	if ok && grant.TargetBranchID != "" && grant.TargetBranchID != staff.PermanentBranchID {
		out = append(out, EffectiveBranch{BranchID: grant.TargetBranchID, Type: BranchTemporary})
	}
	return out, nil
}

// lookup returns the permanent identity and the in-window Active grant, if any.
func (r *Resolver) lookup(ctx context.Context, userID string, day dates.Date) (identity.StaffIdentity, Grant, bool, error) {
	staff, err := r.dir.GetStaffIdentity(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.StaffIdentity{}, Grant{}, false, fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		return identity.StaffIdentity{}, Grant{}, false, err
	}
	grant, err := r.store.ActiveForUser(ctx, staff.UserID)
	switch {
	case errors.Is(err, ErrNotFound):
		return staff, Grant{}, false, nil
	case err != nil:
		return identity.StaffIdentity{}, Grant{}, false, err
	}
	if !grant.InWindow(day) {
		return staff, Grant{}, false, nil
	}
	return staff, grant, true, nil
}
