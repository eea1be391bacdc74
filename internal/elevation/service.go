package elevation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"elevate.org/internal/audit"
	"elevate.org/internal/dates"
	"elevate.org/internal/identity"
	"elevate.org/internal/ids"
	"elevate.org/internal/obs"
	"elevate.org/internal/stream"
)

// Publisher receives grant transition events.
type Publisher interface {
	Publish(evt stream.Event)
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPublisher sends transition events to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.pub = p }
}

// Service is the grant state machine. Every transition goes through the
// Store so the one-active-per-user rule holds across processes.
type Service struct {
	store Store
	dir   identity.Directory
	now   func() time.Time
	pub   Publisher
}

func NewService(store Store, dir identity.Directory, opts ...Option) *Service {
	s := &Service{
		store: store,
		dir:   dir,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create grants userID a temporary role and/or branch.
func (s *Service) Create(ctx context.Context, in CreateInput, actor string) (Grant, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.TargetRoleID = strings.TrimSpace(in.TargetRoleID)
	in.TargetBranchID = strings.TrimSpace(in.TargetBranchID)
	in.Reason = strings.TrimSpace(in.Reason)
	if err := requireActor(actor); err != nil {
		return Grant{}, err
	}
	if in.UserID == "" {
		return Grant{}, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	staff, err := s.staff(ctx, in.UserID)
	if err != nil {
		return Grant{}, err
	}
	if err := s.checkTargets(ctx, in.TargetRoleID, in.TargetBranchID); err != nil {
		return Grant{}, err
	}

	now := s.now()
	g := Grant{
		ID:               ids.NewGrant(),
		UserID:           staff.UserID,
		StaffID:          staff.StaffID,
		StaffName:        staff.Name,
		TargetRoleID:     in.TargetRoleID,
		TargetBranchID:   in.TargetBranchID,
		StartDate:        in.StartDate,
		EndDate:          in.EndDate,
		Reason:           in.Reason,
		Status:           StatusActive,
		OriginalRoleID:   staff.PermanentRoleID,
		OriginalRoleName: s.roleName(ctx, staff.PermanentRoleID),
		OriginalBranchID: staff.PermanentBranchID,
		CreatedBy:        actor,
		CreatedAt:        now,
	}
	if err := validateGrant(g, staff); err != nil {
		return Grant{}, err
	}
	if err := s.store.Insert(ctx, g); err != nil {
		if errors.Is(err, ErrConflict) {
			return Grant{}, fmt.Errorf("%w: user %s already has an active grant", ErrConflict, g.UserID)
		}
		return Grant{}, err
	}
	s.emit(ctx, stream.KindCreated, g, actor)
	return g, nil
}

// Update edits an Active grant. The original role/branch snapshot is kept.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput, actor string) (Grant, error) {
	if err := requireActor(actor); err != nil {
		return Grant{}, err
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return Grant{}, err
	}
	if current.Status != StatusActive {
		return Grant{}, fmt.Errorf("%w: grant %s is %s", ErrInvalidState, id, current.Status)
	}
	staff, err := s.staff(ctx, current.UserID)
	if err != nil {
		return Grant{}, err
	}
	role, branch := "", ""
	if in.TargetRoleID != nil {
		role = strings.TrimSpace(*in.TargetRoleID)
		if role == "" {
			return Grant{}, fmt.Errorf("%w: target_role_id cannot be empty", ErrValidation)
		}
	}
	if in.TargetBranchID != nil && !in.ClearBranch {
		branch = strings.TrimSpace(*in.TargetBranchID)
	}
	if err := s.checkTargets(ctx, role, branch); err != nil {
		return Grant{}, err
	}

	now := s.now()
	g, err := s.store.Mutate(ctx, id, func(g *Grant) error {
		if g.Status != StatusActive {
			return fmt.Errorf("%w: grant %s is %s", ErrInvalidState, id, g.Status)
		}
		if role != "" {
			g.TargetRoleID = role
		}
		switch {
		case in.ClearBranch:
			g.TargetBranchID = ""
		case in.TargetBranchID != nil:
			g.TargetBranchID = branch
		}
		if in.StartDate != nil {
			g.StartDate = *in.StartDate
		}
		if in.EndDate != nil {
			g.EndDate = *in.EndDate
		}
		if in.Reason != nil {
			g.Reason = strings.TrimSpace(*in.Reason)
		}
		if err := validateGrant(*g, staff); err != nil {
			return err
		}
		g.UpdatedBy = actor
		g.UpdatedAt = &now
		return nil
	})
	if err != nil {
		return Grant{}, notFound(id, err)
	}
	s.emit(ctx, stream.KindUpdated, g, actor)
	return g, nil
}

// Cancel ends an Active grant early with a mandatory reason.
func (s *Service) Cancel(ctx context.Context, id, reason, actor string) (Grant, error) {
	if err := requireActor(actor); err != nil {
		return Grant{}, err
	}
	reason = strings.TrimSpace(reason)
	now := s.now()
	g, err := s.store.Mutate(ctx, id, func(g *Grant) error {
		if g.Status != StatusActive {
			return fmt.Errorf("%w: grant %s is %s", ErrInvalidState, id, g.Status)
		}
		if utf8.RuneCountInString(reason) < MinCancelReason {
			return fmt.Errorf("%w: cancellation reason must be at least %d characters", ErrValidation, MinCancelReason)
		}
		g.Status = StatusCancelled
		g.CancelledBy = actor
		g.CancelledAt = &now
		g.CancellationReason = reason
		return nil
	})
	if err != nil {
		return Grant{}, notFound(id, err)
	}
	s.emit(ctx, stream.KindCancelled, g, actor)
	return g, nil
}

// Complete finalizes an Active grant at any point of its window.
func (s *Service) Complete(ctx context.Context, id, actor string) (Grant, error) {
	if err := requireActor(actor); err != nil {
		return Grant{}, err
	}
	now := s.now()
	g, err := s.store.Mutate(ctx, id, func(g *Grant) error {
		if g.Status != StatusActive {
			return fmt.Errorf("%w: grant %s is %s", ErrInvalidState, id, g.Status)
		}
		g.Status = StatusCompleted
		g.CompletedBy = actor
		g.CompletedAt = &now
		return nil
	})
	if err != nil {
		return Grant{}, notFound(id, err)
	}
	s.emit(ctx, stream.KindCompleted, g, actor)
	return g, nil
}

func (s *Service) Get(ctx context.Context, id string) (Grant, error) {
	g, err := s.store.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return Grant{}, notFound(id, err)
	}
	return g, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Grant, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, fmt.Errorf("%w: to must not be before from", ErrValidation)
	}
	return s.store.List(ctx, filter)
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.store.Stats(ctx)
}

// EligibleDelegates lists staff who can receive a new grant, i.e. active
// staff without an Active grant.
func (s *Service) EligibleDelegates(ctx context.Context, filter identity.DelegateFilter) ([]identity.StaffIdentity, error) {
	staff, err := s.dir.ListStaff(ctx, filter)
	if err != nil {
		return nil, err
	}
	busy, err := s.store.ActiveUserIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]identity.StaffIdentity, 0, len(staff))
	for _, st := range staff {
		if _, ok := busy[st.UserID]; ok {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *Service) staff(ctx context.Context, userID string) (identity.StaffIdentity, error) {
	staff, err := s.dir.GetStaffIdentity(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.StaffIdentity{}, fmt.Errorf("%w: unknown user %s", ErrValidation, userID)
		}
		return identity.StaffIdentity{}, err
	}
	if staff.Status != "" && staff.Status != identity.StaffStatusActive {
		return identity.StaffIdentity{}, fmt.Errorf("%w: staff %s is %s", ErrValidation, staff.StaffID, staff.Status)
	}
	return staff, nil
}

// checkTargets verifies that non-empty role and branch ids exist.
func (s *Service) checkTargets(ctx context.Context, roleID, branchID string) error {
	if roleID != "" {
		if _, err := s.dir.GetRole(ctx, roleID); err != nil {
			if errors.Is(err, identity.ErrNotFound) {
				return fmt.Errorf("%w: unknown role %s", ErrValidation, roleID)
			}
			return err
		}
	}
	if branchID != "" {
		if _, err := s.dir.GetBranch(ctx, branchID); err != nil {
			if errors.Is(err, identity.ErrNotFound) {
				return fmt.Errorf("%w: unknown branch %s", ErrValidation, branchID)
			}
			return err
		}
	}
	return nil
}

func (s *Service) roleName(ctx context.Context, roleID string) string {
	role, err := s.dir.GetRole(ctx, roleID)
	if err != nil || role.Name == "" {
		return roleID
	}
	return role.Name
}

// validateGrant checks the pure field rules shared by Create and Update.
func validateGrant(g Grant, staff identity.StaffIdentity) error {
	if g.TargetRoleID == "" {
		return fmt.Errorf("%w: target_role_id is required", ErrValidation)
	}
	if g.Reason == "" {
		return fmt.Errorf("%w: reason is required", ErrValidation)
	}
	if err := validateWindow(g.StartDate, g.EndDate); err != nil {
		return err
	}
	sameBranch := g.TargetBranchID == "" || g.TargetBranchID == staff.PermanentBranchID
	if g.TargetRoleID == staff.PermanentRoleID && sameBranch {
		return fmt.Errorf("%w: grant must change the role or the branch", ErrValidation)
	}
	return nil
}

func validateWindow(start, end dates.Date) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start_date and end_date are required", ErrValidation)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end_date %s is before start_date %s", ErrValidation, end, start)
	}
	return nil
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return fmt.Errorf("%w: actor is required", ErrValidation)
	}
	return nil
}

func notFound(id string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: grant %s", ErrNotFound, id)
	}
	return err
}

func (s *Service) emit(ctx context.Context, kind string, g Grant, actor string) {
	obs.RecordTransition(kind)
	if s.pub != nil {
		s.pub.Publish(stream.Event{
			Kind:      kind,
			GrantID:   g.ID,
			UserID:    g.UserID,
			Status:    string(g.Status),
			Actor:     actor,
			Timestamp: s.now(),
		})
	}
	_ = audit.LogEvent(ctx, "elevation."+kind, map[string]any{
		"grant_id":       g.ID,
		"user_id":        g.UserID,
		"actor":          actor,
		"status":         string(g.Status),
		"target_role_id": g.TargetRoleID,
		"start_date":     g.StartDate.String(),
		"end_date":       g.EndDate.String(),
	})
}
