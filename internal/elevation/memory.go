package elevation

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"elevate.org/internal/dates"
)

var _ Store = (*InMemory)(nil)

// InMemory implements Store with in-process concurrency safety.
type InMemory struct {
	mu     sync.RWMutex
	grants map[string]*Grant
	active map[string]string // user id -> active grant id
}

// NewInMemory creates an empty registry.
func NewInMemory() *InMemory {
	return &InMemory{
		grants: make(map[string]*Grant),
		active: make(map[string]string),
	}
}

func (s *InMemory) Insert(_ context.Context, g Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[g.ID]; ok {
		return ErrConflict
	}
	if g.Status == StatusActive {
		if _, ok := s.active[g.UserID]; ok {
			return ErrConflict
		}
		s.active[g.UserID] = g.ID
	}
	cp := g
	s.grants[g.ID] = &cp
	return nil
}

func (s *InMemory) Get(_ context.Context, id string) (Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[id]
	if !ok {
		return Grant{}, ErrNotFound
	}
	return *g, nil
}

func (s *InMemory) Mutate(_ context.Context, id string, fn func(*Grant) error) (Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.grants[id]
	if !ok {
		return Grant{}, ErrNotFound
	}
	next := *cur
	if err := fn(&next); err != nil {
		return Grant{}, err
	}
	// id, user and staff are immutable
	next.ID, next.UserID, next.StaffID = cur.ID, cur.UserID, cur.StaffID
	if cur.Status == StatusActive && next.Status != StatusActive {
		delete(s.active, cur.UserID)
	}
	*cur = next
	return next, nil
}

func (s *InMemory) ActiveForUser(_ context.Context, userID string) (Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.active[userID]
	if !ok {
		return Grant{}, ErrNotFound
	}
	return *s.grants[id], nil
}

func (s *InMemory) ActiveUserIDs(_ context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(s.active))
	for userID := range s.active {
		out[userID] = struct{}{}
	}
	return out, nil
}

func (s *InMemory) List(_ context.Context, filter ListFilter) ([]Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var out []Grant
	for _, g := range s.grants {
		if !matches(*g, filter, search) {
			continue
		}
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, filter.Offset, filter.Limit), nil
}

func matches(g Grant, f ListFilter, search string) bool {
	if f.Status != "" && g.Status != f.Status {
		return false
	}
	if f.UserID != "" && g.UserID != f.UserID {
		return false
	}
	if !f.From.IsZero() && g.EndDate.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && g.StartDate.After(f.To) {
		return false
	}
	if search != "" {
		hay := strings.ToLower(g.StaffName + " " + g.StaffID + " " + g.Reason)
		if !strings.Contains(hay, search) {
			return false
		}
	}
	return true
}

func paginate(in []Grant, offset, limit int) []Grant {
	if offset > 0 {
		if offset >= len(in) {
			return nil
		}
		in = in[offset:]
	}
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	return in
}

func (s *InMemory) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st Stats
	for _, g := range s.grants {
		switch g.Status {
		case StatusActive:
			st.CurrentlyActive++
		case StatusCompleted:
			st.Completed++
		case StatusCancelled:
			st.Cancelled++
		}
		st.Total++
	}
	return st, nil
}

func (s *InMemory) ListExpired(_ context.Context, today dates.Date) ([]Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Grant
	for _, id := range s.active {
		g := s.grants[id]
		if g.EndDate.Before(today) {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) CompleteExpired(_ context.Context, id string, today dates.Date, at time.Time) (Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[id]
	if !ok {
		return Grant{}, ErrNotFound
	}
	if g.Status != StatusActive || !g.EndDate.Before(today) {
		return Grant{}, ErrInvalidState
	}
	g.Status = StatusCompleted
	g.CompletedBy = SystemActor
	t := at
	g.CompletedAt = &t
	delete(s.active, g.UserID)
	return *g, nil
}
