package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
)

var _ Directory = (*InMemory)(nil)

// InMemory is a Directory backed by maps, used in tests and local runs.
type InMemory struct {
	mu       sync.RWMutex
	staff    map[string]StaffIdentity // by user id
	roles    map[string]Role
	branches map[string]Branch
	perms    map[string][]string // role id -> permission keys
}

func NewInMemory() *InMemory {
	return &InMemory{
		staff:    make(map[string]StaffIdentity),
		roles:    make(map[string]Role),
		branches: make(map[string]Branch),
		perms:    make(map[string][]string),
	}
}

// PutStaff inserts or replaces a staff member keyed by user id.
func (d *InMemory) PutStaff(s StaffIdentity) {
	if s.Status == "" {
		s.Status = StaffStatusActive
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.staff[s.UserID] = s
}

// PutRole inserts or replaces a role with its permission keys.
func (d *InMemory) PutRole(r Role, permissions ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roles[r.ID] = r
	d.perms[r.ID] = append([]string(nil), permissions...)
}

func (d *InMemory) PutBranch(b Branch) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.branches[b.ID] = b
}

func (d *InMemory) GetStaffIdentity(_ context.Context, userID string) (StaffIdentity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.staff[userID]
	if !ok {
		return StaffIdentity{}, ErrNotFound
	}
	return s, nil
}

func (d *InMemory) ListStaff(_ context.Context, filter DelegateFilter) ([]StaffIdentity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var out []StaffIdentity
	for _, s := range d.staff {
		if s.Status != StaffStatusActive {
			continue
		}
		if filter.BranchID != "" && s.PermanentBranchID != filter.BranchID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(s.Name), search) &&
			!strings.Contains(strings.ToLower(s.StaffID), search) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (d *InMemory) GetRole(_ context.Context, roleID string) (Role, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.roles[roleID]
	if !ok {
		return Role{}, ErrNotFound
	}
	return r, nil
}

func (d *InMemory) ListRoles(_ context.Context) ([]Role, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Role, 0, len(d.roles))
	for _, r := range d.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (d *InMemory) GetBranch(_ context.Context, branchID string) (Branch, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.branches[branchID]
	if !ok {
		return Branch{}, ErrNotFound
	}
	return b, nil
}

func (d *InMemory) ListBranches(_ context.Context) ([]Branch, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Branch, 0, len(d.branches))
	for _, b := range d.branches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (d *InMemory) RolePermissions(_ context.Context, roleID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.roles[roleID]; !ok {
		return nil, ErrNotFound
	}
	return append([]string(nil), d.perms[roleID]...), nil
}
