// Package identity is the read-only view of staff members' permanent
// assignments, roles and branches. Staff, role and branch management live
// elsewhere; this service only reads them.
package identity

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("identity: not found")

const (
	StaffStatusActive   = "active"
	StaffStatusInactive = "inactive"
)

// StaffIdentity is a staff member's permanent role and branch.
type StaffIdentity struct {
	StaffID           string `json:"staff_id"`
	UserID            string `json:"user_id"`
	Name              string `json:"name"`
	PermanentRoleID   string `json:"permanent_role_id"`
	PermanentBranchID string `json:"permanent_branch_id"`
	Status            string `json:"status"`
}

type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Branch struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DelegateFilter narrows the staff listing used by "assign to" pickers.
type DelegateFilter struct {
	BranchID string
	Search   string
}

// Directory is the Identity Store contract.
type Directory interface {
	GetStaffIdentity(ctx context.Context, userID string) (StaffIdentity, error)
	ListStaff(ctx context.Context, filter DelegateFilter) ([]StaffIdentity, error)
	GetRole(ctx context.Context, roleID string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	GetBranch(ctx context.Context, branchID string) (Branch, error)
	ListBranches(ctx context.Context) ([]Branch, error)
	RolePermissions(ctx context.Context, roleID string) ([]string, error)
}
