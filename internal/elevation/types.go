package elevation

import (
	"strings"
	"time"

	"elevate.org/internal/dates"
)

// Status is the lifecycle state of a grant.
type Status string

const (
	StatusActive    Status = "Active"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

// SystemActor is recorded when the expiry sweeper completes a grant.
const SystemActor = "system"

// MinCancelReason is the minimum trimmed length of a cancellation reason.
const MinCancelReason = 5

// ParseStatus accepts the canonical status names case-insensitively.
func ParseStatus(s string) (Status, bool) {
	for _, st := range []Status{StatusActive, StatusCompleted, StatusCancelled} {
		if strings.EqualFold(s, string(st)) {
			return st, true
		}
	}
	return "", false
}

// Grant is one time-boxed override of a staff member's role and/or branch.
// The Original* fields are a snapshot taken at creation and never refreshed.
type Grant struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	StaffID   string `json:"staff_id"`
	StaffName string `json:"staff_name"`

	TargetRoleID   string `json:"target_role_id"`
	TargetBranchID string `json:"target_branch_id,omitempty"`

	StartDate dates.Date `json:"start_date"`
	EndDate   dates.Date `json:"end_date"`
	Reason    string     `json:"reason"`
	Status    Status     `json:"status"`

	OriginalRoleID   string `json:"original_role_id"`
	OriginalRoleName string `json:"original_role_name"`
	OriginalBranchID string `json:"original_branch_id"`

	CreatedBy          string     `json:"created_by"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedBy          string     `json:"updated_by,omitempty"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
	CompletedBy        string     `json:"completed_by,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledBy        string     `json:"cancelled_by,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
}

// InWindow reports whether day falls inside the grant's inclusive window.
func (g Grant) InWindow(day dates.Date) bool {
	return day.Within(g.StartDate, g.EndDate)
}

// CreateInput carries the fields of a new grant.
type CreateInput struct {
	UserID         string     `json:"user_id"`
	TargetRoleID   string     `json:"target_role_id"`
	TargetBranchID string     `json:"target_branch_id"`
	StartDate      dates.Date `json:"start_date"`
	EndDate        dates.Date `json:"end_date"`
	Reason         string     `json:"reason"`
}

// UpdateInput is a partial update; nil fields keep their stored value.
// ClearBranch resets the target branch so the permanent branch applies.
type UpdateInput struct {
	TargetRoleID   *string     `json:"target_role_id"`
	TargetBranchID *string     `json:"target_branch_id"`
	ClearBranch    bool        `json:"clear_branch"`
	StartDate      *dates.Date `json:"start_date"`
	EndDate        *dates.Date `json:"end_date"`
	Reason         *string     `json:"reason"`
}

// ListFilter narrows the registry listing. From/To select grants whose window
// overlaps the range; Search matches staff name, staff id and reason.
type ListFilter struct {
	Status Status
	UserID string
	From   dates.Date
	To     dates.Date
	Search string
	Limit  int
	Offset int
}

// Stats are the registry dashboard counters.
type Stats struct {
	CurrentlyActive int `json:"currently_active"`
	Completed       int `json:"completed"`
	Cancelled       int `json:"cancelled"`
	Total           int `json:"total"`
}

// EffectiveIdentity is what a user acts as on a given day.
type EffectiveIdentity struct {
	UserID        string `json:"user_id"`
	StaffID       string `json:"staff_id"`
	RoleID        string `json:"role_id"`
	BranchID      string `json:"branch_id"`
	IsTemporary   bool   `json:"is_temporary"`
	RemainingDays int    `json:"remaining_days,omitempty"`
	GrantID       string `json:"grant_id,omitempty"`
}

// Branch types reported by EffectiveBranches.
const (
	BranchOriginal  = "original"
	BranchTemporary = "temporary"
)

// EffectiveBranch is one branch a user may currently act in.
type EffectiveBranch struct {
	BranchID string `json:"branch_id"`
	Type     string `json:"type"`
}

// SweepResult summarises one expiry pass.
type SweepResult struct {
	Completed int `json:"completed"`
	LostRaces int `json:"lost_races"`
}
