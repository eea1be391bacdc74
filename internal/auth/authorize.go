package auth

// Principal is an authenticated user acting under their effective identity.
// RoleID and BranchID already reflect any in-window elevation grant.
type Principal struct {
	UserID      string
	StaffID     string
	RoleID      string
	BranchID    string
	IsTemporary bool
	GrantID     string
	Permissions map[string]struct{}
}

// NewPrincipal constructs a principal with preloaded permission keys.
func NewPrincipal(userID, staffID, roleID, branchID string, temporary bool, grantID string, perms []string) Principal {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return Principal{
		UserID:      userID,
		StaffID:     staffID,
		RoleID:      roleID,
		BranchID:    branchID,
		IsTemporary: temporary,
		GrantID:     grantID,
		Permissions: set,
	}
}

// HasPermission reports whether the principal can execute action identified by key.
func (p Principal) HasPermission(key string) bool {
	_, ok := p.Permissions[key]
	return ok
}
