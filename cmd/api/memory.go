package main

import (
	"elevate.org/internal/auth"
	"elevate.org/internal/dates"
	"elevate.org/internal/elevation"
	"elevate.org/internal/identity"
	"elevate.org/internal/schedule"
)

// memoryBackend serves local development without Postgres. Its contents
// mirror ops/seeds so dev tokens work out of the box.
func memoryBackend() *backend {
	dir := identity.NewInMemory()
	all := make([]string, 0, len(auth.BuiltinPermissions))
	for _, p := range auth.BuiltinPermissions {
		all = append(all, p.Key)
	}
	dir.PutRole(identity.Role{ID: "admin", Name: "Administrator"}, all...)
	dir.PutRole(identity.Role{ID: "branch_manager", Name: "Branch manager"},
		auth.PermElevationView, auth.PermScheduleView, auth.PermScheduleAdjust)
	dir.PutRole(identity.Role{ID: "loan_officer", Name: "Loan officer"}, auth.PermScheduleView)
	dir.PutBranch(identity.Branch{ID: "B0", Name: "Head office"})
	dir.PutBranch(identity.Branch{ID: "B1", Name: "North branch"})
	for _, s := range []identity.StaffIdentity{
		{StaffID: "S-001", UserID: "admin", Name: "System administrator", PermanentRoleID: "admin", PermanentBranchID: "B0"},
		{StaffID: "S-014", UserID: "aigerim", Name: "Aigerim Sadykova", PermanentRoleID: "loan_officer", PermanentBranchID: "B0"},
		{StaffID: "S-027", UserID: "bolat", Name: "Bolat Nurlanov", PermanentRoleID: "loan_officer", PermanentBranchID: "B1"},
	} {
		s.Status = identity.StaffStatusActive
		dir.PutStaff(s)
	}

	loans := schedule.NewInMemoryLoans(
		schedule.Loan{ID: "LN-1001", CenterID: "C-100", FirstDueDate: dates.MustParse("2024-01-01"), Frequency: schedule.Weekly, Installments: 24, InstallmentAmount: 500000, Status: schedule.LoanStatusActive},
		schedule.Loan{ID: "LN-1002", CenterID: "C-100", FirstDueDate: dates.MustParse("2024-01-01"), Frequency: schedule.Weekly, Installments: 24, InstallmentAmount: 350000, Status: schedule.LoanStatusActive},
		schedule.Loan{ID: "LN-1003", CenterID: "C-100", FirstDueDate: dates.MustParse("2024-01-15"), Frequency: schedule.Monthly, Installments: 12, InstallmentAmount: 1200000, Status: schedule.LoanStatusActive},
	)

	return &backend{
		grants:      elevation.NewInMemory(),
		directory:   dir,
		adjustments: schedule.NewInMemory(),
		loans:       loans,
		close:       func() {},
	}
}
