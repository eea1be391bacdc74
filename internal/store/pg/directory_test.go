package pg

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"elevate.org/internal/identity"
)

func TestDirectoryGetStaffIdentity(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("from staff where user_id = ").WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"staff_id", "user_id", "name", "role_id", "branch_id", "status"}).
			AddRow("S1", "u1", "Aigerim", "officer", "B0", "active"))

	s, err := store.Directory().GetStaffIdentity(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetStaffIdentity: %v", err)
	}
	if s.PermanentRoleID != "officer" || s.PermanentBranchID != "B0" {
		t.Fatalf("unexpected staff %+v", s)
	}

	mock.ExpectQuery("from staff where user_id = ").WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"staff_id", "user_id", "name", "role_id", "branch_id", "status"}))
	if _, err := store.Directory().GetStaffIdentity(context.Background(), "ghost"); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDirectoryRolePermissions(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("from roles r").WithArgs("manager").
		WillReturnRows(sqlmock.NewRows([]string{"permission_key"}).AddRow("elevation.view").AddRow("schedule.adjust"))
	perms, err := store.Directory().RolePermissions(context.Background(), "manager")
	if err != nil || len(perms) != 2 {
		t.Fatalf("unexpected permissions %v (%v)", perms, err)
	}

	mock.ExpectQuery("from roles r").WithArgs("bare").
		WillReturnRows(sqlmock.NewRows([]string{"permission_key"}).AddRow(nil))
	perms, err = store.Directory().RolePermissions(context.Background(), "bare")
	if err != nil || len(perms) != 0 {
		t.Fatalf("role without permissions: %v (%v)", perms, err)
	}

	mock.ExpectQuery("from roles r").WithArgs("ghost").WillReturnRows(sqlmock.NewRows([]string{"permission_key"}))
	if _, err := store.Directory().RolePermissions(context.Background(), "ghost"); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDirectoryListStaffFilters(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(`where status = 'active' and branch_id = \$1 and \(name ilike \$2 or staff_id ilike \$2\)`).
		WithArgs("B1", "%bol%").
		WillReturnRows(sqlmock.NewRows([]string{"staff_id", "user_id", "name", "role_id", "branch_id", "status"}).
			AddRow("S2", "u2", "Bolat", "officer", "B1", "active"))

	out, err := store.Directory().ListStaff(context.Background(), identity.DelegateFilter{BranchID: "B1", Search: "bol"})
	if err != nil || len(out) != 1 {
		t.Fatalf("unexpected staff %v (%v)", out, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
