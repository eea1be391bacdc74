package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"elevate.org/internal/dates"
	"elevate.org/internal/elevation"
)

var grantCols = []string{
	"id", "user_id", "staff_id", "staff_name", "target_role_id", "target_branch_id",
	"start_date", "end_date", "reason", "status",
	"original_role_id", "original_role_name", "original_branch_id",
	"created_by", "created_at", "updated_by", "updated_at",
	"completed_by", "completed_at", "cancelled_by", "cancelled_at", "cancellation_reason",
}

func grantRows(status string) *sqlmock.Rows {
	created := time.Date(2024, 1, 30, 10, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(grantCols).AddRow(
		"elv_1", "u1", "S1", "Aigerim", "branch_manager", "B1",
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC),
		"Cover for annual leave", status,
		"officer", "Loan officer", "B0",
		"admin", created, nil, nil,
		nil, nil, nil, nil, nil,
	)
}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestGrantInsertMapsUniqueViolation(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("insert into elevation_grants").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "elevation_grants_one_active"})

	err := store.Grants().Insert(context.Background(), elevation.Grant{ID: "elv_2", UserID: "u1", Status: elevation.StatusActive})
	if !errors.Is(err, elevation.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGrantInsertMapsForeignKeyViolation(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("insert into elevation_grants").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation, Message: "target role missing"})

	err := store.Grants().Insert(context.Background(), elevation.Grant{ID: "elv_2"})
	if !errors.Is(err, elevation.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestGrantGetScansNullableColumns(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("from elevation_grants where id = ").WithArgs("elv_1").WillReturnRows(grantRows("Active"))

	g, err := store.Grants().Get(context.Background(), "elv_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if g.Status != elevation.StatusActive || g.TargetBranchID != "B1" || g.UpdatedAt != nil {
		t.Fatalf("unexpected grant %+v", g)
	}
	if !g.EndDate.Equal(dates.MustParse("2024-02-10")) {
		t.Fatalf("unexpected end date %s", g.EndDate)
	}

	mock.ExpectQuery("from elevation_grants where id = ").WithArgs("elv_9").WillReturnRows(sqlmock.NewRows(grantCols))
	if _, err := store.Grants().Get(context.Background(), "elv_9"); !errors.Is(err, elevation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGrantMutateLocksAndWrites(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("for update").WithArgs("elv_1").WillReturnRows(grantRows("Active"))
	mock.ExpectExec("update elevation_grants").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	g, err := store.Grants().Mutate(context.Background(), "elv_1", func(g *elevation.Grant) error {
		g.Status = elevation.StatusCancelled
		g.CancelledBy = "admin"
		g.CancellationReason = "Returned early"
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if g.Status != elevation.StatusCancelled {
		t.Fatalf("unexpected status %s", g.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGrantMutateRollsBackOnRejection(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("for update").WithArgs("elv_1").WillReturnRows(grantRows("Completed"))
	mock.ExpectRollback()

	_, err := store.Grants().Mutate(context.Background(), "elv_1", func(g *elevation.Grant) error {
		if g.Status != elevation.StatusActive {
			return elevation.ErrInvalidState
		}
		return nil
	})
	if !errors.Is(err, elevation.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCompleteExpiredLostRace(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("update elevation_grants set status = 'Completed'").
		WithArgs("elv_1", sqlmock.AnyArg(), elevation.SystemActor, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(grantCols))

	_, err := store.Grants().CompleteExpired(context.Background(), "elv_1", dates.MustParse("2024-02-11"), time.Now())
	if !errors.Is(err, elevation.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestGrantListBuildsFilters(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(`where status = \$1 and \(staff_name ilike \$2 or staff_id ilike \$2 or reason ilike \$2\) order by created_at desc, id desc limit \$3`).
		WithArgs("Active", "%ann%", 10).
		WillReturnRows(grantRows("Active"))

	out, err := store.Grants().List(context.Background(), elevation.ListFilter{Status: elevation.StatusActive, Search: "ann", Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected one grant, got %d", len(out))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGrantStats(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("count").WillReturnRows(sqlmock.NewRows([]string{"a", "c", "x", "t"}).AddRow(2, 5, 1, 8))

	st, err := store.Grants().Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st != (elevation.Stats{CurrentlyActive: 2, Completed: 5, Cancelled: 1, Total: 8}) {
		t.Fatalf("unexpected stats %+v", st)
	}
}
