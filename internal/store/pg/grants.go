package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"elevate.org/internal/dates"
	"elevate.org/internal/elevation"
)

const grantColumns = `id, user_id, staff_id, staff_name, target_role_id, target_branch_id,
	start_date, end_date, reason, status,
	original_role_id, original_role_name, original_branch_id,
	created_by, created_at, updated_by, updated_at,
	completed_by, completed_at, cancelled_by, cancelled_at, cancellation_reason`

// Grants is the elevation_grants repository.
type Grants struct {
	db *sql.DB
}

var _ elevation.Store = (*Grants)(nil)

func scanGrant(row scanner) (elevation.Grant, error) {
	var (
		g                                   elevation.Grant
		status                              string
		branch, updatedBy, completedBy      sql.NullString
		cancelledBy, cancellationReason     sql.NullString
		updatedAt, completedAt, cancelledAt sql.NullTime
	)
	err := row.Scan(
		&g.ID, &g.UserID, &g.StaffID, &g.StaffName, &g.TargetRoleID, &branch,
		&g.StartDate, &g.EndDate, &g.Reason, &status,
		&g.OriginalRoleID, &g.OriginalRoleName, &g.OriginalBranchID,
		&g.CreatedBy, &g.CreatedAt, &updatedBy, &updatedAt,
		&completedBy, &completedAt, &cancelledBy, &cancelledAt, &cancellationReason,
	)
	if err != nil {
		return elevation.Grant{}, err
	}
	g.Status = elevation.Status(status)
	g.TargetBranchID = branch.String
	g.UpdatedBy = updatedBy.String
	g.UpdatedAt = timePtr(updatedAt)
	g.CompletedBy = completedBy.String
	g.CompletedAt = timePtr(completedAt)
	g.CancelledBy = cancelledBy.String
	g.CancelledAt = timePtr(cancelledAt)
	g.CancellationReason = cancellationReason.String
	g.CreatedAt = g.CreatedAt.UTC()
	return g, nil
}

func mapGrantErr(err error) error {
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return elevation.ErrConflict
		case pgErrForeignKeyViolation, pgErrCheckViolation:
			return fmt.Errorf("%w: %s", elevation.ErrValidation, pgErr.Message)
		}
	}
	return err
}

func (r *Grants) Insert(ctx context.Context, g elevation.Grant) error {
	if r.db == nil {
		return errNoDB
	}
	_, err := r.db.ExecContext(ctx, `
		insert into elevation_grants (`+grantColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`,
		g.ID, g.UserID, g.StaffID, g.StaffName, g.TargetRoleID, nullIfEmpty(g.TargetBranchID),
		g.StartDate, g.EndDate, g.Reason, string(g.Status),
		g.OriginalRoleID, g.OriginalRoleName, g.OriginalBranchID,
		g.CreatedBy, g.CreatedAt, nullIfEmpty(g.UpdatedBy), nullTime(g.UpdatedAt),
		nullIfEmpty(g.CompletedBy), nullTime(g.CompletedAt),
		nullIfEmpty(g.CancelledBy), nullTime(g.CancelledAt), nullIfEmpty(g.CancellationReason),
	)
	return mapGrantErr(err)
}

func (r *Grants) Get(ctx context.Context, id string) (elevation.Grant, error) {
	if r.db == nil {
		return elevation.Grant{}, errNoDB
	}
	g, err := scanGrant(r.db.QueryRowContext(ctx, `
		select `+grantColumns+`
		from elevation_grants
		where id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return elevation.Grant{}, elevation.ErrNotFound
	}
	return g, err
}

// Mutate locks the row, applies fn and writes the mutable columns back in
// the same transaction.
func (r *Grants) Mutate(ctx context.Context, id string, fn func(*elevation.Grant) error) (elevation.Grant, error) {
	if r.db == nil {
		return elevation.Grant{}, errNoDB
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return elevation.Grant{}, err
	}
	defer func() { _ = tx.Rollback() }()

	g, err := scanGrant(tx.QueryRowContext(ctx, `
		select `+grantColumns+`
		from elevation_grants
		where id = $1
		for update
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return elevation.Grant{}, elevation.ErrNotFound
	}
	if err != nil {
		return elevation.Grant{}, err
	}
	if err := fn(&g); err != nil {
		return elevation.Grant{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		update elevation_grants
		set target_role_id = $2, target_branch_id = $3, start_date = $4, end_date = $5,
			reason = $6, status = $7, updated_by = $8, updated_at = $9,
			completed_by = $10, completed_at = $11,
			cancelled_by = $12, cancelled_at = $13, cancellation_reason = $14
		where id = $1
	`,
		id, g.TargetRoleID, nullIfEmpty(g.TargetBranchID), g.StartDate, g.EndDate,
		g.Reason, string(g.Status), nullIfEmpty(g.UpdatedBy), nullTime(g.UpdatedAt),
		nullIfEmpty(g.CompletedBy), nullTime(g.CompletedAt),
		nullIfEmpty(g.CancelledBy), nullTime(g.CancelledAt), nullIfEmpty(g.CancellationReason),
	); err != nil {
		return elevation.Grant{}, mapGrantErr(err)
	}
	if err := tx.Commit(); err != nil {
		return elevation.Grant{}, err
	}
	return g, nil
}

func (r *Grants) ActiveForUser(ctx context.Context, userID string) (elevation.Grant, error) {
	if r.db == nil {
		return elevation.Grant{}, errNoDB
	}
	g, err := scanGrant(r.db.QueryRowContext(ctx, `
		select `+grantColumns+`
		from elevation_grants
		where user_id = $1 and status = 'Active'
	`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return elevation.Grant{}, elevation.ErrNotFound
	}
	return g, err
}

func (r *Grants) ActiveUserIDs(ctx context.Context) (map[string]struct{}, error) {
	if r.db == nil {
		return nil, errNoDB
	}
	rows, err := r.db.QueryContext(ctx, `select user_id from elevation_grants where status = 'Active'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		out[userID] = struct{}{}
	}
	return out, rows.Err()
}

func (r *Grants) List(ctx context.Context, f elevation.ListFilter) ([]elevation.Grant, error) {
	if r.db == nil {
		return nil, errNoDB
	}
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if !f.From.IsZero() {
		add("end_date >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("start_date <= $%d", f.To)
	}
	if strings.TrimSpace(f.Search) != "" {
		args = append(args, likePattern(f.Search))
		n := len(args)
		where = append(where, fmt.Sprintf("(staff_name ilike $%d or staff_id ilike $%d or reason ilike $%d)", n, n, n))
	}

	query := `select ` + grantColumns + ` from elevation_grants`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	query += ` order by created_at desc, id desc`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" limit $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" offset $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []elevation.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *Grants) Stats(ctx context.Context) (elevation.Stats, error) {
	if r.db == nil {
		return elevation.Stats{}, errNoDB
	}
	var st elevation.Stats
	err := r.db.QueryRowContext(ctx, `
		select
			count(*) filter (where status = 'Active'),
			count(*) filter (where status = 'Completed'),
			count(*) filter (where status = 'Cancelled'),
			count(*)
		from elevation_grants
	`).Scan(&st.CurrentlyActive, &st.Completed, &st.Cancelled, &st.Total)
	return st, err
}

func (r *Grants) ListExpired(ctx context.Context, today dates.Date) ([]elevation.Grant, error) {
	if r.db == nil {
		return nil, errNoDB
	}
	rows, err := r.db.QueryContext(ctx, `
		select `+grantColumns+`
		from elevation_grants
		where status = 'Active' and end_date < $1
		order by id
	`, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []elevation.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// CompleteExpired is a single conditional update; no row means the grant
// was finalized, cancelled or extended since it was listed.
func (r *Grants) CompleteExpired(ctx context.Context, id string, today dates.Date, at time.Time) (elevation.Grant, error) {
	if r.db == nil {
		return elevation.Grant{}, errNoDB
	}
	g, err := scanGrant(r.db.QueryRowContext(ctx, `
		update elevation_grants
		set status = 'Completed', completed_by = $3, completed_at = $4
		where id = $1 and status = 'Active' and end_date < $2
		returning `+grantColumns,
		id, today, elevation.SystemActor, at))
	if errors.Is(err, sql.ErrNoRows) {
		return elevation.Grant{}, elevation.ErrInvalidState
	}
	return g, err
}
