package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"elevate.org/internal/dates"
	"elevate.org/internal/schedule"
)

// Adjustments is the schedule_adjustments repository.
type Adjustments struct {
	db *sql.DB
}

// Loans reads the loan book.
type Loans struct {
	db *sql.DB
}

var (
	_ schedule.Store    = (*Adjustments)(nil)
	_ schedule.LoanBook = (*Loans)(nil)
)

const adjustmentColumns = `id, loan_id, center_id, original_date, action, new_date, reason, created_by, created_at`

const insertAdjustment = `
	insert into schedule_adjustments (` + adjustmentColumns + `)
	values ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

func adjustmentArgs(a schedule.Adjustment) []any {
	var newDate any
	if !a.NewDate.IsZero() {
		newDate = a.NewDate
	}
	return []any{
		a.ID, a.LoanID, nullIfEmpty(a.CenterID), a.OriginalDate, string(a.Action),
		newDate, a.Reason, a.CreatedBy, a.CreatedAt,
	}
}

func scanAdjustment(row scanner) (schedule.Adjustment, error) {
	var (
		a       schedule.Adjustment
		center  sql.NullString
		action  string
		newDate sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.LoanID, &center, &a.OriginalDate, &action, &newDate, &a.Reason, &a.CreatedBy, &a.CreatedAt); err != nil {
		return schedule.Adjustment{}, err
	}
	a.CenterID = center.String
	a.Action = schedule.Action(action)
	if newDate.Valid {
		a.NewDate = dates.Of(newDate.Time)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

func mapAdjustmentErr(err error) error {
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return schedule.ErrConflict
		case pgErrForeignKeyViolation, pgErrCheckViolation:
			return fmt.Errorf("%w: %s", schedule.ErrValidation, pgErr.Message)
		}
	}
	return err
}

// InsertSkips writes all records in one transaction; existing
// (loan_id, original_date) keys are left untouched and not counted.
func (r *Adjustments) InsertSkips(ctx context.Context, adjs []schedule.Adjustment) (int, error) {
	if r.db == nil {
		return 0, errNoDB
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	total := 0
	for _, a := range adjs {
		res, err := tx.ExecContext(ctx, insertAdjustment+`
			on conflict (loan_id, original_date) do nothing`, adjustmentArgs(a)...)
		if err != nil {
			return 0, mapAdjustmentErr(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *Adjustments) InsertMove(ctx context.Context, a schedule.Adjustment) error {
	if r.db == nil {
		return errNoDB
	}
	_, err := r.db.ExecContext(ctx, insertAdjustment, adjustmentArgs(a)...)
	return mapAdjustmentErr(err)
}

func (r *Adjustments) ForLoan(ctx context.Context, loanID string) ([]schedule.Adjustment, error) {
	if r.db == nil {
		return nil, errNoDB
	}
	rows, err := r.db.QueryContext(ctx, `
		select `+adjustmentColumns+`
		from schedule_adjustments
		where loan_id = $1
		order by original_date, loan_id
	`, loanID)
	if err != nil {
		return nil, err
	}
	return collectAdjustments(rows)
}

func (r *Adjustments) ForCenter(ctx context.Context, centerID string, from, to dates.Date) ([]schedule.Adjustment, error) {
	if r.db == nil {
		return nil, errNoDB
	}
	rows, err := r.db.QueryContext(ctx, `
		select `+adjustmentColumns+`
		from schedule_adjustments
		where center_id = $1 and original_date between $2 and $3
		order by original_date, loan_id
	`, centerID, from, to)
	if err != nil {
		return nil, err
	}
	return collectAdjustments(rows)
}

func collectAdjustments(rows *sql.Rows) ([]schedule.Adjustment, error) {
	defer rows.Close()
	var out []schedule.Adjustment
	for rows.Next() {
		a, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const loanColumns = `id, center_id, first_due_date, frequency, installments, installment_amount, status`

func scanLoan(row scanner) (schedule.Loan, error) {
	var (
		l    schedule.Loan
		freq string
	)
	if err := row.Scan(&l.ID, &l.CenterID, &l.FirstDueDate, &freq, &l.Installments, &l.InstallmentAmount, &l.Status); err != nil {
		return schedule.Loan{}, err
	}
	l.Frequency = schedule.Frequency(freq)
	return l, nil
}

func (r *Loans) GetLoan(ctx context.Context, loanID string) (schedule.Loan, error) {
	if r.db == nil {
		return schedule.Loan{}, errNoDB
	}
	l, err := scanLoan(r.db.QueryRowContext(ctx, `
		select `+loanColumns+`
		from loans
		where id = $1
	`, loanID))
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.Loan{}, schedule.ErrNotFound
	}
	return l, err
}

func (r *Loans) LoansByCenter(ctx context.Context, centerID string) ([]schedule.Loan, error) {
	if r.db == nil {
		return nil, errNoDB
	}
	rows, err := r.db.QueryContext(ctx, `
		select `+loanColumns+`
		from loans
		where center_id = $1 and status = 'active'
		order by id
	`, centerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []schedule.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
