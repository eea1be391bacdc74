// Package schedule records skip/move overrides of loan repayment dates and
// projects where an installment is actually due.
package schedule

import (
	"errors"
	"time"

	"elevate.org/internal/dates"
)

var (
	ErrValidation = errors.New("schedule: validation failed")
	ErrConflict   = errors.New("schedule: adjustment already exists")
	ErrNotFound   = errors.New("schedule: not found")
)

// Frequency is a loan's repayment cycle.
type Frequency string

const (
	Weekly   Frequency = "weekly"
	Biweekly Frequency = "biweekly"
	Monthly  Frequency = "monthly"
)

// Action is the kind of override.
type Action string

const (
	ActionSkip Action = "skip"
	ActionMove Action = "move"
)

const LoanStatusActive = "active"

// Loan is the read-only view of a loan's repayment cycle.
type Loan struct {
	ID                string     `json:"id"`
	CenterID          string     `json:"center_id"`
	FirstDueDate      dates.Date `json:"first_due_date"`
	Frequency         Frequency  `json:"frequency"`
	Installments      int        `json:"installments"`
	InstallmentAmount int64      `json:"installment_amount"`
	Status            string     `json:"status"`
}

// Occurrence returns the n-th (0-based) cycle date, without regard to the
// installment count.
func (l Loan) Occurrence(n int) dates.Date {
	switch l.Frequency {
	case Weekly:
		return l.FirstDueDate.AddDays(7 * n)
	case Biweekly:
		return l.FirstDueDate.AddDays(14 * n)
	default:
		return l.FirstDueDate.AddMonthsClamped(n)
	}
}

// occurrenceIndex returns n when d is the n-th cycle date.
func (l Loan) occurrenceIndex(d dates.Date) (int, bool) {
	if l.FirstDueDate.IsZero() || d.Before(l.FirstDueDate) {
		return 0, false
	}
	switch l.Frequency {
	case Weekly, Biweekly:
		step := 7
		if l.Frequency == Biweekly {
			step = 14
		}
		days := d.DaysSince(l.FirstDueDate)
		if days%step != 0 {
			return 0, false
		}
		return days / step, true
	default:
		fy, fm, _ := l.FirstDueDate.Time().Date()
		y, m, _ := d.Time().Date()
		n := (y-fy)*12 + int(m-fm)
		if l.Occurrence(n).Equal(d) {
			return n, true
		}
		return 0, false
	}
}

// IsDueOn reports whether d is one of the scheduled installment dates.
func (l Loan) IsDueOn(d dates.Date) bool {
	n, ok := l.occurrenceIndex(d)
	if !ok {
		return false
	}
	return l.Installments <= 0 || n < l.Installments
}

// DueDatesBetween lists scheduled installment dates in [from, to].
func (l Loan) DueDatesBetween(from, to dates.Date) []dates.Date {
	var out []dates.Date
	for n := 0; l.Installments <= 0 || n < l.Installments; n++ {
		d := l.Occurrence(n)
		if d.After(to) {
			break
		}
		if !d.Before(from) {
			out = append(out, d)
		}
	}
	return out
}

func validFrequency(f Frequency) bool {
	return f == Weekly || f == Biweekly || f == Monthly
}

// Adjustment is one immediate, permanent override of a loan due date.
type Adjustment struct {
	ID           string     `json:"id"`
	LoanID       string     `json:"loan_id"`
	CenterID     string     `json:"center_id,omitempty"`
	OriginalDate dates.Date `json:"original_date"`
	Action       Action     `json:"action"`
	NewDate      dates.Date `json:"new_date,omitempty"`
	Reason       string     `json:"reason"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Scope selects the loans a skip applies to; exactly one field is set.
type Scope struct {
	CenterID string `json:"center_id"`
	LoanID   string `json:"loan_id"`
}

// SkipResult reports how many (loan, date) records were newly written.
type SkipResult struct {
	Count   int    `json:"count"`
	Message string `json:"message"`
}

// Projection is where an installment nominally due on NominalDate is
// actually collected.
type Projection struct {
	LoanID              string     `json:"loan_id"`
	NominalDate         dates.Date `json:"nominal_date"`
	DueDate             dates.Date `json:"due_date"`
	CarriedInstallments int        `json:"carried_installments"`
	Amount              int64      `json:"amount"`
	Moved               bool       `json:"moved"`
}

// PendingDate is a center collection day within a requested range.
type PendingDate struct {
	Date     dates.Date `json:"date"`
	LoansDue int        `json:"loans_due"`
	Skipped  int        `json:"skipped"`
}
