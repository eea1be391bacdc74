package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"elevate.org/internal/audit"
	"elevate.org/internal/dates"
	"elevate.org/internal/ids"
	"elevate.org/internal/obs"
)

// MaxPendingRange bounds the pending-dates lookup window in days.
const MaxPendingRange = 366

// Option customises a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// Ledger records skips and moves and answers due-date projections.
type Ledger struct {
	store Store
	loans LoanBook
	now   func() time.Time
}

func NewLedger(store Store, loans LoanBook, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		loans: loans,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordSkip marks the given dates as skipped. A center scope expands to
// every active loan of the center due on each date; a loan scope requires
// each date to be a scheduled installment of that loan. Existing
// (loan, date) records are left alone, so repeating a call returns 0.
func (l *Ledger) RecordSkip(ctx context.Context, scope Scope, days []dates.Date, reason, actor string) (SkipResult, error) {
	scope.CenterID = strings.TrimSpace(scope.CenterID)
	scope.LoanID = strings.TrimSpace(scope.LoanID)
	reason = strings.TrimSpace(reason)
	if (scope.CenterID == "") == (scope.LoanID == "") {
		return SkipResult{}, fmt.Errorf("%w: exactly one of center_id or loan_id is required", ErrValidation)
	}
	if reason == "" {
		return SkipResult{}, fmt.Errorf("%w: reason is required", ErrValidation)
	}
	if strings.TrimSpace(actor) == "" {
		return SkipResult{}, fmt.Errorf("%w: actor is required", ErrValidation)
	}
	days, err := uniqueDates(days)
	if err != nil {
		return SkipResult{}, err
	}

	var loans []Loan
	if scope.LoanID != "" {
		loan, err := l.loan(ctx, scope.LoanID)
		if err != nil {
			return SkipResult{}, err
		}
		for _, d := range days {
			if !loan.IsDueOn(d) {
				return SkipResult{}, fmt.Errorf("%w: loan %s has no installment due on %s", ErrValidation, loan.ID, d)
			}
		}
		loans = []Loan{loan}
	} else {
		loans, err = l.loans.LoansByCenter(ctx, scope.CenterID)
		if err != nil {
			return SkipResult{}, err
		}
		if len(loans) == 0 {
			return SkipResult{}, fmt.Errorf("%w: center %s has no active loans", ErrNotFound, scope.CenterID)
		}
	}

	now := l.now()
	var adjs []Adjustment
	for _, d := range days {
		for _, loan := range loans {
			if !loan.IsDueOn(d) {
				continue
			}
			adjs = append(adjs, Adjustment{
				ID:           ids.NewAdjustment(),
				LoanID:       loan.ID,
				CenterID:     loan.CenterID,
				OriginalDate: d,
				Action:       ActionSkip,
				Reason:       reason,
				CreatedBy:    actor,
				CreatedAt:    now,
			})
		}
	}
	n := 0
	if len(adjs) > 0 {
		if n, err = l.store.InsertSkips(ctx, adjs); err != nil {
			return SkipResult{}, err
		}
	}
	obs.RecordAdjustments(string(ActionSkip), n)
	_ = audit.LogEvent(ctx, "schedule.skip", map[string]any{
		"center_id": scope.CenterID,
		"loan_id":   scope.LoanID,
		"dates":     len(days),
		"recorded":  n,
		"actor":     actor,
	})
	return SkipResult{Count: n, Message: fmt.Sprintf("%d dates skipped", n)}, nil
}

// RecordMove extends a single installment from original to newDate. A
// second adjustment for the same (loan, original) is a conflict.
func (l *Ledger) RecordMove(ctx context.Context, loanID string, original, newDate dates.Date, reason, actor string) (Adjustment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Adjustment{}, fmt.Errorf("%w: reason is required", ErrValidation)
	}
	if strings.TrimSpace(actor) == "" {
		return Adjustment{}, fmt.Errorf("%w: actor is required", ErrValidation)
	}
	if original.IsZero() || newDate.IsZero() {
		return Adjustment{}, fmt.Errorf("%w: original_date and new_date are required", ErrValidation)
	}
	if !newDate.After(original) {
		return Adjustment{}, fmt.Errorf("%w: new_date must be after original_date", ErrValidation)
	}
	loan, err := l.loan(ctx, loanID)
	if err != nil {
		return Adjustment{}, err
	}
	if !loan.IsDueOn(original) {
		return Adjustment{}, fmt.Errorf("%w: loan %s has no installment due on %s", ErrValidation, loan.ID, original)
	}
	adj := Adjustment{
		ID:           ids.NewAdjustment(),
		LoanID:       loan.ID,
		CenterID:     loan.CenterID,
		OriginalDate: original,
		Action:       ActionMove,
		NewDate:      newDate,
		Reason:       reason,
		CreatedBy:    actor,
		CreatedAt:    l.now(),
	}
	if err := l.store.InsertMove(ctx, adj); err != nil {
		if errors.Is(err, ErrConflict) {
			return Adjustment{}, fmt.Errorf("%w: loan %s already adjusted on %s", ErrConflict, loan.ID, original)
		}
		return Adjustment{}, err
	}
	obs.RecordAdjustments(string(ActionMove), 1)
	_ = audit.LogEvent(ctx, "schedule.move", map[string]any{
		"loan_id":       loan.ID,
		"original_date": original.String(),
		"new_date":      newDate.String(),
		"actor":         actor,
	})
	return adj, nil
}

// History lists a loan's adjustments ordered by original date.
func (l *Ledger) History(ctx context.Context, loanID string) ([]Adjustment, error) {
	if _, err := l.loan(ctx, loanID); err != nil {
		return nil, err
	}
	return l.store.ForLoan(ctx, loanID)
}

// ProjectNextDueDate returns where the installment nominally due on nominal
// is collected. Skipped occurrences roll into the next cycle date, carrying
// their installment; a move replaces the date outright.
func (l *Ledger) ProjectNextDueDate(ctx context.Context, loanID string, nominal dates.Date) (Projection, error) {
	loan, err := l.loan(ctx, loanID)
	if err != nil {
		return Projection{}, err
	}
	idx, ok := loan.occurrenceIndex(nominal)
	if !ok || !loan.IsDueOn(nominal) {
		return Projection{}, fmt.Errorf("%w: loan %s has no installment due on %s", ErrValidation, loan.ID, nominal)
	}
	adjs, err := l.store.ForLoan(ctx, loan.ID)
	if err != nil {
		return Projection{}, err
	}
	return project(loan, idx, adjs), nil
}

func project(loan Loan, idx int, adjs []Adjustment) Projection {
	byDate := make(map[dates.Date]Adjustment, len(adjs))
	for _, a := range adjs {
		byDate[a.OriginalDate] = a
	}
	skipped := func(n int) bool {
		a, ok := byDate[loan.Occurrence(n)]
		return ok && a.Action == ActionSkip
	}

	landing := idx
	for skipped(landing) {
		landing++
	}
	carried := 0
	for n := landing - 1; n >= 0 && skipped(n); n-- {
		carried++
	}

	p := Projection{
		LoanID:              loan.ID,
		NominalDate:         loan.Occurrence(idx),
		DueDate:             loan.Occurrence(landing),
		CarriedInstallments: carried,
		Amount:              loan.InstallmentAmount * int64(carried+1),
	}
	if a, ok := byDate[p.DueDate]; ok && a.Action == ActionMove {
		p.DueDate = a.NewDate
		p.Moved = true
	}
	return p
}

// PendingDates lists the center's collection days in [from, to] that still
// have at least one loan not skipped.
func (l *Ledger) PendingDates(ctx context.Context, centerID string, from, to dates.Date) ([]PendingDate, error) {
	centerID = strings.TrimSpace(centerID)
	if centerID == "" {
		return nil, fmt.Errorf("%w: center_id is required", ErrValidation)
	}
	if from.IsZero() || to.IsZero() {
		return nil, fmt.Errorf("%w: from and to are required", ErrValidation)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: to must not be before from", ErrValidation)
	}
	if to.DaysSince(from) > MaxPendingRange {
		return nil, fmt.Errorf("%w: range exceeds %d days", ErrValidation, MaxPendingRange)
	}
	loans, err := l.loans.LoansByCenter(ctx, centerID)
	if err != nil {
		return nil, err
	}
	adjs, err := l.store.ForCenter(ctx, centerID, from, to)
	if err != nil {
		return nil, err
	}
	skipped := make(map[key]bool, len(adjs))
	for _, a := range adjs {
		if a.Action == ActionSkip {
			skipped[key{a.LoanID, a.OriginalDate}] = true
		}
	}

	counts := make(map[dates.Date]*PendingDate)
	var order []dates.Date
	for _, loan := range loans {
		for _, d := range loan.DueDatesBetween(from, to) {
			pd, ok := counts[d]
			if !ok {
				pd = &PendingDate{Date: d}
				counts[d] = pd
				order = append(order, d)
			}
			pd.LoansDue++
			if skipped[key{loan.ID, d}] {
				pd.Skipped++
			}
		}
	}
	sortDates(order)
	out := make([]PendingDate, 0, len(order))
	for _, d := range order {
		if pd := counts[d]; pd.LoansDue > pd.Skipped {
			out = append(out, *pd)
		}
	}
	return out, nil
}

func (l *Ledger) loan(ctx context.Context, loanID string) (Loan, error) {
	loanID = strings.TrimSpace(loanID)
	if loanID == "" {
		return Loan{}, fmt.Errorf("%w: loan_id is required", ErrValidation)
	}
	loan, err := l.loans.GetLoan(ctx, loanID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Loan{}, fmt.Errorf("%w: loan %s", ErrNotFound, loanID)
		}
		return Loan{}, err
	}
	if !validFrequency(loan.Frequency) {
		return Loan{}, fmt.Errorf("%w: loan %s has unknown frequency %q", ErrValidation, loan.ID, loan.Frequency)
	}
	return loan, nil
}

func uniqueDates(in []dates.Date) ([]dates.Date, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: at least one date is required", ErrValidation)
	}
	seen := make(map[dates.Date]struct{}, len(in))
	out := make([]dates.Date, 0, len(in))
	for _, d := range in {
		if d.IsZero() {
			return nil, fmt.Errorf("%w: dates must be YYYY-MM-DD", ErrValidation)
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sortDates(out)
	return out, nil
}

func sortDates(in []dates.Date) {
	sort.Slice(in, func(i, j int) bool { return in[i].Before(in[j]) })
}
