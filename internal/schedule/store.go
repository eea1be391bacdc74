package schedule

import (
	"context"
	"sort"
	"sync"

	"elevate.org/internal/dates"
)

// LoanBook is the read-only loan source.
type LoanBook interface {
	GetLoan(ctx context.Context, loanID string) (Loan, error)
	LoansByCenter(ctx context.Context, centerID string) ([]Loan, error)
}

// Store persists adjustments keyed by (loan_id, original_date).
//
// InsertSkips writes all records atomically, ignoring ones whose key already
// exists, and returns how many were new. InsertMove returns ErrConflict when
// the key exists.
type Store interface {
	InsertSkips(ctx context.Context, adjs []Adjustment) (int, error)
	InsertMove(ctx context.Context, adj Adjustment) error
	ForLoan(ctx context.Context, loanID string) ([]Adjustment, error)
	ForCenter(ctx context.Context, centerID string, from, to dates.Date) ([]Adjustment, error)
}

type key struct {
	loan string
	date dates.Date
}

var (
	_ Store    = (*InMemory)(nil)
	_ LoanBook = (*InMemoryLoans)(nil)
)

// InMemory is a map-backed Store.
type InMemory struct {
	mu   sync.RWMutex
	rows map[key]Adjustment
}

func NewInMemory() *InMemory {
	return &InMemory{rows: make(map[key]Adjustment)}
}

func (s *InMemory) InsertSkips(_ context.Context, adjs []Adjustment) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range adjs {
		k := key{a.LoanID, a.OriginalDate}
		if _, ok := s.rows[k]; ok {
			continue
		}
		s.rows[k] = a
		n++
	}
	return n, nil
}

func (s *InMemory) InsertMove(_ context.Context, adj Adjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{adj.LoanID, adj.OriginalDate}
	if _, ok := s.rows[k]; ok {
		return ErrConflict
	}
	s.rows[k] = adj
	return nil
}

func (s *InMemory) ForLoan(_ context.Context, loanID string) ([]Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Adjustment
	for k, a := range s.rows {
		if k.loan == loanID {
			out = append(out, a)
		}
	}
	sortAdjustments(out)
	return out, nil
}

func (s *InMemory) ForCenter(_ context.Context, centerID string, from, to dates.Date) ([]Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Adjustment
	for _, a := range s.rows {
		if a.CenterID == centerID && a.OriginalDate.Within(from, to) {
			out = append(out, a)
		}
	}
	sortAdjustments(out)
	return out, nil
}

func sortAdjustments(in []Adjustment) {
	sort.Slice(in, func(i, j int) bool {
		if in[i].OriginalDate.Equal(in[j].OriginalDate) {
			return in[i].LoanID < in[j].LoanID
		}
		return in[i].OriginalDate.Before(in[j].OriginalDate)
	})
}

// InMemoryLoans is a map-backed LoanBook.
type InMemoryLoans struct {
	mu    sync.RWMutex
	loans map[string]Loan
}

func NewInMemoryLoans(loans ...Loan) *InMemoryLoans {
	b := &InMemoryLoans{loans: make(map[string]Loan)}
	for _, l := range loans {
		b.Put(l)
	}
	return b
}

func (b *InMemoryLoans) Put(l Loan) {
	if l.Status == "" {
		l.Status = LoanStatusActive
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loans[l.ID] = l
}

func (b *InMemoryLoans) GetLoan(_ context.Context, loanID string) (Loan, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.loans[loanID]
	if !ok {
		return Loan{}, ErrNotFound
	}
	return l, nil
}

func (b *InMemoryLoans) LoansByCenter(_ context.Context, centerID string) ([]Loan, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Loan
	for _, l := range b.loans {
		if l.CenterID == centerID && l.Status == LoanStatusActive {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
