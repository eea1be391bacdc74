package elevation

import (
	"context"
	"time"

	"elevate.org/internal/dates"
)

// Store is the durable grant registry.
//
// Insert must reject a second Active grant for the same user with
// ErrConflict atomically. Mutate re-reads the grant inside a per-entity
// transaction, lets fn modify it and persists the result; an error from fn
// aborts without writing. CompleteExpired is a single conditional update
// that only succeeds while the grant is Active and its end date is before
// today, returning ErrInvalidState otherwise.
type Store interface {
	Insert(ctx context.Context, g Grant) error
	Get(ctx context.Context, id string) (Grant, error)
	Mutate(ctx context.Context, id string, fn func(*Grant) error) (Grant, error)
	ActiveForUser(ctx context.Context, userID string) (Grant, error)
	ActiveUserIDs(ctx context.Context) (map[string]struct{}, error)
	List(ctx context.Context, filter ListFilter) ([]Grant, error)
	Stats(ctx context.Context) (Stats, error)
	ListExpired(ctx context.Context, today dates.Date) ([]Grant, error)
	CompleteExpired(ctx context.Context, id string, today dates.Date, at time.Time) (Grant, error)
}
