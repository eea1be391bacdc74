package elevation

import (
	"context"
	"errors"
	"time"

	"elevate.org/internal/dates"
	"elevate.org/internal/obs"
	"elevate.org/internal/stream"
	"elevate.org/internal/worker"
)

// Sweeper moves Active grants whose end date has passed to Completed.
type Sweeper struct {
	store Store
	now   func() time.Time
	pub   Publisher
	base  *worker.Base
}

// SweeperOption customises a Sweeper.
type SweeperOption func(*Sweeper)

func SweepWithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

func SweepWithPublisher(p Publisher) SweeperOption {
	return func(s *Sweeper) { s.pub = p }
}

// SweepSchedule sets the delay before the first pass and the period after.
func SweepSchedule(firstRunDelay, interval time.Duration) SweeperOption {
	return func(s *Sweeper) { s.base = worker.New("ElevationSweeper", firstRunDelay, interval) }
}

func NewSweeper(store Store, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		base:  worker.New("ElevationSweeper", 15*time.Second, time.Hour),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep runs one pass for today.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	return s.SweepAsOf(ctx, dates.Of(s.now()))
}

// SweepAsOf completes every Active grant with end_date before today. Each
// grant is a separate conditional update; a grant that changed state in the
// meantime counts as a lost race and is skipped.
func (s *Sweeper) SweepAsOf(ctx context.Context, today dates.Date) (SweepResult, error) {
	logger := s.base.Logger()
	expired, err := s.store.ListExpired(ctx, today)
	if err != nil {
		return SweepResult{}, err
	}
	var res SweepResult
	for _, candidate := range expired {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		g, err := s.store.CompleteExpired(ctx, candidate.ID, today, s.now())
		switch {
		case errors.Is(err, ErrInvalidState), errors.Is(err, ErrNotFound):
			res.LostRaces++
			logger.WithField("grant_id", candidate.ID).Debug("grant changed before sweep, skipping")
			continue
		case err != nil:
			obs.RecordSweep(res.Completed, res.LostRaces)
			return res, err
		}
		res.Completed++
		obs.RecordTransition(stream.KindExpired)
		if s.pub != nil {
			s.pub.Publish(stream.Event{
				Kind:      stream.KindExpired,
				GrantID:   g.ID,
				UserID:    g.UserID,
				Status:    string(g.Status),
				Actor:     SystemActor,
				Timestamp: s.now(),
			})
		}
		logger.WithField("grant_id", g.ID).WithField("end_date", g.EndDate.String()).Info("grant expired")
	}
	obs.RecordSweep(res.Completed, res.LostRaces)
	return res, nil
}

// Run sweeps on the configured schedule until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.base.Run(ctx, func(ctx context.Context) {
		res, err := s.Sweep(ctx)
		if err != nil {
			s.base.Logger().WithError(err).Error("expiry sweep failed")
			return
		}
		s.base.Logger().WithField("completed", res.Completed).WithField("lost_races", res.LostRaces).Info("expiry sweep finished")
	})
}
