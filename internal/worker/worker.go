// Package worker runs periodic background jobs.
package worker

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"elevate.org/internal/obs"
)

// Base runs a job after firstRunDelay and then every runInterval until the
// context ends.
type Base struct {
	Name          string
	firstRunDelay time.Duration
	runInterval   time.Duration
}

func New(name string, firstRunDelay, runInterval time.Duration) *Base {
	return &Base{
		Name:          name,
		firstRunDelay: firstRunDelay,
		runInterval:   runInterval,
	}
}

func (b *Base) Logger() *logrus.Entry {
	return obs.Logger().WithField("worker_name", b.Name)
}

// Run blocks until ctx is done. A panicking job is logged and the loop keeps
// its schedule.
func (b *Base) Run(ctx context.Context, job func(ctx context.Context)) {
	period := b.firstRunDelay
	logger := b.Logger()
	for {
		timer := time.NewTimer(period)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("worker stopped")
			return
		case <-timer.C:
			logger.Debug("job started")
			b.runJob(ctx, job)
			logger.Debug("job finished")
		}
		period = b.runInterval
	}
}

func (b *Base) runJob(ctx context.Context, job func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			b.Logger().
				WithField("panic_stack", string(debug.Stack())).
				Errorf("panic: (%v)", r)
		}
	}()
	job(ctx)
}
