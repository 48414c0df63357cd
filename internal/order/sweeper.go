package order

import (
	"context"
	"time"

	"github.com/novamarkt/platform/internal/logging"
)

// Sweeper runs the auto-release sweep on a fixed interval.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper creates a sweeper. Call Start to begin sweeping.
func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Sweeper{
		svc:      svc,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop in a goroutine. The first sweep runs
// immediately so a restart doesn't delay overdue releases.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.done)

		s.sweep(ctx)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sweep(ctx)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sweeper) sweep(ctx context.Context) {
	released, err := s.svc.RunAutoReleaseSweep(ctx)
	if err != nil {
		logging.L(ctx).Error("auto-release sweep failed", "error", err)
		return
	}
	if released > 0 {
		logging.L(ctx).Info("auto-release sweep finished", "released", released)
	}
}
