package services

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ExpirySweeper periodically expires stale invitations.
type ExpirySweeper struct {
	invitations *InvitationService
	interval    time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

func NewExpirySweeper(invitations *InvitationService, interval time.Duration, logger *slog.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		invitations: invitations,
		interval:    interval,
		logger:      logger,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start sweeps once immediately and then on every interval until Stop or
// ctx cancellation.
func (w *ExpirySweeper) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true

	go func() {
		defer close(w.done)
		w.sweep(ctx)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case <-ticker.C:
				w.sweep(ctx)
			}
		}
	}()
}

func (w *ExpirySweeper) sweep(ctx context.Context) {
	n, err := w.invitations.Sweep(ctx)
	if err != nil {
		w.logger.Error("invitation sweep failed", "error", err)
		return
	}
	if n > 0 {
		w.logger.Info("expired stale invitations", "count", n)
	}
}

// Stop halts the loop and waits for an in-flight sweep to finish. A sweeper
// stopped before Start never runs.
func (w *ExpirySweeper) Stop() {
	w.mu.Lock()
	started := w.started
	if !w.stopped {
		w.stopped = true
		close(w.stop)
	}
	w.mu.Unlock()

	if started {
		<-w.done
	}
}
