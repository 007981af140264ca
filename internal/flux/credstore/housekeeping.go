package credstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Pruner is implemented by drivers that keep a change log on disk.
type Pruner interface {
	PruneEvents(ctx context.Context, before time.Time) (int64, error)
}

// Housekeeper periodically trims the change log so a long-lived profile does
// not grow without bound.
type Housekeeper struct {
	Pruner    Pruner
	Logger    *slog.Logger
	Interval  time.Duration
	Retention time.Duration
	Clock     clockwork.Clock

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeeper returns a housekeeper for p. Non-positive durations fall back
// to an hourly run keeping one day of events.
func NewHousekeeper(p Pruner, logger *slog.Logger, interval, retention time.Duration) *Housekeeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}

	return &Housekeeper{
		Pruner:    p,
		Logger:    logger,
		Interval:  interval,
		Retention: retention,
		Clock:     clockwork.NewRealClock(),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start runs the worker in the background. Call Stop to shut it down.
func (h *Housekeeper) Start() {
	go h.run()
	h.Logger.Debug("credential housekeeping started", "interval", h.Interval, "retention", h.Retention)
}

// Stop blocks until an in-progress prune has finished.
func (h *Housekeeper) Stop() {
	close(h.stopCh)
	<-h.doneCh
	h.Logger.Debug("credential housekeeping stopped")
}

func (h *Housekeeper) run() {
	defer close(h.doneCh)

	ticker := h.Clock.NewTicker(h.Interval)
	defer ticker.Stop()

	h.prune()

	for {
		select {
		case <-ticker.Chan():
			h.prune()
		case <-h.stopCh:
			return
		}
	}
}

func (h *Housekeeper) prune() {
	cutoff := h.Clock.Now().Add(-h.Retention)
	n, err := h.Pruner.PruneEvents(context.Background(), cutoff)
	if err != nil {
		h.Logger.Error("failed to prune credential events", "error", err)
		return
	}
	h.Logger.Debug("pruned credential events", "deleted", n, "before", cutoff)
}
