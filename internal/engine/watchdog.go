package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/timewave-computer/causality-sub004/internal/domain"
	"github.com/timewave-computer/causality-sub004/internal/platform/metrics"
	"github.com/timewave-computer/causality-sub004/internal/register"
)

// Watchdog reclaims expired register locks back to Active so a retry by the
// original or a different caller can proceed. Reclamation is invisible to
// callers except as a RegisterUnavailable should they retry too late.
type Watchdog struct {
	registers register.Store
	interval  time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewWatchdog constructs a lock reclaimer scanning at the given interval.
func NewWatchdog(registers register.Store, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) *Watchdog {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{registers: registers, interval: interval, logger: logger, metrics: m}
}

// Run scans until the context ends.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.ReclaimExpired(ctx)
		}
	}
}

// ReclaimExpired performs one reclamation pass and returns how many locks it
// released.
func (w *Watchdog) ReclaimExpired(ctx context.Context) int {
	ids, err := w.registers.ExpiredLocks(ctx, time.Now())
	if err != nil {
		w.logger.Warn("scan expired locks", "error", err)
		return 0
	}

	reclaimed := 0
	for _, id := range ids {
		if _, err := w.registers.Transition(ctx, id, domain.Active()); err != nil {
			// Lost a race with the owning operation finishing; that is fine.
			continue
		}
		reclaimed++
		w.logger.Info("reclaimed expired lock", "register_id", string(id))
	}
	if reclaimed > 0 && w.metrics != nil {
		w.metrics.LocksReclaimed.Add(float64(reclaimed))
	}
	return reclaimed
}
