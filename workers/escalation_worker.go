package workers

import (
	"context"
	"time"

	"github.com/n8nhost/console/internal/logging"
)

type escalationFirer interface {
	FireDueEscalations(ctx context.Context) (int, error)
}

// EscalationWorker delivers level 2 targets once their timeout passes
type EscalationWorker struct {
	Dispatcher escalationFirer
	Interval   time.Duration
	Logger     *logging.Logger
}

func NewEscalationWorker(dispatcher escalationFirer, interval time.Duration, logger *logging.Logger) *EscalationWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &EscalationWorker{Dispatcher: dispatcher, Interval: interval, Logger: logger}
}

// StartEscalationWorker runs until ctx is cancelled
func (w *EscalationWorker) StartEscalationWorker(ctx context.Context) {
	w.Logger.Infof("Escalation worker started, checking every %s", w.Interval)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("Escalation worker stopped")
			return
		case <-ticker.C:
			w.processEscalations(ctx)
		}
	}
}

func (w *EscalationWorker) processEscalations(ctx context.Context) int {
	fired, err := w.Dispatcher.FireDueEscalations(ctx)
	if err != nil {
		w.Logger.Errorf("Worker: failed to fire escalations: %v", err)
		return 0
	}
	if fired > 0 {
		w.Logger.Infof("Worker: fired %d escalations", fired)
	}
	return fired
}
