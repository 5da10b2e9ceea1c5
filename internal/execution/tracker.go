package execution

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/metrics"
)

// Tracker watches the limit and stop order lists and reports status
// changes between consecutive reads.
type Tracker struct {
	state   State
	notify  func(Transition)
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu     sync.Mutex
	limits []domain.LimitOrder
	stops  []domain.StopOrder
	primed bool
}

func NewTracker(state State, notify func(Transition), m *metrics.Metrics, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{state: state, notify: notify, metrics: m, logger: logger}
}

// Check reads both lists and returns the transitions since the previous
// Check. The first call only records the baseline.
func (t *Tracker) Check(ctx context.Context) ([]Transition, error) {
	limits, err := t.state.LimitOrders(ctx, "")
	if err != nil {
		return nil, err
	}
	stops, err := t.state.StopOrders(ctx, "")
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	var out []Transition
	if t.primed {
		out = append(DiffLimit(t.limits, limits.Value), DiffStop(t.stops, stops.Value)...)
	}
	t.limits, t.stops, t.primed = limits.Value, stops.Value, true
	t.mu.Unlock()

	for _, tr := range out {
		if !tr.Legal {
			t.logger.Warn("illegal order transition reported", "kind", tr.Kind, "order", tr.OrderID, "from", tr.From, "to", tr.To)
			continue
		}
		t.metrics.Transition(string(tr.Kind), tr.To)
		t.logger.Info("order transition", "kind", tr.Kind, "order", tr.OrderID, "symbol", tr.Symbol, "from", tr.From, "to", tr.To)
		if t.notify != nil {
			t.notify(tr)
		}
	}
	return out, nil
}

// Run calls Check every interval until ctx is done.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := t.Check(ctx); err != nil && ctx.Err() == nil {
			t.logger.Warn("order tracker check failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
