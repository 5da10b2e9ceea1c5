package pricefeed

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
)

const DefaultDebounce = 400 * time.Millisecond

type LookupFunc func(ctx context.Context, assetType domain.AssetType, symbol string) (domain.PriceQuote, error)

// Debouncer resolves a symbol being typed into a ticket. Each keystroke
// replaces the pending lookup; only the latest one is delivered.
type Debouncer struct {
	lookup LookupFunc
	delay  time.Duration

	mu     sync.Mutex
	seq    uint64
	timer  *time.Timer
	cancel context.CancelFunc
}

func NewDebouncer(lookup LookupFunc, delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{lookup: lookup, delay: delay}
}

// Type schedules a lookup for symbol after the debounce delay. An empty
// symbol only cancels what is pending. Once Type returns, no earlier
// lookup is delivered. deliver runs with the debouncer locked and must not
// call back into it.
func (d *Debouncer) Type(ctx context.Context, assetType domain.AssetType, symbol string, deliver func(domain.PriceQuote, error)) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.seq++
	if symbol == "" {
		return
	}
	seq := d.seq
	lctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.timer = time.AfterFunc(d.delay, func() {
		q, err := d.lookup(lctx, assetType, symbol)
		d.mu.Lock()
		defer d.mu.Unlock()
		if seq != d.seq || lctx.Err() != nil {
			return
		}
		deliver(q, err)
	})
}

// Stop drops any pending or in-flight lookup.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.seq++
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}
