package pricefeed

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
)

type Quote struct {
	domain.PriceQuote
	FetchedAt time.Time `json:"fetchedAt"`
}

// Board holds the latest quote per symbol.
type Board struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewBoard() *Board {
	return &Board{quotes: make(map[string]Quote)}
}

func (b *Board) Set(q domain.PriceQuote, at time.Time) {
	q.Symbol = strings.ToUpper(q.Symbol)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[q.Symbol] = Quote{PriceQuote: q, FetchedAt: at}
}

// Clear marks the symbol's price as unknown.
func (b *Board) Clear(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.quotes, strings.ToUpper(symbol))
}

func (b *Board) Get(symbol string) (Quote, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[strings.ToUpper(symbol)]
	return q, ok
}

// Price is the latest price for symbol, zero when unknown.
func (b *Board) Price(symbol string) decimal.Decimal {
	q, ok := b.Get(symbol)
	if !ok {
		return decimal.Zero
	}
	return q.Price
}

// Lookup has the shape valuation.WithPrices expects.
func (b *Board) Lookup(symbol string) (decimal.Decimal, bool) {
	p := b.Price(symbol)
	return p, p.IsPositive()
}

func (b *Board) Snapshot() map[string]Quote {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]Quote, len(b.quotes))
	for k, v := range b.quotes {
		out[k] = v
	}
	return out
}
