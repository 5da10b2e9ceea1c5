package pricefeed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
)

// Feed answers point price lookups: the board when its quote is fresh,
// then the shared store, then the execution service.
type Feed struct {
	board   *Board
	store   QuoteStore
	fetcher Fetcher
	maxAge  time.Duration
	now     func() time.Time
}

func NewFeed(board *Board, store QuoteStore, fetcher Fetcher, maxAge time.Duration) *Feed {
	if maxAge <= 0 {
		maxAge = 2 * DefaultInterval
	}
	return &Feed{board: board, store: store, fetcher: fetcher, maxAge: maxAge, now: time.Now}
}

func (f *Feed) Quote(ctx context.Context, assetType domain.AssetType, symbol string) (domain.PriceQuote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return domain.PriceQuote{}, domain.Invalid(domain.ReasonMissingSymbol, "symbol is required")
	}
	if q, ok := f.board.Get(symbol); ok && f.fresh(q) {
		return q.PriceQuote, nil
	}
	if f.store != nil {
		if q, err := f.store.GetLastPrice(ctx, symbol); err == nil && q != nil && f.fresh(*q) {
			f.board.Set(q.PriceQuote, q.FetchedAt)
			return q.PriceQuote, nil
		}
	}
	if f.fetcher == nil {
		return domain.PriceQuote{}, fmt.Errorf("quote %s: %w", symbol, domain.ErrPriceUnavailable)
	}
	q, err := f.fetcher.Quote(ctx, assetType, symbol)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("quote %s: %w: %w", symbol, domain.ErrPriceUnavailable, err)
	}
	if !q.Price.IsPositive() {
		return domain.PriceQuote{}, fmt.Errorf("quote %s: %w", symbol, domain.ErrPriceUnavailable)
	}
	q.Symbol = symbol
	f.board.Set(q, f.now())
	return q, nil
}

// fresh reports whether q is usable: positive and no older than maxAge.
// A quote without a fetch time is never fresh.
func (f *Feed) fresh(q Quote) bool {
	if q.FetchedAt.IsZero() || !q.Price.IsPositive() {
		return false
	}
	return f.now().Sub(q.FetchedAt) <= f.maxAge
}

// Price returns the live price or domain.ErrPriceUnavailable.
func (f *Feed) Price(ctx context.Context, assetType domain.AssetType, symbol string) (decimal.Decimal, error) {
	q, err := f.Quote(ctx, assetType, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Price, nil
}
