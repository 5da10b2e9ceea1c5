package pricefeed

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/metrics"
)

const DefaultInterval = 10 * time.Second

// Fetcher is the slice of the execution service client the feed needs.
type Fetcher interface {
	Quote(ctx context.Context, assetType domain.AssetType, symbol string) (domain.PriceQuote, error)
	Quotes(ctx context.Context, assetType domain.AssetType, symbols []string) (map[string]domain.PriceQuote, error)
}

// Poller refreshes the watched symbols on a fixed interval. A symbol whose
// fetch fails has its price cleared until the next successful tick.
type Poller struct {
	fetcher Fetcher
	board   *Board
	broker  Broker
	store   QuoteStore
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	watched map[string]domain.AssetType
	now     func() time.Time
}

func NewPoller(fetcher Fetcher, board *Board, broker Broker, store QuoteStore, m *metrics.Metrics, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		fetcher: fetcher,
		board:   board,
		broker:  broker,
		store:   store,
		metrics: m,
		logger:  logger,
		watched: make(map[string]domain.AssetType),
		now:     time.Now,
	}
}

func (p *Poller) Board() *Board { return p.board }

func (p *Poller) Watch(assetType domain.AssetType, symbol string) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return
	}
	if assetType == "" {
		assetType = domain.AssetStock
	}
	p.mu.Lock()
	p.watched[symbol] = assetType
	p.mu.Unlock()
}

func (p *Poller) Unwatch(symbol string) {
	symbol = strings.ToUpper(symbol)
	p.mu.Lock()
	delete(p.watched, symbol)
	p.mu.Unlock()
	p.board.Clear(symbol)
}

// Watched returns the watched symbols, sorted.
func (p *Poller) Watched() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.watched))
	for s := range p.watched {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (p *Poller) groups() map[domain.AssetType][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[domain.AssetType][]string)
	for s, t := range p.watched {
		out[t] = append(out[t], s)
	}
	for t := range out {
		sort.Strings(out[t])
	}
	return out
}

// Poll fetches every watched symbol once, batched per asset type. When a
// batch call fails each symbol is fetched on its own.
func (p *Poller) Poll(ctx context.Context) {
	for assetType, symbols := range p.groups() {
		quotes, err := p.fetcher.Quotes(ctx, assetType, symbols)
		if err != nil {
			p.logger.Warn("batch price fetch failed", "type", assetType, "symbols", len(symbols), "err", err)
			quotes = make(map[string]domain.PriceQuote, len(symbols))
			for _, s := range symbols {
				q, err := p.fetcher.Quote(ctx, assetType, s)
				if err != nil {
					continue
				}
				quotes[strings.ToUpper(q.Symbol)] = q
			}
		}
		for _, s := range symbols {
			q, ok := quotes[s]
			if !ok || !q.Price.IsPositive() {
				p.logger.Warn("price unavailable", "symbol", s, "type", assetType)
				p.board.Clear(s)
				p.metrics.PricePoll("failed")
				continue
			}
			q.Symbol = s
			p.accept(ctx, q)
		}
	}
}

func (p *Poller) accept(ctx context.Context, q domain.PriceQuote) {
	at := p.now()
	p.board.Set(q, at)
	p.metrics.PricePoll("ok")
	if p.store != nil {
		if err := p.store.SetLastPrice(ctx, Quote{PriceQuote: q, FetchedAt: at}); err != nil {
			p.logger.Warn("store last price", "symbol", q.Symbol, "err", err)
		}
	}
	if p.broker == nil {
		return
	}
	payload, err := json.Marshal(q)
	if err != nil {
		p.logger.Error("marshal quote", "symbol", q.Symbol, "err", err)
		return
	}
	if err := p.broker.Publish(ctx, PriceTopic(q.Symbol), payload); err != nil {
		p.logger.Warn("publish quote", "symbol", q.Symbol, "err", err)
	}
}

// Run polls immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p.logger.Info("price poller started", "interval", interval)
	p.Poll(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("price poller stopped")
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}
