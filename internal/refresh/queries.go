// Package refresh keeps the client's cached view of the execution service
// consistent with its writes. Reads go through a TTL cache; every
// acknowledged mutation invalidates the keys its plan names and refetches
// the ones a caller has already observed.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/singleflight"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/metrics"
)

type StaleTimes struct {
	Account     time.Duration `yaml:"account"`
	Portfolios  time.Duration `yaml:"portfolios"`
	Portfolio   time.Duration `yaml:"portfolio"`
	Orders      time.Duration `yaml:"orders"`
	Conditional time.Duration `yaml:"conditional"`
	Watchlist   time.Duration `yaml:"watchlist"`
	Assets      time.Duration `yaml:"assets"`
	Price       time.Duration `yaml:"price"`
}

func DefaultStaleTimes() StaleTimes {
	return StaleTimes{
		Account:     10 * time.Second,
		Portfolios:  30 * time.Second,
		Portfolio:   15 * time.Second,
		Orders:      30 * time.Second,
		Conditional: 10 * time.Second,
		Watchlist:   30 * time.Second,
		Assets:      15 * time.Second,
		Price:       5 * time.Second,
	}
}

// For returns how long a value read under k stays fresh.
func (s StaleTimes) For(k Key) time.Duration {
	switch {
	case k == KeyAccount:
		return s.Account
	case k == KeyPortfolios:
		return s.Portfolios
	case strings.HasPrefix(string(k), "portfolio/"):
		return s.Portfolio
	case k.Matches(KeyLimitOrders, false), k.Matches(KeyStopOrders, false):
		return s.Conditional
	case k == KeyOrders, strings.HasPrefix(string(k), "orders-portfolio/"):
		return s.Orders
	case k.Matches(KeyWatchlist, false):
		return s.Watchlist
	case k.Matches(KeyAssets, false):
		return s.Assets
	case k.Matches(KeyPrice, false):
		return s.Price
	}
	return s.Account
}

// Result is what a read resolves to. Stale is set when the key was
// invalidated while the read was in flight; the value was not cached.
type Result[T any] struct {
	Value     T
	Stale     bool
	Cached    bool
	FetchedAt time.Time
}

type Options struct {
	Stale StaleTimes
	// Subject names the session the cache belongs to. Keys of different
	// subjects never collide in a shared store.
	Subject     func(context.Context) string
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	MaxTries    uint
	MaxElapsed  time.Duration
	Concurrency int
}

type observer struct {
	key     Key
	refetch func(context.Context) error
}

type Queries struct {
	store       Store
	stale       StaleTimes
	subject     func(context.Context) string
	logger      *slog.Logger
	metrics     *metrics.Metrics
	maxTries    uint
	maxElapsed  time.Duration
	concurrency int

	group    singleflight.Group
	mu       sync.Mutex
	observed map[string]observer
}

func New(store Store, opts Options) *Queries {
	if opts.Stale == (StaleTimes{}) {
		opts.Stale = DefaultStaleTimes()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxTries == 0 {
		opts.MaxTries = 4
	}
	if opts.MaxElapsed == 0 {
		opts.MaxElapsed = 10 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Queries{
		store:       store,
		stale:       opts.Stale,
		subject:     opts.Subject,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		maxTries:    opts.MaxTries,
		maxElapsed:  opts.MaxElapsed,
		concurrency: opts.Concurrency,
		observed:    make(map[string]observer),
	}
}

func (q *Queries) namespace(ctx context.Context, k Key) string {
	subject := "anon"
	if q.subject != nil {
		if s := q.subject(ctx); s != "" {
			subject = s
		}
	}
	return subject + ":" + string(k)
}

func (q *Queries) observe(nk string, o observer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.observed[nk] = o
}

func (q *Queries) forget(nk string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for k := range q.observed {
		if MatchKey(k, nk, false) {
			delete(q.observed, k)
		}
	}
}

func (q *Queries) matching(nk string, exact bool) []observer {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []observer
	for k, o := range q.observed {
		if MatchKey(k, nk, exact) {
			out = append(out, o)
		}
	}
	return out
}

// Fetch serves key from the cache while it is fresh and otherwise calls
// fetch. Concurrent misses on the same key and generation share one call.
func Fetch[T any](ctx context.Context, q *Queries, key Key, fetch func(context.Context) (T, error)) (Result[T], error) {
	nk := q.namespace(ctx, key)
	q.observe(nk, observer{key: key, refetch: func(ctx context.Context) error {
		_, err := load(ctx, q, key, nk, fetch)
		return err
	}})

	e, ok, err := q.store.Get(ctx, nk)
	if err != nil {
		q.logger.Warn("cache read failed", "key", nk, "err", err)
	}
	if ok && time.Since(e.FetchedAt) < q.stale.For(key) {
		var v T
		if err := json.Unmarshal(e.Value, &v); err == nil {
			q.metrics.CacheRead("hit")
			return Result[T]{Value: v, Cached: true, FetchedAt: e.FetchedAt}, nil
		}
		q.logger.Warn("cache entry unreadable", "key", nk)
	}
	q.metrics.CacheRead("miss")
	return load(ctx, q, key, nk, fetch)
}

func load[T any](ctx context.Context, q *Queries, key Key, nk string, fetch func(context.Context) (T, error)) (Result[T], error) {
	gen, err := q.store.Generation(ctx, nk)
	if err != nil {
		return Result[T]{}, fmt.Errorf("cache generation %s: %w", key, err)
	}
	v, err, _ := q.group.Do(nk+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		val, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		now := time.Now()
		data, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		wrote, err := q.store.PutIfGeneration(ctx, nk, Entry{Value: data, FetchedAt: now, Generation: gen})
		if err != nil {
			q.logger.Warn("cache write failed", "key", nk, "err", err)
		}
		if !wrote {
			q.metrics.CacheRead("stale")
		}
		return Result[T]{Value: val, Stale: !wrote, FetchedAt: now}, nil
	})
	if err != nil {
		return Result[T]{}, err
	}
	return v.(Result[T]), nil
}

// Apply runs the invalidation plan for m and then refetches, concurrently,
// every observed key the plan covers. Each refetch is retried with
// exponential backoff while its error is transient.
func (q *Queries) Apply(ctx context.Context, m Mutation) error {
	plan := PlanFor(m)
	seen := make(map[Key]bool)
	var refetch []observer
	for _, t := range plan {
		nk := q.namespace(ctx, t.Key)
		if t.Drop {
			if err := q.store.Drop(ctx, nk); err != nil {
				return fmt.Errorf("drop %s: %w", t.Key, err)
			}
			q.forget(nk)
			continue
		}
		if _, err := q.store.Invalidate(ctx, nk, t.Exact); err != nil {
			return fmt.Errorf("invalidate %s: %w", t.Key, err)
		}
		for _, o := range q.matching(nk, t.Exact) {
			if !seen[o.key] {
				seen[o.key] = true
				refetch = append(refetch, o)
			}
		}
	}
	q.logger.Debug("cache invalidated", "mutation", m.Kind, "keys", Keys(plan), "refetch", len(refetch))

	p := pool.New().WithContext(ctx).WithMaxGoroutines(q.concurrency)
	for _, o := range refetch {
		p.Go(func(ctx context.Context) error {
			return q.retry(ctx, o)
		})
	}
	return p.Wait()
}

func (q *Queries) retry(ctx context.Context, o observer) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := o.refetch(ctx)
		if err != nil && !domain.IsTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(q.maxTries), backoff.WithMaxElapsedTime(q.maxElapsed))
	if err != nil {
		q.metrics.Refetch("failed")
		q.logger.Warn("refetch failed", "key", o.key, "err", err)
		return fmt.Errorf("refetch %s: %w", o.key, err)
	}
	q.metrics.Refetch("ok")
	return nil
}

// Observed lists the keys read so far under the subject of ctx.
func (q *Queries) Observed(ctx context.Context) []Key {
	prefix := q.namespace(ctx, "")
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []Key
	for k, o := range q.observed {
		if strings.HasPrefix(k, prefix) {
			out = append(out, o.key)
		}
	}
	return out
}

// Reset forgets everything observed under the current subject, used when
// the session ends.
func (q *Queries) Reset(ctx context.Context) error {
	prefix := q.namespace(ctx, "")
	q.mu.Lock()
	var keys []string
	for k := range q.observed {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
			delete(q.observed, k)
		}
	}
	q.mu.Unlock()
	for _, k := range keys {
		if err := q.store.Drop(ctx, k); err != nil {
			return fmt.Errorf("drop %s: %w", k, err)
		}
	}
	return nil
}
