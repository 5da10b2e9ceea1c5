package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
)

func TestKeyMatches(t *testing.T) {
	tests := []struct {
		key, target Key
		exact       bool
		want        bool
	}{
		{"limit-orders/PENDING", KeyLimitOrders, false, true},
		{"limit-orders", KeyLimitOrders, false, true},
		{"portfolio/10", PortfolioKey(1), false, false},
		{"portfolios", "portfolio", false, false},
		{"watchlist/check/AAPL", KeyWatchlist, true, false},
		{"watchlist", KeyWatchlist, true, true},
	}
	for _, tt := range tests {
		if got := tt.key.Matches(tt.target, tt.exact); got != tt.want {
			t.Errorf("%q.Matches(%q, %v) = %v, want %v", tt.key, tt.target, tt.exact, got, tt.want)
		}
	}
}

func TestPlanFor(t *testing.T) {
	plan := PlanFor(Mutation{Kind: PlaceOrder, PortfolioID: 3})
	want := []string{"me", "portfolios", "portfolio/3", "orders-portfolio/3", "orders", "limit-orders", "stop-orders"}
	got := Keys(plan)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("plan[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	if got := Keys(PlanFor(Mutation{Kind: Deposit})); len(got) != 1 || got[0] != "me" {
		t.Errorf("deposit plan = %v, want [me]", got)
	}

	del := PlanFor(Mutation{Kind: DeletePortfolio, PortfolioID: 9})
	if !del[1].Drop || del[1].Key != "portfolio/9" {
		t.Errorf("delete plan = %+v, want drop of portfolio/9", del)
	}

	watch := PlanFor(Mutation{Kind: WatchAdd, Symbol: "aapl"})
	if !watch[0].Exact || watch[1].Key != "watchlist/check/AAPL" {
		t.Errorf("watch plan = %+v", watch)
	}
}

func TestMemoryStoreRejectsOldGeneration(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	gen, _ := s.Generation(ctx, "u:me")
	if _, err := s.Invalidate(ctx, "u:me", false); err != nil {
		t.Fatal(err)
	}
	wrote, err := s.PutIfGeneration(ctx, "u:me", Entry{Value: []byte("1"), Generation: gen})
	if err != nil {
		t.Fatal(err)
	}
	if wrote {
		t.Error("write with an invalidated generation must be refused")
	}
	cur, _ := s.Generation(ctx, "u:me")
	if wrote, _ := s.PutIfGeneration(ctx, "u:me", Entry{Value: []byte("2"), Generation: cur}); !wrote {
		t.Error("write with the current generation was refused")
	}
}

func TestMemoryStorePrefixInvalidation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, k := range []string{"u:limit-orders", "u:limit-orders/PENDING", "u:stop-orders"} {
		g, _ := s.Generation(ctx, k)
		_, _ = s.PutIfGeneration(ctx, k, Entry{Value: []byte("[]"), Generation: g})
	}
	touched, _ := s.Invalidate(ctx, "u:limit-orders", false)
	if len(touched) != 2 {
		t.Errorf("touched %v, want both limit-order keys", touched)
	}
	if _, ok, _ := s.Get(ctx, "u:stop-orders"); !ok {
		t.Error("stop-orders should not be touched")
	}
}

type counter struct {
	calls atomic.Int64
}

func (c *counter) fetch(v int) func(context.Context) (int, error) {
	return func(context.Context) (int, error) {
		c.calls.Add(1)
		return v, nil
	}
}

func TestFetchServesFreshValuesFromCache(t *testing.T) {
	ctx := context.Background()
	q := New(NewMemoryStore(), Options{})
	var c counter

	first, err := Fetch(ctx, q, KeyAccount, c.fetch(1))
	if err != nil {
		t.Fatal(err)
	}
	second, err := Fetch(ctx, q, KeyAccount, c.fetch(2))
	if err != nil {
		t.Fatal(err)
	}
	if first.Cached || !second.Cached {
		t.Errorf("cached flags = %v, %v; want false, true", first.Cached, second.Cached)
	}
	if second.Value != 1 || c.calls.Load() != 1 {
		t.Errorf("got %d after %d calls, want 1 after 1", second.Value, c.calls.Load())
	}
}

func TestFetchRefetchesAfterStaleTime(t *testing.T) {
	ctx := context.Background()
	stale := DefaultStaleTimes()
	stale.Account = time.Nanosecond
	q := New(NewMemoryStore(), Options{Stale: stale})
	var c counter
	_, _ = Fetch(ctx, q, KeyAccount, c.fetch(1))
	time.Sleep(time.Millisecond)
	got, _ := Fetch(ctx, q, KeyAccount, c.fetch(2))
	if got.Value != 2 {
		t.Errorf("got %d, want refetched 2", got.Value)
	}
}

func TestSubjectsDoNotShareEntries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	var subject atomic.Value
	subject.Store("1")
	q := New(store, Options{Subject: func(context.Context) string { return subject.Load().(string) }})
	var c counter
	_, _ = Fetch(ctx, q, KeyAccount, c.fetch(1))
	subject.Store("2")
	got, _ := Fetch(ctx, q, KeyAccount, c.fetch(2))
	if got.Value != 2 || got.Cached {
		t.Errorf("second subject saw %+v", got)
	}
}

func TestConcurrentMissesAreCoalesced(t *testing.T) {
	ctx := context.Background()
	q := New(NewMemoryStore(), Options{})
	release := make(chan struct{})
	var calls atomic.Int64
	fetch := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := Fetch(ctx, q, KeyPortfolios, fetch)
			if err == nil {
				results[i] = r.Value
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("fetch called %d times, want 1", n)
	}
	for i, v := range results {
		if v != 7 {
			t.Errorf("result[%d] = %d, want 7", i, v)
		}
	}
}

func TestInFlightReadIsFlaggedStaleAfterInvalidation(t *testing.T) {
	ctx := context.Background()
	q := New(NewMemoryStore(), Options{})

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int64
	fetch := func(context.Context) (int, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			return 1, nil
		}
		return 2, nil
	}

	done := make(chan Result[int], 1)
	go func() {
		r, _ := Fetch(ctx, q, KeyAccount, fetch)
		done <- r
	}()
	<-started

	if err := q.Apply(ctx, Mutation{Kind: Deposit}); err != nil {
		t.Fatal(err)
	}
	close(release)
	old := <-done

	if old.Value != 1 || !old.Stale {
		t.Errorf("in-flight read = %+v, want value 1 flagged stale", old)
	}
	now, err := Fetch(ctx, q, KeyAccount, fetch)
	if err != nil {
		t.Fatal(err)
	}
	if now.Value != 2 || !now.Cached {
		t.Errorf("after refetch got %+v, want cached 2", now)
	}
}

func TestApplyRefetchesObservedKeysOnly(t *testing.T) {
	ctx := context.Background()
	q := New(NewMemoryStore(), Options{})
	var acct, watch counter
	_, _ = Fetch(ctx, q, KeyAccount, acct.fetch(1))
	_, _ = Fetch(ctx, q, KeyWatchlist, watch.fetch(1))

	if err := q.Apply(ctx, Mutation{Kind: PlaceOrder, PortfolioID: 1}); err != nil {
		t.Fatal(err)
	}
	if acct.calls.Load() != 2 {
		t.Errorf("account fetched %d times, want 2", acct.calls.Load())
	}
	if watch.calls.Load() != 1 {
		t.Errorf("watchlist fetched %d times, want 1", watch.calls.Load())
	}
}

func TestApplyRetriesTransientErrors(t *testing.T) {
	ctx := context.Background()
	q := New(NewMemoryStore(), Options{MaxTries: 3})
	var calls atomic.Int64
	fetch := func(context.Context) (int, error) {
		n := calls.Add(1)
		if n == 2 {
			return 0, &domain.ServiceError{Status: 503}
		}
		return int(n), nil
	}
	_, _ = Fetch(ctx, q, KeyAccount, fetch)
	if err := q.Apply(ctx, Mutation{Kind: Withdraw}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("fetch called %d times, want 3", calls.Load())
	}
}

func TestApplyDoesNotRetryPermanentErrors(t *testing.T) {
	ctx := context.Background()
	q := New(NewMemoryStore(), Options{MaxTries: 5})
	var calls atomic.Int64
	fetch := func(context.Context) (int, error) {
		if calls.Add(1) > 1 {
			return 0, domain.ErrUnauthorized
		}
		return 1, nil
	}
	_, _ = Fetch(ctx, q, KeyAccount, fetch)
	err := q.Apply(ctx, Mutation{Kind: Deposit})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("err = %v, want unauthorized", err)
	}
	if calls.Load() != 2 {
		t.Errorf("fetch called %d times, want 2", calls.Load())
	}
}

func TestDeletePortfolioDropsItsKeys(t *testing.T) {
	ctx := context.Background()
	q := New(NewMemoryStore(), Options{})
	var p, list counter
	_, _ = Fetch(ctx, q, PortfolioKey(4), p.fetch(1))
	_, _ = Fetch(ctx, q, KeyPortfolios, list.fetch(1))

	if err := q.Apply(ctx, Mutation{Kind: DeletePortfolio, PortfolioID: 4}); err != nil {
		t.Fatal(err)
	}
	if p.calls.Load() != 1 {
		t.Errorf("deleted portfolio refetched %d times", p.calls.Load()-1)
	}
	if list.calls.Load() != 2 {
		t.Errorf("portfolio list fetched %d times, want 2", list.calls.Load())
	}
	for _, k := range q.Observed(ctx) {
		if k == PortfolioKey(4) {
			t.Error("dropped key is still observed")
		}
	}
}

func TestStaleTimesFor(t *testing.T) {
	s := DefaultStaleTimes()
	tests := []struct {
		key  Key
		want time.Duration
	}{
		{KeyAccount, 10 * time.Second},
		{KeyPortfolios, 30 * time.Second},
		{PortfolioKey(2), 15 * time.Second},
		{PortfolioOrdersKey(2), 30 * time.Second},
		{LimitOrdersKey("PENDING"), 10 * time.Second},
		{WatchlistCheckKey("btc"), 30 * time.Second},
		{AssetsKey("crypto"), 15 * time.Second},
	}
	for _, tt := range tests {
		if got := s.For(tt.key); got != tt.want {
			t.Errorf("For(%s) = %v, want %v", tt.key, got, tt.want)
		}
	}
}
