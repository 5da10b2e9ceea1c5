package redis

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/pricefeed"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/refresh"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	client.Close()

	if _, err := Connect(context.Background(), "not a url"); err == nil {
		t.Error("expected parse error")
	}
}

func TestLastPriceRoundTrip(t *testing.T) {
	mr, client := newClient(t)
	repo := NewPriceRepo(client)
	ctx := context.Background()

	got, err := repo.GetLastPrice(ctx, "AAPL")
	if err != nil || got != nil {
		t.Fatalf("missing key: got %v, %v", got, err)
	}

	q := pricefeed.Quote{PriceQuote: domain.PriceQuote{Symbol: "AAPL", Price: decimal.RequireFromString("187.25")}}
	if err := repo.SetLastPrice(ctx, q); err != nil {
		t.Fatal(err)
	}
	got, err = repo.GetLastPrice(ctx, "aapl")
	if err != nil || got == nil {
		t.Fatalf("got %v, %v", got, err)
	}
	if !got.Price.Equal(q.Price) {
		t.Errorf("price = %s, want %s", got.Price, q.Price)
	}
	if got.FetchedAt.IsZero() {
		t.Error("stored quote lost its fetch time")
	}

	at := time.Now().Add(-30 * time.Second).Truncate(time.Second)
	if err := repo.SetLastPrice(ctx, pricefeed.Quote{PriceQuote: q.PriceQuote, FetchedAt: at}); err != nil {
		t.Fatal(err)
	}
	if got, _ = repo.GetLastPrice(ctx, "AAPL"); got == nil || !got.FetchedAt.Equal(at) {
		t.Errorf("fetched at = %v, want %v", got, at)
	}

	mr.FastForward(lastPriceTTL + time.Second)
	if got, _ := repo.GetLastPrice(ctx, "AAPL"); got != nil {
		t.Error("last price outlived its TTL")
	}
}

func TestPublishSubscribe(t *testing.T) {
	_, client := newClient(t)
	repo := NewPriceRepo(client)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := repo.Subscribe(ctx, "prices.BTC")
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Publish(ctx, "prices.BTC", []byte(`{"symbol":"BTC"}`)); err != nil {
		t.Fatal(err)
	}
	select {
	case msg := <-ch:
		if string(msg) != `{"symbol":"BTC"}` {
			t.Errorf("got %s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message")
	}

	cancel()
	select {
	case _, ok := <-ch:
		for ok {
			_, ok = <-ch
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestCacheGenerationCAS(t *testing.T) {
	_, client := newClient(t)
	store := NewCacheRepo(client, "test", time.Minute)
	ctx := context.Background()

	gen, err := store.Generation(ctx, "u1:me")
	if err != nil || gen != 0 {
		t.Fatalf("generation = %d, %v", gen, err)
	}
	ok, err := store.PutIfGeneration(ctx, "u1:me", refresh.Entry{Value: []byte(`1`), Generation: gen})
	if err != nil || !ok {
		t.Fatalf("put = %v, %v", ok, err)
	}
	e, found, err := store.Get(ctx, "u1:me")
	if err != nil || !found || string(e.Value) != "1" {
		t.Fatalf("get = %+v %v %v", e, found, err)
	}

	if _, err := store.Invalidate(ctx, "u1:me", true); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := store.Get(ctx, "u1:me"); found {
		t.Error("entry survived invalidation")
	}
	ok, err = store.PutIfGeneration(ctx, "u1:me", refresh.Entry{Value: []byte(`2`), Generation: gen})
	if err != nil || ok {
		t.Errorf("stale put accepted: %v, %v", ok, err)
	}
	if g, _ := store.Generation(ctx, "u1:me"); g != 1 {
		t.Errorf("generation = %d, want 1", g)
	}
}

func TestCachePrefixInvalidation(t *testing.T) {
	_, client := newClient(t)
	store := NewCacheRepo(client, "test", time.Minute)
	ctx := context.Background()

	for _, k := range []string{"u1:portfolios", "u1:portfolios/1", "u1:portfolios/12", "u1:portfoliosx", "u2:portfolios/1"} {
		if _, err := store.Generation(ctx, k); err != nil {
			t.Fatal(err)
		}
		if _, err := store.PutIfGeneration(ctx, k, refresh.Entry{Value: []byte(`[]`)}); err != nil {
			t.Fatal(err)
		}
	}

	touched, err := store.Invalidate(ctx, "u1:portfolios", false)
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(touched)
	want := []string{"u1:portfolios", "u1:portfolios/1", "u1:portfolios/12"}
	if len(touched) != len(want) {
		t.Fatalf("touched = %v, want %v", touched, want)
	}
	for i := range want {
		if touched[i] != want[i] {
			t.Errorf("touched[%d] = %s, want %s", i, touched[i], want[i])
		}
	}
	for _, k := range []string{"u1:portfoliosx", "u2:portfolios/1"} {
		if _, found, _ := store.Get(ctx, k); !found {
			t.Errorf("%s should not have been invalidated", k)
		}
	}
}

func TestCacheRepoBacksQueries(t *testing.T) {
	_, client := newClient(t)
	q := refresh.New(NewCacheRepo(client, "test", time.Minute), refresh.Options{
		Subject: func(context.Context) string { return "u1" },
	})
	ctx := context.Background()
	calls := 0
	fetch := func(context.Context) (int, error) { calls++; return 42, nil }

	for range 2 {
		res, err := refresh.Fetch(ctx, q, refresh.KeyAccount, fetch)
		if err != nil || res.Value != 42 {
			t.Fatalf("fetch = %+v, %v", res, err)
		}
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (second read cached)", calls)
	}
}
