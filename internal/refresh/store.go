package refresh

import (
	"context"
	"time"
)

// Entry is one cached value. Value holds the JSON encoding of the read's
// result; Generation is the key's generation when the read started.
type Entry struct {
	Value      []byte    `json:"value"`
	FetchedAt  time.Time `json:"fetchedAt"`
	Generation uint64    `json:"generation"`
}

// Store is the cache behind Queries. Keys passed to a Store are already
// namespaced by session subject.
//
// Every Invalidate or Drop bumps the generation of each matching key, so a
// read that started before it can detect that its result is out of date.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Generation(ctx context.Context, key string) (uint64, error)
	// PutIfGeneration writes e only when e.Generation is still the key's
	// current generation, and reports whether it wrote.
	PutIfGeneration(ctx context.Context, key string, e Entry) (bool, error)
	// Invalidate bumps and clears key, and with exact false every key below
	// it. It returns the keys it touched.
	Invalidate(ctx context.Context, key string, exact bool) ([]string, error)
	Drop(ctx context.Context, key string) error
}

// MatchKey is Key.Matches for namespaced store keys.
func MatchKey(key, target string, exact bool) bool {
	return Key(key).Matches(Key(target), exact)
}
