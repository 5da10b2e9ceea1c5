package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/refresh"
)

// CacheRepo is a refresh.Store shared between client processes. Entries
// live under PREFIX:entry:KEY; generations are fields of the PREFIX:gen hash.
type CacheRepo struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewCacheRepo(client *redis.Client, prefix string, ttl time.Duration) *CacheRepo {
	if prefix == "" {
		prefix = "tradeclient"
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CacheRepo{client: client, prefix: prefix, ttl: ttl}
}

func (r *CacheRepo) genKey() string             { return r.prefix + ":gen" }
func (r *CacheRepo) entryKey(key string) string { return r.prefix + ":entry:" + key }
func (r *CacheRepo) entryPrefix() string        { return r.prefix + ":entry:" }

var putIfGeneration = redis.NewScript(`
local g = redis.call('HGET', KEYS[1], ARGV[1])
if not g then g = '0' end
if g ~= ARGV[2] then return 0 end
redis.call('SET', KEYS[2], ARGV[3], 'PX', ARGV[4])
return 1
`)

// ARGV: key, exact ("1"/"0"), entry prefix.
var invalidate = redis.NewScript(`
local key = ARGV[1]
local exact = ARGV[2] == '1'
redis.call('HSETNX', KEYS[1], key, 0)
local touched = {}
for _, k in ipairs(redis.call('HKEYS', KEYS[1])) do
  if k == key or (not exact and string.sub(k, 1, #key + 1) == key .. '/') then
    redis.call('HINCRBY', KEYS[1], k, 1)
    redis.call('DEL', ARGV[3] .. k)
    table.insert(touched, k)
  end
end
return touched
`)

func (r *CacheRepo) Get(ctx context.Context, key string) (refresh.Entry, bool, error) {
	data, err := r.client.Get(ctx, r.entryKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return refresh.Entry{}, false, nil
		}
		return refresh.Entry{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var e refresh.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return refresh.Entry{}, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return e, true, nil
}

func (r *CacheRepo) Generation(ctx context.Context, key string) (uint64, error) {
	pipe := r.client.TxPipeline()
	pipe.HSetNX(ctx, r.genKey(), key, 0)
	get := pipe.HGet(ctx, r.genKey(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis generation %s: %w", key, err)
	}
	g, err := strconv.ParseUint(get.Val(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse generation %s: %w", key, err)
	}
	return g, nil
}

func (r *CacheRepo) PutIfGeneration(ctx context.Context, key string, e refresh.Entry) (bool, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return false, err
	}
	n, err := putIfGeneration.Run(ctx, r.client,
		[]string{r.genKey(), r.entryKey(key)},
		key, strconv.FormatUint(e.Generation, 10), data, r.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis put %s: %w", key, err)
	}
	return n == 1, nil
}

func (r *CacheRepo) Invalidate(ctx context.Context, key string, exact bool) ([]string, error) {
	flag := "0"
	if exact {
		flag = "1"
	}
	touched, err := invalidate.Run(ctx, r.client, []string{r.genKey()}, key, flag, r.entryPrefix()).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("redis invalidate %s: %w", key, err)
	}
	return touched, nil
}

func (r *CacheRepo) Drop(ctx context.Context, key string) error {
	_, err := r.Invalidate(ctx, key, false)
	return err
}
