package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/pricefeed"
)

const lastPriceTTL = 60 * time.Second

// PriceRepo is the shared price board: the last quote per symbol under
// last_price:SYMBOL and pub/sub fan-out for any topic. It implements
// pricefeed.Broker and pricefeed.QuoteStore.
type PriceRepo struct {
	client *redis.Client
}

func NewPriceRepo(client *redis.Client) *PriceRepo {
	return &PriceRepo{client: client}
}

func lastPriceKey(symbol string) string { return "last_price:" + strings.ToUpper(symbol) }

func (r *PriceRepo) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := r.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

// SetLastPrice stores q with its fetch time, stamping now when it has none.
func (r *PriceRepo) SetLastPrice(ctx context.Context, q pricefeed.Quote) error {
	if q.FetchedAt.IsZero() {
		q.FetchedAt = time.Now()
	}
	data, err := json.Marshal(q)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, lastPriceKey(q.Symbol), data, lastPriceTTL).Err(); err != nil {
		return fmt.Errorf("redis set last price: %w", err)
	}
	return nil
}

func (r *PriceRepo) GetLastPrice(ctx context.Context, symbol string) (*pricefeed.Quote, error) {
	val, err := r.client.Get(ctx, lastPriceKey(symbol)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get last price: %w", err)
	}
	var q pricefeed.Quote
	if err := json.Unmarshal(val, &q); err != nil {
		return nil, fmt.Errorf("decode last price: %w", err)
	}
	return &q, nil
}

// Subscribe relays messages on topic until ctx is done.
func (r *PriceRepo) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	sub := r.client.Subscribe(ctx, topic)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", topic, err)
	}
	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
				}
			}
		}
	}()
	return out, nil
}
