package pricefeed

import (
	"context"
	"strings"
	"sync"
)

// Broker fans messages out to subscribers by topic. Subscriptions end when
// their context is done; the channel is then closed.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (<-chan []byte, error)
}

// QuoteStore shares the last quote per symbol between client processes.
// Quotes keep the time they were fetched so readers can judge their age.
type QuoteStore interface {
	SetLastPrice(ctx context.Context, q Quote) error
	GetLastPrice(ctx context.Context, symbol string) (*Quote, error)
}

func PriceTopic(symbol string) string { return "prices." + strings.ToUpper(symbol) }

func OrdersTopic(subject string) string { return "orders." + subject }

// MemoryBroker is the in-process Broker. Slow subscribers drop messages
// rather than block publishers.
type MemoryBroker struct {
	mu     sync.Mutex
	subs   map[string]map[chan []byte]struct{}
	buffer int
}

func NewMemoryBroker(buffer int) *MemoryBroker {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryBroker{subs: make(map[string]map[chan []byte]struct{}), buffer: buffer}
}

func (b *MemoryBroker) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[topic] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	ch := make(chan []byte, b.buffer)
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[chan []byte]struct{})
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[topic], ch)
		if len(b.subs[topic]) == 0 {
			delete(b.subs, topic)
		}
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}
