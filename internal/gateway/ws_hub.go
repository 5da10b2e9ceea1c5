package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/pricefeed"
)

// Watcher starts polling a symbol some client asked ticks for.
type Watcher interface {
	Watch(assetType domain.AssetType, symbol string)
}

type subscription struct {
	client *Client
	topic  string
}

type frame struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

type direct struct {
	client *Client
	data   []byte
}

type Hub struct {
	clients map[*Client]bool
	subs    map[string]map[*Client]bool
	cancels map[string]context.CancelFunc

	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscription
	unsubscribe chan subscription
	broadcast   chan frame
	direct      chan direct

	broker   pricefeed.Broker
	watcher  Watcher
	lookup   pricefeed.LookupFunc
	debounce time.Duration
	logger   *slog.Logger
}

func NewHub(broker pricefeed.Broker, watcher Watcher, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:     make(map[*Client]bool),
		subs:        make(map[string]map[*Client]bool),
		cancels:     make(map[string]context.CancelFunc),
		register:    make(chan *Client, 64),
		unregister:  make(chan *Client, 64),
		subscribe:   make(chan subscription, 64),
		unsubscribe: make(chan subscription, 64),
		broadcast:   make(chan frame, 256),
		direct:      make(chan direct, 64),
		broker:      broker,
		watcher:     watcher,
		logger:      logger,
	}
}

// WithLookup lets clients resolve a symbol as it is typed.
func (h *Hub) WithLookup(fn pricefeed.LookupFunc, debounce time.Duration) *Hub {
	h.lookup = fn
	h.debounce = debounce
	return h
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for _, cancel := range h.cancels {
				cancel()
			}
			return
		case client := <-h.register:
			if !client.closed {
				h.clients[client] = true
			}
		case client := <-h.unregister:
			// unregister may be dequeued before register
			if client.closed {
				continue
			}
			client.closed = true
			delete(h.clients, client)
			for topic := range h.subs {
				h.drop(client, topic)
			}
			close(client.send)
		case sub := <-h.subscribe:
			// register and subscribe may be dequeued in either order
			if sub.client.closed {
				continue
			}
			h.clients[sub.client] = true
			if _, ok := h.subs[sub.topic]; !ok {
				h.subs[sub.topic] = make(map[*Client]bool)
				subCtx, cancel := context.WithCancel(ctx)
				h.cancels[sub.topic] = cancel
				go h.pump(subCtx, sub.topic)
			}
			h.subs[sub.topic][sub.client] = true
		case sub := <-h.unsubscribe:
			h.drop(sub.client, sub.topic)
		case f := <-h.broadcast:
			h.fanOut(f)
		case d := <-h.direct:
			if h.clients[d.client] {
				select {
				case d.client.send <- d.data:
				default:
				}
			}
		}
	}
}

func (h *Hub) drop(client *Client, topic string) {
	clients, ok := h.subs[topic]
	if !ok {
		return
	}
	delete(clients, client)
	if len(clients) > 0 {
		return
	}
	if cancel, ok := h.cancels[topic]; ok {
		cancel()
		delete(h.cancels, topic)
	}
	delete(h.subs, topic)
}

func (h *Hub) pump(ctx context.Context, topic string) {
	ch, err := h.broker.Subscribe(ctx, topic)
	if err != nil {
		h.logger.Error("broker subscribe failed", "topic", topic, "err", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			select {
			case h.broadcast <- frame{Topic: topic, Data: msg}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (h *Hub) fanOut(f frame) {
	clients, ok := h.subs[f.Topic]
	if !ok {
		return
	}
	data, err := json.Marshal(f)
	if err != nil {
		h.logger.Warn("encode frame", "topic", f.Topic, "err", err)
		return
	}
	for client := range clients {
		select {
		case client.send <- data:
		default:
		}
	}
}
