package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/auth"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/pricefeed"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	subject string
	token   string
	lookup  *pricefeed.Debouncer
	logger  *slog.Logger

	// closed is owned by the hub's Run goroutine.
	closed bool
}

// wsMessage subscribes to price ticks by symbol, or to "orders" for the
// lifecycle transitions of the session's orders. Action "lookup" resolves
// the first symbol as it is being typed.
type wsMessage struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
	Type    string   `json:"type"`
	Topics  []string `json:"topics"`
}

func (c *Client) topics(msg wsMessage) []string {
	var out []string
	for _, sym := range msg.Symbols {
		if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
			out = append(out, pricefeed.PriceTopic(sym))
		}
	}
	for _, t := range msg.Topics {
		if t == "orders" && c.subject != "" {
			out = append(out, pricefeed.OrdersTopic(c.subject))
		}
	}
	return out
}

func (c *Client) readPump() {
	defer func() {
		if c.lookup != nil {
			c.lookup.Stop()
		}
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Action == "lookup" {
			c.typed(msg)
			continue
		}
		if msg.Action == "subscribe" && c.hub.watcher != nil {
			for _, sym := range msg.Symbols {
				c.hub.watcher.Watch(domain.ParseAssetType(msg.Type), sym)
			}
		}
		for _, topic := range c.topics(msg) {
			switch msg.Action {
			case "subscribe":
				c.hub.subscribe <- subscription{client: c, topic: topic}
			case "unsubscribe":
				c.hub.unsubscribe <- subscription{client: c, topic: topic}
			}
		}
	}
}

func (c *Client) typed(msg wsMessage) {
	if c.lookup == nil {
		return
	}
	symbol := ""
	if len(msg.Symbols) > 0 {
		symbol = msg.Symbols[0]
	}
	ctx := context.Background()
	if c.token != "" {
		ctx = auth.WithToken(ctx, c.token)
	}
	c.lookup.Type(ctx, domain.ParseAssetType(msg.Type), symbol, func(q domain.PriceQuote, err error) {
		f := frame{Topic: "lookup"}
		if err != nil {
			f.Error = err.Error()
		} else if f.Data, err = json.Marshal(q); err != nil {
			return
		}
		data, err := json.Marshal(f)
		if err != nil {
			return
		}
		select {
		case c.hub.direct <- direct{client: c, data: data}:
		default:
		}
	})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS upgrades the connection. Browsers cannot set headers on a
// websocket handshake, so a token may come as ?token=.
func ServeWS(hub *Hub, session *auth.Session, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token != "" && session != nil {
			if !session.Valid(token) {
				session.ExpireToken(token)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			session.Bind(token)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("ws upgrade failed", "err", err)
			return
		}
		client := &Client{
			hub:    hub,
			conn:   conn,
			send:   make(chan []byte, 256),
			token:  token,
			logger: logger,
		}
		if session != nil {
			ctx := r.Context()
			if token != "" {
				ctx = auth.WithToken(ctx, token)
			}
			client.subject = session.SubjectFor(ctx)
		}
		if hub.lookup != nil {
			client.lookup = pricefeed.NewDebouncer(hub.lookup, hub.debounce)
		}
		hub.register <- client
		go client.writePump()
		go client.readPump()
	}
}
