package gateway

import (
	"context"
	"log/slog"

	"github.com/goccy/go-json"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/auth"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/execution"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/pricefeed"
)

// TransitionNotifier publishes tracker transitions on the session's orders
// topic, where websocket clients subscribed to "orders" receive them.
func TransitionNotifier(broker pricefeed.Broker, session *auth.Session, logger *slog.Logger) func(execution.Transition) {
	return func(t execution.Transition) {
		subject := session.Subject()
		if subject == "" {
			return
		}
		data, err := json.Marshal(t)
		if err != nil {
			logger.Warn("encode transition", "order", t.OrderID, "err", err)
			return
		}
		if err := broker.Publish(context.Background(), pricefeed.OrdersTopic(subject), data); err != nil {
			logger.Warn("publish transition", "order", t.OrderID, "err", err)
		}
	}
}
