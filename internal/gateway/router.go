package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/auth"
)

type RouterOptions struct {
	CORSOrigins []string
	Metrics     http.Handler
}

func NewRouter(h *Handlers, hub *Hub, session *auth.Session, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(session))

		r.Get("/dashboard", h.Dashboard)

		r.Get("/portfolios", h.ListPortfolios)
		r.Post("/portfolios", h.CreatePortfolio)
		r.Get("/portfolios/{id}", h.GetPortfolio)
		r.Delete("/portfolios/{id}", h.DeletePortfolio)

		r.Post("/tickets/derive", h.DeriveTicket)
		r.Post("/orders/preview", h.PreviewOrder)
		r.Post("/orders", h.CreateOrder)
		r.Get("/orders", h.GetOrders)
		r.Get("/limit-orders", h.GetLimitOrders)
		r.Post("/limit-orders/{id}/cancel", h.CancelLimitOrder)
		r.Get("/stop-orders", h.GetStopOrders)
		r.Post("/stop-orders/{id}/cancel", h.CancelStopOrder)

		r.Post("/cash/deposit", h.Deposit)
		r.Post("/cash/withdraw", h.Withdraw)

		r.Get("/watchlist", h.GetWatchlist)
		r.Get("/watchlist/check/{symbol}", h.WatchlistCheck)
		r.Post("/watchlist/{symbol}", h.Watch)
		r.Delete("/watchlist/{symbol}", h.Unwatch)

		r.Get("/assets", h.ListAssets)
		r.Get("/assets/{symbol}", h.GetAsset)
		r.Get("/prices/{type}/{symbol}", h.GetPrice)
		r.Get("/prices/{type}/{symbol}/history", h.GetPriceHistory)

		r.Get("/journal", h.GetJournal)
		r.Post("/auth/logout", h.Logout)
	})

	r.Get("/ws", ServeWS(hub, session, h.logger))

	return r
}
