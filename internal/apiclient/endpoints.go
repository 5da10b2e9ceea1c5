package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
)

func (c *Client) Me(ctx context.Context) (domain.Account, error) {
	return do[domain.Account](ctx, c, http.MethodGet, "/users/me", nil, nil)
}

func (c *Client) Deposit(ctx context.Context, amount decimal.Decimal) (domain.Account, error) {
	return do[domain.Account](ctx, c, http.MethodPost, "/users/cash/deposit", nil, domain.CashRequest{Amount: amount})
}

func (c *Client) Withdraw(ctx context.Context, amount decimal.Decimal) (domain.Account, error) {
	return do[domain.Account](ctx, c, http.MethodPost, "/users/cash/withdraw", nil, domain.CashRequest{Amount: amount})
}

func (c *Client) Logout(ctx context.Context) error {
	_, err := do[struct{}](ctx, c, http.MethodPost, "/auth/logout", nil, nil)
	return err
}

func (c *Client) Portfolios(ctx context.Context) ([]domain.Portfolio, error) {
	return do[[]domain.Portfolio](ctx, c, http.MethodGet, "/portfolios", nil, nil)
}

func (c *Client) Portfolio(ctx context.Context, id int64) (domain.Portfolio, error) {
	return do[domain.Portfolio](ctx, c, http.MethodGet, fmt.Sprintf("/portfolios/%d", id), nil, nil)
}

func (c *Client) CreatePortfolio(ctx context.Context, req domain.CreatePortfolioRequest) (domain.Portfolio, error) {
	return do[domain.Portfolio](ctx, c, http.MethodPost, "/portfolios", nil, req)
}

func (c *Client) DeletePortfolio(ctx context.Context, id int64) error {
	_, err := do[struct{}](ctx, c, http.MethodDelete, fmt.Sprintf("/portfolios/%d", id), nil, nil)
	return err
}

func (c *Client) Orders(ctx context.Context) ([]domain.Order, error) {
	return do[[]domain.Order](ctx, c, http.MethodGet, "/orders", nil, nil)
}

func (c *Client) PortfolioOrders(ctx context.Context, portfolioID int64) ([]domain.Order, error) {
	return do[[]domain.Order](ctx, c, http.MethodGet, fmt.Sprintf("/orders/portfolio/%d", portfolioID), nil, nil)
}

func (c *Client) Order(ctx context.Context, id int64) (domain.Order, error) {
	return do[domain.Order](ctx, c, http.MethodGet, fmt.Sprintf("/orders/%d", id), nil, nil)
}

func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	return do[domain.Order](ctx, c, http.MethodPost, "/orders", nil, req)
}

func statusQuery(status string) url.Values {
	if status == "" {
		return nil
	}
	return url.Values{"status": {status}}
}

func (c *Client) LimitOrders(ctx context.Context, status domain.LimitOrderStatus) ([]domain.LimitOrder, error) {
	return do[[]domain.LimitOrder](ctx, c, http.MethodGet, "/limit-orders", statusQuery(string(status)), nil)
}

func (c *Client) PlaceLimitOrder(ctx context.Context, req domain.LimitOrderRequest) (domain.LimitOrder, error) {
	return do[domain.LimitOrder](ctx, c, http.MethodPost, "/limit-orders", nil, req)
}

func (c *Client) CancelLimitOrder(ctx context.Context, id int64) (domain.LimitOrder, error) {
	return do[domain.LimitOrder](ctx, c, http.MethodPost, fmt.Sprintf("/limit-orders/%d/cancel", id), nil, nil)
}

func (c *Client) StopOrders(ctx context.Context, status domain.StopOrderStatus) ([]domain.StopOrder, error) {
	return do[[]domain.StopOrder](ctx, c, http.MethodGet, "/stop-orders", statusQuery(string(status)), nil)
}

func (c *Client) PlaceStopOrder(ctx context.Context, req domain.StopOrderRequest) (domain.StopOrder, error) {
	return do[domain.StopOrder](ctx, c, http.MethodPost, "/stop-orders", nil, req)
}

func (c *Client) CancelStopOrder(ctx context.Context, id int64) (domain.StopOrder, error) {
	return do[domain.StopOrder](ctx, c, http.MethodPost, fmt.Sprintf("/stop-orders/%d/cancel", id), nil, nil)
}

// Assets lists tradable assets. filter is "", "stocks" or "crypto".
func (c *Client) Assets(ctx context.Context, filter string) ([]domain.Asset, error) {
	path := "/assets"
	switch strings.ToLower(filter) {
	case "stock", "stocks":
		path = "/assets/stocks"
	case "crypto":
		path = "/assets/crypto"
	case "":
	default:
		return nil, domain.Invalid(domain.ReasonInvalidFilter, "unknown asset filter %q", filter)
	}
	return do[[]domain.Asset](ctx, c, http.MethodGet, path, nil, nil)
}

func (c *Client) Asset(ctx context.Context, symbol string) (domain.Asset, error) {
	return do[domain.Asset](ctx, c, http.MethodGet, "/assets/"+url.PathEscape(strings.ToUpper(symbol)), nil, nil)
}

func (c *Client) Quote(ctx context.Context, assetType domain.AssetType, symbol string) (domain.PriceQuote, error) {
	path := fmt.Sprintf("/prices/%s/%s", assetType.Path(), url.PathEscape(strings.ToUpper(symbol)))
	return do[domain.PriceQuote](ctx, c, http.MethodGet, path, nil, nil)
}

// Quotes fetches several symbols of one type in a single call.
func (c *Client) Quotes(ctx context.Context, assetType domain.AssetType, symbols []string) (map[string]domain.PriceQuote, error) {
	upper := make([]string, len(symbols))
	for i, s := range symbols {
		upper[i] = strings.ToUpper(s)
	}
	return do[map[string]domain.PriceQuote](ctx, c, http.MethodPost, "/prices/batch",
		url.Values{"type": {string(assetType)}}, upper)
}

// Window selects a history range and its sampling.
type Window struct {
	From time.Time
	To   time.Time
	// Resolution is a stock candle resolution ("1", "5", "60", "D", ...) or
	// a crypto granularity in seconds.
	Resolution string
}

// DefaultWindow is a day of hourly crypto candles or a month of daily
// stock candles, ending at now.
func DefaultWindow(assetType domain.AssetType, now time.Time) Window {
	if assetType == domain.AssetCrypto {
		return Window{From: now.Add(-24 * time.Hour), To: now, Resolution: "3600"}
	}
	return Window{From: now.AddDate(0, 0, -30), To: now, Resolution: "D"}
}

func (c *Client) PriceHistory(ctx context.Context, assetType domain.AssetType, symbol string, w Window) ([]domain.PriceQuote, error) {
	if w.To.IsZero() {
		w = DefaultWindow(assetType, time.Now())
	}
	def := DefaultWindow(assetType, w.To)
	if w.From.IsZero() {
		w.From = def.From
	}
	if w.Resolution == "" {
		w.Resolution = def.Resolution
	}
	param := "resolution"
	if assetType == domain.AssetCrypto {
		param = "granularity"
	}
	q := url.Values{
		param:  {w.Resolution},
		"from": {strconv.FormatInt(w.From.Unix(), 10)},
		"to":   {strconv.FormatInt(w.To.Unix(), 10)},
	}
	path := fmt.Sprintf("/prices/%s/%s/history", assetType.Path(), url.PathEscape(strings.ToUpper(symbol)))
	return do[[]domain.PriceQuote](ctx, c, http.MethodGet, path, q, nil)
}

func (c *Client) Watchlist(ctx context.Context) ([]domain.WatchlistItem, error) {
	return do[[]domain.WatchlistItem](ctx, c, http.MethodGet, "/watchlist", nil, nil)
}

func (c *Client) Watch(ctx context.Context, symbol string) (domain.WatchlistItem, error) {
	return do[domain.WatchlistItem](ctx, c, http.MethodPost, "/watchlist/"+url.PathEscape(strings.ToUpper(symbol)), nil, nil)
}

func (c *Client) Unwatch(ctx context.Context, symbol string) error {
	_, err := do[struct{}](ctx, c, http.MethodDelete, "/watchlist/"+url.PathEscape(strings.ToUpper(symbol)), nil, nil)
	return err
}

func (c *Client) WatchlistContains(ctx context.Context, symbol string) (bool, error) {
	res, err := do[struct {
		InWatchlist bool `json:"inWatchlist"`
	}](ctx, c, http.MethodGet, "/watchlist/check/"+url.PathEscape(strings.ToUpper(symbol)), nil, nil)
	return res.InWatchlist, err
}
