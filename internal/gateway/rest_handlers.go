package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/account"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/apiclient"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/auth"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/execution"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/journal"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/pricefeed"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/quantity"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/refresh"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/valuation"
)

type Handlers struct {
	reader   *refresh.Reader
	client   *apiclient.Client
	orders   *execution.OrderService
	accounts *account.Service
	feed     *pricefeed.Feed
	board    *pricefeed.Board
	journal  journal.Recorder
	session  *auth.Session
	logger   *slog.Logger
}

func NewHandlers(
	reader *refresh.Reader,
	client *apiclient.Client,
	orders *execution.OrderService,
	accounts *account.Service,
	feed *pricefeed.Feed,
	board *pricefeed.Board,
	rec journal.Recorder,
	session *auth.Session,
	logger *slog.Logger,
) *Handlers {
	if rec == nil {
		rec = journal.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		reader:   reader,
		client:   client,
		orders:   orders,
		accounts: accounts,
		feed:     feed,
		board:    board,
		journal:  rec,
		session:  session,
		logger:   logger,
	}
}

type dashboard struct {
	Summary    valuation.AccountSummary `json:"summary"`
	Allocation []valuation.Weight       `json:"allocation"`
	Stale      bool                     `json:"stale"`
}

// loadPortfolios reads every portfolio with its holdings, keeping the
// order of the list.
func (h *Handlers) loadPortfolios(ctx context.Context) ([]domain.Portfolio, bool, error) {
	list, err := h.reader.Portfolios(ctx)
	if err != nil {
		return nil, false, err
	}
	p := pool.NewWithResults[refresh.Result[domain.Portfolio]]().WithContext(ctx).WithMaxGoroutines(4)
	for _, item := range list.Value {
		id := item.ID
		p.Go(func(ctx context.Context) (refresh.Result[domain.Portfolio], error) {
			return h.reader.Portfolio(ctx, id)
		})
	}
	results, err := p.Wait()
	if err != nil {
		return nil, false, err
	}
	byID := make(map[int64]refresh.Result[domain.Portfolio], len(results))
	stale := list.Stale
	for _, r := range results {
		byID[r.Value.ID] = r
		stale = stale || r.Stale
	}
	out := make([]domain.Portfolio, 0, len(list.Value))
	for _, item := range list.Value {
		pf, ok := byID[item.ID]
		if !ok {
			out = append(out, item)
			continue
		}
		v := pf.Value
		v.Holdings = valuation.WithPrices(v.Holdings, h.board.Lookup)
		out = append(out, v)
	}
	return out, stale, nil
}

func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	acct, err := h.accounts.Available(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	portfolios, stale, err := h.loadPortfolios(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	summary := valuation.Account(acct, portfolios)
	writeJSON(w, http.StatusOK, dashboard{
		Summary:    summary,
		Allocation: valuation.Allocation(portfolios, summary.NetWorth),
		Stale:      stale,
	})
}

func (h *Handlers) ListPortfolios(w http.ResponseWriter, r *http.Request) {
	res, err := h.reader.Portfolios(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Value)
}

func (h *Handlers) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	res, err := h.reader.Portfolio(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	p := res.Value
	p.Holdings = valuation.WithPrices(p.Holdings, h.board.Lookup)
	writeJSON(w, http.StatusOK, valuation.Portfolio(p))
}

func (h *Handlers) CreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePortfolioRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.accounts.CreatePortfolio(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handlers) DeletePortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.accounts.DeletePortfolio(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type deriveRequest struct {
	Kind        domain.OrderKind `json:"kind"`
	Side        domain.OrderSide `json:"side"`
	PortfolioID int64            `json:"portfolioId"`
	Symbol      string           `json:"symbol"`
	AssetType   domain.AssetType `json:"assetType"`
	TargetPrice decimal.Decimal  `json:"targetPrice"`
	Percent     *decimal.Decimal `json:"percent,omitempty"`
	Quantity    string           `json:"quantity,omitempty"`
	Quick       int              `json:"quick,omitempty"`
}

type deriveResponse struct {
	Form *quantity.Form  `json:"form"`
	Max  decimal.Decimal `json:"max"`
	Cost decimal.Decimal `json:"cost"`
	Hint execution.Hint  `json:"hint"`
}

// DeriveTicket turns a slider position, a quick button or typed quantity
// into a consistent ticket.
func (h *Handlers) DeriveTicket(w http.ResponseWriter, r *http.Request) {
	var req deriveRequest
	if !decode(w, r, &req) {
		return
	}
	pv, err := h.orders.Preview(r.Context(), execution.Ticket{
		Kind: req.Kind, Side: req.Side, PortfolioID: req.PortfolioID,
		Symbol: req.Symbol, AssetType: req.AssetType, Price: req.TargetPrice,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	t := pv.Ticket
	form := quantity.NewForm(t.Kind, t.Side, t.PortfolioID, t.Symbol)
	form.SetTargetPrice(req.TargetPrice)
	form.PrefillTarget(pv.LivePrice)
	form.SetLimits(quantity.Limits{
		AvailableCash: pv.Account.CashBalance,
		UnitPrice:     pv.LivePrice,
		Held:          pv.Held,
		Committed:     pv.Committed,
	})
	switch {
	case req.Quick != 0:
		err = form.Quick(req.Quick)
	case req.Percent != nil:
		form.SetPercent(*req.Percent)
	case req.Quantity != "":
		err = form.SetQuantity(req.Quantity)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deriveResponse{
		Form: form,
		Max:  form.Max(),
		Cost: form.Cost(),
		Hint: execution.PriceHint(form.Kind, form.Side, form.TargetPrice, pv.LivePrice),
	})
}

func (h *Handlers) PreviewOrder(w http.ResponseWriter, r *http.Request) {
	var t execution.Ticket
	if !decode(w, r, &t) {
		return
	}
	p, err := h.orders.Preview(r.Context(), t)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var t execution.Ticket
	if !decode(w, r, &t) {
		return
	}
	receipt, err := h.orders.Submit(r.Context(), t)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (h *Handlers) CancelLimitOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	o, err := h.orders.CancelLimit(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handlers) CancelStopOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	o, err := h.orders.CancelStop(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	var (
		res refresh.Result[[]domain.Order]
		err error
	)
	if raw := r.URL.Query().Get("portfolioId"); raw != "" {
		id, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			writeError(w, domain.Invalid(domain.ReasonMissingPortfolio, "invalid portfolio id %q", raw))
			return
		}
		res, err = h.reader.PortfolioOrders(r.Context(), id)
	} else {
		res, err = h.reader.Orders(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Value)
}

type limitView struct {
	domain.LimitOrder
	DistancePercent decimal.NullDecimal `json:"distancePercent"`
}

type stopView struct {
	domain.StopOrder
	NearTrigger bool `json:"nearTrigger"`
}

// livePrice prefers the board over the advisory price the service attached.
func (h *Handlers) livePrice(symbol string, advisory decimal.NullDecimal) decimal.NullDecimal {
	if p, ok := h.board.Lookup(symbol); ok {
		return decimal.NewNullDecimal(p)
	}
	if advisory.Valid && advisory.Decimal.IsPositive() {
		return advisory
	}
	return decimal.NullDecimal{}
}

func (h *Handlers) GetLimitOrders(w http.ResponseWriter, r *http.Request) {
	res, err := h.reader.LimitOrders(r.Context(), domain.LimitOrderStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]limitView, 0, len(res.Value))
	for _, o := range res.Value {
		v := limitView{LimitOrder: o}
		v.CurrentPrice = h.livePrice(o.Symbol, o.CurrentPrice)
		if v.CurrentPrice.Valid && o.Status == domain.LimitPending {
			v.DistancePercent = decimal.NewNullDecimal(
				valuation.Percent(v.CurrentPrice.Decimal.Sub(o.TargetPrice), o.TargetPrice).Round(2))
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) GetStopOrders(w http.ResponseWriter, r *http.Request) {
	res, err := h.reader.StopOrders(r.Context(), domain.StopOrderStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]stopView, 0, len(res.Value))
	for _, o := range res.Value {
		v := stopView{StopOrder: o}
		v.CurrentPrice = h.livePrice(o.Symbol, o.CurrentPrice)
		v.NearTrigger = o.Status == domain.StopPending && execution.StopNearTrigger(v.CurrentPrice.Decimal, o.StopPrice)
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) Deposit(w http.ResponseWriter, r *http.Request) {
	var req domain.CashRequest
	if !decode(w, r, &req) {
		return
	}
	acct, err := h.accounts.Deposit(r.Context(), req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *Handlers) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req domain.CashRequest
	if !decode(w, r, &req) {
		return
	}
	acct, err := h.accounts.Withdraw(r.Context(), req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *Handlers) GetWatchlist(w http.ResponseWriter, r *http.Request) {
	res, err := h.reader.Watchlist(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Value)
}

func (h *Handlers) Watch(w http.ResponseWriter, r *http.Request) {
	item, err := h.accounts.Watch(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handlers) Unwatch(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Unwatch(r.Context(), chi.URLParam(r, "symbol")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handlers) WatchlistCheck(w http.ResponseWriter, r *http.Request) {
	res, err := h.reader.WatchlistContains(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"inWatchlist": res.Value})
}

func (h *Handlers) ListAssets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	assets, err := h.accounts.SearchAssets(r.Context(), q.Get("filter"), q.Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assets)
}

func (h *Handlers) GetAsset(w http.ResponseWriter, r *http.Request) {
	a, err := h.client.Asset(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handlers) GetPrice(w http.ResponseWriter, r *http.Request) {
	assetType := domain.ParseAssetType(chi.URLParam(r, "type"))
	q, err := h.feed.Quote(r.Context(), assetType, chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// GetPriceHistory accepts from and to as unix seconds and resolution as
// the service's resolution or granularity; each defaults per asset type.
func (h *Handlers) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	assetType := domain.ParseAssetType(chi.URLParam(r, "type"))
	q := r.URL.Query()
	var win apiclient.Window
	for key, dst := range map[string]*time.Time{"from": &win.From, "to": &win.To} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		sec, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, domain.Invalid(domain.ReasonInvalidFilter, "%s must be unix seconds", key))
			return
		}
		*dst = time.Unix(sec, 0).UTC()
	}
	win.Resolution = q.Get("resolution")
	history, err := h.client.PriceHistory(r.Context(), assetType, chi.URLParam(r, "symbol"), win)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handlers) GetJournal(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	entries, err := h.journal.Recent(r.Context(), h.session.SubjectFor(r.Context()), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Logout(r.Context()); err != nil {
		h.logger.Warn("logout", "err", err)
	}
	writeJSON(w, http.StatusOK, nil)
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "invalid id"})
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "invalid request body"})
		return false
	}
	return true
}

type envelope struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Reason  domain.Reason `json:"reason,omitempty"`
	Data    any           `json:"data"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	env, ok := v.(envelope)
	if !ok {
		env = envelope{Success: code < http.StatusBadRequest, Data: v}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(env)
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) (int, domain.Reason) {
	if ve, ok := domain.AsValidation(err); ok {
		return http.StatusUnprocessableEntity, ve.Reason
	}
	if errors.Is(err, domain.ErrUnauthorized) {
		return http.StatusUnauthorized, ""
	}
	if se, ok := domain.AsService(err); ok {
		if se.Status >= http.StatusBadRequest && se.Status < 600 {
			return se.Status, ""
		}
		return http.StatusBadGateway, ""
	}
	if errors.Is(err, domain.ErrPriceUnavailable) {
		return http.StatusServiceUnavailable, domain.ReasonPriceUnavailable
	}
	if errors.Is(err, domain.ErrTransport) {
		return http.StatusBadGateway, ""
	}
	return http.StatusInternalServerError, ""
}

func writeError(w http.ResponseWriter, err error) {
	code, reason := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	if ve, ok := domain.AsValidation(err); ok {
		msg = ve.Message
	}
	writeJSON(w, code, envelope{Message: msg, Reason: reason})
}
