package execution

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/journal"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/metrics"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/quantity"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/refresh"
)

// API is the write side of the execution service used for orders.
type API interface {
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error)
	PlaceLimitOrder(ctx context.Context, req domain.LimitOrderRequest) (domain.LimitOrder, error)
	PlaceStopOrder(ctx context.Context, req domain.StopOrderRequest) (domain.StopOrder, error)
	CancelLimitOrder(ctx context.Context, id int64) (domain.LimitOrder, error)
	CancelStopOrder(ctx context.Context, id int64) (domain.StopOrder, error)
}

// State is the cached view orders are validated against, plus the hook
// that runs the refresh protocol after a write.
type State interface {
	Account(ctx context.Context) (refresh.Result[domain.Account], error)
	Portfolio(ctx context.Context, id int64) (refresh.Result[domain.Portfolio], error)
	LimitOrders(ctx context.Context, status domain.LimitOrderStatus) (refresh.Result[[]domain.LimitOrder], error)
	StopOrders(ctx context.Context, status domain.StopOrderStatus) (refresh.Result[[]domain.StopOrder], error)
	Apply(ctx context.Context, m refresh.Mutation) error
}

type PriceSource interface {
	Price(ctx context.Context, assetType domain.AssetType, symbol string) (decimal.Decimal, error)
}

// Session names the user a call is made for.
type Session interface {
	SubjectFor(ctx context.Context) string
}

type OrderService struct {
	api     API
	state   State
	prices  PriceSource
	holds   *Reservations
	session Session
	journal journal.Recorder
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewOrderService(
	api API,
	state State,
	prices PriceSource,
	holds *Reservations,
	session Session,
	rec journal.Recorder,
	m *metrics.Metrics,
	logger *slog.Logger,
) *OrderService {
	if holds == nil {
		holds = NewReservations()
	}
	if rec == nil {
		rec = journal.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderService{
		api:     api,
		state:   state,
		prices:  prices,
		holds:   holds,
		session: session,
		journal: rec,
		metrics: m,
		logger:  logger,
	}
}

func (s *OrderService) Holds() *Reservations { return s.holds }

// Receipt is the acknowledged order. Synced is false when the refetch that
// followed it did not complete; the next read will catch up.
type Receipt struct {
	Ticket     Ticket             `json:"ticket"`
	Order      *domain.Order      `json:"order,omitempty"`
	LimitOrder *domain.LimitOrder `json:"limitOrder,omitempty"`
	StopOrder  *domain.StopOrder  `json:"stopOrder,omitempty"`
	Synced     bool               `json:"synced"`
}

// Preview is a ticket checked against the current view without sending it.
type Preview struct {
	Ticket      Ticket          `json:"ticket"`
	Account     domain.Account  `json:"account"`
	LivePrice   decimal.Decimal `json:"livePrice"`
	Held        decimal.Decimal `json:"held"`
	Committed   decimal.Decimal `json:"committed"`
	MaxQuantity decimal.Decimal `json:"maxQuantity"`
	Cost        decimal.Decimal `json:"cost"`
	Hint        Hint            `json:"hint"`
	Valid       bool            `json:"valid"`
	Reason      domain.Reason   `json:"reason,omitempty"`
	Message     string          `json:"message,omitempty"`
}

type snapshot struct {
	acct    domain.Account
	held    decimal.Decimal
	pending decimal.Decimal
	live    decimal.Decimal
}

func (s *OrderService) subject(ctx context.Context) string {
	if s.session == nil {
		return ""
	}
	return s.session.SubjectFor(ctx)
}

func (s *OrderService) load(ctx context.Context, t *Ticket) (snapshot, error) {
	t.normalize()
	var snap snapshot

	acct, err := s.state.Account(ctx)
	if err != nil {
		return snap, fmt.Errorf("get account: %w", err)
	}
	snap.acct = acct.Value

	if t.PortfolioID > 0 {
		p, err := s.state.Portfolio(ctx, t.PortfolioID)
		if err != nil {
			return snap, fmt.Errorf("get portfolio: %w", err)
		}
		if h, ok := p.Value.Holding(t.Symbol); ok {
			snap.held = h.Quantity
			if t.AssetType == "" {
				t.AssetType = h.AssetType
			}
		}
	}
	if t.AssetType == "" {
		t.AssetType = domain.AssetStock
	}

	if t.Symbol != "" && s.prices != nil {
		live, err := s.prices.Price(ctx, t.AssetType, t.Symbol)
		if err != nil {
			s.logger.Warn("price lookup failed", "symbol", t.Symbol, "err", err)
			live = decimal.Zero
		}
		snap.live = live
	}
	if t.Kind == domain.KindMarket {
		t.Price = snap.live
	}

	if t.Side == domain.SideSell && t.PortfolioID > 0 {
		pending, err := s.pendingSells(ctx, t.PortfolioID, t.Symbol)
		if err != nil {
			return snap, err
		}
		snap.pending = pending
	}
	return snap, nil
}

// pendingSells is the quantity pending SELL limit and stop orders already
// claim from a holding.
func (s *OrderService) pendingSells(ctx context.Context, portfolioID int64, symbol string) (decimal.Decimal, error) {
	total := decimal.Zero
	limits, err := s.state.LimitOrders(ctx, domain.LimitPending)
	if err != nil {
		return total, fmt.Errorf("list pending limit orders: %w", err)
	}
	for _, o := range limits.Value {
		if o.Side == domain.SideSell && o.Status == domain.LimitPending && o.PortfolioID == portfolioID && o.Symbol == symbol {
			total = total.Add(o.Quantity)
		}
	}
	stops, err := s.state.StopOrders(ctx, domain.StopPending)
	if err != nil {
		return total, fmt.Errorf("list pending stop orders: %w", err)
	}
	for _, o := range stops.Value {
		if o.Status == domain.StopPending && o.PortfolioID == portfolioID && o.Symbol == symbol {
			total = total.Add(o.Quantity)
		}
	}
	return total, nil
}

func (s *OrderService) Preview(ctx context.Context, t Ticket) (Preview, error) {
	snap, err := s.load(ctx, &t)
	if err != nil {
		return Preview{}, err
	}
	acct := s.holds.Project(snap.acct)
	committed := snap.pending.Add(s.holds.Committed(t.PortfolioID, t.Symbol))
	sellable := quantity.MaxSell(snap.held, committed)

	p := Preview{
		Ticket:    t,
		Account:   acct,
		LivePrice: snap.live,
		Held:      snap.held,
		Committed: committed,
		Cost:      t.Cost(),
		Hint:      PriceHint(t.Kind, t.Side, t.Price, snap.live),
	}
	if t.Side == domain.SideSell {
		p.MaxQuantity = sellable
	} else {
		p.MaxQuantity = quantity.MaxBuy(acct.CashBalance, t.Price)
	}
	if err := CanSubmit(t, acct, sellable); err != nil {
		ve, _ := domain.AsValidation(err)
		p.Reason, p.Message = ve.Reason, ve.Message
		return p, nil
	}
	p.Valid = true
	return p, nil
}

// Submit validates t against the current view and open holds, takes a hold
// for it, and sends it. The send is not cancelled with ctx. The hold is
// released once the refetch that follows the send has finished.
func (s *OrderService) Submit(ctx context.Context, t Ticket) (Receipt, error) {
	snap, err := s.load(ctx, &t)
	if err != nil {
		return Receipt{}, err
	}

	hold := Hold{Ticket: t.ID, PortfolioID: t.PortfolioID, Symbol: t.Symbol, Side: t.Side}
	if t.Side == domain.SideBuy {
		hold.Cash = t.Cost()
		if t.Kind == domain.KindLimit {
			hold.Cash = ReservationFor(t.Price, t.Quantity)
		}
	} else {
		hold.Quantity = t.Quantity
	}

	err = s.holds.Reserve(hold, snap.acct, func(projected domain.Account, committed decimal.Decimal) error {
		return CanSubmit(t, projected, quantity.MaxSell(snap.held, snap.pending.Add(committed)))
	})
	if err != nil {
		if ve, ok := domain.AsValidation(err); ok {
			s.metrics.Rejection(string(ve.Reason))
			s.metrics.Order(string(t.Kind), string(t.Side), string(journal.OutcomeRejected))
			s.record(ctx, t, journal.OutcomeRejected, ve.Message, 0, nil)
		}
		return Receipt{}, err
	}
	s.metrics.Holds(s.holds.Len())
	defer func() {
		s.holds.Release(t.ID)
		s.metrics.Holds(s.holds.Len())
	}()

	sendCtx := context.WithoutCancel(ctx)
	receipt, sendErr := s.send(sendCtx, t)

	m := refresh.Mutation{Kind: refresh.PlaceOrder, PortfolioID: t.PortfolioID, Symbol: t.Symbol}
	syncErr := s.state.Apply(sendCtx, m)
	if syncErr != nil {
		s.logger.Warn("refresh after order failed", "ticket", t.ID, "err", syncErr)
	}
	keys := refresh.Keys(refresh.PlanFor(m))

	if sendErr != nil {
		s.metrics.Order(string(t.Kind), string(t.Side), string(journal.OutcomeFailed))
		s.record(ctx, t, journal.OutcomeFailed, sendErr.Error(), 0, keys)
		s.logger.Warn("order rejected by execution service", "ticket", t.ID, "kind", t.Kind, "symbol", t.Symbol, "err", sendErr)
		return Receipt{}, fmt.Errorf("submit %s order: %w", t.Kind, sendErr)
	}

	receipt.Synced = syncErr == nil
	s.metrics.Order(string(t.Kind), string(t.Side), string(journal.OutcomeOK))
	s.record(ctx, t, journal.OutcomeOK, "", receipt.remoteID(), keys)
	s.logger.Info("order submitted",
		"ticket", t.ID, "kind", t.Kind, "side", t.Side, "symbol", t.Symbol,
		"quantity", t.Quantity.String(), "price", t.Price.String(), "synced", receipt.Synced)
	return receipt, nil
}

func (s *OrderService) send(ctx context.Context, t Ticket) (Receipt, error) {
	r := Receipt{Ticket: t}
	switch t.Kind {
	case domain.KindMarket:
		o, err := s.api.PlaceOrder(ctx, domain.OrderRequest{
			PortfolioID: t.PortfolioID, Symbol: t.Symbol, Side: t.Side, Quantity: t.Quantity,
		})
		if err != nil {
			return r, err
		}
		r.Order = &o
	case domain.KindLimit:
		o, err := s.api.PlaceLimitOrder(ctx, domain.LimitOrderRequest{
			PortfolioID: t.PortfolioID, Symbol: t.Symbol, Side: t.Side, TargetPrice: t.Price, Quantity: t.Quantity,
		})
		if err != nil {
			return r, err
		}
		r.LimitOrder = &o
	case domain.KindStop:
		o, err := s.api.PlaceStopOrder(ctx, domain.StopOrderRequest{
			PortfolioID: t.PortfolioID, Symbol: t.Symbol, Side: t.Side, StopPrice: t.Price, Quantity: t.Quantity,
		})
		if err != nil {
			return r, err
		}
		r.StopOrder = &o
	default:
		return r, domain.Invalid(domain.ReasonInvalidOrder, "unknown order kind %q", t.Kind)
	}
	return r, nil
}

func (r Receipt) remoteID() int64 {
	switch {
	case r.Order != nil:
		return r.Order.ID
	case r.LimitOrder != nil:
		return r.LimitOrder.ID
	case r.StopOrder != nil:
		return r.StopOrder.ID
	}
	return 0
}

// CancelLimit asks the service to cancel a pending limit order. The local
// view changes only through the refetch that follows.
func (s *OrderService) CancelLimit(ctx context.Context, id int64) (domain.LimitOrder, error) {
	portfolioID, symbol := s.locateLimit(ctx, id)
	sendCtx := context.WithoutCancel(ctx)
	o, err := s.api.CancelLimitOrder(sendCtx, id)
	if err == nil {
		portfolioID, symbol = o.PortfolioID, o.Symbol
	}
	return o, s.afterCancel(sendCtx, journal.ActionCancelLimit, id, portfolioID, symbol, err)
}

func (s *OrderService) CancelStop(ctx context.Context, id int64) (domain.StopOrder, error) {
	portfolioID, symbol := s.locateStop(ctx, id)
	sendCtx := context.WithoutCancel(ctx)
	o, err := s.api.CancelStopOrder(sendCtx, id)
	if err == nil {
		portfolioID, symbol = o.PortfolioID, o.Symbol
	}
	return o, s.afterCancel(sendCtx, journal.ActionCancelStop, id, portfolioID, symbol, err)
}

func (s *OrderService) afterCancel(ctx context.Context, action journal.Action, id, portfolioID int64, symbol string, sendErr error) error {
	m := refresh.Mutation{Kind: refresh.CancelOrder, PortfolioID: portfolioID, Symbol: symbol}
	if err := s.state.Apply(ctx, m); err != nil {
		s.logger.Warn("refresh after cancel failed", "order", id, "err", err)
	}
	e := journal.Entry{
		Subject:     s.subject(ctx),
		Action:      action,
		PortfolioID: portfolioID,
		Symbol:      symbol,
		RemoteID:    id,
		Outcome:     journal.OutcomeOK,
		Invalidated: refresh.Keys(refresh.PlanFor(m)),
	}
	if sendErr != nil {
		e.Outcome, e.Message = journal.OutcomeFailed, sendErr.Error()
	}
	if err := s.journal.Record(ctx, e); err != nil {
		s.logger.Warn("journal record failed", "action", action, "err", err)
	}
	if sendErr != nil {
		return fmt.Errorf("cancel order %d: %w", id, sendErr)
	}
	s.logger.Info("order cancelled", "order", id, "action", action)
	return nil
}

func (s *OrderService) locateLimit(ctx context.Context, id int64) (int64, string) {
	res, err := s.state.LimitOrders(ctx, domain.LimitPending)
	if err != nil {
		return 0, ""
	}
	for _, o := range res.Value {
		if o.ID == id {
			return o.PortfolioID, o.Symbol
		}
	}
	return 0, ""
}

func (s *OrderService) locateStop(ctx context.Context, id int64) (int64, string) {
	res, err := s.state.StopOrders(ctx, domain.StopPending)
	if err != nil {
		return 0, ""
	}
	for _, o := range res.Value {
		if o.ID == id {
			return o.PortfolioID, o.Symbol
		}
	}
	return 0, ""
}

func (s *OrderService) record(ctx context.Context, t Ticket, outcome journal.Outcome, msg string, remoteID int64, keys []string) {
	action := journal.ActionMarketOrder
	switch t.Kind {
	case domain.KindLimit:
		action = journal.ActionLimitOrder
	case domain.KindStop:
		action = journal.ActionStopOrder
	}
	e := journal.Entry{
		Subject:     s.subject(ctx),
		Action:      action,
		PortfolioID: t.PortfolioID,
		Symbol:      t.Symbol,
		Side:        string(t.Side),
		Quantity:    t.Quantity,
		Price:       t.Price,
		Amount:      t.Cost(),
		Outcome:     outcome,
		Message:     msg,
		RemoteID:    remoteID,
		Invalidated: keys,
	}
	if err := s.journal.Record(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Warn("journal record failed", "ticket", t.ID, "err", err)
	}
}
