package execution

import (
	"github.com/shopspring/decimal"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
)

var marketTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.StatusPending: {domain.StatusCompleted, domain.StatusFailed},
}

var limitTransitions = map[domain.LimitOrderStatus][]domain.LimitOrderStatus{
	domain.LimitPending: {domain.LimitFilled, domain.LimitCancelled, domain.LimitExpired},
}

// A triggered stop is normally filled in the same step; it is cancelled
// instead when the holding no longer covers it.
var stopTransitions = map[domain.StopOrderStatus][]domain.StopOrderStatus{
	domain.StopPending:   {domain.StopTriggered, domain.StopFilled, domain.StopCancelled},
	domain.StopTriggered: {domain.StopFilled, domain.StopCancelled},
}

func allowed[S comparable](table map[S][]S, from, to S) bool {
	for _, s := range table[from] {
		if s == to {
			return true
		}
	}
	return false
}

func CanTransitionMarket(from, to domain.OrderStatus) bool {
	return allowed(marketTransitions, from, to)
}

func CanTransitionLimit(from, to domain.LimitOrderStatus) bool {
	return allowed(limitTransitions, from, to)
}

func CanTransitionStop(from, to domain.StopOrderStatus) bool {
	return allowed(stopTransitions, from, to)
}

// ReservationFor is the cash a limit BUY holds: target × quantity rounded
// to four decimals.
func ReservationFor(target, qty decimal.Decimal) decimal.Decimal {
	return target.Mul(qty).Round(4)
}

func reserved(o domain.LimitOrder) decimal.Decimal {
	if o.ReservedAmount.IsPositive() {
		return o.ReservedAmount
	}
	return ReservationFor(o.TargetPrice, o.Quantity)
}

// Reserve moves a limit BUY's reservation from available to reserved cash.
// Sell orders reserve no cash.
func Reserve(acct domain.Account, o domain.LimitOrder) (domain.Account, error) {
	if o.Side != domain.SideBuy {
		return acct, nil
	}
	amount := reserved(o)
	if amount.GreaterThan(acct.CashBalance) {
		return acct, domain.Invalid(domain.ReasonInsufficientCash,
			"insufficient cash: need %s, available %s", amount.StringFixed(2), acct.CashBalance.StringFixed(2))
	}
	acct.CashBalance = acct.CashBalance.Sub(amount)
	acct.ReservedCash = acct.ReservedCash.Add(amount)
	return acct, nil
}

// ReleaseOnCancel returns a cancelled or expired limit BUY's reservation in
// full.
func ReleaseOnCancel(acct domain.Account, o domain.LimitOrder) domain.Account {
	if o.Side != domain.SideBuy {
		return acct
	}
	amount := reserved(o)
	acct.CashBalance = acct.CashBalance.Add(amount)
	acct.ReservedCash = acct.ReservedCash.Sub(amount)
	return acct
}

// SettleFill consumes a limit BUY's reservation at fillPrice and refunds
// whatever the fill did not use.
func SettleFill(acct domain.Account, o domain.LimitOrder, fillPrice decimal.Decimal) domain.Account {
	if o.Side != domain.SideBuy {
		return acct
	}
	amount := reserved(o)
	acct.ReservedCash = acct.ReservedCash.Sub(amount)
	if refund := amount.Sub(fillPrice.Mul(o.Quantity)); refund.IsPositive() {
		acct.CashBalance = acct.CashBalance.Add(refund)
	}
	return acct
}

// StopNearTrigger flags a pending stop whose live price has reached the
// stop price.
func StopNearTrigger(current, stop decimal.Decimal) bool {
	return current.IsPositive() && current.LessThanOrEqual(stop)
}

// Transition is a status change observed between two refetches.
type Transition struct {
	Kind        domain.OrderKind `json:"kind"`
	OrderID     int64            `json:"orderId"`
	PortfolioID int64            `json:"portfolioId"`
	Symbol      string           `json:"symbol"`
	Side        domain.OrderSide `json:"side"`
	From        string           `json:"from"`
	To          string           `json:"to"`
	// Legal is false when the service reported a change the lifecycle does
	// not allow. Such transitions are reported, never acted on.
	Legal bool `json:"legal"`
}

// DiffLimit compares two refetched limit order lists. Orders that vanished
// are not reported; only status changes are.
func DiffLimit(prev, next []domain.LimitOrder) []Transition {
	before := make(map[int64]domain.LimitOrderStatus, len(prev))
	for _, o := range prev {
		before[o.ID] = o.Status
	}
	var out []Transition
	for _, o := range next {
		from, ok := before[o.ID]
		if !ok || from == o.Status {
			continue
		}
		out = append(out, Transition{
			Kind:        domain.KindLimit,
			OrderID:     o.ID,
			PortfolioID: o.PortfolioID,
			Symbol:      o.Symbol,
			Side:        o.Side,
			From:        string(from),
			To:          string(o.Status),
			Legal:       CanTransitionLimit(from, o.Status),
		})
	}
	return out
}

func DiffStop(prev, next []domain.StopOrder) []Transition {
	before := make(map[int64]domain.StopOrderStatus, len(prev))
	for _, o := range prev {
		before[o.ID] = o.Status
	}
	var out []Transition
	for _, o := range next {
		from, ok := before[o.ID]
		if !ok || from == o.Status {
			continue
		}
		out = append(out, Transition{
			Kind:        domain.KindStop,
			OrderID:     o.ID,
			PortfolioID: o.PortfolioID,
			Symbol:      o.Symbol,
			Side:        o.Side,
			From:        string(from),
			To:          string(o.Status),
			Legal:       CanTransitionStop(from, o.Status),
		})
	}
	return out
}
