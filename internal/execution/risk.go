package execution

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/quantity"
)

// Ticket is an order as the user composed it. Price is the target price
// for a limit order, the stop price for a stop order, and the live price
// for a market order (zero when no quote is loaded).
type Ticket struct {
	ID          uuid.UUID        `json:"id"`
	Kind        domain.OrderKind `json:"kind"`
	Side        domain.OrderSide `json:"side"`
	PortfolioID int64            `json:"portfolioId"`
	Symbol      string           `json:"symbol"`
	AssetType   domain.AssetType `json:"assetType,omitempty"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Price       decimal.Decimal  `json:"price"`
}

func (t *Ticket) normalize() {
	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
	t.Side = domain.OrderSide(strings.ToUpper(string(t.Side)))
	t.Kind = domain.OrderKind(strings.ToLower(string(t.Kind)))
	if t.Kind == "" {
		t.Kind = domain.KindMarket
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
}

// Cost is what a BUY ticket would spend at its price.
func (t Ticket) Cost() decimal.Decimal { return t.Quantity.Mul(t.Price) }

// CanSubmit checks a ticket against the cash and sellable quantity it may
// draw on. It returns nil or a *domain.ValidationError.
func CanSubmit(t Ticket, acct domain.Account, sellable decimal.Decimal) error {
	if !t.Kind.Valid() {
		return domain.Invalid(domain.ReasonInvalidOrder, "unknown order kind %q", t.Kind)
	}
	if !t.Side.Valid() {
		return domain.Invalid(domain.ReasonInvalidOrder, "unknown order side %q", t.Side)
	}
	if t.Symbol == "" {
		return domain.Invalid(domain.ReasonMissingSymbol, "symbol is required")
	}
	if t.PortfolioID <= 0 {
		return domain.Invalid(domain.ReasonMissingPortfolio, "portfolio is required")
	}
	if t.Kind == domain.KindStop && t.Side != domain.SideSell {
		return domain.Invalid(domain.ReasonInvalidOrder, "stop orders support SELL only")
	}

	if !t.Price.IsPositive() {
		switch t.Kind {
		case domain.KindMarket:
			return domain.Invalid(domain.ReasonPriceUnavailable, "no live price for %s", t.Symbol)
		case domain.KindLimit:
			return domain.Invalid(domain.ReasonInvalidPrice, "target price must be greater than zero")
		default:
			return domain.Invalid(domain.ReasonInvalidPrice, "stop price must be greater than zero")
		}
	}

	if !t.Quantity.IsPositive() {
		return domain.Invalid(domain.ReasonInvalidQuantity, "quantity must be greater than zero")
	}
	if !t.Quantity.Truncate(quantity.Precision).Equal(t.Quantity) {
		return domain.Invalid(domain.ReasonInvalidQuantity, "quantity has more than %d decimals", quantity.Precision)
	}

	if t.Side == domain.SideBuy {
		if cost := t.Cost(); cost.GreaterThan(acct.CashBalance) {
			return domain.Invalid(domain.ReasonInsufficientCash,
				"insufficient cash: need %s, available %s", cost.StringFixed(2), acct.CashBalance.StringFixed(2))
		}
		return nil
	}
	if t.Quantity.GreaterThan(sellable) {
		return domain.Invalid(domain.ReasonInsufficientHoldings,
			"insufficient holdings: selling %s %s, available %s", t.Quantity, t.Symbol, sellable)
	}
	return nil
}

// Submittable is CanSubmit as a boolean, for enabling the submit control.
func Submittable(t Ticket, acct domain.Account, sellable decimal.Decimal) bool {
	return CanSubmit(t, acct, sellable) == nil
}

// Hint is advisory text shown next to a limit or stop price. It never
// gates submission.
type Hint struct {
	DeltaPercent decimal.Decimal `json:"deltaPercent"`
	Message      string          `json:"message"`
}

// PriceHint describes how far target sits from the current price.
func PriceHint(kind domain.OrderKind, side domain.OrderSide, target, current decimal.Decimal) Hint {
	if !current.IsPositive() || !target.IsPositive() || kind == domain.KindMarket {
		return Hint{}
	}
	delta := target.Sub(current).Div(current).Mul(decimal.NewFromInt(100)).Round(2)
	h := Hint{DeltaPercent: delta}
	abs := delta.Abs().StringFixed(2)
	switch {
	case kind == domain.KindStop:
		if delta.IsNegative() {
			h.Message = fmt.Sprintf("Triggers after a %s%% drop", abs)
		} else {
			h.Message = "Stop price is at or above the current price; triggers on the next check"
		}
	case side == domain.SideBuy && delta.IsNegative():
		h.Message = fmt.Sprintf("Waiting for a %s%% drop", abs)
	case side == domain.SideSell && delta.IsPositive():
		h.Message = fmt.Sprintf("Waiting for a %s%% rise", abs)
	default:
		h.Message = "Target is already reached; fills on the next check"
	}
	return h
}
