// Package quantity derives order quantities from cash, holdings and a
// percentage slider, and keeps the order ticket form consistent.
package quantity

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
)

// Precision is the number of fractional digits a quantity may carry.
const Precision = 6

var (
	hundred = decimal.NewFromInt(100)
	step    = decimal.New(1, -Precision)
)

// MaxBuy is the largest quantity, truncated to Precision digits, whose cost
// at unitPrice does not exceed cash.
func MaxBuy(cash, unitPrice decimal.Decimal) decimal.Decimal {
	if !unitPrice.IsPositive() || !cash.IsPositive() {
		return decimal.Zero
	}
	q := cash.DivRound(unitPrice, 16).Truncate(Precision)
	for q.IsPositive() && q.Mul(unitPrice).GreaterThan(cash) {
		q = q.Sub(step)
	}
	if q.IsNegative() {
		return decimal.Zero
	}
	return q
}

// MaxSell is what can still be sold of held once quantity committed to
// pending sell orders is set aside.
func MaxSell(held, committed decimal.Decimal) decimal.Decimal {
	q := held.Sub(committed)
	if q.IsNegative() {
		return decimal.Zero
	}
	return q
}

// Derive returns percent of max truncated to Precision digits. 100 returns
// max exactly and the result never exceeds max.
func Derive(percent, max decimal.Decimal) decimal.Decimal {
	if !percent.IsPositive() || !max.IsPositive() {
		return decimal.Zero
	}
	if percent.GreaterThanOrEqual(hundred) {
		return max
	}
	q := max.Mul(percent).Div(hundred).Truncate(Precision)
	if q.GreaterThan(max) {
		return max
	}
	return q
}

// Percent is the inverse of Derive, clamped to [0, 100].
func Percent(q, max decimal.Decimal) decimal.Decimal {
	if !max.IsPositive() || !q.IsPositive() {
		return decimal.Zero
	}
	p := q.Div(max).Mul(hundred)
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p.Round(2)
}

// Limits is what bounds a ticket: cash for buys, held quantity for sells,
// and the live unit price.
type Limits struct {
	AvailableCash decimal.Decimal `json:"availableCash"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	Held          decimal.Decimal `json:"held"`
	Committed     decimal.Decimal `json:"committed"`
}

// Form is the state of one order ticket.
type Form struct {
	Kind        domain.OrderKind `json:"kind"`
	Side        domain.OrderSide `json:"side"`
	PortfolioID int64            `json:"portfolioId"`
	Symbol      string           `json:"symbol"`
	TargetPrice decimal.Decimal  `json:"targetPrice"`
	Percent     decimal.Decimal  `json:"percent"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Limits      Limits           `json:"limits"`
}

func NewForm(kind domain.OrderKind, side domain.OrderSide, portfolioID int64, symbol string) *Form {
	if kind == "" {
		kind = domain.KindMarket
	}
	if side == "" {
		side = domain.SideBuy
	}
	return &Form{Kind: kind, Side: side, PortfolioID: portfolioID, Symbol: strings.ToUpper(symbol)}
}

func (f *Form) reset() {
	f.Percent = decimal.Zero
	f.Quantity = decimal.Zero
}

func (f *Form) SetSide(side domain.OrderSide) {
	if side == f.Side {
		return
	}
	f.Side = side
	f.reset()
}

func (f *Form) SetPortfolio(id int64) {
	if id == f.PortfolioID {
		return
	}
	f.PortfolioID = id
	f.reset()
}

func (f *Form) SetKind(kind domain.OrderKind) {
	if kind == f.Kind {
		return
	}
	f.Kind = kind
	f.reset()
}

// SetTargetPrice changes the limit or stop price. The slider goes back to
// zero; a typed quantity is kept.
func (f *Form) SetTargetPrice(p decimal.Decimal) {
	if p.Equal(f.TargetPrice) {
		return
	}
	f.TargetPrice = p
	f.Percent = decimal.Zero
}

func (f *Form) SetLimits(l Limits) { f.Limits = l }

// PrefillTarget fills an empty limit or stop price with the live price
// rounded to cents.
func (f *Form) PrefillTarget(live decimal.Decimal) {
	if f.Kind == domain.KindMarket || !f.TargetPrice.IsZero() || !live.IsPositive() {
		return
	}
	f.TargetPrice = live.Round(2)
}

// UnitPrice is the price the ticket is costed at: the target for a limit
// order, the live price otherwise.
func (f *Form) UnitPrice() decimal.Decimal {
	if f.Kind == domain.KindLimit && f.TargetPrice.IsPositive() {
		return f.TargetPrice
	}
	return f.Limits.UnitPrice
}

func (f *Form) Max() decimal.Decimal {
	if f.Side == domain.SideSell {
		return MaxSell(f.Limits.Held, f.Limits.Committed)
	}
	return MaxBuy(f.Limits.AvailableCash, f.UnitPrice())
}

func (f *Form) Cost() decimal.Decimal { return f.Quantity.Mul(f.UnitPrice()) }

func (f *Form) SetPercent(p decimal.Decimal) {
	switch {
	case p.IsNegative():
		p = decimal.Zero
	case p.GreaterThan(hundred):
		p = hundred
	}
	f.Percent = p
	f.Quantity = Derive(p, f.Max())
}

// Quick applies one of the 25/50/75/100 shortcut buttons.
func (f *Form) Quick(p int) error {
	switch p {
	case 25, 50, 75, 100:
		f.SetPercent(decimal.NewFromInt(int64(p)))
		return nil
	}
	return domain.Invalid(domain.ReasonInvalidQuantity, "quick percent must be 25, 50, 75 or 100, got %d", p)
}

// SetQuantity takes free-text input and re-derives the slider from it. An
// empty string clears the ticket.
func (f *Form) SetQuantity(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		f.reset()
		return nil
	}
	q, err := decimal.NewFromString(text)
	if err != nil {
		return domain.Invalid(domain.ReasonInvalidQuantity, "quantity %q is not a number", text)
	}
	if q.IsNegative() {
		return domain.Invalid(domain.ReasonInvalidQuantity, "quantity must not be negative")
	}
	if !q.Truncate(Precision).Equal(q) {
		return domain.Invalid(domain.ReasonInvalidQuantity, "quantity %s has more than %d decimals", q, Precision)
	}
	f.Quantity = q
	f.Percent = Percent(q, f.Max())
	return nil
}

func (f *Form) String() string {
	return fmt.Sprintf("%s %s %s %s @ %s", f.Kind, f.Side, f.Quantity, f.Symbol, f.UnitPrice())
}
