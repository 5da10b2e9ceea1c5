// Package valuation turns holdings, live prices and cash into current value,
// cost basis, profit and loss, and net worth. Every function is pure.
package valuation

import (
	"github.com/shopspring/decimal"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// UnitPrice is the price a holding is marked at: the live price when one is
// known, otherwise the average buy price. A zero live price counts as unknown.
func UnitPrice(h domain.Holding) decimal.Decimal {
	if h.CurrentPrice.Valid && h.CurrentPrice.Decimal.IsPositive() {
		return h.CurrentPrice.Decimal
	}
	if h.AverageBuyPrice.IsPositive() {
		return h.AverageBuyPrice
	}
	return decimal.Zero
}

// Percent returns num/den×100, or zero when den is not positive.
func Percent(num, den decimal.Decimal) decimal.Decimal {
	if !den.IsPositive() {
		return decimal.Zero
	}
	return num.Div(den).Mul(hundred)
}

type HoldingValue struct {
	Symbol       string           `json:"symbol"`
	AssetType    domain.AssetType `json:"assetType"`
	Quantity     decimal.Decimal  `json:"quantity"`
	UnitPrice    decimal.Decimal  `json:"unitPrice"`
	Live         bool             `json:"live"`
	CurrentValue decimal.Decimal  `json:"currentValue"`
	CostBasis    decimal.Decimal  `json:"costBasis"`
	PnL          decimal.Decimal  `json:"pnl"`
	PnLPercent   decimal.Decimal  `json:"pnlPercent"`
}

func Holding(h domain.Holding) HoldingValue {
	qty := h.Quantity
	if qty.IsNegative() {
		qty = decimal.Zero
	}
	price := UnitPrice(h)
	value := qty.Mul(price)
	cost := qty.Mul(h.AverageBuyPrice)
	pnl := value.Sub(cost)
	return HoldingValue{
		Symbol:       h.Symbol,
		AssetType:    h.AssetType,
		Quantity:     qty,
		UnitPrice:    price,
		Live:         h.CurrentPrice.Valid && h.CurrentPrice.Decimal.IsPositive(),
		CurrentValue: value,
		CostBasis:    cost,
		PnL:          pnl,
		PnLPercent:   Percent(pnl, cost),
	}
}

// Summary is the valuation of a set of holdings plus cash. PnLPercent is
// measured against cost basis.
type Summary struct {
	CurrentValue decimal.Decimal `json:"currentValue"`
	CostBasis    decimal.Decimal `json:"costBasis"`
	PnL          decimal.Decimal `json:"pnl"`
	PnLPercent   decimal.Decimal `json:"pnlPercent"`
	NetWorth     decimal.Decimal `json:"netWorth"`
}

// Valuate values holdings and adds cash. Reserved cash is still the
// account's money, so it counts toward net worth.
func Valuate(holdings []domain.Holding, cashAvailable, cashReserved decimal.Decimal) Summary {
	var s Summary
	for _, h := range holdings {
		v := Holding(h)
		s.CurrentValue = s.CurrentValue.Add(v.CurrentValue)
		s.CostBasis = s.CostBasis.Add(v.CostBasis)
	}
	s.PnL = s.CurrentValue.Sub(s.CostBasis)
	s.PnLPercent = Percent(s.PnL, s.CostBasis)
	s.NetWorth = s.CurrentValue.Add(cashAvailable).Add(cashReserved)
	return s
}

type PortfolioValue struct {
	PortfolioID int64          `json:"portfolioId"`
	Name        string         `json:"name"`
	Summary     Summary        `json:"summary"`
	Holdings    []HoldingValue `json:"holdings"`
}

// Portfolio values one portfolio's holdings. Cash lives on the account, so
// the portfolio's net worth is its holdings value.
func Portfolio(p domain.Portfolio) PortfolioValue {
	rows := make([]HoldingValue, 0, len(p.Holdings))
	for _, h := range p.Holdings {
		rows = append(rows, Holding(h))
	}
	return PortfolioValue{
		PortfolioID: p.ID,
		Name:        p.Name,
		Summary:     Valuate(p.Holdings, decimal.Zero, decimal.Zero),
		Holdings:    rows,
	}
}

// AccountSummary is the dashboard view. The account-level P&L compares net
// worth with net contributed capital; HoldingsPnLPercent uses cost basis.
type AccountSummary struct {
	HoldingsValue      decimal.Decimal  `json:"holdingsValue"`
	CostBasis          decimal.Decimal  `json:"costBasis"`
	HoldingsPnL        decimal.Decimal  `json:"holdingsPnl"`
	HoldingsPnLPercent decimal.Decimal  `json:"holdingsPnlPercent"`
	CashAvailable      decimal.Decimal  `json:"cashAvailable"`
	CashReserved       decimal.Decimal  `json:"cashReserved"`
	NetWorth           decimal.Decimal  `json:"netWorth"`
	NetContributed     decimal.Decimal  `json:"netContributed"`
	PnL                decimal.Decimal  `json:"pnl"`
	PnLPercent         decimal.Decimal  `json:"pnlPercent"`
	Portfolios         []PortfolioValue `json:"portfolios"`
}

func Account(acct domain.Account, portfolios []domain.Portfolio) AccountSummary {
	var all []domain.Holding
	values := make([]PortfolioValue, 0, len(portfolios))
	for _, p := range portfolios {
		all = append(all, p.Holdings...)
		values = append(values, Portfolio(p))
	}
	s := Valuate(all, acct.CashBalance, acct.ReservedCash)
	contributed := acct.TotalDeposits.Sub(acct.TotalWithdrawals)
	pnl := s.NetWorth.Sub(contributed)
	return AccountSummary{
		HoldingsValue:      s.CurrentValue,
		CostBasis:          s.CostBasis,
		HoldingsPnL:        s.PnL,
		HoldingsPnLPercent: s.PnLPercent,
		CashAvailable:      acct.CashBalance,
		CashReserved:       acct.ReservedCash,
		NetWorth:           s.NetWorth,
		NetContributed:     contributed,
		PnL:                pnl,
		PnLPercent:         Percent(pnl, contributed),
		Portfolios:         values,
	}
}

// WithPrices returns copies of holdings whose live price is replaced by the
// lookup's price when it has a positive one.
func WithPrices(holdings []domain.Holding, lookup func(symbol string) (decimal.Decimal, bool)) []domain.Holding {
	out := make([]domain.Holding, len(holdings))
	copy(out, holdings)
	if lookup == nil {
		return out
	}
	for i := range out {
		if p, ok := lookup(out[i].Symbol); ok && p.IsPositive() {
			out[i].CurrentPrice = decimal.NewNullDecimal(p)
		}
	}
	return out
}

type Weight struct {
	Symbol  string          `json:"symbol"`
	Value   decimal.Decimal `json:"value"`
	Percent decimal.Decimal `json:"percent"`
}

// Allocation returns each holding's share of netWorth, merged by symbol
// across portfolios, in first-seen order.
func Allocation(portfolios []domain.Portfolio, netWorth decimal.Decimal) []Weight {
	index := make(map[string]int)
	var out []Weight
	for _, p := range portfolios {
		for _, h := range p.Holdings {
			v := Holding(h).CurrentValue
			if i, ok := index[h.Symbol]; ok {
				out[i].Value = out[i].Value.Add(v)
				continue
			}
			index[h.Symbol] = len(out)
			out = append(out, Weight{Symbol: h.Symbol, Value: v})
		}
	}
	for i := range out {
		out[i].Percent = Percent(out[i].Value, netWorth)
	}
	return out
}
