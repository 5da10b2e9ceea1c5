package valuation

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func holding(symbol, qty, avg string, live *string) domain.Holding {
	h := domain.Holding{Symbol: symbol, Quantity: d(qty), AverageBuyPrice: d(avg)}
	if live != nil {
		h.CurrentPrice = decimal.NewNullDecimal(d(*live))
	}
	return h
}

func ptr(s string) *string { return &s }

func TestUnitPriceFallsBackToAverageBuyPrice(t *testing.T) {
	tests := []struct {
		name string
		h    domain.Holding
		want string
	}{
		{"live price", holding("AAPL", "2", "100", ptr("150")), "150"},
		{"no quote", holding("AAPL", "2", "100", nil), "100"},
		{"zero quote is unknown", holding("AAPL", "2", "100", ptr("0")), "100"},
		{"nothing known", holding("AAPL", "2", "0", nil), "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UnitPrice(tt.h); !got.Equal(d(tt.want)) {
				t.Errorf("UnitPrice = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHoldingCurrentValueIsQuantityTimesPrice(t *testing.T) {
	cases := []domain.Holding{
		holding("BTC", "0.5", "30000", ptr("42000")),
		holding("ETH", "3", "2000", nil),
		holding("AAPL", "0", "150", ptr("170")),
	}
	for _, h := range cases {
		v := Holding(h)
		want := h.Quantity.Mul(UnitPrice(h))
		if !v.CurrentValue.Equal(want) {
			t.Errorf("%s: current value = %s, want %s", h.Symbol, v.CurrentValue, want)
		}
		if v.CurrentValue.IsNegative() {
			t.Errorf("%s: current value %s is negative", h.Symbol, v.CurrentValue)
		}
	}
}

func TestHoldingPnL(t *testing.T) {
	v := Holding(holding("AAPL", "10", "100", ptr("125")))
	if !v.CostBasis.Equal(d("1000")) {
		t.Errorf("cost basis = %s, want 1000", v.CostBasis)
	}
	if !v.PnL.Equal(d("250")) {
		t.Errorf("pnl = %s, want 250", v.PnL)
	}
	if !v.PnLPercent.Equal(d("25")) {
		t.Errorf("pnl%% = %s, want 25", v.PnLPercent)
	}
	if !v.Live {
		t.Error("expected live mark")
	}
}

func TestZeroCostBasisReportsZeroPercent(t *testing.T) {
	v := Holding(holding("FREE", "10", "0", ptr("5")))
	if !v.PnLPercent.IsZero() {
		t.Errorf("pnl%% = %s, want 0", v.PnLPercent)
	}
	s := Valuate(nil, d("100"), d("0"))
	if !s.PnLPercent.IsZero() {
		t.Errorf("empty pnl%% = %s, want 0", s.PnLPercent)
	}
}

func TestValuateNetWorthIncludesReservedCash(t *testing.T) {
	holdings := []domain.Holding{
		holding("AAPL", "10", "100", ptr("110")),
		holding("BTC", "0.1", "20000", ptr("30000")),
	}
	s := Valuate(holdings, d("500"), d("250"))
	if !s.CurrentValue.Equal(d("4100")) {
		t.Errorf("current value = %s, want 4100", s.CurrentValue)
	}
	if !s.CostBasis.Equal(d("3000")) {
		t.Errorf("cost basis = %s, want 3000", s.CostBasis)
	}
	if !s.PnL.Equal(d("1100")) {
		t.Errorf("pnl = %s, want 1100", s.PnL)
	}
	if !s.NetWorth.Equal(d("4850")) {
		t.Errorf("net worth = %s, want 4850", s.NetWorth)
	}
}

func TestAccountUsesNetContributedCapital(t *testing.T) {
	acct := domain.Account{
		CashBalance:      d("500"),
		ReservedCash:     d("500"),
		TotalDeposits:    d("3000"),
		TotalWithdrawals: d("1000"),
	}
	portfolios := []domain.Portfolio{
		{ID: 1, Name: "Growth", Holdings: []domain.Holding{holding("AAPL", "10", "100", ptr("150"))}},
		{ID: 2, Name: "Crypto", Holdings: []domain.Holding{holding("ETH", "1", "1000", nil)}},
	}

	s := Account(acct, portfolios)

	if !s.NetWorth.Equal(d("3500")) {
		t.Errorf("net worth = %s, want 3500", s.NetWorth)
	}
	if !s.NetContributed.Equal(d("2000")) {
		t.Errorf("net contributed = %s, want 2000", s.NetContributed)
	}
	if !s.PnL.Equal(d("1500")) {
		t.Errorf("pnl = %s, want 1500", s.PnL)
	}
	if !s.PnLPercent.Equal(d("75")) {
		t.Errorf("account pnl%% = %s, want 75 (against contributed capital)", s.PnLPercent)
	}
	// holdings: value 2500, cost 2000 → 25% against cost basis
	if !s.HoldingsPnLPercent.Equal(d("25")) {
		t.Errorf("holdings pnl%% = %s, want 25 (against cost basis)", s.HoldingsPnLPercent)
	}
	if len(s.Portfolios) != 2 || !s.Portfolios[0].Summary.CurrentValue.Equal(d("1500")) {
		t.Errorf("unexpected portfolio rows: %+v", s.Portfolios)
	}
}

func TestAccountWithNoContributionsReportsZeroPercent(t *testing.T) {
	s := Account(domain.Account{CashBalance: d("10")}, nil)
	if !s.PnLPercent.IsZero() {
		t.Errorf("pnl%% = %s, want 0", s.PnLPercent)
	}
}

func TestWithPricesOverlaysLiveQuotes(t *testing.T) {
	in := []domain.Holding{holding("AAPL", "1", "100", nil), holding("MSFT", "1", "200", ptr("210"))}
	out := WithPrices(in, func(symbol string) (decimal.Decimal, bool) {
		if symbol == "AAPL" {
			return d("120"), true
		}
		return decimal.Zero, false
	})
	if !UnitPrice(out[0]).Equal(d("120")) {
		t.Errorf("AAPL price = %s, want 120", UnitPrice(out[0]))
	}
	if !UnitPrice(out[1]).Equal(d("210")) {
		t.Errorf("MSFT price = %s, want 210", UnitPrice(out[1]))
	}
	if in[0].CurrentPrice.Valid {
		t.Error("input slice was mutated")
	}
}

func TestAllocationMergesSymbols(t *testing.T) {
	portfolios := []domain.Portfolio{
		{Holdings: []domain.Holding{holding("AAPL", "1", "100", ptr("100"))}},
		{Holdings: []domain.Holding{holding("AAPL", "1", "100", ptr("100")), holding("BTC", "1", "200", ptr("200"))}},
	}
	w := Allocation(portfolios, d("800"))
	if len(w) != 2 {
		t.Fatalf("got %d weights, want 2", len(w))
	}
	if !w[0].Value.Equal(d("200")) || !w[0].Percent.Equal(d("25")) {
		t.Errorf("AAPL weight = %+v", w[0])
	}
}
