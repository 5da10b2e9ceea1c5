package execution

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func cash(available string) domain.Account {
	return domain.Account{CashBalance: d(available)}
}

func TestCanSubmit(t *testing.T) {
	base := Ticket{Kind: domain.KindMarket, Side: domain.SideBuy, PortfolioID: 1, Symbol: "AAPL"}
	with := func(f func(*Ticket)) Ticket {
		tk := base
		f(&tk)
		return tk
	}
	tests := []struct {
		name     string
		ticket   Ticket
		acct     domain.Account
		sellable string
		want     domain.Reason
	}{
		{"limit buy half of cash", with(func(t *Ticket) { t.Kind = domain.KindLimit; t.Price = d("50"); t.Quantity = d("10") }), cash("1000"), "0", ""},
		{"buy exactly all cash", with(func(t *Ticket) { t.Price = d("100"); t.Quantity = d("10") }), cash("1000"), "0", ""},
		{"buy over cash", with(func(t *Ticket) { t.Price = d("100"); t.Quantity = d("10.000001") }), cash("1000"), "0", domain.ReasonInsufficientCash},
		{"market buy without price", with(func(t *Ticket) { t.Quantity = d("1") }), cash("1000"), "0", domain.ReasonPriceUnavailable},
		{"market buy without price or quantity", with(func(t *Ticket) {}), cash("1000"), "0", domain.ReasonPriceUnavailable},
		{"market sell without price", with(func(t *Ticket) { t.Side = domain.SideSell; t.Quantity = d("1") }), cash("0"), "5", domain.ReasonPriceUnavailable},
		{"sell a quarter", with(func(t *Ticket) { t.Side = domain.SideSell; t.Price = d("60000"); t.Quantity = d("1") }), cash("0"), "4", ""},
		{"sell more than held", with(func(t *Ticket) { t.Side = domain.SideSell; t.Price = d("60000"); t.Quantity = d("5") }), cash("0"), "4", domain.ReasonInsufficientHoldings},
		{"zero quantity", with(func(t *Ticket) { t.Price = d("10") }), cash("1000"), "0", domain.ReasonInvalidQuantity},
		{"too many decimals", with(func(t *Ticket) { t.Price = d("10"); t.Quantity = d("0.0000001") }), cash("1000"), "0", domain.ReasonInvalidQuantity},
		{"limit without target", with(func(t *Ticket) { t.Kind = domain.KindLimit; t.Quantity = d("1") }), cash("1000"), "0", domain.ReasonInvalidPrice},
		{"stop buy", with(func(t *Ticket) { t.Kind = domain.KindStop; t.Price = d("10"); t.Quantity = d("1") }), cash("1000"), "5", domain.ReasonInvalidOrder},
		{"stop sell ignores cash", with(func(t *Ticket) {
			t.Kind = domain.KindStop
			t.Side = domain.SideSell
			t.Price = d("10")
			t.Quantity = d("5")
		}), cash("0"), "5", ""},
		{"missing symbol", with(func(t *Ticket) { t.Symbol = "" }), cash("1000"), "0", domain.ReasonMissingSymbol},
		{"missing portfolio", with(func(t *Ticket) { t.PortfolioID = 0 }), cash("1000"), "0", domain.ReasonMissingPortfolio},
		{"unknown kind", with(func(t *Ticket) { t.Kind = "iceberg" }), cash("1000"), "0", domain.ReasonInvalidOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CanSubmit(tt.ticket, tt.acct, d(tt.sellable))
			if tt.want == "" {
				if err != nil {
					t.Fatalf("got %v, want nil", err)
				}
				return
			}
			ve, ok := domain.AsValidation(err)
			if !ok {
				t.Fatalf("got %v, want validation error %s", err, tt.want)
			}
			if ve.Reason != tt.want {
				t.Errorf("reason = %s, want %s", ve.Reason, tt.want)
			}
		})
	}
}

func TestPriceZeroRejectsRegardlessOfQuantity(t *testing.T) {
	for _, q := range []string{"0", "0.000001", "1", "1000000"} {
		for _, side := range []domain.OrderSide{domain.SideBuy, domain.SideSell} {
			tk := Ticket{Kind: domain.KindMarket, Side: side, PortfolioID: 1, Symbol: "X", Quantity: d(q)}
			if Submittable(tk, cash("1e12"), d("1e12")) {
				t.Errorf("%s %s at price 0 was submittable", side, q)
			}
		}
	}
}

func TestPriceHint(t *testing.T) {
	tests := []struct {
		kind          domain.OrderKind
		side          domain.OrderSide
		target, price string
		delta         string
		msg           string
	}{
		{domain.KindLimit, domain.SideBuy, "90", "100", "-10", "Waiting for a 10.00% drop"},
		{domain.KindLimit, domain.SideSell, "110", "100", "10", "Waiting for a 10.00% rise"},
		{domain.KindLimit, domain.SideBuy, "110", "100", "10", "Target is already reached; fills on the next check"},
		{domain.KindStop, domain.SideSell, "95", "100", "-5", "Triggers after a 5.00% drop"},
	}
	for _, tt := range tests {
		h := PriceHint(tt.kind, tt.side, d(tt.target), d(tt.price))
		if !h.DeltaPercent.Equal(d(tt.delta)) || h.Message != tt.msg {
			t.Errorf("PriceHint(%s %s %s/%s) = %+v", tt.kind, tt.side, tt.target, tt.price, h)
		}
	}
	if h := PriceHint(domain.KindLimit, domain.SideBuy, d("10"), decimal.Zero); h.Message != "" {
		t.Errorf("no current price should give no hint, got %+v", h)
	}
}
