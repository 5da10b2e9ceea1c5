package execution

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
)

func TestReservationsProjectAndRelease(t *testing.T) {
	r := NewReservations()
	acct := domain.Account{CashBalance: d("1000")}
	buy := Hold{Ticket: uuid.New(), PortfolioID: 1, Symbol: "AAPL", Side: domain.SideBuy, Cash: d("300")}
	sell := Hold{Ticket: uuid.New(), PortfolioID: 1, Symbol: "btc", Side: domain.SideSell, Quantity: d("0.5")}

	if err := r.Reserve(buy, acct, nil); err != nil {
		t.Fatal(err)
	}
	if err := r.Reserve(sell, acct, nil); err != nil {
		t.Fatal(err)
	}

	p := r.Project(acct)
	if !p.CashBalance.Equal(d("700")) || !p.ReservedCash.Equal(d("300")) {
		t.Errorf("projected %s / %s, want 700 / 300", p.CashBalance, p.ReservedCash)
	}
	if got := r.Committed(1, "BTC"); !got.Equal(d("0.5")) {
		t.Errorf("committed = %s, want 0.5", got)
	}
	if got := r.Committed(2, "BTC"); !got.IsZero() {
		t.Errorf("other portfolio committed = %s, want 0", got)
	}

	r.Release(buy.Ticket)
	r.Release(sell.Ticket)
	if r.Len() != 0 || !r.Project(acct).CashBalance.Equal(d("1000")) {
		t.Error("release did not restore the projection")
	}
}

func TestReservationsCheckSeesOpenHolds(t *testing.T) {
	r := NewReservations()
	acct := domain.Account{CashBalance: d("100")}
	_ = r.Reserve(Hold{Ticket: uuid.New(), Side: domain.SideBuy, Cash: d("60")}, acct, nil)

	var seen decimal.Decimal
	err := r.Reserve(Hold{Ticket: uuid.New(), Side: domain.SideBuy, Cash: d("60")}, acct,
		func(projected domain.Account, _ decimal.Decimal) error {
			seen = projected.CashBalance
			return domain.Invalid(domain.ReasonInsufficientCash, "no")
		})
	if err == nil {
		t.Fatal("expected the check's error")
	}
	if !seen.Equal(d("40")) {
		t.Errorf("check saw %s available, want 40", seen)
	}
	if r.Len() != 1 {
		t.Errorf("failed check must not add a hold, have %d", r.Len())
	}
}
