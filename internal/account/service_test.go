package account

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/execution"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/journal"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/refresh"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fakeService is the execution service plus the cached view of it; the view
// catches up on Apply.
type fakeService struct {
	mu       sync.Mutex
	server   domain.Account
	view     domain.Account
	assets   []domain.Asset
	calls    []string
	applied  []refresh.Mutation
	failWith error
	resets   int
}

func (f *fakeService) call(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.failWith
}

func (f *fakeService) Deposit(_ context.Context, amount decimal.Decimal) (domain.Account, error) {
	if err := f.call("deposit"); err != nil {
		return domain.Account{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.server.CashBalance = f.server.CashBalance.Add(amount)
	f.server.TotalDeposits = f.server.TotalDeposits.Add(amount)
	return f.server, nil
}

func (f *fakeService) Withdraw(_ context.Context, amount decimal.Decimal) (domain.Account, error) {
	if err := f.call("withdraw"); err != nil {
		return domain.Account{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.server.CashBalance = f.server.CashBalance.Sub(amount)
	return f.server, nil
}

func (f *fakeService) CreatePortfolio(_ context.Context, req domain.CreatePortfolioRequest) (domain.Portfolio, error) {
	if err := f.call("create"); err != nil {
		return domain.Portfolio{}, err
	}
	return domain.Portfolio{ID: 9, Name: req.Name}, nil
}

func (f *fakeService) DeletePortfolio(context.Context, int64) error { return f.call("delete") }

func (f *fakeService) Watch(_ context.Context, symbol string) (domain.WatchlistItem, error) {
	if err := f.call("watch"); err != nil {
		return domain.WatchlistItem{}, err
	}
	return domain.WatchlistItem{ID: 3, Symbol: symbol, AssetType: domain.AssetCrypto}, nil
}

func (f *fakeService) Unwatch(context.Context, string) error { return f.call("unwatch") }

func (f *fakeService) Logout(context.Context) error { return f.call("logout") }

func (f *fakeService) Account(context.Context) (refresh.Result[domain.Account], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return refresh.Result[domain.Account]{Value: f.view}, nil
}

func (f *fakeService) Assets(context.Context, string) (refresh.Result[[]domain.Asset], error) {
	return refresh.Result[[]domain.Asset]{Value: f.assets}, nil
}

func (f *fakeService) Apply(_ context.Context, m refresh.Mutation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, m)
	f.view = f.server
	return nil
}

func (f *fakeService) Reset(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

type fakeSession struct{ cleared bool }

func (s *fakeSession) SubjectFor(context.Context) string { return "u1" }
func (s *fakeSession) ClearFor(context.Context)          { s.cleared = true }

type fakeWatcher struct{ watched map[string]domain.AssetType }

func (w *fakeWatcher) Watch(t domain.AssetType, s string) { w.watched[s] = t }
func (w *fakeWatcher) Unwatch(s string)                   { delete(w.watched, s) }

func newService(f *fakeService, holds *execution.Reservations) (*Service, *journal.Memory, *fakeWatcher, *fakeSession) {
	if holds == nil {
		holds = execution.NewReservations()
	}
	rec := journal.NewMemory(0)
	w := &fakeWatcher{watched: map[string]domain.AssetType{}}
	sess := &fakeSession{}
	return NewService(f, f, holds, w, sess, rec, nil, nil), rec, w, sess
}

func TestDepositThenOverdrawnWithdrawal(t *testing.T) {
	f := &fakeService{}
	svc, rec, _, _ := newService(f, nil)
	ctx := context.Background()

	acct, err := svc.Deposit(ctx, d("1000"))
	if err != nil {
		t.Fatal(err)
	}
	if !acct.CashBalance.Equal(d("1000")) {
		t.Errorf("balance = %s, want 1000", acct.CashBalance)
	}

	_, err = svc.Withdraw(ctx, d("1500"))
	ve, ok := domain.AsValidation(err)
	if !ok || ve.Reason != domain.ReasonInsufficientCash {
		t.Fatalf("err = %v, want insufficient_cash", err)
	}
	if len(f.calls) != 1 {
		t.Errorf("calls = %v, want only the deposit", f.calls)
	}
	if !f.view.CashBalance.Equal(d("1000")) {
		t.Errorf("view balance = %s, want 1000", f.view.CashBalance)
	}

	entries, _ := rec.Recent(ctx, "u1", 10)
	if len(entries) != 2 || entries[0].Outcome != journal.OutcomeRejected || entries[1].Outcome != journal.OutcomeOK {
		t.Errorf("journal = %+v", entries)
	}
}

func TestDepositBounds(t *testing.T) {
	f := &fakeService{}
	svc, _, _, _ := newService(f, nil)
	for _, amt := range []string{"0", "-5", "1000000000.01"} {
		_, err := svc.Deposit(context.Background(), d(amt))
		ve, ok := domain.AsValidation(err)
		if !ok || ve.Reason != domain.ReasonInvalidAmount {
			t.Errorf("Deposit(%s) = %v, want invalid_amount", amt, err)
		}
	}
	if _, err := svc.Deposit(context.Background(), MaxDeposit); err != nil {
		t.Errorf("max deposit: %v", err)
	}
	if len(f.calls) != 1 {
		t.Errorf("calls = %v, want 1", f.calls)
	}
}

func TestWithdrawRespectsHolds(t *testing.T) {
	f := &fakeService{server: domain.Account{CashBalance: d("1000")}}
	f.view = f.server
	holds := execution.NewReservations()
	err := holds.Reserve(execution.Hold{Ticket: uuid.New(), Side: domain.SideBuy, Cash: d("800")}, f.view,
		func(domain.Account, decimal.Decimal) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	svc, _, _, _ := newService(f, holds)

	_, err = svc.Withdraw(context.Background(), d("500"))
	if ve, ok := domain.AsValidation(err); !ok || ve.Reason != domain.ReasonInsufficientCash {
		t.Errorf("err = %v, want insufficient_cash with 800 on hold", err)
	}
	if _, err := svc.Withdraw(context.Background(), d("200")); err != nil {
		t.Errorf("withdraw within available: %v", err)
	}
}

func TestServiceErrorStillRefreshes(t *testing.T) {
	f := &fakeService{failWith: &domain.ServiceError{Status: http.StatusBadRequest, Message: "nope"}}
	svc, rec, _, _ := newService(f, nil)

	_, err := svc.Deposit(context.Background(), d("10"))
	if _, ok := domain.AsService(err); !ok {
		t.Fatalf("err = %v, want service error", err)
	}
	if len(f.applied) != 1 || f.applied[0].Kind != refresh.Deposit {
		t.Errorf("applied = %+v, want one deposit refresh", f.applied)
	}
	entries, _ := rec.Recent(context.Background(), "u1", 1)
	if len(entries) != 1 || entries[0].Outcome != journal.OutcomeFailed {
		t.Errorf("journal = %+v", entries)
	}
}

func TestCreatePortfolioValidation(t *testing.T) {
	f := &fakeService{}
	svc, _, _, _ := newService(f, nil)
	neg := d("-1")
	cases := []domain.CreatePortfolioRequest{
		{Name: "  "},
		{Name: "Growth", InitialBalance: &neg},
	}
	for _, req := range cases {
		if _, err := svc.CreatePortfolio(context.Background(), req); err == nil {
			t.Errorf("CreatePortfolio(%+v) succeeded", req)
		}
	}
	p, err := svc.CreatePortfolio(context.Background(), domain.CreatePortfolioRequest{Name: " Growth "})
	if err != nil || p.Name != "Growth" {
		t.Errorf("got %+v, %v", p, err)
	}
	if len(f.applied) != 1 || f.applied[0].Kind != refresh.CreatePortfolio {
		t.Errorf("applied = %+v", f.applied)
	}
}

func TestDeletePortfolioDropsKeys(t *testing.T) {
	f := &fakeService{}
	svc, _, _, _ := newService(f, nil)
	if err := svc.DeletePortfolio(context.Background(), 0); err == nil {
		t.Error("expected missing portfolio")
	}
	if err := svc.DeletePortfolio(context.Background(), 4); err != nil {
		t.Fatal(err)
	}
	if f.applied[0].Kind != refresh.DeletePortfolio || f.applied[0].PortfolioID != 4 {
		t.Errorf("applied = %+v", f.applied)
	}
}

func TestWatchKeepsPollerInStep(t *testing.T) {
	f := &fakeService{}
	svc, _, w, _ := newService(f, nil)
	if _, err := svc.Watch(context.Background(), "btc"); err != nil {
		t.Fatal(err)
	}
	if w.watched["BTC"] != domain.AssetCrypto {
		t.Errorf("watched = %v", w.watched)
	}
	if err := svc.Unwatch(context.Background(), "BTC"); err != nil {
		t.Fatal(err)
	}
	if len(w.watched) != 0 {
		t.Errorf("watched = %v after unwatch", w.watched)
	}
	if _, err := svc.Watch(context.Background(), ""); err == nil {
		t.Error("expected missing symbol")
	}
}

func TestLogoutClearsSessionOnFailure(t *testing.T) {
	f := &fakeService{failWith: errors.New("connection refused")}
	svc, _, _, sess := newService(f, nil)
	if err := svc.Logout(context.Background()); err == nil {
		t.Error("expected logout error")
	}
	if !sess.cleared {
		t.Error("session not cleared")
	}
	if f.resets != 1 {
		t.Errorf("resets = %d, want 1", f.resets)
	}
}

func TestSearch(t *testing.T) {
	assets := []domain.Asset{
		{Symbol: "AAPL", Name: "Apple Inc."},
		{Symbol: "BTC", Name: "Bitcoin"},
		{Symbol: "PINE", Name: "Pineapple Co"},
	}
	got := Search(assets, "apple")
	if len(got) != 2 || got[0].Symbol != "AAPL" || got[1].Symbol != "PINE" {
		t.Errorf("got %+v", got)
	}
	if len(Search(assets, "")) != 3 {
		t.Error("empty query must return everything")
	}
}
