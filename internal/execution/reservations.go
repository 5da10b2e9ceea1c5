package execution

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
)

// Hold is cash or quantity set aside for a submission that has not been
// reflected by a refetch yet.
type Hold struct {
	Ticket      uuid.UUID
	PortfolioID int64
	Symbol      string
	Side        domain.OrderSide
	Cash        decimal.Decimal
	Quantity    decimal.Decimal
}

// Reservations is the process-local hold book. It is an overlay on the
// cached account and is never written into it.
type Reservations struct {
	mu    sync.Mutex
	holds map[uuid.UUID]Hold
}

func NewReservations() *Reservations {
	return &Reservations{holds: make(map[uuid.UUID]Hold)}
}

// Reserve runs check against the account as the open holds leave it and,
// if it passes, records h. Both happen under one lock, so two submissions
// can never spend the same cash. A second hold for the same ticket is
// refused as a duplicate.
func (r *Reservations) Reserve(h Hold, acct domain.Account, check func(projected domain.Account, committed decimal.Decimal) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.holds[h.Ticket]; ok {
		return domain.Invalid(domain.ReasonDuplicateSubmission, "order %s is already being submitted", h.Ticket)
	}
	if check != nil {
		if err := check(r.project(acct), r.committed(h.PortfolioID, h.Symbol)); err != nil {
			return err
		}
	}
	r.holds[h.Ticket] = h
	return nil
}

func (r *Reservations) Release(ticket uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.holds, ticket)
}

// Project returns acct with every open cash hold moved from available to
// reserved.
func (r *Reservations) Project(acct domain.Account) domain.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.project(acct)
}

func (r *Reservations) project(acct domain.Account) domain.Account {
	for _, h := range r.holds {
		acct.CashBalance = acct.CashBalance.Sub(h.Cash)
		acct.ReservedCash = acct.ReservedCash.Add(h.Cash)
	}
	return acct
}

// Committed is the sell quantity open holds have taken from a holding.
func (r *Reservations) Committed(portfolioID int64, symbol string) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.committed(portfolioID, symbol)
}

func (r *Reservations) committed(portfolioID int64, symbol string) decimal.Decimal {
	total := decimal.Zero
	for _, h := range r.holds {
		if h.Side == domain.SideSell && h.PortfolioID == portfolioID && strings.EqualFold(h.Symbol, symbol) {
			total = total.Add(h.Quantity)
		}
	}
	return total
}

func (r *Reservations) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.holds)
}
