// Package journal records every mutation the client sends to the execution
// service and how it ended.
package journal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Action string

const (
	ActionMarketOrder     Action = "market_order"
	ActionLimitOrder      Action = "limit_order"
	ActionStopOrder       Action = "stop_order"
	ActionCancelLimit     Action = "cancel_limit"
	ActionCancelStop      Action = "cancel_stop"
	ActionDeposit         Action = "deposit"
	ActionWithdraw        Action = "withdraw"
	ActionCreatePortfolio Action = "create_portfolio"
	ActionDeletePortfolio Action = "delete_portfolio"
	ActionWatch           Action = "watch"
	ActionUnwatch         Action = "unwatch"
)

type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

type Entry struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	Subject     string          `db:"subject" json:"subject"`
	Action      Action          `db:"action" json:"action"`
	PortfolioID int64           `db:"portfolio_id" json:"portfolioId,omitempty"`
	Symbol      string          `db:"symbol" json:"symbol,omitempty"`
	Side        string          `db:"side" json:"side,omitempty"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Outcome     Outcome         `db:"outcome" json:"outcome"`
	Message     string          `db:"message" json:"message,omitempty"`
	RemoteID    int64           `db:"remote_id" json:"remoteId,omitempty"`
	Invalidated []string        `db:"-" json:"invalidated,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
}

// Recorder persists entries. Recording is best effort: callers log a failed
// Record and carry on.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, subject string, limit int) ([]Entry, error)
}

// Stamp fills the id and creation time when they are unset.
func Stamp(e *Entry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
}

// Memory keeps entries in process, newest last.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
	limit   int
}

// NewMemory keeps at most limit entries; limit <= 0 keeps 1000.
func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = 1000
	}
	return &Memory{limit: limit}
}

func (m *Memory) Record(_ context.Context, e Entry) error {
	Stamp(&e)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	if over := len(m.entries) - m.limit; over > 0 {
		m.entries = append([]Entry(nil), m.entries[over:]...)
	}
	return nil
}

// Recent returns the subject's latest entries, newest first.
func (m *Memory) Recent(_ context.Context, subject string, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if subject != "" && m.entries[i].Subject != subject {
			continue
		}
		out = append(out, m.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

func (Nop) Recent(context.Context, string, int) ([]Entry, error) { return nil, nil }
