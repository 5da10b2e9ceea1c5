package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/journal"
)

// JournalRepo is the durable journal.Recorder.
type JournalRepo struct {
	db *sqlx.DB
}

func NewJournalRepo(db *sqlx.DB) *JournalRepo {
	return &JournalRepo{db: db}
}

func (r *JournalRepo) Record(ctx context.Context, e journal.Entry) error {
	journal.Stamp(&e)
	query := `
		INSERT INTO journal (id, subject, action, portfolio_id, symbol, side, quantity, price,
			amount, outcome, message, remote_id, invalidated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Subject, e.Action, e.PortfolioID, e.Symbol, e.Side, e.Quantity, e.Price,
		e.Amount, e.Outcome, e.Message, e.RemoteID, pq.Array(e.Invalidated), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// Recent returns the subject's latest entries, newest first.
func (r *JournalRepo) Recent(ctx context.Context, subject string, limit int) ([]journal.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, subject, action, portfolio_id, symbol, side, quantity, price,
			amount, outcome, message, remote_id, invalidated, created_at
		FROM journal WHERE subject = $1 ORDER BY created_at DESC LIMIT $2`, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("select journal: %w", err)
	}
	defer rows.Close()

	var entries []journal.Entry
	for rows.Next() {
		var e journal.Entry
		if err := rows.Scan(&e.ID, &e.Subject, &e.Action, &e.PortfolioID, &e.Symbol, &e.Side,
			&e.Quantity, &e.Price, &e.Amount, &e.Outcome, &e.Message, &e.RemoteID,
			pq.Array(&e.Invalidated), &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
