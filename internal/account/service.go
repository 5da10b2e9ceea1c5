// Package account handles cash movements, portfolios and the watchlist.
// Each write is checked locally, sent once, journaled, and followed by the
// refresh protocol whatever its outcome.
package account

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/journal"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/metrics"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/refresh"
)

// MaxDeposit is the largest single deposit the execution service accepts.
var MaxDeposit = decimal.NewFromInt(1_000_000_000)

type API interface {
	Deposit(ctx context.Context, amount decimal.Decimal) (domain.Account, error)
	Withdraw(ctx context.Context, amount decimal.Decimal) (domain.Account, error)
	CreatePortfolio(ctx context.Context, req domain.CreatePortfolioRequest) (domain.Portfolio, error)
	DeletePortfolio(ctx context.Context, id int64) error
	Watch(ctx context.Context, symbol string) (domain.WatchlistItem, error)
	Unwatch(ctx context.Context, symbol string) error
	Logout(ctx context.Context) error
}

type State interface {
	Account(ctx context.Context) (refresh.Result[domain.Account], error)
	Assets(ctx context.Context, filter string) (refresh.Result[[]domain.Asset], error)
	Apply(ctx context.Context, m refresh.Mutation) error
	Reset(ctx context.Context) error
}

// Projector applies in-flight order holds to an account.
type Projector interface {
	Project(acct domain.Account) domain.Account
}

// Watcher keeps the price poller in step with the watchlist.
type Watcher interface {
	Watch(assetType domain.AssetType, symbol string)
	Unwatch(symbol string)
}

type Session interface {
	SubjectFor(ctx context.Context) string
	ClearFor(ctx context.Context)
}

type Service struct {
	api     API
	state   State
	holds   Projector
	watcher Watcher
	session Session
	journal journal.Recorder
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewService(api API, state State, holds Projector, watcher Watcher, session Session, rec journal.Recorder, m *metrics.Metrics, logger *slog.Logger) *Service {
	if rec == nil {
		rec = journal.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		api:     api,
		state:   state,
		holds:   holds,
		watcher: watcher,
		session: session,
		journal: rec,
		metrics: m,
		logger:  logger,
	}
}

func (s *Service) subject(ctx context.Context) string {
	if s.session == nil {
		return ""
	}
	return s.session.SubjectFor(ctx)
}

// Available is the cash the account can spend right now, net of holds.
func (s *Service) Available(ctx context.Context) (domain.Account, error) {
	res, err := s.state.Account(ctx)
	if err != nil {
		return domain.Account{}, fmt.Errorf("get account: %w", err)
	}
	if s.holds == nil {
		return res.Value, nil
	}
	return s.holds.Project(res.Value), nil
}

func (s *Service) Deposit(ctx context.Context, amount decimal.Decimal) (domain.Account, error) {
	if !amount.IsPositive() {
		return domain.Account{}, s.reject(ctx, journal.ActionDeposit, amount,
			domain.Invalid(domain.ReasonInvalidAmount, "deposit amount must be positive"))
	}
	if amount.GreaterThan(MaxDeposit) {
		return domain.Account{}, s.reject(ctx, journal.ActionDeposit, amount,
			domain.Invalid(domain.ReasonInvalidAmount, "deposit amount must not exceed %s", MaxDeposit))
	}
	sendCtx := context.WithoutCancel(ctx)
	acct, err := s.api.Deposit(sendCtx, amount)
	s.after(sendCtx, refresh.Mutation{Kind: refresh.Deposit}, journal.Entry{Action: journal.ActionDeposit, Amount: amount}, err)
	if err != nil {
		return domain.Account{}, fmt.Errorf("deposit: %w", err)
	}
	return acct, nil
}

// Withdraw refuses amounts above the available cash before any request
// is sent.
func (s *Service) Withdraw(ctx context.Context, amount decimal.Decimal) (domain.Account, error) {
	if !amount.IsPositive() {
		return domain.Account{}, s.reject(ctx, journal.ActionWithdraw, amount,
			domain.Invalid(domain.ReasonInvalidAmount, "withdrawal amount must be positive"))
	}
	acct, err := s.Available(ctx)
	if err != nil {
		return domain.Account{}, err
	}
	if amount.GreaterThan(acct.CashBalance) {
		return domain.Account{}, s.reject(ctx, journal.ActionWithdraw, amount,
			domain.Invalid(domain.ReasonInsufficientCash, "withdrawal of %s exceeds available cash %s", amount, acct.CashBalance))
	}
	sendCtx := context.WithoutCancel(ctx)
	updated, err := s.api.Withdraw(sendCtx, amount)
	s.after(sendCtx, refresh.Mutation{Kind: refresh.Withdraw}, journal.Entry{Action: journal.ActionWithdraw, Amount: amount}, err)
	if err != nil {
		return domain.Account{}, fmt.Errorf("withdraw: %w", err)
	}
	return updated, nil
}

func (s *Service) CreatePortfolio(ctx context.Context, req domain.CreatePortfolioRequest) (domain.Portfolio, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if req.Name == "" {
		return domain.Portfolio{}, s.reject(ctx, journal.ActionCreatePortfolio, decimal.Zero,
			domain.Invalid(domain.ReasonInvalidOrder, "portfolio name is required"))
	}
	amount := decimal.Zero
	if req.InitialBalance != nil {
		amount = *req.InitialBalance
		if amount.IsNegative() {
			return domain.Portfolio{}, s.reject(ctx, journal.ActionCreatePortfolio, amount,
				domain.Invalid(domain.ReasonInvalidAmount, "initial balance must not be negative"))
		}
	}
	sendCtx := context.WithoutCancel(ctx)
	p, err := s.api.CreatePortfolio(sendCtx, req)
	s.after(sendCtx, refresh.Mutation{Kind: refresh.CreatePortfolio},
		journal.Entry{Action: journal.ActionCreatePortfolio, Amount: amount, PortfolioID: p.ID, RemoteID: p.ID, Message: req.Name}, err)
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("create portfolio: %w", err)
	}
	return p, nil
}

func (s *Service) DeletePortfolio(ctx context.Context, id int64) error {
	if id <= 0 {
		return s.reject(ctx, journal.ActionDeletePortfolio, decimal.Zero,
			domain.Invalid(domain.ReasonMissingPortfolio, "portfolio is required"))
	}
	sendCtx := context.WithoutCancel(ctx)
	err := s.api.DeletePortfolio(sendCtx, id)
	s.after(sendCtx, refresh.Mutation{Kind: refresh.DeletePortfolio, PortfolioID: id},
		journal.Entry{Action: journal.ActionDeletePortfolio, PortfolioID: id, RemoteID: id}, err)
	if err != nil {
		return fmt.Errorf("delete portfolio %d: %w", id, err)
	}
	return nil
}

func (s *Service) Watch(ctx context.Context, symbol string) (domain.WatchlistItem, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return domain.WatchlistItem{}, s.reject(ctx, journal.ActionWatch, decimal.Zero,
			domain.Invalid(domain.ReasonMissingSymbol, "symbol is required"))
	}
	sendCtx := context.WithoutCancel(ctx)
	item, err := s.api.Watch(sendCtx, symbol)
	s.after(sendCtx, refresh.Mutation{Kind: refresh.WatchAdd, Symbol: symbol},
		journal.Entry{Action: journal.ActionWatch, Symbol: symbol, RemoteID: item.ID}, err)
	if err != nil {
		return domain.WatchlistItem{}, fmt.Errorf("watch %s: %w", symbol, err)
	}
	if s.watcher != nil {
		s.watcher.Watch(item.AssetType, symbol)
	}
	return item, nil
}

func (s *Service) Unwatch(ctx context.Context, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return s.reject(ctx, journal.ActionUnwatch, decimal.Zero,
			domain.Invalid(domain.ReasonMissingSymbol, "symbol is required"))
	}
	sendCtx := context.WithoutCancel(ctx)
	err := s.api.Unwatch(sendCtx, symbol)
	s.after(sendCtx, refresh.Mutation{Kind: refresh.WatchRemove, Symbol: symbol},
		journal.Entry{Action: journal.ActionUnwatch, Symbol: symbol}, err)
	if err != nil {
		return fmt.Errorf("unwatch %s: %w", symbol, err)
	}
	if s.watcher != nil {
		s.watcher.Unwatch(symbol)
	}
	return nil
}

// Logout ends the session locally even when the service call fails.
func (s *Service) Logout(ctx context.Context) error {
	err := s.api.Logout(context.WithoutCancel(ctx))
	if rerr := s.state.Reset(ctx); rerr != nil {
		s.logger.Warn("cache reset on logout failed", "err", rerr)
	}
	if s.session != nil {
		s.session.ClearFor(ctx)
	}
	if err != nil {
		s.logger.Warn("logout request failed", "err", err)
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// SearchAssets lists assets of the given filter ("", "stocks" or "crypto")
// whose symbol or name contains query, case-insensitively.
func (s *Service) SearchAssets(ctx context.Context, filter, query string) ([]domain.Asset, error) {
	res, err := s.state.Assets(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return Search(res.Value, query), nil
}

func Search(assets []domain.Asset, query string) []domain.Asset {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return assets
	}
	var out []domain.Asset
	for _, a := range assets {
		if strings.Contains(strings.ToLower(a.Symbol), query) || strings.Contains(strings.ToLower(a.Name), query) {
			out = append(out, a)
		}
	}
	return out
}

func (s *Service) reject(ctx context.Context, action journal.Action, amount decimal.Decimal, ve *domain.ValidationError) error {
	s.metrics.Rejection(string(ve.Reason))
	s.record(ctx, journal.Entry{Action: action, Amount: amount, Outcome: journal.OutcomeRejected, Message: ve.Message})
	return ve
}

// after runs the refresh protocol for m and journals the outcome.
func (s *Service) after(ctx context.Context, m refresh.Mutation, e journal.Entry, sendErr error) {
	if err := s.state.Apply(ctx, m); err != nil {
		s.logger.Warn("refresh after write failed", "mutation", m.Kind, "err", err)
	}
	e.Invalidated = refresh.Keys(refresh.PlanFor(m))
	e.Outcome = journal.OutcomeOK
	if sendErr != nil {
		e.Outcome, e.Message = journal.OutcomeFailed, sendErr.Error()
		s.logger.Warn("write rejected by execution service", "action", e.Action, "err", sendErr)
	} else {
		s.logger.Info("write applied", "action", e.Action, "amount", e.Amount.String(), "symbol", e.Symbol)
	}
	s.record(ctx, e)
}

func (s *Service) record(ctx context.Context, e journal.Entry) {
	e.Subject = s.subject(ctx)
	if err := s.journal.Record(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Warn("journal record failed", "action", e.Action, "err", err)
	}
}
