package refresh

import (
	"context"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
)

// Source is the read side of the execution service.
type Source interface {
	Me(ctx context.Context) (domain.Account, error)
	Portfolios(ctx context.Context) ([]domain.Portfolio, error)
	Portfolio(ctx context.Context, id int64) (domain.Portfolio, error)
	Orders(ctx context.Context) ([]domain.Order, error)
	PortfolioOrders(ctx context.Context, portfolioID int64) ([]domain.Order, error)
	LimitOrders(ctx context.Context, status domain.LimitOrderStatus) ([]domain.LimitOrder, error)
	StopOrders(ctx context.Context, status domain.StopOrderStatus) ([]domain.StopOrder, error)
	Watchlist(ctx context.Context) ([]domain.WatchlistItem, error)
	WatchlistContains(ctx context.Context, symbol string) (bool, error)
	Assets(ctx context.Context, filter string) ([]domain.Asset, error)
}

// Reader is the typed, cached read API over a Source.
type Reader struct {
	q   *Queries
	src Source
}

func NewReader(q *Queries, src Source) *Reader {
	return &Reader{q: q, src: src}
}

func (r *Reader) Queries() *Queries { return r.q }

func (r *Reader) Account(ctx context.Context) (Result[domain.Account], error) {
	return Fetch(ctx, r.q, KeyAccount, r.src.Me)
}

func (r *Reader) Portfolios(ctx context.Context) (Result[[]domain.Portfolio], error) {
	return Fetch(ctx, r.q, KeyPortfolios, r.src.Portfolios)
}

func (r *Reader) Portfolio(ctx context.Context, id int64) (Result[domain.Portfolio], error) {
	return Fetch(ctx, r.q, PortfolioKey(id), func(ctx context.Context) (domain.Portfolio, error) {
		return r.src.Portfolio(ctx, id)
	})
}

func (r *Reader) Orders(ctx context.Context) (Result[[]domain.Order], error) {
	return Fetch(ctx, r.q, KeyOrders, r.src.Orders)
}

func (r *Reader) PortfolioOrders(ctx context.Context, id int64) (Result[[]domain.Order], error) {
	return Fetch(ctx, r.q, PortfolioOrdersKey(id), func(ctx context.Context) ([]domain.Order, error) {
		return r.src.PortfolioOrders(ctx, id)
	})
}

func (r *Reader) LimitOrders(ctx context.Context, status domain.LimitOrderStatus) (Result[[]domain.LimitOrder], error) {
	return Fetch(ctx, r.q, LimitOrdersKey(string(status)), func(ctx context.Context) ([]domain.LimitOrder, error) {
		return r.src.LimitOrders(ctx, status)
	})
}

func (r *Reader) StopOrders(ctx context.Context, status domain.StopOrderStatus) (Result[[]domain.StopOrder], error) {
	return Fetch(ctx, r.q, StopOrdersKey(string(status)), func(ctx context.Context) ([]domain.StopOrder, error) {
		return r.src.StopOrders(ctx, status)
	})
}

func (r *Reader) Watchlist(ctx context.Context) (Result[[]domain.WatchlistItem], error) {
	return Fetch(ctx, r.q, KeyWatchlist, r.src.Watchlist)
}

func (r *Reader) WatchlistContains(ctx context.Context, symbol string) (Result[bool], error) {
	return Fetch(ctx, r.q, WatchlistCheckKey(symbol), func(ctx context.Context) (bool, error) {
		return r.src.WatchlistContains(ctx, symbol)
	})
}

func (r *Reader) Assets(ctx context.Context, filter string) (Result[[]domain.Asset], error) {
	return Fetch(ctx, r.q, AssetsKey(filter), func(ctx context.Context) ([]domain.Asset, error) {
		return r.src.Assets(ctx, filter)
	})
}

func (r *Reader) Apply(ctx context.Context, m Mutation) error { return r.q.Apply(ctx, m) }

// Reset forgets everything cached for the current session.
func (r *Reader) Reset(ctx context.Context) error { return r.q.Reset(ctx) }
