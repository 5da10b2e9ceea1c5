package refresh

import "strings"

type MutationKind string

const (
	PlaceOrder      MutationKind = "place_order"
	CancelOrder     MutationKind = "cancel_order"
	Deposit         MutationKind = "deposit"
	Withdraw        MutationKind = "withdraw"
	CreatePortfolio MutationKind = "create_portfolio"
	DeletePortfolio MutationKind = "delete_portfolio"
	WatchAdd        MutationKind = "watch_add"
	WatchRemove     MutationKind = "watch_remove"
)

// Mutation describes a write the execution service acknowledged (or may
// have applied). PortfolioID and Symbol are set when the kind needs them.
type Mutation struct {
	Kind        MutationKind
	PortfolioID int64
	Symbol      string
}

// Target is one step of an invalidation plan. Drop removes the keys
// outright instead of marking them for refetch.
type Target struct {
	Key   Key
	Exact bool
	Drop  bool
}

// PlanFor lists the keys a mutation invalidates.
func PlanFor(m Mutation) []Target {
	switch m.Kind {
	case PlaceOrder, CancelOrder:
		plan := []Target{{Key: KeyAccount}, {Key: KeyPortfolios}}
		if m.PortfolioID != 0 {
			plan = append(plan,
				Target{Key: PortfolioKey(m.PortfolioID)},
				Target{Key: PortfolioOrdersKey(m.PortfolioID)},
			)
		}
		return append(plan,
			Target{Key: KeyOrders},
			Target{Key: KeyLimitOrders},
			Target{Key: KeyStopOrders},
		)
	case Deposit, Withdraw:
		return []Target{{Key: KeyAccount}}
	case CreatePortfolio:
		return []Target{{Key: KeyPortfolios}}
	case DeletePortfolio:
		return []Target{
			{Key: KeyPortfolios},
			{Key: PortfolioKey(m.PortfolioID), Drop: true},
			{Key: PortfolioOrdersKey(m.PortfolioID), Drop: true},
		}
	case WatchAdd, WatchRemove:
		return []Target{
			{Key: KeyWatchlist, Exact: true},
			{Key: WatchlistCheckKey(strings.ToUpper(m.Symbol)), Exact: true},
		}
	}
	return nil
}

// Keys flattens a plan for logging and the journal.
func Keys(plan []Target) []string {
	out := make([]string, 0, len(plan))
	for _, t := range plan {
		out = append(out, t.Key.String())
	}
	return out
}
