package refresh

import (
	"fmt"
	"strings"
)

// Key names one cached read. Keys are path-like so a plan can target a
// whole family: "limit-orders" also covers "limit-orders/PENDING".
type Key string

const (
	KeyAccount     Key = "me"
	KeyPortfolios  Key = "portfolios"
	KeyOrders      Key = "orders"
	KeyLimitOrders Key = "limit-orders"
	KeyStopOrders  Key = "stop-orders"
	KeyWatchlist   Key = "watchlist"
	KeyAssets      Key = "assets"
	KeyPrice       Key = "price"
)

func PortfolioKey(id int64) Key { return Key(fmt.Sprintf("portfolio/%d", id)) }

func PortfolioOrdersKey(id int64) Key { return Key(fmt.Sprintf("orders-portfolio/%d", id)) }

func LimitOrdersKey(status string) Key { return withSuffix(KeyLimitOrders, status) }

func StopOrdersKey(status string) Key { return withSuffix(KeyStopOrders, status) }

func WatchlistCheckKey(symbol string) Key {
	return Key("watchlist/check/" + strings.ToUpper(symbol))
}

func AssetsKey(filter string) Key { return withSuffix(KeyAssets, strings.ToLower(filter)) }

func PriceKey(assetType, symbol string) Key {
	return Key("price/" + strings.ToLower(assetType) + "/" + strings.ToUpper(symbol))
}

func withSuffix(k Key, suffix string) Key {
	if suffix == "" {
		return k
	}
	return k + "/" + Key(suffix)
}

// Matches reports whether k is covered by target. An exact target covers
// only itself; otherwise any key below target on a "/" boundary matches.
func (k Key) Matches(target Key, exact bool) bool {
	if k == target {
		return true
	}
	if exact {
		return false
	}
	return strings.HasPrefix(string(k), string(target)+"/")
}

func (k Key) String() string { return string(k) }
