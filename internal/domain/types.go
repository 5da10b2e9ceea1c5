package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

func init() {
	// The execution service reads money and quantities as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

type AssetType string

const (
	AssetStock  AssetType = "STOCK"
	AssetCrypto AssetType = "CRYPTO"
)

// ParseAssetType reads "crypto" in any case as AssetCrypto and everything
// else as AssetStock.
func ParseAssetType(s string) AssetType {
	if strings.EqualFold(s, "crypto") {
		return AssetCrypto
	}
	return AssetStock
}

// Path returns the lowercase segment the price endpoints use for the type.
func (t AssetType) Path() string {
	if t == AssetCrypto {
		return "crypto"
	}
	return "stock"
}

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

func (s OrderSide) Valid() bool { return s == SideBuy || s == SideSell }

type OrderKind string

const (
	KindMarket OrderKind = "market"
	KindLimit  OrderKind = "limit"
	KindStop   OrderKind = "stop"
)

func (k OrderKind) Valid() bool {
	switch k {
	case KindMarket, KindLimit, KindStop:
		return true
	}
	return false
}

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusCompleted OrderStatus = "COMPLETED"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusFailed    OrderStatus = "FAILED"
)

func (s OrderStatus) Terminal() bool { return s != StatusPending }

type LimitOrderStatus string

const (
	LimitPending   LimitOrderStatus = "PENDING"
	LimitFilled    LimitOrderStatus = "FILLED"
	LimitCancelled LimitOrderStatus = "CANCELLED"
	LimitExpired   LimitOrderStatus = "EXPIRED"
)

func (s LimitOrderStatus) Terminal() bool { return s != LimitPending }

type StopOrderStatus string

const (
	StopPending   StopOrderStatus = "PENDING"
	StopTriggered StopOrderStatus = "TRIGGERED"
	StopFilled    StopOrderStatus = "FILLED"
	StopCancelled StopOrderStatus = "CANCELLED"
)

func (s StopOrderStatus) Terminal() bool { return s == StopFilled || s == StopCancelled }

// Account is the authenticated user's cash position as reported by /users/me.
// CashBalance is the available cash; ReservedCash is held by pending limit buys.
type Account struct {
	ID               int64           `json:"id"`
	Username         string          `json:"username"`
	Email            string          `json:"email"`
	FirstName        string          `json:"firstName,omitempty"`
	LastName         string          `json:"lastName,omitempty"`
	CashBalance      decimal.Decimal `json:"cashBalance"`
	ReservedCash     decimal.Decimal `json:"reservedCash"`
	TotalDeposits    decimal.Decimal `json:"totalDeposits"`
	TotalWithdrawals decimal.Decimal `json:"totalWithdrawals"`
	CreatedAt        Timestamp       `json:"createdAt"`
}

type Portfolio struct {
	ID          int64               `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	CashBalance decimal.Decimal     `json:"cashBalance"`
	TotalValue  decimal.NullDecimal `json:"totalValue"`
	Holdings    []Holding           `json:"holdings"`
	CreatedAt   Timestamp           `json:"createdAt"`
	UpdatedAt   Timestamp           `json:"updatedAt"`
}

// Holding returns the holding for symbol, if the portfolio has one.
func (p Portfolio) Holding(symbol string) (Holding, bool) {
	for _, h := range p.Holdings {
		if strings.EqualFold(h.Symbol, symbol) {
			return h, true
		}
	}
	return Holding{}, false
}

type Holding struct {
	ID                int64               `json:"id"`
	Symbol            string              `json:"symbol"`
	AssetName         string              `json:"assetName"`
	AssetType         AssetType           `json:"assetType"`
	Quantity          decimal.Decimal     `json:"quantity"`
	AverageBuyPrice   decimal.Decimal     `json:"averageBuyPrice"`
	CurrentPrice      decimal.NullDecimal `json:"currentPrice"`
	CurrentValue      decimal.NullDecimal `json:"currentValue"`
	ProfitLoss        decimal.NullDecimal `json:"profitLoss"`
	ProfitLossPercent decimal.NullDecimal `json:"profitLossPercent"`
}

type Asset struct {
	ID                    int64               `json:"id"`
	Symbol                string              `json:"symbol"`
	Name                  string              `json:"name"`
	Type                  AssetType           `json:"type"`
	Description           string              `json:"description,omitempty"`
	LogoURL               string              `json:"logoUrl,omitempty"`
	CurrentPrice          decimal.NullDecimal `json:"currentPrice"`
	PriceChange24h        decimal.NullDecimal `json:"priceChange24h"`
	PriceChangePercent24h decimal.NullDecimal `json:"priceChangePercent24h"`
}

// Order is an executed (or failed) market order.
type Order struct {
	ID           int64           `json:"id"`
	Symbol       string          `json:"symbol"`
	AssetName    string          `json:"assetName"`
	AssetType    AssetType       `json:"assetType"`
	Side         OrderSide       `json:"type"`
	Status       OrderStatus     `json:"status"`
	Quantity     decimal.Decimal `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"pricePerUnit"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	CreatedAt    Timestamp       `json:"createdAt"`
}

type OrderRequest struct {
	PortfolioID int64           `json:"portfolioId"`
	Symbol      string          `json:"symbol"`
	Side        OrderSide       `json:"type"`
	Quantity    decimal.Decimal `json:"quantity"`
}

type LimitOrder struct {
	ID             int64               `json:"id"`
	PortfolioID    int64               `json:"portfolioId"`
	PortfolioName  string              `json:"portfolioName"`
	Symbol         string              `json:"symbol"`
	AssetName      string              `json:"assetName"`
	AssetType      AssetType           `json:"assetType"`
	Side           OrderSide           `json:"type"`
	TargetPrice    decimal.Decimal     `json:"targetPrice"`
	Quantity       decimal.Decimal     `json:"quantity"`
	ReservedAmount decimal.Decimal     `json:"reservedAmount"`
	Status         LimitOrderStatus    `json:"status"`
	FilledPrice    decimal.NullDecimal `json:"filledPrice"`
	FilledAt       *Timestamp          `json:"filledAt,omitempty"`
	CreatedAt      Timestamp           `json:"createdAt"`
	CurrentPrice   decimal.NullDecimal `json:"currentPrice"`
}

type LimitOrderRequest struct {
	PortfolioID int64           `json:"portfolioId"`
	Symbol      string          `json:"symbol"`
	Side        OrderSide       `json:"type"`
	TargetPrice decimal.Decimal `json:"targetPrice"`
	Quantity    decimal.Decimal `json:"quantity"`
}

type StopOrder struct {
	ID            int64               `json:"id"`
	PortfolioID   int64               `json:"portfolioId"`
	PortfolioName string              `json:"portfolioName"`
	Symbol        string              `json:"symbol"`
	AssetName     string              `json:"assetName"`
	AssetType     AssetType           `json:"assetType"`
	Side          OrderSide           `json:"type"`
	StopPrice     decimal.Decimal     `json:"stopPrice"`
	Quantity      decimal.Decimal     `json:"quantity"`
	Status        StopOrderStatus     `json:"status"`
	FilledPrice   decimal.NullDecimal `json:"filledPrice"`
	TriggeredAt   *Timestamp          `json:"triggeredAt,omitempty"`
	FilledAt      *Timestamp          `json:"filledAt,omitempty"`
	CreatedAt     Timestamp           `json:"createdAt"`
	CurrentPrice  decimal.NullDecimal `json:"currentPrice"`
}

type StopOrderRequest struct {
	PortfolioID int64           `json:"portfolioId"`
	Symbol      string          `json:"symbol"`
	Side        OrderSide       `json:"type"`
	StopPrice   decimal.Decimal `json:"stopPrice"`
	Quantity    decimal.Decimal `json:"quantity"`
}

type WatchlistItem struct {
	ID                    int64               `json:"id"`
	AssetID               int64               `json:"assetId"`
	Symbol                string              `json:"symbol"`
	Name                  string              `json:"name"`
	AssetType             AssetType           `json:"assetType"`
	CurrentPrice          decimal.NullDecimal `json:"currentPrice"`
	PriceChange24h        decimal.NullDecimal `json:"priceChange24h"`
	PriceChangePercent24h decimal.NullDecimal `json:"priceChangePercent24h"`
	AddedAt               Timestamp           `json:"addedAt"`
}

type PriceQuote struct {
	Symbol        string              `json:"symbol"`
	Price         decimal.Decimal     `json:"price"`
	Open          decimal.NullDecimal `json:"open"`
	High          decimal.NullDecimal `json:"high"`
	Low           decimal.NullDecimal `json:"low"`
	PreviousClose decimal.NullDecimal `json:"previousClose"`
	Change        decimal.NullDecimal `json:"change"`
	ChangePercent decimal.NullDecimal `json:"changePercent"`
	Volume        *int64              `json:"volume,omitempty"`
	Timestamp     Timestamp           `json:"timestamp"`
}

type CreatePortfolioRequest struct {
	Name           string           `json:"name"`
	Description    string           `json:"description,omitempty"`
	InitialBalance *decimal.Decimal `json:"initialBalance,omitempty"`
}

type CashRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// Envelope is the wrapper every execution service response uses.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}
