package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeStop   OrderType = "STOP"
)

type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
	TimeInForceDay TimeInForce = "DAY"
)

// OrderStatus is the lifecycle state of an order in the local ledger.
// Transitions between statuses are validated by the orderbook package;
// terminal statuses are never left once entered.
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusSubmitted       OrderStatus = "SUBMITTED"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusExpired         OrderStatus = "EXPIRED"
	StatusFailed          OrderStatus = "FAILED"
)

// IsTerminal reports whether s is a terminal lifecycle state.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired, StatusFailed:
		return true
	}
	return false
}

// Order represents one client intent to trade. It is created by the
// execution router on placement and mutated only through the orderbook's
// UpdateStatus contract afterwards.
type Order struct {
	gorm.Model       `json:"-"`
	OrderID          string          `gorm:"uniqueIndex" json:"order_id"`
	ClientID         string          `json:"client_id"`
	PortfolioID      string          `json:"portfolio_id"`
	Symbol           string          `json:"symbol"`
	Side             Side            `json:"side"`
	OrderType        OrderType       `json:"order_type"`
	Quantity         decimal.Decimal `gorm:"type:decimal(32,16)" json:"quantity"`
	LimitPrice       decimal.Decimal `gorm:"type:decimal(32,16)" json:"limit_price"`
	StopPrice        decimal.Decimal `gorm:"type:decimal(32,16)" json:"stop_price"`
	TimeInForce      TimeInForce     `json:"time_in_force"`
	StrategyTag      string          `json:"strategy_tag,omitempty"`
	Status           OrderStatus     `json:"status"`
	VenueID          string          `json:"venue_id,omitempty"`
	VenueOrderID     string          `json:"venue_order_id,omitempty"`
	FilledQuantity   decimal.Decimal `gorm:"type:decimal(32,16)" json:"filled_quantity"`
	AverageFillPrice decimal.Decimal `gorm:"type:decimal(32,16)" json:"average_fill_price"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// ReferencePrice returns the price used for notional calculations: the limit
// price when one is set, otherwise the supplied mark price.
func (o *Order) ReferencePrice(markPrice decimal.Decimal) decimal.Decimal {
	if !o.LimitPrice.IsZero() {
		return o.LimitPrice
	}
	return markPrice
}
