package venue

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConnectionState tracks how reachable a venue currently is.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "DISCONNECTED"
	StateConnected    ConnectionState = "CONNECTED"
	StateUnstable     ConnectionState = "UNSTABLE"
	StateFailed       ConnectionState = "FAILED"
)

// FeeSchedule holds a venue's maker/taker rates as fractions of notional.
type FeeSchedule struct {
	Maker decimal.Decimal `json:"maker"`
	Taker decimal.Decimal `json:"taker"`
}

// OrderLimits bounds the order sizes a venue accepts.
type OrderLimits struct {
	MinQuantity decimal.Decimal `json:"min_quantity"`
	MaxQuantity decimal.Decimal `json:"max_quantity"`
}

// Account is one connected trading venue. Accounts are created when the
// registry is built and are never removed at runtime; a venue that should no
// longer receive flow is marked disabled instead.
type Account struct {
	VenueID             string          `json:"venue_id"`
	DisplayName         string          `json:"display_name"`
	ConnectionState     ConnectionState `json:"connection_state"`
	SupportedPairs      map[string]bool `json:"supported_pairs"`
	Fees                FeeSchedule     `json:"fees"`
	Limits              OrderLimits     `json:"limits"`
	LastHeartbeatAt     time.Time       `json:"last_heartbeat_at"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	ObservedLatencyMs   float64         `json:"observed_latency_ms"`
	Disabled            bool            `json:"disabled"`
}

// Supports reports whether the venue trades the given symbol.
func (a *Account) Supports(symbol string) bool {
	return a.SupportedPairs[symbol]
}
