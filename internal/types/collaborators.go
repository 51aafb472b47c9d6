package types

import (
	"context"

	"github.com/shopspring/decimal"
)

// SubmitAck is a venue's answer to an order submission. Accepted=false means
// the venue rejected the order on business grounds; that outcome is final and
// never retried.
type SubmitAck struct {
	Accepted     bool
	VenueOrderID string
	Reason       string
}

// VenueOrderStatus is a venue's view of one working order. FilledQuantity and
// AverageFillPrice are cumulative.
type VenueOrderStatus struct {
	Status           OrderStatus
	FilledQuantity   decimal.Decimal
	AverageFillPrice decimal.Decimal
}

// HealthProbeResult is the outcome of a lightweight connectivity check.
type HealthProbeResult struct {
	OK        bool
	LatencyMs float64
}

// VenueTransport is the outbound venue collaborator. Implementations must
// honour ctx cancellation on every call and wrap network-level failures in
// *TransientError so the router can distinguish them from venue rejections.
type VenueTransport interface {
	SubmitOrder(ctx context.Context, venueID string, order *Order) (*SubmitAck, error)
	CancelOrder(ctx context.Context, venueID, venueOrderID string) error
	PollStatus(ctx context.Context, venueID, venueOrderID string) (*VenueOrderStatus, error)
	ProbeHealth(ctx context.Context, venueID string) (*HealthProbeResult, error)
}

// ExposureSource supplies the aggregate portfolio snapshot consumed by risk
// evaluation. It is owned by the surrounding system.
type ExposureSource interface {
	GetExposureSnapshot(ctx context.Context, clientID, portfolioID string) (*ExposureSnapshot, error)
}

// LimitSource resolves the risk limit set applying to a client.
type LimitSource interface {
	LimitsFor(clientID string) RiskLimitSet
}

// AuditSink receives fire-and-forget notifications of order lifecycle and
// risk events. Emit must never block the trading path.
type AuditSink interface {
	Emit(eventType string, payload map[string]interface{})
}
