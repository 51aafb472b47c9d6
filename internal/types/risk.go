package types

import "github.com/shopspring/decimal"

// RiskLimitSet holds the configured ceilings an order is evaluated against.
// The trading flow only ever reads these values; they are owned and mutated
// by configuration, not by this core.
type RiskLimitSet struct {
	MaxPositionSize     decimal.Decimal `json:"max_position_size"`
	MaxDailyLoss        decimal.Decimal `json:"max_daily_loss"`
	MaxLeverage         decimal.Decimal `json:"max_leverage"`
	CorrelationLimit    decimal.Decimal `json:"correlation_limit"`
	VolatilityThreshold decimal.Decimal `json:"volatility_threshold"`
	LiquidityThreshold  decimal.Decimal `json:"liquidity_threshold"`
}

// ExposureSnapshot is an aggregate view of a portfolio at one point in time,
// supplied by the external portfolio collaborator. The core consumes the
// snapshot as-is and never derives exposure itself.
type ExposureSnapshot struct {
	PositionValue     decimal.Decimal            `json:"position_value"`
	Equity            decimal.Decimal            `json:"equity"`
	Leverage          decimal.Decimal            `json:"leverage"`
	RealizedLossToday decimal.Decimal            `json:"realized_loss_today"`
	Correlations      map[string]decimal.Decimal `json:"correlations,omitempty"`
	MarkPrices        map[string]decimal.Decimal `json:"mark_prices,omitempty"`
}

// CorrelationTo returns the portfolio correlation for a symbol, zero when the
// snapshot carries no figure for it.
func (s *ExposureSnapshot) CorrelationTo(symbol string) decimal.Decimal {
	if s.Correlations == nil {
		return decimal.Zero
	}
	return s.Correlations[symbol]
}

// MarkPriceFor returns the last known price for a symbol, zero when unknown.
func (s *ExposureSnapshot) MarkPriceFor(symbol string) decimal.Decimal {
	if s.MarkPrices == nil {
		return decimal.Zero
	}
	return s.MarkPrices[symbol]
}

type Severity string

const (
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

type Decision string

const (
	DecisionAllow     Decision = "ALLOW"
	DecisionAllowWarn Decision = "ALLOW_WITH_WARNING"
	DecisionBlock     Decision = "BLOCK"
)

// Violation records a single limit breach found during risk evaluation.
type Violation struct {
	Kind          string          `json:"kind"`
	Severity      Severity        `json:"severity"`
	LimitValue    decimal.Decimal `json:"limit_value"`
	ObservedValue decimal.Decimal `json:"observed_value"`
}

// RiskAssessment is the outcome of evaluating one order against a limit set
// and an exposure snapshot. It references the order by ID only and is never
// persisted beyond the audit trail.
type RiskAssessment struct {
	OrderID    string      `json:"order_id"`
	Violations []Violation `json:"violations,omitempty"`
	Decision   Decision    `json:"decision"`
}

// Warnings returns the non-blocking violations of the assessment.
func (a *RiskAssessment) Warnings() []Violation {
	var out []Violation
	for _, v := range a.Violations {
		if v.Severity != SeverityCritical {
			out = append(out, v)
		}
	}
	return out
}
