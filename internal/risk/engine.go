package risk

import (
	"github.com/shopspring/decimal"

	"github.com/finai-nexus/execution-core/internal/types"
)

// Violation kinds produced by the engine, in evaluation order.
const (
	ViolationPositionSize = "POSITION_SIZE"
	ViolationDailyLoss    = "DAILY_LOSS"
	ViolationLeverage     = "LEVERAGE"
	ViolationCorrelation  = "CORRELATION"
)

var two = decimal.NewFromInt(2)

// Engine evaluates prospective orders against configured risk limits.
// Evaluation is a pure function of its inputs: identical order, exposure and
// limits always yield the identical assessment.
type Engine struct{}

// NewEngine creates a new risk limit engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate runs the fixed sequence of limit checks for an order against the
// supplied exposure snapshot. Every check is recorded in the assessment even
// when an earlier one already forces a block.
//
// Decision policy: any CRITICAL violation blocks; otherwise any HIGH
// violation allows with a warning; otherwise the order is allowed.
func (e *Engine) Evaluate(order *types.Order, exposure *types.ExposureSnapshot, limits types.RiskLimitSet) types.RiskAssessment {
	assessment := types.RiskAssessment{
		OrderID:  order.OrderID,
		Decision: types.DecisionAllow,
	}

	price := order.ReferencePrice(exposure.MarkPriceFor(order.Symbol))
	notional := order.Quantity.Mul(price)

	// 1. Position size: projected position value against the ceiling.
	projectedPosition := exposure.PositionValue.Add(notional)
	if limits.MaxPositionSize.IsPositive() && projectedPosition.GreaterThan(limits.MaxPositionSize) {
		severity := types.SeverityHigh
		if projectedPosition.GreaterThan(limits.MaxPositionSize.Mul(two)) {
			severity = types.SeverityCritical
		}
		assessment.Violations = append(assessment.Violations, types.Violation{
			Kind:          ViolationPositionSize,
			Severity:      severity,
			LimitValue:    limits.MaxPositionSize,
			ObservedValue: projectedPosition,
		})
	}

	// 2. Daily loss: already-realized losses at or above the limit block
	// unconditionally.
	if limits.MaxDailyLoss.IsPositive() && exposure.RealizedLossToday.GreaterThanOrEqual(limits.MaxDailyLoss) {
		assessment.Violations = append(assessment.Violations, types.Violation{
			Kind:          ViolationDailyLoss,
			Severity:      types.SeverityCritical,
			LimitValue:    limits.MaxDailyLoss,
			ObservedValue: exposure.RealizedLossToday,
		})
	}

	// 3. Leverage after a hypothetical full fill.
	projectedLeverage := e.projectedLeverage(exposure, notional)
	if limits.MaxLeverage.IsPositive() && projectedLeverage.GreaterThan(limits.MaxLeverage) {
		assessment.Violations = append(assessment.Violations, types.Violation{
			Kind:          ViolationLeverage,
			Severity:      types.SeverityHigh,
			LimitValue:    limits.MaxLeverage,
			ObservedValue: projectedLeverage,
		})
	}

	// 4. Correlation to the rest of the portfolio: warning only, never a
	// block on its own.
	correlation := exposure.CorrelationTo(order.Symbol)
	if limits.CorrelationLimit.IsPositive() && correlation.GreaterThan(limits.CorrelationLimit) {
		assessment.Violations = append(assessment.Violations, types.Violation{
			Kind:          ViolationCorrelation,
			Severity:      types.SeverityMedium,
			LimitValue:    limits.CorrelationLimit,
			ObservedValue: correlation,
		})
	}

	assessment.Decision = decide(assessment.Violations)
	return assessment
}

// projectedLeverage estimates leverage after the order fills in full. When
// the snapshot carries no equity figure the current leverage is used as-is.
func (e *Engine) projectedLeverage(exposure *types.ExposureSnapshot, notional decimal.Decimal) decimal.Decimal {
	if exposure.Equity.IsPositive() {
		return exposure.PositionValue.Add(notional).Div(exposure.Equity)
	}
	return exposure.Leverage
}

func decide(violations []types.Violation) types.Decision {
	decision := types.DecisionAllow
	for _, v := range violations {
		switch v.Severity {
		case types.SeverityCritical:
			return types.DecisionBlock
		case types.SeverityHigh:
			decision = types.DecisionAllowWarn
		}
	}
	return decision
}
