package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/finai-nexus/execution-core/internal/audit"
	"github.com/finai-nexus/execution-core/internal/metrics"
	"github.com/finai-nexus/execution-core/internal/orderbook"
	"github.com/finai-nexus/execution-core/internal/risk"
	"github.com/finai-nexus/execution-core/internal/types"
	"github.com/finai-nexus/execution-core/internal/venue"
)

// PlaceOrderRequest is the caller's order intent before validation.
type PlaceOrderRequest struct {
	ClientID    string            `json:"client_id"`
	PortfolioID string            `json:"portfolio_id"`
	Symbol      string            `json:"symbol"`
	Side        types.Side        `json:"side"`
	OrderType   types.OrderType   `json:"order_type"`
	Quantity    decimal.Decimal   `json:"quantity"`
	LimitPrice  decimal.Decimal   `json:"limit_price"`
	StopPrice   decimal.Decimal   `json:"stop_price"`
	TimeInForce types.TimeInForce `json:"time_in_force"`
	StrategyTag string            `json:"strategy_tag"`
}

// PlacementResult is the successful outcome of PlaceOrder. Warnings carries
// non-blocking risk violations attached to an allowed order.
type PlacementResult struct {
	Order    *types.Order      `json:"order"`
	VenueID  string            `json:"venue_id"`
	Warnings []types.Violation `json:"warnings,omitempty"`
	Replayed bool              `json:"replayed,omitempty"`
}

// Params wires the router's collaborators and tuning knobs.
type Params struct {
	Book        *orderbook.Book
	Registry    *venue.Registry
	Engine      *risk.Engine
	Exposure    types.ExposureSource
	Transport   types.VenueTransport
	Audit       types.AuditSink
	Limits      types.LimitSource
	Idempotency *IdempotencyStore

	SubmitTimeout time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
}

// Router orchestrates order placement: validation, risk clearance, venue
// selection, ledger recording and venue submission with bounded retry.
type Router struct {
	book      *orderbook.Book
	registry  *venue.Registry
	engine    *risk.Engine
	exposure  types.ExposureSource
	transport types.VenueTransport
	audit     types.AuditSink
	limits    types.LimitSource
	idem      *IdempotencyStore

	submitTimeout time.Duration
	retryAttempts int
	retryBackoff  time.Duration
}

// NewRouter creates a router. Zero timeouts and retry settings fall back to
// the defaults (30s submit timeout, 3 attempts, 1s backoff).
func NewRouter(p Params) *Router {
	if p.SubmitTimeout <= 0 {
		p.SubmitTimeout = 30 * time.Second
	}
	if p.RetryAttempts <= 0 {
		p.RetryAttempts = 3
	}
	if p.RetryBackoff <= 0 {
		p.RetryBackoff = time.Second
	}
	return &Router{
		book:          p.Book,
		registry:      p.Registry,
		engine:        p.Engine,
		exposure:      p.Exposure,
		transport:     p.Transport,
		audit:         p.Audit,
		limits:        p.Limits,
		idem:          p.Idempotency,
		submitTimeout: p.SubmitTimeout,
		retryAttempts: p.RetryAttempts,
		retryBackoff:  p.RetryBackoff,
	}
}

// PlaceOrder runs the full placement pipeline for one order request. Every
// failure is a typed *types.PlacementError; no order is ever left in an
// ambiguous state from the caller's perspective.
func (r *Router) PlaceOrder(ctx context.Context, req *PlaceOrderRequest, idempotencyKey string) (*PlacementResult, error) {
	logger := log.With().
		Str("service", "execution_router").
		Str("client_id", req.ClientID).
		Str("symbol", req.Symbol).
		Logger()

	// Replay a previous placement when the idempotency key is known.
	if r.idem != nil && idempotencyKey != "" {
		if orderID, ok := r.idem.Lookup(idempotencyKey); ok {
			existing, err := r.book.Get(orderID)
			if err == nil {
				logger.Info().Str("order_id", orderID).Msg("replaying idempotent placement")
				return &PlacementResult{Order: existing, VenueID: existing.VenueID, Replayed: true}, nil
			}
		}
	}

	// 1. Shape validation.
	if fields := validate(req); len(fields) > 0 {
		metrics.OrdersPlaced.WithLabelValues("invalid").Inc()
		return nil, &types.PlacementError{
			Kind:    types.FailureInvalidOrder,
			Message: "order failed validation",
			Fields:  fields,
		}
	}

	// 2. Exposure snapshot from the portfolio collaborator.
	exposure, err := r.exposure.GetExposureSnapshot(ctx, req.ClientID, req.PortfolioID)
	if err != nil {
		logger.Error().Err(err).Msg("exposure snapshot unavailable")
		metrics.OrdersPlaced.WithLabelValues("exposure_unavailable").Inc()
		return nil, &types.PlacementError{
			Kind:    types.FailureExposureUnavailable,
			Message: "exposure snapshot unavailable",
			Err:     err,
		}
	}

	order := buildOrder(req)

	// 3. Risk clearance.
	assessment := r.engine.Evaluate(order, exposure, r.limits.LimitsFor(req.ClientID))
	for _, v := range assessment.Violations {
		metrics.RiskViolations.WithLabelValues(v.Kind, string(v.Severity)).Inc()
	}
	if assessment.Decision == types.DecisionBlock {
		logger.Warn().
			Str("order_id", order.OrderID).
			Int("violations", len(assessment.Violations)).
			Msg("order blocked by risk limits")
		metrics.OrdersPlaced.WithLabelValues("risk_blocked").Inc()
		r.audit.Emit(audit.EventRiskBlocked, map[string]interface{}{
			"order_id":   order.OrderID,
			"client_id":  order.ClientID,
			"symbol":     order.Symbol,
			"violations": assessment.Violations,
		})
		return nil, &types.PlacementError{
			Kind:       types.FailureRiskLimitExceeded,
			Message:    "order blocked by risk limits",
			Violations: assessment.Violations,
		}
	}
	warnings := assessment.Warnings()
	if assessment.Decision == types.DecisionAllowWarn {
		r.audit.Emit(audit.EventRiskWarning, map[string]interface{}{
			"order_id":   order.OrderID,
			"violations": warnings,
		})
	}

	// 4. Venue selection.
	venueID, err := r.registry.SelectVenue(order)
	if err != nil {
		if errors.Is(err, types.ErrNoVenue) {
			metrics.OrdersPlaced.WithLabelValues("no_venue").Inc()
			return nil, &types.PlacementError{
				Kind:    types.FailureNoVenueAvailable,
				Message: "no venue currently qualifies for this order",
				Err:     err,
			}
		}
		return nil, fmt.Errorf("venue selection failed: %w", err)
	}

	// 5. Record in the ledger before anything leaves the process.
	if err := r.book.Record(order); err != nil {
		return nil, fmt.Errorf("failed to record order: %w", err)
	}
	if r.idem != nil && idempotencyKey != "" {
		if err := r.idem.Remember(idempotencyKey, order.OrderID, "order"); err != nil {
			logger.Error().Err(err).Msg("failed to store idempotency record")
		}
	}
	r.audit.Emit(audit.EventOrderPlaced, map[string]interface{}{
		"order_id":  order.OrderID,
		"client_id": order.ClientID,
		"symbol":    order.Symbol,
		"side":      order.Side,
		"quantity":  order.Quantity,
		"venue_id":  venueID,
	})

	// 6-7. Venue submission with bounded retry.
	updated, perr := r.submit(ctx, order, venueID, logger)
	if perr != nil {
		return nil, perr
	}

	return &PlacementResult{Order: updated, VenueID: venueID, Warnings: warnings}, nil
}

// submit pushes the order to its venue, retrying transient network failures
// up to the configured attempt budget with fixed backoff. Venue-reported
// rejections are final and never retried.
func (r *Router) submit(ctx context.Context, order *types.Order, venueID string, logger zerolog.Logger) (*types.Order, *types.PlacementError) {
	start := time.Now()
	defer func() {
		metrics.SubmissionDuration.Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 1; attempt <= r.retryAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.submitTimeout)
		ack, err := r.transport.SubmitOrder(callCtx, venueID, order)
		cancel()

		if err != nil {
			lastErr = err
			if !types.IsTransient(err) {
				logger.Error().Err(err).Str("order_id", order.OrderID).Msg("venue submission failed")
				break
			}
			logger.Warn().
				Err(err).
				Str("order_id", order.OrderID).
				Int("attempt", attempt).
				Msg("transient submission failure")
			if attempt < r.retryAttempts {
				select {
				case <-time.After(r.retryBackoff):
				case <-ctx.Done():
					lastErr = ctx.Err()
					attempt = r.retryAttempts
				}
			}
			continue
		}

		if !ack.Accepted {
			logger.Warn().
				Str("order_id", order.OrderID).
				Str("reason", ack.Reason).
				Msg("order rejected by venue")
			rejected := r.finalize(order.OrderID, types.StatusRejected, audit.EventOrderRejected, ack.Reason)
			metrics.OrdersPlaced.WithLabelValues("rejected").Inc()
			return rejected, &types.PlacementError{
				Kind:    types.FailureVenueRejected,
				Message: "order rejected by venue: " + ack.Reason,
			}
		}

		if err := r.book.AssignVenue(order.OrderID, venueID, ack.VenueOrderID); err != nil {
			logger.Error().Err(err).Str("order_id", order.OrderID).Msg("failed to assign venue")
		}
		submitted, err := r.book.UpdateStatus(order.OrderID, types.StatusSubmitted, nil)
		if err != nil {
			logger.Error().Err(err).Str("order_id", order.OrderID).Msg("failed to mark order submitted")
			return nil, &types.PlacementError{
				Kind:    types.FailureVenueSubmissionFailed,
				Message: "order accepted by venue but ledger update failed",
				Err:     err,
			}
		}
		metrics.OrdersPlaced.WithLabelValues("submitted").Inc()
		r.audit.Emit(audit.EventOrderSubmitted, map[string]interface{}{
			"order_id":       order.OrderID,
			"venue_id":       venueID,
			"venue_order_id": ack.VenueOrderID,
		})
		return submitted, nil
	}

	failed := r.finalize(order.OrderID, types.StatusFailed, audit.EventOrderFailed, "submission retries exhausted")
	metrics.OrdersPlaced.WithLabelValues("failed").Inc()
	return failed, &types.PlacementError{
		Kind:    types.FailureVenueSubmissionFailed,
		Message: "venue submission failed after retries",
		Err:     lastErr,
	}
}

// finalize moves a pending order to a terminal submission outcome and emits
// the matching audit event.
func (r *Router) finalize(orderID string, status types.OrderStatus, eventType, reason string) *types.Order {
	updated, err := r.book.UpdateStatus(orderID, status, nil)
	if err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("failed to finalize order")
	}
	r.audit.Emit(eventType, map[string]interface{}{
		"order_id": orderID,
		"reason":   reason,
	})
	return updated
}

// CancelOrder verifies ownership and cancellability, asks the venue to
// cancel, and moves the order to cancelled in the ledger.
func (r *Router) CancelOrder(ctx context.Context, orderID, requesterID string) (*types.Order, error) {
	order, err := r.book.Get(orderID)
	if err != nil {
		return nil, err
	}
	if order.ClientID != requesterID {
		return nil, &types.PlacementError{
			Kind:    types.FailureNotCancellable,
			Message: "order does not belong to requester",
		}
	}
	if order.Status != types.StatusSubmitted && order.Status != types.StatusPartiallyFilled {
		return nil, &types.PlacementError{
			Kind:    types.FailureNotCancellable,
			Message: fmt.Sprintf("order in status %s cannot be cancelled", order.Status),
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.submitTimeout)
	defer cancel()
	if err := r.transport.CancelOrder(callCtx, order.VenueID, order.VenueOrderID); err != nil {
		log.Error().
			Err(err).
			Str("order_id", orderID).
			Str("venue_id", order.VenueID).
			Msg("venue cancel failed")
		return nil, &types.PlacementError{
			Kind:    types.FailureVenueSubmissionFailed,
			Message: "venue cancel failed",
			Err:     err,
		}
	}

	cancelled, err := r.book.UpdateStatus(orderID, types.StatusCancelled, nil)
	if err != nil {
		return nil, err
	}
	metrics.OrdersCancelled.Inc()
	r.audit.Emit(audit.EventOrderCancelled, map[string]interface{}{
		"order_id":     orderID,
		"requester_id": requesterID,
	})
	return cancelled, nil
}

// GetOrder returns the current ledger view of one order.
func (r *Router) GetOrder(orderID string) (*types.Order, error) {
	return r.book.Get(orderID)
}

func buildOrder(req *PlaceOrderRequest) *types.Order {
	tif := req.TimeInForce
	if tif == "" {
		tif = types.TimeInForceGTC
	}
	return &types.Order{
		OrderID:     "ORD_" + uuid.New().String(),
		ClientID:    req.ClientID,
		PortfolioID: req.PortfolioID,
		Symbol:      req.Symbol,
		Side:        req.Side,
		OrderType:   req.OrderType,
		Quantity:    req.Quantity,
		LimitPrice:  req.LimitPrice,
		StopPrice:   req.StopPrice,
		TimeInForce: tif,
		StrategyTag: req.StrategyTag,
		Status:      types.StatusPending,
	}
}

// validate collects field-level reasons an order request is malformed.
func validate(req *PlaceOrderRequest) []string {
	var fields []string
	if req.ClientID == "" {
		fields = append(fields, "client_id: required")
	}
	if req.Symbol == "" {
		fields = append(fields, "symbol: required")
	}
	switch req.Side {
	case types.SideBuy, types.SideSell:
	default:
		fields = append(fields, "side: must be BUY or SELL")
	}
	switch req.OrderType {
	case types.OrderTypeMarket, types.OrderTypeLimit, types.OrderTypeStop:
	default:
		fields = append(fields, "order_type: must be MARKET, LIMIT or STOP")
	}
	if !req.Quantity.IsPositive() {
		fields = append(fields, "quantity: must be greater than zero")
	}
	if req.OrderType == types.OrderTypeLimit && !req.LimitPrice.IsPositive() {
		fields = append(fields, "limit_price: required and positive for LIMIT orders")
	}
	if req.OrderType == types.OrderTypeStop && !req.StopPrice.IsPositive() {
		fields = append(fields, "stop_price: required and positive for STOP orders")
	}
	switch req.TimeInForce {
	case "", types.TimeInForceGTC, types.TimeInForceIOC, types.TimeInForceFOK, types.TimeInForceDay:
	default:
		fields = append(fields, "time_in_force: unsupported value")
	}
	return fields
}
