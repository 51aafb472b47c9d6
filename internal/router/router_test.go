package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finai-nexus/execution-core/internal/audit"
	"github.com/finai-nexus/execution-core/internal/orderbook"
	"github.com/finai-nexus/execution-core/internal/risk"
	"github.com/finai-nexus/execution-core/internal/types"
	"github.com/finai-nexus/execution-core/internal/venue"
)

type fakeTransport struct {
	mu      sync.Mutex
	submits int
	cancels int

	submitFn func(attempt int) (*types.SubmitAck, error)
	cancelFn func() error
}

func (f *fakeTransport) SubmitOrder(ctx context.Context, venueID string, order *types.Order) (*types.SubmitAck, error) {
	f.mu.Lock()
	f.submits++
	attempt := f.submits
	f.mu.Unlock()
	if f.submitFn != nil {
		return f.submitFn(attempt)
	}
	return &types.SubmitAck{Accepted: true, VenueOrderID: "VEN_1"}, nil
}

func (f *fakeTransport) CancelOrder(ctx context.Context, venueID, venueOrderID string) error {
	f.mu.Lock()
	f.cancels++
	f.mu.Unlock()
	if f.cancelFn != nil {
		return f.cancelFn()
	}
	return nil
}

func (f *fakeTransport) PollStatus(ctx context.Context, venueID, venueOrderID string) (*types.VenueOrderStatus, error) {
	return &types.VenueOrderStatus{Status: types.StatusSubmitted}, nil
}

func (f *fakeTransport) ProbeHealth(ctx context.Context, venueID string) (*types.HealthProbeResult, error) {
	return &types.HealthProbeResult{OK: true, LatencyMs: 1}, nil
}

func (f *fakeTransport) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

type fakeExposure struct {
	snapshot *types.ExposureSnapshot
	err      error
}

func (f *fakeExposure) GetExposureSnapshot(ctx context.Context, clientID, portfolioID string) (*types.ExposureSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot, nil
}

type fakeAudit struct {
	mu     sync.Mutex
	events []string
	ids    []string
}

func (f *fakeAudit) Emit(eventType string, payload map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	if id, ok := payload["order_id"].(string); ok {
		f.ids = append(f.ids, id)
	}
}

func (f *fakeAudit) orderIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool, len(f.ids))
	var unique []string
	for _, id := range f.ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	return unique
}

func (f *fakeAudit) has(eventType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e == eventType {
			return true
		}
	}
	return false
}

type staticLimits struct {
	limits types.RiskLimitSet
}

func (s staticLimits) LimitsFor(string) types.RiskLimitSet { return s.limits }

func defaultLimits() types.RiskLimitSet {
	return types.RiskLimitSet{
		MaxPositionSize:  decimal.NewFromInt(1_000_000),
		MaxDailyLoss:     decimal.NewFromInt(50_000),
		MaxLeverage:      decimal.NewFromInt(10),
		CorrelationLimit: decimal.NewFromFloat(0.8),
	}
}

func flatExposure() *types.ExposureSnapshot {
	return &types.ExposureSnapshot{
		PositionValue:     decimal.Zero,
		Equity:            decimal.NewFromInt(1_000_000),
		Leverage:          decimal.Zero,
		RealizedLossToday: decimal.Zero,
		MarkPrices: map[string]decimal.Decimal{
			"BTC/USDT": decimal.NewFromInt(50_000),
		},
	}
}

func connectedRegistry() *venue.Registry {
	registry := venue.NewRegistry(3, 10_000)
	registry.Register(venue.Account{
		VenueID:        "VEN-ALPHA",
		DisplayName:    "Alpha",
		SupportedPairs: map[string]bool{"BTC/USDT": true},
		Fees: venue.FeeSchedule{
			Maker: decimal.NewFromFloat(0.0008),
			Taker: decimal.NewFromFloat(0.001),
		},
		Limits: venue.OrderLimits{
			MinQuantity: decimal.RequireFromString("0.0001"),
			MaxQuantity: decimal.NewFromInt(1000),
		},
	})
	registry.RecordHeartbeatResult("VEN-ALPHA", true, 10)
	return registry
}

type fixture struct {
	router    *Router
	book      *orderbook.Book
	transport *fakeTransport
	audit     *fakeAudit
	exposure  *fakeExposure
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	transport := &fakeTransport{}
	sink := &fakeAudit{}
	exposure := &fakeExposure{snapshot: flatExposure()}
	book := orderbook.NewBook(nil)

	r := NewRouter(Params{
		Book:          book,
		Registry:      connectedRegistry(),
		Engine:        risk.NewEngine(),
		Exposure:      exposure,
		Transport:     transport,
		Audit:         sink,
		Limits:        staticLimits{limits: defaultLimits()},
		SubmitTimeout: time.Second,
		RetryAttempts: 3,
		RetryBackoff:  time.Millisecond,
	})
	return &fixture{router: r, book: book, transport: transport, audit: sink, exposure: exposure}
}

func buyRequest(qty string) *PlaceOrderRequest {
	return &PlaceOrderRequest{
		ClientID:  "CLIENT_1",
		Symbol:    "BTC/USDT",
		Side:      types.SideBuy,
		OrderType: types.OrderTypeMarket,
		Quantity:  decimal.RequireFromString(qty),
	}
}

func TestPlaceOrderHappyPath(t *testing.T) {
	f := newFixture(t)

	result, err := f.router.PlaceOrder(context.Background(), buyRequest("0.5"), "")
	require.NoError(t, err)

	assert.Equal(t, types.StatusSubmitted, result.Order.Status)
	assert.Equal(t, "VEN-ALPHA", result.VenueID)
	assert.Equal(t, "VEN_1", result.Order.VenueOrderID)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, 1, f.transport.submitCount())
	assert.True(t, f.audit.has(audit.EventOrderPlaced))
	assert.True(t, f.audit.has(audit.EventOrderSubmitted))

	// The ledger agrees with the returned copy.
	stored, err := f.router.GetOrder(result.Order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSubmitted, stored.Status)
}

func TestPlaceOrderRiskBlockNeverReachesVenue(t *testing.T) {
	f := newFixture(t)
	f.exposure.snapshot.RealizedLossToday = decimal.NewFromInt(60_000)

	_, err := f.router.PlaceOrder(context.Background(), buyRequest("0.5"), "")

	var perr *types.PlacementError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.FailureRiskLimitExceeded, perr.Kind)
	require.NotEmpty(t, perr.Violations)
	assert.Equal(t, 0, f.transport.submitCount())
	assert.True(t, f.audit.has(audit.EventRiskBlocked))
	// No order is recorded for a blocked placement.
	assert.Empty(t, f.book.Active())
}

func TestPlaceOrderWarningsPassThrough(t *testing.T) {
	f := newFixture(t)

	// 30 BTC at 50k breaches the 1M position limit without doubling it.
	result, err := f.router.PlaceOrder(context.Background(), buyRequest("30"), "")
	require.NoError(t, err)

	require.Len(t, result.Warnings, 1)
	assert.Equal(t, risk.ViolationPositionSize, result.Warnings[0].Kind)
	assert.Equal(t, types.StatusSubmitted, result.Order.Status)
	assert.True(t, f.audit.has(audit.EventRiskWarning))
}

func TestPlaceOrderValidation(t *testing.T) {
	f := newFixture(t)
	req := &PlaceOrderRequest{
		Side:      "SIDEWAYS",
		OrderType: types.OrderTypeLimit,
		Quantity:  decimal.Zero,
	}

	_, err := f.router.PlaceOrder(context.Background(), req, "")

	var perr *types.PlacementError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.FailureInvalidOrder, perr.Kind)
	assert.Contains(t, perr.Fields, "client_id: required")
	assert.Contains(t, perr.Fields, "symbol: required")
	assert.Contains(t, perr.Fields, "side: must be BUY or SELL")
	assert.Contains(t, perr.Fields, "quantity: must be greater than zero")
	assert.Contains(t, perr.Fields, "limit_price: required and positive for LIMIT orders")
	assert.Equal(t, 0, f.transport.submitCount())
}

func TestPlaceOrderExposureUnavailable(t *testing.T) {
	f := newFixture(t)
	f.exposure.err = fmt.Errorf("portfolio service down")

	_, err := f.router.PlaceOrder(context.Background(), buyRequest("0.5"), "")

	var perr *types.PlacementError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.FailureExposureUnavailable, perr.Kind)
	assert.Equal(t, 0, f.transport.submitCount())
}

func TestPlaceOrderNoVenueAvailable(t *testing.T) {
	f := newFixture(t)
	req := buyRequest("0.5")
	req.Symbol = "DOGE/USDT"
	f.exposure.snapshot.MarkPrices["DOGE/USDT"] = decimal.NewFromFloat(0.1)

	_, err := f.router.PlaceOrder(context.Background(), req, "")

	var perr *types.PlacementError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.FailureNoVenueAvailable, perr.Kind)
}

func TestPlaceOrderRetriesTransientFailures(t *testing.T) {
	f := newFixture(t)
	f.transport.submitFn = func(attempt int) (*types.SubmitAck, error) {
		if attempt < 3 {
			return nil, &types.TransientError{Err: fmt.Errorf("connection reset")}
		}
		return &types.SubmitAck{Accepted: true, VenueOrderID: "VEN_1"}, nil
	}

	result, err := f.router.PlaceOrder(context.Background(), buyRequest("0.5"), "")
	require.NoError(t, err)

	assert.Equal(t, 3, f.transport.submitCount())
	assert.Equal(t, types.StatusSubmitted, result.Order.Status)
}

func TestPlaceOrderFailsAfterRetryBudget(t *testing.T) {
	f := newFixture(t)
	f.transport.submitFn = func(int) (*types.SubmitAck, error) {
		return nil, &types.TransientError{Err: fmt.Errorf("connection reset")}
	}

	_, err := f.router.PlaceOrder(context.Background(), buyRequest("0.5"), "")

	var perr *types.PlacementError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.FailureVenueSubmissionFailed, perr.Kind)
	assert.True(t, perr.Retryable())
	assert.Equal(t, 3, f.transport.submitCount())
	assert.True(t, f.audit.has(audit.EventOrderFailed))

	// The ledger records the terminal failure.
	orders := allOrders(t, f)
	require.Len(t, orders, 1)
	assert.Equal(t, types.StatusFailed, orders[0].Status)
}

func TestPlaceOrderVenueRejectionIsFinal(t *testing.T) {
	f := newFixture(t)
	f.transport.submitFn = func(int) (*types.SubmitAck, error) {
		return &types.SubmitAck{Accepted: false, Reason: "insufficient liquidity"}, nil
	}

	_, err := f.router.PlaceOrder(context.Background(), buyRequest("0.5"), "")

	var perr *types.PlacementError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.FailureVenueRejected, perr.Kind)
	assert.False(t, perr.Retryable())
	assert.Contains(t, perr.Message, "insufficient liquidity")
	// Business rejections never burn the retry budget.
	assert.Equal(t, 1, f.transport.submitCount())
	assert.True(t, f.audit.has(audit.EventOrderRejected))

	orders := allOrders(t, f)
	require.Len(t, orders, 1)
	assert.Equal(t, types.StatusRejected, orders[0].Status)
}

func TestPlaceOrderNonTransientErrorNotRetried(t *testing.T) {
	f := newFixture(t)
	f.transport.submitFn = func(int) (*types.SubmitAck, error) {
		return nil, fmt.Errorf("malformed venue credentials")
	}

	_, err := f.router.PlaceOrder(context.Background(), buyRequest("0.5"), "")

	var perr *types.PlacementError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.FailureVenueSubmissionFailed, perr.Kind)
	assert.Equal(t, 1, f.transport.submitCount())
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	result, err := f.router.PlaceOrder(context.Background(), buyRequest("0.5"), "")
	require.NoError(t, err)
	orderID := result.Order.OrderID

	cancelled, err := f.router.CancelOrder(context.Background(), orderID, "CLIENT_1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, cancelled.Status)
	assert.True(t, f.audit.has(audit.EventOrderCancelled))

	// A second cancel finds the order already terminal.
	_, err = f.router.CancelOrder(context.Background(), orderID, "CLIENT_1")
	var perr *types.PlacementError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.FailureNotCancellable, perr.Kind)
}

func TestCancelOrderEnforcesOwnership(t *testing.T) {
	f := newFixture(t)
	result, err := f.router.PlaceOrder(context.Background(), buyRequest("0.5"), "")
	require.NoError(t, err)

	_, err = f.router.CancelOrder(context.Background(), result.Order.OrderID, "CLIENT_2")

	var perr *types.PlacementError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.FailureNotCancellable, perr.Kind)
	assert.Equal(t, 0, f.transport.cancels)

	stored, _ := f.router.GetOrder(result.Order.OrderID)
	assert.Equal(t, types.StatusSubmitted, stored.Status)
}

func TestCancelOrderUnknownID(t *testing.T) {
	f := newFixture(t)

	_, err := f.router.CancelOrder(context.Background(), "ORD_missing", "CLIENT_1")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestCancelOrderVenueFailureLeavesOrderWorking(t *testing.T) {
	f := newFixture(t)
	result, err := f.router.PlaceOrder(context.Background(), buyRequest("0.5"), "")
	require.NoError(t, err)
	f.transport.cancelFn = func() error {
		return &types.TransientError{Err: errors.New("venue timeout")}
	}

	_, err = f.router.CancelOrder(context.Background(), result.Order.OrderID, "CLIENT_1")

	var perr *types.PlacementError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.FailureVenueSubmissionFailed, perr.Kind)

	stored, _ := f.router.GetOrder(result.Order.OrderID)
	assert.Equal(t, types.StatusSubmitted, stored.Status)
}

// allOrders drains every ledger entry regardless of status by walking the
// known order from the audit-free Get path.
func allOrders(t *testing.T, f *fixture) []types.Order {
	t.Helper()
	// Active() hides terminal orders; reconstruct from the placement result
	// path instead by checking both working and terminal sets.
	var orders []types.Order
	for _, o := range f.book.Active() {
		orders = append(orders, o)
	}
	if len(orders) > 0 {
		return orders
	}
	// Terminal-only case: the single order placed in these tests.
	for _, id := range f.audit.orderIDs() {
		if o, err := f.book.Get(id); err == nil {
			orders = append(orders, *o)
		}
	}
	return orders
}
