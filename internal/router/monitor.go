package router

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/finai-nexus/execution-core/internal/audit"
	"github.com/finai-nexus/execution-core/internal/metrics"
	"github.com/finai-nexus/execution-core/internal/orderbook"
	"github.com/finai-nexus/execution-core/internal/types"
)

// Monitor reconciles venue-side order state into the local ledger. Each
// cycle polls every working order concurrently through a small worker pool;
// a slow or failing poll for one order never blocks the rest, and errors are
// simply retried on the next cycle.
type Monitor struct {
	book      *orderbook.Book
	transport types.VenueTransport
	audit     types.AuditSink

	interval    time.Duration
	pollTimeout time.Duration
	workers     int
}

func NewMonitor(book *orderbook.Book, transport types.VenueTransport, sink types.AuditSink, interval, pollTimeout time.Duration, workers int) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if pollTimeout <= 0 {
		pollTimeout = 10 * time.Second
	}
	if workers <= 0 {
		workers = 4
	}
	return &Monitor{
		book:        book,
		transport:   transport,
		audit:       sink,
		interval:    interval,
		pollTimeout: pollTimeout,
		workers:     workers,
	}
}

// Start runs the polling loop until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	logger := log.With().Str("component", "order_monitor").Logger()
	logger.Info().Dur("interval", m.interval).Msg("starting order status monitor")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down order status monitor")
			return
		case <-ticker.C:
			m.PollOnce(ctx)
		}
	}
}

// PollOnce polls every active order once. Exported so tests and callers can
// drive cycles without the ticker.
func (m *Monitor) PollOnce(ctx context.Context) {
	active := m.book.Active()
	metrics.ActiveOrders.Set(float64(len(active)))
	if len(active) == 0 {
		return
	}

	jobs := make(chan types.Order)
	var wg sync.WaitGroup
	for i := 0; i < m.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for order := range jobs {
				m.pollOrder(ctx, order)
			}
		}()
	}
	for _, order := range active {
		jobs <- order
	}
	close(jobs)
	wg.Wait()
}

func (m *Monitor) pollOrder(ctx context.Context, order types.Order) {
	callCtx, cancel := context.WithTimeout(ctx, m.pollTimeout)
	defer cancel()

	status, err := m.transport.PollStatus(callCtx, order.VenueID, order.VenueOrderID)
	if err != nil {
		log.Warn().
			Err(err).
			Str("order_id", order.OrderID).
			Str("venue_id", order.VenueID).
			Msg("order status poll failed, will retry next cycle")
		return
	}

	m.apply(order, status)
}

// apply maps one venue status report onto the ledger. Reports that change
// nothing are skipped so steady-state polling does not churn persistence.
func (m *Monitor) apply(order types.Order, status *types.VenueOrderStatus) {
	fillGrew := status.FilledQuantity.GreaterThan(order.FilledQuantity)

	switch status.Status {
	case types.StatusSubmitted:
		return

	case types.StatusPartiallyFilled:
		if !fillGrew {
			return
		}
		m.transition(order, types.StatusPartiallyFilled, &orderbook.Fill{
			FilledQuantity:   status.FilledQuantity,
			AverageFillPrice: status.AverageFillPrice,
		}, audit.EventOrderPartFilled)

	case types.StatusFilled:
		m.transition(order, types.StatusFilled, &orderbook.Fill{
			FilledQuantity:   status.FilledQuantity,
			AverageFillPrice: status.AverageFillPrice,
		}, audit.EventOrderFilled)

	case types.StatusCancelled:
		m.transition(order, types.StatusCancelled, nil, audit.EventOrderCancelled)

	case types.StatusExpired:
		m.transition(order, types.StatusExpired, nil, audit.EventOrderExpired)

	default:
		// A venue reporting a state outside the ledger's lifecycle for a
		// working order indicates a reconciliation bug upstream.
		log.Error().
			Str("order_id", order.OrderID).
			Str("venue_status", string(status.Status)).
			Msg("unreconcilable venue order status")
	}
}

func (m *Monitor) transition(order types.Order, status types.OrderStatus, fill *orderbook.Fill, eventType string) {
	updated, err := m.book.UpdateStatus(order.OrderID, status, fill)
	if err != nil {
		log.Error().
			Err(err).
			Str("order_id", order.OrderID).
			Str("to", string(status)).
			Msg("failed to apply polled order status")
		return
	}
	payload := map[string]interface{}{
		"order_id": updated.OrderID,
		"status":   updated.Status,
	}
	if fill != nil {
		payload["filled_quantity"] = updated.FilledQuantity
		payload["average_fill_price"] = updated.AverageFillPrice
	}
	m.audit.Emit(eventType, payload)
}
