// Package transport provides a simulated venue transport for local runs and
// tests. All randomness in the system lives here, behind the VenueTransport
// interface; core decision logic never depends on it.
package transport

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/finai-nexus/execution-core/internal/types"
)

// VenueProfile shapes how one simulated venue behaves.
type VenueProfile struct {
	MinLatency time.Duration
	MaxLatency time.Duration
	RejectRate float64 // 0-1, probability a submission is rejected
	// FillSteps is how many polls an order takes to fill completely.
	FillSteps int
}

type simulatedOrder struct {
	order    types.Order
	polls    int
	steps    int
	price    decimal.Decimal
	finished types.OrderStatus
}

// Simulated implements types.VenueTransport against in-memory venue
// profiles. Submitted orders fill progressively across successive polls.
type Simulated struct {
	mu       sync.Mutex
	rng      *rand.Rand
	profiles map[string]VenueProfile
	orders   map[string]*simulatedOrder
}

// NewSimulated creates a simulated transport with the given per-venue
// profiles and a deterministic seed.
func NewSimulated(profiles map[string]VenueProfile, seed int64) *Simulated {
	return &Simulated{
		rng:      rand.New(rand.NewSource(seed)),
		profiles: profiles,
		orders:   make(map[string]*simulatedOrder),
	}
}

func (s *Simulated) SubmitOrder(ctx context.Context, venueID string, order *types.Order) (*types.SubmitAck, error) {
	profile, err := s.profile(venueID)
	if err != nil {
		return nil, err
	}
	if err := s.sleep(ctx, profile); err != nil {
		return nil, &types.TransientError{Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rng.Float64() < profile.RejectRate {
		log.Debug().
			Str("venue_id", venueID).
			Str("order_id", order.OrderID).
			Msg("simulated venue rejected order")
		return &types.SubmitAck{Accepted: false, Reason: "insufficient liquidity"}, nil
	}

	venueOrderID := "VEN_" + uuid.New().String()
	steps := profile.FillSteps
	if steps <= 0 {
		steps = 2
	}
	price := order.LimitPrice
	if price.IsZero() {
		// Market orders fill around an arbitrary simulated mark.
		price = decimal.NewFromFloat(100 + s.rng.Float64()*10)
	}
	s.orders[venueOrderID] = &simulatedOrder{
		order: *order,
		steps: steps,
		price: price,
	}
	return &types.SubmitAck{Accepted: true, VenueOrderID: venueOrderID}, nil
}

func (s *Simulated) CancelOrder(ctx context.Context, venueID, venueOrderID string) error {
	profile, err := s.profile(venueID)
	if err != nil {
		return err
	}
	if err := s.sleep(ctx, profile); err != nil {
		return &types.TransientError{Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	so, ok := s.orders[venueOrderID]
	if !ok {
		return fmt.Errorf("unknown venue order %s", venueOrderID)
	}
	if so.finished != "" {
		return fmt.Errorf("venue order %s already %s", venueOrderID, so.finished)
	}
	so.finished = types.StatusCancelled
	return nil
}

func (s *Simulated) PollStatus(ctx context.Context, venueID, venueOrderID string) (*types.VenueOrderStatus, error) {
	profile, err := s.profile(venueID)
	if err != nil {
		return nil, err
	}
	if err := s.sleep(ctx, profile); err != nil {
		return nil, &types.TransientError{Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	so, ok := s.orders[venueOrderID]
	if !ok {
		return nil, fmt.Errorf("unknown venue order %s", venueOrderID)
	}

	if so.finished != "" {
		filled := so.fillFraction().Mul(so.order.Quantity)
		return &types.VenueOrderStatus{
			Status:           so.finished,
			FilledQuantity:   filled,
			AverageFillPrice: so.price,
		}, nil
	}

	so.polls++
	filled := so.fillFraction().Mul(so.order.Quantity)
	status := types.StatusPartiallyFilled
	if so.polls >= so.steps {
		status = types.StatusFilled
		so.finished = types.StatusFilled
		filled = so.order.Quantity
	}
	return &types.VenueOrderStatus{
		Status:           status,
		FilledQuantity:   filled,
		AverageFillPrice: so.price,
	}, nil
}

func (s *Simulated) ProbeHealth(ctx context.Context, venueID string) (*types.HealthProbeResult, error) {
	profile, err := s.profile(venueID)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	if err := s.sleep(ctx, profile); err != nil {
		return nil, &types.TransientError{Err: err}
	}
	return &types.HealthProbeResult{
		OK:        true,
		LatencyMs: float64(time.Since(start).Milliseconds()),
	}, nil
}

func (so *simulatedOrder) fillFraction() decimal.Decimal {
	if so.polls >= so.steps {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(int64(so.polls)).Div(decimal.NewFromInt(int64(so.steps)))
}

func (s *Simulated) profile(venueID string) (VenueProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[venueID]
	if !ok {
		return VenueProfile{}, fmt.Errorf("unknown venue %s", venueID)
	}
	return profile, nil
}

// sleep simulates network latency while honouring ctx cancellation.
func (s *Simulated) sleep(ctx context.Context, profile VenueProfile) error {
	if profile.MaxLatency <= 0 {
		return nil
	}
	s.mu.Lock()
	span := profile.MaxLatency - profile.MinLatency
	d := profile.MinLatency
	if span > 0 {
		d += time.Duration(s.rng.Int63n(int64(span)))
	}
	s.mu.Unlock()

	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
