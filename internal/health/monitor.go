// Package health probes venue connectivity and feeds the results into the
// venue registry, driving failover.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/finai-nexus/execution-core/internal/metrics"
	"github.com/finai-nexus/execution-core/internal/types"
	"github.com/finai-nexus/execution-core/internal/venue"
)

// Monitor runs a periodic probe cycle over every registered venue. Probes
// are independent: each carries its own timeout and runs in its own
// goroutine, so one hanging venue never delays the others.
type Monitor struct {
	registry  *venue.Registry
	transport types.VenueTransport

	probeInterval time.Duration
	probeTimeout  time.Duration
}

func NewMonitor(registry *venue.Registry, transport types.VenueTransport, probeInterval, probeTimeout time.Duration) *Monitor {
	if probeInterval <= 0 {
		probeInterval = 30 * time.Second
	}
	if probeTimeout <= 0 {
		probeTimeout = 10 * time.Second
	}
	return &Monitor{
		registry:      registry,
		transport:     transport,
		probeInterval: probeInterval,
		probeTimeout:  probeTimeout,
	}
}

// Start begins the probe loop. An immediate first cycle brings venues out of
// their initial disconnected state without waiting a full interval.
func (m *Monitor) Start(ctx context.Context) {
	logger := log.With().Str("component", "health_monitor").Logger()
	logger.Info().Dur("interval", m.probeInterval).Msg("starting venue health monitor")

	m.ProbeAll(ctx)

	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down venue health monitor")
			return
		case <-ticker.C:
			m.ProbeAll(ctx)
		}
	}
}

// ProbeAll probes every registered venue concurrently and waits for all
// probes to finish or time out.
func (m *Monitor) ProbeAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, venueID := range m.registry.VenueIDs() {
		wg.Add(1)
		go func(venueID string) {
			defer wg.Done()
			m.probe(ctx, venueID)
		}(venueID)
	}
	wg.Wait()
}

func (m *Monitor) probe(ctx context.Context, venueID string) {
	callCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	start := time.Now()
	result, err := m.transport.ProbeHealth(callCtx, venueID)

	success := err == nil && result.OK
	latencyMs := float64(time.Since(start).Milliseconds())
	if success && result.LatencyMs > 0 {
		latencyMs = result.LatencyMs
	}

	if !success {
		log.Debug().
			Err(err).
			Str("venue_id", venueID).
			Msg("venue health probe failed")
	}

	m.registry.RecordHeartbeatResult(venueID, success, latencyMs)
	m.export(venueID)
}

func (m *Monitor) export(venueID string) {
	account, ok := m.registry.Get(venueID)
	if !ok {
		return
	}
	metrics.VenueLatency.WithLabelValues(venueID).Set(account.ObservedLatencyMs)
	up := 0.0
	if account.ConnectionState == venue.StateConnected {
		up = 1.0
	}
	metrics.VenueUp.WithLabelValues(venueID).Set(up)
}
