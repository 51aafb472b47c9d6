package venue

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/finai-nexus/execution-core/internal/types"
)

// latencyAlpha is the smoothing factor of the latency moving average.
const latencyAlpha = 0.3

// Registry holds per-venue connectivity state, fee schedules and pair
// support, and selects the venue an order should route to. Mutation is
// serialized per venue so heartbeat bursts for one venue never contend with
// the others.
type Registry struct {
	mu                sync.RWMutex
	venues            map[string]*entry
	failoverThreshold int
	feeWeightFactor   float64
}

type entry struct {
	mu      sync.Mutex
	account Account
}

// NewRegistry creates a registry with the given failover threshold (number of
// consecutive missed heartbeats before a venue is marked failed) and the
// weight factor converting taker fee rate into a latency-comparable score
// unit.
func NewRegistry(failoverThreshold int, feeWeightFactor float64) *Registry {
	if failoverThreshold <= 0 {
		failoverThreshold = 3
	}
	return &Registry{
		venues:            make(map[string]*entry),
		failoverThreshold: failoverThreshold,
		feeWeightFactor:   feeWeightFactor,
	}
}

// Register adds a venue account. Registration happens at startup; accounts
// start disconnected until the first successful heartbeat.
func (r *Registry) Register(account Account) {
	if account.ConnectionState == "" {
		account.ConnectionState = StateDisconnected
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.venues[account.VenueID] = &entry{account: account}
}

// SelectVenue picks the venue an order should be routed to. Candidates must
// be connected, support the order's symbol and accept its quantity; among
// those the lowest combined latency/fee score wins, with ties broken by
// lower taker fee and then lexicographic venue ID.
//
// Returns types.ErrNoVenue when nothing qualifies; the caller must treat
// that as "cannot route right now", not as a system fault.
func (r *Registry) SelectVenue(order *types.Order) (string, error) {
	type candidate struct {
		id    string
		score float64
		taker decimal.Decimal
	}

	var candidates []candidate
	for _, e := range r.entries() {
		e.mu.Lock()
		a := e.account
		e.mu.Unlock()

		if a.Disabled || a.ConnectionState != StateConnected {
			continue
		}
		if !a.Supports(order.Symbol) {
			continue
		}
		if order.Quantity.LessThan(a.Limits.MinQuantity) || order.Quantity.GreaterThan(a.Limits.MaxQuantity) {
			continue
		}

		taker, _ := a.Fees.Taker.Float64()
		candidates = append(candidates, candidate{
			id:    a.VenueID,
			score: a.ObservedLatencyMs + taker*r.feeWeightFactor,
			taker: a.Fees.Taker,
		})
	}

	if len(candidates) == 0 {
		return "", types.ErrNoVenue
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score < candidates[j].score
		}
		if cmp := candidates[i].taker.Cmp(candidates[j].taker); cmp != 0 {
			return cmp < 0
		}
		return candidates[i].id < candidates[j].id
	})

	return candidates[0].id, nil
}

// RecordHeartbeatResult folds one probe outcome into a venue's state. A
// success reconnects the venue, clears its failure count and updates the
// latency moving average; a failure increments the count and marks the venue
// unstable, or failed once the failover threshold is reached.
func (r *Registry) RecordHeartbeatResult(venueID string, success bool, latencyMs float64) {
	e := r.lookup(venueID)
	if e == nil {
		log.Warn().Str("venue_id", venueID).Msg("heartbeat for unknown venue ignored")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	a := &e.account
	a.LastHeartbeatAt = time.Now()

	if success {
		a.ConsecutiveFailures = 0
		a.ConnectionState = StateConnected
		if a.ObservedLatencyMs == 0 {
			a.ObservedLatencyMs = latencyMs
		} else {
			a.ObservedLatencyMs = latencyAlpha*latencyMs + (1-latencyAlpha)*a.ObservedLatencyMs
		}
		return
	}

	a.ConsecutiveFailures++
	if a.ConsecutiveFailures >= r.failoverThreshold {
		if a.ConnectionState != StateFailed {
			log.Warn().
				Str("venue_id", venueID).
				Int("consecutive_failures", a.ConsecutiveFailures).
				Msg("venue marked failed after repeated missed heartbeats")
		}
		a.ConnectionState = StateFailed
	} else {
		a.ConnectionState = StateUnstable
	}
}

// Disable permanently removes a venue from selection. Heartbeats keep being
// recorded but never re-enable it.
func (r *Registry) Disable(venueID string) {
	if e := r.lookup(venueID); e != nil {
		e.mu.Lock()
		e.account.Disabled = true
		e.mu.Unlock()
	}
}

// Get returns a copy of one venue account.
func (r *Registry) Get(venueID string) (Account, bool) {
	e := r.lookup(venueID)
	if e == nil {
		return Account{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.account, true
}

// VenueIDs lists all registered venue IDs in stable order.
func (r *Registry) VenueIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.venues))
	for id := range r.venues {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns copies of all venue accounts, ordered by venue ID.
func (r *Registry) Snapshot() []Account {
	out := make([]Account, 0)
	for _, id := range r.VenueIDs() {
		if a, ok := r.Get(id); ok {
			out = append(out, a)
		}
	}
	return out
}

func (r *Registry) lookup(venueID string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.venues[venueID]
}

func (r *Registry) entries() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entry, 0, len(r.venues))
	for _, e := range r.venues {
		out = append(out, e)
	}
	return out
}
