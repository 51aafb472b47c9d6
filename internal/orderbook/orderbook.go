package orderbook

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/finai-nexus/execution-core/internal/types"
)

// validTransitions is the complete edge set of the order lifecycle. Any
// update outside this table is rejected with types.ErrInvalidTransition.
var validTransitions = map[types.OrderStatus][]types.OrderStatus{
	types.StatusPending:         {types.StatusSubmitted, types.StatusFailed, types.StatusRejected},
	types.StatusSubmitted:       {types.StatusPartiallyFilled, types.StatusFilled, types.StatusCancelled, types.StatusExpired},
	types.StatusPartiallyFilled: {types.StatusPartiallyFilled, types.StatusFilled, types.StatusCancelled, types.StatusExpired},
}

func transitionAllowed(from, to types.OrderStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Fill carries a venue's cumulative fill figures for one order.
type Fill struct {
	FilledQuantity   decimal.Decimal
	AverageFillPrice decimal.Decimal
}

// Store is the persistence collaborator the ledger writes through. A failed
// write is logged and never breaks in-memory correctness.
type Store interface {
	SaveOrder(order *types.Order) error
	LoadActiveOrders() ([]types.Order, error)
}

// Book is the authoritative ledger of every order this system has submitted.
// Updates to a single order serialize on a per-order lock, so concurrent
// fill reports can never lose an accumulation.
type Book struct {
	mu      sync.RWMutex
	entries map[string]*entry
	store   Store
}

type entry struct {
	mu    sync.Mutex
	order types.Order
}

// NewBook creates an empty ledger writing through the given store. A nil
// store keeps the ledger purely in-memory.
func NewBook(store Store) *Book {
	return &Book{
		entries: make(map[string]*entry),
		store:   store,
	}
}

// LoadActive rehydrates in-flight orders from the store, typically once at
// startup. Orders already present in memory are left untouched.
//
// Orders persisted as pending belong to a placement cut short by a crash and
// are resolved here: one with a venue order ID was acknowledged before the
// crash and is restored as submitted so the status monitor reconciles it; one
// without never reached a venue and is failed.
func (b *Book) LoadActive() (int, error) {
	if b.store == nil {
		return 0, nil
	}
	orders, err := b.store.LoadActiveOrders()
	if err != nil {
		return 0, fmt.Errorf("failed to load active orders: %w", err)
	}

	var repaired []types.Order
	b.mu.Lock()
	restored := 0
	for _, o := range orders {
		if _, exists := b.entries[o.OrderID]; exists {
			continue
		}
		if o.Status == types.StatusPending {
			if o.VenueOrderID != "" {
				o.Status = types.StatusSubmitted
				log.Info().
					Str("order_id", o.OrderID).
					Str("venue_order_id", o.VenueOrderID).
					Msg("restored interrupted placement as submitted")
			} else {
				o.Status = types.StatusFailed
				log.Warn().
					Str("order_id", o.OrderID).
					Msg("failing stale pending order from previous run")
			}
			o.UpdatedAt = time.Now()
			repaired = append(repaired, o)
		}
		b.entries[o.OrderID] = &entry{order: o}
		restored++
	}
	b.mu.Unlock()

	for i := range repaired {
		b.persist(&repaired[i])
	}
	return restored, nil
}

// Record inserts a new order in pending state. A duplicate order ID fails
// without mutating the existing entry. The map lock only covers the insert;
// the write-through happens under the new entry's own lock so a slow store
// never stalls operations on unrelated orders.
func (b *Book) Record(order *types.Order) error {
	order.Status = types.StatusPending
	order.FilledQuantity = decimal.Zero
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now

	e := &entry{order: *order}

	b.mu.Lock()
	if _, exists := b.entries[order.OrderID]; exists {
		b.mu.Unlock()
		return fmt.Errorf("order %s: %w", order.OrderID, types.ErrDuplicateOrder)
	}
	b.entries[order.OrderID] = e
	b.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	b.persist(&e.order)
	return nil
}

// UpdateStatus validates and applies one lifecycle transition, folding in
// cumulative fill figures when present. It returns a copy of the updated
// order, types.ErrNotFound for an unknown ID, types.ErrInvalidTransition for
// an edge outside the lifecycle table, and types.ErrFillRegression when a
// fill report would decrease the filled quantity.
func (b *Book) UpdateStatus(orderID string, newStatus types.OrderStatus, fill *Fill) (*types.Order, error) {
	e := b.lookup(orderID)
	if e == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, types.ErrNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	o := &e.order
	if !transitionAllowed(o.Status, newStatus) {
		log.Error().
			Str("order_id", orderID).
			Str("from", string(o.Status)).
			Str("to", string(newStatus)).
			Msg("rejected order status transition")
		return nil, fmt.Errorf("order %s: %s -> %s: %w", orderID, o.Status, newStatus, types.ErrInvalidTransition)
	}

	if fill != nil {
		if fill.FilledQuantity.LessThan(o.FilledQuantity) {
			return nil, fmt.Errorf("order %s: %s -> %s: %w",
				orderID, o.FilledQuantity, fill.FilledQuantity, types.ErrFillRegression)
		}
		o.FilledQuantity = fill.FilledQuantity
		if fill.AverageFillPrice.IsPositive() {
			o.AverageFillPrice = fill.AverageFillPrice
		}
	}

	o.Status = newStatus
	o.UpdatedAt = time.Now()

	updated := *o
	b.persist(&updated)
	return &updated, nil
}

// AssignVenue stamps the routing decision onto a pending order.
func (b *Book) AssignVenue(orderID, venueID, venueOrderID string) error {
	e := b.lookup(orderID)
	if e == nil {
		return fmt.Errorf("order %s: %w", orderID, types.ErrNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.order.VenueID = venueID
	e.order.VenueOrderID = venueOrderID
	e.order.UpdatedAt = time.Now()
	updated := e.order
	b.persist(&updated)
	return nil
}

// Get returns a copy of one order.
func (b *Book) Get(orderID string) (*types.Order, error) {
	e := b.lookup(orderID)
	if e == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, types.ErrNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	o := e.order
	return &o, nil
}

// Active returns copies of all orders in a non-terminal, venue-working state
// (submitted or partially filled).
func (b *Book) Active() []types.Order {
	b.mu.RLock()
	entries := make([]*entry, 0, len(b.entries))
	for _, e := range b.entries {
		entries = append(entries, e)
	}
	b.mu.RUnlock()

	var active []types.Order
	for _, e := range entries {
		e.mu.Lock()
		if e.order.Status == types.StatusSubmitted || e.order.Status == types.StatusPartiallyFilled {
			active = append(active, e.order)
		}
		e.mu.Unlock()
	}
	return active
}

func (b *Book) lookup(orderID string) *entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.entries[orderID]
}

// persist writes an order through to the store. Persistence failures are
// logged and swallowed: the in-memory ledger stays authoritative.
func (b *Book) persist(order *types.Order) {
	if b.store == nil {
		return
	}
	if err := b.store.SaveOrder(order); err != nil {
		log.Error().
			Err(err).
			Str("order_id", order.OrderID).
			Str("status", string(order.Status)).
			Msg("failed to persist order state")
	}
}
