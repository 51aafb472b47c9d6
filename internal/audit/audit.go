package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Event is one audit trail entry. The payload is stored as JSON.
type Event struct {
	gorm.Model `json:"-"`
	EventID    string    `gorm:"uniqueIndex" json:"event_id"`
	EventType  string    `json:"event_type"`
	Payload    string    `json:"payload"`
	CreatedAt  time.Time `json:"created_at"`
}

// Lifecycle event types emitted by the execution core.
const (
	EventOrderPlaced     = "order.placed"
	EventOrderSubmitted  = "order.submitted"
	EventOrderRejected   = "order.rejected"
	EventOrderFailed     = "order.failed"
	EventOrderCancelled  = "order.cancelled"
	EventOrderFilled     = "order.filled"
	EventOrderPartFilled = "order.partially_filled"
	EventOrderExpired    = "order.expired"
	EventRiskBlocked     = "risk.blocked"
	EventRiskWarning     = "risk.warning"
)

type queued struct {
	eventType string
	payload   map[string]interface{}
	at        time.Time
}

// Recorder receives fire-and-forget audit notifications over a channel and
// persists them in arrival order. Emission never blocks the trading path:
// when the buffer is full the event is counted as dropped and logged.
type Recorder struct {
	db     *gorm.DB
	events chan queued
}

// NewRecorder creates a recorder with the given buffer size. A nil db keeps
// events log-only.
func NewRecorder(db *gorm.DB, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Recorder{
		db:     db,
		events: make(chan queued, buffer),
	}
}

// Emit enqueues an event for recording. Safe for concurrent use.
func (r *Recorder) Emit(eventType string, payload map[string]interface{}) {
	select {
	case r.events <- queued{eventType: eventType, payload: payload, at: time.Now()}:
	default:
		log.Warn().Str("event_type", eventType).Msg("audit buffer full, event dropped")
	}
}

// Start consumes and persists queued events until ctx is cancelled. Events
// still buffered at shutdown are flushed before returning.
func (r *Recorder) Start(ctx context.Context) {
	logger := log.With().Str("component", "audit_recorder").Logger()
	logger.Info().Msg("starting audit recorder")

	for {
		select {
		case <-ctx.Done():
			r.drain()
			logger.Info().Msg("shutting down audit recorder")
			return
		case ev := <-r.events:
			r.record(ev)
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case ev := <-r.events:
			r.record(ev)
		default:
			return
		}
	}
}

func (r *Recorder) record(ev queued) {
	body, err := json.Marshal(ev.payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", ev.eventType).Msg("failed to marshal audit payload")
		body = []byte("{}")
	}

	log.Info().
		Str("event_type", ev.eventType).
		RawJSON("payload", body).
		Msg("audit event")

	if r.db == nil {
		return
	}
	record := Event{
		EventID:   "EVT_" + uuid.New().String(),
		EventType: ev.eventType,
		Payload:   string(body),
		CreatedAt: ev.at,
	}
	if err := r.db.Create(&record).Error; err != nil {
		log.Error().Err(err).Str("event_type", ev.eventType).Msg("failed to persist audit event")
	}
}
