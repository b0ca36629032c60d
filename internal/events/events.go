package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EventJobCreated       = "job_created"
	EventJobStarted       = "job_started"
	EventJobCompleted     = "job_completed"
	EventJobFailed        = "job_failed"
	EventJobCancelled     = "job_cancelled"
	EventJobForceReleased = "job_force_released"
	EventJobStalled       = "job_stalled"
)

// JobEventPayload is the job snapshot delivered to subscribers.
type JobEventPayload struct {
	JobID       string `json:"job_id"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	TriggeredBy string `json:"triggered_by,omitempty"`
	Error       string `json:"error,omitempty"`
	RetryCount  int    `json:"retry_count,omitempty"`
	// Summary is a short human readable outcome, e.g. created/updated counts.
	Summary string    `json:"summary,omitempty"`
	At      time.Time `json:"at"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into dest.
func (e *Event) Decode(dest any) error {
	return json.Unmarshal(e.Payload, dest)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewEventBus constructs an empty bus. Handler errors are logged to logger,
// which may be nil.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("event", event.Type).Msg("event handler failed")
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
