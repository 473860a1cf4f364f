// Package events provides an in-process event bus that fans trading events
// out to subscribers such as the websocket hub.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// EventType defines the category of event
type EventType string

const (
	EventTypeTrade         EventType = "trade"
	EventTypeStopTriggered EventType = "stop_triggered"
	EventTypeTick          EventType = "tick"
	EventTypeSignal        EventType = "signal"
	EventTypeBacktest      EventType = "backtest"
	EventTypeReset         EventType = "portfolio_reset"
)

// Event is the base interface for all trading events
type Event interface {
	GetType() EventType
	GetTimestamp() time.Time
	GetID() string
}

// BaseEvent provides common event functionality
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *BaseEvent) GetType() EventType      { return e.Type }
func (e *BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e *BaseEvent) GetID() string           { return e.ID }

// newBaseEvent stamps an event with a sortable unique id
func newBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        ulid.Make().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// EventHandler processes events
type EventHandler func(event Event) error

// Subscription represents an active subscription
type Subscription struct {
	ID        string
	EventType EventType
	Handler   EventHandler
	active    atomic.Bool
}

// IsActive returns whether the subscription is active
func (s *Subscription) IsActive() bool {
	return s.active.Load()
}

// EventBusStats tracks bus throughput
type EventBusStats struct {
	EventsPublished   int64 `json:"eventsPublished"`
	EventsProcessed   int64 `json:"eventsProcessed"`
	EventsDropped     int64 `json:"eventsDropped"`
	ProcessingErrors  int64 `json:"processingErrors"`
	MaxLatencyNs      int64 `json:"maxLatencyNs"`
	ActiveSubscribers int64 `json:"activeSubscribers"`
}

// EventBusConfig holds configuration for the event bus
type EventBusConfig struct {
	NumWorkers int `json:"numWorkers"`
	BufferSize int `json:"bufferSize"`
}

// DefaultEventBusConfig returns sensible defaults
func DefaultEventBusConfig() EventBusConfig {
	return EventBusConfig{
		NumWorkers: 4,
		BufferSize: 1024,
	}
}

// EventBus dispatches published events to subscribers on a fixed set of
// workers. Publish never blocks; events are dropped when the buffer is full.
type EventBus struct {
	mu             sync.RWMutex
	subscribers    map[EventType][]*Subscription
	allSubscribers []*Subscription

	eventChan chan Event

	eventsPublished   atomic.Int64
	eventsProcessed   atomic.Int64
	eventsDropped     atomic.Int64
	processingErrors  atomic.Int64
	activeSubscribers atomic.Int64
	maxLatency        atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewEventBus creates a bus and starts its workers
func NewEventBus(logger *zap.Logger, config EventBusConfig) *EventBus {
	workers := config.NumWorkers
	if workers <= 0 {
		workers = 4
	}
	buffer := config.BufferSize
	if buffer <= 0 {
		buffer = 1024
	}

	ctx, cancel := context.WithCancel(context.Background())
	eb := &EventBus{
		subscribers: make(map[EventType][]*Subscription),
		eventChan:   make(chan Event, buffer),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.Named("event-bus"),
	}

	for i := 0; i < workers; i++ {
		eb.wg.Add(1)
		go eb.worker()
	}

	eb.logger.Info("EventBus initialized",
		zap.Int("workers", workers),
		zap.Int("buffer_size", buffer),
	)
	return eb
}

func (eb *EventBus) worker() {
	defer eb.wg.Done()
	for {
		select {
		case <-eb.ctx.Done():
			return
		case event := <-eb.eventChan:
			start := time.Now()
			eb.processEvent(event)
			if ns := time.Since(start).Nanoseconds(); ns > eb.maxLatency.Load() {
				eb.maxLatency.Store(ns)
			}
		}
	}
}

func (eb *EventBus) processEvent(event Event) {
	eb.mu.RLock()
	subs := append([]*Subscription(nil), eb.subscribers[event.GetType()]...)
	subs = append(subs, eb.allSubscribers...)
	eb.mu.RUnlock()

	for _, sub := range subs {
		if sub.active.Load() {
			eb.executeHandler(sub, event)
		}
	}
	eb.eventsProcessed.Add(1)
}

func (eb *EventBus) executeHandler(sub *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.processingErrors.Add(1)
			eb.logger.Error("Event handler panic",
				zap.String("subscription_id", sub.ID),
				zap.String("event_type", string(event.GetType())),
				zap.Any("panic", r),
			)
		}
	}()

	if err := sub.Handler(event); err != nil {
		eb.processingErrors.Add(1)
		eb.logger.Warn("Event handler error",
			zap.String("subscription_id", sub.ID),
			zap.String("event_type", string(event.GetType())),
			zap.Error(err),
		)
	}
}

func (eb *EventBus) newSubscription(eventType EventType, handler EventHandler) *Subscription {
	sub := &Subscription{
		ID:        "sub_" + ulid.Make().String(),
		EventType: eventType,
		Handler:   handler,
	}
	sub.active.Store(true)
	eb.activeSubscribers.Add(1)
	return sub
}

// Subscribe registers handler for one event type
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) *Subscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub := eb.newSubscription(eventType, handler)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], sub)

	eb.logger.Debug("Subscription added",
		zap.String("id", sub.ID),
		zap.String("event_type", string(eventType)),
	)
	return sub
}

// SubscribeAll registers handler for every event
func (eb *EventBus) SubscribeAll(handler EventHandler) *Subscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub := eb.newSubscription("*", handler)
	eb.allSubscribers = append(eb.allSubscribers, sub)
	return sub
}

// Unsubscribe deactivates a subscription
func (eb *EventBus) Unsubscribe(sub *Subscription) {
	if sub.active.Swap(false) {
		eb.activeSubscribers.Add(-1)
	}
}

// Publish queues an event for asynchronous delivery
func (eb *EventBus) Publish(event Event) {
	select {
	case eb.eventChan <- event:
		eb.eventsPublished.Add(1)
	default:
		eb.eventsDropped.Add(1)
		eb.logger.Warn("Event dropped - buffer full",
			zap.String("event_type", string(event.GetType())),
		)
	}
}

// PublishSync delivers an event on the calling goroutine
func (eb *EventBus) PublishSync(event Event) {
	eb.eventsPublished.Add(1)
	eb.processEvent(event)
}

// GetStats returns bus counters
func (eb *EventBus) GetStats() EventBusStats {
	return EventBusStats{
		EventsPublished:   eb.eventsPublished.Load(),
		EventsProcessed:   eb.eventsProcessed.Load(),
		EventsDropped:     eb.eventsDropped.Load(),
		ProcessingErrors:  eb.processingErrors.Load(),
		MaxLatencyNs:      eb.maxLatency.Load(),
		ActiveSubscribers: eb.activeSubscribers.Load(),
	}
}

// Stop stops the workers, waiting up to five seconds
func (eb *EventBus) Stop() {
	eb.cancel()

	done := make(chan struct{})
	go func() {
		eb.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		eb.logger.Info("EventBus shutdown complete",
			zap.Int64("events_processed", eb.eventsProcessed.Load()),
			zap.Int64("events_dropped", eb.eventsDropped.Load()),
		)
	case <-time.After(5 * time.Second):
		eb.logger.Warn("EventBus shutdown timed out")
	}
}
