// Package event carries module lifecycle and operation events from the
// service layer to websocket subscribers.
package event

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event types published by the service layer.
const (
	TypeModuleStatus    = "module.status"
	TypeConfigWritten   = "module.config_written"
	TypeOperationFailed = "module.operation_failed"
	TypeDiscovery       = "discovery.completed"
)

// Event represents a system event
type Event struct {
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// Bus manages event distribution
type Bus struct {
	subscribers map[string][]chan Event
	events      chan Event
	mutex       sync.RWMutex
	logger      *zap.Logger
}

// NewBus creates a new event bus
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string][]chan Event),
		events:      make(chan Event, 1000),
		logger:      logger,
	}
}

// Start distributes events until the bus is closed. Run in a goroutine.
func (b *Bus) Start() {
	for event := range b.events {
		b.distributeEvent(event)
	}
}

// Close stops distribution.
func (b *Bus) Close() {
	close(b.events)
}

// Publish publishes an event without blocking the caller.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case b.events <- event:
	default:
		b.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", event.Type),
		)
	}
}

// Subscribe subscribes to events of a specific type
func (b *Bus) Subscribe(eventType string) <-chan Event {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	subscriber := make(chan Event, 100)
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
	return subscriber
}

func (b *Bus) distributeEvent(event Event) {
	b.mutex.RLock()
	subscribers := b.subscribers[event.Type]
	b.mutex.RUnlock()

	for _, subscriber := range subscribers {
		select {
		case subscriber <- event:
		default:
			// Slow subscriber, skip rather than stall the bus.
		}
	}
}
