// Package livebus provides the in-process event bus connecting the compile
// pipeline to the live-update layer: fan-out of compile results to every
// subscriber (session broadcast, metrics, logging) without direct coupling.
package livebus

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
)

// Logger is the interface for structured logging in the bus. It enables
// dependency injection of loggers for testability.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// defaultLogger wraps the standard log package.
type defaultLogger struct{}

func (l *defaultLogger) Debug(msg string, keysAndValues ...any) {
	log.Printf("[DEBUG] %s %v", msg, keysAndValues)
}

func (l *defaultLogger) Info(msg string, keysAndValues ...any) {
	log.Printf("[INFO] %s %v", msg, keysAndValues)
}

func (l *defaultLogger) Warn(msg string, keysAndValues ...any) {
	log.Printf("[WARN] %s %v", msg, keysAndValues)
}

func (l *defaultLogger) Error(msg string, keysAndValues ...any) {
	log.Printf("[ERROR] %s %v", msg, keysAndValues)
}

// noopLogger discards all output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NoopLogger returns a logger that discards all output.
func NoopLogger() Logger { return noopLogger{} }

// Event is anything published on the bus. Type returns the routing key.
type Event interface {
	Type() string
}

// HandlerFunc processes one event.
type HandlerFunc func(ctx context.Context, event Event) error

// subscriberEntry holds a subscriber with its unique id for unsubscribe
// support.
type subscriberEntry struct {
	id      uint64
	handler HandlerFunc
}

// Bus is a thread-safe in-memory event bus for single-process deployments.
//
// Usage:
//
//	bus := livebus.New(logger)
//	sub := bus.Subscribe(livebus.TypeIRCompiled, broadcastHandler)
//	bus.Publish(ctx, &livebus.IRCompiled{Path: "app.tsx", Doc: doc})
//	bus.Unsubscribe(livebus.TypeIRCompiled, sub)
type Bus struct {
	subscribers map[string][]subscriberEntry
	nextSubID   atomic.Uint64
	logger      Logger
	mu          sync.RWMutex
}

// New creates a bus. A nil logger falls back to the standard-log adapter.
func New(logger Logger) *Bus {
	if logger == nil {
		logger = &defaultLogger{}
	}
	return &Bus{
		subscribers: make(map[string][]subscriberEntry),
		logger:      logger,
	}
}

// Subscribe registers a handler for an event type and returns the
// subscription id.
func (b *Bus) Subscribe(eventType string, handler HandlerFunc) uint64 {
	id := b.nextSubID.Add(1)
	b.mu.Lock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriberEntry{id: id, handler: handler})
	b.mu.Unlock()
	b.logger.Debug("bus_subscribed", "event_type", eventType, "subscriber_id", id)
	return id
}

// Unsubscribe removes a subscription by id. Unknown ids are a no-op.
func (b *Bus) Unsubscribe(eventType string, id uint64) {
	b.mu.Lock()
	entries := b.subscribers[eventType]
	for i, entry := range entries {
		if entry.id == id {
			b.subscribers[eventType] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
}

// Publish fans an event out to all subscribers concurrently. Subscriber
// errors are logged but don't stop other subscribers; the first error is
// returned.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	eventType := event.Type()

	// Copy the entries so no lock is held during handler execution.
	b.mu.RLock()
	entries := b.subscribers[eventType]
	entriesCopy := make([]subscriberEntry, len(entries))
	copy(entriesCopy, entries)
	b.mu.RUnlock()

	if len(entriesCopy) == 0 {
		b.logger.Debug("bus_no_subscribers", "event_type", eventType)
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(entriesCopy))
	for i, entry := range entriesCopy {
		wg.Add(1)
		go func(idx int, h HandlerFunc) {
			defer wg.Done()
			if err := h(ctx, event); err != nil {
				errs[idx] = err
				b.logger.Warn("bus_subscriber_failed",
					"subscriber_idx", idx,
					"event_type", eventType,
					"error", err.Error(),
				)
			}
		}(i, entry.handler)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("subscriber failed for %s: %w", eventType, err)
		}
	}
	return nil
}

// SubscriberCount reports the subscriber count for an event type.
func (b *Bus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventType])
}
