// Package bridge moves events from session callback threads to the
// WebSocket hub through a bounded queue.
package bridge

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"ctp_gateway/internal/core"
	"ctp_gateway/internal/schema"
	"ctp_gateway/pkg/liveserver"
	"ctp_gateway/pkg/telemetry"
)

// Bridge decouples the session collaborator's callback threads from
// subscriber fan-out. Enqueue never blocks: when the queue is full the
// newest event is dropped and counted, so a stalled hub can never stall
// a callback thread. A single pump goroutine drains the queue in FIFO
// order, serializes each event once, and hands it to the hub.
type Bridge struct {
	session string
	queue   chan schema.Event
	hub     *liveserver.Hub
	logger  core.ILogger

	enqueued  atomic.Int64
	dropped   atomic.Int64
	forwarded atomic.Int64
}

// New creates a bridge for one session with the given queue capacity.
func New(session string, capacity int, hub *liveserver.Hub, logger core.ILogger) *Bridge {
	return &Bridge{
		session: session,
		queue:   make(chan schema.Event, capacity),
		hub:     hub,
		logger:  logger,
	}
}

// Enqueue hands an event to the pump. Non-blocking: a full queue drops
// the event. Safe to call from any goroutine, including before Run
// starts and after it returns.
func (b *Bridge) Enqueue(e schema.Event) {
	select {
	case b.queue <- e:
		b.enqueued.Add(1)
		telemetry.GetGlobalMetrics().AddEnqueued(context.Background(), b.session, 1)
	default:
		b.dropped.Add(1)
		telemetry.GetGlobalMetrics().AddDropped(context.Background(), b.session, 1)
		if b.logger != nil {
			b.logger.Warn("Event queue full, dropping event", "session", b.session, "kind", string(e.Kind()))
		}
	}
}

// Sink returns Enqueue as a sink function for session clients.
func (b *Bridge) Sink() func(schema.Event) {
	return b.Enqueue
}

// Run pumps queued events to the hub until the context is canceled.
// Events still queued at cancellation are discarded.
func (b *Bridge) Run(ctx context.Context) error {
	if b.logger != nil {
		b.logger.Info("Bridge pump started", "session", b.session, "queue_capacity", cap(b.queue))
	}

	for {
		select {
		case <-ctx.Done():
			if b.logger != nil {
				b.logger.Info("Bridge pump stopped",
					"session", b.session,
					"forwarded", b.forwarded.Load(),
					"dropped", b.dropped.Load(),
					"discarded", len(b.queue))
			}
			return nil

		case event := <-b.queue:
			b.forward(ctx, event)
		}
	}
}

func (b *Bridge) forward(ctx context.Context, event schema.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		// Events are plain structs; this only fires on a schema bug.
		if b.logger != nil {
			b.logger.Error("Event serialization failed", "session", b.session, "kind", string(event.Kind()), "error", err)
		}
		return
	}

	var msg liveserver.Message
	switch event.Kind() {
	case schema.KindTick:
		msg = liveserver.NewTickMessage(payload)
	case schema.KindOrder:
		msg = liveserver.NewOrderMessage(payload)
	case schema.KindTrade:
		msg = liveserver.NewTradeMessage(payload)
	default:
		if b.logger != nil {
			b.logger.Error("Unknown event kind", "session", b.session, "kind", string(event.Kind()))
		}
		return
	}

	b.hub.Broadcast(msg)
	b.forwarded.Add(1)
	telemetry.GetGlobalMetrics().AddForwarded(ctx, b.session, string(event.Kind()), 1)
	telemetry.GetGlobalMetrics().AddBroadcasts(ctx, string(event.Kind()), 1)
}

// Enqueued returns the number of events accepted into the queue.
func (b *Bridge) Enqueued() int64 { return b.enqueued.Load() }

// Dropped returns the number of events dropped on a full queue.
func (b *Bridge) Dropped() int64 { return b.dropped.Load() }

// Forwarded returns the number of events handed to the hub.
func (b *Bridge) Forwarded() int64 { return b.forwarded.Load() }

// Pending returns the number of events waiting in the queue.
func (b *Bridge) Pending() int { return len(b.queue) }
