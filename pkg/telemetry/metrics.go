package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricEventsEnqueuedTotal   = "ctp_gateway_events_enqueued_total"
	MetricEventsDroppedTotal    = "ctp_gateway_events_dropped_total"
	MetricEventsForwardedTotal  = "ctp_gateway_events_forwarded_total"
	MetricBroadcastsTotal       = "ctp_gateway_broadcasts_total"
	MetricSubscribeRetriesTotal = "ctp_gateway_subscribe_retries_total"
	MetricSessionReady          = "ctp_gateway_session_ready"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	EventsEnqueuedTotal   metric.Int64Counter
	EventsDroppedTotal    metric.Int64Counter
	EventsForwardedTotal  metric.Int64Counter
	BroadcastsTotal       metric.Int64Counter
	SubscribeRetriesTotal metric.Int64Counter
	SessionReady          metric.Int64ObservableGauge

	// State for observable gauges
	mu              sync.RWMutex
	sessionReadyMap map[string]int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			sessionReadyMap: make(map[string]int64),
		}
		// Initialization of instruments happens in InitMetrics
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.EventsEnqueuedTotal, err = meter.Int64Counter(MetricEventsEnqueuedTotal, metric.WithDescription("Total events accepted onto a bridge queue"))
	if err != nil {
		return err
	}

	m.EventsDroppedTotal, err = meter.Int64Counter(MetricEventsDroppedTotal, metric.WithDescription("Total events dropped because a bridge queue was full"))
	if err != nil {
		return err
	}

	m.EventsForwardedTotal, err = meter.Int64Counter(MetricEventsForwardedTotal, metric.WithDescription("Total events drained by a pump loop and handed to the broadcaster"))
	if err != nil {
		return err
	}

	m.BroadcastsTotal, err = meter.Int64Counter(MetricBroadcastsTotal, metric.WithDescription("Total messages broadcast to the subscriber set"))
	if err != nil {
		return err
	}

	m.SubscribeRetriesTotal, err = meter.Int64Counter(MetricSubscribeRetriesTotal, metric.WithDescription("Total market-data subscribe attempts rejected and retried"))
	if err != nil {
		return err
	}

	// Observables
	m.SessionReady, err = meter.Int64ObservableGauge(MetricSessionReady, metric.WithDescription("Session readiness (1=ready, 0=not ready)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for session, val := range m.sessionReadyMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("session", session)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// Helpers to update observable state

func (m *MetricsHolder) SetSessionReady(session string, ready bool) {
	val := int64(0)
	if ready {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionReadyMap[session] = val
}

// AddEnqueued records events accepted onto a session's bridge queue.
func (m *MetricsHolder) AddEnqueued(ctx context.Context, session string, n int64) {
	if m.EventsEnqueuedTotal == nil {
		return
	}
	m.EventsEnqueuedTotal.Add(ctx, n, metric.WithAttributes(attribute.String("session", session)))
}

// AddDropped records events dropped by a full bridge queue.
func (m *MetricsHolder) AddDropped(ctx context.Context, session string, n int64) {
	if m.EventsDroppedTotal == nil {
		return
	}
	m.EventsDroppedTotal.Add(ctx, n, metric.WithAttributes(attribute.String("session", session)))
}

// AddForwarded records events drained and handed to the broadcaster.
func (m *MetricsHolder) AddForwarded(ctx context.Context, session, kind string, n int64) {
	if m.EventsForwardedTotal == nil {
		return
	}
	m.EventsForwardedTotal.Add(ctx, n, metric.WithAttributes(
		attribute.String("session", session),
		attribute.String("kind", kind),
	))
}

// AddBroadcasts records messages handed to the subscriber set.
func (m *MetricsHolder) AddBroadcasts(ctx context.Context, kind string, n int64) {
	if m.BroadcastsTotal == nil {
		return
	}
	m.BroadcastsTotal.Add(ctx, n, metric.WithAttributes(attribute.String("kind", kind)))
}

// AddSubscribeRetries records rejected subscribe attempts.
func (m *MetricsHolder) AddSubscribeRetries(ctx context.Context, n int64) {
	if m.SubscribeRetriesTotal == nil {
		return
	}
	m.SubscribeRetriesTotal.Add(ctx, n)
}
