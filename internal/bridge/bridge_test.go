package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctp_gateway/internal/schema"
	"ctp_gateway/pkg/liveserver"
)

func startHub(t *testing.T) *liveserver.Hub {
	t.Helper()
	hub := liveserver.NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func attachClient(t *testing.T, hub *liveserver.Hub, id string) *liveserver.Client {
	t.Helper()
	client := liveserver.NewClient(id, id)
	hub.Register(client)
	require.Eventually(t, func() bool {
		return hub.ClientCount() > 0
	}, time.Second, 10*time.Millisecond)
	return client
}

func TestBridgeForwardsEventsInOrder(t *testing.T) {
	hub := startHub(t)
	client := attachClient(t, hub, "c1")

	b := New("market_data", 64, hub, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	for i := 0; i < 5; i++ {
		b.Enqueue(schema.TickEvent{InstrumentID: fmt.Sprintf("ag230%d", i), Volume: int64(i)})
	}

	for i := 0; i < 5; i++ {
		select {
		case msg := <-client.GetSendChan():
			assert.Equal(t, liveserver.KindTick, msg.Kind)

			var tick schema.TickEvent
			require.NoError(t, json.Unmarshal(msg.Payload, &tick))
			assert.Equal(t, fmt.Sprintf("ag230%d", i), tick.InstrumentID)
			assert.Equal(t, int64(i), tick.Volume)
		case <-time.After(time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}
}

func TestBridgePayloadIsRawEventJSON(t *testing.T) {
	hub := startHub(t)
	client := attachClient(t, hub, "c1")

	b := New("market_data", 64, hub, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	event := schema.TickEvent{
		InstrumentID: "ag2306",
		Volume:       10,
		Turnover:     5000.5,
		High:         105.0,
		Low:          95.0,
		Open:         100.0,
		Close:        102.5,
		OpenInterest: 1500.0,
	}
	b.Enqueue(event)

	select {
	case msg := <-client.GetSendChan():
		expected, err := json.Marshal(event)
		require.NoError(t, err)
		assert.JSONEq(t, string(expected), string(msg.Payload))
		assert.Contains(t, string(msg.Payload), `"instrument_id":"ag2306"`)
		assert.Contains(t, string(msg.Payload), `"volume":10`)
		assert.Contains(t, string(msg.Payload), `"open_interest":1500`)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBridgeDispatchByKind(t *testing.T) {
	hub := startHub(t)
	client := attachClient(t, hub, "c1")

	b := New("trade", 64, hub, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Enqueue(schema.OrderEvent{OrderLocalID: "12", InstrumentID: "ag2306"})
	b.Enqueue(schema.TradeEvent{TradeID: "88", InstrumentID: "ag2306"})

	kinds := make([]string, 0, 2)
	for i := 0; i < 2; i++ {
		select {
		case msg := <-client.GetSendChan():
			kinds = append(kinds, msg.Kind)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
	assert.Equal(t, []string{liveserver.KindOrder, liveserver.KindTrade}, kinds)
}

func TestBridgeEnqueueNeverBlocks(t *testing.T) {
	hub := startHub(t)

	// No pump running: the queue fills and stays full.
	b := New("market_data", 8, hub, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Enqueue(schema.TickEvent{InstrumentID: "ag2306", Volume: int64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}

	assert.Equal(t, int64(8), b.Enqueued())
	assert.Equal(t, int64(92), b.Dropped())
	assert.Equal(t, 8, b.Pending())
}

func TestBridgeStopDiscardsPendingEvents(t *testing.T) {
	hub := startHub(t)

	b := New("market_data", 64, hub, nil)
	ctx, cancel := context.WithCancel(context.Background())

	runDone := make(chan error, 1)
	go func() { runDone <- b.Run(ctx) }()

	// Stop the pump, then queue events behind its back.
	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("pump did not stop")
	}

	b.Enqueue(schema.TickEvent{InstrumentID: "ag2306"})
	b.Enqueue(schema.TickEvent{InstrumentID: "au2306"})

	// Nothing is forwarded; the events sit in the queue until the
	// bridge is garbage collected.
	assert.Equal(t, int64(0), b.Forwarded())
	assert.Equal(t, 2, b.Pending())
}

func TestBridgeEnqueueBeforeRunIsDelivered(t *testing.T) {
	hub := startHub(t)
	client := attachClient(t, hub, "c1")

	b := New("market_data", 64, hub, nil)

	// Events queued before the pump starts are not lost.
	b.Enqueue(schema.TickEvent{InstrumentID: "ag2306"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	select {
	case msg := <-client.GetSendChan():
		assert.Equal(t, liveserver.KindTick, msg.Kind)
	case <-time.After(time.Second):
		t.Fatal("pre-run event not delivered")
	}
}
