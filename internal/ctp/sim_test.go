package ctp

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctp_gateway/internal/core"
)

type mdRecorder struct {
	mu        sync.Mutex
	connected bool
	loggedIn  bool
	subbed    []string
	ticks     []*core.DepthMarketData
}

func (r *mdRecorder) OnFrontConnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = true
}
func (r *mdRecorder) OnFrontDisconnected(reason int) {}
func (r *mdRecorder) OnRspUserLogin(rsp *core.RspInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loggedIn = rsp.OK()
}
func (r *mdRecorder) OnRspSubMarketData(instrumentID string, rsp *core.RspInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subbed = append(r.subbed, instrumentID)
}
func (r *mdRecorder) OnDepthMarketData(md *core.DepthMarketData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, md)
}

func (r *mdRecorder) snapshot() (bool, bool, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected, r.loggedIn, len(r.subbed), len(r.ticks)
}

func TestSimMarketDataFlow(t *testing.T) {
	sim := NewSimMarketData()
	defer sim.Release()

	rec := &mdRecorder{}
	sim.RegisterHandler(rec)

	require.NoError(t, sim.Connect("tcp://sim"))
	require.Eventually(t, func() bool {
		connected, _, _, _ := rec.snapshot()
		return connected
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, sim.ReqUserLogin(core.LoginRequest{}))
	require.Eventually(t, func() bool {
		_, loggedIn, _, _ := rec.snapshot()
		return loggedIn
	}, time.Second, 10*time.Millisecond)

	code := sim.SubscribeMarketData([]string{"ag2306", "au2306"})
	assert.Equal(t, 0, code)

	require.Eventually(t, func() bool {
		_, _, subs, ticks := rec.snapshot()
		return subs == 2 && ticks >= 2
	}, 3*time.Second, 50*time.Millisecond)

	rec.mu.Lock()
	first := rec.ticks[0]
	rec.mu.Unlock()
	assert.Contains(t, []string{"ag2306", "au2306"}, first.InstrumentID)
	assert.Greater(t, first.ClosePrice, 0.0)
}

func TestSimMarketDataReleaseStopsFeed(t *testing.T) {
	sim := NewSimMarketData()
	rec := &mdRecorder{}
	sim.RegisterHandler(rec)
	sim.SubscribeMarketData([]string{"ag2306"})

	sim.Release()
	// Repeated release is safe.
	sim.Release()

	time.Sleep(simTickInterval + 100*time.Millisecond)
	_, _, _, before := rec.snapshot()
	time.Sleep(simTickInterval + 100*time.Millisecond)
	_, _, _, after := rec.snapshot()
	assert.Equal(t, before, after)
}
