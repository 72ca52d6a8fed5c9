package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctp_gateway/internal/config"
	"ctp_gateway/internal/core"
	"ctp_gateway/internal/mock"
	"ctp_gateway/internal/schema"
	apperrors "ctp_gateway/pkg/errors"
)

type noopLogger struct{}

func (l *noopLogger) Debug(msg string, fields ...interface{})               {}
func (l *noopLogger) Info(msg string, fields ...interface{})                {}
func (l *noopLogger) Warn(msg string, fields ...interface{})                {}
func (l *noopLogger) Error(msg string, fields ...interface{})               {}
func (l *noopLogger) Fatal(msg string, fields ...interface{})               {}
func (l *noopLogger) WithField(key string, value interface{}) core.ILogger  { return l }
func (l *noopLogger) WithFields(fields map[string]interface{}) core.ILogger { return l }

// eventCollector is a thread-safe sink for bridge events.
type eventCollector struct {
	mu     sync.Mutex
	events []schema.Event
}

func (c *eventCollector) sink(e schema.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *eventCollector) all() []schema.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]schema.Event(nil), c.events...)
}

func mdSessionConfig() config.SessionConfig {
	return config.DefaultConfig().Sessions.MarketData
}

func fastOptions() Options {
	return Options{
		SubscribeMaxAttempts: 10,
		SubscribeRetryDelay:  time.Millisecond,
	}
}

func TestMdClientBecomesReady(t *testing.T) {
	api := mock.NewMdAPI()
	client := NewMdClient(api, mdSessionConfig(), nil, &noopLogger{}, fastOptions())

	require.NoError(t, client.Connect())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.WaitReady(ctx))
	assert.Equal(t, StateReady, client.State())

	// The market data session logs in directly, without authentication.
	logins := api.LoginRequests()
	require.Len(t, logins, 1)
	assert.Equal(t, "9999", logins[0].BrokerID)
	assert.Equal(t, "test_user", logins[0].UserID)
	assert.Equal(t, "test_password", logins[0].Password)
}

func TestMdClientLoginRejected(t *testing.T) {
	api := mock.NewMdAPI()
	api.LoginRsp = &core.RspInfo{ErrorID: 3, ErrorMsg: "invalid password"}
	client := NewMdClient(api, mdSessionConfig(), nil, &noopLogger{}, fastOptions())

	require.NoError(t, client.Connect())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := client.WaitReady(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrLoginFailed)
	assert.Contains(t, err.Error(), "invalid password")
	assert.Equal(t, StateFailed, client.State())
}

func TestMdClientSubscribeAfterLoginRejected(t *testing.T) {
	api := mock.NewMdAPI()
	api.LoginRsp = &core.RspInfo{ErrorID: 3, ErrorMsg: "invalid password"}
	client := NewMdClient(api, mdSessionConfig(), nil, &noopLogger{}, fastOptions())

	require.NoError(t, client.Connect())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.Error(t, client.WaitReady(ctx))

	err := client.Subscribe(ctx, []string{"ag2306"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotReady)
	assert.Equal(t, 0, api.SubscribeCalls())
}

func TestMdClientWaitReadyTimeout(t *testing.T) {
	api := mock.NewMdAPI()
	client := NewMdClient(api, mdSessionConfig(), nil, &noopLogger{}, fastOptions())

	// Never connect: WaitReady must respect the context.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := client.WaitReady(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMdClientSubscribeBeforeReady(t *testing.T) {
	api := mock.NewMdAPI()
	client := NewMdClient(api, mdSessionConfig(), nil, &noopLogger{}, fastOptions())

	err := client.Subscribe(context.Background(), []string{"ag2306"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotReady)

	// The collaborator was never called.
	assert.Equal(t, 0, api.SubscribeCalls())
}

func TestMdClientSubscribeSucceedsAfterTransientRejections(t *testing.T) {
	api := mock.NewMdAPI()
	api.SubscribeCodes = []int{-1, -1, 0}
	client := NewMdClient(api, mdSessionConfig(), nil, &noopLogger{}, fastOptions())

	require.NoError(t, client.Connect())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.WaitReady(ctx))

	require.NoError(t, client.Subscribe(ctx, []string{"ag2306", "au2306"}))
	assert.Equal(t, 3, api.SubscribeCalls())
}

func TestMdClientSubscribeExhaustsAttemptBudget(t *testing.T) {
	api := mock.NewMdAPI()
	api.SubscribeCodes = []int{-1} // rejects forever
	client := NewMdClient(api, mdSessionConfig(), nil, &noopLogger{}, fastOptions())

	require.NoError(t, client.Connect())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.WaitReady(ctx))

	err := client.Subscribe(ctx, []string{"ag2306"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSubscribeRejected)

	// Exactly the attempt budget, no more.
	assert.Equal(t, 10, api.SubscribeCalls())
}

func TestMdClientSubscribeEmptyList(t *testing.T) {
	api := mock.NewMdAPI()
	client := NewMdClient(api, mdSessionConfig(), nil, &noopLogger{}, fastOptions())

	assert.NoError(t, client.Subscribe(context.Background(), nil))
	assert.Equal(t, 0, api.SubscribeCalls())
}

func TestMdClientDepthFlowsToSink(t *testing.T) {
	collector := &eventCollector{}
	api := mock.NewMdAPI()
	client := NewMdClient(api, mdSessionConfig(), collector.sink, &noopLogger{}, fastOptions())

	require.NoError(t, client.Connect())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.WaitReady(ctx))

	api.PushDepth(&core.DepthMarketData{
		InstrumentID: "ag2306",
		Volume:       10,
		Turnover:     5000.5,
		HighestPrice: 105.0,
		LowestPrice:  95.0,
		OpenPrice:    100.0,
		ClosePrice:   102.5,
		OpenInterest: 1500.0,
	})

	events := collector.all()
	require.Len(t, events, 1)
	tick, ok := events[0].(schema.TickEvent)
	require.True(t, ok)
	assert.Equal(t, "ag2306", tick.InstrumentID)
	assert.Equal(t, int64(10), tick.Volume)
	assert.Equal(t, 105.0, tick.High)
	assert.Equal(t, 1500.0, tick.OpenInterest)
}

func TestMdClientLogout(t *testing.T) {
	api := mock.NewMdAPI()
	client := NewMdClient(api, mdSessionConfig(), nil, &noopLogger{}, fastOptions())

	require.NoError(t, client.Logout())
	logouts := api.LogoutRequests()
	require.Len(t, logouts, 1)
	assert.Equal(t, "9999", logouts[0].BrokerID)
	assert.Equal(t, "test_user", logouts[0].UserID)
}

func TestMdClientDisconnectIdempotent(t *testing.T) {
	api := mock.NewMdAPI()
	client := NewMdClient(api, mdSessionConfig(), nil, &noopLogger{}, fastOptions())

	// Disconnect before the session ever became ready is safe, and so
	// are repeated calls.
	client.Disconnect()
	client.Disconnect()

	assert.True(t, api.Released())
	assert.Equal(t, StateDisconnected, client.State())
}

func TestMdClientFrontDisconnectedAfterReady(t *testing.T) {
	api := mock.NewMdAPI()
	client := NewMdClient(api, mdSessionConfig(), nil, &noopLogger{}, fastOptions())

	require.NoError(t, client.Connect())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.WaitReady(ctx))

	api.PushDisconnect(0x1001)

	assert.Equal(t, StateDisconnected, client.State())
	assert.ErrorIs(t, client.Err(), apperrors.ErrFrontDisconnected)

	// WaitReady already settled on the ready outcome.
	assert.NoError(t, client.WaitReady(ctx))
}
