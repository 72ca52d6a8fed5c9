package session

import (
	"context"
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

func tdSessionConfig() config.SessionConfig {
	return config.DefaultConfig().Sessions.Trade
}

func TestTdClientAuthenticatesThenLogsIn(t *testing.T) {
	api := mock.NewTraderAPI()
	client := NewTdClient(api, tdSessionConfig(), nil, &noopLogger{})

	require.NoError(t, client.Connect())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.WaitReady(ctx))
	assert.Equal(t, StateReady, client.State())

	auths := api.AuthRequests()
	require.Len(t, auths, 1)
	assert.Equal(t, "simnow_client_test", auths[0].AppID)
	assert.Equal(t, "0000000000000000", auths[0].AuthCode)

	logins := api.LoginRequests()
	require.Len(t, logins, 1)
	assert.Equal(t, "test_user", logins[0].UserID)

	// Topic streams resume in quick mode.
	private, public := api.TopicModes()
	assert.Equal(t, core.ResumeQuick, private)
	assert.Equal(t, core.ResumeQuick, public)
}

func TestTdClientAuthenticationRejected(t *testing.T) {
	api := mock.NewTraderAPI()
	api.AuthRsp = &core.RspInfo{ErrorID: 63, ErrorMsg: "appid auth failed"}
	client := NewTdClient(api, tdSessionConfig(), nil, &noopLogger{})

	require.NoError(t, client.Connect())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := client.WaitReady(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAuthenticationFailed)
	assert.Equal(t, StateFailed, client.State())

	// Login is never attempted after a failed authentication.
	assert.Empty(t, api.LoginRequests())
}

func TestTdClientLoginRejected(t *testing.T) {
	api := mock.NewTraderAPI()
	api.LoginRsp = &core.RspInfo{ErrorID: 3, ErrorMsg: "invalid password"}
	client := NewTdClient(api, tdSessionConfig(), nil, &noopLogger{})

	require.NoError(t, client.Connect())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := client.WaitReady(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrLoginFailed)
}

func TestTdClientOrderAndTradeFlowToSink(t *testing.T) {
	collector := &eventCollector{}
	api := mock.NewTraderAPI()
	client := NewTdClient(api, tdSessionConfig(), collector.sink, &noopLogger{})

	require.NoError(t, client.Connect())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.WaitReady(ctx))

	api.PushOrder(&core.OrderRecord{
		OrderLocalID:   "       12",
		SequenceNo:     7,
		AccountID:      "028891",
		ExchangeInstID: "ag2306",
		InstrumentID:   "ag2306",
		VolumeTotal:    5,
		VolumeTraded:   2,
		Direction:      "0",
		LimitPrice:     4500.0,
	})
	api.PushTrade(&core.TradeRecord{
		ClientID:     "9999028891",
		Direction:    "0",
		Volume:       2,
		Price:        4500.0,
		InstrumentID: "ag2306",
		ExchangeID:   "SHFE",
		TradeID:      "    88",
		OrderLocalID: "       12",
	})

	events := collector.all()
	require.Len(t, events, 2)

	order, ok := events[0].(schema.OrderEvent)
	require.True(t, ok)
	assert.Equal(t, int32(7), order.TradeNo)
	assert.Equal(t, "028891", order.AccountID)
	assert.Equal(t, int32(5), order.Volume)
	assert.Equal(t, int32(2), order.VolumeTraded)

	trade, ok := events[1].(schema.TradeEvent)
	require.True(t, ok)
	assert.Equal(t, "SHFE", trade.ExchangeID)
	assert.Equal(t, 4500.0, trade.Price)
}

func TestTdClientDisconnectIdempotent(t *testing.T) {
	api := mock.NewTraderAPI()
	client := NewTdClient(api, tdSessionConfig(), nil, &noopLogger{})

	client.Disconnect()
	client.Disconnect()

	assert.True(t, api.Released())
	assert.Equal(t, StateDisconnected, client.State())
}

func TestTdClientFrontDisconnectedBeforeReady(t *testing.T) {
	api := mock.NewTraderAPI()
	api.ConnectErr = nil
	client := NewTdClient(api, tdSessionConfig(), nil, &noopLogger{})

	// Deliver a disconnect without ever connecting the front.
	api.PushDisconnect(0x2003)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := client.WaitReady(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrFrontDisconnected)
}
