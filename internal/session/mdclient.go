package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"ctp_gateway/internal/config"
	"ctp_gateway/internal/core"
	"ctp_gateway/internal/schema"
	apperrors "ctp_gateway/pkg/errors"
	"ctp_gateway/pkg/telemetry"
)

// Options tunes session client behavior. Zero values fall back to the
// production defaults.
type Options struct {
	SubscribeMaxAttempts int
	SubscribeRetryDelay  time.Duration
}

func (o Options) withDefaults() Options {
	if o.SubscribeMaxAttempts == 0 {
		o.SubscribeMaxAttempts = 10
	}
	if o.SubscribeRetryDelay == 0 {
		o.SubscribeRetryDelay = time.Second
	}
	return o
}

// MdClient drives the market-data session: connect, login, subscribe,
// and the flow of depth snapshots into the event sink. It implements
// core.MarketDataHandler; all callbacks arrive on threads owned by the
// collaborator and must not block.
type MdClient struct {
	*lifecycle

	api    core.MarketDataAPI
	cfg    config.SessionConfig
	sink   func(schema.Event)
	logger core.ILogger
	opts   Options

	releaseOnce sync.Once
}

// NewMdClient creates a market-data session client. The sink receives
// every mapped tick event; it must be non-blocking.
func NewMdClient(api core.MarketDataAPI, cfg config.SessionConfig, sink func(schema.Event), logger core.ILogger, opts Options) *MdClient {
	c := &MdClient{
		lifecycle: newLifecycle(),
		api:       api,
		cfg:       cfg,
		sink:      sink,
		logger:    logger,
		opts:      opts.withDefaults(),
	}
	api.RegisterHandler(c)
	return c
}

// Connect establishes the session transport. The login chain continues
// asynchronously through the callbacks; use WaitReady to observe the
// outcome.
func (c *MdClient) Connect() error {
	c.transition(StateConnecting)
	c.logger.Info("Connecting market data front", "front_address", c.cfg.FrontAddress)

	if err := c.api.Connect(c.cfg.FrontAddress); err != nil {
		err = fmt.Errorf("market data connect: %w", err)
		c.settleFail(err)
		return err
	}
	return nil
}

// OnFrontConnected begins login. The market-data session has no
// authentication step.
func (c *MdClient) OnFrontConnected() {
	c.logger.Info("Market data front connected")
	c.transition(StateLoggingIn)

	req := core.LoginRequest{
		BrokerID: c.cfg.BrokerID,
		UserID:   c.cfg.UserID,
		Password: string(c.cfg.Password),
	}
	if err := c.api.ReqUserLogin(req); err != nil {
		c.settleFail(fmt.Errorf("market data login request: %w", err))
	}
}

func (c *MdClient) OnFrontDisconnected(reason int) {
	c.logger.Warn("Market data front disconnected", "reason", reason)
	telemetry.GetGlobalMetrics().SetSessionReady("market_data", false)
	c.settleLost(fmt.Errorf("%w: reason %d", apperrors.ErrFrontDisconnected, reason))
}

func (c *MdClient) OnRspUserLogin(rsp *core.RspInfo) {
	if !rsp.OK() {
		c.logger.Error("Market data login rejected", "error_id", rsp.ErrorID, "error_msg", rsp.ErrorMsg)
		c.settleFail(fmt.Errorf("%w: [%d] %s", apperrors.ErrLoginFailed, rsp.ErrorID, rsp.ErrorMsg))
		return
	}

	c.logger.Info("Market data login succeeded", "user_id", c.cfg.UserID)
	telemetry.GetGlobalMetrics().SetSessionReady("market_data", true)
	c.settleReady()
}

func (c *MdClient) OnRspSubMarketData(instrumentID string, rsp *core.RspInfo) {
	if !rsp.OK() {
		c.logger.Warn("Subscription rejected", "instrument_id", instrumentID, "error_id", rsp.ErrorID, "error_msg", rsp.ErrorMsg)
		return
	}
	c.logger.Info("Subscribed", "instrument_id", instrumentID)
}

func (c *MdClient) OnDepthMarketData(md *core.DepthMarketData) {
	if c.sink == nil {
		return
	}
	c.sink(schema.TickFromDepthMarketData(md))
}

// Subscribe requests market data for the given instruments. A non-zero
// result code from the collaborator counts as a transient rejection and
// is retried with a fixed delay up to the configured attempt budget.
func (c *MdClient) Subscribe(ctx context.Context, instrumentIDs []string) error {
	if len(instrumentIDs) == 0 {
		return nil
	}
	if s := c.State(); s != StateReady {
		return fmt.Errorf("%w: state %s", apperrors.ErrNotReady, s)
	}

	attempts := 0
	policy := retrypolicy.NewBuilder[int]().
		HandleIf(func(code int, _ error) bool {
			return code != 0
		}).
		WithDelay(c.opts.SubscribeRetryDelay).
		WithMaxAttempts(c.opts.SubscribeMaxAttempts).
		OnRetry(func(e failsafe.ExecutionEvent[int]) {
			telemetry.GetGlobalMetrics().AddSubscribeRetries(ctx, 1)
			c.logger.Warn("Subscribe returned non-zero code, retrying",
				"attempt", e.Attempts(),
				"code", e.LastResult())
		}).
		Build()

	code, err := failsafe.With[int](policy).WithContext(ctx).Get(func() (int, error) {
		attempts++
		return c.api.SubscribeMarketData(instrumentIDs), nil
	})
	// The supplier never errors, so any error besides retry exhaustion
	// means the context expired mid-retry.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("subscribe market data: %w", ctxErr)
	}
	if err != nil || code != 0 {
		c.logger.Error("Subscribe gave up", "attempts", attempts, "instruments", len(instrumentIDs))
		return fmt.Errorf("%w after %d attempts", apperrors.ErrSubscribeRejected, attempts)
	}

	c.logger.Info("Subscribe accepted", "instruments", len(instrumentIDs), "attempts", attempts)
	return nil
}

// Logout sends a logout request. Best effort; the session is torn down
// by Disconnect regardless of the outcome.
func (c *MdClient) Logout() error {
	req := core.LogoutRequest{
		BrokerID: c.cfg.BrokerID,
		UserID:   c.cfg.UserID,
	}
	if err := c.api.ReqUserLogout(req); err != nil {
		return fmt.Errorf("market data logout: %w", err)
	}
	return nil
}

// Disconnect releases the session collaborator. Safe to call multiple
// times and safe to call before the session ever became ready.
func (c *MdClient) Disconnect() {
	c.releaseOnce.Do(func() {
		c.logger.Info("Releasing market data session")
		telemetry.GetGlobalMetrics().SetSessionReady("market_data", false)
		c.api.Release()
		c.transition(StateDisconnected)
	})
}
