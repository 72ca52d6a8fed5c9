package session

import (
	"fmt"
	"sync"

	"ctp_gateway/internal/config"
	"ctp_gateway/internal/core"
	"ctp_gateway/internal/schema"
	apperrors "ctp_gateway/pkg/errors"
	"ctp_gateway/pkg/telemetry"
)

// TdClient drives the trade session. Unlike the market-data session it
// authenticates before login, and after readiness it only consumes
// pushed order and trade returns; there is no subscribe step.
type TdClient struct {
	*lifecycle

	api    core.TraderAPI
	cfg    config.SessionConfig
	sink   func(schema.Event)
	logger core.ILogger

	releaseOnce sync.Once
}

// NewTdClient creates a trade session client. Topic resume modes are
// fixed to quick: subscribers only care about flow produced after the
// gateway connected.
func NewTdClient(api core.TraderAPI, cfg config.SessionConfig, sink func(schema.Event), logger core.ILogger) *TdClient {
	c := &TdClient{
		lifecycle: newLifecycle(),
		api:       api,
		cfg:       cfg,
		sink:      sink,
		logger:    logger,
	}
	api.RegisterHandler(c)
	api.SubscribePrivateTopic(core.ResumeQuick)
	api.SubscribePublicTopic(core.ResumeQuick)
	return c
}

// Connect establishes the session transport. Authentication and login
// continue asynchronously through the callbacks.
func (c *TdClient) Connect() error {
	c.transition(StateConnecting)
	c.logger.Info("Connecting trade front", "front_address", c.cfg.FrontAddress)

	if err := c.api.Connect(c.cfg.FrontAddress); err != nil {
		err = fmt.Errorf("trade connect: %w", err)
		c.settleFail(err)
		return err
	}
	return nil
}

// OnFrontConnected begins the authenticate-then-login chain.
func (c *TdClient) OnFrontConnected() {
	c.logger.Info("Trade front connected")
	c.transition(StateAuthenticating)

	req := core.AuthRequest{
		BrokerID: c.cfg.BrokerID,
		UserID:   c.cfg.UserID,
		AppID:    c.cfg.AppID,
		AuthCode: string(c.cfg.AuthCode),
	}
	if err := c.api.ReqAuthenticate(req); err != nil {
		c.settleFail(fmt.Errorf("trade authenticate request: %w", err))
	}
}

func (c *TdClient) OnFrontDisconnected(reason int) {
	c.logger.Warn("Trade front disconnected", "reason", reason)
	telemetry.GetGlobalMetrics().SetSessionReady("trade", false)
	c.settleLost(fmt.Errorf("%w: reason %d", apperrors.ErrFrontDisconnected, reason))
}

func (c *TdClient) OnRspAuthenticate(rsp *core.RspInfo) {
	if !rsp.OK() {
		c.logger.Error("Trade authentication rejected", "error_id", rsp.ErrorID, "error_msg", rsp.ErrorMsg)
		c.settleFail(fmt.Errorf("%w: [%d] %s", apperrors.ErrAuthenticationFailed, rsp.ErrorID, rsp.ErrorMsg))
		return
	}

	c.logger.Info("Trade authentication succeeded", "app_id", c.cfg.AppID)
	c.transition(StateLoggingIn)

	req := core.LoginRequest{
		BrokerID: c.cfg.BrokerID,
		UserID:   c.cfg.UserID,
		Password: string(c.cfg.Password),
	}
	if err := c.api.ReqUserLogin(req); err != nil {
		c.settleFail(fmt.Errorf("trade login request: %w", err))
	}
}

func (c *TdClient) OnRspUserLogin(rsp *core.RspInfo) {
	if !rsp.OK() {
		c.logger.Error("Trade login rejected", "error_id", rsp.ErrorID, "error_msg", rsp.ErrorMsg)
		c.settleFail(fmt.Errorf("%w: [%d] %s", apperrors.ErrLoginFailed, rsp.ErrorID, rsp.ErrorMsg))
		return
	}

	c.logger.Info("Trade login succeeded", "user_id", c.cfg.UserID)
	telemetry.GetGlobalMetrics().SetSessionReady("trade", true)
	c.settleReady()
}

func (c *TdClient) OnRtnOrder(order *core.OrderRecord) {
	if c.sink == nil {
		return
	}
	c.sink(schema.OrderFromRecord(order))
}

func (c *TdClient) OnRtnTrade(trade *core.TradeRecord) {
	if c.sink == nil {
		return
	}
	c.sink(schema.TradeFromRecord(trade))
}

// Disconnect releases the session collaborator. Safe to call multiple
// times and safe to call before the session ever became ready.
func (c *TdClient) Disconnect() {
	c.releaseOnce.Do(func() {
		c.logger.Info("Releasing trade session")
		telemetry.GetGlobalMetrics().SetSessionReady("trade", false)
		c.api.Release()
		c.transition(StateDisconnected)
	})
}
