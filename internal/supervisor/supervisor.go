// Package supervisor owns the per-session pipelines and their shared
// lifecycle.
package supervisor

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"ctp_gateway/internal/alert"
	"ctp_gateway/internal/bridge"
	"ctp_gateway/internal/config"
	"ctp_gateway/internal/core"
	"ctp_gateway/internal/infrastructure/health"
	"ctp_gateway/internal/session"
	"ctp_gateway/pkg/concurrency"
	"ctp_gateway/pkg/liveserver"
)

// Supervisor runs the market-data and trade pipelines with independent
// lifecycles. A session that fails to connect, authenticate, log in, or
// subscribe is logged and left in its failed state; the sibling session
// and the WebSocket front door keep running.
type Supervisor struct {
	cfg    *config.Config
	logger core.ILogger
	alerts *alert.AlertManager
	pool   *concurrency.WorkerPool

	md       *session.MdClient
	td       *session.TdClient
	mdBridge *bridge.Bridge
	tdBridge *bridge.Bridge
}

// New wires both session pipelines: one bridge per session, fanning out
// through the shared hub. Blocking collaborator calls are dispatched on
// the worker pool so a hung connect can never pin a supervisor
// goroutine's shutdown path.
func New(cfg *config.Config, mdAPI core.MarketDataAPI, tdAPI core.TraderAPI, hub *liveserver.Hub, hm *health.HealthManager, logger core.ILogger) *Supervisor {
	s := &Supervisor{
		cfg:    cfg,
		logger: logger,
		pool: concurrency.NewWorkerPool(concurrency.PoolConfig{
			Name:       "sessions",
			MaxWorkers: 4,
		}, logger),
	}

	opts := session.Options{
		SubscribeMaxAttempts: cfg.Timing.SubscribeMaxAttempts,
		SubscribeRetryDelay:  time.Duration(cfg.Timing.SubscribeRetryDelayMs) * time.Millisecond,
	}

	s.mdBridge = bridge.New("market_data", cfg.Timing.QueueCapacity, hub, logger)
	s.md = session.NewMdClient(mdAPI, cfg.Sessions.MarketData, s.mdBridge.Sink(), logger, opts)

	s.tdBridge = bridge.New("trade", cfg.Timing.QueueCapacity, hub, logger)
	s.td = session.NewTdClient(tdAPI, cfg.Sessions.Trade, s.tdBridge.Sink(), logger)

	if hm != nil {
		hm.Register("market_data_session", health.SessionCheck(
			func() string { return s.md.State().String() },
			func() bool { return s.md.State() == session.StateReady },
		))
		hm.Register("trade_session", health.SessionCheck(
			func() string { return s.td.State().String() },
			func() bool { return s.td.State() == session.StateReady },
		))
	}

	return s
}

// SetAlertManager enables session failure alerts. Optional.
func (s *Supervisor) SetAlertManager(am *alert.AlertManager) {
	s.alerts = am
}

// alertFailure pushes a session failure to the alert channels. Uses a
// fresh context so alerts still go out during shutdown.
func (s *Supervisor) alertFailure(name string, err error) {
	if s.alerts == nil {
		return
	}
	s.alerts.Alert(context.Background(), "Session failed", err.Error(), alert.Error, map[string]string{
		"session": name,
	})
}

// Run drives both pipelines until the context is canceled, then tears
// them down. It returns only after both pipelines have stopped.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.runMarketData(gctx) })
	g.Go(func() error { return s.runTrade(gctx) })

	err := g.Wait()
	s.pool.Stop()
	return err
}

// runMarketData runs connect, login, subscribe, then pumps ticks until
// shutdown. Failures are terminal for this pipeline only.
func (s *Supervisor) runMarketData(ctx context.Context) error {
	defer s.md.Disconnect()

	pumpCtx, cancelPump := context.WithCancel(ctx)
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		s.mdBridge.Run(pumpCtx)
	}()
	defer func() {
		cancelPump()
		<-pumpDone
	}()

	if !s.connect(ctx, "market data", s.md.Connect) {
		return s.holdUntilShutdown(ctx)
	}

	readyCtx, cancel := context.WithTimeout(ctx, s.readyTimeout())
	err := s.md.WaitReady(readyCtx)
	cancel()
	if err != nil {
		s.logger.Error("Market data session failed", "error", err)
		s.alertFailure("market_data", err)
		return s.holdUntilShutdown(ctx)
	}

	if err := s.md.Subscribe(ctx, s.cfg.Instruments); err != nil {
		s.logger.Error("Market data subscription failed", "error", err)
		s.alertFailure("market_data", err)
		return s.holdUntilShutdown(ctx)
	}

	s.logger.Info("Market data pipeline ready", "instruments", len(s.cfg.Instruments))
	<-ctx.Done()

	if err := s.md.Logout(); err != nil {
		s.logger.Warn("Market data logout failed", "error", err)
	}
	return nil
}

// runTrade runs connect, authenticate, login, then pumps order and
// trade returns until shutdown.
func (s *Supervisor) runTrade(ctx context.Context) error {
	defer s.td.Disconnect()

	pumpCtx, cancelPump := context.WithCancel(ctx)
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		s.tdBridge.Run(pumpCtx)
	}()
	defer func() {
		cancelPump()
		<-pumpDone
	}()

	if !s.connect(ctx, "trade", s.td.Connect) {
		return s.holdUntilShutdown(ctx)
	}

	readyCtx, cancel := context.WithTimeout(ctx, s.readyTimeout())
	err := s.td.WaitReady(readyCtx)
	cancel()
	if err != nil {
		s.logger.Error("Trade session failed", "error", err)
		s.alertFailure("trade", err)
		return s.holdUntilShutdown(ctx)
	}

	s.logger.Info("Trade pipeline ready")
	<-ctx.Done()
	return nil
}

// connect dispatches the blocking connect call on the worker pool and
// waits for its result or cancellation. Returns false when the pipeline
// should stop.
func (s *Supervisor) connect(ctx context.Context, name string, fn func() error) bool {
	result := make(chan error, 1)
	if err := s.pool.Submit(func() { result <- fn() }); err != nil {
		s.logger.Error("Connect dispatch failed", "session", name, "error", err)
		return false
	}

	select {
	case err := <-result:
		if err != nil {
			s.logger.Error("Session connect failed", "session", name, "error", err)
			s.alertFailure(name, err)
			return false
		}
		return true
	case <-ctx.Done():
		return false
	}
}

// holdUntilShutdown parks a failed pipeline until shutdown. A dead
// session never takes down the process; the front door and the sibling
// session keep serving.
func (s *Supervisor) holdUntilShutdown(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (s *Supervisor) readyTimeout() time.Duration {
	return time.Duration(s.cfg.Timing.ReadyTimeoutSeconds) * time.Second
}

// MarketData returns the market-data session client.
func (s *Supervisor) MarketData() *session.MdClient { return s.md }

// Trade returns the trade session client.
func (s *Supervisor) Trade() *session.TdClient { return s.td }
