// Package mock provides scripted session collaborators for testing.
package mock

import (
	"sync"

	"ctp_gateway/internal/core"
)

// MdAPI is a scripted market-data collaborator. Connect triggers the
// callback chain asynchronously, the way the real collaborator delivers
// callbacks on its own threads. Response payloads are configurable so
// tests can script rejections at any step.
type MdAPI struct {
	mu      sync.Mutex
	handler core.MarketDataHandler

	// Scripted behavior. Nil responses mean success.
	ConnectErr     error
	LoginRsp       *core.RspInfo
	SubscribeCodes []int // consumed one per call; the last value repeats

	connectCalls   int
	subscribeCalls int
	loginRequests  []core.LoginRequest
	logoutRequests []core.LogoutRequest
	subscribed     [][]string
	released       bool
}

// NewMdAPI returns a collaborator that succeeds at every step.
func NewMdAPI() *MdAPI {
	return &MdAPI{}
}

func (m *MdAPI) RegisterHandler(h core.MarketDataHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

func (m *MdAPI) Connect(frontAddress string) error {
	m.mu.Lock()
	m.connectCalls++
	err := m.ConnectErr
	h := m.handler
	m.mu.Unlock()

	if err != nil {
		return err
	}
	go h.OnFrontConnected()
	return nil
}

func (m *MdAPI) ReqUserLogin(req core.LoginRequest) error {
	m.mu.Lock()
	m.loginRequests = append(m.loginRequests, req)
	rsp := m.LoginRsp
	h := m.handler
	m.mu.Unlock()

	go h.OnRspUserLogin(rsp)
	return nil
}

func (m *MdAPI) ReqUserLogout(req core.LogoutRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logoutRequests = append(m.logoutRequests, req)
	return nil
}

func (m *MdAPI) SubscribeMarketData(instrumentIDs []string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.subscribeCalls++
	m.subscribed = append(m.subscribed, instrumentIDs)

	if len(m.SubscribeCodes) == 0 {
		return 0
	}
	idx := m.subscribeCalls - 1
	if idx >= len(m.SubscribeCodes) {
		idx = len(m.SubscribeCodes) - 1
	}
	return m.SubscribeCodes[idx]
}

func (m *MdAPI) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = true
}

// PushDepth delivers a depth snapshot to the registered handler.
func (m *MdAPI) PushDepth(md *core.DepthMarketData) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	h.OnDepthMarketData(md)
}

// PushDisconnect delivers a front-disconnected callback.
func (m *MdAPI) PushDisconnect(reason int) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	h.OnFrontDisconnected(reason)
}

// SubscribeCalls returns how many times SubscribeMarketData was called.
func (m *MdAPI) SubscribeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribeCalls
}

// LoginRequests returns the login requests received so far.
func (m *MdAPI) LoginRequests() []core.LoginRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.LoginRequest(nil), m.loginRequests...)
}

// LogoutRequests returns the logout requests received so far.
func (m *MdAPI) LogoutRequests() []core.LogoutRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.LogoutRequest(nil), m.logoutRequests...)
}

// Released reports whether Release was called.
func (m *MdAPI) Released() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

// TraderAPI is a scripted trade collaborator.
type TraderAPI struct {
	mu      sync.Mutex
	handler core.TraderHandler

	ConnectErr error
	AuthRsp    *core.RspInfo
	LoginRsp   *core.RspInfo

	connectCalls  int
	authRequests  []core.AuthRequest
	loginRequests []core.LoginRequest
	privateMode   core.ResumeMode
	publicMode    core.ResumeMode
	released      bool
}

// NewTraderAPI returns a collaborator that succeeds at every step.
func NewTraderAPI() *TraderAPI {
	return &TraderAPI{}
}

func (m *TraderAPI) RegisterHandler(h core.TraderHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

func (m *TraderAPI) SubscribePrivateTopic(mode core.ResumeMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.privateMode = mode
}

func (m *TraderAPI) SubscribePublicTopic(mode core.ResumeMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publicMode = mode
}

func (m *TraderAPI) Connect(frontAddress string) error {
	m.mu.Lock()
	m.connectCalls++
	err := m.ConnectErr
	h := m.handler
	m.mu.Unlock()

	if err != nil {
		return err
	}
	go h.OnFrontConnected()
	return nil
}

func (m *TraderAPI) ReqAuthenticate(req core.AuthRequest) error {
	m.mu.Lock()
	m.authRequests = append(m.authRequests, req)
	rsp := m.AuthRsp
	h := m.handler
	m.mu.Unlock()

	go h.OnRspAuthenticate(rsp)
	return nil
}

func (m *TraderAPI) ReqUserLogin(req core.LoginRequest) error {
	m.mu.Lock()
	m.loginRequests = append(m.loginRequests, req)
	rsp := m.LoginRsp
	h := m.handler
	m.mu.Unlock()

	go h.OnRspUserLogin(rsp)
	return nil
}

func (m *TraderAPI) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = true
}

// PushOrder delivers an order return to the registered handler.
func (m *TraderAPI) PushOrder(order *core.OrderRecord) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	h.OnRtnOrder(order)
}

// PushTrade delivers a trade return to the registered handler.
func (m *TraderAPI) PushTrade(trade *core.TradeRecord) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	h.OnRtnTrade(trade)
}

// PushDisconnect delivers a front-disconnected callback.
func (m *TraderAPI) PushDisconnect(reason int) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	h.OnFrontDisconnected(reason)
}

// AuthRequests returns the authentication requests received so far.
func (m *TraderAPI) AuthRequests() []core.AuthRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.AuthRequest(nil), m.authRequests...)
}

// LoginRequests returns the login requests received so far.
func (m *TraderAPI) LoginRequests() []core.LoginRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.LoginRequest(nil), m.loginRequests...)
}

// TopicModes returns the private and public resume modes.
func (m *TraderAPI) TopicModes() (private, public core.ResumeMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.privateMode, m.publicMode
}

// Released reports whether Release was called.
func (m *TraderAPI) Released() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}
