// Package core defines the core interfaces for the gateway
package core

// MarketDataAPI is the capability exposed by the market-data session
// collaborator. Connect may block until the transport is established;
// callers run it off their own scheduling context. All response and
// event payloads are delivered through the registered handler on
// thread(s) owned by the collaborator.
type MarketDataAPI interface {
	RegisterHandler(h MarketDataHandler)
	Connect(frontAddress string) error
	ReqUserLogin(req LoginRequest) error
	ReqUserLogout(req LogoutRequest) error

	// SubscribeMarketData issues a subscription request and returns the
	// immediate result code. Zero means accepted; the final outcome
	// arrives via OnRspSubMarketData.
	SubscribeMarketData(instrumentIDs []string) int
	Release()
}

// MarketDataHandler receives market-data session callbacks.
type MarketDataHandler interface {
	OnFrontConnected()
	OnFrontDisconnected(reason int)
	OnRspUserLogin(rsp *RspInfo)
	OnRspSubMarketData(instrumentID string, rsp *RspInfo)
	OnDepthMarketData(md *DepthMarketData)
}

// TraderAPI is the capability exposed by the trade session collaborator.
type TraderAPI interface {
	RegisterHandler(h TraderHandler)

	// SubscribePrivateTopic / SubscribePublicTopic select the resume mode
	// for the private/public flow streams. Must be called before Connect.
	SubscribePrivateTopic(mode ResumeMode)
	SubscribePublicTopic(mode ResumeMode)

	Connect(frontAddress string) error
	ReqAuthenticate(req AuthRequest) error
	ReqUserLogin(req LoginRequest) error
	Release()
}

// TraderHandler receives trade session callbacks.
type TraderHandler interface {
	OnFrontConnected()
	OnFrontDisconnected(reason int)
	OnRspAuthenticate(rsp *RspInfo)
	OnRspUserLogin(rsp *RspInfo)
	OnRtnOrder(order *OrderRecord)
	OnRtnTrade(trade *TradeRecord)
}

// IHealthMonitor defines the interface for health monitoring
type IHealthMonitor interface {
	Register(component string, check func() error)
	GetStatus() map[string]string
	IsHealthy() bool
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
