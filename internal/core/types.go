package core

// ResumeMode selects how a topic stream resumes after (re)connect.
type ResumeMode int

const (
	// ResumeRestart replays the stream from the beginning of the day.
	ResumeRestart ResumeMode = iota
	// ResumeResume continues from the last received position.
	ResumeResume
	// ResumeQuick delivers only data produced after connect.
	ResumeQuick
)

// RspInfo carries the collaborator's response status. A nil RspInfo is
// treated as success, matching the session protocol's convention.
type RspInfo struct {
	ErrorID  int
	ErrorMsg string
}

// OK reports whether the response indicates success.
func (r *RspInfo) OK() bool {
	return r == nil || r.ErrorID == 0
}

// AuthRequest is the client authentication request.
type AuthRequest struct {
	BrokerID string
	UserID   string
	AppID    string
	AuthCode string
}

// LoginRequest is the user login request.
type LoginRequest struct {
	BrokerID        string
	UserID          string
	Password        string
	UserProductInfo string
}

// LogoutRequest is the user logout request.
type LogoutRequest struct {
	BrokerID string
	UserID   string
}

// DepthMarketData is the raw market snapshot record delivered by the
// market-data collaborator. Treated as opaque until mapped to a
// schema.TickEvent.
type DepthMarketData struct {
	InstrumentID string
	Volume       int64
	Turnover     float64
	HighestPrice float64
	LowestPrice  float64
	OpenPrice    float64
	ClosePrice   float64
	OpenInterest float64
}

// OrderRecord is the raw order return record from the trade collaborator.
type OrderRecord struct {
	OrderLocalID   string
	SequenceNo     int32
	AccountID      string
	ExchangeInstID string
	InstrumentID   string
	VolumeTotal    int32
	VolumeTraded   int32
	Direction      string
	LimitPrice     float64
}

// TradeRecord is the raw trade return record from the trade collaborator.
type TradeRecord struct {
	ClientID     string
	Direction    string
	Volume       int32
	Price        float64
	InstrumentID string
	ExchangeID   string
	TradeID      string
	OrderLocalID string
}
