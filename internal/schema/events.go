// Package schema defines the domain events carried through the bridge.
package schema

import "ctp_gateway/internal/core"

// Kind tags the event variants flowing through a bridge queue.
type Kind string

const (
	KindTick  Kind = "tick"
	KindOrder Kind = "order"
	KindTrade Kind = "trade"
)

// Event is the unit passed from a session callback to the bridge. All
// implementations are immutable values; the pump dispatches on Kind only
// at the point of serialization.
type Event interface {
	Kind() Kind
}

// TickEvent is a single market-data snapshot update for one instrument.
type TickEvent struct {
	InstrumentID string  `json:"instrument_id"`
	Volume       int64   `json:"volume"`
	Turnover     float64 `json:"turnover"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	Open         float64 `json:"open"`
	Close        float64 `json:"close"`
	OpenInterest float64 `json:"open_interest"`
}

func (TickEvent) Kind() Kind { return KindTick }

// OrderEvent mirrors the trade session's order return record.
type OrderEvent struct {
	OrderLocalID string  `json:"order_local_id"`
	TradeNo      int32   `json:"trade_no"`
	AccountID    string  `json:"account_id"`
	ExchangeID   string  `json:"exchange_id"`
	InstrumentID string  `json:"instrument_id"`
	Volume       int32   `json:"volume"`
	VolumeTraded int32   `json:"volume_traded"`
	Direction    string  `json:"direction"`
	LimitPrice   float64 `json:"limit_price"`
}

func (OrderEvent) Kind() Kind { return KindOrder }

// TradeEvent mirrors the trade session's trade return record.
type TradeEvent struct {
	ClientID     string  `json:"client_id"`
	Direction    string  `json:"direction"`
	Volume       int32   `json:"volume"`
	Price        float64 `json:"price"`
	InstrumentID string  `json:"instrument_id"`
	ExchangeID   string  `json:"exchange_id"`
	TradeID      string  `json:"trade_id"`
	OrderLocalID string  `json:"order_local_id"`
}

func (TradeEvent) Kind() Kind { return KindTrade }

// TickFromDepthMarketData maps a raw market snapshot to a TickEvent.
func TickFromDepthMarketData(md *core.DepthMarketData) TickEvent {
	return TickEvent{
		InstrumentID: md.InstrumentID,
		Volume:       md.Volume,
		Turnover:     md.Turnover,
		High:         md.HighestPrice,
		Low:          md.LowestPrice,
		Open:         md.OpenPrice,
		Close:        md.ClosePrice,
		OpenInterest: md.OpenInterest,
	}
}

// OrderFromRecord maps a raw order return record to an OrderEvent.
func OrderFromRecord(o *core.OrderRecord) OrderEvent {
	return OrderEvent{
		OrderLocalID: o.OrderLocalID,
		TradeNo:      o.SequenceNo,
		AccountID:    o.AccountID,
		ExchangeID:   o.ExchangeInstID,
		InstrumentID: o.InstrumentID,
		Volume:       o.VolumeTotal,
		VolumeTraded: o.VolumeTraded,
		Direction:    o.Direction,
		LimitPrice:   o.LimitPrice,
	}
}

// TradeFromRecord maps a raw trade return record to a TradeEvent.
func TradeFromRecord(t *core.TradeRecord) TradeEvent {
	return TradeEvent{
		ClientID:     t.ClientID,
		Direction:    t.Direction,
		Volume:       t.Volume,
		Price:        t.Price,
		InstrumentID: t.InstrumentID,
		ExchangeID:   t.ExchangeID,
		TradeID:      t.TradeID,
		OrderLocalID: t.OrderLocalID,
	}
}
