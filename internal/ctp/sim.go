// Package ctp provides session collaborator implementations. The
// simulated collaborators mimic the front's callback protocol with a
// random-walk feed, so the full pipeline can run without a live front.
package ctp

import (
	"math/rand"
	"sync"
	"time"

	"ctp_gateway/internal/core"
)

const (
	simConnectDelay = 50 * time.Millisecond
	simTickInterval = 500 * time.Millisecond
)

// SimMarketData is a simulated market-data front. It accepts any
// credentials, confirms every subscription, and pushes a random-walk
// depth snapshot per subscribed instrument at a fixed interval.
type SimMarketData struct {
	mu      sync.Mutex
	handler core.MarketDataHandler
	prices  map[string]float64
	volumes map[string]int64
	stop    chan struct{}
	started bool
}

// NewSimMarketData creates a simulated market-data collaborator.
func NewSimMarketData() *SimMarketData {
	return &SimMarketData{
		prices:  make(map[string]float64),
		volumes: make(map[string]int64),
		stop:    make(chan struct{}),
	}
}

func (s *SimMarketData) RegisterHandler(h core.MarketDataHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *SimMarketData) Connect(frontAddress string) error {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()

	go func() {
		time.Sleep(simConnectDelay)
		h.OnFrontConnected()
	}()
	return nil
}

func (s *SimMarketData) ReqUserLogin(req core.LoginRequest) error {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()

	go h.OnRspUserLogin(nil)
	return nil
}

func (s *SimMarketData) ReqUserLogout(req core.LogoutRequest) error {
	return nil
}

func (s *SimMarketData) SubscribeMarketData(instrumentIDs []string) int {
	s.mu.Lock()
	for _, id := range instrumentIDs {
		if _, ok := s.prices[id]; !ok {
			s.prices[id] = 4000 + rand.Float64()*2000
		}
	}
	start := !s.started
	s.started = true
	h := s.handler
	s.mu.Unlock()

	go func() {
		for _, id := range instrumentIDs {
			h.OnRspSubMarketData(id, nil)
		}
	}()

	if start {
		go s.feed()
	}
	return 0
}

// feed pushes one snapshot per instrument per interval until Release.
func (s *SimMarketData) feed() {
	ticker := time.NewTicker(simTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			h := s.handler
			snapshots := make([]*core.DepthMarketData, 0, len(s.prices))
			for id, price := range s.prices {
				price += price * (rand.Float64() - 0.5) * 0.002
				s.prices[id] = price
				s.volumes[id] += int64(rand.Intn(20))
				snapshots = append(snapshots, &core.DepthMarketData{
					InstrumentID: id,
					Volume:       s.volumes[id],
					Turnover:     price * float64(s.volumes[id]),
					HighestPrice: price * 1.01,
					LowestPrice:  price * 0.99,
					OpenPrice:    price,
					ClosePrice:   price,
					OpenInterest: 1500,
				})
			}
			s.mu.Unlock()

			for _, md := range snapshots {
				h.OnDepthMarketData(md)
			}
		}
	}
}

func (s *SimMarketData) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

// SimTrader is a simulated trade front. It accepts any credentials and
// emits a paired order and trade return at a fixed interval.
type SimTrader struct {
	mu      sync.Mutex
	handler core.TraderHandler
	stop    chan struct{}
	seq     int32
}

// NewSimTrader creates a simulated trade collaborator.
func NewSimTrader() *SimTrader {
	return &SimTrader{stop: make(chan struct{})}
}

func (s *SimTrader) RegisterHandler(h core.TraderHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *SimTrader) SubscribePrivateTopic(mode core.ResumeMode) {}
func (s *SimTrader) SubscribePublicTopic(mode core.ResumeMode)  {}

func (s *SimTrader) Connect(frontAddress string) error {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()

	go func() {
		time.Sleep(simConnectDelay)
		h.OnFrontConnected()
	}()
	return nil
}

func (s *SimTrader) ReqAuthenticate(req core.AuthRequest) error {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()

	go h.OnRspAuthenticate(nil)
	return nil
}

func (s *SimTrader) ReqUserLogin(req core.LoginRequest) error {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()

	go func() {
		h.OnRspUserLogin(nil)
		s.flow()
	}()
	return nil
}

// flow emits order and trade returns until Release.
func (s *SimTrader) flow() {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.seq++
			seq := s.seq
			h := s.handler
			s.mu.Unlock()

			price := 4000 + rand.Float64()*2000
			volume := int32(1 + rand.Intn(5))

			h.OnRtnOrder(&core.OrderRecord{
				OrderLocalID: "sim_order",
				SequenceNo:   seq,
				AccountID:    "sim",
				InstrumentID: "ag2306",
				VolumeTotal:  volume,
				VolumeTraded: volume,
				Direction:    "0",
				LimitPrice:   price,
			})
			h.OnRtnTrade(&core.TradeRecord{
				ClientID:     "sim",
				Direction:    "0",
				Volume:       volume,
				Price:        price,
				InstrumentID: "ag2306",
				ExchangeID:   "SHFE",
				TradeID:      "sim_trade",
				OrderLocalID: "sim_order",
			})
		}
	}
}

func (s *SimTrader) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}
