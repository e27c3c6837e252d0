package bots

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"lobsim/engine"
)

const defaultOrderInterval = 200 * time.Millisecond

// Supervisor orchestrates multiple bots with a shared client and PnL tracking.
type Supervisor struct {
	bots     []Bot
	client   *ThrottledClient
	pnl      *pnlTracker
	throttle *time.Ticker
	log      *zap.Logger
}

// NewSupervisor builds a default swarm of noise traders and a spread
// capturer sharing one throttled client.
func NewSupervisor(m *engine.Matcher, orderInterval time.Duration, seed int64, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if orderInterval <= 0 {
		orderInterval = defaultOrderInterval
	}
	throttle := time.NewTicker(orderInterval)
	bots := []Bot{
		NewNoiseBot(engine.Bid, seed),
		NewNoiseBot(engine.Ask, seed+1),
		NewNoiseBot(engine.Bid, seed+2),
		NewNoiseBot(engine.Ask, seed+3),
		NewSpreadCaptureBot(),
	}
	return &Supervisor{
		bots:     bots,
		client:   NewThrottledClient(m, throttle.C),
		pnl:      &pnlTracker{},
		throttle: throttle,
		log:      logger,
	}
}

// Start launches all bots and PnL monitoring until the context is canceled.
// trades should carry every execution of the book the bots trade on.
func (s *Supervisor) Start(ctx context.Context, trades <-chan engine.Trade) {
	logTicker := time.NewTicker(2 * time.Second)
	defer logTicker.Stop()
	defer s.throttle.Stop()

	var wg sync.WaitGroup
	for _, bot := range s.bots {
		wg.Add(1)
		go func(b Bot) {
			defer wg.Done()
			b.Start(ctx, s.client)
		}(bot)
	}
	defer wg.Wait()

	go s.consumeTrades(ctx, trades)

	for {
		select {
		case <-ctx.Done():
			return
		case <-logTicker.C:
			pos, cash := s.pnl.Snapshot()
			s.log.Info("bot pnl", zap.Float64("position", pos), zap.Float64("cash", cash))
		}
	}
}

// PnL returns the swarm's net position and cash.
func (s *Supervisor) PnL() (position, cash float64) {
	return s.pnl.Snapshot()
}

func (s *Supervisor) consumeTrades(ctx context.Context, trades <-chan engine.Trade) {
	for {
		select {
		case <-ctx.Done():
			return
		case trade, ok := <-trades:
			if !ok {
				return
			}
			s.pnl.Record(trade, s.client)
		}
	}
}

type pnlTracker struct {
	mu       sync.Mutex
	position float64
	cash     float64
}

// Record books both legs when the swarm trades with itself; they net out.
func (p *pnlTracker) Record(trade engine.Trade, client EngineClient) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if client.OwnsOrder(trade.BuyOrderID) {
		p.position += trade.Qty
		p.cash -= trade.Price * trade.Qty
	}
	if client.OwnsOrder(trade.SellOrderID) {
		p.position -= trade.Qty
		p.cash += trade.Price * trade.Qty
	}
}

func (p *pnlTracker) Snapshot() (float64, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position, p.cash
}
