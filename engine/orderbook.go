package engine

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

type indexEntry struct {
	side Side
	ref  orderRef
}

// OrderBook is the matching engine for a single instrument. It matches under
// price-time priority, reprices the book for market impact, and keeps the
// trade log and cost accumulators. An OrderBook is not safe for concurrent
// use; wrap it in a Matcher to share it between goroutines.
type OrderBook struct {
	cfg     Config
	log     *zap.Logger
	metrics *Metrics
	rng     *rand.Rand
	sleep   func(time.Duration)

	bids  *BookSide
	asks  *BookSide
	index map[string]indexEntry

	trades    []Trade
	slippage  []float64
	prices    []float64
	cost      float64
	volume    float64
	cancelled []string
	discarded int
	runaway   int
	lpSeq     int64
}

// New builds an empty order book.
func New(cfg Config) *OrderBook {
	cfg = cfg.normalized()
	return &OrderBook{
		cfg:     cfg,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		sleep:   time.Sleep,
		bids:    newBookSide(Bid),
		asks:    newBookSide(Ask),
		index:   make(map[string]indexEntry),
	}
}

// Config returns the normalized configuration the book runs with.
func (b *OrderBook) Config() Config { return b.cfg }

// SubmitBid submits a buy order and returns the trades it produced.
func (b *OrderBook) SubmitBid(ts int64, id string, qty, price float64) ([]Trade, error) {
	return b.Submit(NewTick(ts, id, Bid, qty, price))
}

// SubmitAsk submits a sell order and returns the trades it produced.
func (b *OrderBook) SubmitAsk(ts int64, id string, qty, price float64) ([]Trade, error) {
	return b.Submit(NewTick(ts, id, Ask, qty, price))
}

// SubmitIceberg submits an order that matches with its full size but rests
// showing at most display, keeping the remainder hidden.
func (b *OrderBook) SubmitIceberg(ts int64, id string, side Side, qty, price, display float64) ([]Trade, error) {
	if display <= 0 || math.IsNaN(display) {
		return nil, fmt.Errorf("iceberg %s display %v: %w", id, display, ErrInvalidQuantity)
	}
	t := NewTick(ts, id, side, qty, price)
	t.Display = display
	return b.Submit(t)
}

// Submit splits t into child orders and runs each through cancellation,
// latency, matching, resting and cost bookkeeping. Icebergs are not split.
func (b *OrderBook) Submit(t Tick) ([]Trade, error) {
	if err := validateTick(t); err != nil {
		b.metrics.reject()
		return nil, fmt.Errorf("order %s: %w", t.ID, err)
	}
	t.Visible = t.Qty
	t.Hidden = 0

	children := []Tick{t}
	if t.Display <= 0 {
		children = SplitTick(t, b.splitFactor(t.Qty))
	}
	for _, child := range children {
		if _, ok := b.index[child.ID]; ok {
			b.metrics.reject()
			return nil, fmt.Errorf("order %s: %w", child.ID, ErrDuplicateOrder)
		}
	}
	b.metrics.order(t.Side)

	var trades []Trade
	for _, child := range children {
		trades = append(trades, b.process(child)...)
	}
	b.check()
	return trades, nil
}

// Place rests t directly, skipping the split, cancellation and matching
// steps of Submit. A quote that would cross the opposite best is rejected.
func (b *OrderBook) Place(t Tick) error {
	if err := validateTick(t); err != nil {
		return fmt.Errorf("place %s: %w", t.ID, err)
	}
	if b.dust(t.Qty) {
		return fmt.Errorf("place %s: %w", t.ID, ErrInvalidQuantity)
	}
	if _, ok := b.index[t.ID]; ok {
		return fmt.Errorf("place %s: %w", t.ID, ErrDuplicateOrder)
	}
	if b.crossesBest(t) {
		return fmt.Errorf("place %s at %v: %w", t.ID, t.Price, ErrWouldCross)
	}
	t.Visible, t.Hidden = t.Qty, 0
	b.metrics.order(t.Side)
	b.rest(t)
	b.check()
	return nil
}

func validateTick(t Tick) error {
	if !validPrice(t.Price) {
		return ErrInvalidPrice
	}
	if t.Qty < 0 || math.IsNaN(t.Qty) || math.IsInf(t.Qty, 0) {
		return ErrInvalidQuantity
	}
	return nil
}

func (b *OrderBook) process(t Tick) []Trade {
	if b.dust(t.Qty) {
		b.discarded++
		b.metrics.discard()
		b.log.Debug("discarding child below minimum size",
			zap.String("id", t.ID), zap.Float64("qty", t.Qty), zap.Float64("min", b.cfg.MinOrderSize))
		return nil
	}
	if b.cfg.CancelProbability > 0 && b.rng.Float64() < b.cfg.CancelProbability {
		b.cancelled = append(b.cancelled, t.ID)
		b.metrics.cancel()
		b.log.Debug("order cancelled before reaching the book", zap.String("id", t.ID))
		return nil
	}
	b.simulateLatency()

	trades, aborted := b.match(&t)
	if !aborted || !b.crossesBest(t) {
		b.rest(t)
	}
	b.settle(t, trades)
	if len(trades) > 0 {
		b.applyMarketImpact(t)
	}
	return trades
}

func (b *OrderBook) simulateLatency() {
	if b.cfg.LatencyFactor <= 0 {
		return
	}
	b.sleep(time.Duration(b.rng.Float64() * float64(b.cfg.LatencyFactor)))
}

// match consumes opposing liquidity for in, best price first and FIFO within
// a price. aborted is set when the iteration cap stopped the loop.
func (b *OrderBook) match(in *Tick) (trades []Trade, aborted bool) {
	opposing := b.sideOf(in.Side.Opposite())
	for iter := 0; !b.dust(in.Visible); iter++ {
		if iter >= b.cfg.MaxMatchIterations {
			b.runaway++
			b.metrics.runawayMatch()
			b.log.Warn("match aborted by iteration cap",
				zap.String("id", in.ID), zap.Int("iterations", iter), zap.Int("trades", len(trades)))
			return trades, true
		}
		lvl := opposing.best()
		if lvl == nil {
			b.log.Debug("no liquidity", zap.String("id", in.ID), zap.Stringer("side", in.Side))
			break
		}
		if !b.crosses(*in, lvl.price) {
			b.log.Debug("no cross", zap.String("id", in.ID),
				zap.Float64("price", in.Price), zap.Float64("best", lvl.price))
			break
		}
		ref := orderRef{level: lvl, slot: lvl.head}
		head := lvl.order(ref.slot)
		qty := math.Min(in.Visible, head.Visible)
		if b.dust(qty) {
			break
		}

		trade := Trade{Timestamp: in.Timestamp, Qty: qty, Price: lvl.price, Side: in.Side}
		if in.Side == Bid {
			trade.BuyOrderID, trade.SellOrderID = in.ID, head.ID
		} else {
			trade.BuyOrderID, trade.SellOrderID = head.ID, in.ID
		}
		in.Visible -= qty
		opposing.fill(ref, qty)
		trades = append(trades, trade)
		b.trades = append(b.trades, trade)

		if b.dust(head.Visible) {
			if head.Hidden > 0 {
				opposing.replenish(ref)
			}
			if b.dust(head.Visible) {
				b.removeResting(opposing, ref)
			}
		}
	}
	return trades, false
}

// dust reports quantities too small to trade or rest.
func (b *OrderBook) dust(qty float64) bool {
	return qty <= 0 || qty < b.cfg.MinOrderSize
}

func (b *OrderBook) crosses(in Tick, best float64) bool {
	var diff float64
	if in.Side == Bid {
		if in.Price < best {
			return false
		}
		diff = in.Price - best
	} else {
		if in.Price > best {
			return false
		}
		diff = best - in.Price
	}
	return diff >= b.cfg.MinPriceDiff
}

func (b *OrderBook) crossesBest(t Tick) bool {
	best, ok := b.sideOf(t.Side.Opposite()).BestPrice()
	return ok && b.crosses(t, best)
}

// rest inserts the unmatched remainder of t on its own side.
func (b *OrderBook) rest(t Tick) {
	if b.dust(t.Visible) {
		return
	}
	if t.Display > 0 && t.Visible > t.Display {
		t.Hidden = t.Visible - t.Display
		t.Visible = t.Display
	}
	ref, err := b.sideOf(t.Side).insert(t)
	if err != nil {
		b.log.Error("resting insert rejected", zap.String("id", t.ID), zap.Error(err))
		return
	}
	b.index[t.ID] = indexEntry{side: t.Side, ref: ref}
}

func (b *OrderBook) removeResting(side *BookSide, ref orderRef) Tick {
	t := side.remove(ref)
	delete(b.index, t.ID)
	return t
}

// CancelOrder removes a resting order by id.
func (b *OrderBook) CancelOrder(id string) error {
	entry, ok := b.index[id]
	if !ok {
		return fmt.Errorf("cancel %s: %w", id, ErrOrderNotFound)
	}
	b.removeResting(b.sideOf(entry.side), entry.ref)
	b.cancelled = append(b.cancelled, id)
	b.metrics.cancel()
	b.check()
	return nil
}

func (b *OrderBook) sideOf(s Side) *BookSide {
	if s == Bid {
		return b.bids
	}
	return b.asks
}

// Bids exposes the bid side for read-only inspection.
func (b *OrderBook) Bids() *BookSide { return b.bids }

// Asks exposes the ask side for read-only inspection.
func (b *OrderBook) Asks() *BookSide { return b.asks }

// BestBid returns the highest resting bid price.
func (b *OrderBook) BestBid() (float64, bool) { return b.bids.BestPrice() }

// BestAsk returns the lowest resting ask price.
func (b *OrderBook) BestAsk() (float64, bool) { return b.asks.BestPrice() }

// MidPrice returns the average of best bid and best ask. ok is false when
// either side is empty.
func (b *OrderBook) MidPrice() (mid float64, ok bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// Resting reports whether id is resting and returns a copy of it.
func (b *OrderBook) Resting(id string) (Tick, bool) {
	entry, ok := b.index[id]
	if !ok {
		return Tick{}, false
	}
	return *entry.ref.level.order(entry.ref.slot), true
}

// Trades returns a copy of the trade log in execution order.
func (b *OrderBook) Trades() []Trade {
	out := make([]Trade, len(b.trades))
	copy(out, b.trades)
	return out
}

// TradeCount returns the length of the trade log.
func (b *OrderBook) TradeCount() int { return len(b.trades) }

// Cancelled returns the ids of every cancelled order, in order.
func (b *OrderBook) Cancelled() []string {
	out := make([]string, len(b.cancelled))
	copy(out, b.cancelled)
	return out
}

// Depth returns up to n levels per side, best first. n <= 0 returns all.
func (b *OrderBook) Depth(n int) DepthSnapshot {
	collect := func(s *BookSide) []LevelView {
		views := make([]LevelView, 0, s.Len())
		s.Levels(func(lvl *PriceLevel) bool {
			views = append(views, lvl.view())
			return n <= 0 || len(views) < n
		})
		return views
	}
	return DepthSnapshot{
		Bids:      collect(b.bids),
		Asks:      collect(b.asks),
		BidVolume: b.bids.volume,
		AskVolume: b.asks.volume,
	}
}

// View returns the top of book.
func (b *OrderBook) View() BookView {
	var view BookView
	if lvl := b.bids.best(); lvl != nil {
		v := lvl.view()
		view.BestBid = &v
	}
	if lvl := b.asks.best(); lvl != nil {
		v := lvl.view()
		view.BestAsk = &v
	}
	view.Mid, view.HasMid = b.MidPrice()
	if n := len(b.trades); n > 0 {
		view.Timestamp = b.trades[n-1].Timestamp
	}
	return view
}

// NumericalOutput summarizes execution quality. It is all zeros for the
// trade-derived fields until the first trade.
func (b *OrderBook) NumericalOutput() Stats {
	return b.StatsSince(Mark{})
}

// Mark is a position in the book's execution history.
type Mark struct {
	trades    int
	cancelled int
	discarded int
	runaway   int
	cost      float64
	volume    float64
}

// Mark records the current end of the execution history.
func (b *OrderBook) Mark() Mark {
	return Mark{
		trades:    len(b.trades),
		cancelled: len(b.cancelled),
		discarded: b.discarded,
		runaway:   b.runaway,
		cost:      b.cost,
		volume:    b.volume,
	}
}

// StatsSince summarizes only what executed after m. Resting volumes are
// always the current ones.
func (b *OrderBook) StatsSince(m Mark) Stats {
	s := Stats{
		CumulativeCost: b.cost - m.cost,
		TotalVolume:    b.volume - m.volume,
		BidVolume:      b.bids.volume,
		AskVolume:      b.asks.volume,
		TotalTrades:    len(b.trades) - m.trades,
		Cancellations:  len(b.cancelled) - m.cancelled,
		Discarded:      b.discarded - m.discarded,
		RunawayMatches: b.runaway - m.runaway,
	}
	for _, t := range b.trades[m.trades:] {
		if t.Side == Bid {
			s.BuyTrades++
		} else {
			s.SellTrades++
		}
	}
	// one slippage and one price entry per trade
	if slip := b.slippage[min(m.trades, len(b.slippage)):]; len(slip) > 0 {
		s.AvgSlippage = mean(slip)
	}
	if prices := b.prices[min(m.trades, len(b.prices)):]; len(prices) > 0 {
		s.MinPrice, s.MaxPrice = prices[0], prices[0]
		for _, p := range prices[1:] {
			s.MinPrice = math.Min(s.MinPrice, p)
			s.MaxPrice = math.Max(s.MaxPrice, p)
		}
		s.MeanPrice = mean(prices)
	}
	return s
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
