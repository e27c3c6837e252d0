package engine

import (
	"fmt"

	"go.uber.org/zap"
)

// InjectLiquidity quotes one synthetic bid below and one synthetic ask above
// the mid price when ts falls on the configured interval. A quote that would
// cross the opposite best is skipped. It returns the number of quotes added.
func (b *OrderBook) InjectLiquidity(ts int64) int {
	if b.cfg.LiquidityInterval <= 0 || ts%b.cfg.LiquidityInterval != 0 {
		return 0
	}
	mid, ok := b.MidPrice()
	if !ok {
		b.log.Debug("liquidity skipped, mid unavailable", zap.Int64("ts", ts))
		return 0
	}
	offset := b.cfg.LiquiditySpread * (0.5 + b.rng.Float64())
	qty := b.cfg.LiquidityQty * (0.5 + b.rng.Float64())
	if qty < b.cfg.MinOrderSize {
		return 0
	}

	injected := 0
	b.lpSeq++
	bid := NewTick(ts, fmt.Sprintf("lp-%d-%d-b", ts, b.lpSeq), Bid, qty, mid*(1-offset))
	if ask, ok := b.BestAsk(); ok && bid.Price < ask && validPrice(bid.Price) {
		b.rest(bid)
		injected++
	} else {
		b.log.Debug("liquidity bid would cross", zap.Int64("ts", ts), zap.Float64("price", bid.Price))
	}
	ask := NewTick(ts, fmt.Sprintf("lp-%d-%d-a", ts, b.lpSeq), Ask, qty, mid*(1+offset))
	if bestBid, ok := b.BestBid(); ok && ask.Price > bestBid {
		b.rest(ask)
		injected++
	} else {
		b.log.Debug("liquidity ask would cross", zap.Int64("ts", ts), zap.Float64("price", ask.Price))
	}
	b.metrics.inject(injected)
	b.check()
	return injected
}
