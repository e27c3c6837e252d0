package engine

import "math"

const (
	slippageNotionalCap = 0.02
	slippageScale       = 0.5
)

// impactFactor is min(cap, coefficient * sqrt(qty / (bidVolume + askVolume + 1))).
func (b *OrderBook) impactFactor(qty, coefficient, limit float64) float64 {
	total := b.bids.volume + b.asks.volume
	f := coefficient * math.Sqrt(qty/(total+1))
	return math.Min(limit, math.Max(f, 0))
}

// applyMarketImpact pushes asks up after an aggressive bid and bids down
// after an aggressive ask. The extended model also shifts the aggressor's
// own side by a smaller permanent amount.
func (b *OrderBook) applyMarketImpact(order Tick) {
	if b.cfg.ImpactCoefficient <= 0 || b.cfg.ImpactCap <= 0 {
		return
	}
	sign := 1.0
	if order.Side == Ask {
		sign = -1.0
	}
	opposing := b.sideOf(order.Side.Opposite())
	own := b.sideOf(order.Side)

	switch b.cfg.ImpactModel {
	case ImpactExtended:
		ratio := b.cfg.PermanentImpactRatio
		transient := b.impactFactor(order.Qty, b.cfg.ImpactCoefficient*(0.5+b.rng.Float64()), b.cfg.ImpactCap)
		permanent := b.impactFactor(order.Qty, b.cfg.ImpactCoefficient*ratio*(0.5+b.rng.Float64()), b.cfg.ImpactCap*ratio)
		b.reprice(opposing, 1+sign*(transient+permanent))
		b.reprice(own, 1+sign*permanent)
	default:
		b.reprice(opposing, 1+sign*b.impactFactor(order.Qty, b.cfg.ImpactCoefficient, b.cfg.ImpactCap))
	}
}

func (b *OrderBook) reprice(side *BookSide, factor float64) {
	if factor <= 0 {
		return
	}
	side.reprice(factor, func(id string, ref orderRef) {
		b.index[id] = indexEntry{side: side.side, ref: ref}
	})
}

// calculateSlippage is min(2% of notional price, (qty / average side depth)
// * |limit - execution| * 0.5).
func (b *OrderBook) calculateSlippage(order Tick, trade Trade) float64 {
	depth := math.Max((b.bids.volume+b.asks.volume)/2, 1)
	return math.Min(slippageNotionalCap*trade.Price,
		(order.Qty/depth)*math.Abs(order.Price-trade.Price)*slippageScale)
}

// calculateTransactionCost scales the base rate by the share of the deeper
// side the order consumes.
func (b *OrderBook) calculateTransactionCost(order Tick, trade Trade) float64 {
	depth := math.Max(math.Max(b.bids.volume, b.asks.volume), 1)
	return b.cfg.TransactionCostRate * (1 + order.Qty/depth)
}

// settle records slippage, execution prices and cost for the trades of one
// child order.
func (b *OrderBook) settle(order Tick, trades []Trade) {
	for _, t := range trades {
		slip := b.calculateSlippage(order, t)
		cost := b.calculateTransactionCost(order, t)
		b.slippage = append(b.slippage, slip)
		b.prices = append(b.prices, t.Price)
		b.cost += (cost + slip) * t.Qty
		b.volume += t.Qty
		b.metrics.trade(t, slip)
	}
}
