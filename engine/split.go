package engine

import (
	"math"
	"strconv"
)

// splitFactor derives the number of child orders from qty / SplitDivisor,
// jittered and clamped to [MinSplit, MaxSplit].
func (b *OrderBook) splitFactor(qty float64) int {
	jitter := 1.0
	if b.cfg.SplitJitter > 0 {
		jitter += (b.rng.Float64()*2 - 1) * b.cfg.SplitJitter
	}
	// clamp before converting; huge quantities overflow int
	v := qty / b.cfg.SplitDivisor * jitter
	if v >= float64(b.cfg.MaxSplit) {
		return b.cfg.MaxSplit
	}
	if n := int(v); n > b.cfg.MinSplit {
		return n
	}
	return b.cfg.MinSplit
}

// SplitQuantity partitions qty into n near-equal parts. Every part but the
// last is qty/n rounded down to a whole unit when qty/n >= 1; the last part
// absorbs the remainder so the parts always sum to qty.
func SplitQuantity(qty float64, n int) []float64 {
	if n <= 1 {
		return []float64{qty}
	}
	base := qty / float64(n)
	if base >= 1 {
		base = math.Floor(base)
	}
	parts := make([]float64, n)
	for i := 0; i < n-1; i++ {
		parts[i] = base
	}
	parts[n-1] = qty - base*float64(n-1)
	return parts
}

// SplitTick builds the child orders of t. A single child keeps t's id;
// otherwise children are suffixed -1..-n.
func SplitTick(t Tick, n int) []Tick {
	parts := SplitQuantity(t.Qty, n)
	if len(parts) == 1 {
		return []Tick{t}
	}
	children := make([]Tick, len(parts))
	for i, qty := range parts {
		child := t
		child.ID = t.ID + "-" + strconv.Itoa(i+1)
		child.Qty = qty
		child.Visible = qty
		children[i] = child
	}
	return children
}
