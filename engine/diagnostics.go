package engine

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const volumeTolerance = 1e-9

// VerifyInvariant checks level and side bookkeeping on both sides and that
// the book is not crossed beyond MinPriceDiff.
func (b *OrderBook) VerifyInvariant() error {
	for _, side := range []*BookSide{b.bids, b.asks} {
		if err := b.verifySide(side); err != nil {
			return err
		}
	}
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if okBid && okAsk && bid >= ask && bid-ask >= b.cfg.MinPriceDiff {
		return &InvariantError{Side: Bid, Price: bid, Reason: fmt.Sprintf("crosses best ask %.8g", ask)}
	}
	return nil
}

func (b *OrderBook) verifySide(side *BookSide) error {
	var (
		sideSum float64
		err     error
	)
	side.levels.Scan(func(price float64, lvl *PriceLevel) bool {
		fail := func(reason string, args ...any) bool {
			err = &InvariantError{Side: side.side, Price: price, Reason: fmt.Sprintf(reason, args...)}
			return false
		}
		if lvl.price != price {
			return fail("level keyed at %.8g holds price %.8g", price, lvl.price)
		}
		if lvl.count <= 0 || lvl.volume <= 0 {
			return fail("empty level still present (count %d, volume %.8g)", lvl.count, lvl.volume)
		}
		var sum float64
		n := 0
		lvl.each(func(idx int, t *Tick) bool {
			n++
			if !lvl.slots[idx].live || t.Visible < 0 || t.Price != price {
				err = &InvariantError{Side: side.side, Price: price, Reason: fmt.Sprintf("bad order %s (visible %.8g)", t.ID, t.Visible)}
				return false
			}
			if entry, ok := b.index[t.ID]; !ok || entry.ref.level != lvl || entry.ref.slot != idx {
				err = &InvariantError{Side: side.side, Price: price, Reason: fmt.Sprintf("order %s missing from index", t.ID)}
				return false
			}
			sum += t.Visible
			return true
		})
		if err != nil {
			return false
		}
		if n != lvl.count {
			return fail("count %d but %d queued", lvl.count, n)
		}
		if !approxEqual(sum, lvl.volume) {
			return fail("volume %.12g but orders sum to %.12g", lvl.volume, sum)
		}
		sideSum += sum
		return true
	})
	if err != nil {
		return err
	}
	if !approxEqual(sideSum, side.volume) {
		return &InvariantError{Side: side.side, Reason: fmt.Sprintf("side volume %.12g but levels sum to %.12g", side.volume, sideSum)}
	}
	return nil
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= volumeTolerance*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

// check panics on a broken invariant when Debug is set.
func (b *OrderBook) check() {
	if !b.cfg.Debug {
		return
	}
	if err := b.VerifyInvariant(); err != nil {
		b.log.Error("book invariant violated", zap.Error(err))
		panic(err)
	}
}

// Dump writes the depth of both sides and the trade log as aligned text.
func (b *OrderBook) Dump(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	depth := b.Depth(0)
	fmt.Fprintf(tw, "ASKS\tprice\tvolume\torders\t\n")
	for i := len(depth.Asks) - 1; i >= 0; i-- {
		writeLevel(tw, depth.Asks[i])
	}
	fmt.Fprintf(tw, "BIDS\tprice\tvolume\torders\t\n")
	for _, lvl := range depth.Bids {
		writeLevel(tw, lvl)
	}
	fmt.Fprintf(tw, "TRADES\tts\tside\tprice\tqty\t\n")
	for _, t := range b.trades {
		fmt.Fprintf(tw, "\t%d\t%s\t%s\t%s\t\n", t.Timestamp, t.Side, FormatPrice(t.Price), FormatQty(t.Qty))
	}
	return tw.Flush()
}

func writeLevel(w io.Writer, lvl LevelView) {
	fmt.Fprintf(w, "\t%s\t%s\t%d\t\n", FormatPrice(lvl.Price), FormatQty(lvl.Volume), lvl.Orders)
}

// FormatPrice renders a price with four decimals.
func FormatPrice(p float64) string {
	return decimal.NewFromFloat(p).StringFixed(4)
}

// FormatQty renders a quantity without trailing zeros.
func FormatQty(q float64) string {
	return decimal.NewFromFloat(q).Round(6).String()
}
