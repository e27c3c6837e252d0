package sim

import (
	"strconv"

	"lobsim/engine"
)

// Level is one depth level of a synthetic row.
type Level struct {
	BidPrice  float64
	BidVolume float64
	AskPrice  float64
	AskVolume float64
}

// Row is one timestamped depth snapshot from the synthetic generator.
// Levels are ordered from the top of book outwards.
type Row struct {
	Timestamp int64
	Levels    []Level
}

// Submissions converts the row into order intents: for each level the ask
// first, then the bid. Sides with volume below minQty or a non-positive
// price are skipped. Level numbers in the ids start at 1.
func (r Row) Submissions(minQty float64) []engine.Tick {
	ts := strconv.FormatInt(r.Timestamp, 10)
	out := make([]engine.Tick, 0, 2*len(r.Levels))
	for i, lvl := range r.Levels {
		n := strconv.Itoa(i + 1)
		if lvl.AskVolume >= minQty && lvl.AskVolume > 0 && lvl.AskPrice > 0 {
			out = append(out, engine.NewTick(r.Timestamp, ts+"-a"+n, engine.Ask, lvl.AskVolume, lvl.AskPrice))
		}
		if lvl.BidVolume >= minQty && lvl.BidVolume > 0 && lvl.BidPrice > 0 {
			out = append(out, engine.NewTick(r.Timestamp, ts+"-b"+n, engine.Bid, lvl.BidVolume, lvl.BidPrice))
		}
	}
	return out
}

// Partition cuts rows into contiguous batches of at most size rows, keeping
// time order. size <= 0 yields a single batch.
func Partition(rows []Row, size int) [][]Row {
	if len(rows) == 0 {
		return nil
	}
	if size <= 0 || size >= len(rows) {
		return [][]Row{rows}
	}
	batches := make([][]Row, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		batches = append(batches, rows[start:end])
	}
	return batches
}
