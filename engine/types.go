package engine

import (
	"fmt"
	"strings"
)

// Side represents the direction of an order.
type Side int

const (
	// Bid indicates a buy order.
	Bid Side = iota
	// Ask indicates a sell order.
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// Opposite returns the side an order of this side matches against.
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// MarshalText encodes the side as "bid" or "ask".
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts anything ParseSide does.
func (s *Side) UnmarshalText(text []byte) error {
	v, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSide accepts the usual spellings of a side.
func ParseSide(value string) (Side, error) {
	switch strings.ToLower(value) {
	case "bid", "buy", "b":
		return Bid, nil
	case "ask", "sell", "s":
		return Ask, nil
	default:
		return 0, fmt.Errorf("unknown side %q", value)
	}
}

// Tick is an order intent. Visible is the portion currently eligible for
// matching; Hidden is the iceberg reserve not yet exposed.
type Tick struct {
	Timestamp int64
	ID        string
	Side      Side
	Qty       float64
	Price     float64
	Visible   float64
	Hidden    float64
	// Display is the peak visible size an iceberg is replenished to.
	Display float64
}

// NewTick builds a plain (non-iceberg) order intent.
func NewTick(ts int64, id string, side Side, qty, price float64) Tick {
	return Tick{Timestamp: ts, ID: id, Side: side, Qty: qty, Price: price, Visible: qty}
}

// Trade is an execution. Trades are immutable once appended to the log.
type Trade struct {
	Timestamp   int64   `json:"ts"`
	Qty         float64 `json:"qty"`
	Price       float64 `json:"price"`
	Side        Side    `json:"side"` // aggressor
	BuyOrderID  string  `json:"buyOrderId"`
	SellOrderID string  `json:"sellOrderId"`
}

// LevelView is an aggregated price level as seen from outside the book.
type LevelView struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	Orders int     `json:"orders"`
}

// DepthSnapshot lists the best levels of each side, best first.
type DepthSnapshot struct {
	Bids      []LevelView `json:"bids"`
	Asks      []LevelView `json:"asks"`
	BidVolume float64     `json:"bidVolume"`
	AskVolume float64     `json:"askVolume"`
}

// BookView summarizes top-of-book information.
type BookView struct {
	BestBid   *LevelView `json:"bestBid,omitempty"`
	BestAsk   *LevelView `json:"bestAsk,omitempty"`
	Mid       float64    `json:"mid"`
	HasMid    bool       `json:"hasMid"`
	Timestamp int64      `json:"ts"`
}

// Stats is the numerical summary of everything the book has executed.
type Stats struct {
	AvgSlippage    float64 `json:"avgSlippage"`
	CumulativeCost float64 `json:"cumulativeCost"`
	MinPrice       float64 `json:"minPrice"`
	MaxPrice       float64 `json:"maxPrice"`
	MeanPrice      float64 `json:"meanPrice"`
	BuyTrades      int     `json:"buyTrades"`
	SellTrades     int     `json:"sellTrades"`
	TotalVolume    float64 `json:"totalVolume"`
	BidVolume      float64 `json:"bidVolume"`
	AskVolume      float64 `json:"askVolume"`
	TotalTrades    int     `json:"totalTrades"`
	Cancellations  int     `json:"cancellations"`
	Discarded      int     `json:"discarded"`
	RunawayMatches int     `json:"runawayMatches"`
}
