package engine

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ImpactModel selects how trading reprices the book.
type ImpactModel int

const (
	// ImpactSimple reprices only the opposing side.
	ImpactSimple ImpactModel = iota
	// ImpactExtended adds a transient opposing-side impact to a smaller
	// permanent impact on both sides, with randomized coefficients.
	ImpactExtended
)

// ParseImpactModel maps "simple" and "extended" to their models.
func ParseImpactModel(value string) (ImpactModel, error) {
	switch strings.ToLower(value) {
	case "", "simple":
		return ImpactSimple, nil
	case "extended":
		return ImpactExtended, nil
	default:
		return 0, fmt.Errorf("unknown impact model %q", value)
	}
}

// Config controls the matching engine and its microstructure model.
type Config struct {
	TransactionCostRate  float64
	ImpactCoefficient    float64
	ImpactCap            float64
	ImpactModel          ImpactModel
	PermanentImpactRatio float64

	CancelProbability float64
	// LatencyFactor bounds the random delay applied before each child order.
	LatencyFactor time.Duration

	// LiquidityInterval is in timestamp ticks; zero disables injection.
	LiquidityInterval int64
	LiquiditySpread   float64
	LiquidityQty      float64

	MinOrderSize float64
	MinPriceDiff float64

	SplitDivisor float64
	MinSplit     int
	MaxSplit     int
	SplitJitter  float64

	MaxMatchIterations int
	Seed               int64
	// Debug verifies book invariants after every operation and panics on
	// the first violation.
	Debug bool

	Logger  *zap.Logger
	Metrics *Metrics
}

// DefaultConfig returns the parameters the simulator runs with unless told
// otherwise.
func DefaultConfig() Config {
	return Config{
		TransactionCostRate:  0.001,
		ImpactCoefficient:    0.1,
		ImpactCap:            0.05,
		ImpactModel:          ImpactSimple,
		PermanentImpactRatio: 0.2,
		CancelProbability:    0.05,
		LiquidityInterval:    10,
		LiquiditySpread:      0.001,
		LiquidityQty:         100,
		MinOrderSize:         1,
		SplitDivisor:         1000,
		MinSplit:             1,
		MaxSplit:             10,
		SplitJitter:          0.1,
		MaxMatchIterations:   100_000,
		Seed:                 1,
	}
}

func (c Config) normalized() Config {
	if c.MinSplit < 1 {
		c.MinSplit = 1
	}
	if c.MaxSplit < c.MinSplit {
		c.MaxSplit = c.MinSplit
	}
	if c.SplitDivisor <= 0 {
		c.SplitDivisor = 1000
	}
	if c.MaxMatchIterations <= 0 {
		c.MaxMatchIterations = 100_000
	}
	if c.MinOrderSize < 0 {
		c.MinOrderSize = 0
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}
