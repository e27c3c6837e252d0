package sim

import (
	"math"
	"math/rand"
)

const (
	walkVolatility = 0.002
	walkHalfSpread = 0.0005
	walkLevelStep  = 0.001
	walkMaxVolume  = 2000
)

// RandomWalk generates n rows of depth around a mid price that follows a
// seeded geometric random walk starting at base. Row timestamps are 1..n.
func RandomWalk(seed int64, n, levels int, base float64) []Row {
	if n <= 0 || levels <= 0 || base <= 0 {
		return nil
	}
	rng := rand.New(rand.NewSource(seed))
	rows := make([]Row, n)
	mid := base
	for i := range rows {
		mid *= math.Exp(rng.NormFloat64() * walkVolatility)
		row := Row{Timestamp: int64(i + 1), Levels: make([]Level, levels)}
		for l := range row.Levels {
			offset := walkHalfSpread + float64(l)*walkLevelStep
			row.Levels[l] = Level{
				BidPrice:  roundCents(mid * (1 - offset)),
				BidVolume: float64(rng.Intn(walkMaxVolume) + 1),
				AskPrice:  roundCents(mid * (1 + offset)),
				AskVolume: float64(rng.Intn(walkMaxVolume) + 1),
			}
		}
		rows[i] = row
	}
	return rows
}

func roundCents(p float64) float64 {
	return math.Round(p*100) / 100
}
