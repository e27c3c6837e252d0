package engine

import (
	"math/rand"
	"strconv"
	"sync/atomic"
	"testing"
)

func BenchmarkMatchThroughput(b *testing.B) {
	cfg := DefaultConfig()
	cfg.CancelProbability = 0
	m := NewMatcher(New(cfg), 2048)
	defer m.Stop()

	randGen := rand.New(rand.NewSource(42))

	var matched int64
	done := make(chan struct{})
	go func() {
		for range m.Trades() {
			atomic.AddInt64(&matched, 1)
		}
		close(done)
	}()

	orders := make([]Tick, b.N)
	for i := 0; i < b.N; i++ {
		orders[i] = randomBenchmarkTick(randGen, i)
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := m.Submit(orders[i]); err != nil {
			b.Fatalf("submit failed: %v", err)
		}
	}

	m.Stop()
	<-done
	b.StopTimer()

	if elapsed := b.Elapsed(); elapsed > 0 {
		b.ReportMetric(float64(atomic.LoadInt64(&matched))/elapsed.Seconds(), "trades/sec")
	}
}

func BenchmarkBookDirect(b *testing.B) {
	cfg := DefaultConfig()
	cfg.CancelProbability = 0
	ob := New(cfg)
	randGen := rand.New(rand.NewSource(7))

	orders := make([]Tick, b.N)
	for i := 0; i < b.N; i++ {
		orders[i] = randomBenchmarkTick(randGen, i)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ob.Submit(orders[i]); err != nil {
			b.Fatalf("submit failed: %v", err)
		}
		ob.InjectLiquidity(int64(i))
	}
	b.StopTimer()
	b.ReportMetric(float64(ob.TradeCount())/float64(b.N), "trades/op")
}

func randomBenchmarkTick(rng *rand.Rand, idx int) Tick {
	side := Side(rng.Intn(2))
	base := 100.0
	width := 1.0
	var price float64
	if side == Bid {
		price = base + rng.Float64()*width
	} else {
		price = base - rng.Float64()*width
	}
	return NewTick(int64(idx), "bench-"+strconv.Itoa(idx), side, float64(rng.Intn(500)+1), price)
}
