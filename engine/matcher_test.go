package engine

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcherSerializesConcurrentSubmitters(t *testing.T) {
	m := NewMatcher(New(frictionless(t)), 64)
	defer m.Stop()

	const workers, perWorker = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				var err error
				if (w+i)%2 == 0 {
					_, err = m.SubmitBid(int64(i), id, 10, 100)
				} else {
					_, err = m.SubmitAsk(int64(i), id, 10, 100)
				}
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	var verr error
	require.NoError(t, m.Query(func(b *OrderBook) { verr = b.VerifyInvariant() }))
	assert.NoError(t, verr)

	stats, err := m.Stats()
	require.NoError(t, err)
	// equal bid and ask flow at one price fully pairs off
	assert.Equal(t, float64(workers*perWorker/2*10), stats.TotalVolume)
	assert.Zero(t, stats.BidVolume+stats.AskVolume)
}

func TestMatcherStreamsTradesAndViews(t *testing.T) {
	m := NewMatcher(New(frictionless(t)), 16)
	defer m.Stop()

	_, err := m.SubmitAsk(1, "a", 10, 101)
	require.NoError(t, err)
	_, err = m.SubmitBid(2, "b", 10, 99)
	require.NoError(t, err)
	trades, err := m.SubmitBid(3, "c", 4, 101)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	select {
	case tr := <-m.Trades():
		assert.Equal(t, trades[0], tr)
	case <-time.After(time.Second):
		t.Fatal("no trade published")
	}

	var last BookView
	for len(m.BookUpdates()) > 0 {
		last = <-m.BookUpdates()
	}
	require.NotNil(t, last.BestAsk)
	assert.Equal(t, 6.0, last.BestAsk.Volume)
	assert.True(t, last.HasMid)
	assert.Equal(t, 100.0, last.Mid)

	recent, err := m.RecentTrades(10)
	require.NoError(t, err)
	assert.Equal(t, trades, recent)

	depth, err := m.Depth(1)
	require.NoError(t, err)
	require.Len(t, depth.Bids, 1)
	assert.Equal(t, 99.0, depth.Bids[0].Price)
}

func TestMatcherCancelAndInject(t *testing.T) {
	cfg := frictionless(t)
	cfg.LiquidityInterval = 1
	m := NewMatcher(New(cfg), 4)
	defer m.Stop()

	_, _ = m.SubmitBid(0, "b", 10, 99)
	_, _ = m.SubmitAsk(0, "a", 10, 101)
	assert.Equal(t, 2, m.InjectLiquidity(3))

	require.NoError(t, m.CancelOrder("b"))
	assert.ErrorIs(t, m.CancelOrder("b"), ErrOrderNotFound)

	mid, ok := m.MidPrice()
	require.True(t, ok)
	assert.InDelta(t, 100.0, mid, 1)
}

func TestMatcherPlacePublishesView(t *testing.T) {
	cfg := frictionless(t)
	cfg.CancelProbability = 1
	m := NewMatcher(New(cfg), 8)
	defer m.Stop()

	require.NoError(t, m.Place(NewTick(0, "q", Ask, 3, 50)))
	select {
	case view := <-m.BookUpdates():
		require.NotNil(t, view.BestAsk)
		assert.Equal(t, 50.0, view.BestAsk.Price)
	case <-time.After(time.Second):
		t.Fatal("no book update after place")
	}
	assert.ErrorIs(t, m.Place(NewTick(0, "q", Ask, 3, 51)), ErrDuplicateOrder)
}

func TestMatcherStop(t *testing.T) {
	m := NewMatcher(New(frictionless(t)), 1)
	m.Stop()
	m.Stop()

	_, err := m.SubmitBid(0, "b", 1, 1)
	assert.ErrorIs(t, err, ErrBookStopped)
	_, err = m.Stats()
	assert.ErrorIs(t, err, ErrBookStopped)
	assert.ErrorIs(t, m.Place(NewTick(0, "p", Bid, 1, 1)), ErrBookStopped)

	_, open := <-m.Trades()
	assert.False(t, open)
	_, open = <-m.BookUpdates()
	assert.False(t, open)
}
