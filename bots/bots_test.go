package bots

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"lobsim/engine"
)

func quietBook() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.CancelProbability = 0
	cfg.ImpactCoefficient = 0
	cfg.Debug = true
	return cfg
}

func seededMatcher(t *testing.T) *engine.Matcher {
	m := engine.NewMatcher(engine.New(quietBook()), 64)
	t.Cleanup(m.Stop)
	_, err := m.SubmitBid(0, "seed-bid", 100, 99)
	require.NoError(t, err)
	_, err = m.SubmitAsk(0, "seed-ask", 100, 101)
	require.NoError(t, err)
	return m
}

// recordingClient wraps a ThrottledClient and remembers what was sent.
type recordingClient struct {
	*ThrottledClient
	mu   sync.Mutex
	sent []engine.Tick
}

func (r *recordingClient) Submit(ctx context.Context, tick engine.Tick) ([]engine.Trade, error) {
	r.mu.Lock()
	r.sent = append(r.sent, tick)
	r.mu.Unlock()
	return r.ThrottledClient.Submit(ctx, tick)
}

func TestNoiseBotPricesAroundMid(t *testing.T) {
	m := seededMatcher(t)
	client := &recordingClient{ThrottledClient: NewThrottledClient(m, nil)}
	bid := NewNoiseBot(engine.Bid, 1)
	bid.Aggression = 0
	ask := NewNoiseBot(engine.Ask, 2)
	ask.Aggression = 0

	// cancelling each order keeps the reference mid at 100
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		for _, b := range []*NoiseBot{bid, ask} {
			id, ok := b.place(ctx, client)
			require.True(t, ok)
			require.NoError(t, client.CancelOrder(ctx, id))
		}
	}

	for _, s := range client.sent {
		assert.InDelta(t, 100, s.Price, 100*bps(25)+1e-9)
		if s.Side == engine.Bid {
			assert.LessOrEqual(t, s.Price, 100.0)
		} else {
			assert.GreaterOrEqual(t, s.Price, 100.0)
		}
		assert.GreaterOrEqual(t, s.Qty, 1.0)
		assert.LessOrEqual(t, s.Qty, 20.0)
		assert.True(t, client.OwnsOrder(s.ID))
	}
}

func TestNoiseBotSkipsWithoutReference(t *testing.T) {
	m := engine.NewMatcher(engine.New(quietBook()), 4)
	defer m.Stop()
	_, ok := NewNoiseBot(engine.Bid, 1).place(context.Background(), NewThrottledClient(m, nil))
	assert.False(t, ok)
}

func TestSpreadCaptureQuotesInsideSpread(t *testing.T) {
	m := seededMatcher(t)
	client := NewThrottledClient(m, nil)
	bot := NewSpreadCaptureBot()

	view, err := client.Snapshot(context.Background())
	require.NoError(t, err)
	pair := bot.refreshPair(context.Background(), client, view, nil)
	require.NotNil(t, pair)
	assert.Equal(t, 100.0, pair.anchorMid)

	view, err = client.Snapshot(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 100-100*bps(2), view.BestBid.Price, 1e-9)
	assert.InDelta(t, 100+100*bps(2), view.BestAsk.Price, 1e-9)

	// a stable mid keeps the pair
	assert.Same(t, pair, bot.refreshPair(context.Background(), client, view, pair))

	pair.placedAt = time.Now().Add(-time.Hour)
	assert.Nil(t, bot.refreshPair(context.Background(), client, view, pair))
	view, err = client.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 99.0, view.BestBid.Price, "expired pair is cancelled")
}

func TestPnLTracksOwnedLegs(t *testing.T) {
	m := seededMatcher(t)
	client := NewThrottledClient(m, nil)

	_, err := client.Submit(context.Background(), engine.NewTick(1, "bot-1", engine.Bid, 10, 101))
	require.NoError(t, err)

	p := &pnlTracker{}
	p.Record(engine.Trade{Qty: 10, Price: 101, BuyOrderID: "bot-1", SellOrderID: "seed-ask"}, client)
	p.Record(engine.Trade{Qty: 4, Price: 102, BuyOrderID: "other", SellOrderID: "bot-1-2"}, client)
	pos, cash := p.Snapshot()
	assert.Equal(t, 6.0, pos)
	assert.InDelta(t, -1010+408, cash, 1e-9)
}

func TestThrottledClientHonoursContext(t *testing.T) {
	m := seededMatcher(t)
	client := NewThrottledClient(m, make(chan time.Time))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Submit(ctx, engine.NewTick(1, "x", engine.Bid, 1, 99))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, client.OwnsOrder("x"))
	assert.ErrorIs(t, client.CancelOrder(ctx, "seed-bid"), context.Canceled)
}

func TestSupervisorRunsUntilCancelled(t *testing.T) {
	m := seededMatcher(t)
	sup := NewSupervisor(m, time.Millisecond, 7, zaptest.NewLogger(t))
	for _, b := range sup.bots {
		switch bot := b.(type) {
		case *NoiseBot:
			bot.Interval = 5 * time.Millisecond
		case *SpreadCaptureBot:
			bot.Interval = 5 * time.Millisecond
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		sup.Start(ctx, m.Trades())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}

	var verr error
	require.NoError(t, m.Query(func(b *engine.OrderBook) { verr = b.VerifyInvariant() }))
	assert.NoError(t, verr)
	stats, err := m.Stats()
	require.NoError(t, err)
	assert.Positive(t, stats.BidVolume+stats.AskVolume)
}
