package bots

import (
	"context"
	"math"
	"math/rand"
	"time"

	"lobsim/engine"
)

// NoiseBot places short-lived limit orders on one side, priced randomly
// within RangeBps of the mid. Orders priced through the mid trade at once.
type NoiseBot struct {
	Side     engine.Side
	Interval time.Duration
	Lifetime time.Duration
	MinQty   float64
	MaxQty   float64
	RangeBps float64
	// Aggression is the chance an order crosses the mid instead of resting
	// behind it.
	Aggression float64
	rand       *rand.Rand
}

func NewNoiseBot(side engine.Side, seed int64) *NoiseBot {
	return &NoiseBot{
		Side:       side,
		Interval:   200 * time.Millisecond,
		Lifetime:   2 * time.Second,
		MinQty:     1,
		MaxQty:     20,
		RangeBps:   25,
		Aggression: 0.2,
		rand:       rand.New(rand.NewSource(seed)),
	}
}

func (b *NoiseBot) Start(ctx context.Context, client EngineClient) {
	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if id, ok := b.place(ctx, client); ok {
				go b.cancelAfter(ctx, client, id)
			}
		}
	}
}

// place submits one order and reports its id when it may still be resting.
func (b *NoiseBot) place(ctx context.Context, client EngineClient) (string, bool) {
	view, err := client.Snapshot(ctx)
	if err != nil {
		return "", false
	}
	mid := midPrice(view)
	if mid <= 0 {
		return "", false
	}

	offset := bps(b.RangeBps) * b.rand.Float64()
	if b.rand.Float64() < b.Aggression {
		offset = -offset
	}
	price := mid * (1 - offset)
	if b.Side == engine.Ask {
		price = mid * (1 + offset)
	}
	qty := math.Round(b.MinQty + b.rand.Float64()*(b.MaxQty-b.MinQty))

	id := client.NextID(b.Side.String())
	if _, err := client.Submit(ctx, engine.NewTick(client.Now(), id, b.Side, qty, price)); err != nil {
		return "", false
	}
	return id, true
}

func (b *NoiseBot) cancelAfter(ctx context.Context, client EngineClient, orderID string) {
	timer := time.NewTimer(b.Lifetime)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		_ = client.CancelOrder(context.Background(), orderID)
	}
}
