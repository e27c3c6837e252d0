package bots

import (
	"context"
	"math"
	"time"

	"lobsim/engine"
)

// SpreadCaptureBot maintains paired bids/asks inside the spread and
// re-quotes when the mid drifts.
type SpreadCaptureBot struct {
	Interval     time.Duration
	Lifetime     time.Duration
	ThresholdBps float64
	EdgeBps      float64
	Quantity     float64
}

type pairedOrders struct {
	buyID     string
	sellID    string
	anchorMid float64
	placedAt  time.Time
}

func NewSpreadCaptureBot() *SpreadCaptureBot {
	return &SpreadCaptureBot{
		Interval:     300 * time.Millisecond,
		Lifetime:     3 * time.Second,
		ThresholdBps: 10,
		EdgeBps:      2,
		Quantity:     5,
	}
}

func (b *SpreadCaptureBot) Start(ctx context.Context, client EngineClient) {
	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()

	var pair *pairedOrders
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			view, err := client.Snapshot(ctx)
			if err != nil {
				continue
			}
			pair = b.refreshPair(ctx, client, view, pair)
		}
	}
}

func (b *SpreadCaptureBot) refreshPair(ctx context.Context, client EngineClient, view engine.BookView, pair *pairedOrders) *pairedOrders {
	if !view.HasMid {
		return b.cancelPair(ctx, client, pair)
	}
	mid := view.Mid

	if pair != nil {
		if time.Since(pair.placedAt) > b.Lifetime {
			return b.cancelPair(ctx, client, pair)
		}
		if math.Abs(mid-pair.anchorMid) >= mid*bps(b.ThresholdBps) {
			pair = b.cancelPair(ctx, client, pair)
		}
	}
	if pair != nil {
		return pair
	}

	// quote at or inside the best prices so the pair never crosses
	edge := mid * bps(b.EdgeBps)
	buyPrice := math.Max(view.BestBid.Price, mid-edge)
	sellPrice := math.Min(view.BestAsk.Price, mid+edge)
	if sellPrice <= buyPrice {
		return nil
	}

	buyID := client.NextID("spread-bid")
	sellID := client.NextID("spread-ask")
	ts := client.Now()

	if _, err := client.Submit(ctx, engine.NewTick(ts, buyID, engine.Bid, b.Quantity, buyPrice)); err != nil {
		return nil
	}
	if _, err := client.Submit(ctx, engine.NewTick(ts, sellID, engine.Ask, b.Quantity, sellPrice)); err != nil {
		_ = client.CancelOrder(ctx, buyID)
		return nil
	}
	return &pairedOrders{buyID: buyID, sellID: sellID, anchorMid: mid, placedAt: time.Now()}
}

func (b *SpreadCaptureBot) cancelPair(ctx context.Context, client EngineClient, pair *pairedOrders) *pairedOrders {
	if pair == nil {
		return nil
	}
	_ = client.CancelOrder(ctx, pair.buyID)
	_ = client.CancelOrder(ctx, pair.sellID)
	return nil
}
