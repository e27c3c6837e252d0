package bots

import (
	"context"

	"lobsim/engine"
)

// Bot represents a trading agent that can be run under a supervisor.
type Bot interface {
	Start(ctx context.Context, client EngineClient)
}

// EngineClient abstracts the minimal surface bots need from the matching engine.
type EngineClient interface {
	Submit(ctx context.Context, tick engine.Tick) ([]engine.Trade, error)
	CancelOrder(ctx context.Context, orderID string) error
	Snapshot(ctx context.Context) (engine.BookView, error)
	Now() int64
	NextID(prefix string) string
	OwnsOrder(id string) bool
}
