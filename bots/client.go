package bots

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"lobsim/engine"
)

// ThrottledClient wraps a Matcher with basic rate limiting and order
// ownership bookkeeping.
type ThrottledClient struct {
	matcher  *engine.Matcher
	throttle <-chan time.Time
	clock    func() time.Time
	mu       sync.Mutex
	orderSeq int64
	owned    map[string]struct{}
}

// NewThrottledClient rate limits submissions to one per throttle tick. A nil
// throttle disables limiting.
func NewThrottledClient(m *engine.Matcher, throttle <-chan time.Time) *ThrottledClient {
	return &ThrottledClient{
		matcher:  m,
		throttle: throttle,
		clock:    time.Now,
		owned:    make(map[string]struct{}),
	}
}

func (c *ThrottledClient) waitThrottle(ctx context.Context) error {
	if c.throttle == nil {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.throttle:
		return nil
	}
}

func (c *ThrottledClient) Submit(ctx context.Context, tick engine.Tick) ([]engine.Trade, error) {
	if err := c.waitThrottle(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.owned[tick.ID] = struct{}{}
	c.mu.Unlock()
	trades, err := c.matcher.Submit(tick)
	if err != nil {
		c.mu.Lock()
		delete(c.owned, tick.ID)
		c.mu.Unlock()
		return nil, err
	}
	return trades, nil
}

func (c *ThrottledClient) CancelOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.matcher.CancelOrder(orderID)
}

func (c *ThrottledClient) Snapshot(ctx context.Context) (engine.BookView, error) {
	if err := ctx.Err(); err != nil {
		return engine.BookView{}, err
	}
	return c.matcher.View()
}

// Now stamps bot orders in milliseconds.
func (c *ThrottledClient) Now() int64 {
	return c.clock().UnixMilli()
}

func (c *ThrottledClient) NextID(prefix string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orderSeq++
	return fmt.Sprintf("%s-%d", prefix, c.orderSeq)
}

// OwnsOrder reports whether id, or the parent of a split child id, was
// submitted through this client.
func (c *ThrottledClient) OwnsOrder(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.owned[id]; ok {
		return true
	}
	if i := strings.LastIndexByte(id, '-'); i > 0 {
		_, ok := c.owned[id[:i]]
		return ok
	}
	return false
}
