package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func levelIDs(l *PriceLevel) []string {
	var ids []string
	l.each(func(_ int, t *Tick) bool {
		ids = append(ids, t.ID)
		return true
	})
	return ids
}

func TestPriceLevelFIFO(t *testing.T) {
	l := newPriceLevel(10)
	a := l.append(NewTick(0, "a", Bid, 5, 10))
	l.append(NewTick(0, "b", Bid, 7, 10))
	c := l.append(NewTick(0, "c", Bid, 3, 10))

	assert.Equal(t, []string{"a", "b", "c"}, levelIDs(l))
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, 15.0, l.Volume())

	removed, empty := l.remove(a)
	assert.Equal(t, "a", removed.ID)
	assert.False(t, empty)
	assert.Equal(t, []string{"b", "c"}, levelIDs(l))
	assert.Equal(t, 10.0, l.Volume())

	// freed slot is reused but the newcomer still queues last
	d := l.append(NewTick(0, "d", Bid, 1, 10))
	assert.Equal(t, a, d)
	assert.Equal(t, []string{"b", "c", "d"}, levelIDs(l))

	l.remove(c)
	assert.Equal(t, []string{"b", "d"}, levelIDs(l))
}

func TestPriceLevelRemoveLastEmpties(t *testing.T) {
	l := newPriceLevel(10)
	idx := l.append(NewTick(0, "a", Ask, 2.5, 10))
	_, empty := l.remove(idx)
	assert.True(t, empty)
	assert.Zero(t, l.Volume())
	assert.Equal(t, noSlot, l.head)
	assert.Equal(t, noSlot, l.tail)
}

func TestPriceLevelFillAndReplenish(t *testing.T) {
	l := newPriceLevel(10)
	tick := NewTick(0, "ice", Ask, 100, 10)
	tick.Visible, tick.Hidden, tick.Display = 20, 80, 20
	idx := l.append(tick)

	l.fill(idx, 20)
	assert.Zero(t, l.order(idx).Visible)
	assert.Zero(t, l.Volume())

	assert.Equal(t, 20.0, l.replenish(idx))
	assert.Equal(t, 20.0, l.order(idx).Visible)
	assert.Equal(t, 60.0, l.order(idx).Hidden)
	assert.Equal(t, 20.0, l.Volume())

	l.order(idx).Hidden = 5
	l.fill(idx, 20)
	assert.Equal(t, 5.0, l.replenish(idx))
	assert.Zero(t, l.replenish(idx))
}

func TestBookSideOrdering(t *testing.T) {
	bids := newBookSide(Bid)
	asks := newBookSide(Ask)
	for _, p := range []float64{10, 12, 11} {
		_, err := bids.insert(NewTick(0, "b", Bid, 1, p))
		require.NoError(t, err)
		_, err = asks.insert(NewTick(0, "a", Ask, 1, p))
		require.NoError(t, err)
	}

	best, ok := bids.BestPrice()
	require.True(t, ok)
	assert.Equal(t, 12.0, best)
	best, ok = asks.BestPrice()
	require.True(t, ok)
	assert.Equal(t, 10.0, best)

	var prices []float64
	bids.Levels(func(l *PriceLevel) bool {
		prices = append(prices, l.Price())
		return true
	})
	assert.Equal(t, []float64{12, 11, 10}, prices)
	assert.Equal(t, 3.0, bids.Volume())
}

func TestBookSideRejectsInvalidPrice(t *testing.T) {
	s := newBookSide(Ask)
	_, err := s.insert(NewTick(0, "a", Ask, 1, 0))
	assert.ErrorIs(t, err, ErrInvalidPrice)
	assert.Zero(t, s.Len())
}

func TestBookSideRemoveDropsEmptyLevel(t *testing.T) {
	s := newBookSide(Bid)
	ref, _ := s.insert(NewTick(0, "a", Bid, 4, 10))
	s.insert(NewTick(0, "b", Bid, 6, 9))

	s.remove(ref)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 6.0, s.Volume())
	best, _ := s.BestPrice()
	assert.Equal(t, 9.0, best)
}

func TestBookSideReprice(t *testing.T) {
	s := newBookSide(Ask)
	s.insert(NewTick(0, "a", Ask, 1, 10))
	s.insert(NewTick(0, "b", Ask, 2, 20))

	moved := map[string]orderRef{}
	s.reprice(1.5, func(id string, ref orderRef) { moved[id] = ref })
	var prices []float64
	s.Levels(func(l *PriceLevel) bool {
		prices = append(prices, l.Price())
		return true
	})
	assert.Equal(t, []float64{15, 30}, prices)
	assert.Empty(t, moved)
	assert.Equal(t, 3.0, s.Volume())
}

func TestBookSideRepriceMergesCollidingLevels(t *testing.T) {
	s := newBookSide(Ask)
	hi := math.Nextafter(2, 0)
	lo := math.Nextafter(hi, 0)
	s.insert(NewTick(0, "lo", Ask, 1, lo))
	s.insert(NewTick(0, "hi", Ask, 2, hi))
	require.Equal(t, 2, s.Len())

	// both prices round to exactly 2 after scaling by one ulp above 1
	moved := map[string]orderRef{}
	s.reprice(math.Nextafter(1, 2), func(id string, ref orderRef) { moved[id] = ref })

	require.Equal(t, 1, s.Len())
	lvl := s.best()
	assert.Equal(t, 2.0, lvl.Price())
	assert.Equal(t, []string{"lo", "hi"}, levelIDs(lvl))
	assert.Equal(t, 3.0, lvl.Volume())
	assert.Equal(t, 3.0, s.Volume())
	require.Contains(t, moved, "hi")
	assert.Same(t, lvl, moved["hi"].level)
	assert.Equal(t, 2.0, lvl.order(moved["hi"].slot).Price)
}
