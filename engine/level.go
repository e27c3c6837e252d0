package engine

import "math"

const noSlot = -1

// restingOrder is an arena entry. prev and next are slot indices within the
// owning level, noSlot at either end of the queue.
type restingOrder struct {
	tick Tick
	prev int
	next int
	live bool
}

// PriceLevel is a FIFO of resting orders at one exact price. The level owns
// its orders in a slot arena; a slot index stays valid until that order is
// removed, which gives O(1) removal without aliasing pointers.
type PriceLevel struct {
	price  float64
	slots  []restingOrder
	free   []int
	head   int
	tail   int
	count  int
	volume float64
}

func newPriceLevel(price float64) *PriceLevel {
	return &PriceLevel{price: price, head: noSlot, tail: noSlot}
}

// Price returns the level's price.
func (l *PriceLevel) Price() float64 { return l.price }

// Len returns the number of resting orders.
func (l *PriceLevel) Len() int { return l.count }

// Volume returns the total visible quantity at this level.
func (l *PriceLevel) Volume() float64 { return l.volume }

func (l *PriceLevel) append(t Tick) int {
	var idx int
	if n := len(l.free); n > 0 {
		idx = l.free[n-1]
		l.free = l.free[:n-1]
	} else {
		idx = len(l.slots)
		l.slots = append(l.slots, restingOrder{})
	}
	l.slots[idx] = restingOrder{tick: t, prev: l.tail, next: noSlot, live: true}
	if l.tail != noSlot {
		l.slots[l.tail].next = idx
	} else {
		l.head = idx
	}
	l.tail = idx
	l.count++
	l.volume += t.Visible
	return idx
}

// remove detaches the order in slot idx and reports whether the level is
// now empty.
func (l *PriceLevel) remove(idx int) (Tick, bool) {
	o := &l.slots[idx]
	if o.prev != noSlot {
		l.slots[o.prev].next = o.next
	} else {
		l.head = o.next
	}
	if o.next != noSlot {
		l.slots[o.next].prev = o.prev
	} else {
		l.tail = o.prev
	}
	t := o.tick
	*o = restingOrder{prev: noSlot, next: noSlot}
	l.free = append(l.free, idx)
	l.count--
	l.volume -= t.Visible
	if l.count == 0 {
		l.volume = 0
	}
	return t, l.count == 0
}

// order returns the tick in slot idx. The pointer is only valid until the
// next append to this level.
func (l *PriceLevel) order(idx int) *Tick {
	return &l.slots[idx].tick
}

func (l *PriceLevel) fill(idx int, qty float64) {
	l.slots[idx].tick.Visible -= qty
	l.volume -= qty
}

// replenish exposes up to Display more quantity from the hidden reserve.
func (l *PriceLevel) replenish(idx int) float64 {
	t := &l.slots[idx].tick
	amount := math.Min(t.Hidden, t.Display)
	if amount <= 0 {
		return 0
	}
	t.Hidden -= amount
	t.Visible += amount
	l.volume += amount
	return amount
}

// each visits orders in time priority until fn returns false.
func (l *PriceLevel) each(fn func(idx int, t *Tick) bool) {
	for i := l.head; i != noSlot; i = l.slots[i].next {
		if !fn(i, &l.slots[i].tick) {
			return
		}
	}
}

func (l *PriceLevel) reprice(price float64) {
	l.price = price
	for i := l.head; i != noSlot; i = l.slots[i].next {
		l.slots[i].tick.Price = price
	}
}

func (l *PriceLevel) view() LevelView {
	return LevelView{Price: l.price, Volume: l.volume, Orders: l.count}
}
