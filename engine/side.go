package engine

import (
	"math"

	"github.com/tidwall/btree"
)

const btreeDegree = 32

// orderRef locates a resting order: its level and its slot in that level.
type orderRef struct {
	level *PriceLevel
	slot  int
}

// BookSide is one side of the book: a sorted price index of levels plus the
// aggregate visible volume across them.
type BookSide struct {
	side   Side
	levels *btree.Map[float64, *PriceLevel]
	volume float64
}

func newBookSide(side Side) *BookSide {
	return &BookSide{side: side, levels: btree.NewMap[float64, *PriceLevel](btreeDegree)}
}

// Side reports which side of the book this is.
func (s *BookSide) Side() Side { return s.side }

// Volume returns the aggregate visible volume.
func (s *BookSide) Volume() float64 { return s.volume }

// Len returns the number of price levels.
func (s *BookSide) Len() int { return s.levels.Len() }

// BestPrice returns the highest bid or the lowest ask.
func (s *BookSide) BestPrice() (float64, bool) {
	if lvl := s.best(); lvl != nil {
		return lvl.price, true
	}
	return 0, false
}

func (s *BookSide) best() *PriceLevel {
	var (
		lvl *PriceLevel
		ok  bool
	)
	if s.side == Bid {
		_, lvl, ok = s.levels.Max()
	} else {
		_, lvl, ok = s.levels.Min()
	}
	if !ok {
		return nil
	}
	return lvl
}

// Levels visits levels best price first until fn returns false.
func (s *BookSide) Levels(fn func(*PriceLevel) bool) {
	iter := func(_ float64, lvl *PriceLevel) bool { return fn(lvl) }
	if s.side == Bid {
		s.levels.Reverse(iter)
	} else {
		s.levels.Scan(iter)
	}
}

func (s *BookSide) insert(t Tick) (orderRef, error) {
	if !validPrice(t.Price) {
		return orderRef{}, ErrInvalidPrice
	}
	lvl, ok := s.levels.Get(t.Price)
	if !ok {
		lvl = newPriceLevel(t.Price)
		s.levels.Set(t.Price, lvl)
	}
	slot := lvl.append(t)
	s.volume += t.Visible
	return orderRef{level: lvl, slot: slot}, nil
}

func (s *BookSide) remove(ref orderRef) Tick {
	t, empty := ref.level.remove(ref.slot)
	if empty {
		s.levels.Delete(ref.level.price)
	}
	s.volume -= t.Visible
	if s.levels.Len() == 0 {
		s.volume = 0
	}
	return t
}

func (s *BookSide) fill(ref orderRef, qty float64) {
	ref.level.fill(ref.slot, qty)
	s.volume -= qty
}

func (s *BookSide) replenish(ref orderRef) {
	s.volume += ref.level.replenish(ref.slot)
}

// reprice multiplies every level price by factor, rebuilding the index.
// Float rounding can land two neighbouring levels on the same key; the
// orders of the later level are then appended to the earlier one and moved
// reports their new location.
func (s *BookSide) reprice(factor float64, moved func(id string, ref orderRef)) {
	if factor == 1 || s.levels.Len() == 0 {
		return
	}
	old := s.levels
	s.levels = btree.NewMap[float64, *PriceLevel](btreeDegree)
	old.Scan(func(price float64, lvl *PriceLevel) bool {
		np := price * factor
		existing, ok := s.levels.Get(np)
		if !ok {
			lvl.reprice(np)
			s.levels.Set(np, lvl)
			return true
		}
		lvl.each(func(_ int, t *Tick) bool {
			next := *t
			next.Price = np
			moved(next.ID, orderRef{level: existing, slot: existing.append(next)})
			return true
		})
		return true
	})
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}
