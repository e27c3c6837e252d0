package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPrice rejects prices that are not strictly positive and finite.
	ErrInvalidPrice = errors.New("price must be positive")
	// ErrInvalidQuantity rejects negative or non-finite quantities.
	ErrInvalidQuantity = errors.New("quantity must be non-negative")
	// ErrDuplicateOrder rejects an id that is already resting.
	ErrDuplicateOrder = errors.New("order id already resting")
	// ErrOrderNotFound is returned when cancelling an id that is not resting.
	ErrOrderNotFound = errors.New("order not found")
	// ErrWouldCross rejects a placed quote that would trade on arrival.
	ErrWouldCross = errors.New("quote would cross the book")
	// ErrBookStopped is returned by a Matcher after Stop.
	ErrBookStopped = errors.New("order book stopped")
)

// InvariantError reports broken level or side bookkeeping. It signals a
// defect, not a runtime condition callers can recover from.
type InvariantError struct {
	Side   Side
	Price  float64
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated on %s side at %.8g: %s", e.Side, e.Price, e.Reason)
}
