package engine

import (
	"errors"
	"fmt"
)

var (
	ErrNoLiquidity    = errors.New("no liquidity")
	ErrOrderNotFound  = errors.New("order not found")
	ErrZeroRemaining  = errors.New("order has no remaining amount")
	ErrDuplicateOrder = errors.New("order already in book")
	ErrHalted         = errors.New("instrument halted")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid order: " + e.Field + " " + e.Message
}

// NoLiquidityError is returned for a market order that found nothing to match.
// It unwraps to ErrNoLiquidity.
type NoLiquidityError struct {
	Instrument string
	Side       Side
}

func (e *NoLiquidityError) Error() string {
	return fmt.Sprintf("no liquidity: %s %s has no opposing orders", e.Instrument, e.Side)
}

func (e *NoLiquidityError) Unwrap() error {
	return ErrNoLiquidity
}

// InvariantViolation is raised with panic when the book is left in a state the
// matching algorithm must never produce. The engine halts after one.
type InvariantViolation struct {
	Instrument string
	Reason     string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation on " + e.Instrument + ": " + e.Reason
}
