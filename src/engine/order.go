package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type Kind string

const (
	KindLimit  Kind = "LIMIT"
	KindMarket Kind = "MARKET"
)

func (k Kind) Valid() bool {
	return k == KindLimit || k == KindMarket
}

type Status string

const (
	StatusOpen            Status = "OPEN"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCancelled       Status = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled
}

// Order is a submitted order. Filled + Remaining() == Amount at all times.
type Order struct {
	ID         string
	Instrument string
	Owner      string
	Side       Side
	Kind       Kind
	Price      decimal.Decimal // zero for MARKET
	Amount     decimal.Decimal
	Filled     decimal.Decimal
	Status     Status
	Sequence   uint64
	CreatedAt  time.Time
}

func (o *Order) Remaining() decimal.Decimal {
	return o.Amount.Sub(o.Filled)
}

// fill records an execution and moves the order along its state machine.
func (o *Order) fill(amount decimal.Decimal) {
	o.Filled = o.Filled.Add(amount)
	if o.Filled.GreaterThanOrEqual(o.Amount) {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
}

type Trade struct {
	ID           string
	Instrument   string
	Price        decimal.Decimal
	Amount       decimal.Decimal
	TakerSide    Side
	MakerOrderID string
	TakerOrderID string
	Fee          decimal.Decimal
	Timestamp    time.Time
}

func (t Trade) Time() time.Time {
	return t.Timestamp
}

// Level is one aggregated row of a depth snapshot.
type Level struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}

type OrderRequest struct {
	Owner  string
	Side   Side
	Kind   Kind
	Price  decimal.Decimal
	Amount decimal.Decimal
}

type PlaceResult struct {
	Order  Order
	Trades []Trade
}

// Filled is the total amount executed by the submitted order.
func (r *PlaceResult) Filled() decimal.Decimal {
	return r.Order.Filled
}
