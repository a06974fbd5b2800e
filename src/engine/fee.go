package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultFeeRate is the taker fee applied when no rate is configured (0.1%).
var DefaultFeeRate = decimal.RequireFromString("0.001")

// FeeSchedule resolves the taker fee rate of an instrument.
type FeeSchedule struct {
	Default   decimal.Decimal
	Overrides map[string]decimal.Decimal
}

func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{Default: DefaultFeeRate}
}

func (f FeeSchedule) Rate(instrument string) decimal.Decimal {
	if rate, ok := f.Overrides[instrument]; ok {
		return rate
	}
	return f.Default
}

// Fee is price * amount * rate. It is a pure function of the trade and never
// touches book state.
func Fee(rate, price, amount decimal.Decimal) decimal.Decimal {
	return price.Mul(amount).Mul(rate)
}

// FeeEvent is what the fiscal-allocation collaborator receives per trade.
type FeeEvent struct {
	TradeID    string
	Instrument string
	Payer      string
	OrderID    string
	Notional   decimal.Decimal
	Rate       decimal.Decimal
	Fee        decimal.Decimal
	Timestamp  time.Time
}

// FeeSink accepts fee events without blocking the caller.
type FeeSink interface {
	Publish(event FeeEvent)
}

// Journal persists order and trade state outside the matching path. Calls are
// made while the instrument lock is held, so implementations must only
// enqueue.
type Journal interface {
	RecordOrder(order Order)
	RecordTrade(trade Trade)
}

type nopFeeSink struct{}

func (nopFeeSink) Publish(FeeEvent) {}

type nopJournal struct{}

func (nopJournal) RecordOrder(Order) {}
func (nopJournal) RecordTrade(Trade) {}
