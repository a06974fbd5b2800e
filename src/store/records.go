package store

import (
	"time"

	"github.com/shopspring/decimal"

	"spot-engine/src/engine"
)

type orderRecord struct {
	ID         string          `json:"id"`
	Instrument string          `json:"instrument"`
	Owner      string          `json:"owner,omitempty"`
	Side       engine.Side     `json:"side"`
	Kind       engine.Kind     `json:"kind"`
	Price      decimal.Decimal `json:"price"`
	Amount     decimal.Decimal `json:"amount"`
	Filled     decimal.Decimal `json:"filled"`
	Status     engine.Status   `json:"status"`
	Sequence   uint64          `json:"sequence"`
	CreatedAt  time.Time       `json:"created_at"`
}

func fromOrder(o engine.Order) orderRecord {
	return orderRecord{
		ID:         o.ID,
		Instrument: o.Instrument,
		Owner:      o.Owner,
		Side:       o.Side,
		Kind:       o.Kind,
		Price:      o.Price,
		Amount:     o.Amount,
		Filled:     o.Filled,
		Status:     o.Status,
		Sequence:   o.Sequence,
		CreatedAt:  o.CreatedAt,
	}
}

func (r orderRecord) toOrder() engine.Order {
	return engine.Order{
		ID:         r.ID,
		Instrument: r.Instrument,
		Owner:      r.Owner,
		Side:       r.Side,
		Kind:       r.Kind,
		Price:      r.Price,
		Amount:     r.Amount,
		Filled:     r.Filled,
		Status:     r.Status,
		Sequence:   r.Sequence,
		CreatedAt:  r.CreatedAt,
	}
}

type tradeRecord struct {
	ID           string          `json:"id"`
	Instrument   string          `json:"instrument"`
	Price        decimal.Decimal `json:"price"`
	Amount       decimal.Decimal `json:"amount"`
	TakerSide    engine.Side     `json:"taker_side"`
	MakerOrderID string          `json:"maker_order_id"`
	TakerOrderID string          `json:"taker_order_id"`
	Fee          decimal.Decimal `json:"fee"`
	Timestamp    time.Time       `json:"timestamp"`
}

func fromTrade(t engine.Trade) tradeRecord {
	return tradeRecord{
		ID:           t.ID,
		Instrument:   t.Instrument,
		Price:        t.Price,
		Amount:       t.Amount,
		TakerSide:    t.TakerSide,
		MakerOrderID: t.MakerOrderID,
		TakerOrderID: t.TakerOrderID,
		Fee:          t.Fee,
		Timestamp:    t.Timestamp,
	}
}

func (r tradeRecord) toTrade() engine.Trade {
	return engine.Trade{
		ID:           r.ID,
		Instrument:   r.Instrument,
		Price:        r.Price,
		Amount:       r.Amount,
		TakerSide:    r.TakerSide,
		MakerOrderID: r.MakerOrderID,
		TakerOrderID: r.TakerOrderID,
		Fee:          r.Fee,
		Timestamp:    r.Timestamp,
	}
}
