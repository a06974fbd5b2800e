package engine

import (
	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

// priceLevel holds the resting orders at one price in arrival order.
type priceLevel struct {
	price  decimal.Decimal
	orders []*Order // fifo ordering for time priority
}

func (l *priceLevel) remaining() decimal.Decimal {
	total := decimal.Zero
	for _, o := range l.orders {
		total = total.Add(o.Remaining())
	}
	return total
}

func (l *priceLevel) remove(id string) {
	for i, o := range l.orders {
		if o.ID == id {
			l.orders = append(l.orders[:i], l.orders[i+1:]...)
			return
		}
	}
}

// OrderBook holds the resting limit orders of one instrument. It is not safe
// for concurrent use; the owning Engine serialises access.
type OrderBook struct {
	instrument string
	bids       *btree.BTreeG[*priceLevel] // sorted descending (highest first)
	asks       *btree.BTreeG[*priceLevel] // sorted ascending (lowest first)
	orders     map[string]*Order
}

func NewOrderBook(instrument string) *OrderBook {
	return &OrderBook{
		instrument: instrument,
		bids: btree.NewG(32, func(a, b *priceLevel) bool {
			return a.price.GreaterThan(b.price)
		}),
		asks: btree.NewG(32, func(a, b *priceLevel) bool {
			return a.price.LessThan(b.price)
		}),
		orders: make(map[string]*Order),
	}
}

func (ob *OrderBook) Instrument() string {
	return ob.instrument
}

func (ob *OrderBook) side(s Side) *btree.BTreeG[*priceLevel] {
	if s == SideBuy {
		return ob.bids
	}
	return ob.asks
}

// Insert rests an order at its limit price behind every order already
// queued at that price.
func (ob *OrderBook) Insert(order *Order) error {
	if !order.Remaining().IsPositive() {
		return ErrZeroRemaining
	}
	if _, exists := ob.orders[order.ID]; exists {
		return ErrDuplicateOrder
	}

	tree := ob.side(order.Side)
	level, ok := tree.Get(&priceLevel{price: order.Price})
	if !ok {
		level = &priceLevel{price: order.Price}
		tree.ReplaceOrInsert(level)
	}
	level.orders = append(level.orders, order)
	ob.orders[order.ID] = order
	return nil
}

// Remove takes a resting order out of the book. The boolean is false when the
// id is not resting, which callers treat as an idempotent no-op.
func (ob *OrderBook) Remove(id string) (*Order, bool) {
	order, exists := ob.orders[id]
	if !exists {
		return nil, false
	}
	delete(ob.orders, id)

	tree := ob.side(order.Side)
	level, ok := tree.Get(&priceLevel{price: order.Price})
	if !ok {
		return order, true
	}
	level.remove(id)

	// edge case: remove empty price level
	if len(level.orders) == 0 {
		tree.Delete(level)
	}
	return order, true
}

func (ob *OrderBook) best(s Side) *Order {
	level, ok := ob.side(s).Min()
	if !ok || len(level.orders) == 0 {
		return nil
	}
	return level.orders[0]
}

// BestBid returns the highest priority buy order or nil.
func (ob *OrderBook) BestBid() *Order {
	return ob.best(SideBuy)
}

// BestAsk returns the highest priority sell order or nil.
func (ob *OrderBook) BestAsk() *Order {
	return ob.best(SideSell)
}

func (ob *OrderBook) Get(id string) (*Order, bool) {
	order, exists := ob.orders[id]
	return order, exists
}

func (ob *OrderBook) Len() int {
	return len(ob.orders)
}

// Depth aggregates up to n price levels of one side, best first. Individual
// orders are not exposed.
func (ob *OrderBook) Depth(s Side, n int) []Level {
	if n <= 0 {
		return []Level{}
	}
	levels := make([]Level, 0, min(n, ob.side(s).Len()))
	ob.side(s).Ascend(func(level *priceLevel) bool {
		if len(levels) >= n {
			return false
		}
		levels = append(levels, Level{
			Price:  level.price,
			Amount: level.remaining(),
		})
		return true
	})
	return levels
}

// crossed reports whether both sides are populated and the best bid is not
// strictly below the best ask.
func (ob *OrderBook) crossed() bool {
	bid, ask := ob.BestBid(), ob.BestAsk()
	if bid == nil || ask == nil {
		return false
	}
	return bid.Price.GreaterThanOrEqual(ask.Price)
}
