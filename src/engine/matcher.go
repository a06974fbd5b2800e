package engine

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"spot-engine/src/tape"
)

type Option func(*Engine)

func WithFeeRate(rate decimal.Decimal) Option {
	return func(e *Engine) { e.feeRate = rate }
}

func WithJournal(j Journal) Option {
	return func(e *Engine) {
		if j != nil {
			e.journal = j
		}
	}
}

func WithFeeSink(s FeeSink) Option {
	return func(e *Engine) {
		if s != nil {
			e.fees = s
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(next func() string) Option {
	return func(e *Engine) { e.newID = next }
}

// Engine is the matching engine of a single instrument and the only writer of
// its order book and trade tape. Mutations are serialised by mu.
type Engine struct {
	instrument string
	book       *OrderBook
	tape       *tape.Tape[Trade]
	mu         sync.RWMutex

	seq         uint64
	lastTradeAt time.Time
	halted      atomic.Bool

	feeRate decimal.Decimal
	journal Journal
	fees    FeeSink
	now     func() time.Time
	newID   func() string
}

func NewEngine(instrument string, opts ...Option) *Engine {
	e := &Engine{
		instrument: instrument,
		book:       NewOrderBook(instrument),
		tape:       tape.New[Trade](),
		feeRate:    DefaultFeeRate,
		journal:    nopJournal{},
		fees:       nopFeeSink{},
		now:        time.Now,
		newID:      newUUID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func newUUID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func (e *Engine) Instrument() string {
	return e.instrument
}

func (e *Engine) FeeRate() decimal.Decimal {
	return e.feeRate
}

func (e *Engine) Halted() bool {
	return e.halted.Load()
}

// Tape exposes the read side of the trade tape.
func (e *Engine) Tape() tape.Reader[Trade] {
	return e.tape
}

// Bounds on decimal input, checked before anything touches the book.
const (
	MaxDecimalExponent = 18
	MaxDecimalDigits   = 38
)

func checkMagnitude(field string, d decimal.Decimal) error {
	exp := d.Exponent()
	if exp > MaxDecimalExponent || exp < -MaxDecimalExponent || d.NumDigits() > MaxDecimalDigits {
		return &ValidationError{Field: field, Message: "is out of range"}
	}
	return nil
}

func validate(req OrderRequest) error {
	if !req.Side.Valid() {
		return &ValidationError{Field: "side", Message: "must be BUY or SELL"}
	}
	if !req.Kind.Valid() {
		return &ValidationError{Field: "type", Message: "must be LIMIT or MARKET"}
	}
	if err := checkMagnitude("amount", req.Amount); err != nil {
		return err
	}
	if err := checkMagnitude("price", req.Price); err != nil {
		return err
	}
	if !req.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be positive"}
	}
	// edge case: price required for limit orders, meaningless for market orders
	if req.Kind == KindLimit && !req.Price.IsPositive() {
		return &ValidationError{Field: "price", Message: "must be positive for LIMIT orders"}
	}
	if req.Kind == KindMarket && !req.Price.IsZero() {
		return &ValidationError{Field: "price", Message: "must be omitted for MARKET orders"}
	}
	return nil
}

// PlaceOrder validates, matches and, for a limit order with an unfilled
// remainder, rests the order. Invalid input and a market order with nothing to
// match are rejected without touching the book.
func (e *Engine) PlaceOrder(ctx context.Context, req OrderRequest) (*PlaceResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.halted.Load() {
		return nil, ErrHalted
	}

	result, events, err := e.place(req)
	if err != nil {
		return nil, err
	}

	// fee notifications leave after the lock is released
	for _, ev := range events {
		e.fees.Publish(ev)
	}
	return result, nil
}

func (e *Engine) place(req OrderRequest) (*PlaceResult, []FeeEvent, error) {
	e.mu.Lock()
	defer e.unlock()

	// edge case: re-check under the lock, a concurrent operation may have halted us
	if e.halted.Load() {
		return nil, nil, ErrHalted
	}

	// edge case: a market order with nothing opposite is rejected before it gets an id
	if req.Kind == KindMarket && e.book.best(req.Side.Opposite()) == nil {
		return nil, nil, &NoLiquidityError{Instrument: e.instrument, Side: req.Side}
	}

	now := e.now()
	e.seq++
	order := &Order{
		ID:         e.newID(),
		Instrument: e.instrument,
		Owner:      req.Owner,
		Side:       req.Side,
		Kind:       req.Kind,
		Price:      req.Price,
		Amount:     req.Amount,
		Filled:     decimal.Zero,
		Status:     StatusOpen,
		Sequence:   e.seq,
		CreatedAt:  now,
	}

	trades, events, makers := e.match(order, now)

	if order.Kind == KindLimit && order.Remaining().IsPositive() {
		if err := e.book.Insert(order); err != nil {
			panic(&InvariantViolation{Instrument: e.instrument, Reason: "resting remainder rejected: " + err.Error()})
		}
	}
	e.journal.RecordOrder(*order)

	e.checkInvariants(append(makers, order))

	return &PlaceResult{Order: *order, Trades: trades}, events, nil
}

func crosses(taker, maker *Order) bool {
	if taker.Kind == KindMarket {
		return true
	}
	if taker.Side == SideBuy {
		return taker.Price.GreaterThanOrEqual(maker.Price)
	}
	return taker.Price.LessThanOrEqual(maker.Price)
}

// match fills the taker against the opposite side in price-time priority,
// always at the maker's price.
func (e *Engine) match(taker *Order, now time.Time) ([]Trade, []FeeEvent, []*Order) {
	trades := make([]Trade, 0)
	var events []FeeEvent
	var makers []*Order

	for taker.Remaining().IsPositive() {
		maker := e.book.best(taker.Side.Opposite())
		if maker == nil || !crosses(taker, maker) {
			break
		}

		amount := decimal.Min(taker.Remaining(), maker.Remaining())
		fee := Fee(e.feeRate, maker.Price, amount)
		trade := Trade{
			ID:           e.newID(),
			Instrument:   e.instrument,
			Price:        maker.Price,
			Amount:       amount,
			TakerSide:    taker.Side,
			MakerOrderID: maker.ID,
			TakerOrderID: taker.ID,
			Fee:          fee,
			Timestamp:    e.tradeTime(now),
		}

		taker.fill(amount)
		maker.fill(amount)
		if maker.Status == StatusFilled {
			e.book.Remove(maker.ID)
		}

		if err := e.tape.Append(trade); err != nil {
			panic(&InvariantViolation{Instrument: e.instrument, Reason: "trade tape: " + err.Error()})
		}
		e.journal.RecordTrade(trade)
		e.journal.RecordOrder(*maker)

		trades = append(trades, trade)
		makers = append(makers, maker)
		events = append(events, FeeEvent{
			TradeID:    trade.ID,
			Instrument: e.instrument,
			Payer:      taker.Owner,
			OrderID:    taker.ID,
			Notional:   trade.Price.Mul(trade.Amount),
			Rate:       e.feeRate,
			Fee:        fee,
			Timestamp:  trade.Timestamp,
		})
	}
	return trades, events, makers
}

// tradeTime keeps trade timestamps non-decreasing even if the wall clock
// steps backwards.
func (e *Engine) tradeTime(now time.Time) time.Time {
	if now.Before(e.lastTradeAt) {
		return e.lastTradeAt
	}
	e.lastTradeAt = now
	return now
}

// CancelOrder removes a resting order. It returns false when the id is not
// resting here, which includes orders that are already filled or cancelled.
func (e *Engine) CancelOrder(ctx context.Context, id string) bool {
	if ctx.Err() != nil {
		return false
	}

	e.mu.Lock()
	defer e.unlock()

	order, ok := e.book.Remove(id)
	if !ok {
		return false
	}
	order.Status = StatusCancelled
	e.journal.RecordOrder(*order)

	if !e.halted.Load() {
		e.checkInvariants(nil)
	}
	return true
}

// Order returns a copy of a resting order.
func (e *Engine) Order(id string) (Order, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	order, ok := e.book.Get(id)
	if !ok {
		return Order{}, false
	}
	return *order, true
}

// Depth returns up to n aggregated levels per side from one consistent view
// of the book.
func (e *Engine) Depth(n int) (bids, asks []Level) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.book.Depth(SideBuy, n), e.book.Depth(SideSell, n)
}

// Trades returns up to n trades, newest first.
func (e *Engine) Trades(n int) []Trade {
	return e.tape.Latest(n)
}

// OrdersByOwner returns copies of the owner's resting orders.
func (e *Engine) OrdersByOwner(owner string) []Order {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []Order
	for _, order := range e.book.orders {
		if order.Owner == owner {
			out = append(out, *order)
		}
	}
	return out
}

func (e *Engine) RestingOrders() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.Len()
}

// Restore rebuilds the book and tape from journaled state. It must run before
// the engine takes traffic.
func (e *Engine) Restore(orders []Order, trades []Trade) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	resting := make([]Order, len(orders))
	copy(resting, orders)
	sort.Slice(resting, func(i, j int) bool {
		return resting[i].Sequence < resting[j].Sequence
	})

	for i := range resting {
		order := resting[i]
		if err := e.book.Insert(&order); err != nil {
			return err
		}
		if order.Sequence > e.seq {
			e.seq = order.Sequence
		}
	}
	if e.book.crossed() {
		return &InvariantViolation{Instrument: e.instrument, Reason: "restored book is crossed"}
	}

	if err := e.tape.Load(trades); err != nil {
		return err
	}
	if latest := e.tape.Latest(1); len(latest) == 1 {
		e.lastTradeAt = latest[0].Timestamp
	}

	log.Info().
		Str("instrument", e.instrument).
		Int("orders", len(resting)).
		Int("trades", len(trades)).
		Uint64("sequence", e.seq).
		Msg("Instrument restored")
	return nil
}

// checkInvariants panics when the operation left the book crossed or broke
// conservation on an order it touched.
func (e *Engine) checkInvariants(touched []*Order) {
	if e.book.crossed() {
		bid, ask := e.book.BestBid(), e.book.BestAsk()
		panic(&InvariantViolation{
			Instrument: e.instrument,
			Reason:     "resting cross bid=" + bid.Price.String() + " ask=" + ask.Price.String(),
		})
	}
	for _, o := range touched {
		if o.Filled.IsNegative() || o.Filled.GreaterThan(o.Amount) {
			panic(&InvariantViolation{
				Instrument: e.instrument,
				Reason:     "order " + o.ID + " filled " + o.Filled.String() + " of " + o.Amount.String(),
			})
		}
		if _, resting := e.book.Get(o.ID); resting && o.Status.Terminal() {
			panic(&InvariantViolation{
				Instrument: e.instrument,
				Reason:     "terminal order " + o.ID + " still resting",
			})
		}
	}
}

// unlock releases the write lock. A panicking invariant check halts the
// instrument and raises the alarm before the panic continues.
func (e *Engine) unlock() {
	if r := recover(); r != nil {
		if v, ok := r.(*InvariantViolation); ok {
			e.halted.Store(true)
			log.Error().
				Bool("alarm", true).
				Str("instrument", v.Instrument).
				Str("reason", v.Reason).
				Msg("Matching invariant violated, instrument halted")
		}
		e.mu.Unlock()
		panic(r)
	}
	e.mu.Unlock()
}
