package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

type captureSink struct {
	mu     sync.Mutex
	events []FeeEvent
}

func (s *captureSink) Publish(event FeeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

type captureJournal struct {
	mu     sync.Mutex
	orders []Order
	trades []Trade
}

func (j *captureJournal) RecordOrder(order Order) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.orders = append(j.orders, order)
}

func (j *captureJournal) RecordTrade(trade Trade) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, trade)
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("id-%d", n.Add(1))
	}
}

func newTestEngine(opts ...Option) *Engine {
	base := []Option{
		WithIDGenerator(sequentialIDs()),
		WithClock(func() time.Time { return epoch }),
	}
	return NewEngine("BTC/USDT", append(base, opts...)...)
}

func limit(side Side, price, amount string) OrderRequest {
	return OrderRequest{Owner: "acct-1", Side: side, Kind: KindLimit, Price: dec(price), Amount: dec(amount)}
}

func market(side Side, amount string) OrderRequest {
	return OrderRequest{Owner: "acct-2", Side: side, Kind: KindMarket, Amount: dec(amount)}
}

func mustPlace(t *testing.T, e *Engine, req OrderRequest) *PlaceResult {
	t.Helper()
	result, err := e.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	return result
}

// TestPartialThenMarketSweep walks a resting sell through a partial limit fill
// and a market order that takes the rest and discards its own tail.
func TestPartialThenMarketSweep(t *testing.T) {
	e := newTestEngine()

	sell := mustPlace(t, e, limit(SideSell, "10", "5"))
	assert.Equal(t, StatusOpen, sell.Order.Status)
	assert.Empty(t, sell.Trades)
	a := sell.Order.ID

	buy := mustPlace(t, e, limit(SideBuy, "10", "3"))
	require.Len(t, buy.Trades, 1)
	assert.True(t, buy.Trades[0].Price.Equal(dec("10")))
	assert.True(t, buy.Trades[0].Amount.Equal(dec("3")))
	assert.Equal(t, a, buy.Trades[0].MakerOrderID)
	assert.Equal(t, StatusFilled, buy.Order.Status)

	resting, ok := e.Order(a)
	require.True(t, ok)
	assert.Equal(t, StatusPartiallyFilled, resting.Status)
	assert.True(t, resting.Remaining().Equal(dec("2")))

	sweep := mustPlace(t, e, market(SideBuy, "10"))
	require.Len(t, sweep.Trades, 1)
	assert.True(t, sweep.Trades[0].Price.Equal(dec("10")))
	assert.True(t, sweep.Trades[0].Amount.Equal(dec("2")))
	assert.Equal(t, StatusPartiallyFilled, sweep.Order.Status)
	assert.True(t, sweep.Filled().Equal(dec("2")))
	assert.True(t, sweep.Order.Remaining().Equal(dec("8")))

	_, ok = e.Order(a)
	assert.False(t, ok, "filled maker must leave the book")
	_, ok = e.Order(sweep.Order.ID)
	assert.False(t, ok, "market orders never rest")
	assert.Equal(t, 0, e.RestingOrders())

	trades := e.Trades(10)
	require.Len(t, trades, 2)
	assert.Equal(t, sweep.Trades[0].ID, trades[0].ID)
	assert.Equal(t, buy.Trades[0].ID, trades[1].ID)
}

// TestPriceTimePriority checks better prices fill first and equal prices fill
// in sequence order, always at the maker's price.
func TestPriceTimePriority(t *testing.T) {
	e := newTestEngine()

	s1 := mustPlace(t, e, limit(SideSell, "10", "2"))
	s2 := mustPlace(t, e, limit(SideSell, "10", "2"))
	s3 := mustPlace(t, e, limit(SideSell, "9", "2"))
	require.Less(t, s1.Order.Sequence, s2.Order.Sequence)

	result := mustPlace(t, e, limit(SideBuy, "10", "4"))
	require.Len(t, result.Trades, 2)

	assert.Equal(t, s3.Order.ID, result.Trades[0].MakerOrderID)
	assert.True(t, result.Trades[0].Price.Equal(dec("9")))
	assert.Equal(t, s1.Order.ID, result.Trades[1].MakerOrderID)
	assert.True(t, result.Trades[1].Price.Equal(dec("10")))

	remaining, ok := e.Order(s2.Order.ID)
	require.True(t, ok)
	assert.Equal(t, StatusOpen, remaining.Status)
	assert.True(t, remaining.Filled.IsZero())
}

// TestLimitRemainderRests checks an aggressive limit order rests what it could
// not fill without crossing the book.
func TestLimitRemainderRests(t *testing.T) {
	e := newTestEngine()

	mustPlace(t, e, limit(SideSell, "10", "2"))
	result := mustPlace(t, e, limit(SideBuy, "11", "5"))

	require.Len(t, result.Trades, 1)
	assert.True(t, result.Trades[0].Price.Equal(dec("10")), "trade executes at the maker price")
	assert.Equal(t, SideBuy, result.Trades[0].TakerSide)
	assert.Equal(t, StatusPartiallyFilled, result.Order.Status)

	bids, asks := e.Depth(10)
	require.Len(t, bids, 1)
	assert.True(t, bids[0].Price.Equal(dec("11")))
	assert.True(t, bids[0].Amount.Equal(dec("3")))
	assert.Empty(t, asks)
}

// TestSellTakerStopsAtLimit checks a sell taker only matches bids at or above its price.
func TestSellTakerStopsAtLimit(t *testing.T) {
	e := newTestEngine()

	mustPlace(t, e, limit(SideBuy, "12", "1"))
	mustPlace(t, e, limit(SideBuy, "10", "1"))

	result := mustPlace(t, e, limit(SideSell, "11", "5"))
	require.Len(t, result.Trades, 1)
	assert.True(t, result.Trades[0].Price.Equal(dec("12")))

	bids, asks := e.Depth(10)
	require.Len(t, bids, 1)
	require.Len(t, asks, 1)
	assert.True(t, bids[0].Price.LessThan(asks[0].Price))
	assert.True(t, asks[0].Amount.Equal(dec("4")))
}

// TestMarketOrderNoLiquidity checks a market order against an empty side
// changes nothing and consumes no sequence number.
func TestMarketOrderNoLiquidity(t *testing.T) {
	journal := &captureJournal{}
	e := newTestEngine(WithJournal(journal))

	mustPlace(t, e, limit(SideBuy, "10", "1"))

	_, err := e.PlaceOrder(context.Background(), market(SideBuy, "1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoLiquidity)

	var noLiquidity *NoLiquidityError
	require.True(t, errors.As(err, &noLiquidity))
	assert.Equal(t, SideBuy, noLiquidity.Side)

	assert.Equal(t, 1, e.RestingOrders())
	assert.Len(t, journal.orders, 1)
	assert.Zero(t, e.tape.Len())

	next := mustPlace(t, e, limit(SideBuy, "9", "1"))
	assert.Equal(t, uint64(2), next.Order.Sequence)
}

// TestMarketOrderSweepsLevels checks a market order walks price levels until filled.
func TestMarketOrderSweepsLevels(t *testing.T) {
	e := newTestEngine()

	mustPlace(t, e, limit(SideSell, "10", "1"))
	mustPlace(t, e, limit(SideSell, "11", "1"))
	mustPlace(t, e, limit(SideSell, "12", "5"))

	result := mustPlace(t, e, market(SideBuy, "3"))
	require.Len(t, result.Trades, 3)
	assert.Equal(t, StatusFilled, result.Order.Status)
	assert.True(t, result.Trades[2].Price.Equal(dec("12")))
	assert.True(t, result.Trades[2].Amount.Equal(dec("1")))

	_, asks := e.Depth(10)
	require.Len(t, asks, 1)
	assert.True(t, asks[0].Amount.Equal(dec("4")))
}

// TestCancelIsIdempotent checks repeated and late cancels report false and
// change nothing.
func TestCancelIsIdempotent(t *testing.T) {
	journal := &captureJournal{}
	e := newTestEngine(WithJournal(journal))
	ctx := context.Background()

	resting := mustPlace(t, e, limit(SideBuy, "10", "1"))
	assert.True(t, e.CancelOrder(ctx, resting.Order.ID))
	assert.Equal(t, 0, e.RestingOrders())

	recorded := len(journal.orders)
	assert.Equal(t, StatusCancelled, journal.orders[recorded-1].Status)

	for i := 0; i < 3; i++ {
		assert.False(t, e.CancelOrder(ctx, resting.Order.ID))
	}
	assert.Len(t, journal.orders, recorded)

	maker := mustPlace(t, e, limit(SideSell, "10", "1"))
	mustPlace(t, e, limit(SideBuy, "10", "1"))
	assert.False(t, e.CancelOrder(ctx, maker.Order.ID), "filled order cannot be cancelled")
	assert.False(t, e.CancelOrder(ctx, "unknown"))
}

// TestValidationRejectsWithoutStateChange covers malformed order input.
func TestValidationRejectsWithoutStateChange(t *testing.T) {
	tests := []struct {
		name  string
		req   OrderRequest
		field string
	}{
		{"unknown side", OrderRequest{Side: "HOLD", Kind: KindLimit, Price: dec("1"), Amount: dec("1")}, "side"},
		{"unknown kind", OrderRequest{Side: SideBuy, Kind: "STOP", Price: dec("1"), Amount: dec("1")}, "type"},
		{"zero amount", OrderRequest{Side: SideBuy, Kind: KindLimit, Price: dec("1"), Amount: decimal.Zero}, "amount"},
		{"negative amount", OrderRequest{Side: SideSell, Kind: KindLimit, Price: dec("1"), Amount: dec("-2")}, "amount"},
		{"limit without price", OrderRequest{Side: SideBuy, Kind: KindLimit, Amount: dec("1")}, "price"},
		{"limit negative price", OrderRequest{Side: SideBuy, Kind: KindLimit, Price: dec("-1"), Amount: dec("1")}, "price"},
		{"market with price", OrderRequest{Side: SideBuy, Kind: KindMarket, Price: dec("5"), Amount: dec("1")}, "price"},
		{"huge amount exponent", OrderRequest{Side: SideBuy, Kind: KindLimit, Price: dec("10"), Amount: dec("1e50000000")}, "amount"},
		{"tiny amount exponent", OrderRequest{Side: SideBuy, Kind: KindLimit, Price: dec("10"), Amount: dec("1e-19")}, "amount"},
		{"huge price exponent", OrderRequest{Side: SideSell, Kind: KindLimit, Price: dec("1e19"), Amount: dec("1")}, "price"},
		{"too many digits", OrderRequest{Side: SideBuy, Kind: KindLimit, Price: dec("10"), Amount: dec("123456789012345678901234567890123456789")}, "amount"},
		{"zero market price with huge exponent", OrderRequest{Side: SideBuy, Kind: KindMarket, Price: dec("0e99999999"), Amount: dec("1")}, "price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine()
			_, err := e.PlaceOrder(context.Background(), tt.req)

			var invalid *ValidationError
			require.True(t, errors.As(err, &invalid), "got %v", err)
			assert.Equal(t, tt.field, invalid.Field)
			assert.Equal(t, 0, e.RestingOrders())
			assert.Zero(t, e.seq)
		})
	}
}

// TestOutOfRangeDecimalsRejectedQuickly checks a huge exponent is refused in
// validation, before the instrument lock is taken.
func TestOutOfRangeDecimalsRejectedQuickly(t *testing.T) {
	e := newTestEngine()
	mustPlace(t, e, limit(SideSell, "10", "1"))

	done := make(chan error, 1)
	go func() {
		_, err := e.PlaceOrder(context.Background(), limit(SideBuy, "10", "1e50000000"))
		done <- err
	}()

	select {
	case err := <-done:
		var invalid *ValidationError
		require.True(t, errors.As(err, &invalid), "got %v", err)
		assert.Equal(t, "amount", invalid.Field)
	case <-time.After(2 * time.Second):
		t.Fatal("PlaceOrder did not return promptly")
	}

	bids, asks := e.Depth(5)
	assert.Empty(t, bids)
	require.Len(t, asks, 1)

	// bounds are inclusive
	result := mustPlace(t, e, limit(SideBuy, "10", "0.000000000000000001"))
	assert.Len(t, result.Trades, 1)
}

// TestFeesPublishedPerTrade checks every trade carries price * amount * rate
// and the taker is charged.
func TestFeesPublishedPerTrade(t *testing.T) {
	sink := &captureSink{}
	e := newTestEngine(WithFeeRate(dec("0.002")), WithFeeSink(sink))

	mustPlace(t, e, limit(SideSell, "250.5", "2"))
	mustPlace(t, e, limit(SideSell, "251", "1"))
	result := mustPlace(t, e, market(SideBuy, "2.5"))

	require.Len(t, result.Trades, 2)
	assert.True(t, result.Trades[0].Fee.Equal(dec("1.002")))
	assert.True(t, result.Trades[1].Fee.Equal(dec("0.251")))

	require.Len(t, sink.events, 2)
	for i, ev := range sink.events {
		assert.Equal(t, result.Trades[i].ID, ev.TradeID)
		assert.Equal(t, "acct-2", ev.Payer)
		assert.Equal(t, result.Order.ID, ev.OrderID)
		assert.True(t, ev.Rate.Equal(dec("0.002")))
		assert.True(t, ev.Notional.Mul(ev.Rate).Equal(ev.Fee))
	}
}

func TestFee(t *testing.T) {
	assert.True(t, Fee(DefaultFeeRate, dec("10"), dec("3")).Equal(dec("0.03")))
	assert.True(t, Fee(decimal.Zero, dec("10"), dec("3")).IsZero())
}

// TestTradeTimestampsNeverDecrease checks a clock stepping back does not
// reorder the tape.
func TestTradeTimestampsNeverDecrease(t *testing.T) {
	now := epoch
	e := newTestEngine(WithClock(func() time.Time { return now }))

	mustPlace(t, e, limit(SideSell, "10", "5"))
	first := mustPlace(t, e, limit(SideBuy, "10", "1"))

	now = epoch.Add(-time.Minute)
	second := mustPlace(t, e, limit(SideBuy, "10", "1"))

	assert.Equal(t, epoch, first.Trades[0].Timestamp)
	assert.Equal(t, epoch, second.Trades[0].Timestamp)
	assert.Equal(t, 2, e.tape.Len())
}

// TestInvariantViolationHaltsInstrument corrupts the book directly and checks
// the next operation panics, halts the engine and releases the lock.
func TestInvariantViolationHaltsInstrument(t *testing.T) {
	e := newTestEngine()
	// inserted past the matching path, so nothing uncrosses them
	require.NoError(t, e.book.Insert(restingOrder("x-bid", SideBuy, "11", "1", 100)))
	require.NoError(t, e.book.Insert(restingOrder("x-ask", SideSell, "10", "1", 101)))

	assert.Panics(t, func() {
		_, _ = e.PlaceOrder(context.Background(), limit(SideBuy, "5", "1"))
	})
	assert.True(t, e.Halted())

	_, err := e.PlaceOrder(context.Background(), limit(SideBuy, "5", "1"))
	assert.ErrorIs(t, err, ErrHalted)

	bids, _ := e.Depth(5)
	assert.NotEmpty(t, bids, "lock must be released after the panic")
	assert.True(t, e.CancelOrder(context.Background(), "x-bid"))
}

func TestPlaceOrderHonoursContext(t *testing.T) {
	e := newTestEngine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.PlaceOrder(ctx, limit(SideBuy, "10", "1"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, e.CancelOrder(ctx, "id-1"))
	assert.Equal(t, 0, e.RestingOrders())
}

func TestRestore(t *testing.T) {
	e := newTestEngine()

	bid := *restingOrder("bid", SideBuy, "9", "2", 7)
	bid.Filled = dec("0.5")
	bid.Status = StatusPartiallyFilled
	ask := *restingOrder("ask", SideSell, "11", "1", 4)
	trades := []Trade{
		{ID: "t2", Price: dec("10"), Amount: dec("1"), Timestamp: epoch.Add(time.Second)},
		{ID: "t1", Price: dec("10"), Amount: dec("0.5"), Timestamp: epoch},
	}

	require.NoError(t, e.Restore([]Order{bid, ask}, trades))

	bids, asks := e.Depth(5)
	require.Len(t, bids, 1)
	require.Len(t, asks, 1)
	assert.True(t, bids[0].Amount.Equal(dec("1.5")))

	latest := e.Trades(5)
	require.Len(t, latest, 2)
	assert.Equal(t, "t2", latest[0].ID)

	next := mustPlace(t, e, limit(SideBuy, "8", "1"))
	assert.Equal(t, uint64(8), next.Order.Sequence)
}

func TestRestoreRejectsCrossedBook(t *testing.T) {
	e := newTestEngine()

	err := e.Restore([]Order{
		*restingOrder("bid", SideBuy, "11", "1", 1),
		*restingOrder("ask", SideSell, "10", "1", 2),
	}, nil)

	var violation *InvariantViolation
	require.True(t, errors.As(err, &violation))
	assert.False(t, e.Halted())
}

// TestConcurrentMatching hammers one instrument from many goroutines. Every
// order crosses at one price, so the book must drain completely.
func TestConcurrentMatching(t *testing.T) {
	e := NewEngine("ETH/USDT")
	const workers, perWorker = 8, 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				side := SideBuy
				if (w+i)%2 == 1 {
					side = SideSell
				}
				result, err := e.PlaceOrder(context.Background(), limit(side, "100", "1"))
				if assert.NoError(t, err) {
					assert.True(t, result.Order.Filled.LessThanOrEqual(result.Order.Amount))
				}
				e.Depth(1)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker/2, e.tape.Len())
	assert.Equal(t, 0, e.RestingOrders())
	assert.Equal(t, uint64(workers*perWorker), e.seq)
	assert.False(t, e.Halted())
}
