package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func restingOrder(id string, side Side, price, amount string, seq uint64) *Order {
	return &Order{
		ID:         id,
		Instrument: "BTC/USDT",
		Side:       side,
		Kind:       KindLimit,
		Price:      dec(price),
		Amount:     dec(amount),
		Filled:     decimal.Zero,
		Status:     StatusOpen,
		Sequence:   seq,
	}
}

// TestOrderBookBestPrices checks bids are ordered high to low and asks low to high.
func TestOrderBookBestPrices(t *testing.T) {
	ob := NewOrderBook("BTC/USDT")

	assert.Nil(t, ob.BestBid())
	assert.Nil(t, ob.BestAsk())

	require.NoError(t, ob.Insert(restingOrder("b1", SideBuy, "99.5", "1", 1)))
	require.NoError(t, ob.Insert(restingOrder("b2", SideBuy, "100", "1", 2)))
	require.NoError(t, ob.Insert(restingOrder("a1", SideSell, "101.25", "1", 3)))
	require.NoError(t, ob.Insert(restingOrder("a2", SideSell, "101", "1", 4)))

	assert.Equal(t, "b2", ob.BestBid().ID)
	assert.Equal(t, "a2", ob.BestAsk().ID)
	assert.Equal(t, 4, ob.Len())
	assert.False(t, ob.crossed())
}

// TestOrderBookTimePriority checks orders at one price are served in arrival order.
func TestOrderBookTimePriority(t *testing.T) {
	ob := NewOrderBook("BTC/USDT")

	require.NoError(t, ob.Insert(restingOrder("first", SideSell, "10", "1", 1)))
	require.NoError(t, ob.Insert(restingOrder("second", SideSell, "10", "2", 2)))
	require.NoError(t, ob.Insert(restingOrder("third", SideSell, "10", "3", 3)))

	assert.Equal(t, "first", ob.BestAsk().ID)

	_, ok := ob.Remove("first")
	require.True(t, ok)
	assert.Equal(t, "second", ob.BestAsk().ID)
}

// TestOrderBookRemove checks removal drops empty levels and is a no-op for unknown ids.
func TestOrderBookRemove(t *testing.T) {
	ob := NewOrderBook("BTC/USDT")
	require.NoError(t, ob.Insert(restingOrder("b1", SideBuy, "50", "1", 1)))

	order, ok := ob.Remove("b1")
	require.True(t, ok)
	assert.Equal(t, "b1", order.ID)
	assert.Nil(t, ob.BestBid())
	assert.Empty(t, ob.Depth(SideBuy, 10))

	_, ok = ob.Remove("b1")
	assert.False(t, ok)
	_, ok = ob.Remove("missing")
	assert.False(t, ok)
}

// TestOrderBookInsertRejects checks empty and duplicate orders never rest.
func TestOrderBookInsertRejects(t *testing.T) {
	ob := NewOrderBook("BTC/USDT")

	filled := restingOrder("f1", SideBuy, "10", "1", 1)
	filled.Filled = dec("1")
	assert.ErrorIs(t, ob.Insert(filled), ErrZeroRemaining)

	require.NoError(t, ob.Insert(restingOrder("b1", SideBuy, "10", "1", 2)))
	assert.ErrorIs(t, ob.Insert(restingOrder("b1", SideBuy, "11", "1", 3)), ErrDuplicateOrder)
	assert.Equal(t, 1, ob.Len())
}

// TestOrderBookDepth checks levels aggregate remaining amounts, best first, capped at n.
func TestOrderBookDepth(t *testing.T) {
	ob := NewOrderBook("BTC/USDT")

	partial := restingOrder("b1", SideBuy, "100", "5", 1)
	partial.Filled = dec("2")
	partial.Status = StatusPartiallyFilled
	require.NoError(t, ob.Insert(partial))
	require.NoError(t, ob.Insert(restingOrder("b2", SideBuy, "100", "1.5", 2)))
	require.NoError(t, ob.Insert(restingOrder("b3", SideBuy, "98", "4", 3)))
	require.NoError(t, ob.Insert(restingOrder("b4", SideBuy, "97", "1", 4)))

	levels := ob.Depth(SideBuy, 2)
	require.Len(t, levels, 2)
	assert.True(t, levels[0].Price.Equal(dec("100")))
	assert.True(t, levels[0].Amount.Equal(dec("4.5")))
	assert.True(t, levels[1].Price.Equal(dec("98")))
	assert.True(t, levels[1].Amount.Equal(dec("4")))

	assert.Empty(t, ob.Depth(SideBuy, 0))
	assert.Empty(t, ob.Depth(SideSell, 5))
	assert.Len(t, ob.Depth(SideBuy, 50), 3)
}

// TestOrderBookDecimalLevels checks equal prices with different scales share a level.
func TestOrderBookDecimalLevels(t *testing.T) {
	ob := NewOrderBook("BTC/USDT")

	require.NoError(t, ob.Insert(restingOrder("a1", SideSell, "10.5", "1", 1)))
	require.NoError(t, ob.Insert(restingOrder("a2", SideSell, "10.50", "2", 2)))

	levels := ob.Depth(SideSell, 10)
	require.Len(t, levels, 1)
	assert.True(t, levels[0].Amount.Equal(dec("3")))
}
