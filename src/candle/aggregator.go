// Package candle derives OHLCV bars from the trade tape. Candles are computed
// on every read and never stored, so they always agree with the tape.
package candle

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"spot-engine/src/engine"
	"spot-engine/src/tape"
)

type Candle struct {
	BucketStart time.Time
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      decimal.Decimal
	Trades      int
	Closed      bool // false while now is still inside the bucket
}

// Aggregate returns the candles of the n most recent buckets up to and
// including the one containing now, oldest first. Buckets without trades are
// omitted, so fewer than n candles may come back.
func Aggregate(reader tape.Reader[engine.Trade], interval Interval, n int, now time.Time) []Candle {
	if n <= 0 || interval.Duration <= 0 {
		return []Candle{}
	}

	current := interval.BucketStart(now)
	to := current.Add(interval.Duration)

	// edge case: a window wider than time.Duration can express starts at the
	// beginning of the tape
	var from time.Time
	if back := int64(n - 1); back <= math.MaxInt64/int64(interval.Duration) {
		from = current.Add(-time.Duration(back) * interval.Duration)
	}

	trades := reader.Range(from, to)
	candles := make([]Candle, 0, min(n, len(trades)))
	for _, trade := range trades {
		start := interval.BucketStart(trade.Timestamp)

		last := len(candles) - 1
		if last < 0 || !candles[last].BucketStart.Equal(start) {
			candles = append(candles, Candle{
				BucketStart: start,
				Open:        trade.Price,
				High:        trade.Price,
				Low:         trade.Price,
				Close:       trade.Price,
				Volume:      trade.Amount,
				Trades:      1,
				Closed:      !now.Before(start.Add(interval.Duration)),
			})
			continue
		}

		c := &candles[last]
		c.High = decimal.Max(c.High, trade.Price)
		c.Low = decimal.Min(c.Low, trade.Price)
		c.Close = trade.Price
		c.Volume = c.Volume.Add(trade.Amount)
		c.Trades++
	}
	return candles
}
