package candle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetInterval(t *testing.T) {
	for _, name := range IntervalNames() {
		interval, err := GetInterval(name)
		require.NoError(t, err)
		assert.Equal(t, name, interval.Name)
	}

	_, err := GetInterval("2m")
	assert.EqualError(t, err, "unsupported interval: 2m")
}

func TestBucketStart(t *testing.T) {
	ts := time.Date(2026, 4, 16, 13, 47, 31, 500, time.UTC) // a Thursday

	assert.Equal(t, time.Date(2026, 4, 16, 13, 47, 0, 0, time.UTC), Interval1m.BucketStart(ts))
	assert.Equal(t, time.Date(2026, 4, 16, 13, 45, 0, 0, time.UTC), Interval15m.BucketStart(ts))
	assert.Equal(t, time.Date(2026, 4, 16, 12, 0, 0, 0, time.UTC), Interval4h.BucketStart(ts))
	assert.Equal(t, time.Date(2026, 4, 16, 0, 0, 0, 0, time.UTC), Interval1d.BucketStart(ts))
	assert.Equal(t, time.Date(2026, 4, 13, 0, 0, 0, 0, time.UTC), Interval1w.BucketStart(ts))

	local := ts.In(time.FixedZone("UTC+3", 3*60*60))
	assert.Equal(t, Interval1h.BucketStart(ts), Interval1h.BucketStart(local))
}
