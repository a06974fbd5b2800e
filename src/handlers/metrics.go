package handlers

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"

	"spot-engine/src/models"
)

// latencyWindow keeps the most recent matching latencies for percentiles.
type latencyWindow struct {
	mu      sync.RWMutex
	samples []time.Duration
	max     int
}

func newLatencyWindow(max int) *latencyWindow {
	if max <= 0 {
		max = 10000
	}
	return &latencyWindow{
		samples: make([]time.Duration, 0, max),
		max:     max,
	}
}

func (w *latencyWindow) record(latency time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = append(w.samples, latency)

	// edge case: maintain rolling window by removing oldest measurements
	if len(w.samples) > w.max {
		w.samples = w.samples[len(w.samples)-w.max:]
	}
}

func (w *latencyWindow) percentiles() (p50, p99, p999 float64) {
	w.mu.RLock()
	sorted := make([]time.Duration, len(w.samples))
	copy(sorted, w.samples)
	w.mu.RUnlock()

	if len(sorted) == 0 {
		return 0, 0, 0
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	at := func(q float64) float64 {
		idx := int(float64(len(sorted)) * q)
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		return float64(sorted[idx].Nanoseconds()) / 1e6
	}
	return at(0.50), at(0.99), at(0.999)
}

func (h *OrderHandler) HealthCheck(c *fiber.Ctx) error {
	stats := h.Router.Stats()

	status := "healthy"
	if stats.Halted > 0 {
		status = "degraded"
	}

	return c.Status(fiber.StatusOK).JSON(models.HealthResponse{
		Status:        status,
		UptimeSeconds: int64(time.Since(h.StartTime).Seconds()),
		Instruments:   stats.Instruments,
		Halted:        stats.Halted,
	})
}

func (h *OrderHandler) Metrics(c *fiber.Ctx) error {
	stats := h.Router.Stats()
	p50, p99, p999 := h.latencies.percentiles()

	response := models.MetricsResponse{
		OrdersReceived:         atomic.LoadInt64(&h.OrdersReceived),
		OrdersRejected:         atomic.LoadInt64(&h.OrdersRejected),
		OrdersMatched:          atomic.LoadInt64(&h.OrdersMatched),
		OrdersCancelled:        atomic.LoadInt64(&h.OrdersCancelled),
		OrdersInBook:           int64(stats.RestingOrders),
		TradesExecuted:         atomic.LoadInt64(&h.TradesExecuted),
		LatencyP50Ms:           p50,
		LatencyP99Ms:           p99,
		LatencyP999Ms:          p999,
		ThroughputOrdersPerSec: h.throughput(),
	}
	if h.Fees != nil {
		fees := h.Fees.Stats()
		response.FeesDelivered = fees.Delivered
		response.FeesDropped = fees.Dropped
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

func (h *OrderHandler) throughput() float64 {
	uptime := time.Since(h.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&h.OrdersReceived)) / uptime
}
