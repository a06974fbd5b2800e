package models

import (
	"github.com/shopspring/decimal"
)

// Decimals are accepted as JSON strings or numbers and always written as strings.

type SubmitOrderRequest struct {
	Instrument string          `json:"instrument"`
	Side       string          `json:"side"`
	Type       string          `json:"type"`
	Price      decimal.Decimal `json:"price"` // required for LIMIT, omitted for MARKET
	Amount     decimal.Decimal `json:"amount"`
}

type SubmitOrderResponse struct {
	Order  OrderInfo   `json:"order"`
	Trades []TradeInfo `json:"trades"`
}

type OrderInfo struct {
	OrderID    string          `json:"order_id"`
	Instrument string          `json:"instrument"`
	Side       string          `json:"side"`
	Type       string          `json:"type"`
	Price      decimal.Decimal `json:"price"`
	Amount     decimal.Decimal `json:"amount"`
	Filled     decimal.Decimal `json:"filled"`
	Remaining  decimal.Decimal `json:"remaining"`
	Status     string          `json:"status"`
	Sequence   uint64          `json:"sequence"`
	CreatedAt  int64           `json:"created_at"` // unix timestamp in milliseconds
}

type TradeInfo struct {
	TradeID      string          `json:"trade_id"`
	Instrument   string          `json:"instrument"`
	Price        decimal.Decimal `json:"price"`
	Amount       decimal.Decimal `json:"amount"`
	TakerSide    string          `json:"taker_side"`
	MakerOrderID string          `json:"maker_order_id"`
	TakerOrderID string          `json:"taker_order_id"`
	Fee          decimal.Decimal `json:"fee"`
	Timestamp    int64           `json:"timestamp"` // unix timestamp in milliseconds
}

type OrdersResponse struct {
	Status string      `json:"status"`
	Orders []OrderInfo `json:"orders"` // newest first
}

type InstrumentsResponse struct {
	Instruments []string `json:"instruments"`
}

type CancelOrderResponse struct {
	OrderID   string `json:"order_id"`
	Cancelled bool   `json:"cancelled"`
}

// ErrorResponse carries a machine readable reason next to the message.
type ErrorResponse struct {
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

const (
	ReasonInvalidInput = "invalid_input"
	ReasonNoLiquidity  = "no_liquidity"
	ReasonHalted       = "halted"
	ReasonNotFound     = "not_found"
	ReasonForbidden    = "forbidden"
	ReasonInternal     = "internal"
)

type OrderBookResponse struct {
	Instrument string           `json:"instrument"`
	Timestamp  int64            `json:"timestamp"` // unix timestamp in milliseconds
	Bids       []PriceLevelInfo `json:"bids"`      // sorted descending (highest first)
	Asks       []PriceLevelInfo `json:"asks"`      // sorted ascending (lowest first)
}

type PriceLevelInfo struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"` // aggregated remaining at this price
}

type TradesResponse struct {
	Instrument string      `json:"instrument"`
	Trades     []TradeInfo `json:"trades"` // newest first
}

type CandleInfo struct {
	BucketStart int64           `json:"bucket_start"` // unix timestamp in milliseconds
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	Volume      decimal.Decimal `json:"volume"`
	Trades      int             `json:"trades"`
	Closed      bool            `json:"closed"`
}

type CandlesResponse struct {
	Instrument string       `json:"instrument"`
	Interval   string       `json:"interval"`
	Candles    []CandleInfo `json:"candles"` // oldest first
}

type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Instruments   int    `json:"instruments"`
	Halted        int    `json:"halted_instruments"`
}

type MetricsResponse struct {
	OrdersReceived         int64   `json:"orders_received"`
	OrdersRejected         int64   `json:"orders_rejected"`
	OrdersMatched          int64   `json:"orders_matched"`
	OrdersCancelled        int64   `json:"orders_cancelled"`
	OrdersInBook           int64   `json:"orders_in_book"`
	TradesExecuted         int64   `json:"trades_executed"`
	FeesDelivered          int64   `json:"fees_delivered"`
	FeesDropped            int64   `json:"fees_dropped"`
	LatencyP50Ms           float64 `json:"latency_p50_ms"`
	LatencyP99Ms           float64 `json:"latency_p99_ms"`
	LatencyP999Ms          float64 `json:"latency_p999_ms"`
	ThroughputOrdersPerSec float64 `json:"throughput_orders_per_sec"`
}
