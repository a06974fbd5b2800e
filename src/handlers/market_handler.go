package handlers

import (
	"github.com/gofiber/fiber/v2"

	"spot-engine/src/candle"
	"spot-engine/src/engine"
	"spot-engine/src/models"
)

// queryLimit reads a positive integer query parameter, falling back to def
// and capping at max.
func queryLimit(c *fiber.Ctx, key string, def, max int) int {
	n := c.QueryInt(key, def)
	if n <= 0 {
		n = def
	}
	// edge case: enforce maximum limit
	if n > max {
		n = max
	}
	return n
}

func toLevels(levels []engine.Level) []models.PriceLevelInfo {
	out := make([]models.PriceLevelInfo, 0, len(levels))
	for _, level := range levels {
		out = append(out, models.PriceLevelInfo{
			Price:  level.Price,
			Amount: level.Amount,
		})
	}
	return out
}

func (h *OrderHandler) ListInstruments(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(models.InstrumentsResponse{
		Instruments: h.Router.Instruments(),
	})
}

func (h *OrderHandler) GetOrderBook(c *fiber.Ctx) error {
	instrument := c.Params("instrument")
	depth := queryLimit(c, "depth", h.Limits.DefaultDepth, h.Limits.MaxDepth)

	response := models.OrderBookResponse{
		Instrument: instrument,
		Timestamp:  h.Now().UnixMilli(),
		Bids:       []models.PriceLevelInfo{},
		Asks:       []models.PriceLevelInfo{},
	}

	// edge case: reads never create an instrument
	if e, ok := h.Router.Lookup(instrument); ok {
		bids, asks := e.Depth(depth)
		response.Bids = toLevels(bids)
		response.Asks = toLevels(asks)
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

func (h *OrderHandler) GetTrades(c *fiber.Ctx) error {
	instrument := c.Params("instrument")
	limit := queryLimit(c, "limit", h.Limits.DefaultTrades, h.Limits.MaxTrades)

	response := models.TradesResponse{
		Instrument: instrument,
		Trades:     []models.TradeInfo{},
	}
	if e, ok := h.Router.Lookup(instrument); ok {
		for _, trade := range e.Trades(limit) {
			response.Trades = append(response.Trades, toTradeInfo(trade))
		}
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

func (h *OrderHandler) GetCandles(c *fiber.Ctx) error {
	instrument := c.Params("instrument")
	limit := queryLimit(c, "limit", h.Limits.DefaultCandles, h.Limits.MaxCandles)

	interval, err := candle.GetInterval(c.Query("interval", candle.Interval1m.Name))
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, models.ReasonInvalidInput, err.Error())
	}

	response := models.CandlesResponse{
		Instrument: instrument,
		Interval:   interval.Name,
		Candles:    []models.CandleInfo{},
	}
	if e, ok := h.Router.Lookup(instrument); ok {
		for _, bar := range candle.Aggregate(e.Tape(), interval, limit, h.Now()) {
			response.Candles = append(response.Candles, models.CandleInfo{
				BucketStart: bar.BucketStart.UnixMilli(),
				Open:        bar.Open,
				High:        bar.High,
				Low:         bar.Low,
				Close:       bar.Close,
				Volume:      bar.Volume,
				Trades:      bar.Trades,
				Closed:      bar.Closed,
			})
		}
	}

	return c.Status(fiber.StatusOK).JSON(response)
}
