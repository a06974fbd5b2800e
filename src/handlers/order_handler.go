package handlers

import (
	"errors"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"spot-engine/src/config"
	"spot-engine/src/engine"
	"spot-engine/src/middleware"
	"spot-engine/src/models"
	"spot-engine/src/notify"
)

// OrderHistory looks up orders that are no longer resting.
type OrderHistory interface {
	Order(id string) (engine.Order, bool, error)
	OrdersByOwner(owner string) ([]engine.Order, error)
}

// FeeStats reports fee notification delivery counters.
type FeeStats interface {
	Stats() notify.Stats
}

type OrderHandler struct {
	Router    *engine.Router
	History   OrderHistory
	Fees      FeeStats
	Limits    config.LimitsConfig
	StartTime time.Time
	Now       func() time.Time

	OrdersReceived  int64
	OrdersRejected  int64
	OrdersMatched   int64
	OrdersCancelled int64
	TradesExecuted  int64

	latencies *latencyWindow
}

func NewOrderHandler(router *engine.Router, limits config.LimitsConfig, maxLatencies int) *OrderHandler {
	return &OrderHandler{
		Router:    router,
		Limits:    limits,
		StartTime: time.Now(),
		Now:       time.Now,
		latencies: newLatencyWindow(maxLatencies),
	}
}

func errorResponse(c *fiber.Ctx, status int, reason, message string) error {
	return c.Status(status).JSON(models.ErrorResponse{
		Reason: reason,
		Error:  message,
	})
}

func (h *OrderHandler) SubmitOrder(c *fiber.Ctx) error {
	var req models.SubmitOrderRequest

	if err := c.BodyParser(&req); err != nil {
		log.Warn().
			Err(err).
			Str("ip", c.IP()).
			Str("path", c.Path()).
			Msg("Invalid request: malformed JSON")
		return errorResponse(c, fiber.StatusBadRequest, models.ReasonInvalidInput, "Invalid request: malformed JSON")
	}

	owner := middleware.AccountID(c)
	orderReq := engine.OrderRequest{
		Owner:  owner,
		Side:   engine.Side(strings.ToUpper(req.Side)),
		Kind:   engine.Kind(strings.ToUpper(req.Type)),
		Price:  req.Price,
		Amount: req.Amount,
	}

	atomic.AddInt64(&h.OrdersReceived, 1)
	startTime := time.Now()

	result, err := h.Router.PlaceOrder(c.UserContext(), req.Instrument, orderReq)

	h.latencies.record(time.Since(startTime))

	if err != nil {
		atomic.AddInt64(&h.OrdersRejected, 1)
		return h.rejectOrder(c, req, err)
	}

	order := result.Order
	trades := make([]models.TradeInfo, 0, len(result.Trades))
	for _, trade := range result.Trades {
		trades = append(trades, toTradeInfo(trade))
	}

	if len(result.Trades) > 0 {
		atomic.AddInt64(&h.OrdersMatched, 1)
	}
	atomic.AddInt64(&h.TradesExecuted, int64(len(result.Trades)))

	log.Info().
		Str("order_id", order.ID).
		Str("instrument", order.Instrument).
		Str("account_id", owner).
		Str("side", string(order.Side)).
		Str("type", string(order.Kind)).
		Str("price", order.Price.String()).
		Str("amount", order.Amount.String()).
		Str("filled", order.Filled.String()).
		Str("status", string(order.Status)).
		Int("trades_count", len(result.Trades)).
		Msg("Order processed")

	response := models.SubmitOrderResponse{
		Order:  toOrderInfo(order),
		Trades: trades,
	}

	switch order.Status {
	case engine.StatusOpen:
		return c.Status(fiber.StatusCreated).JSON(response)
	case engine.StatusPartiallyFilled:
		return c.Status(fiber.StatusAccepted).JSON(response)
	default:
		return c.Status(fiber.StatusOK).JSON(response)
	}
}

func (h *OrderHandler) rejectOrder(c *fiber.Ctx, req models.SubmitOrderRequest, err error) error {
	var validationErr *engine.ValidationError
	switch {
	case errors.As(err, &validationErr):
		log.Warn().
			Err(err).
			Str("instrument", req.Instrument).
			Str("side", req.Side).
			Str("type", req.Type).
			Str("ip", c.IP()).
			Msg("Invalid order request")
		return errorResponse(c, fiber.StatusBadRequest, models.ReasonInvalidInput, err.Error())

	case errors.Is(err, engine.ErrNoLiquidity):
		log.Warn().
			Str("instrument", req.Instrument).
			Str("side", req.Side).
			Str("amount", req.Amount.String()).
			Msg("No liquidity for market order")
		return errorResponse(c, fiber.StatusUnprocessableEntity, models.ReasonNoLiquidity, err.Error())

	case errors.Is(err, engine.ErrHalted):
		return errorResponse(c, fiber.StatusServiceUnavailable, models.ReasonHalted, "Instrument halted")

	default:
		log.Error().
			Err(err).
			Str("instrument", req.Instrument).
			Msg("Error matching order")
		return errorResponse(c, fiber.StatusInternalServerError, models.ReasonInternal, "Internal server error")
	}
}

func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	orderID := c.Params("id")
	caller := middleware.AccountID(c)

	// edge case: only the owner may cancel a resting order
	if order, ok := h.Router.FindOrder(orderID); ok && order.Owner != "" && order.Owner != caller {
		log.Warn().
			Str("order_id", orderID).
			Str("account_id", caller).
			Msg("Cancel order: caller does not own order")
		return errorResponse(c, fiber.StatusForbidden, models.ReasonForbidden, "Order belongs to another account")
	}

	cancelled := h.Router.CancelOrder(c.UserContext(), orderID)
	if cancelled {
		atomic.AddInt64(&h.OrdersCancelled, 1)
	}

	log.Info().
		Str("order_id", orderID).
		Str("account_id", caller).
		Bool("cancelled", cancelled).
		Msg("Cancel order")

	return c.Status(fiber.StatusOK).JSON(models.CancelOrderResponse{
		OrderID:   orderID,
		Cancelled: cancelled,
	})
}

func (h *OrderHandler) GetOrderStatus(c *fiber.Ctx) error {
	orderID := c.Params("id")

	if order, ok := h.Router.FindOrder(orderID); ok {
		return c.Status(fiber.StatusOK).JSON(toOrderInfo(order))
	}

	if h.History != nil {
		order, ok, err := h.History.Order(orderID)
		if err != nil {
			log.Error().Err(err).Str("order_id", orderID).Msg("Order history lookup failed")
			return errorResponse(c, fiber.StatusInternalServerError, models.ReasonInternal, "Internal server error")
		}
		if ok {
			return c.Status(fiber.StatusOK).JSON(toOrderInfo(order))
		}
	}

	return errorResponse(c, fiber.StatusNotFound, models.ReasonNotFound, "Order not found")
}

// statusFilters maps the status query value to the statuses it selects.
// "open" means resting: untouched or partially filled and still in the book.
var statusFilters = map[string][]engine.Status{
	"open":             {engine.StatusOpen, engine.StatusPartiallyFilled},
	"partially_filled": {engine.StatusPartiallyFilled},
	"filled":           {engine.StatusFilled},
	"cancelled":        {engine.StatusCancelled},
	"all":              nil,
}

// ListOrders returns the caller's orders, newest first. status=open reads the
// live books; every other filter also reads the journaled history.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	owner := middleware.AccountID(c)
	status := strings.ToLower(c.Query("status", "open"))
	limit := queryLimit(c, "limit", h.Limits.DefaultOrders, h.Limits.MaxOrders)

	wanted, ok := statusFilters[status]
	if !ok {
		return errorResponse(c, fiber.StatusBadRequest, models.ReasonInvalidInput,
			"status must be one of open, partially_filled, filled, cancelled, all")
	}

	orders := h.Router.OrdersByOwner(owner)
	if status != "open" && h.History != nil {
		history, err := h.History.OrdersByOwner(owner)
		if err != nil {
			log.Error().Err(err).Str("account_id", owner).Msg("Order history scan failed")
			return errorResponse(c, fiber.StatusInternalServerError, models.ReasonInternal, "Internal server error")
		}
		orders = mergeOrders(history, orders)
	}

	response := models.OrdersResponse{
		Status: status,
		Orders: make([]models.OrderInfo, 0, min(limit, len(orders))),
	}
	for _, order := range orders {
		if len(response.Orders) >= limit {
			break
		}
		if wanted == nil || slices.Contains(wanted, order.Status) {
			response.Orders = append(response.Orders, toOrderInfo(order))
		}
	}
	return c.Status(fiber.StatusOK).JSON(response)
}

// mergeOrders overlays live book state on journaled history and sorts the
// result newest first. The journal is written asynchronously, so live wins.
func mergeOrders(history, live []engine.Order) []engine.Order {
	byID := make(map[string]int, len(history)+len(live))
	merged := make([]engine.Order, 0, len(history)+len(live))
	for _, set := range [][]engine.Order{history, live} {
		for _, order := range set {
			if i, seen := byID[order.ID]; seen {
				merged[i] = order
				continue
			}
			byID[order.ID] = len(merged)
			merged = append(merged, order)
		}
	}
	engine.SortNewestFirst(merged)
	return merged
}

func toOrderInfo(o engine.Order) models.OrderInfo {
	return models.OrderInfo{
		OrderID:    o.ID,
		Instrument: o.Instrument,
		Side:       string(o.Side),
		Type:       string(o.Kind),
		Price:      o.Price,
		Amount:     o.Amount,
		Filled:     o.Filled,
		Remaining:  o.Remaining(),
		Status:     string(o.Status),
		Sequence:   o.Sequence,
		CreatedAt:  o.CreatedAt.UnixMilli(),
	}
}

func toTradeInfo(t engine.Trade) models.TradeInfo {
	return models.TradeInfo{
		TradeID:      t.ID,
		Instrument:   t.Instrument,
		Price:        t.Price,
		Amount:       t.Amount,
		TakerSide:    string(t.TakerSide),
		MakerOrderID: t.MakerOrderID,
		TakerOrderID: t.TakerOrderID,
		Fee:          t.Fee,
		Timestamp:    t.Timestamp.UnixMilli(),
	}
}
