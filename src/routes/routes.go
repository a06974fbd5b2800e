package routes

import (
	"github.com/gofiber/fiber/v2"

	"spot-engine/src/config"
	"spot-engine/src/handlers"
	"spot-engine/src/middleware"
)

func SetupRoutes(app *fiber.App, orderHandler *handlers.OrderHandler, availability *middleware.ServiceAvailability, logCfg config.LogConfig) {
	app.Use(availability.Middleware())
	app.Use(middleware.RequestLogger(logCfg.RequestLoggingDisabled))

	api := app.Group("/api/v1")

	api.Get("/instruments", orderHandler.ListInstruments)

	api.Get("/orders", middleware.RequireAccount(), orderHandler.ListOrders)
	api.Post("/orders", middleware.RequireAccount(), orderHandler.SubmitOrder)
	api.Delete("/orders/:id", middleware.RequireAccount(), orderHandler.CancelOrder)
	api.Get("/orders/:id", orderHandler.GetOrderStatus)

	api.Get("/orderbook/:instrument", orderHandler.GetOrderBook)
	api.Get("/trades/:instrument", orderHandler.GetTrades)
	api.Get("/candles/:instrument", orderHandler.GetCandles)

	app.Get("/health", orderHandler.HealthCheck)
	app.Get("/metrics", orderHandler.Metrics)
}
