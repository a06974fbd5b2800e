package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"spot-engine/src/config"
	"spot-engine/src/engine"
	"spot-engine/src/handlers"
	"spot-engine/src/logger"
	"spot-engine/src/middleware"
	"spot-engine/src/models"
	"spot-engine/src/notify"
	"spot-engine/src/routes"
	"spot-engine/src/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	logger.InitLogger(cfg.Log)
	log := logger.GetLogger()

	log.Info().Msg("Initializing matching engine")

	fees, err := cfg.FeeSchedule()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid fee configuration")
	}

	var publisher notify.Publisher = notify.LogPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		log.Info().
			Strs("brokers", cfg.Kafka.Brokers).
			Str("topic", cfg.Kafka.Topic).
			Msg("Fee notifications go to Kafka")
	}
	dispatcher := notify.NewDispatcher(publisher, cfg.Fees.QueueSize, 5*time.Second)

	opts := []engine.Option{engine.WithFeeSink(dispatcher)}

	var (
		db      *store.Store
		journal *store.Journal
	)
	if cfg.Store.Dir != "" {
		db, err = store.Open(cfg.Store.Dir, cfg.Store.Sync)
		if err != nil {
			log.Fatal().Err(err).Str("dir", cfg.Store.Dir).Msg("Failed to open store")
		}
		journal = store.NewJournal(db)
		opts = append(opts, engine.WithJournal(journal))
	}

	router := engine.NewRouter(fees, opts...)

	if db != nil {
		if err := db.Restore(router); err != nil {
			log.Fatal().Err(err).Msg("Failed to restore state")
		}
	}

	orderHandler := handlers.NewOrderHandler(router, cfg.Limits, cfg.Service.MetricsMaxLatencies)
	orderHandler.Fees = dispatcher
	if db != nil {
		orderHandler.History = db
	}
	availability := middleware.NewServiceAvailability(cfg.Service.MaxConcurrentRequests, cfg.Service.MaintenanceMode)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			reason := models.ReasonInternal
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
				reason = "http"
			}

			log.Error().
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("status", code).
				Str("error", err.Error()).
				Msg("Request error")

			return c.Status(code).JSON(models.ErrorResponse{
				Reason: reason,
				Error:  err.Error(),
			})
		},
	})

	app.Use(recover.New())
	routes.SetupRoutes(app, orderHandler, availability, cfg.Log)

	port := ":" + cfg.Port
	serverError := make(chan error, 1)

	go func() {
		if err := app.Listen(port); err != nil {
			serverError <- err
		}
	}()

	log.Info().
		Str("port", port).
		Strs("endpoints", []string{
			"GET    /api/v1/instruments",
			"GET    /api/v1/orders",
			"POST   /api/v1/orders",
			"DELETE /api/v1/orders/:id",
			"GET    /api/v1/orders/:id",
			"GET    /api/v1/orderbook/:instrument",
			"GET    /api/v1/trades/:instrument",
			"GET    /api/v1/candles/:instrument",
			"GET    /health",
			"GET    /metrics",
		}).
		Msg("Matching engine started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case err := <-serverError:
		log.Error().
			Err(err).
			Str("port", port).
			Msg("Server failed")
	case <-quit:
		log.Info().Msg("Received shutdown signal, shutting down...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		// edge case: timeout during shutdown is acceptable
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().
				Dur("timeout", cfg.ShutdownTimeout).
				Msg("Timeout exceeded, shutting down...")
		} else {
			log.Error().
				Err(err).
				Msg("Error during shutdown")
		}
	}

	// matching has stopped; flush what is still queued
	if journal != nil {
		journal.Close()
	}
	if db != nil {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing store")
		}
	}
	if err := dispatcher.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing fee publisher")
	}

	log.Info().Msg("Shutdown complete")
	logger.CloseLogger()
}
