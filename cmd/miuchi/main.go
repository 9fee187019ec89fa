package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/miuchi-chat/miuchi/internal/api"
	"github.com/miuchi-chat/miuchi/internal/auth"
	"github.com/miuchi-chat/miuchi/internal/config"
	"github.com/miuchi-chat/miuchi/internal/gateway"
	"github.com/miuchi-chat/miuchi/internal/httputil"
	"github.com/miuchi-chat/miuchi/internal/message"
	"github.com/miuchi-chat/miuchi/internal/postgres"
	"github.com/miuchi-chat/miuchi/internal/room"
	"github.com/miuchi-chat/miuchi/internal/search"
	"github.com/miuchi-chat/miuchi/internal/typesense"
	"github.com/miuchi-chat/miuchi/internal/user"
	"github.com/miuchi-chat/miuchi/internal/valkey"
)

// Build metadata injected via ldflags at compile time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.IsDevelopment() {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", date).
		Str("env", cfg.ServerEnv).
		Msg("Starting Miuchi gateway")

	ctx := context.Background()

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConn, cfg.DatabaseMinConn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	log.Info().Msg("PostgreSQL connected")

	if err := postgres.Migrate(cfg.DatabaseURL, log.Logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info().Msg("Database migrations complete")

	rdb, err := valkey.Connect(ctx, cfg.ValkeyURL, 5*time.Second)
	if err != nil {
		return fmt.Errorf("connect valkey: %w", err)
	}
	defer func() { _ = rdb.Close() }()
	log.Info().Msg("Valkey connected")

	// Typesense collection setup is best-effort: the Search Indexer is never on the broadcast critical path's
	// correctness, so a failure here is logged and the server starts anyway.
	result, err := typesense.EnsureMessagesCollection(ctx, cfg.TypesenseURL, cfg.TypesenseAPIKey, 10*time.Second)
	if err != nil {
		log.Warn().Err(err).Msg("Typesense collection setup failed")
	} else {
		switch result {
		case typesense.ResultCreated:
			log.Info().Msg("Typesense messages collection created")
		case typesense.ResultRecreated:
			log.Warn().Msg("Typesense messages collection recreated due to schema change")
		case typesense.ResultUnchanged:
			log.Info().Msg("Typesense messages collection already exists")
		}
	}

	userRepo := user.NewPGRepository(db, log.Logger)
	roomRepo := room.NewPGRepository(db, log.Logger)
	messageRepo := message.NewPGRepository(db, log.Logger)

	typesenseIndexer := typesense.NewIndexer(cfg.TypesenseURL, cfg.TypesenseAPIKey, 5*time.Second)
	searchIndexer := search.NewIndexer(typesenseIndexer)

	verifier := auth.NewVerifier(cfg.JWTSecret, userRepo)

	registry := gateway.NewRegistry(cfg.GatewayMaxConnectionsPerUser)
	dispatcher := gateway.NewDispatcher(registry, roomRepo, messageRepo, searchIndexer, log.Logger)
	hub := gateway.NewHub(cfg, verifier, registry, dispatcher, log.Logger)

	replenisher := gateway.NewReplenisher(registry, cfg.RateLimitWSReplenishPeriod)
	subCtx, subCancel := context.WithCancel(ctx)
	defer subCancel()
	go replenisher.Run(subCtx)

	app := fiber.New(fiber.Config{
		AppName: "Miuchi",
		ErrorHandler: func(c fiber.Ctx, err error) error {
			status := fiber.StatusInternalServerError
			msg := "An internal error occurred"
			code := httputil.InternalError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
				msg = fe.Message
				code = fiberStatusToCode(fe.Code)
			} else {
				log.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Msg("Unhandled error")
			}
			return httputil.Fail(c, status, code, msg)
		},
	})

	app.Use(requestid.New())
	app.Use(httputil.RequestLogger(log.Logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"X-Request-ID"},
	}))
	app.Use(api.NewRateLimitMiddleware(cfg.RateLimitAPIRequests, cfg.RateLimitAPIWindowSeconds))

	registerRoutes(app, db, rdb, roomRepo, messageRepo, registry, hub, log.Logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Shutting down server")
		replenisher.Stop()
		subCancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	log.Info().Str("addr", addr).Msg("Server listening")

	if err := app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func registerRoutes(
	app *fiber.App,
	db *pgxpool.Pool,
	rdb *redis.Client,
	roomRepo room.Repository,
	messageRepo message.Repository,
	registry *gateway.Registry,
	hub *gateway.Hub,
	logger zerolog.Logger,
) {
	healthHandler := &api.HealthHandler{DB: db, Redis: rdb}
	app.Get("/api/v1/health", healthHandler.Health)

	roomHandler := api.NewRoomHandler(roomRepo)
	app.Get("/api/v1/rooms", roomHandler.List)

	messageHandler := api.NewMessageHandler(roomRepo, messageRepo)
	app.Get("/api/v1/rooms/:room/messages", messageHandler.History)

	onlineHandler := api.NewOnlineHandler(registry, rdb, logger)
	app.Get("/api/v1/online", onlineHandler.List)

	gatewayHandler := api.NewGatewayHandler(hub)
	app.Get("/ws", gatewayHandler.Upgrade)

	// Catch-all handler returns 404 for any request that does not match a defined route. Fiber v3 treats app.Use()
	// middleware as route matches, so without this terminal handler the router considers unmatched requests
	// "handled" and returns the default 200 status with an empty body.
	app.Use(func(_ fiber.Ctx) error {
		return fiber.ErrNotFound
	})
}

// fiberStatusToCode maps an HTTP status code from Fiber's built-in errors (404, 405, etc.) to the closest local error
// code.
func fiberStatusToCode(status int) httputil.Code {
	switch status {
	case fiber.StatusNotFound:
		return httputil.NotFound
	case fiber.StatusMethodNotAllowed:
		return httputil.ValidationError
	case fiber.StatusTooManyRequests:
		return httputil.RateLimited
	default:
		if status >= 400 && status < 500 {
			return httputil.ValidationError
		}
		return httputil.InternalError
	}
}
