// Command flowgated runs the workflow automation engine as an HTTP service.
//
// Configuration comes from the environment (a .env file is loaded when
// present):
//
//	ADDR               listen address (default ":8080")
//	SQLITE_PATH        path to the SQLite database file
//	MONGODB_URI        MongoDB connection string (overrides SQLITE_PATH)
//	MONGODB_DB         MongoDB database name (default "flowgate")
//	SCHEDULER_API_URL  cron API root for Wait-step callbacks
//	SCHEDULER_API_KEY  bearer credential for the cron API
//	CALLBACK_URL       externally reachable resume endpoint
//	COOLDOWN_SECONDS   per-subject trigger spacing (default 10)
//
// Without SQLITE_PATH or MONGODB_URI the engine runs on in-memory stores,
// which is only useful for local experiments.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"

	"github.com/flowgate/flowgate"
	"github.com/flowgate/flowgate/internal/delivery"
	"github.com/flowgate/flowgate/internal/scheduler"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := flowgate.Config{
		Delivery: delivery.NewHTTPDelivery(),
		Observer: flowgate.NewLoggingObserver(logger),
		Logger:   logger,
		Cooldown: cooldownFromEnv(),
	}

	if base := os.Getenv("SCHEDULER_API_URL"); base != "" {
		cfg.Scheduler = scheduler.NewCronClient(
			base,
			os.Getenv("SCHEDULER_API_KEY"),
			os.Getenv("CALLBACK_URL"),
			&http.Client{Timeout: 15 * time.Second},
		)
	} else {
		logger.Warn("no SCHEDULER_API_URL configured, Wait steps will be skipped")
	}

	core, err := buildCore(cfg, logger)
	if err != nil {
		logger.Error("startup failed", slog.Any("error", err))
		os.Exit(1)
	}

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8080"
	}

	logger.Info("flowgated listening", slog.String("addr", addr))
	if err := core.Listen(addr); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func buildCore(cfg flowgate.Config, logger *slog.Logger) (*flowgate.Core, error) {
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx, nil); err != nil {
			return nil, err
		}

		db := os.Getenv("MONGODB_DB")
		if db == "" {
			db = "flowgate"
		}
		logger.Info("using mongodb persistence", slog.String("database", db))
		return flowgate.NewMongoCore(client, db, cfg), nil
	}

	if path := os.Getenv("SQLITE_PATH"); path != "" {
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, err
		}
		logger.Info("using sqlite persistence", slog.String("path", path))
		return flowgate.NewSQLiteCore(db, cfg)
	}

	logger.Warn("no persistence configured, using in-memory stores")
	return flowgate.NewInMemoryCore(cfg), nil
}

func cooldownFromEnv() time.Duration {
	raw := os.Getenv("COOLDOWN_SECONDS")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
