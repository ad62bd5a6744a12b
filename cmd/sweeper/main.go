package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/artfolio/auctions/internal/adapters/database"
	"github.com/artfolio/auctions/internal/adapters/redislock"
	"github.com/artfolio/auctions/internal/domain/auctions"
	"github.com/artfolio/auctions/pkg/clock"
	pkgdb "github.com/artfolio/auctions/pkg/database"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load environment variables (local overrides .env)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutting down sweeper...")
		cancel()
	}()

	// 1. Initialize Postgres Connection Pool
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Error("DATABASE_URL is not set")
		os.Exit(1)
	}

	dbConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		logger.Error("Unable to parse database config", "error", err)
		os.Exit(1)
	}

	pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		logger.Error("Unable to create connection pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if pingErr := pool.Ping(ctx); pingErr != nil {
		logger.Error("Unable to ping database", "error", pingErr)
		os.Exit(1)
	}
	logger.Info("Postgres Connected")

	// 2. Initialize Redis for the cross-instance sweep lock
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		logger.Error("REDIS_URL is not set")
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisURL})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("Redis failed", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	logger.Info("Redis Connected")

	// 3. Initialize Repositories and Services
	// Lock timeout bounds how long a sweep waits on a contended auction row
	clk := clock.System{}
	txManager := pkgdb.NewPostgresTransactionManager(pool, 3*time.Second)
	auctionRepo := database.NewPostgresAuctionRepository(pool)
	bidRepo := database.NewPostgresBidRepository(pool)
	outboxRepo := database.NewPostgresOutboxRepository(pool)

	auctionService := auctions.NewService(txManager, auctionRepo, bidRepo, outboxRepo, clk)
	sweeper := auctions.NewSweeper(auctionService, auctionRepo, 100, logger)

	sweepLock := redislock.NewSweepLock(rdb, "auctions:sweep-lock", 30*time.Second)
	runner := auctions.NewRunner(sweeper, sweepLock, 15*time.Second, clk, logger)

	logger.Info("Starting Auction Sweeper...")
	if err := runner.Run(ctx); err != nil {
		logger.Error("Sweeper failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Sweeper stopped")
}
