// Command gamemaild runs the gamemail HTTP server.
//
// Configuration comes from the environment (a .env file is honored).
// GAMEMAIL_JWT_SECRET is required; GAMEMAIL_STORE selects the storage
// backend (memory, postgres or mongo).
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rbaliyan/gamemail"
	"github.com/rbaliyan/gamemail/auth"
	"github.com/rbaliyan/gamemail/server"
	"github.com/rbaliyan/gamemail/store"
	"github.com/rbaliyan/gamemail/store/memory"
	mongostore "github.com/rbaliyan/gamemail/store/mongo"
	"github.com/rbaliyan/gamemail/store/postgres"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := server.LoadConfig()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	st, err := newStore(cfg, logger)
	if err != nil {
		logger.Error("store init failed", "error", err)
		os.Exit(1)
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
	}

	mailOpts := []gamemail.Option{
		gamemail.WithStore(st),
		gamemail.WithLogger(logger),
		gamemail.WithServiceName("gamemaild"),
	}
	if rdb != nil {
		mailOpts = append(mailOpts, gamemail.WithRedisClient(rdb))
	}

	mail, err := gamemail.NewService(mailOpts...)
	if err != nil {
		logger.Error("service init failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := mail.Connect(ctx); err != nil {
		cancel()
		logger.Error("service connect failed", "error", err)
		os.Exit(1)
	}
	cancel()

	authSvc, err := auth.New(st, []byte(cfg.JWTSecret), auth.WithTokenTTL(cfg.TokenTTL), auth.WithLogger(logger))
	if err != nil {
		logger.Error("auth init failed", "error", err)
		os.Exit(1)
	}

	srv := server.New(cfg, mail, authSvc, rdb, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("server stopped", "error", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if err := mail.Close(shutdownCtx); err != nil {
		logger.Error("service close failed", "error", err)
	}
	logger.Info("gamemaild stopped")
}

func newStore(cfg *server.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case "postgres":
		db, err := sqlx.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return postgres.New(db, postgres.WithLogger(logger)), nil
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client, err := mongodriver.Connect(ctx, mongoopts.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, err
		}
		return mongostore.New(client,
			mongostore.WithDatabase(cfg.MongoDatabase),
			mongostore.WithLogger(logger)), nil
	default:
		return memory.New(), nil
	}
}
