package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DanielPopoola/payment-orchestrator/internal/adapters/events"
	"github.com/DanielPopoola/payment-orchestrator/internal/adapters/lock"
	"github.com/DanielPopoola/payment-orchestrator/internal/adapters/memory"
	"github.com/DanielPopoola/payment-orchestrator/internal/adapters/postgres"
	"github.com/DanielPopoola/payment-orchestrator/internal/adapters/sqlite"
	"github.com/DanielPopoola/payment-orchestrator/internal/config"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/ports"
	"github.com/redis/go-redis/v9"
)

// openStore builds the configured PaymentStore. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ports.Store, func(), error) {
	switch cfg.Store.Driver {
	case "postgres":
		db, err := postgres.Connect(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return postgres.NewStore(db), db.Close, nil

	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.Store.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewStore(db), func() { _ = db.Close() }, nil

	case "memory":
		logger.Warn("using in-memory store, payments are lost on restart")
		return memory.NewStore(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func newLocker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ports.Locker, func(), error) {
	if cfg.Lock.Backend != "redis" {
		return lock.NewKeyedMutex(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	logger.Info("using redis payment locks", "addr", cfg.Redis.Addr)
	return lock.NewRedisLocker(client, cfg.Lock.TTL, logger), func() { _ = client.Close() }, nil
}

func newPublisher(cfg *config.Config, logger *slog.Logger) (ports.EventPublisher, func(), error) {
	if !cfg.Kafka.Enabled {
		return events.NewLogPublisher(logger), func() {}, nil
	}

	producer, err := events.NewKafkaProducer(cfg.Kafka.Brokers)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to kafka: %w", err)
	}
	publisher := events.NewKafkaPublisher(producer, cfg.Kafka.Topic, logger)
	logger.Info("publishing lifecycle events to kafka", "topic", cfg.Kafka.Topic)
	return publisher, func() {
		if err := publisher.Close(); err != nil {
			logger.Error("failed to close kafka producer", "error", err)
		}
	}, nil
}
