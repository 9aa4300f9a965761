package main

import (
	"context"

	"github.com/nadhir24/bima-back-sub000/internal/cart"
	"github.com/nadhir24/bima-back-sub000/internal/cart/cache"
	"github.com/nadhir24/bima-back-sub000/internal/config"
	storefrontgrpc "github.com/nadhir24/bima-back-sub000/internal/grpc"
	h "github.com/nadhir24/bima-back-sub000/internal/http"
	"github.com/nadhir24/bima-back-sub000/internal/publisher"
	"github.com/nadhir24/bima-back-sub000/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type backends struct {
	store     repository.Store
	cartRepo  cart.Repository
	cartCache cache.CartCache
	pingers   map[string]pingFunc
	closers   []func()
}

func openBackends(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*backends, error) {
	b := &backends{pingers: make(map[string]pingFunc)}

	if cfg.Storage.Driver == "memory" {
		b.store = repository.NewMemoryStore()
		b.cartRepo = cart.NewMemoryRepository()
		log.Warn().Msg("using in-memory storage, state is lost on exit")
		return b, nil
	}

	creds := &repository.Credentials{
		Host:              cfg.Postgres.Host,
		Port:              cfg.Postgres.Port,
		User:              cfg.Postgres.User,
		Password:          cfg.Postgres.Password,
		DBName:            cfg.Postgres.DBName,
		SSLMode:           cfg.Postgres.SSLMode,
		MigrationsDirPath: cfg.Postgres.MigrationsPath,
		MaxOpenConns:      cfg.Postgres.MaxOpenConns,
		MaxIdleConns:      cfg.Postgres.MaxIdleConns,
	}
	pg, err := repository.NewPostgresStore(ctx, creds)
	if err != nil {
		return nil, err
	}
	b.store = pg
	b.pingers["postgres"] = pg.Ping
	b.closers = append(b.closers, func() { _ = pg.Close() })

	if err := pg.RunMigrations(creds); err != nil {
		b.Close()
		return nil, err
	}
	log.Info().Str("host", cfg.Postgres.Host).Msg("connected to postgres, migrations applied")

	mongoDB, err := cart.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.closers = append(b.closers, func() { _ = mongoDB.Client().Disconnect(context.Background()) })
	b.pingers["mongo"] = func(ctx context.Context) error { return mongoDB.Client().Ping(ctx, nil) }

	mongoRepo := cart.NewMongoRepository(mongoDB)
	if err := mongoRepo.CreateIndexes(ctx); err != nil {
		b.Close()
		return nil, err
	}
	b.cartRepo = mongoRepo
	log.Info().Str("database", cfg.Mongo.Database).Msg("connected to mongodb")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	b.closers = append(b.closers, func() { _ = redisClient.Close() })
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// the cache is optional; carts are still served from mongo
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, cart cache disabled")
	} else {
		b.cartCache = cache.NewRedisCache(redisClient, cfg.Redis.CartTTL)
		b.pingers["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	return b, nil
}

func (b *backends) httpPingers() map[string]h.Pinger {
	out := make(map[string]h.Pinger, len(b.pingers))
	for name, p := range b.pingers {
		out[name] = p
	}
	return out
}

func (b *backends) grpcPingers() map[string]storefrontgrpc.Pinger {
	out := make(map[string]storefrontgrpc.Pinger, len(b.pingers))
	for name, p := range b.pingers {
		out[name] = p
	}
	return out
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func newEventWriter(cfg *config.Config, log zerolog.Logger) publisher.MessageWriter {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Warn().Msg("no kafka brokers configured, order events are only logged")
		return logWriter{log: log}
	}
	return publisher.NewKafkaWriter(cfg.Kafka.Topic, cfg.Kafka.Brokers...)
}

// logWriter stands in for Kafka in local runs.
type logWriter struct {
	log zerolog.Logger
}

func (w logWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		ev := w.log.Info().Str("key", string(m.Key))
		for _, hd := range m.Headers {
			ev = ev.Str(hd.Key, string(hd.Value))
		}
		ev.RawJSON("payload", m.Value).Msg("order event")
	}
	return nil
}

func (w logWriter) Close() error { return nil }
