package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/storefront-orders/internal/auth"
	"github.com/ariefcatur/storefront-orders/internal/config"
	"github.com/ariefcatur/storefront-orders/internal/httpx"
	kafkax "github.com/ariefcatur/storefront-orders/internal/kafka"
	"github.com/ariefcatur/storefront-orders/internal/logx"
	"github.com/ariefcatur/storefront-orders/internal/memstore"
	"github.com/ariefcatur/storefront-orders/internal/mongox"
	"github.com/ariefcatur/storefront-orders/internal/orders"
	"github.com/ariefcatur/storefront-orders/internal/postgres"
	"github.com/ariefcatur/storefront-orders/internal/redisx"
	"github.com/ariefcatur/storefront-orders/internal/stats"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logx.Setup(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("open store")
	}
	defer closeStore()

	svc := &orders.Service{
		Store:       store,
		MaxAttempts: cfg.OrderMaxAttempts,
	}

	// Kafka producers, one per topic
	var producers []*kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		placed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPlaced, 1024)
		changed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatusChanged, 1024)
		placed.Start()
		changed.Start()
		producers = append(producers, placed, changed)
		svc.Notifier = &kafkax.Notifier{
			Placed:        placed,
			StatusChanged: changed,
			ServiceName:   cfg.ServiceName,
			TraceID:       middleware.GetReqID,
		}
	} else {
		log.Warn().Msg("KAFKA_BROKERS not set; order events are not published")
	}

	// Redis: idempotency keys and the stats projection
	var (
		idem        httpx.IdempotencyGuard
		statsReader httpx.StatsReader = &stats.StoreReader{Store: svc}
		rdb         *redis.Client
	)
	if cfg.RedisAddr != "" {
		rdb = redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis ping")
		}
		idem = &redisx.Idempotency{Redis: rdb}
		if len(cfg.KafkaBrokers) > 0 {
			statsReader = &stats.Reader{Redis: rdb, Products: svc}
		}
	}

	router := httpx.NewRouter()
	authn := httpx.Authenticate(&auth.Verifier{Secret: []byte(cfg.JWTSecret)})
	httpx.NewOrdersHandler(svc, idem, cfg.OrderTimeout).RegisterRoutes(router, authn)
	httpx.NewCatalogHandler(svc, statsReader).RegisterRoutes(router, authn)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("driver", cfg.StoreDriver).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down...")

	// let in-flight placements finish before the producers go away
	ctx2, cancel2 := context.WithTimeout(context.Background(), cfg.OrderTimeout+5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	for _, p := range producers {
		p.Close()
	}
	for _, p := range producers {
		p.WaitClosed()
	}
	log.Info().Msg("stopped")
}

func openStore(ctx context.Context, cfg config.Config) (orders.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		if cfg.MigrateOnStart {
			if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
				return nil, nil, err
			}
		}
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolConfig{MaxConns: cfg.PostgresMaxConns})
		if err != nil {
			return nil, nil, err
		}
		return &postgres.Store{DB: db}, db.Close, nil

	case config.DriverMongo:
		client, err := mongox.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		if err := mongox.EnsureIndexes(ctx, client.Database(cfg.MongoDB)); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		closeFn := func() { _ = client.Disconnect(context.Background()) }
		return mongox.NewStore(client, cfg.MongoDB), closeFn, nil

	default:
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return memstore.New(), func() {}, nil
	}
}
