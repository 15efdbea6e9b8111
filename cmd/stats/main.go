package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/storefront-orders/internal/config"
	kafkax "github.com/ariefcatur/storefront-orders/internal/kafka"
	"github.com/ariefcatur/storefront-orders/internal/logx"
	"github.com/ariefcatur/storefront-orders/internal/orders"
	"github.com/ariefcatur/storefront-orders/internal/redisx"
	"github.com/ariefcatur/storefront-orders/internal/stats"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-stats"
	logx.Setup(service, cfg.LogLevel, cfg.LogFormat)

	if cfg.RedisAddr == "" || len(cfg.KafkaBrokers) == 0 {
		log.Fatal().Msg("REDIS_ADDR and KAFKA_BROKERS are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("redis ping")
	}

	projector := &stats.Projector{Redis: rdb, ServiceName: "stats"}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.StatsGroup, orders.TopicOrderPlaced, cfg.StatsWorkers)

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info().
			Str("group", cfg.StatsGroup).
			Str("topic", orders.TopicOrderPlaced).
			Int("workers", cfg.StatsWorkers).
			Msg("stats consumer started")
		if err := cons.Start(ctx, projector.HandleOrderPlaced); err != nil {
			log.Error().Err(err).Msg("consumer exit")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-done:
	}
	log.Info().Msg("shutting down consumer...")
	cancel()
	<-done
}
