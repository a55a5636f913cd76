package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/ShipTrace/config"
	"github.com/BearBump/ShipTrace/internal/broker/kafka"
	"github.com/BearBump/ShipTrace/internal/cache/rediscache"
	"github.com/BearBump/ShipTrace/internal/services/shipments"
	"github.com/BearBump/ShipTrace/internal/store/airtablehttp"
	"github.com/BearBump/ShipTrace/internal/store/pgshipments"
)

type shipAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     shipAPIOpts
	svc      *shipments.Service
	consumer *kafka.Consumer
	closeDB  func()
}

func mustBootstrapShipAPI() *shipAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.ShipTrace.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.ShipTrace.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "ship-api"
	}
	topic := cfg.Kafka.ShipmentUpdatedTopicName
	if topic == "" {
		topic = "shipment.updated"
	}

	cacheTTL := time.Duration(cfg.ShipTrace.CacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	var closeDB func()
	var st shipments.Store
	// Бэкенд выбирается по конфигу: с ключом Airtable ходим в него напрямую,
	// без ключа используем локальный Postgres с теми же записями.
	if cfg.Airtable.APIKey != "" && cfg.Airtable.BaseID != "" {
		st = airtablehttp.New(cfg.Airtable.BaseURL, cfg.Airtable.APIKey, cfg.Airtable.BaseID, cfg.Airtable.ShipmentsTable)
		closeDB = func() {}
	} else {
		sslMode := cfg.Database.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
		pg := mustOpenPostgresWithRetry(connString, 60*time.Second)
		st = pg
		closeDB = pg.Close
	}

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)
	rl := rediscache.NewRateLimiter(redisAddr)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)

	svc := shipments.New(st, rc, cacheTTL).
		WithProducer(producer, topic)
	if cfg.ShipTrace.QueryTimeoutSeconds > 0 {
		svc.WithQueryTimeout(time.Duration(cfg.ShipTrace.QueryTimeoutSeconds) * time.Second)
	}

	rateWindow := time.Duration(cfg.ShipTrace.QueryRateWindowSeconds) * time.Second

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &shipAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: shipAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         topic,
			consumerGroup: consumerGroup,
			rl:            rl,
			rateLimit:     int64(cfg.ShipTrace.QueryRateLimit),
			rateWindow:    rateWindow,
		},
		svc:      svc,
		consumer: consumer,
		closeDB:  closeDB,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgshipments.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgshipments.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *shipAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *shipAPIApp) Run() error {
	return runShipAPI(a.ctx, a.opts, a.svc, a.consumer)
}
