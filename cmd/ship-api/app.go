package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	shipmentsapi "github.com/BearBump/ShipTrace/internal/api/shipments_api"
	"github.com/BearBump/ShipTrace/internal/broker/messages"
	"github.com/BearBump/ShipTrace/internal/services/shipments"
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

type shipAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	rl         shipmentsapi.RateLimiter
	rateLimit  int64
	rateWindow time.Duration

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

func runShipAPI(ctx context.Context, opts shipAPIOpts, svc *shipments.Service, consumer kafkaConsumer) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	api := shipmentsapi.New(svc)
	if opts.rl != nil {
		api.WithRateLimiter(opts.rl, opts.rateLimit, opts.rateWindow)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})
	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, opts.swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))
	r.Mount("/", api.Handler())

	if consumer != nil {
		go func() {
			slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
			_ = consumer.Consume(ctx, func(_key, value []byte) error {
				var m messages.ShipmentUpdated
				if err := json.Unmarshal(value, &m); err != nil {
					return err
				}
				if err := svc.Invalidate(ctx, m.OrderNo, m.TrackingNo); err != nil {
					slog.Warn("cache invalidation failed", "record_id", m.RecordID, "err", err)
				}
				return nil
			})
		}()
	}

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}
