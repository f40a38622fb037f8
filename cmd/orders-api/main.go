package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/config"
	"github.com/ariefcatur/go-order-saga/internal/customers"
	"github.com/ariefcatur/go-order-saga/internal/httpx"
	"github.com/ariefcatur/go-order-saga/internal/idempotency"
	"github.com/ariefcatur/go-order-saga/internal/inventory"
	kafkax "github.com/ariefcatur/go-order-saga/internal/kafka"
	"github.com/ariefcatur/go-order-saga/internal/logx"
	"github.com/ariefcatur/go-order-saga/internal/orders"
	"github.com/ariefcatur/go-order-saga/internal/postgres"
	"github.com/ariefcatur/go-order-saga/internal/redisx"
	"github.com/ariefcatur/go-order-saga/internal/tracing"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadOrders()
	log := logx.New(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.ServiceName, cfg.OtelEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing")
	}

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.MaxDBConns)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()
	if cfg.MigrateOnBoot {
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}
	}

	opts := []orders.Option{
		orders.WithLogger(log),
		orders.WithCancelWindow(cfg.CancelWindow),
		orders.WithProducerName(cfg.ServiceName),
	}

	// Redis is an optional cache in front of the idempotency ledger
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		opts = append(opts, orders.WithCache(redisx.NewStore(rdb, log)))
	}

	// Kafka lifecycle events, published after commit
	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
		prod.Start()
		opts = append(opts, orders.WithPublisher(prod))
	}

	inv := inventory.NewLedger(db)
	svc := orders.NewService(
		postgres.NewTxRunner(db, cfg.LockTimeout),
		orders.NewRepo(db),
		inv,
		idempotency.NewLedger(db),
		customers.NewClient(cfg.CustomersURL, cfg.ServiceToken, cfg.CustomerCall),
		opts...,
	)

	router := httpx.NewRouter(log, cfg.ServiceName, 15*time.Second)
	(&httpx.OrdersHandler{Orders: svc}).Register(router)
	(&httpx.ProductsHandler{Catalog: inv}).Register(router)
	srv := httpx.NewServer(cfg.HTTPAddr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return orders.NewReaper(svc, cfg.ReaperEvery, cfg.ReaperMaxAge).Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("orders-api stopped")
	}

	// requests have drained; flush queued events before exit
	if prod != nil {
		prod.Close()
		prod.WaitClosed()
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = shutdownTracing(sctx)
}
