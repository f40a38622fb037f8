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
	"github.com/ariefcatur/go-order-saga/internal/logx"
	"github.com/ariefcatur/go-order-saga/internal/orchestrator"
	"github.com/ariefcatur/go-order-saga/internal/tracing"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadOrchestrator()
	log := logx.New(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.ServiceName, cfg.OtelEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing")
	}

	saga := orchestrator.NewSaga(
		customers.NewClient(cfg.CustomersURL, cfg.ServiceToken, cfg.CustomerCall),
		orchestrator.NewOrdersClient(cfg.OrdersURL),
		orchestrator.Timeouts{Customer: cfg.CustomerCall, Create: cfg.OrderCall, Confirm: cfg.OrderCall},
		log,
	)

	// the three steps can take up to their summed timeouts
	requestTimeout := cfg.CustomerCall + 2*cfg.OrderCall + 5*time.Second
	router := httpx.NewRouter(log, cfg.ServiceName, requestTimeout)
	(&httpx.OrchestratorHandler{Saga: saga}).Register(router)
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
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("orchestrator stopped")
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = shutdownTracing(sctx)
}
