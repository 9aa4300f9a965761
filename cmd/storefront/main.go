package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nadhir24/bima-back-sub000/internal/cart"
	"github.com/nadhir24/bima-back-sub000/internal/config"
	storefrontgrpc "github.com/nadhir24/bima-back-sub000/internal/grpc"
	h "github.com/nadhir24/bima-back-sub000/internal/http"
	"github.com/nadhir24/bima-back-sub000/internal/logger"
	"github.com/nadhir24/bima-back-sub000/internal/metrics"
	"github.com/nadhir24/bima-back-sub000/internal/payment"
	"github.com/nadhir24/bima-back-sub000/internal/publisher"
	"github.com/nadhir24/bima-back-sub000/internal/reconciler"
	"github.com/nadhir24/bima-back-sub000/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

const usage = `usage: storefront [-config file] <command>

commands:
  serve [-seed variants.json]   run the HTTP, gRPC and background workers (default)
  seed  -file variants.json     upsert variants into the configured store and exit
`

func main() {
	configPath := flag.String("config", "", "optional config file (yaml, json or toml)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}
	log := logger.New("storefront", cfg.Log.Level, cfg.Env)

	cmd, args := "serve", []string(nil)
	if flag.NArg() > 0 {
		cmd, args = flag.Arg(0), flag.Args()[1:]
	}

	switch cmd {
	case "serve":
		err = serve(cfg, args, log)
	case "seed":
		err = seed(cfg, args, log)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", cmd).Msg("storefront failed")
	}
}

func serve(cfg *config.Config, args []string, log zerolog.Logger) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	seedFile := fs.String("seed", "", "variants file loaded at startup")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	if *seedFile != "" {
		if err := seedVariants(ctx, b.store, *seedFile, log); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	gateway := payment.NewSnapClient(payment.Config{
		BaseURL:      cfg.Payment.BaseURL,
		ServerKey:    cfg.Payment.ServerKey,
		Timeout:      cfg.Payment.Timeout,
		MaxFailures:  cfg.Payment.MaxFailures,
		OpenTimeout:  cfg.Payment.OpenTimeout,
		HalfOpenReqs: cfg.Payment.HalfOpenRequests,
	})

	carts := cart.NewService(b.cartRepo, b.cartCache, log)
	checkout := service.NewCheckoutService(b.store, carts, gateway, service.Config{
		Currency:       cfg.Checkout.Currency,
		GatewayTimeout: cfg.Payment.Timeout,
	}, log, m)
	rec := reconciler.New(b.store, cfg.Payment.ServerKey, log, m)

	poller := publisher.NewOutboxPoller(b.store, newEventWriter(cfg, log), checkout, publisher.Config{
		EventTick:    cfg.Outbox.Interval,
		RecoveryTick: cfg.Sweeper.Interval,
		BatchSize:    cfg.Outbox.Batch,
		OrphanAfter:  cfg.Sweeper.OrphanAfter,
	}, log, m)
	defer poller.Close()

	router := h.NewRouter(h.RouterDeps{
		Checkout:       h.NewCheckoutHandler(checkout, cfg.HTTP.RequestTimeout, log),
		Notifications:  h.NewNotificationHandler(rec, cfg.HTTP.MaxBodyBytes, log),
		Carts:          h.NewCartHandler(carts, cfg.HTTP.RequestTimeout, log),
		Orders:         h.NewOrdersHandler(checkout, cfg.HTTP.RequestTimeout, log),
		Health:         b.httpPingers(),
		MetricsHandler: metrics.Handler(reg),
		Metrics:        m,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.HTTP.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+cfg.GRPC.Port)
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port: %w", err)
	}
	grpcServer := storefrontgrpc.NewServer(b.grpcPingers(), 0, log)

	workers, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	go poller.Run(workers)
	go grpcServer.Watch(workers)

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("port", cfg.HTTP.Port).Str("storage", cfg.Storage.Driver).Msg("storefront http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down storefront")
	case err := <-errCh:
		log.Error().Err(err).Msg("server failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server forced to shutdown")
	}
	grpcServer.GracefulStop()
	cancelWorkers()

	log.Info().Msg("storefront stopped")
	return nil
}

func seed(cfg *config.Config, args []string, log zerolog.Logger) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	file := fs.String("file", "", "JSON array of variants")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("seed: -file is required")
	}
	if cfg.Storage.Driver == "memory" {
		return errors.New("seed: the memory store does not outlive the process, use serve -seed instead")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	return seedVariants(ctx, b.store, *file, log)
}
