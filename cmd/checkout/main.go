package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/clients"
	"github.com/fjod/go_checkout/internal/config"
	h "github.com/fjod/go_checkout/internal/http"
	"github.com/fjod/go_checkout/internal/logger"
	"github.com/fjod/go_checkout/internal/notify"
	"github.com/fjod/go_checkout/internal/proof"
	"github.com/fjod/go_checkout/internal/session"
	"github.com/fjod/go_checkout/internal/snapshot"
	"github.com/fjod/go_checkout/internal/submission"
	"github.com/fjod/go_checkout/internal/tracing"
	"github.com/fjod/go_checkout/internal/tracker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("checkout exited with error", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CHECKOUT_CONFIG"))
	if err != nil {
		return err
	}

	log := logger.New(cfg.Log)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracer shutdown failed", "err", err)
		}
	}()

	snapshots, closeStore, err := openSnapshots(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStore()

	events := notify.NewBroadcaster()
	backend, closePublisher, err := openPublisher(cfg.Notify, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	newClient := func(name, baseURL string) (*clients.Client, error) {
		return clients.New(clients.Config{
			Name:            name,
			BaseURL:         baseURL,
			Timeout:         cfg.Upstreams.Timeout,
			Retries:         cfg.Upstreams.Retries,
			BreakerFailures: cfg.Upstreams.BreakerFailures,
			BreakerTimeout:  cfg.Upstreams.BreakerTimeout,
		}, clients.WithLogger(log))
	}
	upstreams := map[string]string{
		"catalog":    cfg.Upstreams.Catalog,
		"identity":   cfg.Upstreams.Identity,
		"payments":   cfg.Upstreams.Payments,
		"pricing":    cfg.Upstreams.Pricing,
		"orders":     cfg.Upstreams.Orders,
		"settlement": cfg.Upstreams.Settlement,
	}
	base := make(map[string]*clients.Client, len(upstreams))
	for name, u := range upstreams {
		c, err := newClient(name, u)
		if err != nil {
			return err
		}
		base[name] = c
	}

	catalog := clients.NewCatalogClient(base["catalog"])
	orders := clients.NewOrdersClient(base["orders"])
	settlement := clients.NewSettlementClient(base["settlement"])
	prices := submission.NewPriceBook(catalog)

	var handOff checkout.HandOff
	if cfg.Checkout.HandOffPhone != "" {
		handOff = clients.NewWhatsAppHandOff(cfg.Checkout.HandOffPhone)
	}

	numberPattern, err := regexp.Compile(cfg.Tracker.OrderNumberPattern)
	if err != nil {
		return fmt.Errorf("invalid order number pattern: %w", err)
	}

	registry := session.NewRegistry(session.Deps{
		Snapshots:         snapshots,
		Identity:          clients.NewIdentityClient(base["identity"]),
		Methods:           clients.NewPaymentMethodsClient(base["payments"]),
		Pricing:           clients.NewPricingClient(base["pricing"]),
		ConversionMethods: cfg.Pricing.ConversionMethods,
		Submission: submission.NewService(orders, settlement, prices,
			submission.WithTimeout(cfg.Checkout.Timeout),
			submission.WithLogger(log),
		),
		Prices:     prices,
		Uploader:   clients.NewProofClient(base["orders"]),
		Orders:     orders,
		Settlement: settlement,
		HandOff:    handOff,
		Publisher:  notify.Fanout{events, backend},
	},
		session.WithIdleTimeout(cfg.HTTP.SessionIdleTimeout),
		session.WithLogger(log),
		session.WithCheckoutOptions(
			checkout.WithManualCheckout(cfg.Checkout.ManualCheckout),
			checkout.WithBotRequiredTypes(cfg.Checkout.BotRequiredTypes...),
			checkout.WithTimeout(cfg.Checkout.Timeout),
			checkout.WithProofOptions(
				proof.WithTick(cfg.Proof.Tick),
				proof.WithTimeout(cfg.Proof.UploadTimeout),
			),
		),
		session.WithTrackerOptions(
			tracker.WithIntervals(cfg.Tracker.OrderInterval, cfg.Tracker.CryptoInterval),
			tracker.WithNumberPattern(numberPattern),
			tracker.WithTimeout(cfg.Upstreams.Timeout),
		),
	)
	defer registry.CloseAll()
	go registry.Run(ctx)

	handler := h.NewHandler(registry, catalog, events,
		h.WithTimeout(cfg.HTTP.RequestTimeout),
		h.WithMaxBodySize(cfg.HTTP.MaxRequestBodySize),
		h.WithLogger(log),
	)

	// No WriteTimeout: event streams stay open. Request deadlines come from
	// the router.
	srv := &http.Server{
		Addr:        ":" + cfg.HTTP.Port,
		Handler:     handler.Router(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("checkout starting", "port", cfg.HTTP.Port, "storage", cfg.Storage.Backend, "notify", cfg.Notify.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server...")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server exited")
	return nil
}

func openSnapshots(ctx context.Context, cfg config.StorageConfig) (snapshot.Store, func(), error) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return snapshot.NewRedisStore(client, cfg.RedisTTL), func() { _ = client.Close() }, nil
	case "sqlite":
		store, err := snapshot.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := store.RunMigrations(); err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return snapshot.NewMemoryStore(), func() {}, nil
	}
}

func openPublisher(cfg config.NotifyConfig, log *slog.Logger) (notify.Publisher, func(), error) {
	var closer io.Closer
	var pub notify.Publisher
	switch cfg.Backend {
	case "kafka":
		p := notify.NewKafkaPublisher(cfg.Topic, cfg.Brokers...)
		pub, closer = p, p
	case "amqp":
		p, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.Exchange)
		if err != nil {
			return nil, nil, err
		}
		pub, closer = p, p
	case "none":
		return notify.Discard{}, func() {}, nil
	default:
		return notify.NewLogPublisher(log), func() {}, nil
	}
	return pub, func() {
		if err := closer.Close(); err != nil {
			log.Warn("publisher close failed", "err", err)
		}
	}, nil
}
