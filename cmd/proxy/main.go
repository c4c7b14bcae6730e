package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/camuig/smartapi-proxy/internal/config"
	"github.com/camuig/smartapi-proxy/internal/logger"
	"github.com/camuig/smartapi-proxy/internal/metrics"
	"github.com/camuig/smartapi-proxy/internal/publish"
	"github.com/camuig/smartapi-proxy/internal/quotes"
	"github.com/camuig/smartapi-proxy/internal/service"
	"github.com/camuig/smartapi-proxy/internal/session"
	"github.com/camuig/smartapi-proxy/internal/smartapi"
	"github.com/camuig/smartapi-proxy/internal/storage"
	"github.com/camuig/smartapi-proxy/internal/symbols"
	"github.com/camuig/smartapi-proxy/internal/telegram"
	"github.com/camuig/smartapi-proxy/internal/web"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "smartapi-proxy: %v\n", err)
		os.Exit(1)
	}
}

// run wires and serves the proxy until a shutdown signal arrives. Every
// resource opened here is released by a deferred close before it returns.
func run(configPath string) error {
	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// Init logger
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	log.Info("starting smartapi-proxy", "port", cfg.Server.Port, "single_account", cfg.HasAccount())

	// Init database
	db, err := storage.NewDatabase(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("database init: %w", err)
	}
	defer func() {
		if err := storage.Close(db); err != nil {
			log.Error("database close failed", "error", err)
		}
	}()
	repo := storage.NewRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpClient := &http.Client{Timeout: cfg.UpstreamTimeout()}

	table, err := symbols.Load(ctx, httpClient, cfg.Symbols.File, cfg.Symbols.ScripMasterURL, cfg.SmartAPI.Exchange)
	if err != nil {
		return fmt.Errorf("symbol table init: %w", err)
	}
	log.Info("symbol table loaded", "symbols", table.Len())

	notifier := telegram.NewNotifier(cfg, log)
	m := metrics.New()
	observer := service.NewObserver(repo, notifier, m, log)

	sessionOpts := []session.Option{
		session.WithMaxAge(cfg.SessionMaxAge()),
		session.WithLoginTimeout(cfg.LoginTimeout()),
		session.WithLoginHook(observer.OnLogin),
	}
	if cfg.Redis.Enabled {
		store := session.NewRedisStore(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}), cfg.Redis.KeyPrefix)
		defer store.Close()
		sessionOpts = append(sessionOpts, session.WithStore(store))
		log.Info("session store enabled", "addr", cfg.Redis.Addr)
	}

	dial := session.SmartAPIDialer(
		smartapi.WithBaseURL(cfg.SmartAPI.BaseURL),
		smartapi.WithHTTPClient(httpClient),
		smartapi.WithClientInfo(cfg.SmartAPI.ClientLocalIP, cfg.SmartAPI.ClientPublicIP, cfg.SmartAPI.MACAddress),
	)
	manager := session.NewManager(dial, log.With("component", "session"), sessionOpts...)

	svcOpts := []service.Option{
		service.WithObserver(observer),
		service.WithMaxSymbols(cfg.Quotes.MaxSymbols),
	}
	if cfg.HasAccount() {
		err := manager.Register(session.Credentials{
			APIKey:     cfg.Account.APIKey,
			ClientID:   cfg.Account.ClientID,
			Password:   cfg.Account.Password,
			TOTPSecret: cfg.Account.TOTPSecret,
		})
		if err != nil {
			return fmt.Errorf("register configured account: %w", err)
		}
		svcOpts = append(svcOpts, service.WithDefaultAccount(cfg.Account.ClientID))
	}
	if cfg.Kafka.Enabled {
		publisher := publish.NewPublisher(publish.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, log), log)
		defer publisher.Close()
		svcOpts = append(svcOpts, service.WithPublisher(publisher))
		log.Info("quote publishing enabled", "topic", cfg.Kafka.Topic)
	}

	aggregator := quotes.NewAggregator(table, log.With("component", "quotes"),
		quotes.WithExchange(cfg.SmartAPI.Exchange),
		quotes.WithConcurrency(cfg.Quotes.Concurrency),
		quotes.WithCallTimeout(cfg.QuoteCallTimeout()),
	)
	svc := service.New(cfg.Server.ServiceName, manager, aggregator, log, svcOpts...)
	webServer := web.NewServer(svc, m, cfg, log)

	// Start web server in goroutine
	go func() {
		if err := webServer.Start(); err != nil {
			log.Error("web server error", "error", err)
			cancel()
		}
	}()

	notifier.NotifyStatus(fmt.Sprintf("✅ %s started on port %d", cfg.Server.ServiceName, cfg.Server.Port))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error("web server shutdown error", "error", err)
	}

	notifier.NotifyStatus(fmt.Sprintf("🛑 %s stopped", cfg.Server.ServiceName))
	log.Info("smartapi-proxy stopped")
	return nil
}
