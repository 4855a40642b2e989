package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/quartz"
	"github.com/lox/pokertables/internal/auth"
	"github.com/lox/pokertables/internal/balance"
	"github.com/lox/pokertables/internal/config"
	"github.com/lox/pokertables/internal/randutil"
	"github.com/lox/pokertables/internal/server"
	"github.com/lox/pokertables/internal/table"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 5 * time.Second
	flushTimeout    = 10 * time.Second
)

// ServeCmd runs the table server.
type ServeCmd struct {
	Config      string `short:"c" default:"tables.hcl" help:"Path to HCL configuration file"`
	Addr        string `short:"a" help:"Server address to bind to (overrides config)"`
	LogLevel    string `short:"l" help:"Log level (overrides config)"`
	AdminSecret string `env:"POKERTABLES_ADMIN_SECRET" help:"Shared secret sent to the session verification service"`
	Seed        *int64 `help:"Deterministic RNG seed for shuffling (optional)"`
}

func (c *ServeCmd) Run() error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	if c.Addr != "" {
		cfg.Server.Address = c.Addr
	}
	if c.LogLevel != "" {
		cfg.Server.LogLevel = c.LogLevel
	}
	if c.AdminSecret != "" {
		cfg.Auth.AdminSecret = c.AdminSecret
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.Server.LogLevel)
	clock := quartz.NewReal()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("Failed to close balance store", "error", err)
		}
	}()
	persister := balance.NewPersister(store, logger)

	verifier, err := newVerifier(cfg.Auth, clock)
	if err != nil {
		return err
	}
	if cfg.Auth.Mode == "dev" {
		logger.Warn("Using dev session tokens, any client can claim any identity")
	}

	opts := []table.Option{table.WithClock(clock), table.WithLogger(logger)}
	if c.Seed != nil {
		logger.Info("Using deterministic seed", "seed", *c.Seed)
		opts = append(opts, table.WithRandSource(randutil.Seeded(*c.Seed)))
	}
	registry := table.NewRegistry(cfg, store, persister, opts...)

	srv := server.NewServer(registry, verifier,
		balance.Balances{Store: store, Persister: persister},
		server.WithLogger(logger),
		server.WithEchoIgnored(*cfg.Server.EchoIgnored))
	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	for _, tier := range cfg.Tiers {
		logger.Info("Tier",
			"level", tier.Level,
			"stakes", fmt.Sprintf("%d/%d", tier.SmallBlind, tier.BigBlind),
			"buy_in", fmt.Sprintf("%d-%d", tier.MinBuyIn, tier.MaxBuyIn),
			"tables", tier.Tables)
	}
	logger.Info("Starting table server",
		"address", cfg.Server.Address,
		"auth", cfg.Auth.Mode,
		"storage", cfg.Storage.Driver,
		"sweep", cfg.SweepEvery())

	ctx := setupSignalHandler(logger)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		srv.Close()
		return err
	})

	g.Go(func() error {
		sweep := clock.TickerFunc(gctx, cfg.SweepEvery(), func() error {
			registry.Sweep(clock.Now())
			return nil
		}, "sweep")
		return ignoreCanceled(sweep.Wait())
	})

	g.Go(func() error {
		return ignoreCanceled(persister.Run(gctx))
	})

	err = g.Wait()

	// Refund unfinished hands and write every final balance before exit.
	registry.Close()
	flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if ferr := persister.Flush(flushCtx); ferr != nil {
		logger.Error("Balances left unsaved", "pending", persister.Pending(), "error", ferr)
	}
	return err
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// openStore opens the configured balance store and returns its closer.
func openStore(cfg *config.Config) (balance.Store, func() error, error) {
	initial := cfg.Server.DefaultBalance
	noop := func() error { return nil }

	switch cfg.Storage.Driver {
	case "sqlite":
		s, err := balance.OpenSQLite(cfg.Storage.Path, initial)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return s, s.Close, nil
	case "file":
		s, err := balance.OpenFile(cfg.Storage.Path, initial)
		if err != nil {
			return nil, nil, fmt.Errorf("opening file store: %w", err)
		}
		return s, noop, nil
	}
	return balance.NewMemoryStore(initial), noop, nil
}

func newVerifier(settings *config.AuthSettings, clock quartz.Clock) (auth.Verifier, error) {
	switch settings.Mode {
	case "http":
		return auth.NewHTTPVerifier(settings.URL, settings.AdminSecret), nil
	case "telegram":
		maxAge, err := time.ParseDuration(settings.MaxAge)
		if err != nil {
			return nil, fmt.Errorf("auth: invalid max_age: %w", err)
		}
		return auth.NewTelegramVerifier(settings.BotToken, maxAge, clock), nil
	}
	return auth.NewDevVerifier(), nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
