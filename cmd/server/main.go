package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"snackkit/backend/internal/cache"
	"snackkit/backend/internal/config"
	"snackkit/backend/internal/domain"
	"snackkit/backend/internal/httpapi"
	"snackkit/backend/internal/invoice"
	"snackkit/backend/internal/logger"
	"snackkit/backend/internal/service"
	"snackkit/backend/internal/store"
	"snackkit/backend/internal/store/memory"
	pgstore "snackkit/backend/internal/store/postgres"
)

// backend is a record store that can also mint invoice numbers.
type backend interface {
	store.Repository
	invoice.Sequencer
}

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if cfg.DotEnvLoaded {
		log.Debug("loaded .env file")
	}
	if err := validateSecurityConfig(cfg); err != nil {
		log.Error("invalid security configuration", slog.Any("error", err))
		os.Exit(1)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Warn("unknown timezone, using UTC", slog.String("timezone", cfg.Timezone), slog.Any("error", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 4)

	repo, closeRepo, err := openRepository(ctx, cfg, log)
	if err != nil {
		log.Error("repository unavailable", slog.Any("error", err))
		os.Exit(1)
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	sequencer := invoice.Sequencer(repo)
	if cfg.InvoiceSequencer == config.SequencerRedis {
		if cfg.RedisAddr == "" {
			log.Error("INVOICE_SEQUENCER=redis requires REDIS_ADDR")
			os.Exit(1)
		}
		redisSeq := invoice.NewRedisSequencer(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, invoice.DefaultRedisKey)
		if err := redisSeq.Ping(ctx); err != nil {
			// Falling back would hand out numbers from a second counter.
			log.Error("redis sequencer unavailable", slog.Any("error", err))
			os.Exit(1)
		}
		sequencer = redisSeq
		closers = append(closers, redisSeq.Close)
		log.Info("invoice sequencer: redis")
	} else {
		log.Info("invoice sequencer: store")
	}

	reportCache := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("redis unavailable, using noop report cache", slog.Any("error", err))
		} else {
			reportCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info("report cache: redis")
		}
	} else {
		log.Info("report cache: noop")
	}

	svc := service.New(repo, sequencer, service.Options{
		Cache:    reportCache,
		CacheTTL: cfg.AnalyticsCacheTTL(),
		Logger:   log,
		Location: loc,
		Renderer: invoice.Renderer{
			Title:    cfg.InvoiceTitle,
			Currency: cfg.CurrencySymbol,
			Location: loc,
		},
		ShareBaseURL: cfg.ShareBaseURL,
	})

	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	if cfg.DemoEnabled() {
		auth.SetDemoAccount(cfg.DemoEmail, cfg.DemoPassword)
		log.Info("demo account enabled", slog.String("email", cfg.DemoEmail))
	}
	unsubscribe := auth.OnSessionChange(func(event domain.SessionEvent) {
		log.Info("session changed", slog.String("event", string(event.Type)), slog.String("email", event.Email))
	})
	defer unsubscribe()

	api := httpapi.New(svc, auth, cfg.AllowedOrigin, log)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("snack kit backend listening", slog.String("addr", cfg.Address()), slog.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error("close error", slog.Any("error", err))
		}
	}

	log.Info("server stopped")
}

// openRepository picks postgres when DATABASE_URL is set, a file-backed
// local store when DATA_DIR is set, and a seeded in-memory store otherwise.
func openRepository(ctx context.Context, cfg config.Config, log *slog.Logger) (backend, func() error, error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("postgres schema: %w", err)
		}
		log.Info("repository: postgres")
		return pg, pg.Close, nil
	case cfg.DataDir != "":
		blobs, err := memory.NewDirBlobs(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("data dir: %w", err)
		}
		log.Info("repository: local files", slog.String("dir", cfg.DataDir))
		return memory.New(blobs), nil, nil
	default:
		log.Info("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.DemoEmail != "" && len(cfg.DemoPassword) < 8 {
		return fmt.Errorf("DEMO_PASSWORD must be at least 8 characters when DEMO_EMAIL is set")
	}
	return nil
}
