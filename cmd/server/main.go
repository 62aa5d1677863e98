package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/pflag"

	"github.com/iliyamo/train-reservation/internal/catalog"
	"github.com/iliyamo/train-reservation/internal/config"
	"github.com/iliyamo/train-reservation/internal/database"
	"github.com/iliyamo/train-reservation/internal/handler"
	"github.com/iliyamo/train-reservation/internal/ledger"
	"github.com/iliyamo/train-reservation/internal/middleware"
	"github.com/iliyamo/train-reservation/internal/model"
	"github.com/iliyamo/train-reservation/internal/queue"
	"github.com/iliyamo/train-reservation/internal/repository"
	"github.com/iliyamo/train-reservation/internal/reservation"
	"github.com/iliyamo/train-reservation/internal/router"
	"github.com/iliyamo/train-reservation/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg := config.FromEnv()
	flagSet := pflag.NewFlagSet("train-reservation", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.CatalogFile, "catalog", cfg.CatalogFile, "YAML train catalog to load at startup")
	flagSet.StringVar(&cfg.Port, "port", cfg.Port, "HTTP port")
	flagSet.StringVar(&cfg.Store, "store", cfg.Store, "storage backend: memory or mysql")
	flagSet.StringVar(&cfg.TicketLogDir, "ticket-log-dir", cfg.TicketLogDir, "directory for the ticket event log")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	cfg.Store = strings.ToLower(cfg.Store)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	trains, err := catalog.LoadFile(cfg.CatalogFile)
	if err != nil {
		return err
	}

	cat, led, closeStore, err := openStore(ctx, cfg, trains)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := []reservation.Option{reservation.WithLogger(logger)}
	if cfg.RabbitMQURL != "" {
		opts = append(opts, reservation.WithPublisher(service.NewAMQPPublisher(cfg.RabbitMQURL, logger)))
		consumer := &queue.Consumer{URL: cfg.RabbitMQURL, LogDir: cfg.TicketLogDir, Logger: logger}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("ticket event consumer stopped", "err", err)
			}
		}()
	} else {
		logger.Info("RABBITMQ_URL not set; ticket events disabled")
	}
	engine := reservation.New(cat, led, opts...)

	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		logger.Warn("redis unavailable; search cache and rate limiting disabled")
	} else {
		defer rdb.Close()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover(), echomw.RequestID(), middleware.RequestLogger(logger))
	router.RegisterRoutes(e)
	router.RegisterReservations(e, handler.NewReservationHandler(engine), router.Options{
		Redis:     rdb,
		Cache:     config.LoadCacheConfig(),
		RateLimit: config.LoadRateLimitConfig(),
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env, "store", cfg.Store, "trains", len(trains))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return e.Shutdown(shutdownCtx)
}

func newLogger(cfg config.Config) *slog.Logger {
	if cfg.IsProd() {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// openStore builds the catalog and ledger for the configured backend.  The
// mysql backend migrates the schema and seeds trains missing from it; the
// stored availability of existing trains is kept.
func openStore(ctx context.Context, cfg config.Config, trains []model.Train) (reservation.Catalog, reservation.Ledger, func(), error) {
	if cfg.Store != config.StoreMySQL {
		cat, err := catalog.NewMemory(trains)
		if err != nil {
			return nil, nil, nil, err
		}
		return cat, ledger.NewMemory(), func() {}, nil
	}

	db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	trainRepo := repository.NewTrainRepo(db)
	if err := trainRepo.Seed(ctx, trains); err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	return trainRepo, repository.NewTicketRepo(db), func() { _ = db.Close() }, nil
}
