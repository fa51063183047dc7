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
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/facility-booking/internal/application"
	"github.com/example/facility-booking/internal/auth"
	"github.com/example/facility-booking/internal/broker"
	"github.com/example/facility-booking/internal/config"
	httptransport "github.com/example/facility-booking/internal/http"
	"github.com/example/facility-booking/internal/persistence/sqlite"
	"github.com/example/facility-booking/internal/redisstore"
	"github.com/example/facility-booking/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	storage, err := sqlite.Open(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := storage.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := storage.Migrate(ctx); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	var outbound outboundConfig
	if cfg.Redis.Enabled() {
		client, err := redisstore.Connect(ctx, redisstore.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Error("failed to connect to redis", "error", err, "addr", cfg.Redis.Addr)
			os.Exit(1)
		}
		defer closeQuietly(logger, "redis", client)
		outbound.locker = redisstore.NewLocker(client, redisstore.WithLockLogger(logger))
		outbound.notifiers = append(outbound.notifiers, redisstore.NewFeed(client))
		logger.Info("redis locking and notification feed enabled", "addr", cfg.Redis.Addr)
	}
	if cfg.AMQP.Enabled() {
		publisher, err := broker.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			logger.Error("failed to connect to broker", "error", err)
			os.Exit(1)
		}
		defer closeQuietly(logger, "broker", publisher)
		outbound.notifiers = append(outbound.notifiers, publisher)
		logger.Info("broker publishing enabled", "exchange", cfg.AMQP.Exchange)
	}

	app, err := newApp(cfg, storage, outbound, time.Now, logger)
	if err != nil {
		logger.Error("failed to wire application", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		app.worker.Run(ctx)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("booking API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		stop()
		<-workerDone
		os.Exit(1)
	}
	<-workerDone
}

// outboundConfig carries the optional cross-instance pieces. A nil locker selects the
// in-process KeyedMutex.
type outboundConfig struct {
	locker    application.Locker
	notifiers application.Notifiers
}

type app struct {
	handler      http.Handler
	worker       *worker.ExpiryWorker
	reservations *application.ReservationService
	router       *application.NotificationRouter
	staff        *application.StaffService
}

func newApp(cfg config.Config, storage *sqlite.Storage, outbound outboundConfig, now func() time.Time, logger *slog.Logger) (*app, error) {
	verifier, err := auth.NewTokenVerifier(cfg.TokenSecret, auth.WithClock(now))
	if err != nil {
		return nil, err
	}

	locker := outbound.locker
	if locker == nil {
		locker = application.NewKeyedMutex()
	}
	var notifier application.Notifier
	if len(outbound.notifiers) > 0 {
		notifier = outbound.notifiers
	}

	router := application.NewNotificationRouterWithLogger(
		newNotificationRepositoryAdapter(storage.Notifications()),
		newStaffDirectoryAdapter(storage.Staff()),
		notifier,
		uuid.NewString,
		now,
		logger,
	)
	reservations := application.NewReservationServiceWithLogger(
		newReservationRepositoryAdapter(storage.Reservations()),
		router,
		locker,
		cfg.Policy,
		uuid.NewString,
		now,
		logger,
	)
	staff := application.NewStaffServiceWithLogger(newStaffRepositoryAdapter(storage.Staff()), now, logger)

	handler := httptransport.NewRouter(httptransport.RouterConfig{
		Reservations:  httptransport.NewReservationHandler(reservations, logger),
		Notifications: httptransport.NewNotificationHandler(router, reservations.Policy().Civil, logger),
		Staff:         httptransport.NewStaffHandler(staff, logger),
		Health:        storage.Ping,
		Auth:          httptransport.RequireToken(verifier, logger),
		Middleware:    []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})

	sweeper := worker.NewExpiryWorker(reservations, locker, cfg.ExpiryInterval, worker.WithLogger(logger))

	return &app{
		handler:      handler,
		worker:       sweeper,
		reservations: reservations,
		router:       router,
		staff:        staff,
	}, nil
}

func closeQuietly(logger *slog.Logger, name string, closer io.Closer) {
	if err := closer.Close(); err != nil {
		logger.Error("failed to close connection", "component", name, "error", err)
	}
}
