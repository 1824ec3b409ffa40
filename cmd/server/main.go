package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"pomodoro/sessions/internal/clock"
	"pomodoro/sessions/internal/config"
	"pomodoro/sessions/internal/db"
	"pomodoro/sessions/internal/events"
	"pomodoro/sessions/internal/handler"
	"pomodoro/sessions/internal/logging"
	"pomodoro/sessions/internal/notify"
	"pomodoro/sessions/internal/repository"
	"pomodoro/sessions/internal/router"
	"pomodoro/sessions/internal/service"
	"pomodoro/sessions/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn().Err(err).Msg("flush traces")
		}
	}()

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	if _, err := db.RunMigrations(ctx, database, cfg.MigrationsDir); err != nil {
		return err
	}

	userRepo := repository.NewUserRepository(database)
	activityRepo := repository.NewActivityRepository(database)
	sessionRepo := repository.NewSessionRepository(database)
	notificationRepo := repository.NewNotificationRepository(database)

	broker := events.NewBroker(cfg.EventsBuffer)
	defer broker.Close()

	var publisher events.Publisher = broker
	var relay *events.RedisRelay
	if cfg.RedisAddr != "" {
		pool := events.NewRedisPool(cfg.RedisAddr)
		defer pool.Close()
		relay = events.NewRedisRelay(pool, broker, uuid.NewString())
		publisher = relay
		log.Info().Str("addr", cfg.RedisAddr).Msg("relaying session events through redis")
	}

	realClock := clock.Real{}
	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.TokenTTL())
	activityService := service.NewActivityService(activityRepo)
	sessionService := service.NewSessionService(sessionRepo, notificationRepo, activityRepo, realClock, publisher)

	metrics, err := notify.NewMetrics()
	if err != nil {
		return err
	}
	poller := notify.NewPoller(notificationRepo, sessionRepo, notify.LogSender{}, realClock, notify.Config{
		Interval:        cfg.DispatchInterval,
		CleanupInterval: cfg.CleanupInterval,
		Retention:       cfg.Retention,
		MaxAttempts:     cfg.MaxAttempts,
		SendTimeout:     cfg.SendTimeout,
	}, metrics)

	engine := router.New(authService, router.Handlers{
		Auth:     handler.NewAuthHandler(authService),
		Activity: handler.NewActivityHandler(activityService),
		Session:  handler.NewSessionHandler(sessionService),
		Events:   handler.NewEventsHandler(broker, 0),
	}, cfg.CORSOrigins)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return poller.Run(groupCtx)
	})
	if relay != nil {
		group.Go(func() error {
			if err := relay.Run(groupCtx); err != nil {
				log.Error().Err(err).Msg("redis event relay stopped, events stay local")
			}
			return nil
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info().Msg("shutting down")
		// Open event streams would hold Shutdown until the deadline.
		broker.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
