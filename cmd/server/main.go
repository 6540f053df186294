package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"autoagenda/internal/alerts"
	"autoagenda/internal/api"
	"autoagenda/internal/calendar"
	"autoagenda/internal/config"
	"autoagenda/internal/database"
	"autoagenda/internal/domain"
	"autoagenda/internal/events"
	"autoagenda/internal/guard"
	"autoagenda/internal/logging"
	"autoagenda/internal/metrics"
	"autoagenda/internal/repository"
	"autoagenda/internal/service"
	"autoagenda/internal/telegram"
	"autoagenda/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}
	mainLogger := logging.Component(logger, "main")

	if err := prepareDirectories(cfg); err != nil {
		mainLogger.Error().Err(err).Msg("prepare directories")
		return err
	}

	metrics.Register()

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		mainLogger.Error().Err(err).Msg("database init failed")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, locker, window := initCoordination(ctx, cfg, logger)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}

	sender, err := telegram.NewSender(cfg.Telegram.BotToken, cfg.Telegram.Debug, cfg.Alerts.AdminChatID, logger)
	if err != nil {
		mainLogger.Error().Err(err).Msg("telegram init failed")
		return err
	}

	pipeline := alerts.NewPipeline(window, sender, db, cfg.Alerts.RateLimit, cfg.Alerts.Window(), logger)

	calendarClient, err := initCalendar(ctx, cfg, logger)
	if err != nil {
		return err
	}

	eventBus := events.NewEventBus()

	saga := service.NewCalendarSyncSaga(db, calendarClient, pipeline, eventBus, logger)
	bookingService := service.NewBookingService(db, locker, saga, eventBus, service.BookingOptions{
		LockWait:        cfg.Booking.LockWait(),
		LockTTL:         cfg.Booking.LockTTL(),
		SlotGranularity: cfg.Booking.SlotGranularity(),
	}, logger)

	notifyWorker := worker.NewNotifyWorker(db, sender, pipeline, eventBus,
		worker.RetryPolicy{
			MaxRetries:   cfg.Notifications.MaxRetries,
			InitialDelay: time.Duration(cfg.Notifications.InitialDelaySeconds) * time.Second,
		},
		cfg.Notifications.TTL(), cfg.Notifications.PollInterval(), cfg.Notifications.BatchSize, logger)
	go notifyWorker.Start(ctx)

	subscribeBookingEvents(ctx, eventBus, notifyWorker, logger)

	if cfg.Monitoring.PrometheusEnabled {
		startMetricsServer(cfg.Monitoring.PrometheusPort, logger)
	}

	exporter := api.NewExporter(cfg.Exports.Path, logger)
	apiServer := api.NewHTTPServer(cfg.API, bookingService, db, guard.New(guard.DefaultLimits()), exporter, logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			mainLogger.Error().Err(err).Msg("API server error")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = apiServer.Shutdown(shutdownCtx)
	}()

	mainLogger.Info().Msg("autoagenda started")
	<-ctx.Done()
	mainLogger.Info().Msg("shutdown complete")
	return nil
}

func prepareDirectories(cfg *config.Config) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return err
	}
	if cfg.Exports.Path != "" {
		if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// initCoordination wires the slot locker and alert window. With redis
// configured both get a failover wrapper; without it they run in-process.
func initCoordination(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, domain.SlotLocker, domain.AlertWindow) {
	memLocker := repository.NewMemorySlotLocker()
	memWindow := repository.NewMemoryAlertWindow()

	if cfg.Redis.Address == "" {
		return nil, memLocker, memWindow
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		mainLogger := logging.Component(logger, "main")
		mainLogger.Warn().Err(err).Msg("redis unavailable, starting degraded")
	}

	locker := repository.NewFailoverSlotLocker(repository.NewRedisSlotLocker(redisClient), memLocker, logger)
	window := repository.NewFailoverAlertWindow(repository.NewRedisAlertWindow(redisClient, ""), memWindow, logger)
	return redisClient, locker, window
}

func initCalendar(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*calendar.Service, error) {
	mainLogger := logging.Component(logger, "main")

	if cfg.Calendar.CredentialsFile == "" || cfg.Calendar.CalendarID == "" {
		mainLogger.Error().Msg("calendar credentials_file and calendar_id are required")
		return nil, os.ErrInvalid
	}

	svc, err := calendar.NewService(ctx, cfg.Calendar.CredentialsFile, cfg.Calendar.CalendarID, cfg.Calendar.Timezone)
	if err != nil {
		mainLogger.Error().Err(err).Msg("calendar service init failed")
		return nil, err
	}

	if err := svc.TestConnection(ctx); err != nil {
		mainLogger.Error().Err(err).Msg("calendar connection test failed")
		return nil, err
	}

	mainLogger.Info().Msg("calendar service initialized")
	return svc, nil
}

func startMetricsServer(port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		addr := fmt.Sprintf(":%d", port)
		metricsLogger := logging.Component(logger, "metrics")
		metricsLogger.Info().Str("addr", addr).Msg("metrics listening")
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			metricsLogger.Error().Err(err).Msg("metrics server error")
		}
	}()
}

// subscribeBookingEvents enqueues a user notification whenever a booking
// is confirmed.
func subscribeBookingEvents(ctx context.Context, bus *events.EventBus, notifyWorker *worker.NotifyWorker, logger *zerolog.Logger) {
	busLogger := logging.Component(logger, "events")

	bus.Subscribe(events.EventBookingConfirmed, func(ev *events.Event) error {
		var payload events.BookingEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			busLogger.Error().Err(err).Str("event", ev.Type).Msg("decode payload")
			return nil
		}

		message := fmt.Sprintf("Tu reserva #%d está confirmada para el %s.",
			payload.BookingID, payload.StartTime.Format("02.01.2006 15:04"))
		if err := notifyWorker.Enqueue(ctx, payload.BookingID, payload.UserID, message); err != nil {
			busLogger.Error().Err(err).Int64("booking_id", payload.BookingID).Msg("enqueue notification")
		}
		return nil
	})
}
