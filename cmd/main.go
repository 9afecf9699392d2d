package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/plant-maintenance/internal/auth"
	"github.com/ukydev/plant-maintenance/internal/clock"
	"github.com/ukydev/plant-maintenance/internal/config"
	"github.com/ukydev/plant-maintenance/internal/db"
	"github.com/ukydev/plant-maintenance/internal/handlers"
	"github.com/ukydev/plant-maintenance/internal/maintenance"
	"github.com/ukydev/plant-maintenance/internal/metrics"
	"github.com/ukydev/plant-maintenance/internal/middleware"
	"github.com/ukydev/plant-maintenance/internal/notify"
	"github.com/ukydev/plant-maintenance/internal/plant"
	"github.com/ukydev/plant-maintenance/internal/storage"
	"github.com/ukydev/plant-maintenance/internal/ticket"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	log := cfg.Log.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("Server stopped with error")
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	clk := clock.Real{}

	client, err := db.ConnectMongo(ctx, cfg.Mongo)
	if err != nil {
		return fmt.Errorf("connect to MongoDB: %w", err)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
	}()
	log.WithField("database", cfg.Mongo.Database).Info("Connected to MongoDB")

	store := db.NewStore(client, cfg.Mongo.Database, cfg.Mongo.Transactions)
	if err := store.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	recorder := metrics.New()

	tickets, closeTickets := buildTickets(ctx, cfg.Redis, clk, log)
	defer closeTickets()

	files, err := buildStorage(ctx, cfg, clk)
	if err != nil {
		return err
	}
	log.WithField("driver", cfg.Storage.Driver).Info("Attachment storage ready")

	sinks, closeSinks := buildSinks(cfg, log)
	defer closeSinks()
	dispatcher := notify.NewDispatcher(notify.Config{
		Workers:    cfg.Notify.Workers,
		QueueSize:  cfg.Notify.QueueSize,
		MaxRetries: cfg.Notify.MaxRetries,
		RetryDelay: cfg.Notify.RetryDelay,
	}, log, recorder, sinks...)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	composer, err := notify.NewComposer(cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("notification templates: %w", err)
	}

	service := maintenance.NewService(maintenance.Deps{
		Requests:        store.Requests,
		Machines:        store.Machines,
		Lines:           store.Lines,
		Employees:       store.Employees,
		Tx:              store,
		Tickets:         tickets,
		Notifier:        dispatcher,
		Composer:        composer,
		Clock:           clk,
		Metrics:         recorder,
		Logger:          log,
		SupervisorEmail: cfg.Mail.SupervisorAddress,
	})

	plants := plant.NewService(plant.Deps{
		Machines: store.Machines,
		Lines:    store.Lines,
		Requests: store.Requests,
		Tx:       store,
		Clock:    clk,
		Metrics:  recorder,
		Logger:   log,
	})

	authService := auth.NewService(cfg.JWT, clk)
	limiter := middleware.NewRateLimitMiddleware(clk)
	go sweepLimiter(ctx, limiter, time.Minute)

	handler := newHandler(cfg, log, clk, limiter, handlerDeps{
		auth:        authService,
		employees:   store.Employees,
		departments: store.Departments,
		service:     service,
		plants:      plants,
		files:       files,
		db:          store,
		metrics:     recorder,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type handlerDeps struct {
	auth        *auth.Service
	employees   handlers.EmployeeStore
	departments handlers.DepartmentStore
	service     handlers.MaintenanceService
	plants      handlers.PlantService
	files       storage.Store
	db          handlers.Pinger
	metrics     *metrics.Recorder
}

// newHandler assembles routes and the middleware chain.
func newHandler(cfg *config.Config, log logrus.FieldLogger, clk clock.Clock, limiter *middleware.RateLimitMiddleware, d handlerDeps) http.Handler {
	authMW := middleware.NewAuthMiddleware(d.auth, log)
	uploader := storage.NewUploader(d.files, cfg.Storage.MaxFileBytes, cfg.Storage.MaxFilesPerOp, cfg.Storage.AllowedMIMEs)

	var plants *handlers.PlantHandler
	if d.plants != nil {
		plants = handlers.NewPlantHandler(d.plants)
	}

	mux := http.NewServeMux()
	handlers.Router{
		Auth:        authMW,
		Login:       handlers.NewAuthHandler(d.auth, d.employees, d.departments, log),
		Maintenance: handlers.NewMaintenanceHandler(d.service, uploader, clk, log),
		Attachments: handlers.NewAttachmentHandler(d.files, log),
		Plant:       plants,
		Health:      handlers.Health(d.db),
		Metrics:     d.metrics.Handler(),
	}.Register(mux)

	var h http.Handler = d.metrics.Middleware(mux)
	h = authMW.Authenticate(h)
	h = limiter.RateLimit(cfg.RateLimit.RequestsPerMinute, 60)(h)
	return middleware.Logging(log)(h)
}

func sweepLimiter(ctx context.Context, limiter *middleware.RateLimitMiddleware, window time.Duration) {
	ticker := time.NewTicker(window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep(window)
		}
	}
}

// buildTickets returns a generator that reserves codes in Redis when configured.
func buildTickets(ctx context.Context, cfg config.RedisConfig, clk clock.Clock, log logrus.FieldLogger) (*ticket.Generator, func()) {
	if cfg.Addr == "" {
		log.Info("Redis not configured, ticket codes are not reserved")
		return ticket.NewGenerator(clk), func() {}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("Redis unreachable, reservations will fail until it recovers")
	}
	return ticket.NewGenerator(clk, ticket.WithReserver(ticket.NewRedisReserver(rdb, cfg.Prefix))),
		func() { _ = rdb.Close() }
}

// buildStorage picks the attachment store for cfg.Storage.Driver.
func buildStorage(ctx context.Context, cfg *config.Config, clk clock.Clock) (storage.Store, error) {
	switch strings.ToLower(cfg.Storage.Driver) {
	case "", "local":
		s, err := storage.NewLocalStore(cfg.Storage.LocalDir, clk)
		if err != nil {
			return nil, fmt.Errorf("local storage: %w", err)
		}
		return s, nil
	case "minio":
		s, err := storage.NewMinioStore(cfg.Minio, clk)
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("minio bucket: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// buildSinks creates a sink for every configured channel. Channels that
// fail to start are logged and skipped.
func buildSinks(cfg *config.Config, log logrus.FieldLogger) ([]notify.Sink, func()) {
	var sinks []notify.Sink
	cleanup := func() {}

	if cfg.Mail.Host != "" {
		sinks = append(sinks, notify.NewMailSink(cfg.Mail))
	}
	if cfg.Webhook.URL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.Webhook.URL, cfg.Webhook.Timeout))
	}
	if cfg.MQTT.Broker != "" {
		client, err := notify.NewMQTTClient(cfg.MQTT)
		if err != nil {
			log.WithError(err).Warn("MQTT sink disabled")
		} else {
			sinks = append(sinks, notify.NewMQTTSink(client, cfg.MQTT.TopicPrefix))
			cleanup = func() { client.Disconnect(250) }
		}
	}

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	log.WithField("sinks", names).Info("Notification sinks configured")
	return sinks, cleanup
}
