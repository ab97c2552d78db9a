package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/vetsuite/vetsuite/internal/availability"
	"github.com/vetsuite/vetsuite/internal/billing"
	"github.com/vetsuite/vetsuite/internal/consumer"
	"github.com/vetsuite/vetsuite/internal/handlers"
	"github.com/vetsuite/vetsuite/internal/inbox"
	"github.com/vetsuite/vetsuite/internal/lifecycle"
	"github.com/vetsuite/vetsuite/internal/model"
	"github.com/vetsuite/vetsuite/internal/outbox"
	"github.com/vetsuite/vetsuite/internal/reschedule"
	"github.com/vetsuite/vetsuite/internal/storage"
	"github.com/vetsuite/vetsuite/libs/config"
	"github.com/vetsuite/vetsuite/libs/db"
	"github.com/vetsuite/vetsuite/libs/httpx"
	"github.com/vetsuite/vetsuite/libs/kafkax"
	otelx "github.com/vetsuite/vetsuite/libs/otel"
	"github.com/vetsuite/vetsuite/libs/runtime"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "vetsuite")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.DefaultOptions())
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	repo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	billingSvc := billing.New(repo, outboxRepo, logger,
		config.String("STRIPE_SECRET_KEY", ""),
		config.String("STRIPE_CURRENCY", "usd"))

	availabilitySvc := availability.NewService(repo)
	lifecycleSvc := lifecycle.NewService(repo, outboxRepo, billingSvc, logger)
	rescheduleSvc := reschedule.NewService(repo, outboxRepo, logger)

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	// Override approvals come back from the staffing back office on a
	// Kafka topic; the HTTP admin endpoint is the manual fallback.
	overridesTopic := config.String("KAFKA_OVERRIDES_TOPIC", "hr.schedule_overrides.resolved.v1")
	if strings.TrimSpace(brokers) != "" && strings.TrimSpace(overridesTopic) != "" {
		inboxRepo := inbox.NewRepository(pool)
		overrideConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "vetsuite"),
			Topic:   overridesTopic,
		}, overrideHandler(repo, logger))
		go overrideConsumer.Run(ctx)
	}

	availabilityHandler := handlers.NewAvailabilityHandler(availabilitySvc, logger)
	appointmentHandler := handlers.NewAppointmentHandler(lifecycleSvc, repo, logger)
	rescheduleHandler := handlers.NewRescheduleHandler(rescheduleSvc, logger)
	scheduleHandler := handlers.NewScheduleHandler(repo, logger)

	publicLimit := wrapPublic(ctx, logger)

	mux := runtime.NewBaseMux(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.Handle("/api/v1/public/slots", publicLimit(http.HandlerFunc(availabilityHandler.Slots)))
	mux.Handle("/api/v1/public/time-range", publicLimit(http.HandlerFunc(availabilityHandler.TimeRange)))
	mux.Handle("/api/v1/public/practitioners", publicLimit(http.HandlerFunc(availabilityHandler.Practitioners)))
	mux.HandleFunc("/api/v1/appointments", appointmentHandler.Appointments)
	mux.HandleFunc("/api/v1/appointments/cancel", appointmentHandler.Cancel)
	mux.HandleFunc("/api/v1/appointments/cancel-preview", appointmentHandler.CancelPreview)
	mux.HandleFunc("/api/v1/appointments/status", appointmentHandler.SetStatus)
	mux.HandleFunc("/api/v1/appointments/services", appointmentHandler.Services)
	mux.HandleFunc("/api/v1/reschedules", rescheduleHandler.Requests)
	mux.HandleFunc("/api/v1/reschedules/approve", rescheduleHandler.Approve)
	mux.HandleFunc("/api/v1/reschedules/reject", rescheduleHandler.Reject)
	mux.HandleFunc("/api/v1/reschedules/force", rescheduleHandler.Force)
	mux.HandleFunc("/api/v1/schedule/working-hours", scheduleHandler.WorkingHours)
	mux.HandleFunc("/api/v1/schedule/overrides", scheduleHandler.Overrides)
	mux.HandleFunc("/api/v1/schedule/overrides/resolve", scheduleHandler.ResolveOverride)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(config.String("CORS_ORIGINS", ""), ","),
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
			AllowedHeaders: []string{"Content-Type", handlers.HeaderUserID, handlers.HeaderUserRole},
			MaxAge:         10 * time.Minute,
		}),
	)
	httpHandler = handlers.WithIdentity(httpHandler)
	httpHandler = otelhttp.NewHandler(httpHandler, "vetsuite")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// wrapPublic builds the rate-limit middleware for the unauthenticated
// endpoints: Redis-backed when REDIS_ADDR is set, in-process otherwise.
func wrapPublic(ctx context.Context, logger *slog.Logger) httpx.Middleware {
	limit := config.Int("RATE_LIMIT_PER_MINUTE", 120)

	redisAddr := config.String("REDIS_ADDR", "")
	if strings.TrimSpace(redisAddr) == "" {
		logger.Warn("REDIS_ADDR not set; using in-process rate limiter")
		return httpx.NewRateLimiter(limit, time.Minute).Middleware()
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable at startup; limiter will fail open", "err", err)
	}
	return httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "vetsuite:public").Middleware(logger, true)
}

// overrideHandler applies one staffing decision from the HR topic.
func overrideHandler(repo *storage.Repository, logger *slog.Logger) consumer.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			OverrideID string `json:"override_id"`
			Approved   bool   `json:"approved"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid override event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if strings.TrimSpace(payload.OverrideID) == "" {
			logger.Error("override event missing override_id", "topic", msg.Topic)
			return nil
		}

		status := model.OverrideRejected
		if payload.Approved {
			status = model.OverrideApproved
		}
		if err := repo.ResolveOverride(ctx, payload.OverrideID, status); err != nil {
			if storage.IsNotFound(err) {
				// Already resolved, or the HTTP fallback got there first.
				logger.Warn("override not pending; decision ignored", "override_id", payload.OverrideID)
				return nil
			}
			return err
		}
		logger.Info("override resolved from event", "override_id", payload.OverrideID, "status", status)
		return nil
	}
}
