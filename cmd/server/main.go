package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/healthy-mentoring/server-go/internal/config"
	"github.com/healthy-mentoring/server-go/internal/database"
	"github.com/healthy-mentoring/server-go/internal/gateway"
	"github.com/healthy-mentoring/server-go/internal/handler"
	"github.com/healthy-mentoring/server-go/internal/jobs"
	"github.com/healthy-mentoring/server-go/internal/middleware"
	"github.com/healthy-mentoring/server-go/internal/notify"
	"github.com/healthy-mentoring/server-go/internal/redis"
	"github.com/healthy-mentoring/server-go/internal/repository"
	"github.com/healthy-mentoring/server-go/internal/schedule"
	"github.com/healthy-mentoring/server-go/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	accountRepo := repository.NewAccountRepository(db.DB)
	mentorRepo := repository.NewMentorRepository(db.DB)
	clientRepo := repository.NewClientRepository(db.DB)
	sessionRepo := repository.NewSessionRepository(db.DB)
	paymentRepo := repository.NewPaymentRepository(db.DB)
	clientWalletRepo := repository.NewClientWalletRepository(db.DB)
	mentorWalletRepo := repository.NewMentorWalletRepository(db.DB)

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.NotifyWebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.NotifyWebhookURL)
	}
	paymentGateway := gateway.NewStripeGateway(cfg.StripeBaseURL, cfg.StripeSecretKey)
	zones := schedule.SystemZones()

	walletService := service.NewWalletService(clientWalletRepo, mentorWalletRepo)
	settlementService := service.NewSettlementService(
		db, sessionRepo, paymentRepo, walletService, notifier,
		cfg.CancellationWindow(), cfg.RefundWindow(),
	)
	availabilityService := service.NewAvailabilityService(
		db, mentorRepo, sessionRepo, zones, redisClient,
	)
	bookingService := service.NewBookingService(
		db, mentorRepo, clientRepo, sessionRepo, paymentRepo,
		walletService, paymentGateway, notifier, zones,
		cfg.PlatformCommissionPercent,
	)

	authMiddleware := middleware.NewAuthMiddleware(accountRepo)
	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient, cfg.BookingRateLimitPerMin)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	availabilityHandler := handler.NewAvailabilityHandler(availabilityService, mentorRepo)
	bookingHandler := handler.NewBookingHandler(bookingService, clientRepo)
	sessionHandler := handler.NewSessionHandler(settlementService, sessionRepo, mentorRepo, clientRepo)
	walletHandler := handler.NewWalletHandler(
		bookingService, mentorRepo, clientRepo, paymentRepo, clientWalletRepo, mentorWalletRepo,
	)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)
	r.Use(securityHeadersMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authMiddleware.Handler)

		r.Mount("/availability", availabilityHandler.Routes())
		r.Mount("/sessions", sessionHandler.Routes())
		r.Mount("/wallet", walletHandler.Routes())

		r.Route("/bookings", func(r chi.Router) {
			r.Use(rateLimitMiddleware.Handler)
			r.Mount("/", bookingHandler.Routes())
		})
	})

	cleanupJob := jobs.NewCleanupJob(
		sessionRepo, availabilityService, settlementService, cfg.CleanupInterval(),
	)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerRequestTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
