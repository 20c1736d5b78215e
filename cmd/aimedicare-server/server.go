package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/aimedicare/aimedicare/internal/config"
	"github.com/aimedicare/aimedicare/internal/domain/calculator"
	"github.com/aimedicare/aimedicare/internal/domain/prediction"
	"github.com/aimedicare/aimedicare/internal/domain/symptom"
	"github.com/aimedicare/aimedicare/internal/domain/user"
	"github.com/aimedicare/aimedicare/internal/platform/apperror"
	"github.com/aimedicare/aimedicare/internal/platform/auth"
	"github.com/aimedicare/aimedicare/internal/platform/db"
	"github.com/aimedicare/aimedicare/internal/platform/middleware"
	"github.com/aimedicare/aimedicare/internal/platform/notification"
	"github.com/aimedicare/aimedicare/internal/platform/telemetry"
	"github.com/aimedicare/aimedicare/internal/platform/upstream"
)

const (
	welcomeMessage  = "Welcome to AI Medicare"
	bodyLimit       = "100K"
	shutdownTimeout = 10 * time.Second
)

// components are the collaborators newServer wires into routes. Tests swap
// the repository and upstream clients for fakes.
type components struct {
	cfg         *config.Config
	logger      zerolog.Logger
	metrics     *telemetry.Metrics
	repo        user.Repository
	dbHealth    echo.HandlerFunc
	limiter     middleware.Limiter
	mailer      *notification.Mailer
	revocations *auth.TokenRevocationStore
	symptoms    symptom.Lookup
	predictor   prediction.Predictor
}

func newServer(c components) (*echo.Echo, *user.Service) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(c.logger)

	// Global middleware
	e.Use(middleware.Recovery(c.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(c.logger))
	e.Use(c.metrics.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: c.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
	}))
	e.Use(echomw.BodyLimit(bodyLimit))

	e.GET("/", func(ctx echo.Context) error {
		return ctx.String(http.StatusOK, welcomeMessage)
	})
	e.GET("/health", func(ctx echo.Context) error {
		return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if c.dbHealth != nil {
		e.GET("/health/db", c.dbHealth)
	}
	e.GET("/metrics", c.metrics.Handler())

	codec := auth.NewTokenCodec([]byte(c.cfg.JWTSecret), c.cfg.JWTExpiresIn)
	authn := auth.NewAuthenticator(codec, user.NewPrincipalLoader(c.repo), c.revocations)
	protect := authn.Protect()

	rateCfg := middleware.RateLimitConfig{
		RequestsPerSecond: c.cfg.RateLimitRPS,
		BurstSize:         c.cfg.RateLimitBurst,
	}
	limit := middleware.RateLimit(c.limiter, rateCfg, c.logger)

	svc := user.NewService(user.Options{
		Repo:          c.repo,
		Authenticator: authn,
		Hasher:        auth.NewPasswordHasher(c.cfg.BcryptCost),
		Mailer:        c.mailer,
		Metrics:       c.metrics,
		Logger:        c.logger,
		ResetTTL:      c.cfg.PasswordResetTTL,
	})
	user.NewHandler(svc).RegisterRoutes(e.Group("/api/users"), protect, limit)

	// Gates are attached per route so unknown paths under a group still 404.
	timeout := middleware.RequestTimeout(c.cfg.UpstreamTimeout)
	patientOnly := auth.RestrictTo(auth.RolePatient)
	patients := e.Group("/api/patients")
	calculator.NewHandler().RegisterRoutes(patients, protect, patientOnly)
	symptom.NewHandler(c.symptoms).RegisterRoutes(patients, protect, patientOnly, timeout)

	doctors := e.Group("/api/doctors")
	prediction.NewHandler(c.predictor).RegisterRoutes(doctors, protect, auth.RestrictTo(auth.RoleDoctor), timeout)

	return e, svc
}

// newLimiter prefers a shared Redis window when REDIS_URL is set and
// reachable, and falls back to per-process token buckets.
func newLimiter(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (middleware.Limiter, func()) {
	rateCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if cfg.RedisURL == "" {
		return middleware.NewMemoryLimiter(rateCfg), func() {}
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid REDIS_URL, using in-memory rate limiting")
		return middleware.NewMemoryLimiter(rateCfg), func() {}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable, using in-memory rate limiting")
		client.Close()
		return middleware.NewMemoryLimiter(rateCfg), func() {}
	}

	logger.Info().Str("addr", opts.Addr).Msg("rate limiting backed by redis")
	return middleware.NewRedisLimiter(client, rateCfg), func() { client.Close() }
}

func newMailSender(cfg *config.Config, logger zerolog.Logger) notification.EmailSender {
	if !cfg.SMTPEnabled() {
		logger.Warn().Msg("EMAIL_HOST not set, outbound mail is logged instead of sent")
		return notification.NewLogSender(logger)
	}
	return notification.NewSMTPSender(notification.SMTPConfig{
		Host:     cfg.EmailHost,
		Port:     cfg.EmailPort,
		Username: cfg.EmailUsername,
		Password: cfg.EmailPassword,
		From:     cfg.EmailFrom,
	})
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	limiter, closeLimiter := newLimiter(ctx, cfg, logger)
	defer closeLimiter()

	revocations := auth.NewTokenRevocationStore(5 * time.Minute)
	defer revocations.Close()

	metrics := telemetry.NewMetrics()
	httpClient := upstream.NewHTTPClient(cfg.UpstreamTimeout)

	symptomClient := symptom.NewClient(symptom.Config{
		APIKey:    cfg.PriaidAPIKey,
		SecretKey: cfg.PriaidSecretKey,
		AuthURL:   cfg.PriaidAuthURL,
		HealthURL: cfg.PriaidHealthURL,
	}, symptom.WithHTTPClient(httpClient), symptom.WithMetrics(metrics), symptom.WithLogger(logger))
	if !symptomClient.Configured() {
		logger.Warn().Msg("PRIAID_API_KEY/PRIAID_SECRET_KEY not set, symptom checker routes will answer 502")
	}

	e, svc := newServer(components{
		cfg:         cfg,
		logger:      logger,
		metrics:     metrics,
		repo:        user.NewRepo(pool),
		dbHealth:    db.HealthHandler(pool),
		limiter:     limiter,
		mailer:      notification.NewMailer(newMailSender(cfg, logger), notification.NewTemplateEngine()),
		revocations: revocations,
		symptoms:    symptomClient,
		predictor:   prediction.NewClient(cfg.PredictionURL, httpClient, metrics),
	})

	sweeper, err := user.NewResetTokenSweeper(svc, cfg.ResetSweepSchedule, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid RESET_SWEEP_SCHEDULE")
	}
	sweeper.Start()

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	sweeper.Stop(shutdownCtx)
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
