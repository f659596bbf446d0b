package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"vibe/docs"
	"vibe/internal/config"
	"vibe/internal/db"
	"vibe/internal/handlers"
	"vibe/internal/logger"
	"vibe/internal/metrics"
	"vibe/internal/middleware"
	"vibe/internal/ratelimit"
	"vibe/internal/realtime"
	"vibe/internal/repositories"
	"vibe/internal/routes"
	"vibe/internal/services"
)

// Stores: хранилища, от которых зависит приложение.
type Stores struct {
	Users         repositories.UserRepository
	Verifications repositories.EmailVerificationRepository
	Recoveries    repositories.PasswordRecoveryRepository
}

// PostgresStores собирает репозитории поверх одного пула.
func PostgresStores(conn *sql.DB) Stores {
	return Stores{
		Users:         repositories.NewUserRepository(conn),
		Verifications: repositories.NewEmailVerificationRepository(conn),
		Recoveries:    repositories.NewPasswordRecoveryRepository(conn),
	}
}

// Deps: всё, что нужно для сборки роутера.
type Deps struct {
	Config  *config.Config
	Log     *zap.Logger
	Metrics *metrics.Metrics
	Stores  Stores
	Emails  services.EmailService
	Limiter ratelimit.Limiter
	Checks  map[string]handlers.Pinger
}

// NewRouter связывает сервисы, хендлеры и middleware в gin.Engine.
func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config

	// === Services ===
	authService := services.NewAuthService(cfg.JWT.Secret, cfg.JWT.AccessTTL)
	hub := realtime.NewVerificationHub(logger.WithComponent(d.Log, "realtime"))

	ledger := services.NewVerificationLedger(
		d.Stores.Verifications, nil, nil,
		policyFrom(cfg.Verification),
		logger.WithComponent(d.Log, "ledger"),
	)
	verificationService := services.NewVerificationService(
		ledger, d.Stores.Users, d.Emails, d.Metrics,
		logger.WithComponent(d.Log, "verification"), hub,
	)
	userService := services.NewUserService(
		d.Stores.Users, authService, verificationService, d.Metrics,
		logger.WithComponent(d.Log, "users"),
	)
	recoveryService := services.NewPasswordRecoveryService(
		d.Stores.Users, d.Stores.Recoveries, d.Emails, authService,
		nil, nil, policyFrom(cfg.Recovery), d.Metrics,
		logger.WithComponent(d.Log, "recovery"),
	)

	// === Handlers ===
	httpLog := logger.WithComponent(d.Log, "http")
	authHandler := handlers.NewAuthHandler(userService, authService, httpLog)
	verificationHandler := handlers.NewVerificationHandler(verificationService, cfg.Verification.Window, httpLog)
	recoveryHandler := handlers.NewRecoveryHandler(recoveryService, cfg.Recovery.Window, httpLog)
	healthHandler := handlers.NewHealthHandler(d.Checks, httpLog)
	eventsHandler := handlers.NewEventsHandler(hub, verificationService, httpLog, cfg.CORS.AllowedOrigins...)

	var throttle gin.HandlerFunc
	if cfg.RateLimit.Enabled && d.Limiter != nil {
		throttle = middleware.RateLimit(d.Limiter, "verify", cfg.RateLimit.Requests, cfg.RateLimit.Window, d.Metrics, httpLog)
	}

	// === Gin ===
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(httpLog, d.Metrics))
	router.Use(middleware.Recovery(httpLog))
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))

	// Swagger и метрики
	docs.SwaggerInfo.Host = fmt.Sprintf("localhost:%d", cfg.Server.Port)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	routes.SetupRoutes(
		router,
		authHandler,
		verificationHandler,
		recoveryHandler,
		healthHandler,
		eventsHandler,
		middleware.AuthMiddleware(authService),
		throttle,
	)
	return router
}

func policyFrom(p config.ChallengePolicy) services.LedgerPolicy {
	return services.LedgerPolicy{
		TTL:          p.TTL,
		Cooldown:     p.Cooldown,
		Window:       p.Window,
		MaxPerWindow: p.MaxPerWindow,
	}
}

// newLimiter: Redis, если задан адрес, иначе счётчики в памяти процесса.
func newLimiter(ctx context.Context, cfg config.RateLimitConfig, log *zap.Logger) (ratelimit.Limiter, func(context.Context) error, error) {
	if cfg.RedisAddr == "" {
		mem := ratelimit.NewMemory()
		go mem.Run(ctx, cfg.Window, 2*cfg.Window)
		log.Info("[ratelimit] using in-memory limiter")
		return mem, nil, nil
	}
	client, err := ratelimit.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	log.Info("[ratelimit] using redis limiter", zap.String("addr", cfg.RedisAddr))
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	return ratelimit.NewRedis(client, ""), ping, nil
}

// Run поднимает HTTP-сервер и блокируется до отмены ctx.
func Run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.Env)
	defer func() { _ = log.Sync() }()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// === DB ===
	conn, err := db.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Warn("[db] close failed", zap.Error(err))
		}
	}()
	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx, conn, "up"); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
	}

	checks := map[string]handlers.Pinger{"database": conn}
	limiter, redisPing, err := newLimiter(ctx, cfg.RateLimit, log)
	if err != nil {
		return err
	}
	if redisPing != nil {
		checks["redis"] = handlers.PingFunc(redisPing)
	}

	m := metrics.New()
	emailService := services.NewEmailService(services.EmailSettings{
		SMTPHost:     cfg.Email.SMTPHost,
		SMTPPort:     cfg.Email.SMTPPort,
		SMTPUser:     cfg.Email.SMTPUser,
		SMTPPassword: cfg.Email.SMTPPassword,
		FromEmail:    cfg.Email.FromEmail,
		PublicURL:    cfg.Server.PublicURL,
		DryRun:       cfg.Email.DryRun,
	}, m, logger.WithComponent(log, "email"))

	router := NewRouter(Deps{
		Config:  cfg,
		Log:     log,
		Metrics: m,
		Stores:  PostgresStores(conn),
		Emails:  emailService,
		Limiter: limiter,
		Checks:  checks,
	})

	// === Run ===
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("[app] server started", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	log.Info("[app] shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Migrate применяет goose-команду к базе из конфига.
func Migrate(ctx context.Context, configPath, command string) error {
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer conn.Close()
	return db.Migrate(ctx, conn, command)
}
