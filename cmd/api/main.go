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

	"github.com/ciro140903/airag-auth/internal/auth"
	"github.com/ciro140903/airag-auth/internal/background"
	"github.com/ciro140903/airag-auth/internal/config"
	"github.com/ciro140903/airag-auth/internal/database"
	"github.com/ciro140903/airag-auth/internal/handlers"
	middlewareCustom "github.com/ciro140903/airag-auth/internal/middleware"
	"github.com/ciro140903/airag-auth/internal/models"
	"github.com/ciro140903/airag-auth/internal/repositories"
	"github.com/ciro140903/airag-auth/internal/routes"
	"github.com/ciro140903/airag-auth/internal/services"
	pkgauth "github.com/ciro140903/airag-auth/pkg/auth"
	pkghttp "github.com/ciro140903/airag-auth/pkg/http"
	pkglogger "github.com/ciro140903/airag-auth/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	revokeRepo := repositories.NewTokenRevocationRepository(db)
	rateLimitRepo := repositories.NewRateLimitRepository(db)
	mfaConfigRepo := repositories.NewMFAConfigRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)

	// Token and TOTP managers
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, revokeRepo)

	totpManager, err := auth.NewTOTPManager([]byte(cfg.MFA.EncryptionKey), cfg.MFA.Issuer)
	if err != nil {
		logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
		os.Exit(1)
	}

	// Security services
	auditLogger := pkglogger.NewAuditLogger(logger)
	auditService := services.NewAuditService(auditRepo, auditLogger, logger)

	rateLimitService := services.NewRateLimitService(rateLimitRepo, services.RateLimitConfig{
		LoginLimit:  cfg.Auth.LoginRateLimit,
		LoginWindow: cfg.Auth.LoginRateWindow,
	}, logger)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   100,
		RandomDelayMs: 150,
	})

	var emailService services.EmailService
	if cfg.Email.Enabled {
		emailService, err = services.NewAWSSESEmailService(
			cfg.Email.AWSRegion,
			cfg.Email.FromAddress,
			cfg.Email.ResetURLBase,
			logger,
		)
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		emailService = services.NewNoopEmailService(logger)
	}

	// Domain services
	mfaService := services.NewMFAService(mfaConfigRepo, userRepo, totpManager, auditService, cfg.MFA.BackupCodeCount, logger)
	userService := services.NewUserService(userRepo, auditService, logger)
	authService := services.NewAuthService(
		userRepo, tokenManager, mfaService, rateLimitService,
		timingDelay, emailService, auditService, cfg.Auth, logger,
	)

	// Handlers
	ipConfig := &pkghttp.IPConfig{TrustProxyHeaders: cfg.Server.TrustProxyHeaders}
	authHandler := handlers.NewAuthHandler(authService, ipConfig)
	mfaHandler := handlers.NewMFAHandler(mfaService, ipConfig)
	userHandler := handlers.NewUserHandler(userService, auditService, ipConfig)

	// Bootstrap first admin user if configured
	bootstrapCtx, bootstrapCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(bootstrapCtx, userRepo, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	bootstrapCancel()

	// Cleanup manager
	cleanupManager := background.NewCleanupManager(
		revokeRepo, rateLimitRepo, auditRepo,
		cfg.Auth.AuditRetentionDays, logger, cfg.Auth.CleanupInterval,
	)

	corsConfig := middlewareCustom.NewCORSConfig(cfg.Server.AllowedOrigins)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, mfaHandler, userHandler, tokenManager, userRepo)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminUser creates the first admin user if ADMIN_USERNAME, ADMIN_EMAIL
// and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, logger *slog.Logger) error {
	adminUsername := os.Getenv("ADMIN_USERNAME")
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminUsername == "" || adminEmail == "" || adminPassword == "" {
		logger.Info("admin bootstrap variables not set, skipping admin user creation")
		return nil
	}

	_, err := userRepo.GetByIdentifier(ctx, adminEmail)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	if err := pkgauth.ValidatePassword(adminPassword); err != nil {
		return fmt.Errorf("admin password rejected: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &models.User{
		Username:     adminUsername,
		Email:        adminEmail,
		PasswordHash: hashedPassword,
		Role:         "admin",
		IsActive:     true,
		IsVerified:   true,
	}

	if _, err := userRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created", slog.String("username", adminUsername))
	return nil
}
