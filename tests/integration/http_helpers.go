package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ciro140903/airag-auth/internal/auth"
	"github.com/ciro140903/airag-auth/internal/config"
	"github.com/ciro140903/airag-auth/internal/database"
	"github.com/ciro140903/airag-auth/internal/handlers"
	middlewareCustom "github.com/ciro140903/airag-auth/internal/middleware"
	"github.com/ciro140903/airag-auth/internal/routes"
	"github.com/ciro140903/airag-auth/internal/services"
	pkghttp "github.com/ciro140903/airag-auth/pkg/http"
	pkglogger "github.com/ciro140903/airag-auth/pkg/logger"
)

// SentEmail represents a captured email message
type SentEmail struct {
	To    string
	Token string
}

// CapturingEmailService records reset emails for test assertions
type CapturingEmailService struct {
	mu    sync.Mutex
	Sent  []SentEmail
}

func (m *CapturingEmailService) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentEmail{To: email, Token: token})
	return nil
}

// LastEmail returns the most recent captured email, or nil
func (m *CapturingEmailService) LastEmail() *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return nil
	}
	return &m.Sent[len(m.Sent)-1]
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	EmailService *CapturingEmailService
	Config       *config.Config
	TOTPManager  *auth.TOTPManager

	logger *slog.Logger
}

// NewTestServer initializes a complete HTTP server with a real database and
// a captured email service
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:           "test-secret-32-characters-long-for-testing",
			AccessTokenTTL:      15 * time.Minute,
			RefreshTokenTTL:     7 * 24 * time.Hour,
			RememberMeAccessTTL: 24 * time.Hour,
			ResetTokenTTL:       1 * time.Hour,
			MaxLoginAttempts:    5,
			LockoutDuration:     15 * time.Minute,
			LoginRateLimit:      1000,
			LoginRateWindow:     1 * time.Minute,
			CleanupInterval:     1 * time.Hour,
			AuditRetentionDays:  90,
		},
		MFA: config.MFAConfig{
			Issuer:          "AIRAGTest",
			EncryptionKey:   "0123456789abcdef0123456789abcdef",
			BackupCodeCount: 10,
		},
		Server: config.ServerConfig{
			Port:           "0",
			Env:            "test",
			AllowedOrigins: []string{},
		},
	}

	userRepo, revokeRepo, rateLimitRepo, mfaConfigRepo, auditRepo := InitializeRepositories(db)

	mockEmail := &CapturingEmailService{}

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, revokeRepo)

	totpManager, err := auth.NewTOTPManager([]byte(cfg.MFA.EncryptionKey), cfg.MFA.Issuer)
	if err != nil {
		panic("failed to create TOTP manager: " + err.Error())
	}

	auditLogger := pkglogger.NewAuditLogger(logger)
	auditService := services.NewAuditService(auditRepo, auditLogger, logger)

	rateLimitService := services.NewRateLimitService(rateLimitRepo, services.RateLimitConfig{
		LoginLimit:  cfg.Auth.LoginRateLimit,
		LoginWindow: cfg.Auth.LoginRateWindow,
	}, logger)

	// No artificial delay in tests
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{})

	mfaService := services.NewMFAService(mfaConfigRepo, userRepo, totpManager, auditService, cfg.MFA.BackupCodeCount, logger)
	userService := services.NewUserService(userRepo, auditService, logger)
	authService := services.NewAuthService(
		userRepo, tokenManager, mfaService, rateLimitService,
		timingDelay, mockEmail, auditService, cfg.Auth, logger,
	)

	ipConfig := &pkghttp.IPConfig{}
	authHandler := handlers.NewAuthHandler(authService, ipConfig)
	mfaHandler := handlers.NewMFAHandler(mfaService, ipConfig)
	userHandler := handlers.NewUserHandler(userService, auditService, ipConfig)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, authHandler, mfaHandler, userHandler, tokenManager, userRepo)

	server := httptest.NewServer(r)

	return &TestServer{
		Server:       server,
		DB:           db,
		EmailService: mockEmail,
		Config:       cfg,
		TOTPManager:  totpManager,
		logger:       logger,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with an access token
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
	}
	return ts.Request(method, path, body, headers)
}

// ParseJSONResponse parses a JSON response body into the target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}
