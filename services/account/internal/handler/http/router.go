package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/MediaCatalog/pkg/health"
	"github.com/utafrali/MediaCatalog/pkg/middleware"
	"github.com/utafrali/MediaCatalog/services/account/internal/domain"
	"github.com/utafrali/MediaCatalog/services/account/internal/service"
)

// ServiceName labels HTTP metrics and spans.
const ServiceName = "account"

// AuthService is the subset of *service.AuthService used by the handlers.
type AuthService interface {
	Register(ctx context.Context, input service.RegisterInput) (*domain.User, error)
	Login(ctx context.Context, input service.LoginInput) (*domain.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
	Authenticate(token string) (string, error)
	ResolveFromToken(ctx context.Context, token string) (*domain.User, error)
}

// RecoveryService is the subset of *service.RecoveryService used by the handlers.
type RecoveryService interface {
	RequestReset(ctx context.Context, email string) error
	ConfirmReset(ctx context.Context, input service.ConfirmResetInput) error
}

type routerOptions struct {
	clientLimiter *middleware.ClientLimiter
}

// RouterOption configures optional router behaviour.
type RouterOption func(*routerOptions)

// WithClientRateLimit throttles the unauthenticated credential routes per client IP.
func WithClientRateLimit(l *middleware.ClientLimiter) RouterOption {
	return func(o *routerOptions) { o.clientLimiter = l }
}

// NewRouter creates a chi router with all account routes registered.
func NewRouter(
	authService AuthService,
	recoveryService RecoveryService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	corsConfig middleware.CORSConfig,
	opts ...RouterOption,
) http.Handler {
	var o routerOptions
	for _, opt := range opts {
		opt(&o)
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(corsConfig))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(ServiceName))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	h := NewAccountHandler(authService, recoveryService, logger)

	// Credential endpoints. Responses carry tokens or reset outcomes and
	// must never be cached.
	r.Group(func(r chi.Router) {
		if o.clientLimiter != nil {
			r.Use(o.clientLimiter.Middleware)
		}
		r.Use(middleware.NoStore)
		r.Use(ContentTypeJSON)

		r.Post("/users/", h.Register)
		r.Post("/user-login/", h.Login)
		r.Post("/token/refresh/", h.Refresh)
		r.Post("/request-password-reset/", h.RequestPasswordReset)
		r.Post("/reset-password/", h.ResetPassword)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(middleware.Auth(authService.Authenticate))

		r.Get("/get-user-profile/", h.GetProfile)
	})

	return r
}
