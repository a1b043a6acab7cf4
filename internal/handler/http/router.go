package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wanderly/identity/internal/ratelimit"
	"github.com/wanderly/identity/internal/service"
	"github.com/wanderly/identity/pkg/health"
	"github.com/wanderly/identity/pkg/middleware"
)

// RouterConfig holds everything NewRouter wires together. Limiter,
// HTTPMetrics and Gatherer are optional.
type RouterConfig struct {
	Service     *service.IdentityService
	Health      *health.Handler
	Logger      *slog.Logger
	ServiceName string

	CORS    middleware.CORSConfig
	Cookies CookieConfig

	// Limiter throttles the unauthenticated auth routes per client IP.
	Limiter         ratelimit.Limiter
	LimitRecorder   ratelimit.Recorder
	HTTPMetrics     *middleware.HTTPMetrics
	MetricsGatherer prometheus.Gatherer
}

// NewRouter creates a chi router with all identity service routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	if cfg.HTTPMetrics != nil {
		r.Use(cfg.HTTPMetrics.Middleware)
	}
	r.Use(middleware.CORS(cfg.CORS))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())

	gatherer := cfg.MetricsGatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	authenticate := middleware.Auth(tokenValidator(cfg.Service), middleware.AuthConfig{CookieName: AccessCookie})
	limit := func(route string) func(http.Handler) http.Handler {
		if cfg.Limiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return ratelimit.Middleware(cfg.Limiter, "auth:"+route, cfg.LimitRecorder)
	}

	authHandler := NewAuthHandler(cfg.Service, cfg.Cookies, cfg.Logger)
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.With(limit("signup")).Post("/signup", authHandler.Signup)
		r.With(limit("verify-email")).Post("/verify-email", authHandler.VerifyEmail)
		r.With(limit("resend-code")).Post("/resend-code", authHandler.ResendCode)
		r.With(limit("login")).Post("/login", authHandler.Login)
		r.With(limit("refresh")).Post("/refresh", authHandler.Refresh)
		r.Post("/logout", authHandler.Logout)
		r.With(limit("forgot-password")).Post("/forgot-password", authHandler.ForgotPassword)
		r.With(limit("reset-password")).Post("/reset-password", authHandler.ResetPassword)

		r.With(authenticate).Post("/change-password", authHandler.ChangePassword)
	})

	userHandler := NewUserHandler(cfg.Service, cfg.Logger)
	r.Route("/api/v1/users", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(authenticate)

		r.Get("/me", userHandler.GetProfile)
		r.Put("/me", userHandler.UpdateProfile)
	})

	return r
}

// tokenValidator bridges access-token verification to the auth middleware.
func tokenValidator(svc *service.IdentityService) middleware.TokenValidator {
	return func(token string) (*middleware.Principal, error) {
		claims, err := svc.Authenticate(token)
		if err != nil {
			return nil, err
		}
		return &middleware.Principal{
			UserID: claims.UserID(),
			Email:  claims.Email,
			Role:   claims.Role,
		}, nil
	}
}
