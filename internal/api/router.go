package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hugh/go-identity/internal/api/handlers"
	"github.com/hugh/go-identity/internal/api/middleware"
	"github.com/hugh/go-identity/internal/api/validation"
	"github.com/hugh/go-identity/internal/auth"
	"github.com/hugh/go-identity/internal/database/models"
	"github.com/hugh/go-identity/internal/obs"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB             *gorm.DB
	Redis          *redis.Client
	Logger         *slog.Logger
	AuthService    auth.Authenticator
	Verifier       auth.TokenVerifier
	Users          handlers.UserDirectory
	AllowedOrigins []string // CORS_ORIGIN_HOST entries; also bounds password-reset links
	RateLimiter    *middleware.RateLimiter
	// TrustProxy rewrites RemoteAddr from forwarding headers before logging and rate limiting.
	TrustProxy     bool
}

// route binds a handler to its access policy.
type route struct {
	Method  string
	Pattern string
	Policy  middleware.Policy
	Handler http.HandlerFunc
	// Limited routes pass through the per-IP rate limiter.
	Limited bool
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	if cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(obs.Instrument)

	origins := validation.NewOriginAllowlist(cfg.AllowedOrigins, cfg.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc:  func(_ *http.Request, origin string) bool { return origins.Allows(origin) },
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Origin"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	guard := middleware.NewGuard(cfg.Verifier, cfg.Logger)
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.AuthService, origins, cfg.Logger)
	userHandler := handlers.NewUserHandler(cfg.Users, cfg.Logger)

	public := middleware.PublicPolicy()
	admin := middleware.RolesPolicy(models.RoleAdmin)
	readers := middleware.RolesPolicy(models.RoleService, models.RoleAdmin, models.RoleUser)

	routes := []route{
		{Method: http.MethodGet, Pattern: "/health", Policy: public, Handler: healthHandler.Health},
		{Method: http.MethodGet, Pattern: "/ready", Policy: public, Handler: healthHandler.Ready},
		{Method: http.MethodGet, Pattern: "/metrics", Policy: public, Handler: obs.Handler().ServeHTTP},

		{Method: http.MethodPost, Pattern: "/auth/register", Policy: admin, Handler: authHandler.Register},
		{Method: http.MethodPost, Pattern: "/auth/login", Policy: public, Handler: authHandler.Login, Limited: true},
		{Method: http.MethodGet, Pattern: "/auth/verify", Policy: public, Handler: authHandler.Verify},
		{Method: http.MethodPost, Pattern: "/auth/forgotPassword", Policy: public, Handler: authHandler.ForgotPassword, Limited: true},
		{
			Method:  http.MethodPost,
			Pattern: "/auth/changePassword",
			Policy:  middleware.RolesPolicy(models.RoleAdmin, models.RoleUser, models.RoleForgotPassword),
			Handler: authHandler.ChangePassword,
		},
		{Method: http.MethodPost, Pattern: "/auth/logout", Policy: middleware.Policy{}, Handler: authHandler.Logout},

		{Method: http.MethodGet, Pattern: "/users", Policy: admin, Handler: userHandler.List},
		{Method: http.MethodGet, Pattern: "/users/non-private", Policy: readers, Handler: userHandler.ListNonPrivate},
		{Method: http.MethodGet, Pattern: "/users/{id}", Policy: readers, Handler: userHandler.Get},
		{Method: http.MethodPatch, Pattern: "/users/{id}", Policy: admin, Handler: userHandler.Update},
		{Method: http.MethodDelete, Pattern: "/users", Policy: admin, Handler: userHandler.DeleteByCompany},
		{Method: http.MethodDelete, Pattern: "/users/{id}", Policy: admin, Handler: userHandler.Delete},
	}

	for _, rt := range routes {
		var h http.Handler = rt.Handler
		h = guard.Enforce(rt.Policy)(h)
		if rt.Limited && cfg.RateLimiter != nil {
			h = middleware.RateLimit(cfg.RateLimiter)(h)
		}
		r.Method(rt.Method, rt.Pattern, h)
	}

	return &Router{r}
}
