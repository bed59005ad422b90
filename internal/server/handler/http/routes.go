package http

import (
	"net/http"

	"github.com/atinyakov/DocLedger/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Router bundles the handlers and collaborators mounted by NewRouter.
type Router struct {
	Auth      *AuthHandler
	Documents *DocumentHandler
	Files     *FileHandler
	Health    *HealthHandler

	// Authenticator resolves bearer credentials on protected routes.
	Authenticator middleware.Authenticator
	// Observer records request latency; may be nil.
	Observer middleware.RequestObserver
	// Metrics serves the Prometheus exposition; may be nil.
	Metrics http.Handler
}

// NewRouter constructs the DocLedger HTTP API.
//
// Routes:
//
//	POST   /api/auth/register            → Auth.Register
//	POST   /api/auth/login               → Auth.Login
//	GET    /api/auth/me                  → Auth.Me              (auth)
//	POST   /api/files                    → Files.Upload         (auth, multipart)
//	POST   /api/documents                → Documents.Mint       (auth)
//	GET    /api/documents                → Documents.ListOwn    (auth)
//	GET    /api/documents/all            → Documents.ListAll    (admin)
//	GET    /api/documents/by-content/*   → Documents.GetByContent (auth)
//	GET    /api/documents/{tokenId}      → Documents.Get        (auth)
//	PUT    /api/documents/{tokenId}      → Documents.Transfer   (auth)
//	DELETE /api/documents/{tokenId}      → Documents.Burn       (auth)
//	GET    /healthz, GET /metrics
//
// Middleware chain (applied in order):
//  1. RequestID, Recoverer
//  2. WithMetrics(observer)     : request latency by route pattern
//  3. WithRequestLogging(logger): logs every request
//  4. BearerAuth                : on the protected group only
func NewRouter(rt Router, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	if rt.Observer != nil {
		r.Use(middleware.WithMetrics(rt.Observer))
	}
	r.Use(middleware.WithRequestLogging(logger))

	if rt.Health != nil {
		r.Get("/healthz", rt.Health.Healthz)
	}
	if rt.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		// Public endpoints
		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.AllowContentType("application/json"))
			r.Post("/auth/register", rt.Auth.Register)
			r.Post("/auth/login", rt.Auth.Login)
		})

		// Protected group: requires a valid credential
		r.Group(func(r chi.Router) {
			r.Use(middleware.BearerAuth(rt.Authenticator, logger))

			r.Get("/auth/me", rt.Auth.Me)

			if rt.Files != nil {
				r.With(chiMiddleware.AllowContentType("multipart/form-data")).
					Post("/files", rt.Files.Upload)
			}

			r.Route("/documents", func(r chi.Router) {
				r.Use(chiMiddleware.AllowContentType("application/json"))
				r.Post("/", rt.Documents.Mint)
				r.Get("/", rt.Documents.ListOwn)
				r.With(middleware.RequireAdmin).Get("/all", rt.Documents.ListAll)
				r.Get("/by-content/*", rt.Documents.GetByContent)
				r.Get("/{tokenId}", rt.Documents.Get)
				r.Put("/{tokenId}", rt.Documents.Transfer)
				r.Delete("/{tokenId}", rt.Documents.Burn)
			})
		})
	})

	return r
}
