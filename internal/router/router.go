package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/moats-ai/moats-backend/internal/handler"
	"github.com/moats-ai/moats-backend/internal/middleware"
)

// Dependencies holds all injected services needed by the router.
type Dependencies struct {
	DB          handler.DBPinger
	FrontendURL string
	Version     string
	Metrics     *middleware.Metrics
	MetricsReg  *prometheus.Registry

	Libraries handler.LibraryStore

	VerifyDeps handler.VerifyDeps
	IngestDeps handler.IngestDeps

	// Rate limiter for verification requests (nil = no rate limiting)
	VerifyRateLimiter *middleware.RateLimiter
}

// New creates and configures the Chi router with all routes.
func New(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(deps.FrontendURL))
	if deps.Metrics != nil {
		r.Use(middleware.Monitoring(deps.Metrics))
	}

	r.Get("/api/health", handler.Health(deps.DB, deps.Version))
	if deps.MetricsReg != nil {
		r.Method(http.MethodGet, "/metrics", middleware.MetricsHandler(deps.MetricsReg))
	}

	r.Route("/api/libraries", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/", handler.ListLibraries(deps.Libraries))
		r.Post("/", handler.CreateLibrary(deps.Libraries))
		r.Get("/{id}", handler.GetLibrary(deps.Libraries))
		r.Put("/{id}", handler.UpdateLibrary(deps.Libraries))
		r.Delete("/{id}", handler.DeleteLibrary(deps.Libraries))
		r.Post("/{id}/activate", handler.ActivateLibrary(deps.Libraries))

		r.Get("/{id}/documents", handler.ListDocuments(deps.IngestDeps))
	})

	// Ingestion embeds every chunk before answering; it gets its own, longer
	// deadline.
	r.With(middleware.Timeout(3*time.Minute)).
		Post("/api/libraries/{id}/documents", handler.IngestText(deps.IngestDeps))

	r.Route("/api/verify", func(r chi.Router) {
		// Verification fans out to embedding, search, rerank, and possibly
		// the judge per claim; give it room before the timeout handler bites.
		r.Use(middleware.Timeout(5 * time.Minute))

		verify := handler.VerifyText(deps.VerifyDeps)
		if deps.VerifyRateLimiter != nil {
			r.Method(http.MethodPost, "/", deps.VerifyRateLimiter.Middleware(verify))
		} else {
			r.Post("/", verify)
		}

		r.Get("/history", handler.VerificationHistory(deps.VerifyDeps.Verifications))
		r.Get("/{id}", handler.GetVerification(deps.VerifyDeps.Verifications))
		r.Get("/{id}/export", handler.ExportVerification(deps.VerifyDeps.Verifications))
		r.Delete("/{id}", handler.DeleteVerification(deps.VerifyDeps.Verifications))
		r.Post("/{id}/delete", handler.DeleteVerification(deps.VerifyDeps.Verifications))
	})

	return r
}
