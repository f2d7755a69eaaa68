package httpapi

import (
	stdhttp "net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"tryon/internal/http/handlers"
	"tryon/internal/middleware"
)

// NewRouter assembles the API surface. The try-on and garment routes sit
// behind API-key auth and per-key rate limiting; health and the static
// storage mount stay open.
func NewRouter(app *handlers.App) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimiddleware.RealIP, chimiddleware.Recoverer)
	r.Use(middleware.Logger(app.Logger))
	r.Use(middleware.Locale)

	r.Get("/healthz", app.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(app.Keys))
		r.Use(middleware.RateLimit(app.Cfg.RateLimitPerMin, time.Minute))

		r.Route("/tryon", func(r chi.Router) {
			r.Post("/", app.CreateTryOn)
			r.Get("/", app.ListTryOns)
			r.Get("/{id}", app.GetTryOn)
			r.Get("/{id}/result", app.GetTryOnResult)
			r.Get("/{id}/logs", app.GetTryOnLogs)
		})

		r.Post("/garment/validate", app.ValidateGarment)
	})

	storageDir := stdhttp.Dir(filepath.Clean(app.Store.BasePath()))
	r.Handle("/storage/*", stdhttp.StripPrefix("/storage/", stdhttp.FileServer(storageDir)))

	return r
}
