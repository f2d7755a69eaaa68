package handlers

import (
	"encoding/json"
	"net/http"

	"tryon/internal/domain"
	"tryon/internal/infra"
	"tryon/internal/joblog"
	"tryon/internal/storage"
	"tryon/internal/vision"
)

// App bundles the dependencies shared by the HTTP handlers. Everything is
// injected; handlers hold no global state.
type App struct {
	Jobs      domain.JobRepository
	Keys      domain.ApiKeyRepository
	Store     *storage.FileStore
	Logs      joblog.Stream
	Validator vision.Validator
	Codec     vision.Codec
	Cfg       *infra.Config
	Logger    infra.Logger
}

// NewApp creates the handler container.
func NewApp(cfg *infra.Config, logger infra.Logger, jobs domain.JobRepository, keys domain.ApiKeyRepository, store *storage.FileStore, logs joblog.Stream) *App {
	return &App{
		Jobs:   jobs,
		Keys:   keys,
		Store:  store,
		Logs:   logs,
		Codec:  vision.CodecFor(cfg.ResultFormat),
		Cfg:    cfg,
		Logger: logger,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) jsonError(w http.ResponseWriter, code int, errorCode, message string, details any) {
	body := map[string]any{
		"error_code": errorCode,
		"message":    message,
	}
	if details != nil {
		body["details"] = details
	}
	a.json(w, code, body)
}
