package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tryon/internal/domain"
	"tryon/internal/middleware"
	"tryon/internal/storage"
)

// jobResponse is the read-only job view exposed to API callers.
type jobResponse struct {
	JobID        string  `json:"job_id"`
	Status       string  `json:"status"`
	ResultURL    *string `json:"result_url"`
	ErrorCode    *string `json:"error_code"`
	ErrorMessage *string `json:"error_message"`
	Attempts     int     `json:"attempts"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

// CreateTryOn accepts person_image and garment_image multipart uploads,
// scores the garment photo, stores both inputs and enqueues a job.
func (a *App) CreateTryOn(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(a.Cfg.MaxUploadBytes * 2); err != nil {
		a.jsonError(w, http.StatusBadRequest, "INVALID_REQUEST", "expected multipart form with person_image and garment_image", nil)
		return
	}

	personData, ok := a.readImageUpload(w, r, "person_image", "INVALID_PERSON_FILE")
	if !ok {
		return
	}
	garmentData, ok := a.readImageUpload(w, r, "garment_image", "INVALID_GARMENT_FILE")
	if !ok {
		return
	}

	// Advisory quality gate: refuse only photos the segmenter has no chance
	// with. The report rides along in the rejection payload.
	garment, err := a.Codec.Decode(garmentData)
	if err != nil {
		a.jsonError(w, http.StatusUnsupportedMediaType, "INVALID_GARMENT_FILE", "garment_image could not be decoded", nil)
		return
	}
	report := a.Validator.Validate(garment, middleware.LocaleFromContext(r.Context()))
	if report.Score < 0.35 {
		a.jsonError(w, http.StatusUnprocessableEntity, domain.ErrCodeGarmentLowQuality,
			"garment photo quality is too low for a reliable cutout", report)
		return
	}

	uploadID := uuid.NewString()
	personKey, err := a.Store.Write(r.Context(), storage.UploadKey(uploadID, "person", ".jpg"), personData)
	if err != nil {
		a.Logger.Error().Err(err).Msg("api: persist person upload failed")
		a.jsonError(w, http.StatusInternalServerError, "STORAGE_ERROR", "failed to store uploads", nil)
		return
	}
	garmentKey, err := a.Store.Write(r.Context(), storage.UploadKey(uploadID, "garment", ".jpg"), garmentData)
	if err != nil {
		a.Logger.Error().Err(err).Msg("api: persist garment upload failed")
		a.jsonError(w, http.StatusInternalServerError, "STORAGE_ERROR", "failed to store uploads", nil)
		return
	}

	job, err := a.Jobs.Create(r.Context(), personKey, garmentKey, a.Cfg.MaxAttempts)
	if err != nil {
		a.Logger.Error().Err(err).Msg("api: create job failed")
		a.jsonError(w, http.StatusInternalServerError, "STORAGE_ERROR", "failed to enqueue job", nil)
		return
	}

	a.json(w, http.StatusAccepted, map[string]any{
		"job_id":      job.ID,
		"status":      job.Status,
		"person_url":  a.storageURL(job.PersonImageKey),
		"garment_url": a.storageURL(job.GarmentImageKey),
		"quality":     report,
	})
}

// GetTryOn returns the job status view.
func (a *App) GetTryOn(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJob(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, a.jobView(job))
}

// ListTryOns returns recent jobs, optionally filtered by status.
func (a *App) ListTryOns(w http.ResponseWriter, r *http.Request) {
	var status *domain.JobStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := domain.JobStatus(s)
		switch st {
		case domain.JobStatusQueued, domain.JobStatusProcessing, domain.JobStatusDone, domain.JobStatusError:
			status = &st
		default:
			a.jsonError(w, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("unknown status %q", s), nil)
			return
		}
	}
	jobs, err := a.Jobs.List(r.Context(), status, 50)
	if err != nil {
		a.Logger.Error().Err(err).Msg("api: list jobs failed")
		a.jsonError(w, http.StatusInternalServerError, "STORAGE_ERROR", "failed to list jobs", nil)
		return
	}
	views := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		views = append(views, a.jobView(&jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": views})
}

// GetTryOnResult streams the result artifact. Pending jobs signal not-ready,
// errored jobs surface their code, and a done job with a missing artifact is
// reported as an inconsistency rather than silently succeeding.
func (a *App) GetTryOnResult(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJob(w, r)
	if !ok {
		return
	}

	switch job.Status {
	case domain.JobStatusQueued, domain.JobStatusProcessing:
		a.jsonError(w, http.StatusConflict, "JOB_NOT_READY", fmt.Sprintf("job not ready: %s", job.Status), nil)
		return
	case domain.JobStatusError:
		code := ""
		if job.ErrorCode != nil {
			code = *job.ErrorCode
		}
		a.jsonError(w, http.StatusConflict, "JOB_ERROR", fmt.Sprintf("job errored: %s", code),
			map[string]any{"error_message": job.ErrorMessage})
		return
	}

	if job.ResultImageKey == nil || !a.Store.Exists(*job.ResultImageKey) {
		a.jsonError(w, http.StatusNotFound, "RESULT_NOT_FOUND", "result artifact missing from storage", nil)
		return
	}

	data, err := a.Store.Read(r.Context(), *job.ResultImageKey)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("api: read result artifact failed")
		a.jsonError(w, http.StatusNotFound, "RESULT_NOT_FOUND", "result artifact missing from storage", nil)
		return
	}

	w.Header().Set("Content-Type", contentTypeForKey(*job.ResultImageKey))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// GetTryOnLogs tails the per-job log stream for operators.
func (a *App) GetTryOnLogs(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJob(w, r)
	if !ok {
		return
	}
	if a.Logs == nil {
		a.json(w, http.StatusOK, map[string]any{"job_id": job.ID, "lines": []string{}})
		return
	}
	lines, err := a.Logs.Tail(r.Context(), job.ID, 100)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("api: tail job log failed")
		a.jsonError(w, http.StatusInternalServerError, "STORAGE_ERROR", "failed to read job log", nil)
		return
	}
	if lines == nil {
		lines = []string{}
	}
	a.json(w, http.StatusOK, map[string]any{"job_id": job.ID, "lines": lines})
}

func (a *App) loadJob(w http.ResponseWriter, r *http.Request) (*domain.Job, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		a.jsonError(w, http.StatusBadRequest, "INVALID_REQUEST", "job id must be a UUID", nil)
		return nil, false
	}
	job, err := a.Jobs.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.jsonError(w, http.StatusNotFound, "JOB_NOT_FOUND", "job not found", nil)
			return nil, false
		}
		a.Logger.Error().Err(err).Str("job_id", id).Msg("api: get job failed")
		a.jsonError(w, http.StatusInternalServerError, "STORAGE_ERROR", "failed to load job", nil)
		return nil, false
	}
	return job, true
}

func (a *App) jobView(job *domain.Job) jobResponse {
	view := jobResponse{
		JobID:        job.ID,
		Status:       string(job.Status),
		ErrorCode:    job.ErrorCode,
		ErrorMessage: job.ErrorMessage,
		Attempts:     job.Attempts,
		CreatedAt:    job.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:    job.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if job.ResultImageKey != nil {
		url := a.storageURL(*job.ResultImageKey)
		view.ResultURL = &url
	}
	return view
}

func (a *App) storageURL(key string) string {
	return strings.TrimRight(a.Cfg.StorageBaseURL, "/") + "/" + key
}

// readImageUpload enforces the upload constraints: declared image MIME type,
// non-empty payload, bounded size.
func (a *App) readImageUpload(w http.ResponseWriter, r *http.Request, field, invalidCode string) ([]byte, bool) {
	file, header, err := r.FormFile(field)
	if err != nil {
		a.jsonError(w, http.StatusBadRequest, invalidCode, fmt.Sprintf("%s is required", field), nil)
		return nil, false
	}
	defer file.Close()

	if !strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
		a.jsonError(w, http.StatusUnsupportedMediaType, invalidCode, fmt.Sprintf("%s must be an image", field), nil)
		return nil, false
	}

	data, err := readLimited(file, a.Cfg.MaxUploadBytes)
	if err != nil {
		if errors.Is(err, errUploadTooLarge) {
			a.jsonError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
				fmt.Sprintf("%s exceeds max size of %d bytes", field, a.Cfg.MaxUploadBytes), nil)
			return nil, false
		}
		a.jsonError(w, http.StatusBadRequest, invalidCode, fmt.Sprintf("failed to read %s", field), nil)
		return nil, false
	}
	if len(data) == 0 {
		a.jsonError(w, http.StatusBadRequest, "EMPTY_FILE", fmt.Sprintf("%s is empty", field), nil)
		return nil, false
	}
	return data, true
}

var errUploadTooLarge = errors.New("upload too large")

func readLimited(file multipart.File, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, errUploadTooLarge
	}
	return data, nil
}

func contentTypeForKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
