package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"tryon/internal/adapter/repo"
	"tryon/internal/domain"
	"tryon/internal/infra"
	"tryon/internal/joblog"
	"tryon/internal/storage"
	"tryon/internal/vision"
)

func testApp(t *testing.T) (*App, *repo.MemoryJobRepository, *storage.FileStore) {
	t.Helper()
	jobs := repo.NewMemoryJobRepository()
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	logs, err := joblog.NewFileStream(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStream() error = %v", err)
	}
	cfg := &infra.Config{
		AppEnv:         "test",
		StorageBaseURL: "http://localhost:8080/storage",
		ResultFormat:   "png",
		MaxAttempts:    3,
		MaxUploadBytes: 10 * 1024 * 1024,
	}
	app := &App{
		Jobs:   jobs,
		Store:  store,
		Logs:   logs,
		Codec:  vision.StdCodec{},
		Cfg:    cfg,
		Logger: zerolog.Nop(),
	}
	return app, jobs, store
}

func testRouter(app *App) http.Handler {
	r := chi.NewRouter()
	r.Post("/tryon", app.CreateTryOn)
	r.Get("/tryon", app.ListTryOns)
	r.Get("/tryon/{id}", app.GetTryOn)
	r.Get("/tryon/{id}/result", app.GetTryOnResult)
	r.Get("/tryon/{id}/logs", app.GetTryOnLogs)
	r.Post("/garment/validate", app.ValidateGarment)
	return r
}

func pngUpload(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

// multipartBody builds a multipart form whose file parts carry an image
// content type, the way browsers and SDKs submit uploads.
func multipartBody(t *testing.T, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for field, data := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, field+".png"))
		header.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &body, mw.FormDataContentType()
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not json: %v\n%s", err, rec.Body.String())
	}
	return out
}

// usableGarment clears the hard enqueue floor without being good enough for
// the advisory OK verdict.
func usableGarment(t *testing.T) []byte {
	return pngUpload(t, 600, 600, color.NRGBA{128, 128, 128, 255})
}

func TestCreateTryOn(t *testing.T) {
	app, jobs, store := testApp(t)
	router := testRouter(app)

	body, contentType := multipartBody(t, map[string][]byte{
		"person_image":  pngUpload(t, 400, 600, color.NRGBA{20, 40, 200, 255}),
		"garment_image": usableGarment(t),
	})
	req := httptest.NewRequest(http.MethodPost, "/tryon", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202\n%s", rec.Code, rec.Body.String())
	}
	resp := decodeJSON(t, rec)
	jobID, _ := resp["job_id"].(string)
	if jobID == "" {
		t.Fatalf("missing job_id in response: %v", resp)
	}
	if resp["status"] != string(domain.JobStatusQueued) {
		t.Fatalf("status = %v, want queued", resp["status"])
	}
	if _, ok := resp["quality"]; !ok {
		t.Fatalf("missing quality report in response")
	}

	job, err := jobs.GetByID(context.Background(), jobID)
	if err != nil {
		t.Fatalf("job not persisted: %v", err)
	}
	if !store.Exists(job.PersonImageKey) || !store.Exists(job.GarmentImageKey) {
		t.Fatalf("uploads not persisted: %s / %s", job.PersonImageKey, job.GarmentImageKey)
	}
}

func TestCreateTryOnRejectsLowQualityGarment(t *testing.T) {
	app, _, _ := testApp(t)
	router := testRouter(app)

	body, contentType := multipartBody(t, map[string][]byte{
		"person_image":  pngUpload(t, 400, 600, color.NRGBA{20, 40, 200, 255}),
		"garment_image": pngUpload(t, 64, 64, color.NRGBA{0, 0, 0, 255}),
	})
	req := httptest.NewRequest(http.MethodPost, "/tryon", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422\n%s", rec.Code, rec.Body.String())
	}
	resp := decodeJSON(t, rec)
	if resp["error_code"] != domain.ErrCodeGarmentLowQuality {
		t.Fatalf("error_code = %v, want %s", resp["error_code"], domain.ErrCodeGarmentLowQuality)
	}
	if _, ok := resp["details"]; !ok {
		t.Fatalf("rejection must carry the quality report")
	}
}

func TestCreateTryOnMissingFile(t *testing.T) {
	app, _, _ := testApp(t)
	router := testRouter(app)

	body, contentType := multipartBody(t, map[string][]byte{
		"garment_image": usableGarment(t),
	})
	req := httptest.NewRequest(http.MethodPost, "/tryon", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeJSON(t, rec)
	if resp["error_code"] != "INVALID_PERSON_FILE" {
		t.Fatalf("error_code = %v, want INVALID_PERSON_FILE", resp["error_code"])
	}
}

func TestCreateTryOnFileTooLarge(t *testing.T) {
	app, _, _ := testApp(t)
	app.Cfg.MaxUploadBytes = 64
	router := testRouter(app)

	body, contentType := multipartBody(t, map[string][]byte{
		"person_image":  pngUpload(t, 100, 100, color.NRGBA{20, 40, 200, 255}),
		"garment_image": usableGarment(t),
	})
	req := httptest.NewRequest(http.MethodPost, "/tryon", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	resp := decodeJSON(t, rec)
	if resp["error_code"] != "FILE_TOO_LARGE" {
		t.Fatalf("error_code = %v, want FILE_TOO_LARGE", resp["error_code"])
	}
}

func TestGetTryOn(t *testing.T) {
	app, jobs, _ := testApp(t)
	router := testRouter(app)
	ctx := context.Background()

	job, err := jobs.Create(ctx, "uploads/p.png", "uploads/g.png", 3)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tryon/"+job.ID, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		resp := decodeJSON(t, rec)
		if resp["job_id"] != job.ID || resp["status"] != string(domain.JobStatusQueued) {
			t.Fatalf("body = %v", resp)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tryon/00000000-0000-0000-0000-000000000000", nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("malformed id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tryon/not-a-uuid", nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})
}

func TestGetTryOnResult(t *testing.T) {
	app, jobs, store := testApp(t)
	router := testRouter(app)
	ctx := context.Background()

	fetch := func(id string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tryon/"+id+"/result", nil))
		return rec
	}

	t.Run("queued job is not ready", func(t *testing.T) {
		job, _ := jobs.Create(ctx, "p", "g", 3)
		rec := fetch(job.ID)
		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409", rec.Code)
		}
		if resp := decodeJSON(t, rec); resp["error_code"] != "JOB_NOT_READY" {
			t.Fatalf("error_code = %v, want JOB_NOT_READY", resp["error_code"])
		}
	})

	t.Run("errored job surfaces its code", func(t *testing.T) {
		job, _ := jobs.Create(ctx, "p", "g", 3)
		claimUntil(t, jobs, job.ID)
		if err := jobs.MarkError(ctx, job.ID, domain.ErrCodePoseNotFound, "no shoulders"); err != nil {
			t.Fatalf("MarkError() error = %v", err)
		}
		rec := fetch(job.ID)
		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409", rec.Code)
		}
		if resp := decodeJSON(t, rec); resp["error_code"] != "JOB_ERROR" {
			t.Fatalf("error_code = %v, want JOB_ERROR", resp["error_code"])
		}
	})

	t.Run("done job streams the artifact", func(t *testing.T) {
		job, _ := jobs.Create(ctx, "p", "g", 3)
		claimUntil(t, jobs, job.ID)
		key, err := store.Write(ctx, storage.ResultKey(job.ID, ".png"), pngUpload(t, 10, 10, color.NRGBA{1, 2, 3, 255}))
		if err != nil {
			t.Fatalf("write artifact: %v", err)
		}
		if err := jobs.MarkDone(ctx, job.ID, key); err != nil {
			t.Fatalf("MarkDone() error = %v", err)
		}
		rec := fetch(job.ID)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200\n%s", rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
			t.Fatalf("content type = %q, want image/png", ct)
		}
		if _, err := png.Decode(bytes.NewReader(rec.Body.Bytes())); err != nil {
			t.Fatalf("body is not the png artifact: %v", err)
		}
	})

	t.Run("done job with missing artifact is an inconsistency", func(t *testing.T) {
		job, _ := jobs.Create(ctx, "p", "g", 3)
		claimUntil(t, jobs, job.ID)
		if err := jobs.MarkDone(ctx, job.ID, "results/ghost.png"); err != nil {
			t.Fatalf("MarkDone() error = %v", err)
		}
		rec := fetch(job.ID)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		if resp := decodeJSON(t, rec); resp["error_code"] != "RESULT_NOT_FOUND" {
			t.Fatalf("error_code = %v, want RESULT_NOT_FOUND", resp["error_code"])
		}
	})
}

// claimUntil claims jobs until the given one is processing. The memory repo
// claims strictly oldest-first, so earlier tests' leftovers may be in line.
func claimUntil(t *testing.T, jobs *repo.MemoryJobRepository, id string) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		job, err := jobs.ClaimNext(ctx)
		if err != nil {
			t.Fatalf("ClaimNext() error = %v", err)
		}
		if job.ID == id {
			return
		}
	}
	t.Fatalf("job %s never claimed", id)
}

func TestListTryOns(t *testing.T) {
	app, jobs, _ := testApp(t)
	router := testRouter(app)
	ctx := context.Background()

	if _, err := jobs.Create(ctx, "p1", "g1", 3); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := jobs.Create(ctx, "p2", "g2", 3); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := jobs.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}

	t.Run("filter by status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tryon?status=queued", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		resp := decodeJSON(t, rec)
		list, _ := resp["jobs"].([]any)
		if len(list) != 1 {
			t.Fatalf("queued jobs = %d, want 1", len(list))
		}
	})

	t.Run("unknown status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tryon?status=bogus", nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})
}

func TestGetTryOnLogs(t *testing.T) {
	app, jobs, _ := testApp(t)
	router := testRouter(app)
	ctx := context.Background()

	job, err := jobs.Create(ctx, "p", "g", 3)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := app.Logs.Append(ctx, job.ID, "processing started"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tryon/"+job.ID+"/logs", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeJSON(t, rec)
	lines, _ := resp["lines"].([]any)
	if len(lines) != 1 {
		t.Fatalf("lines = %v, want 1 entry", resp["lines"])
	}
}

func TestValidateGarment(t *testing.T) {
	app, _, _ := testApp(t)
	router := testRouter(app)

	body, contentType := multipartBody(t, map[string][]byte{
		"garment_image": pngUpload(t, 64, 64, color.NRGBA{0, 0, 0, 255}),
	})
	req := httptest.NewRequest(http.MethodPost, "/garment/validate", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}
	var report vision.QualityReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("body is not a quality report: %v", err)
	}
	if report.OK {
		t.Fatalf("tiny black frame scored OK: %+v", report)
	}
	if len(report.Reasons) == 0 || len(report.Tips) == 0 {
		t.Fatalf("rejection without reasons/tips: %+v", report)
	}
}
