package handlers

import (
	"net/http"

	"tryon/internal/middleware"
)

// ValidateGarment scores a garment photo without enqueuing anything. The
// same advisory gate runs at enqueue time; this endpoint lets clients check
// a photo before uploading the person image.
func (a *App) ValidateGarment(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(a.Cfg.MaxUploadBytes); err != nil {
		a.jsonError(w, http.StatusBadRequest, "INVALID_REQUEST", "expected multipart form with garment_image", nil)
		return
	}
	data, ok := a.readImageUpload(w, r, "garment_image", "INVALID_GARMENT_FILE")
	if !ok {
		return
	}
	img, err := a.Codec.Decode(data)
	if err != nil {
		a.jsonError(w, http.StatusUnsupportedMediaType, "INVALID_GARMENT_FILE", "garment_image could not be decoded", nil)
		return
	}
	report := a.Validator.Validate(img, middleware.LocaleFromContext(r.Context()))
	a.json(w, http.StatusOK, report)
}
