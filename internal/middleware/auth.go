package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"tryon/internal/domain"
)

type apiKeyContextKey struct{}

// APIKeyAuth authenticates callers by the X-API-Key header (or a Bearer
// token) against the key repository and attaches the resolved key to the
// request context.
func APIKeyAuth(keys domain.ApiKeyRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret := r.Header.Get("X-API-Key")
			if secret == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					secret = strings.TrimPrefix(auth, "Bearer ")
				}
			}
			if secret == "" {
				unauthorized(w, "missing API key")
				return
			}

			apiKey, err := keys.GetActiveByKey(r.Context(), secret)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					unauthorized(w, "invalid API key")
					return
				}
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_ = keys.TouchLastUsed(r.Context(), apiKey.ID)

			ctx := context.WithValue(r.Context(), apiKeyContextKey{}, apiKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// APIKeyFromContext returns the authenticated key, if any.
func APIKeyFromContext(ctx context.Context) *domain.ApiKey {
	if v, ok := ctx.Value(apiKeyContextKey{}).(*domain.ApiKey); ok {
		return v
	}
	return nil
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error_code": "UNAUTHORIZED",
		"message":    msg,
	})
}
