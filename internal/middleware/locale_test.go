package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/text/language"
)

func TestLocaleDetection(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    language.Tag
	}{
		{
			name:    "x-locale wins",
			headers: map[string]string{"X-Locale": "pt-BR", "Accept-Language": "en-US"},
			want:    language.Portuguese,
		},
		{
			name:    "accept-language fallback",
			headers: map[string]string{"Accept-Language": "pt-BR,pt;q=0.9,en;q=0.8"},
			want:    language.Portuguese,
		},
		{
			name:    "unsupported locale falls back to english",
			headers: map[string]string{"X-Locale": "ja-JP"},
			want:    language.English,
		},
		{
			name:    "no headers",
			headers: nil,
			want:    language.English,
		},
		{
			name:    "garbage header",
			headers: map[string]string{"Accept-Language": ";;;"},
			want:    language.English,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got language.Tag
			handler := Locale(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = LocaleFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			base, _ := got.Base()
			wantBase, _ := tc.want.Base()
			if base != wantBase {
				t.Fatalf("locale = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLocaleFromContextDefault(t *testing.T) {
	if got := LocaleFromContext(context.Background()); got != language.English {
		t.Fatalf("default locale = %v, want English", got)
	}
}
