package middleware

import (
	"context"
	"net/http"

	"golang.org/x/text/language"
)

type localeContextKey struct{}

var supportedLocales = language.NewMatcher([]language.Tag{
	language.English,
	language.Portuguese,
})

// Locale resolves the caller's preferred language from the X-Locale and
// Accept-Language headers and stores the matched tag in the context. Quality
// tips are the only localized surface.
func Locale(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tag := detectLocale(r)
		ctx := context.WithValue(r.Context(), localeContextKey{}, tag)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LocaleFromContext returns the matched language tag, defaulting to English.
func LocaleFromContext(ctx context.Context) language.Tag {
	if v, ok := ctx.Value(localeContextKey{}).(language.Tag); ok {
		return v
	}
	return language.English
}

func detectLocale(r *http.Request) language.Tag {
	header := r.Header.Get("X-Locale")
	if header == "" {
		header = r.Header.Get("Accept-Language")
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return language.English
	}
	tag, _, _ := supportedLocales.Match(tags...)
	return tag
}
