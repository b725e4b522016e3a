package middleware

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"healthdash/pkg/requestcontext"
)

// ClientMetadata records the caller's IP, browser and bot flag in the context.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := useragent.New(r.UserAgent())
		browser, version := ua.Browser()
		if version != "" {
			browser += " " + version
		}
		client := requestcontext.Client{
			IP:      ClientIPFromRequest(r),
			Browser: browser,
			Bot:     ua.Bot() || r.UserAgent() == "",
		}
		next.ServeHTTP(w, r.WithContext(requestcontext.WithClient(r.Context(), client)))
	})
}

// ClientIPFromRequest extracts the real client IP, honoring proxy headers.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if addr := r.RemoteAddr; addr != "" {
		// [::1]:port and 127.0.0.1:port
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return strings.Trim(addr[:idx], "[]")
		}
		return addr
	}
	return "unknown"
}
