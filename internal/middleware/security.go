package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"ethvaluation/internal/infrastructure"
)

// SecureHeaders sets the browser security headers on every response.
type SecureHeaders struct {
	HSTSMaxAge            int
	ContentSecurityPolicy string
	XFrameOptions         string
	ReferrerPolicy        string
}

// DefaultSecureHeaders returns headers suited to a JSON API.
func DefaultSecureHeaders() *SecureHeaders {
	return &SecureHeaders{
		HSTSMaxAge: 63072000,
		ContentSecurityPolicy: strings.Join([]string{
			"default-src 'none'",
			"connect-src 'self' ws: wss:",
			"frame-ancestors 'none'",
			"base-uri 'none'",
		}, "; "),
		XFrameOptions:  "DENY",
		ReferrerPolicy: "no-referrer",
	}
}

// Handler returns the middleware handler
func (sh *SecureHeaders) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// WebSocket upgrades carry no document
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		if sh.HSTSMaxAge > 0 && r.TLS != nil {
			h.Set("Strict-Transport-Security", fmt.Sprintf("max-age=%d; includeSubDomains", sh.HSTSMaxAge))
		}
		if sh.ContentSecurityPolicy != "" {
			h.Set("Content-Security-Policy", sh.ContentSecurityPolicy)
		}
		if sh.XFrameOptions != "" {
			h.Set("X-Frame-Options", sh.XFrameOptions)
		}
		if sh.ReferrerPolicy != "" {
			h.Set("Referrer-Policy", sh.ReferrerPolicy)
		}
		h.Set("X-Content-Type-Options", "nosniff")

		next.ServeHTTP(w, r)
	})
}

// AuditLog records requests that change server state (new or cancelled runs).
func AuditLog(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			ctx := r.Context()
			infrastructure.LoggerWithContext(ctx, logger).InfoContext(ctx, "audit",
				slog.String("event_type", "api_mutation"),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
