package api

import (
	"bufio"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rentdesk/internal/auth"
	"rentdesk/internal/metrics"
	"rentdesk/internal/session"
)

// protectedFunc is a handler that runs only after the full pipeline:
// bearer extraction, token verification, then principal resolution. The
// principal is passed explicitly so no handler can forget to check it.
type protectedFunc func(w http.ResponseWriter, r *http.Request, pr session.Principal)

// protected wraps a handler with the authentication pipeline. Every
// route registered through it pays the full cost; public routes are the
// explicit exceptions registered directly on the mux.
func (s *Server) protected(next protectedFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			s.rejectAuth(w, r, err)
			return
		}
		id, err := s.Auth.Verify(raw)
		if err != nil {
			s.rejectAuth(w, r, err)
			return
		}
		if id.TokenType != "access" {
			s.rejectAuth(w, r, auth.ErrMalformedToken)
			return
		}
		pr, err := s.Resolver.Resolve(r.Context(), id)
		if err != nil {
			s.rejectAuth(w, r, err)
			return
		}
		next(w, r, pr)
	}
}

// Protected exposes the pipeline wrapper for route registration in main.
func (s *Server) Protected(next protectedFunc) http.HandlerFunc {
	return s.protected(next)
}

// rejectAuth maps pipeline errors onto 401 problem responses with a
// machine-readable code. Expired tokens are distinguishable so clients
// know to refresh rather than re-authenticate; everything else about the
// failure stays opaque. Store failures mid-pipeline are 503, never 401.
func (s *Server) rejectAuth(w http.ResponseWriter, r *http.Request, err error) {
	code := ""
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		code = "missing_token"
	case errors.Is(err, auth.ErrMalformedToken):
		code = "malformed_token"
	case errors.Is(err, auth.ErrTokenExpired):
		code = "token_expired"
	case errors.Is(err, auth.ErrBadSignature):
		code = "invalid_token"
	case errors.Is(err, auth.ErrUnknownSubject):
		code = "unknown_subject"
	default:
		metrics.AuthFailures.WithLabelValues("store_error").Inc()
		writeProblem(w, http.StatusServiceUnavailable, "Service Unavailable", "try again shortly", r.URL.Path)
		return
	}
	metrics.AuthFailures.WithLabelValues(code).Inc()
	w.Header().Set("WWW-Authenticate", `Bearer realm="rentdesk"`)
	writeProblemCode(w, http.StatusUnauthorized, code, "Unauthorized", "", r.URL.Path)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack passes through so websocket upgrades work behind the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	return h.Hijack()
}

// metricPath collapses per-resource ids so the path label stays a small
// fixed set instead of one series per record.
func metricPath(p string) string {
	switch {
	case strings.HasPrefix(p, "/api/properties/"):
		if strings.HasSuffix(p, "/events/stream") {
			return "/api/properties/{id}/events/stream"
		}
		return "/api/properties/{id}"
	case strings.HasPrefix(p, "/api/finances/"):
		return "/api/finances/{id}"
	case strings.HasPrefix(p, "/api/loans/"):
		return "/api/loans/{id}"
	case strings.HasPrefix(p, "/api/subscriptions/"):
		return "/api/subscriptions/{id}"
	}
	return p
}

// LogMiddleware logs each request and records request metrics.
func LogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		dur := time.Since(start)
		status := strconv.Itoa(rec.status)
		route := metricPath(r.URL.Path)
		metrics.HTTPRequests.WithLabelValues(r.Method, route, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, route, status).Observe(dur.Seconds())
		log.Printf("%s %s %s %d %v", r.RemoteAddr, r.Method, r.URL.Path, rec.status, dur)
	})
}
