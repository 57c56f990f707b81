package logging

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// eventStream is the content type of long-lived SSE responses
const eventStream = "text/event-stream"

// RequestIDMiddleware tags each request with an ID and logs its outcome.
// Install it with mux.Router.Use so that the route template is known:
// requests are logged by template, not by the concrete path, which keeps
// uuids out of the route attribute. Event streams stay open for as long
// as a client listens, so they are logged at debug level when they close.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		ctx := WithRequestID(r.Context(), requestID)
		r = r.WithContext(ctx)
		w.Header().Set("X-Request-ID", requestID)

		route := routeOf(r)
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()
		DebugContext(ctx, "request started", "method", r.Method, "route", route, "remoteAddr", r.RemoteAddr)

		next.ServeHTTP(wrapped, r)

		attrs := []any{
			"method", r.Method,
			"route", route,
			"status", wrapped.statusCode,
			"durationMs", time.Since(start).Milliseconds(),
		}
		switch {
		case wrapped.statusCode >= 500:
			ErrorContext(ctx, "request failed", attrs...)
		case wrapped.statusCode >= 400:
			WarnContext(ctx, "request rejected", attrs...)
		case wrapped.Header().Get("Content-Type") == eventStream:
			DebugContext(ctx, "stream closed", attrs...)
		default:
			InfoContext(ctx, "request completed", attrs...)
		}
	})
}

// routeOf returns the path template of the matched route, or the raw path
// outside a mux router
func routeOf(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// responseWriter records the status code written by the handler
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush passes SSE writes through to the client
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
