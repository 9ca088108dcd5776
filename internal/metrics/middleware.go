package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// unknownRoute labels requests chi could not match to a pattern.
const unknownRoute = "unknown"

// Middleware is a chi middleware that records HTTP request metrics. Requests
// are labeled by route pattern rather than path.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := WrapWriter(w, r)
		next.ServeHTTP(ww, r)
		ObserveHTTPRequest(r.Method, routePattern(r), Status(ww), time.Since(start))
	})
}

// WrapWriter returns a status-capturing writer for r. A writer that is
// already wrapped is returned as is, so stacked middleware share one.
func WrapWriter(w http.ResponseWriter, r *http.Request) middleware.WrapResponseWriter {
	if ww, ok := w.(middleware.WrapResponseWriter); ok {
		return ww
	}
	return middleware.NewWrapResponseWriter(w, r.ProtoMajor)
}

// Status is the code sent through ww. A handler that returned without
// writing anything answered 200.
func Status(ww middleware.WrapResponseWriter) int {
	if code := ww.Status(); code != 0 {
		return code
	}
	return http.StatusOK
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unknownRoute
}
