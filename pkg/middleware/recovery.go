package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recovery turns a handler panic into a 500 in the standard error envelope.
// The panic value and stack go to the log only. A panic after the response
// has started cannot be answered and is only logged.
func Recovery(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := newStatusRecorder(w)
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p == http.ErrAbortHandler {
					panic(p)
				}

				l.ErrorContext(r.Context(), "panic recovered",
					slog.Any("panic", p),
					slog.String("stack", string(debug.Stack())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				if rec.status != 0 {
					return
				}
				writeEnvelopeError(rec, http.StatusInternalServerError, "INTERNAL_ERROR",
					"an internal error occurred", rec.Header().Get(CorrelationHeader))
			}()

			next.ServeHTTP(rec, r)
		})
	}
}
