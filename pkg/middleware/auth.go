package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/utafrali/MediaCatalog/pkg/httputil"
	"github.com/utafrali/MediaCatalog/pkg/logger"
)

type contextKeyType string

const subjectKey contextKeyType = "subject"

// TokenValidator validates a bearer token and returns its subject.
// The service injects its own codec so this package stays free of signing details.
type TokenValidator func(token string) (subject string, err error)

// Auth validates bearer tokens and injects the token subject into context.
// Every failure (absent header, wrong scheme, bad token) is answered with the
// same 401 body and a WWW-Authenticate challenge.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				writeAuthError(w, r)
				return
			}

			subject, err := validate(token)
			if err != nil || subject == "" {
				writeAuthError(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey, subject)
			ctx = logger.NewContext(ctx, logger.FromContext(ctx).With(slog.String("subject", subject)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// SubjectFromContext returns the authenticated token subject, or "" if none.
func SubjectFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(subjectKey).(string); ok {
		return s
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeEnvelopeError(w, http.StatusUnauthorized, "UNAUTHORIZED",
		"could not validate credentials", logger.CorrelationIDFromContext(r.Context()))
}

func writeEnvelopeError(w http.ResponseWriter, status int, code, message, requestID string) {
	httputil.WriteJSON(w, status, httputil.Response{
		Error: &httputil.ErrorResponse{Code: code, Message: message, RequestID: requestID},
	})
}
