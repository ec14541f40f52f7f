package middleware

import (
	"log/slog"
	"net/http"
	"strings"
)

// TokenVerifier checks a presented bearer token.
type TokenVerifier interface {
	Verify(token string) bool
}

// IngestAuth requires a valid bearer token. A nil verifier disables the
// check.
func IngestAuth(logger *slog.Logger, verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if verifier == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok || !verifier.Verify(token) {
				reason := "invalid_token"
				if !ok {
					reason = "missing_token"
				}
				logger.Warn("ingest authentication failed",
					slog.String("reason", reason),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="probeline"`)
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing ingest token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}
