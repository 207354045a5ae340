package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/fuomag9/meshwatch/internal/auth"
)

type contextKey string

const subjectContextKey contextKey = "subject"

// AuthMiddleware requires a valid bearer token
func AuthMiddleware(jwtSecret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.TokenFromRequest(r)
			if err != nil {
				http.Error(w, "Missing authorization header", http.StatusUnauthorized)
				return
			}

			subject, err := auth.ParseToken(jwtSecret, token)
			if err != nil {
				logger.Debug("api_token_rejected", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), subjectContextKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SubjectFromContext returns the token subject set by AuthMiddleware
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(subjectContextKey).(string)
	return subject
}
