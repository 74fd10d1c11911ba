package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"repairdesk/internal/models"
	"repairdesk/internal/token"
	"repairdesk/internal/util"
)

type contextKey string

const claimsContextKey contextKey = "claims"

var (
	errMissingToken = errors.New("missing bearer token")
	errUnauthorized = errors.New("invalid or expired token")
	errForbidden    = errors.New("super-admin role required")
)

// LoggerMiddleware creates a middleware that logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("user_agent", r.UserAgent()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// Authenticator verifies the bearer token and stores its claims in the
// request context.
func Authenticator(tokens *token.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := bearerToken(r)
			if tokenString == "" {
				respondWithError(w, http.StatusUnauthorized, errMissingToken, "Authentication required")
				return
			}

			claims, err := tokens.Verify(tokenString)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, errUnauthorized, "Authentication failed")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePrivileged guards super-admin-only endpoints. Must run after
// Authenticator.
func RequirePrivileged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			respondWithError(w, http.StatusUnauthorized, errMissingToken, "Authentication required")
			return
		}
		if claims.Role != models.RolePrivileged {
			respondWithError(w, http.StatusForbidden, errForbidden, "Access denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClaimsFromContext returns the verified claims stored by Authenticator, or
// nil outside an authenticated request.
func ClaimsFromContext(ctx context.Context) *token.Claims {
	claims, _ := ctx.Value(claimsContextKey).(*token.Claims)
	return claims
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
