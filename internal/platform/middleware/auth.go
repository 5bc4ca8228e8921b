package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// JWTValidator validates admin bearer tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*AdminClaims, error)
}

// AdminClaims is what the payout surface needs from a validated admin token.
type AdminClaims struct {
	Subject string
	Role    string
}

type contextKeyActor struct{}

// GetActor retrieves the authenticated admin subject from the context.
func GetActor(ctx context.Context) string {
	actor, ok := ctx.Value(contextKeyActor{}).(string)
	if !ok {
		return ""
	}
	return actor
}

// RequireAdmin gates the disbursement surface behind a valid admin JWT. Every
// rejection fails closed before any domain logic runs.
func RequireAdmin(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
				return
			}

			if claims.Role != "admin" {
				logger.WarnContext(ctx, "forbidden - non-admin role",
					"subject", claims.Subject,
					"role", claims.Role,
					"request_id", GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusForbidden, "forbidden", "admin role required")
				return
			}

			ctx = context.WithValue(ctx, contextKeyActor{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, kind, desc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":%q,"kind":%q}`, desc, kind))
}
