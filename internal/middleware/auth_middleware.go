package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/jlk1997/n-dog-b/internal/models"
)

// TokenVerifier определяет функцию, которая проверяет строку токена и возвращает claims.
// Ошибки могут быть models.ErrTokenInvalid, models.ErrTokenExpired, models.ErrTokenMalformed.
type TokenVerifier func(ctx context.Context, tokenString string) (*models.Claims, error)

// AuthMiddleware создает HTTP middleware для проверки JWT и ролей.
// Оно извлекает токен, верифицирует его с помощью предоставленного verifier,
// проверяет роли и добавляет UserID/Roles в контекст запроса.
func AuthMiddleware(verifier TokenVerifier, logger *zap.Logger, requiredRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := logger.With(zap.String("path", r.URL.Path))

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				log.Warn("Authorization header missing")
				models.SendJSONError(w, "Unauthorized: Missing token", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				log.Warn("Malformed Authorization header")
				models.SendJSONError(w, "Unauthorized: Malformed token header", http.StatusUnauthorized)
				return
			}
			tokenString := parts[1]

			claims, err := verifier(ctx, tokenString)
			if err != nil {
				status := http.StatusUnauthorized
				msg := "Unauthorized: Invalid token"
				if errors.Is(err, models.ErrTokenExpired) {
					msg = "Unauthorized: Token expired"
				} else if !errors.Is(err, models.ErrTokenMalformed) && !errors.Is(err, models.ErrTokenInvalid) {
					log.Error("Unexpected token verification error", zap.Error(err))
					status = http.StatusInternalServerError
					msg = "Internal server error during token verification"
				}
				log.Warn("Token verification failed", zap.Error(err))
				models.SendJSONError(w, msg, status)
				return
			}

			if len(requiredRoles) > 0 {
				hasRequiredRole := false
				for _, requiredRole := range requiredRoles {
					if models.HasRole(claims.Roles, requiredRole) {
						hasRequiredRole = true
						break
					}
				}
				if !hasRequiredRole {
					log.Warn("User does not have required role",
						zap.Stringer("userID", claims.UserID),
						zap.Strings("userRoles", claims.Roles),
						zap.Strings("requiredRoles", requiredRoles))
					models.SendJSONError(w, "Forbidden: Insufficient permissions", http.StatusForbidden)
					return
				}
			}

			ctx = context.WithValue(ctx, models.UserContextKey, claims.UserID)
			ctx = context.WithValue(ctx, models.RolesContextKey, claims.Roles)

			log.Debug("User authorized", zap.Stringer("userID", claims.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminTokenMiddleware создает HTTP middleware для авторской поверхности:
// статический токен в заголовке X-Admin-Token, сравнение за константное время.
func AdminTokenMiddleware(adminToken string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminToken == "" {
				logger.Error("Admin token is not configured, rejecting request",
					zap.String("path", r.URL.Path))
				models.SendJSONError(w, "Forbidden: Admin surface disabled", http.StatusForbidden)
				return
			}

			supplied := r.Header.Get("X-Admin-Token")
			if subtle.ConstantTimeCompare([]byte(supplied), []byte(adminToken)) != 1 {
				logger.Warn("Admin token mismatch", zap.String("path", r.URL.Path))
				models.SendJSONError(w, "Forbidden: Invalid admin token", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
