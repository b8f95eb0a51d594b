package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"plugin-hub-backend/pkg/config"
	"plugin-hub-backend/pkg/models"
	"plugin-hub-backend/pkg/utils"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is the type for context keys set by this package
type ContextKey string

const (
	UserContextKey ContextKey = "user"
)

// AuthMiddleware validates the bearer token and stores the caller identity
// in the request context
func AuthMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				utils.WriteDomainErrorResponse(w, models.ErrUnauthenticated)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				utils.WriteUnauthorizedResponse(w, "Invalid authorization header format")
				return
			}

			token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(cfg.JWTSecret), nil
			})

			if err != nil {
				fmt.Printf("❌ Auth middleware: Token parsing failed: %v\n", err)
				utils.WriteUnauthorizedResponse(w, "Invalid token")
				return
			}

			if !token.Valid {
				utils.WriteUnauthorizedResponse(w, "Invalid token")
				return
			}

			claims, ok := token.Claims.(*models.TokenClaims)
			if !ok {
				utils.WriteUnauthorizedResponse(w, "Invalid token claims")
				return
			}

			// refresh tokens never grant API access
			if claims.Type != "access" {
				utils.WriteUnauthorizedResponse(w, "Invalid token type")
				return
			}

			if time.Now().Unix() > claims.Exp {
				utils.WriteUnauthorizedResponse(w, "Token expired")
				return
			}

			user := &models.User{
				ID:    claims.UserID,
				Email: claims.Email,
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuthMiddleware resolves the caller identity when a valid token is
// present but lets unauthenticated requests through. Used on the public
// browse endpoints.
func OptionalAuthMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				next.ServeHTTP(w, r)
				return
			}

			token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(cfg.JWTSecret), nil
			})

			if err == nil && token.Valid {
				if claims, ok := token.Claims.(*models.TokenClaims); ok {
					if claims.Type == "access" && time.Now().Unix() <= claims.Exp {
						user := &models.User{
							ID:    claims.UserID,
							Email: claims.Email,
						}
						ctx := context.WithValue(r.Context(), UserContextKey, user)
						next.ServeHTTP(w, r.WithContext(ctx))
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext reads the caller identity set by the auth middleware
func GetUserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	return user, ok
}

// RequireUser returns the caller identity or ErrUnauthenticated
func RequireUser(ctx context.Context) (*models.User, error) {
	user, ok := GetUserFromContext(ctx)
	if !ok || user == nil {
		return nil, models.ErrUnauthenticated
	}
	return user, nil
}
