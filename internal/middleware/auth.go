// Package middleware provides the HTTP middleware stack: authentication,
// request ids and rate limiting.
package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"planbase/internal/domain"
)

// TokenValidator verifies HS256 bearer tokens signed with a shared secret
// and extracts the caller identity.
type TokenValidator struct {
	secret []byte
}

// NewTokenValidator creates a validator. The secret must be non-empty.
func NewTokenValidator(secret string) (*TokenValidator, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}
	return &TokenValidator{secret: []byte(secret)}, nil
}

// Validate parses and verifies a token, returning the caller identity. The
// sub claim is mandatory; a missing role claim defaults to "user".
func (v *TokenValidator) Validate(tokenString string) (domain.UserContext, error) {
	tok, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if token.Method == nil || token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.UserContext{}, fmt.Errorf("jwt parse: %w", err)
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return domain.UserContext{}, fmt.Errorf("jwt parse: unsupported claim type %T", tok.Claims)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return domain.UserContext{}, fmt.Errorf("jwt parse: missing sub claim")
	}

	role, _ := claims["role"].(string)
	if role == "" {
		role = "user"
	}

	return domain.UserContext{UserID: sub, Role: role}, nil
}

// Auth returns middleware that requires a valid Bearer token and stores the
// caller identity in the request context. Requests without one get 401.
func Auth(v *TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				user, err := v.Validate(strings.TrimPrefix(auth, "Bearer "))
				if err == nil {
					next.ServeHTTP(w, r.WithContext(domain.WithUser(r.Context(), user)))
					return
				}
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"code":    401,
				"message": "unauthorized: provide a valid Bearer token",
			})
		})
	}
}
