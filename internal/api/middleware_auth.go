package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const ownerContextKey contextKey = "owner"

// OwnerClaims are the JWT claims accepted by the HTTP API
type OwnerClaims struct {
	OwnerID int64 `json:"owner_id"`
	jwt.RegisteredClaims
}

// jwtAuthMiddleware validates bearer tokens and puts the owner id in the context
func (s *HTTPServer) jwtAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "Authorization header required")
			return
		}

		// Extract token from "Bearer <token>"
		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "Invalid authorization header format")
			return
		}

		ownerID, err := parseOwnerToken(authHeader[len(prefix):], s.jwtSecret)
		if err != nil {
			writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
			return
		}

		if err := s.accounts.EnsureOwner(r.Context(), ownerID); err != nil {
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), ownerContextKey, ownerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func parseOwnerToken(tokenString string, secret []byte) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OwnerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, err
	}

	claims, ok := token.Claims.(*OwnerClaims)
	if !ok || !token.Valid || claims.OwnerID <= 0 {
		return 0, fmt.Errorf("invalid token claims")
	}
	return claims.OwnerID, nil
}

// ownerFromContext returns the authenticated owner id
func ownerFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(ownerContextKey).(int64)
	return id
}

// IssueToken signs an API token for an owner
func IssueToken(secret []byte, ownerID int64, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := OwnerClaims{
		OwnerID: ownerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}
