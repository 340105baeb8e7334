// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the identity service.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer token from the Authorization
// header, validates it with the configured Authenticator, and stores the
// authenticated subject in the Gin context for downstream handlers.
//
//	Request
//	   │
//	   ▼
//	AuthMiddleware
//	   │
//	   ├─► Extract token from "Authorization: Bearer <token>"
//	   │
//	   ├─► authenticator.Authenticate(ctx, token)
//	   │
//	   └─► Store subject in context
//	           │
//	           ▼
//	       Handler (retrieves via Subject)
package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

// ErrUnauthorized is returned by authenticators for invalid credentials.
var ErrUnauthorized = errors.New("unauthorized")

// =============================================================================
// Context Helpers
// =============================================================================

// subjectKey is the context key for the authenticated subject. A typed
// key prevents collisions with other context values.
const subjectKey = "driftwatch_subject"

// SetSubject stores the authenticated subject in the Gin context.
func SetSubject(c *gin.Context, subject string) {
	c.Set(subjectKey, subject)
}

// Subject retrieves the authenticated subject from the Gin context.
// Returns the empty string when the request was not authenticated.
func Subject(c *gin.Context) string {
	if v, exists := c.Get(subjectKey); exists {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// =============================================================================
// Authenticators
// =============================================================================

// Authenticator validates a bearer token and names its subject.
//
// # Thread Safety
//
// Implementations must be safe for concurrent calls.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (subject string, err error)
}

// NopAuthenticator admits every request. Used when auth mode is "none",
// which suits local and single-tenant deployments.
type NopAuthenticator struct{}

// Authenticate always succeeds with the subject "local".
func (NopAuthenticator) Authenticate(context.Context, string) (string, error) {
	return "local", nil
}

// StaticTokenAuthenticator admits requests carrying one shared secret.
type StaticTokenAuthenticator struct {
	token string
}

// NewStaticTokenAuthenticator creates an authenticator for the given
// shared secret. The secret must be non-empty.
func NewStaticTokenAuthenticator(token string) (*StaticTokenAuthenticator, error) {
	if token == "" {
		return nil, errors.New("bearer token must not be empty")
	}
	return &StaticTokenAuthenticator{token: token}, nil
}

// Authenticate compares the presented token in constant time.
func (a *StaticTokenAuthenticator) Authenticate(_ context.Context, token string) (string, error) {
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
		return "", ErrUnauthorized
	}
	return "api-client", nil
}

// JWTAuthenticator admits requests carrying an HS256 JWT signed with the
// shared secret. The subject claim names the caller.
type JWTAuthenticator struct {
	secret []byte
}

// NewJWTAuthenticator creates an authenticator for the given HS256
// signing secret. The secret must be non-empty.
func NewJWTAuthenticator(secret string) (*JWTAuthenticator, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	return &JWTAuthenticator{secret: []byte(secret)}, nil
}

// Authenticate parses and verifies the token, then extracts its subject.
//
// # Outputs
//
//   - string: The "sub" claim, or "api-client" when the claim is absent.
//   - error: ErrUnauthorized for any token that does not verify. Expiry
//     is enforced by the JWT library during parsing.
func (a *JWTAuthenticator) Authenticate(_ context.Context, token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrUnauthorized
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrUnauthorized
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub, nil
	}
	return "api-client", nil
}

// FromConfig builds the authenticator for an auth mode.
//
// # Inputs
//
//   - mode: "none", "token", or "jwt".
//   - bearerToken: Shared secret for token mode.
//   - jwtSecret: HS256 signing secret for jwt mode.
func FromConfig(mode, bearerToken, jwtSecret string) (Authenticator, error) {
	switch mode {
	case "", "none":
		return NopAuthenticator{}, nil
	case "token":
		return NewStaticTokenAuthenticator(bearerToken)
	case "jwt":
		return NewJWTAuthenticator(jwtSecret)
	default:
		return nil, fmt.Errorf("unknown auth mode: %q", mode)
	}
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware creates a Gin middleware that authenticates requests.
//
// # Description
//
// Extracts the bearer token from the Authorization header, validates it
// with the authenticator, and stores the subject in the context. Any
// validation failure aborts the request with 401.
//
// # Thread Safety
//
// The returned middleware can be used concurrently.
func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)

		subject, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}

		SetSubject(c, subject)
		c.Next()
	}
}

// extractBearerToken parses the Authorization header expecting the
// format "Bearer <token>". Returns empty string if the header is missing
// or malformed. The "Bearer" prefix is case-insensitive per RFC 7235.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
