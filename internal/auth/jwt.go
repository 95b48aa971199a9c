// Copyright 2025 The Municipal Agent Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package auth implements service-to-service authentication. Callers present
// a short-lived HS256 JWT whose subject names the calling service; the
// execution daemon admits only services on its allow list.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// defaultTokenTTL bounds tokens minted without an explicit lifetime.
const defaultTokenTTL = time.Hour

// Config contains service JWT configuration.
type Config struct {
	// Secret is the shared HS256 signing key.
	Secret []byte

	// AllowedServices lists the service names admitted as callers. Empty
	// means no caller is admitted.
	AllowedServices []string

	// ClockSkew allows for clock skew when validating exp/iat claims.
	ClockSkew time.Duration
}

// Claims are the claims carried by a service token. The subject is the
// calling service's name.
type Claims struct {
	jwt.RegisteredClaims
}

// ServiceName returns the calling service named by the token.
func (c *Claims) ServiceName() string {
	return c.Subject
}

// GenerateToken mints a service token for the named service. ttl <= 0 uses
// the default lifetime.
func GenerateToken(service string, secret []byte, ttl time.Duration) (string, error) {
	if service == "" {
		return "", fmt.Errorf("service name is empty")
	}
	if len(secret) == 0 {
		return "", fmt.Errorf("no signing secret configured")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   service,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies a service token and returns its claims. The token
// must be signed with the configured secret, unexpired, and name an allowed
// service.
func ValidateToken(tokenString string, cfg Config) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("token is empty")
	}
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("no signing secret configured")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithLeeway(cfg.ClockSkew),
		jwt.WithExpirationRequired(),
	)

	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return cfg.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is invalid")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}

	allowed := false
	for _, service := range cfg.AllowedServices {
		if service == claims.Subject {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("service %q is not allowed", claims.Subject)
	}

	return claims, nil
}
