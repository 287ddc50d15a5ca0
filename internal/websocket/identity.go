// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package websocket

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken means a presented identity token failed validation.
var ErrInvalidToken = errors.New("invalid identity token")

// IdentityResolver derives the transport-level user id of an upgrade request.
// An empty id with a nil error means the connection is anonymous.
type IdentityResolver interface {
	Resolve(r *http.Request) (string, error)
}

// QueryIdentity trusts a numeric user_id query parameter.
type QueryIdentity struct{}

// Resolve implements IdentityResolver.
func (QueryIdentity) Resolve(r *http.Request) (string, error) {
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		return "", nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return "", nil
	}
	return strconv.FormatInt(id, 10), nil
}

// TokenClaims are the claims accepted in an identity token.
type TokenClaims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTIdentity validates HS256 tokens passed as the token query parameter or
// as an Authorization bearer.
type JWTIdentity struct {
	secret []byte
}

// NewJWTIdentity returns a resolver keyed by secret.
func NewJWTIdentity(secret string) (*JWTIdentity, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but was empty")
	}
	return &JWTIdentity{secret: []byte(secret)}, nil
}

// Resolve implements IdentityResolver. No token yields an anonymous identity;
// a bad token yields ErrInvalidToken.
func (j *JWTIdentity) Resolve(r *http.Request) (string, error) {
	raw := tokenFromRequest(r)
	if raw == "" {
		return "", nil
	}

	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.UserID != "" {
		return claims.UserID, nil
	}
	if claims.Subject != "" {
		return claims.Subject, nil
	}
	return "", fmt.Errorf("%w: no user_id or sub claim", ErrInvalidToken)
}

// Sign issues a token for userID. It is used by tooling and tests.
func (j *JWTIdentity) Sign(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &TokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func tokenFromRequest(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
