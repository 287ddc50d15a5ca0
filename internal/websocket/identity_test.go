// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package websocket

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestQueryIdentity(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"", ""},
		{"?user_id=12", "12"},
		{"?user_id=0012", "12"},
		{"?user_id=abc", ""},
		{"?user_id=-4", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/ws"+tt.query, nil)
		got, err := QueryIdentity{}.Resolve(req)
		if err != nil {
			t.Errorf("%q: unexpected error %v", tt.query, err)
		}
		if got != tt.want {
			t.Errorf("%q: got %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestNewJWTIdentityRequiresSecret(t *testing.T) {
	if _, err := NewJWTIdentity(""); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestJWTIdentity(t *testing.T) {
	secret := strings.Repeat("k", 32)
	ident, err := NewJWTIdentity(secret)
	if err != nil {
		t.Fatal(err)
	}
	valid, err := ident.Sign("42", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	expired, err := ident.Sign("42", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	other, _ := NewJWTIdentity(strings.Repeat("x", 32))
	foreign, _ := other.Sign("42", time.Minute)

	subOnly, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "77",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		query   string
		bearer  string
		want    string
		wantErr bool
	}{
		{name: "anonymous"},
		{name: "query token", query: "?token=" + valid, want: "42"},
		{name: "bearer token", bearer: "Bearer " + valid, want: "42"},
		{name: "lowercase bearer", bearer: "bearer " + valid, want: "42"},
		{name: "sub claim", query: "?token=" + subOnly, want: "77"},
		{name: "expired", query: "?token=" + expired, wantErr: true},
		{name: "wrong key", query: "?token=" + foreign, wantErr: true},
		{name: "garbage", query: "?token=abc.def.ghi", wantErr: true},
		{name: "no identity claim", query: "?token=" + noSubject, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/ws"+tt.query, nil)
			if tt.bearer != "" {
				req.Header.Set("Authorization", tt.bearer)
			}
			got, err := ident.Resolve(req)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidToken) {
					t.Errorf("err = %v, want ErrInvalidToken", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJWTIdentityRejectsNoneAlgorithm(t *testing.T) {
	ident, _ := NewJWTIdentity(strings.Repeat("k", 32))
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("GET", "/ws?token="+unsigned, nil)
	if _, err := ident.Resolve(req); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestSanitizeLogValue(t *testing.T) {
	got := sanitizeLogValue("http://a\r\nb" + strings.Repeat("x", 300))
	if strings.ContainsAny(got, "\r\n") {
		t.Errorf("control characters kept: %q", got)
	}
	if len(got) > 200 {
		t.Errorf("len = %d, want <= 200", len(got))
	}
}
