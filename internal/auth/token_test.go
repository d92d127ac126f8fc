package auth

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("s3cret", "user-7", RoleEditor, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("NewAccessToken failed: %v", err)
	}
	claims, err := Parse("s3cret", tok.Token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.Subject != "user-7" || claims.Role != RoleEditor {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestParseRejects(t *testing.T) {
	expired, err := NewAccessToken("s3cret", "u", RoleOwner, time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("NewAccessToken failed: %v", err)
	}
	valid, err := NewAccessToken("s3cret", "u", RoleOwner, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("NewAccessToken failed: %v", err)
	}
	cases := []struct {
		name, secret, raw string
	}{
		{"expired", "s3cret", expired.Token},
		{"wrong secret", "other", valid.Token},
		{"garbage", "s3cret", "not.a.token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.secret, tc.raw); err == nil {
				t.Fatal("expected Parse to fail")
			}
		})
	}
}

func TestNewAccessTokenValidatesInput(t *testing.T) {
	if _, err := NewAccessToken("", "u", RoleOwner, time.Hour, time.Now()); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := NewAccessToken("s", "u", "ADMIN", time.Hour, time.Now()); err == nil {
		t.Fatal("expected error for unknown role")
	}
}
