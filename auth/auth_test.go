package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestStatic(t *testing.T) {
	tok, err := Static("abc")(context.Background(), nil)
	if err != nil || tok != "abc" {
		t.Fatalf("Static() = %q, %v", tok, err)
	}
}

func TestJWT_SignsAndCaches(t *testing.T) {
	key := []byte("test-key")
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	j := &JWT{
		Method:  jwt.SigningMethodHS256,
		Key:     key,
		Issuer:  "apistub",
		Subject: "client",
		TTL:     time.Minute,
		Now:     func() time.Time { return now },
	}

	first, err := j.Func()(context.Background(), nil)
	if err != nil {
		t.Fatalf("Token() error: %v", err)
	}

	parsed, err := jwt.ParseWithClaims(first, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	claims := parsed.Claims.(*jwt.RegisteredClaims)
	if claims.Issuer != "apistub" || claims.Subject != "client" {
		t.Errorf("claims = %+v", claims)
	}

	second, _ := j.Token()
	if second != first {
		t.Error("expected cached token to be reused")
	}

	now = now.Add(45 * time.Second)
	third, _ := j.Token()
	if third == first {
		t.Error("expected token to be refreshed near expiry")
	}
}

func TestJWT_RequiresKey(t *testing.T) {
	if _, err := (&JWT{}).Token(); err == nil {
		t.Fatal("expected error without Method and Key")
	}
}
