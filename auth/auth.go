// Package auth provides token sources for scheme-only Authorization headers.
//
// A method declared with
//
//	//apistub:header Authorization: Bearer
//
// gets its token from the builder's AuthorizationFunc:
//
//	builder := apistub.NewRequestBuilder().
//	    WithAuthorization(auth.Static("s3cr3t"))
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/broady/apistub"
	"github.com/golang-jwt/jwt/v5"
)

// Static returns a source that always supplies token.
func Static(token string) apistub.AuthorizationFunc {
	return func(context.Context, *apistub.RequestDescriptor) (string, error) {
		return token, nil
	}
}

// JWT signs short-lived tokens and reuses each one until it nears expiry.
// It is safe for concurrent use.
type JWT struct {
	// Method is the signing method, for example jwt.SigningMethodHS256.
	Method jwt.SigningMethod
	// Key is the signing key accepted by Method.
	Key any
	// Issuer, Subject and Audience populate the registered claims.
	Issuer   string
	Subject  string
	Audience []string
	// TTL is the token lifetime. Default: 5 minutes.
	TTL time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// refreshMargin is how long before expiry a cached token is replaced.
const refreshMargin = 30 * time.Second

// Token returns a valid signed token, signing a new one when needed.
func (j *JWT) Token() (string, error) {
	if j.Method == nil || j.Key == nil {
		return "", errors.New("auth: JWT requires Method and Key")
	}
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	t := now()

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.token != "" && t.Add(refreshMargin).Before(j.expires) {
		return j.token, nil
	}

	ttl := j.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	expires := t.Add(ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    j.Issuer,
		Subject:   j.Subject,
		Audience:  j.Audience,
		IssuedAt:  jwt.NewNumericDate(t),
		NotBefore: jwt.NewNumericDate(t),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(j.Method, claims).SignedString(j.Key)
	if err != nil {
		return "", err
	}
	j.token, j.expires = signed, expires
	return signed, nil
}

// Func adapts j to apistub.AuthorizationFunc.
func (j *JWT) Func() apistub.AuthorizationFunc {
	return func(context.Context, *apistub.RequestDescriptor) (string, error) {
		return j.Token()
	}
}
