// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// JWTScheme is the auth scheme presented for a JWTProvider's credentials.
const JWTScheme = "bearer"

// JWTProvider mints a short-lived signed JWT on every connect attempt,
// tagging it with a fresh correlation id so the resulting Auth packet
// can be traced through server-side logs the same way
// credentials.go tags its fetches with a request id.
type JWTProvider struct {
	Issuer   string
	Subject  string
	Lifetime time.Duration
	Key      []byte

	// nowFunc is overridable for tests.
	nowFunc func() time.Time
}

// NewJWTProvider returns a JWTProvider signing with HS256 using key.
func NewJWTProvider(issuer, subject string, lifetime time.Duration, key []byte) *JWTProvider {
	return &JWTProvider{
		Issuer:   issuer,
		Subject:  subject,
		Lifetime: lifetime,
		Key:      key,
		nowFunc:  time.Now,
	}
}

// Credentials implements Provider.
func (p *JWTProvider) Credentials(ctx context.Context) ([]Credential, error) {
	now := p.now()

	tok, err := jwt.NewBuilder().
		Issuer(p.Issuer).
		Subject(p.Subject).
		JwtID(uuid.NewString()).
		IssuedAt(now).
		Expiration(now.Add(p.Lifetime)).
		Build()
	if err != nil {
		return nil, fmt.Errorf("auth: build jwt: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, p.Key))
	if err != nil {
		return nil, fmt.Errorf("auth: sign jwt: %w", err)
	}

	return []Credential{{Scheme: JWTScheme, Auth: signed}}, nil
}

func (p *JWTProvider) now() time.Time {
	if p.nowFunc != nil {
		return p.nowFunc()
	}
	return time.Now()
}
