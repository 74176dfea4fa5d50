// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticProviderReturnsFixedCredentials(t *testing.T) {
	want := Credential{Scheme: "digest", Auth: []byte("user:pass")}
	p := Static(want)
	got, err := p.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Credential{want}, got)
}

func TestNoneProviderReturnsEmpty(t *testing.T) {
	got, err := None.Credentials(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestJWTProviderSignsAndExpires(t *testing.T) {
	p := NewJWTProvider("ztree", "client-1", time.Minute, []byte("test-key-0123456789"))
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.nowFunc = func() time.Time { return fixed }

	creds, err := p.Credentials(context.Background())
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, JWTScheme, creds[0].Scheme)

	tok, err := jwt.Parse(creds[0].Auth, jwt.WithVerify(false))
	require.NoError(t, err)
	assert.Equal(t, "ztree", tok.Issuer())
	assert.Equal(t, "client-1", tok.Subject())
	assert.WithinDuration(t, fixed.Add(time.Minute), tok.Expiration(), time.Second)
}
