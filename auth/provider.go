// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package auth supplies the per-connect auth credentials that connection
// bring-up turns into Auth packets: a swappable source of credential
// material, resolved fresh on each dial rather than cached once.
package auth

import "context"

// Credential is one opaque auth blob to be sent as an AuthPacket during
// connection bring-up.
type Credential struct {
	Scheme string
	Auth   []byte
}

// Provider supplies the credentials to present on the next connection
// attempt. It is called once per successful dial rather than cached
// forever, so a rotating credential source stays current.
type Provider interface {
	Credentials(ctx context.Context) ([]Credential, error)
}

// ProviderFunc adapts a function to a Provider.
type ProviderFunc func(ctx context.Context) ([]Credential, error)

func (f ProviderFunc) Credentials(ctx context.Context) ([]Credential, error) {
	return f(ctx)
}

// Static returns a Provider that always presents the same fixed set of
// credentials, the common case for a digest scheme shared secret.
func Static(creds ...Credential) Provider {
	return ProviderFunc(func(context.Context) ([]Credential, error) {
		return creds, nil
	})
}

// None is a Provider presenting no credentials at all.
var None Provider = ProviderFunc(func(context.Context) ([]Credential, error) {
	return nil, nil
})
