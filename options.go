// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package ztree

import (
	"errors"
	"time"

	"github.com/zkit-io/ztree/auth"
	"go.uber.org/zap"
)

// ErrMisconfigured is returned by New when required options are missing
// or invalid.
var ErrMisconfigured = errors.New("ztree: misconfigured session")

// Option is a functional option for New.
type Option interface {
	apply(*Session) error
}

type optionFunc func(*Session) error

func (f optionFunc) apply(s *Session) error { return f(s) }

// Servers sets the static, pre-resolved server list. At least one
// address is required.
func Servers(addrs ...string) Option {
	return optionFunc(func(s *Session) error {
		if len(addrs) == 0 {
			return errors.New("ztree: empty server list")
		}
		s.servers = append([]string(nil), addrs...)
		return nil
	})
}

// SessionTimeout sets the timeout proposed to the server on the initial
// connect; the server may negotiate it down.
func SessionTimeout(d time.Duration) Option {
	return optionFunc(func(s *Session) error {
		if d <= 0 {
			return errors.New("ztree: non-positive session timeout")
		}
		s.requestedTimeout = int32(d.Milliseconds())
		return nil
	})
}

// DialTimeout bounds each TCP connect attempt. Defaults to
// session_timeout/server_count when unset.
func DialTimeout(d time.Duration) Option {
	return optionFunc(func(s *Session) error {
		s.dialTimeout = d
		return nil
	})
}

// MaxPacketLen overrides the default maximum accepted frame length.
func MaxPacketLen(n int) Option {
	return optionFunc(func(s *Session) error {
		if n <= 0 {
			return errors.New("ztree: non-positive MaxPacketLen")
		}
		s.maxPacketLen = n
		return nil
	})
}

// WithChroot installs a chroot prefix applied to outgoing client paths
// and stripped from server-reported paths.
func WithChroot(prefix Chroot) Option {
	return optionFunc(func(s *Session) error {
		s.chroot = prefix
		return nil
	})
}

// WithRegistry overrides the default watch registry, letting callers
// supply their own implementation of Registry.
func WithRegistry(r Registry) Option {
	return optionFunc(func(s *Session) error {
		if r == nil {
			return errors.New("ztree: nil Registry")
		}
		s.registry = r
		return nil
	})
}

// WithAuth sets the credential Provider consulted on every connect
// attempt.
func WithAuth(p auth.Provider) Option {
	return optionFunc(func(s *Session) error {
		if p == nil {
			return errors.New("ztree: nil auth.Provider")
		}
		s.authProvider = p
		return nil
	})
}

// WithLogger sets the structured logger. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(s *Session) error {
		if l == nil {
			return errors.New("ztree: nil logger")
		}
		s.logger = l
		return nil
	})
}

// WithAutoReset controls whether a reconnect replays previously
// installed watches via SetWatches. Default true.
func WithAutoReset(enabled bool) Option {
	return optionFunc(func(s *Session) error {
		s.autoReset = enabled
		return nil
	})
}

// withNowFunc overrides time.Now for deterministic tests. Unexported:
// not part of the public surface.
func withNowFunc(f func() time.Time) Option {
	return optionFunc(func(s *Session) error {
		s.nowFunc = f
		return nil
	})
}

// withJitterFunc overrides the bring-up jitter source for deterministic
// tests.
func withJitterFunc(f func() time.Duration) Option {
	return optionFunc(func(s *Session) error {
		s.jitterFunc = f
		return nil
	})
}
