// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package backoff supplies the two sleeps connection bring-up performs:
// a small fixed-range jitter before every attempt after the first, and an escalating
// backoff once the bring-up loop has cycled through the whole server
// list without making progress.
//
// The per-attempt jitter is a small uniform range on math/rand. The
// cycle backoff has no prescribed shape beyond "don't spin", so it is
// built on github.com/xmidt-org/retry, escalating rather than sleeping
// a single flat interval.
package backoff

import (
	"context"
	"math/rand"
	"time"

	"github.com/xmidt-org/retry"
)

// Jitter returns a pseudo-random duration in [0, max).
func Jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

// CycleBackoff escalates the sleep applied each time the bring-up loop
// has tried every server address without a successful write, and resets
// once progress is made.
type CycleBackoff struct {
	factory retry.PolicyFactory
	policy  retry.Policy
	ctx     context.Context
}

// DefaultCycleConfig is a reasonable escalating backoff shape: a one
// second starting interval, doubling up to a thirty second ceiling.
func DefaultCycleConfig() retry.Config {
	return retry.Config{
		Interval:    time.Second,
		Multiplier:  2.0,
		Jitter:      1.0 / 3.0,
		MaxInterval: 30 * time.Second,
	}
}

// New builds a CycleBackoff from cfg and starts its first policy.
func New(ctx context.Context, cfg retry.Config) *CycleBackoff {
	b := &CycleBackoff{factory: cfg, ctx: ctx}
	b.Reset()
	return b
}

// Reset starts a fresh policy, called whenever a connect attempt makes
// progress (a socket write succeeds).
func (b *CycleBackoff) Reset() {
	b.policy = b.factory.NewPolicy(b.ctx)
}

// Next returns how long to sleep before retrying the whole server list
// again.
func (b *CycleBackoff) Next() time.Duration {
	d, _ := b.policy.Next()
	return d
}
