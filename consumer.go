// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package ztree

import (
	"context"

	"github.com/zkit-io/ztree/state"
	"go.uber.org/zap"
)

// eventLoop is the event consumer: a single goroutine serializing
// watcher invocation, draining the queue once more on shutdown to
// deliver final state transitions.
func (s *Session) eventLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		ev, ok := s.events.TakeBlocking(ctx)
		if !ok {
			if ctx.Err() != nil {
				s.drainEvents()
				return
			}
			continue
		}
		s.dispatch(ev)
	}
}

// dispatch materializes the listeners for ev when the event is taken
// off the queue, not when it was queued: a watch installed while the
// event waits in the queue also receives it.
func (s *Session) dispatch(ev state.WatchedEvent) {
	for _, l := range s.registry.Materialize(ev) {
		s.invoke(l, ev)
	}
}

// invoke isolates one watcher's callback so a panic in it cannot
// poison dispatch of the rest.
func (s *Session) invoke(l state.Listener, ev state.WatchedEvent) {
	defer func() {
		if r := recover(); r != nil {
			var addr string
			if h := s.activeConn(); h != nil {
				addr = h.addr
			}
			s.connLogger(addr).Error("watcher callback panicked", zap.Any("recover", r))
		}
	}()
	l.OnWatchedEvent(ev)
}

func (s *Session) drainEvents() {
	for _, ev := range s.events.DrainAll() {
		s.dispatch(ev)
	}
}
