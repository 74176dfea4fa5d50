// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package ztree implements a client-side session engine for a
// ZooKeeper-style hierarchical coordination service: a single logical
// session against a replicated ensemble, multiplexed over one framed
// TCP connection at a time, reconnecting under session identity and
// dispatching watch notifications to registered callbacks.
//
// A Session is a request producer (one goroutine owning the socket), a
// receive path (one goroutine per live connection parsing the framed
// reply stream) and an event consumer (one goroutine serializing
// watcher callbacks): functional options configure it, an
// eventor-backed listener fan-out delivers its events, and a single
// context.CancelFunc shutdown gate guarded by a mutex stops it.
package ztree

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zkit-io/ztree/auth"
	"github.com/zkit-io/ztree/internal/backoff"
	"github.com/zkit-io/ztree/proto"
	"github.com/zkit-io/ztree/queue"
	"github.com/zkit-io/ztree/state"
	"github.com/zkit-io/ztree/watch"
	"go.uber.org/zap"
)

// connHandle is the producer's and the receive path's shared view of
// one live socket. cancel wakes the producer's blocked outgoing-queue
// take when the receive path detects the connection has died; done
// closes once the receive goroutine has returned, so Cleanup can join
// it before a new connection is opened.
type connHandle struct {
	conn   net.Conn
	addr   string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Session is the core engine. Construct with New and start its worker
// goroutines with Start.
type Session struct {
	servers          []string
	requestedTimeout int32
	dialTimeout      time.Duration
	maxPacketLen     int
	chroot           Chroot
	registry         Registry
	authProvider     auth.Provider
	logger           *zap.Logger
	autoReset        bool
	nowFunc          func() time.Time
	jitterFunc       func() time.Duration

	sessionState atomic.Int32 // state.SessionState

	outgoing *queue.Queue[*Packet]
	pending  *queue.Queue[*Packet]
	events   *queue.Queue[state.WatchedEvent]

	xid atomic.Int32

	m        sync.Mutex
	wg       sync.WaitGroup
	shutdown context.CancelFunc
	closing  atomic.Bool

	// Single-writer fields: touched only by the producer/receive pair,
	// handed off across reconnects through cleanup's join on the
	// outgoing connHandle's done channel.
	sessionID         int64
	sessionPasswd     []byte
	lastZxid          int64
	negotiatedTimeout atomic.Int32
	sentCount         int64
	recvCount         int64

	nextAddr             int
	lastConnectIndex     int
	pendingConnectIndex  int
	firstAttempt         bool
	cycleBackoff         *backoff.CycleBackoff

	eventMu             sync.Mutex
	lastQueuedState     state.SessionState
	haveLastQueuedState bool

	connMu  sync.Mutex
	current *connHandle
}

// New builds a Session from opts. At least one server address
// (Servers) is required.
func New(opts ...Option) (*Session, error) {
	s := &Session{
		maxPacketLen:     proto.DefaultMaxPacketLen,
		registry:         watch.NewRegistry(),
		authProvider:     auth.None,
		logger:           zap.NewNop(),
		autoReset:        true,
		nowFunc:          time.Now,
		lastConnectIndex: -1,
		firstAttempt:     true,
	}
	s.jitterFunc = func() time.Duration { return backoff.Jitter(50 * time.Millisecond) }
	s.outgoing = queue.New[*Packet]()
	s.pending = queue.New[*Packet]()
	s.events = queue.New[state.WatchedEvent]()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(s); err != nil {
			return nil, err
		}
	}

	if len(s.servers) == 0 {
		return nil, fmt.Errorf("%w: no servers configured", ErrMisconfigured)
	}
	if s.requestedTimeout <= 0 {
		s.requestedTimeout = int32(30 * time.Second / time.Millisecond)
	}
	if s.dialTimeout <= 0 {
		s.dialTimeout = time.Duration(s.requestedTimeout) * time.Millisecond / time.Duration(len(s.servers))
	}

	return s, nil
}

// Start starts the producer and event-consumer goroutines. Only the
// first call has effect: calling Start again, including after Stop, is
// a no-op.
func (s *Session) Start() {
	s.m.Lock()
	defer s.m.Unlock()

	if s.shutdown != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.shutdown = cancel
	s.cycleBackoff = backoff.New(ctx, backoff.DefaultCycleConfig())
	s.setState(state.NotConnected)

	s.wg.Add(2)
	go s.producerLoop(ctx)
	go s.eventLoop(ctx)
}

// Stop cancels both worker goroutines and waits for them to exit. It
// is safe to call more than once.
func (s *Session) Stop() {
	s.m.Lock()
	shutdown := s.shutdown
	s.m.Unlock()

	if shutdown != nil {
		shutdown()
	}
	s.wg.Wait()
}

// Close requests a graceful close: it queues a CloseSession packet so
// the producer drains in FIFO order rather than abandoning in-flight
// work, waits for that packet to finish (or ctx to expire), then stops
// both workers.
func (s *Session) Close(ctx context.Context) error {
	p, err := s.QueuePacket(OpCloseSession, nil, nil, "", nil)
	if err != nil {
		return err
	}
	select {
	case <-p.Done():
	case <-ctx.Done():
	}
	s.Stop()
	return p.Err()
}

// State returns the current session state.
func (s *Session) State() state.SessionState {
	return state.SessionState(s.sessionState.Load())
}

// SessionID returns the server-assigned session id, 0 before the first
// successful handshake.
func (s *Session) SessionID() int64 { return s.sessionID }

// Subscribe registers l to receive every session-state WatchedEvent
// (SyncConnected/Disconnected/Expired/AuthFailed-equivalent, all with
// Type == EventNone), via the configured Registry.
func (s *Session) Subscribe(l state.Listener) watch.CancelFunc {
	return s.registry.AddSessionListener(l)
}

// QueuePacket enqueues a request for the producer to send, allocating
// the next xid and applying the configured chroot. If the session is
// already CLOSED or AUTH_FAILED, or a close has been requested, the
// packet is returned already finished with the matching error and
// never reaches the socket.
func (s *Session) QueuePacket(op OpCode, body proto.Marshaler, resp proto.Unmarshaler, clientPath string, wr WatchRegistration) (*Packet, error) {
	switch s.State() {
	case state.Closed:
		return s.preFinished(ErrSessionExpiredErr)
	case state.AuthFailed:
		return s.preFinished(ErrAuthFailedErr)
	}

	header := &proto.RequestHeader{Xid: s.xid.Add(1), Type: int32(op)}
	p, err := newPacket(header, body, resp)
	if err != nil {
		return nil, err
	}
	p.ClientPath = clientPath
	p.ServerPath = s.chroot.Apply(clientPath)
	p.WatchRegistration = wr

	if s.closing.Load() {
		p.finish(ErrConnectionLossErr)
		return p, nil
	}

	s.outgoing.Push(p)
	return p, nil
}

func (s *Session) preFinished(err error) (*Packet, error) {
	p := &Packet{done: make(chan struct{})}
	p.finish(err)
	return p, nil
}

func (s *Session) now() time.Time {
	if s.nowFunc != nil {
		return s.nowFunc()
	}
	return time.Now()
}

func (s *Session) jitter() time.Duration {
	if s.jitterFunc != nil {
		return s.jitterFunc()
	}
	return 0
}

// connLogger scopes s.logger with the identity a reader needs to
// correlate a line with one session and one server: the session id in
// hex (zero before the first handshake) and the server address in
// play for the call site.
func (s *Session) connLogger(addr string) *zap.Logger {
	return s.logger.With(
		zap.String("sessionID", fmt.Sprintf("0x%x", s.sessionID)),
		zap.String("server", addr),
	)
}

// setState applies the session state machine's transition and event
// rules: no transition leaves CLOSED/AUTH_FAILED, entering CONNECTED
// emits a SyncConnected-equivalent event, leaving CONNECTED for
// NOT_CONNECTED emits a Disconnected-equivalent event, and entering
// CLOSED or AUTH_FAILED emits their own event.
//
// The producer and receive-path goroutines can both call this
// concurrently, so the terminal check and the store must be one
// atomic step: a CompareAndSwap loop re-reads and re-checks Terminal
// on every retry, so a terminal state stored by one goroutine can
// never be clobbered by a stale transition racing in from the other.
func (s *Session) setState(next state.SessionState) {
	var prev state.SessionState
	for {
		cur := state.SessionState(s.sessionState.Load())
		if cur.Terminal() || cur == next {
			return
		}
		if s.sessionState.CompareAndSwap(int32(cur), int32(next)) {
			prev = cur
			break
		}
	}

	switch {
	case next == state.Connected:
		s.queueEvent(state.WatchedEvent{State: state.Connected})
	case prev == state.Connected && next == state.NotConnected:
		s.queueEvent(state.WatchedEvent{State: state.NotConnected})
	case next == state.Closed:
		s.queueEvent(state.WatchedEvent{State: state.Closed})
	case next == state.AuthFailed:
		s.queueEvent(state.WatchedEvent{State: state.AuthFailed})
	}
}

// queueEvent applies the session-state dedup rule: a type==None event
// whose state matches the last one queued is dropped silently, the
// comparison and update happening atomically at enqueue time rather
// than at dispatch.
func (s *Session) queueEvent(ev state.WatchedEvent) {
	if ev.IsSessionEvent() {
		s.eventMu.Lock()
		dup := s.haveLastQueuedState && s.lastQueuedState == ev.State
		if !dup {
			s.lastQueuedState = ev.State
			s.haveLastQueuedState = true
		}
		s.eventMu.Unlock()
		if dup {
			return
		}
	}
	s.events.Push(ev)
}

func (s *Session) hasActiveConn() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.current != nil
}

func (s *Session) activeConn() *connHandle {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.current
}

// finishPacket registers the watch if one was declared, then finalizes
// the packet.
func (s *Session) finishPacket(p *Packet, err error) {
	if p.WatchRegistration != nil {
		code := ErrOK
		if p.ReplyHeader != nil {
			code = ErrCode(p.ReplyHeader.Err)
		}
		p.WatchRegistration(code)
	}
	p.finish(err)
}

// conLossPacket finalizes p with an error that depends on the session
// state at the moment of finalization.
func (s *Session) conLossPacket(p *Packet) {
	var err error
	switch s.State() {
	case state.AuthFailed:
		err = ErrAuthFailedErr
	case state.Closed:
		err = ErrSessionExpiredErr
	default:
		err = ErrConnectionLossErr
	}
	s.finishPacket(p, err)
}

// cleanup closes any stale connection, joins its receive goroutine,
// and drains the outgoing and pending queues, finalizing every packet
// found with connection loss (or whatever state-appropriate error
// applies).
func (s *Session) cleanup(inFlight *Packet) {
	s.connMu.Lock()
	h := s.current
	s.current = nil
	s.connMu.Unlock()

	if h != nil {
		h.cancel()
		_ = h.conn.Close()
		<-h.done
	}

	for _, p := range s.pending.DrainAll() {
		s.conLossPacket(p)
	}
	for _, p := range s.outgoing.DrainAll() {
		if p != nil {
			s.conLossPacket(p)
		}
	}
	if inFlight != nil {
		s.conLossPacket(inFlight)
	}
}
