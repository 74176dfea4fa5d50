// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package ztree

import (
	"context"
	"net"
	"time"

	"github.com/zkit-io/ztree/proto"
	"github.com/zkit-io/ztree/state"
	"go.uber.org/zap"
)

// producerLoop is the request producer's main loop: it owns the
// socket, drains the outgoing queue, sends pings on idle, and drives
// reconnection whenever there is no live connection.
func (s *Session) producerLoop(ctx context.Context) {
	defer s.wg.Done()

	lastPing := s.now()

	for {
		if s.State().Terminal() || ctx.Err() != nil {
			s.cleanup(nil)
			return
		}

		if !s.hasActiveConn() {
			if err := s.connect(ctx); err != nil {
				if ctx.Err() != nil {
					s.cleanup(nil)
					return
				}
				continue
			}
			lastPing = s.now()
		}

		h := s.activeConn()
		takeCtx := ctx
		if h != nil {
			takeCtx = h.ctx
		}

		wait := s.pingInterval() - s.now().Sub(lastPing)

		var p *Packet
		var ok bool
		if wait > 0 {
			p, ok = s.outgoing.Take(takeCtx, wait)
		} else {
			// The ping is already due. Take treats a non-positive timeout
			// as no timeout at all, so poll instead of blocking.
			p, ok = s.outgoing.PopFront()
		}
		if ctx.Err() != nil {
			s.cleanup(nil)
			return
		}
		if !ok {
			if h != nil && h.ctx.Err() != nil {
				// The receive path tore this connection down; reconnect.
				s.onIOError(nil, h.ctx.Err())
				continue
			}
			if err := s.sendPing(); err != nil {
				s.onIOError(nil, err)
				continue
			}
			lastPing = s.now()
			continue
		}
		if p == nil {
			continue
		}

		if err := s.doSend(p); err != nil {
			s.onIOError(p, err)
			continue
		}
		lastPing = s.now()

		if s.closing.Load() {
			s.drainAndExit()
			return
		}
	}
}

// onIOError handles a failed write: if the session is still alive, it
// moves to NotConnected and lets the next loop iteration reconnect;
// the in-flight packet, if any, is finalized as connection loss by
// cleanup itself.
func (s *Session) onIOError(p *Packet, err error) {
	var addr string
	if h := s.activeConn(); h != nil {
		addr = h.addr
	}
	s.connLogger(addr).Debug("producer I/O error", zap.Error(err))
	if !s.State().Terminal() {
		s.setState(state.NotConnected)
	}
	s.cleanup(p)
}

// drainAndExit implements the closing semantics: once a CloseSession
// packet has been sent, no further reconnect is attempted; whatever is
// already queued is flushed best-effort before the loop exits.
func (s *Session) drainAndExit() {
	for {
		p, ok := s.outgoing.PopFront()
		if !ok {
			break
		}
		if p == nil {
			continue
		}
		if err := s.doSend(p); err != nil {
			s.conLossPacket(p)
			break
		}
	}
	s.cleanup(nil)
}

// doSend writes p's precomputed wire form to the socket. A non-Ping,
// non-Auth request enters the pending-reply queue before the bytes
// reach the socket, preserving the invariant that replies are matched
// in send order.
func (s *Session) doSend(p *Packet) error {
	if p.Header != nil && OpCode(p.Header.Type) == OpCloseSession {
		s.closing.Store(true)
	}
	if p.Header != nil {
		op := OpCode(p.Header.Type)
		if op != OpPing && op != OpAuth {
			s.pending.Push(p)
		}
	}

	h := s.activeConn()
	if h == nil {
		return errNoActiveConnection
	}

	if _, err := h.conn.Write(p.Wire); err != nil {
		return err
	}
	s.sentCount++

	if p.Header == nil {
		// This was the connect request: progress has been made, so the
		// full-cycle jitter escalation resets.
		s.lastConnectIndex = s.pendingConnectIndex
		s.cycleBackoff.Reset()
	}
	return nil
}

func (s *Session) sendPing() error {
	p, err := newPacket(&proto.RequestHeader{Xid: proto.XidPing, Type: int32(OpPing)}, nil, nil)
	if err != nil {
		return err
	}
	return s.doSend(p)
}

// pingInterval derives the heartbeat period from the negotiated
// timeout (falling back to the requested timeout pre-handshake):
// typically somewhere between timeout/3 and timeout/2.
func (s *Session) pingInterval() time.Duration {
	t := s.negotiatedTimeout.Load()
	if t <= 0 {
		t = s.requestedTimeout
	}
	if t <= 0 {
		return time.Second
	}
	return time.Duration(t) * time.Millisecond / 2
}

// connect is the connection bring-up algorithm: jittered sleep, a
// full-cycle backoff once every server has been tried without
// progress, round-robin address selection, dial, and handshake priming.
func (s *Session) connect(ctx context.Context) error {
	if !s.firstAttempt {
		time.Sleep(s.jitter())
	}
	s.firstAttempt = false

	if s.nextAddr == s.lastConnectIndex {
		select {
		case <-time.After(s.cycleBackoff.Next()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	addr := s.servers[s.nextAddr]
	s.pendingConnectIndex = s.nextAddr
	s.nextAddr = (s.nextAddr + 1) % len(s.servers)

	s.setState(state.Connecting)
	s.cleanup(nil)

	dialCtx, cancel := context.WithTimeout(ctx, s.dialTimeout)
	defer cancel()
	conn, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", addr)
	if err != nil {
		s.setState(state.NotConnected)
		s.connLogger(addr).Debug("connect attempt failed", zap.Error(err))
		return err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
		_ = tc.SetLinger(0)
	}

	connCtx, connCancel := context.WithCancel(ctx)
	h := &connHandle{conn: conn, addr: addr, ctx: connCtx, cancel: connCancel, done: make(chan struct{})}

	s.connMu.Lock()
	s.current = h
	s.connMu.Unlock()

	s.wg.Add(1)
	go s.receiveLoop(h)

	if err := s.primeConnection(ctx); err != nil {
		s.setState(state.NotConnected)
		s.connLogger(addr).Debug("connect attempt failed", zap.Error(err))
		// A half-primed connection is still live in s.current with its
		// receive goroutine running; tear it down so the next iteration
		// dials fresh instead of mistaking this for an active connection.
		s.cleanup(nil)
		return err
	}
	return nil
}

// primeConnection enqueues the handshake packets for a freshly dialed
// connection: the ConnectRequest always, one Auth packet per
// configured credential, and a SetWatches replay when auto-reset is
// enabled and any watch survived the previous connection.
func (s *Session) primeConnection(ctx context.Context) error {
	connReq := &proto.ConnectRequest{
		ProtocolVersion: proto.ProtocolVersion,
		LastZxidSeen:    s.lastZxid,
		Timeout:         s.requestedTimeout,
		SessionID:       s.sessionID,
		Passwd:          s.sessionPasswd,
	}
	p, err := newPacket(nil, connReq, nil)
	if err != nil {
		return err
	}
	s.outgoing.Push(p)

	creds, err := s.authProvider.Credentials(ctx)
	if err != nil {
		return err
	}
	for _, c := range creds {
		ap, err := newPacket(
			&proto.RequestHeader{Xid: proto.XidAuth, Type: int32(OpAuth)},
			&proto.AuthPacket{Scheme: c.Scheme, Auth: c.Auth},
			nil,
		)
		if err != nil {
			return err
		}
		s.outgoing.Push(ap)
	}

	if s.autoReset {
		data, exist, child := s.registry.WatchedPaths()
		if len(data)+len(exist)+len(child) > 0 {
			sw := &proto.SetWatches{
				RelativeZxid: s.lastZxid,
				DataWatches:  data,
				ExistWatches: exist,
				ChildWatches: child,
			}
			swp, err := newPacket(
				&proto.RequestHeader{Xid: proto.XidSetWatches, Type: int32(OpSetWatches)},
				sw,
				&proto.Empty{},
			)
			if err != nil {
				return err
			}
			s.outgoing.Push(swp)
		}
	}

	return nil
}
