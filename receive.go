// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package ztree

import (
	"fmt"
	"io"

	"github.com/zkit-io/ztree/proto"
	"github.com/zkit-io/ztree/state"
	"go.uber.org/zap"
)

// receiveLoop is the receive path: one goroutine per live connection,
// blocking in reads rather than driving an async reactor. A length
// prefix is read first, then exactly that many payload bytes, and the
// first payload on a connection is always the connect handshake
// response.
func (s *Session) receiveLoop(h *connHandle) {
	defer s.wg.Done()
	defer close(h.done)

	initialized := false
	lenBuf := make([]byte, 4)

	for {
		if _, err := io.ReadFull(h.conn, lenBuf); err != nil {
			s.onReceiveError(h, err)
			return
		}

		n, err := proto.DecodeLengthPrefix(lenBuf, s.maxPacketLen)
		if err != nil {
			s.onReceiveError(h, err)
			return
		}

		payload := make([]byte, n)
		if n > 0 {
			// io.ReadFull loops internally across however many reads the
			// kernel hands back, including a pathological one byte at a
			// time.
			if _, err := io.ReadFull(h.conn, payload); err != nil {
				s.onReceiveError(h, err)
				return
			}
		}

		if !initialized {
			initialized = true
			if err := s.readConnectResult(payload); err != nil {
				s.onReceiveError(h, err)
				return
			}
			continue
		}

		if err := s.readResponse(h, payload); err != nil {
			s.onReceiveError(h, err)
			return
		}
	}
}

// onReceiveError covers every read/protocol failure: log, mark the
// session NotConnected, and cancel the connection's context so the
// producer's blocked outgoing-queue take wakes and reconnects. It does
// not itself drain queues or close the socket; cleanup (run from the
// producer) owns that.
func (s *Session) onReceiveError(h *connHandle, err error) {
	s.connLogger(h.addr).Debug("receive path error", zap.Error(err))
	if !s.State().Terminal() {
		s.setState(state.NotConnected)
	}
	h.cancel()
}

// readConnectResult handles the first payload on a new connection: the
// server's handshake response, which either assigns a session identity
// or, via a non-positive timeout, signals the session has expired.
func (s *Session) readConnectResult(payload []byte) error {
	var resp proto.ConnectResponse
	if err := proto.Unmarshal(payload, &resp); err != nil {
		return err
	}

	s.negotiatedTimeout.Store(resp.Timeout)
	if resp.Timeout <= 0 {
		s.setState(state.Closed)
		return ErrSessionExpiredErr
	}

	s.sessionID = resp.SessionID
	s.sessionPasswd = resp.Passwd
	s.setState(state.Connected)
	return nil
}

// readResponse decodes a reply header and dispatches on its xid: a
// ping reply is dropped, an auth reply may trip AUTH_FAILED, a
// notification is turned into a watch event, and anything else is
// routed to the matching pending request.
func (s *Session) readResponse(h *connHandle, payload []byte) error {
	r := proto.NewReader(payload)
	var rh proto.ReplyHeader
	if err := rh.UnmarshalZK(r); err != nil {
		return err
	}
	s.recvCount++

	switch rh.Xid {
	case proto.XidPing:
		return nil

	case proto.XidAuth:
		// Auth rejection arrives as a reply on the reserved auth xid
		// rather than through the notification channel, but it still
		// drives the AUTH_FAILED transition. Cancel the connection
		// immediately rather than leaving the producer to discover it
		// only at the next idle ping.
		if ErrCode(rh.Err) != ErrOK {
			s.setState(state.AuthFailed)
			h.cancel()
		}
		return nil

	case proto.XidNotification:
		var we proto.WatcherEvent
		if err := we.UnmarshalZK(r); err != nil {
			return err
		}
		s.queueEvent(state.WatchedEvent{
			State: s.State(),
			Type:  state.EventType(we.Type),
			Path:  s.chroot.Strip(we.Path),
		})
		return nil

	default:
		return s.routeReply(rh, r)
	}
}

func (s *Session) routeReply(rh proto.ReplyHeader, r *proto.Reader) error {
	p, ok := s.pending.PopFront()
	if !ok {
		return fmt.Errorf("ztree: reply xid %d with nothing pending", rh.Xid)
	}
	if p.Xid() != rh.Xid {
		// Ordering invariant violated: finalize what we had in hand
		// with connection loss and surface an error so the caller
		// tears down and reconnects.
		s.conLossPacket(p)
		return fmt.Errorf("ztree: reply xid %d does not match pending xid %d", rh.Xid, p.Xid())
	}

	p.ReplyHeader = &proto.ReplyHeader{Xid: rh.Xid, Zxid: rh.Zxid, Err: rh.Err}

	if ErrCode(rh.Err) == ErrOK && p.ResponseBody != nil {
		if err := p.ResponseBody.UnmarshalZK(r); err != nil {
			s.finishPacket(p, err)
			return err
		}
	}

	if rh.Zxid > s.lastZxid {
		s.lastZxid = rh.Zxid
	}

	s.finishPacket(p, errFor(ErrCode(rh.Err)))
	return nil
}
