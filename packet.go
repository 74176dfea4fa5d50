// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package ztree

import (
	"sync"

	"github.com/zkit-io/ztree/proto"
)

// OpCode identifies a request's operation. The engine only branches on
// the reserved values below; every other value is opaque payload the
// engine forwards untouched.
type OpCode int32

const (
	OpNotification OpCode = -1 // reply-only: server push, never a request
	OpPing         OpCode = 11
	OpCloseSession OpCode = -11
	OpAuth         OpCode = 100
	OpSetWatches   OpCode = 101
)

// WatchRegistration is invoked during packet finalization with the
// server's reply code, so it can decide whether and how to record a
// watcher in the registry.
type WatchRegistration func(code ErrCode)

// Packet is one in-flight request/response unit.
type Packet struct {
	Header       *proto.RequestHeader
	ReplyHeader  *proto.ReplyHeader
	RequestBody  proto.Marshaler
	ResponseBody proto.Unmarshaler

	// Wire is the precomputed length-prefixed on-wire form, fixed at
	// construction and never recomputed.
	Wire []byte

	ClientPath string
	ServerPath string

	WatchRegistration WatchRegistration

	mu       sync.Mutex
	finished bool
	done     chan struct{}
	err      error
}

func newPacket(header *proto.RequestHeader, body proto.Marshaler, resp proto.Unmarshaler) (*Packet, error) {
	p := &Packet{
		Header:       header,
		RequestBody:  body,
		ResponseBody: resp,
		done:         make(chan struct{}),
	}

	w := proto.NewWriter(64)
	if header != nil {
		if err := header.MarshalZK(w); err != nil {
			return nil, err
		}
	}
	if body != nil {
		if err := body.MarshalZK(w); err != nil {
			return nil, err
		}
	}
	p.Wire = proto.EncodeFrame(w.Bytes())
	return p, nil
}

// Xid returns the packet's xid, or 0 for the headerless connect packet.
func (p *Packet) Xid() int32 {
	if p.Header == nil {
		return 0
	}
	return p.Header.Xid
}

// Done returns a channel that closes once Finished is true.
func (p *Packet) Done() <-chan struct{} {
	return p.done
}

// Finished reports whether the packet has reached a terminal state.
// Once true no field on Packet mutates again.
func (p *Packet) Finished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finished
}

// Err returns the finalized error, valid only after Done() is closed.
func (p *Packet) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// finish is the sole place Packet transitions to finished; it is safe
// to call more than once, only the first call has effect. Either the
// receive path or the reconnect-loss path may be the one to call it.
func (p *Packet) finish(err error) {
	p.mu.Lock()
	if p.finished {
		p.mu.Unlock()
		return
	}
	p.finished = true
	p.err = err
	p.mu.Unlock()
	close(p.done)
}
