// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package ztree_test

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zkit-io/ztree"
	"github.com/zkit-io/ztree/proto"
	"github.com/zkit-io/ztree/state"
	"github.com/zkit-io/ztree/watch"
)

func acceptOne(t *testing.T, ln net.Listener) <-chan net.Conn {
	t.Helper()
	ch := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			ch <- conn
		}
	}()
	return ch
}

func readFrame(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	var lenBuf [4]byte
	_, err := io.ReadFull(conn, lenBuf[:])
	require.NoError(t, err)
	n := binary.BigEndian.Uint32(lenBuf[:])
	payload := make([]byte, n)
	if n > 0 {
		_, err = io.ReadFull(conn, payload)
		require.NoError(t, err)
	}
	return payload
}

func writeFrame(t *testing.T, conn net.Conn, payload []byte) {
	t.Helper()
	_, err := conn.Write(proto.EncodeFrame(payload))
	require.NoError(t, err)
}

// eventSink is a state.Listener that records every event it sees and
// lets a test block until a particular session state shows up.
type eventSink struct {
	mu     sync.Mutex
	events []state.WatchedEvent
	notify chan struct{}
}

func newEventSink() *eventSink {
	return &eventSink{notify: make(chan struct{}, 64)}
}

func (e *eventSink) OnWatchedEvent(ev state.WatchedEvent) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

func (e *eventSink) snapshot() []state.WatchedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]state.WatchedEvent(nil), e.events...)
}

func (e *eventSink) waitForState(t *testing.T, want state.SessionState, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		for _, ev := range e.snapshot() {
			if ev.IsSessionEvent() && ev.State == want {
				return
			}
		}
		select {
		case <-e.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for session state %s", want)
		}
	}
}

func (e *eventSink) waitForAny(t *testing.T, timeout time.Duration) state.WatchedEvent {
	t.Helper()
	for {
		if evs := e.snapshot(); len(evs) > 0 {
			return evs[len(evs)-1]
		}
		select {
		case <-e.notify:
		case <-time.After(timeout):
			t.Fatal("timed out waiting for any event")
		}
	}
}

// TestHappyHandshake verifies that a successful ConnectResponse moves
// the session to CONNECTED and stores the server-assigned identity.
func TestHappyHandshake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	accepted := acceptOne(t, ln)

	s, err := ztree.New(ztree.Servers(ln.Addr().String()), ztree.SessionTimeout(30*time.Second))
	require.NoError(t, err)
	sink := newEventSink()
	s.Subscribe(sink)
	s.Start()
	defer s.Stop()

	conn := <-accepted
	defer conn.Close()

	payload := readFrame(t, conn)
	var req proto.ConnectRequest
	require.NoError(t, proto.Unmarshal(payload, &req))
	assert.EqualValues(t, 0, req.SessionID)
	assert.EqualValues(t, 0, req.LastZxidSeen)
	assert.EqualValues(t, 30000, req.Timeout)

	out, err := proto.Marshal(&proto.ConnectResponse{
		ProtocolVersion: 0,
		Timeout:         20000,
		SessionID:       0xABCD,
		Passwd:          []byte{0x01, 0x02},
	})
	require.NoError(t, err)
	writeFrame(t, conn, out)

	sink.waitForState(t, state.Connected, 2*time.Second)
	assert.Equal(t, state.Connected, s.State())
	assert.EqualValues(t, 0xABCD, s.SessionID())
}

// TestSessionExpiredAtHandshake verifies that a zero negotiated
// timeout closes the session and immediately fails any further packet.
func TestSessionExpiredAtHandshake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	accepted := acceptOne(t, ln)

	s, err := ztree.New(ztree.Servers(ln.Addr().String()), ztree.SessionTimeout(30*time.Second))
	require.NoError(t, err)
	sink := newEventSink()
	s.Subscribe(sink)
	s.Start()
	defer s.Stop()

	conn := <-accepted
	defer conn.Close()
	_ = readFrame(t, conn)

	out, err := proto.Marshal(&proto.ConnectResponse{Timeout: 0})
	require.NoError(t, err)
	writeFrame(t, conn, out)

	sink.waitForState(t, state.Closed, 2*time.Second)
	assert.Equal(t, state.Closed, s.State())

	p, err := s.QueuePacket(ztree.OpCode(42), nil, nil, "/x", nil)
	require.NoError(t, err)
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("packet queued after CLOSED never finished")
	}
	assert.ErrorIs(t, p.Err(), ztree.ErrSessionExpiredErr)
}

// TestFIFOOrdering verifies that requests go out with xids 1, 2, 3 in
// queue order and that replies arriving in send order finish every
// packet without error.
func TestFIFOOrdering(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	accepted := acceptOne(t, ln)

	s, err := ztree.New(ztree.Servers(ln.Addr().String()), ztree.SessionTimeout(30*time.Second))
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	conn := <-accepted
	defer conn.Close()
	_ = readFrame(t, conn)
	out, err := proto.Marshal(&proto.ConnectResponse{Timeout: 20000, SessionID: 1, Passwd: []byte{9}})
	require.NoError(t, err)
	writeFrame(t, conn, out)

	var packets []*ztree.Packet
	for i := 0; i < 3; i++ {
		p, err := s.QueuePacket(ztree.OpCode(1), &proto.Empty{}, &proto.Empty{}, "/n", nil)
		require.NoError(t, err)
		packets = append(packets, p)
	}

	for i, zxid := range []int64{100, 101, 105} {
		payload := readFrame(t, conn)
		var rhIn proto.RequestHeader
		require.NoError(t, proto.Unmarshal(payload, &rhIn))
		assert.EqualValues(t, i+1, rhIn.Xid)

		reply, err := proto.Marshal(&proto.ReplyHeader{Xid: rhIn.Xid, Zxid: zxid, Err: 0})
		require.NoError(t, err)
		writeFrame(t, conn, reply)
	}

	for _, p := range packets {
		select {
		case <-p.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("packet never finished")
		}
		assert.NoError(t, p.Err())
	}
}

// TestNotificationAppliesChroot verifies that a server notification
// under the configured chroot is stripped before reaching the watcher.
func TestNotificationAppliesChroot(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	accepted := acceptOne(t, ln)

	reg := watch.NewRegistry()
	watchSink := newEventSink()
	reg.AddDataWatch("/foo", watchSink)

	s, err := ztree.New(
		ztree.Servers(ln.Addr().String()),
		ztree.SessionTimeout(30*time.Second),
		ztree.WithChroot("/chroot"),
		ztree.WithRegistry(reg),
	)
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	conn := <-accepted
	defer conn.Close()
	_ = readFrame(t, conn)
	out, err := proto.Marshal(&proto.ConnectResponse{Timeout: 20000, SessionID: 1, Passwd: []byte{9}})
	require.NoError(t, err)
	writeFrame(t, conn, out)

	w := proto.NewWriter(64)
	require.NoError(t, (&proto.ReplyHeader{Xid: proto.XidNotification}).MarshalZK(w))
	require.NoError(t, (&proto.WatcherEvent{
		Type:  int32(state.EventNodeDataChanged),
		State: int32(state.Connected),
		Path:  "/chroot/foo",
	}).MarshalZK(w))
	writeFrame(t, conn, w.Bytes())

	ev := watchSink.waitForAny(t, 2*time.Second)
	assert.Equal(t, "/foo", ev.Path)
	assert.Equal(t, state.EventNodeDataChanged, ev.Type)
}

// TestQueuePacketWhileClosingNeverReachesSocket verifies that once a
// close has been requested, a newly queued packet is finalized with
// connection loss without being sent.
func TestQueuePacketWhileClosingNeverReachesSocket(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	accepted := acceptOne(t, ln)

	s, err := ztree.New(ztree.Servers(ln.Addr().String()), ztree.SessionTimeout(30*time.Second))
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	conn := <-accepted
	defer conn.Close()
	_ = readFrame(t, conn)
	out, err := proto.Marshal(&proto.ConnectResponse{Timeout: 20000, SessionID: 1, Passwd: []byte{9}})
	require.NoError(t, err)
	writeFrame(t, conn, out)

	closeP, err := s.QueuePacket(ztree.OpCloseSession, nil, nil, "", nil)
	require.NoError(t, err)

	_ = readFrame(t, conn) // the CloseSession packet itself reaching the wire

	after, err := s.QueuePacket(ztree.OpCode(1), nil, nil, "/late", nil)
	require.NoError(t, err)

	select {
	case <-after.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("packet queued after closing never finished")
	}
	assert.ErrorIs(t, after.Err(), ztree.ErrConnectionLossErr)
	_ = closeP
}
