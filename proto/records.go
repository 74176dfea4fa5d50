// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package proto

// ProtocolVersion is the only protocol version this client speaks.
const ProtocolVersion int32 = 0

// Reserved xids, never allocated to an ordinary request.
const (
	XidNotification int32 = -1
	XidPing         int32 = -2
	XidAuth         int32 = -4
	XidSetWatches   int32 = -8
)

// RequestHeader precedes every request body except the initial connect
// request, which has none.
type RequestHeader struct {
	Xid  int32
	Type int32
}

func (h *RequestHeader) MarshalZK(w *Writer) error {
	w.WriteInt32(h.Xid)
	w.WriteInt32(h.Type)
	return nil
}

func (h *RequestHeader) UnmarshalZK(r *Reader) error {
	var err error
	if h.Xid, err = r.ReadInt32(); err != nil {
		return err
	}
	h.Type, err = r.ReadInt32()
	return err
}

// ReplyHeader precedes every response body except fire-and-forget ones.
type ReplyHeader struct {
	Xid  int32
	Zxid int64
	Err  int32
}

func (h *ReplyHeader) MarshalZK(w *Writer) error {
	w.WriteInt32(h.Xid)
	w.WriteInt64(h.Zxid)
	w.WriteInt32(h.Err)
	return nil
}

func (h *ReplyHeader) UnmarshalZK(r *Reader) error {
	var err error
	if h.Xid, err = r.ReadInt32(); err != nil {
		return err
	}
	if h.Zxid, err = r.ReadInt64(); err != nil {
		return err
	}
	h.Err, err = r.ReadInt32()
	return err
}

// ConnectRequest is the first packet sent on a socket, carrying no
// RequestHeader.
type ConnectRequest struct {
	ProtocolVersion int32
	LastZxidSeen    int64
	Timeout         int32
	SessionID       int64
	Passwd          []byte
}

func (c *ConnectRequest) MarshalZK(w *Writer) error {
	w.WriteInt32(c.ProtocolVersion)
	w.WriteInt64(c.LastZxidSeen)
	w.WriteInt32(c.Timeout)
	w.WriteInt64(c.SessionID)
	w.WriteBuffer(c.Passwd)
	return nil
}

func (c *ConnectRequest) UnmarshalZK(r *Reader) error {
	var err error
	if c.ProtocolVersion, err = r.ReadInt32(); err != nil {
		return err
	}
	if c.LastZxidSeen, err = r.ReadInt64(); err != nil {
		return err
	}
	if c.Timeout, err = r.ReadInt32(); err != nil {
		return err
	}
	if c.SessionID, err = r.ReadInt64(); err != nil {
		return err
	}
	c.Passwd, err = r.ReadBuffer()
	return err
}

// ConnectResponse answers a ConnectRequest.
type ConnectResponse struct {
	ProtocolVersion int32
	Timeout         int32
	SessionID       int64
	Passwd          []byte
}

func (c *ConnectResponse) MarshalZK(w *Writer) error {
	w.WriteInt32(c.ProtocolVersion)
	w.WriteInt32(c.Timeout)
	w.WriteInt64(c.SessionID)
	w.WriteBuffer(c.Passwd)
	return nil
}

func (c *ConnectResponse) UnmarshalZK(r *Reader) error {
	var err error
	if c.ProtocolVersion, err = r.ReadInt32(); err != nil {
		return err
	}
	if c.Timeout, err = r.ReadInt32(); err != nil {
		return err
	}
	if c.SessionID, err = r.ReadInt64(); err != nil {
		return err
	}
	c.Passwd, err = r.ReadBuffer()
	return err
}

// AuthPacket carries one auth credential, sent with xid -4.
type AuthPacket struct {
	Type   int32
	Scheme string
	Auth   []byte
}

func (a *AuthPacket) MarshalZK(w *Writer) error {
	w.WriteInt32(a.Type)
	w.WriteString(a.Scheme)
	w.WriteBuffer(a.Auth)
	return nil
}

func (a *AuthPacket) UnmarshalZK(r *Reader) error {
	var err error
	if a.Type, err = r.ReadInt32(); err != nil {
		return err
	}
	if a.Scheme, err = r.ReadString(); err != nil {
		return err
	}
	a.Auth, err = r.ReadBuffer()
	return err
}

// WatcherEvent is the body of a notification reply (xid -1).
type WatcherEvent struct {
	Type  int32
	State int32
	Path  string
}

func (e *WatcherEvent) MarshalZK(w *Writer) error {
	w.WriteInt32(e.Type)
	w.WriteInt32(e.State)
	w.WriteString(e.Path)
	return nil
}

func (e *WatcherEvent) UnmarshalZK(r *Reader) error {
	var err error
	if e.Type, err = r.ReadInt32(); err != nil {
		return err
	}
	if e.State, err = r.ReadInt32(); err != nil {
		return err
	}
	e.Path, err = r.ReadString()
	return err
}

// SetWatches replays previously-registered watches to a new connection,
// sent with xid -8.
type SetWatches struct {
	RelativeZxid int64
	DataWatches  []string
	ExistWatches []string
	ChildWatches []string
}

func (s *SetWatches) MarshalZK(w *Writer) error {
	w.WriteInt64(s.RelativeZxid)
	w.WriteStringVector(s.DataWatches)
	w.WriteStringVector(s.ExistWatches)
	w.WriteStringVector(s.ChildWatches)
	return nil
}

func (s *SetWatches) UnmarshalZK(r *Reader) error {
	var err error
	if s.RelativeZxid, err = r.ReadInt64(); err != nil {
		return err
	}
	if s.DataWatches, err = r.ReadStringVector(); err != nil {
		return err
	}
	if s.ExistWatches, err = r.ReadStringVector(); err != nil {
		return err
	}
	s.ChildWatches, err = r.ReadStringVector()
	return err
}

// Empty marshals and unmarshals to nothing; used as the response body
// of SetWatches, whose reply is just the header, and for operations this
// package does not model the body of (callers supply their own
// Marshaler/Unmarshaler).
type Empty struct{}

func (Empty) MarshalZK(*Writer) error      { return nil }
func (e *Empty) UnmarshalZK(*Reader) error { return nil }
