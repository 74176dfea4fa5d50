// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package proto implements the bit-exact Jute-style binary codec used on
// the wire: big-endian integers, length-prefixed strings and byte arrays,
// length-prefixed vectors, and a [len:u32][payload] outer frame.
package proto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxPacketLen is the default upper bound on a framed payload
// length (4 MiB).
const DefaultMaxPacketLen = 4 * 1024 * 1024

// ErrPacketTooLarge is returned when a length prefix falls outside
// [0, maxLen).
var ErrPacketTooLarge = errors.New("proto: packet length out of range")

// ErrNegativeLength is returned when a string/buffer length prefix is
// negative and does not encode a null value (-1).
var ErrNegativeLength = errors.New("proto: negative length")

// Marshaler is implemented by any record this codec can serialize.
type Marshaler interface {
	MarshalZK(w *Writer) error
}

// Unmarshaler is implemented by any record this codec can deserialize.
type Unmarshaler interface {
	UnmarshalZK(r *Reader) error
}

// Writer accumulates the big-endian Jute encoding of a record into an
// in-memory buffer.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with the given initial capacity hint.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) WriteInt32(v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	w.buf = append(w.buf, b[:]...)
}

// WriteBuffer writes a nilable byte slice as [len int32][bytes]; nil
// encodes as length -1.
func (w *Writer) WriteBuffer(p []byte) {
	if p == nil {
		w.WriteInt32(-1)
		return
	}
	w.WriteInt32(int32(len(p)))
	w.buf = append(w.buf, p...)
}

// WriteString writes a string as [len int32][utf-8 bytes].
func (w *Writer) WriteString(s string) {
	w.WriteInt32(int32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteStringVector writes [count int32][string...].
func (w *Writer) WriteStringVector(v []string) {
	w.WriteInt32(int32(len(v)))
	for _, s := range v {
		w.WriteString(s)
	}
}

// Reader parses the big-endian Jute encoding of a record out of a byte
// slice, tracking a read cursor.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential decoding.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return io.ErrUnexpectedEOF
	}
	return nil
}

func (r *Reader) ReadBool() (bool, error) {
	if err := r.need(1); err != nil {
		return false, err
	}
	v := r.buf[r.pos] != 0
	r.pos++
	return v, nil
}

func (r *Reader) ReadInt32() (int32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := int32(binary.BigEndian.Uint32(r.buf[r.pos:]))
	r.pos += 4
	return v, nil
}

func (r *Reader) ReadInt64() (int64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := int64(binary.BigEndian.Uint64(r.buf[r.pos:]))
	r.pos += 8
	return v, nil
}

// ReadBuffer reads a [len int32][bytes] value; length -1 decodes as nil.
func (r *Reader) ReadBuffer() ([]byte, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return nil, nil
	}
	if n < -1 {
		return nil, ErrNegativeLength
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	v := make([]byte, n)
	copy(v, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return v, nil
}

func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBuffer()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) ReadStringVector() ([]string, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil
	}
	out := make([]string, n)
	for i := range out {
		s, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// Remaining returns the unread tail of the buffer.
func (r *Reader) Remaining() []byte {
	return r.buf[r.pos:]
}

// Marshal encodes m into its raw Jute bytes with no outer length prefix.
func Marshal(m Marshaler) ([]byte, error) {
	w := NewWriter(64)
	if err := m.MarshalZK(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Unmarshal decodes buf into m.
func Unmarshal(buf []byte, m Unmarshaler) error {
	r := NewReader(buf)
	return m.UnmarshalZK(r)
}

// EncodeFrame prefixes payload with its big-endian u32 length, the
// on-wire framing every packet uses.
func EncodeFrame(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out[:4], uint32(len(payload)))
	copy(out[4:], payload)
	return out
}

// DecodeLengthPrefix validates a length prefix read off the wire.
func DecodeLengthPrefix(b []byte, maxLen int) (int, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("proto: length prefix must be 4 bytes, got %d", len(b))
	}
	n := int(binary.BigEndian.Uint32(b))
	if n < 0 || n >= maxLen {
		return 0, ErrPacketTooLarge
	}
	return n, nil
}
