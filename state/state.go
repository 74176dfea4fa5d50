// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package state defines the session state machine and the watch-event
// vocabulary shared between the producer, the receive path and the event
// consumer.
package state

import "fmt"

// SessionState is the single authoritative state of a Session. Transitions
// are applied by ztree's Session; CLOSED and AUTHFAILED are terminal and
// no transition leaves them.
type SessionState int32

const (
	NotConnected SessionState = iota
	Connecting
	Connected
	Closed
	AuthFailed
)

func (s SessionState) String() string {
	switch s {
	case NotConnected:
		return "NotConnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Closed:
		return "Closed"
	case AuthFailed:
		return "AuthFailed"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

// Terminal reports whether no further transition is permitted out of s.
func (s SessionState) Terminal() bool {
	return s == Closed || s == AuthFailed
}

// EventType classifies a WatchedEvent. None marks a session-state-change
// notification rather than a server watch firing.
type EventType int32

const (
	EventNone EventType = iota
	EventNodeCreated
	EventNodeDeleted
	EventNodeDataChanged
	EventNodeChildrenChanged
)

func (t EventType) String() string {
	switch t {
	case EventNone:
		return "None"
	case EventNodeCreated:
		return "NodeCreated"
	case EventNodeDeleted:
		return "NodeDeleted"
	case EventNodeDataChanged:
		return "NodeDataChanged"
	case EventNodeChildrenChanged:
		return "NodeChildrenChanged"
	default:
		return fmt.Sprintf("EventType(%d)", int32(t))
	}
}

// WatchedEvent is delivered to the event consumer, either by the producer
// (for session-state changes, Path empty) or by the receive path (for
// server-side watch notifications).
type WatchedEvent struct {
	State SessionState
	Type  EventType
	Path  string
}

// IsSessionEvent reports whether this event represents a session-state
// change rather than a path watch firing.
func (e WatchedEvent) IsSessionEvent() bool {
	return e.Type == EventNone
}

func (e WatchedEvent) String() string {
	if e.IsSessionEvent() {
		return fmt.Sprintf("WatchedEvent{state=%s}", e.State)
	}
	return fmt.Sprintf("WatchedEvent{state=%s type=%s path=%q}", e.State, e.Type, e.Path)
}

// Listener is the interface implemented by types that want to receive
// WatchedEvent notifications from the event consumer.
type Listener interface {
	OnWatchedEvent(WatchedEvent)
}

// ListenerFunc is a function type that implements Listener. It adapts a
// plain function to the Listener interface.
type ListenerFunc func(WatchedEvent)

func (f ListenerFunc) OnWatchedEvent(e WatchedEvent) {
	f(e)
}
