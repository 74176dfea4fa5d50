// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zkit-io/ztree/state"
)

func TestDataWatchFiresOnceAndIsConsumed(t *testing.T) {
	r := NewRegistry()
	var got []state.WatchedEvent
	r.AddDataWatch("/foo", state.ListenerFunc(func(e state.WatchedEvent) {
		got = append(got, e)
	}))

	ev := state.WatchedEvent{State: state.Connected, Type: state.EventNodeDataChanged, Path: "/foo"}
	listeners := r.Materialize(ev)
	assert.Len(t, listeners, 1)

	// Second fire on the same path finds nothing: the watch was one-shot.
	listeners2 := r.Materialize(ev)
	assert.Empty(t, listeners2)
}

func TestExistWatchSurvivesIntoDataChanged(t *testing.T) {
	r := NewRegistry()
	fired := 0
	r.AddExistWatch("/bar", state.ListenerFunc(func(state.WatchedEvent) { fired++ }))

	listeners := r.Materialize(state.WatchedEvent{Type: state.EventNodeDataChanged, Path: "/bar"})
	assert.Len(t, listeners, 1)
}

func TestChildWatchIndependentOfDataWatch(t *testing.T) {
	r := NewRegistry()
	r.AddDataWatch("/x", state.ListenerFunc(func(state.WatchedEvent) {}))
	r.AddChildWatch("/x", state.ListenerFunc(func(state.WatchedEvent) {}))

	children := r.Materialize(state.WatchedEvent{Type: state.EventNodeChildrenChanged, Path: "/x"})
	assert.Len(t, children, 1)

	// data watch is still armed.
	data := r.Materialize(state.WatchedEvent{Type: state.EventNodeDataChanged, Path: "/x"})
	assert.Len(t, data, 1)
}

func TestSessionListenersReceiveSessionEventsOnly(t *testing.T) {
	r := NewRegistry()
	var got []state.WatchedEvent
	cancel := r.AddSessionListener(state.ListenerFunc(func(e state.WatchedEvent) {
		got = append(got, e)
	}))

	listeners := r.Materialize(state.WatchedEvent{State: state.Connected, Type: state.EventNone})
	assert.Len(t, listeners, 1)

	// A path event does not reach the session listener.
	listeners = r.Materialize(state.WatchedEvent{State: state.Connected, Type: state.EventNodeDataChanged, Path: "/foo"})
	assert.Empty(t, listeners)

	cancel()
	listeners = r.Materialize(state.WatchedEvent{State: state.NotConnected, Type: state.EventNone})
	assert.Empty(t, listeners)
}

func TestMaterializeUnknownPathReturnsEmpty(t *testing.T) {
	r := NewRegistry()
	listeners := r.Materialize(state.WatchedEvent{Type: state.EventNodeDataChanged, Path: "/never-watched"})
	assert.Empty(t, listeners)
}
