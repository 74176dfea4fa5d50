// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package ztree

import (
	"github.com/zkit-io/ztree/state"
	"github.com/zkit-io/ztree/watch"
)

// Registry is the watcher-registry collaborator a Session talks to:
// the event consumer asks it to materialize the watchers interested in
// an event, and a Packet's WatchRegistration callback registers new
// ones during finalization. *watch.Registry is the default
// implementation; WithRegistry substitutes any other.
type Registry interface {
	Materialize(state.WatchedEvent) []state.Listener
	AddSessionListener(state.Listener) watch.CancelFunc
	AddDataWatch(path string, l state.Listener) watch.CancelFunc
	AddExistWatch(path string, l state.Listener) watch.CancelFunc
	AddChildWatch(path string, l state.Listener) watch.CancelFunc
	WatchedPaths() (data, exist, child []string)
}
