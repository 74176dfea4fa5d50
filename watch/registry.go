// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package watch implements a default watcher registry: a materialize
// call that resolves a fired event to the listeners interested in it,
// plus registration of one-shot path watches and standing session
// listeners.
//
// Each path bucket fans out through a github.com/xmidt-org/eventor
// Eventor, the same per-listener dispatch primitive that holds the
// registry's standing session-listener set.
package watch

import (
	"sync"

	"github.com/xmidt-org/eventor"
	"github.com/zkit-io/ztree/state"
)

// Kind is the taxonomy of path watches implied by SetWatches' three
// path sets.
type Kind int

const (
	KindData Kind = iota
	KindExist
	KindChild
)

// CancelFunc removes a previously installed watcher. It is idempotent.
type CancelFunc func()

type bucket struct {
	data  eventor.Eventor[state.Listener]
	exist eventor.Eventor[state.Listener]
	child eventor.Eventor[state.Listener]
}

func (b *bucket) empty() bool {
	empty := true
	b.data.Visit(func(state.Listener) { empty = false })
	if !empty {
		return false
	}
	b.exist.Visit(func(state.Listener) { empty = false })
	if !empty {
		return false
	}
	b.child.Visit(func(state.Listener) { empty = false })
	return empty
}

// Registry is the default watch.Registry: one-shot path watches plus a
// standing set of session-state listeners.
type Registry struct {
	mu            sync.Mutex
	paths         map[string]*bucket
	sessionListen eventor.Eventor[state.Listener]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{paths: make(map[string]*bucket)}
}

func (r *Registry) bucketFor(path string) *bucket {
	b, ok := r.paths[path]
	if !ok {
		b = &bucket{}
		r.paths[path] = b
	}
	return b
}

// AddSessionListener registers l to receive every session-state
// WatchedEvent (Type == EventNone) regardless of path.
func (r *Registry) AddSessionListener(l state.Listener) CancelFunc {
	return CancelFunc(r.sessionListen.Add(l))
}

// AddDataWatch installs a one-shot data watch on path.
func (r *Registry) AddDataWatch(path string, l state.Listener) CancelFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	return CancelFunc(r.bucketFor(path).data.Add(l))
}

// AddExistWatch installs a one-shot exists watch on path. This is the
// watch kind still installed even when the triggering request returned
// NoNode.
func (r *Registry) AddExistWatch(path string, l state.Listener) CancelFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	return CancelFunc(r.bucketFor(path).exist.Add(l))
}

// AddChildWatch installs a one-shot child watch on path.
func (r *Registry) AddChildWatch(path string, l state.Listener) CancelFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	return CancelFunc(r.bucketFor(path).child.Add(l))
}

// WatchedPaths reports the paths currently carrying at least one
// registered watch of each kind, for replay via SetWatches on reconnect.
func (r *Registry) WatchedPaths() (data, exist, child []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for path, b := range r.paths {
		hasData, hasExist, hasChild := false, false, false
		b.data.Visit(func(state.Listener) { hasData = true })
		b.exist.Visit(func(state.Listener) { hasExist = true })
		b.child.Visit(func(state.Listener) { hasChild = true })
		if hasData {
			data = append(data, path)
		}
		if hasExist {
			exist = append(exist, path)
		}
		if hasChild {
			child = append(child, path)
		}
	}
	return data, exist, child
}

// Materialize resolves, at the moment it is called, the exact set of
// listeners interested in ev and consumes any one-shot path watches
// that fired.
// Session-state events (ev.IsSessionEvent()) are delivered to the
// standing session listener set instead of any path bucket.
func (r *Registry) Materialize(ev state.WatchedEvent) []state.Listener {
	if ev.IsSessionEvent() {
		var out []state.Listener
		r.sessionListen.Visit(func(l state.Listener) { out = append(out, l) })
		return out
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.paths[ev.Path]
	if !ok {
		return nil
	}

	var out []state.Listener
	visit := func(e *eventor.Eventor[state.Listener]) {
		e.Visit(func(l state.Listener) { out = append(out, l) })
		*e = eventor.Eventor[state.Listener]{}
	}

	switch ev.Type {
	case state.EventNodeCreated:
		visit(&b.exist)
	case state.EventNodeDeleted, state.EventNodeDataChanged:
		visit(&b.exist)
		visit(&b.data)
	case state.EventNodeChildrenChanged:
		visit(&b.child)
	}

	if b.empty() {
		delete(r.paths, ev.Path)
	}

	return out
}
