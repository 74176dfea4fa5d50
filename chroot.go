// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package ztree

import "strings"

// Chroot is a fixed path prefix virtually prepended to outgoing client
// paths and stripped from paths the server reports back.
type Chroot string

// Apply prepends the chroot to a client path to produce the server
// path. An empty chroot is a no-op.
func (c Chroot) Apply(clientPath string) string {
	if c == "" {
		return clientPath
	}
	return string(c) + clientPath
}

// Strip removes the chroot prefix from a server-reported path. An
// exact match strips to "/"; otherwise the prefix is removed from the
// front. A path outside the chroot is returned unchanged.
func (c Chroot) Strip(serverPath string) string {
	if c == "" {
		return serverPath
	}
	prefix := string(c)
	if serverPath == prefix {
		return "/"
	}
	if strings.HasPrefix(serverPath, prefix+"/") {
		return serverPath[len(prefix):]
	}
	return serverPath
}
