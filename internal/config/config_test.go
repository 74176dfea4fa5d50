// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"testing"

	"github.com/foxcpp/go-mockdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveServersPassesThroughAddr(t *testing.T) {
	assert := assert.New(t)

	out, err := ResolveServers(context.Background(), &mockdns.Resolver{}, []EnsembleMember{
		{Addr: "10.0.0.1:2181"},
		{Addr: "10.0.0.2:2181"},
	})
	require.NoError(t, err)
	assert.Equal([]string{"10.0.0.1:2181", "10.0.0.2:2181"}, out)
}

func TestResolveServersExpandsHostnameViaResolver(t *testing.T) {
	assert := assert.New(t)

	resolver := &mockdns.Resolver{
		Zones: map[string]mockdns.Zone{
			"ensemble.zk.example.org.": {
				A: []string{"10.1.1.1", "10.1.1.2"},
			},
		},
	}

	out, err := ResolveServers(context.Background(), resolver, []EnsembleMember{
		{Host: "ensemble.zk.example.org", Port: 2181},
	})
	require.NoError(t, err)
	assert.ElementsMatch([]string{"10.1.1.1:2181", "10.1.1.2:2181"}, out)
}

func TestResolveServersRejectsIncompleteMember(t *testing.T) {
	_, err := ResolveServers(context.Background(), &mockdns.Resolver{}, []EnsembleMember{
		{Host: "ensemble.zk.example.org"},
	})
	assert.Error(t, err)
}

func TestResolveServersRejectsEmptyResult(t *testing.T) {
	_, err := ResolveServers(context.Background(), &mockdns.Resolver{}, nil)
	assert.Error(t, err)
}
