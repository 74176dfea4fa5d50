// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package config loads the ztree-cli configuration document: ensemble
// addresses, session timeouts and auth material, built the way
// cmd/xmidt-agent/config.go builds its own Config, with goschtalt
// layering config files and env/property overrides over a built-in
// default and validating the result with dealancer/validate.
package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/goschtalt/goschtalt"
	_ "github.com/goschtalt/properties-decoder"
	_ "github.com/goschtalt/yaml-decoder"
	_ "github.com/goschtalt/yaml-encoder"
	"github.com/xmidt-org/sallust"
	"gopkg.in/dealancer/validate.v2"
)

const applicationName = "ztree"

// Resolver is the DNS lookup surface an EnsembleMember's Host/Port form
// needs, satisfied by *net.Resolver and by *github.com/foxcpp/go-mockdns.Resolver
// in tests.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// EnsembleMember is one configured server entry. Either Addr names a
// ready-to-dial "host:port", or Host+Port name a hostname resolved at
// load time into one member per returned address.
type EnsembleMember struct {
	Addr string
	Host string
	Port int
}

// JWTAuth configures ztree/auth's JWT credential provider.
type JWTAuth struct {
	Issuer   string        `validate:"empty=false"`
	Subject  string        `validate:"empty=false"`
	Lifetime time.Duration `validate:"empty=false"`
	KeyHex   string        `validate:"empty=false"`
}

// Auth configures the credential presented during connection bring-up.
// At most one of Secret or JWT should be set; Secret wins if both are.
type Auth struct {
	Scheme string
	Secret string
	JWT    *JWTAuth
}

// Session configures the ztree.Session this CLI manages.
type Session struct {
	Ensemble       []EnsembleMember `validate:"empty=false"`
	SessionTimeout time.Duration    `validate:"empty=false"`
	DialTimeout    time.Duration
	MaxPacketLen   int
	Chroot         string
	AutoReset      bool
	Auth           Auth
}

// Config is the top-level ztree-cli configuration document.
type Config struct {
	Session Session
	Logger  sallust.Config
}

var defaultConfig = Config{
	Session: Session{
		SessionTimeout: 30 * time.Second,
		MaxPacketLen:   4 * 1024 * 1024,
		AutoReset:      true,
	},
	Logger: sallust.Config{
		Level:    "INFO",
		Encoding: "json",
	},
}

// Load layers config files/dirs found via goschtalt's standard layout
// for applicationName over the built-in default, then validates the
// merged result.
func Load(files ...string) (*Config, error) {
	gs, err := goschtalt.New(
		goschtalt.StdCfgLayout(applicationName, files...),
		goschtalt.ConfigIs("two_words"),
		goschtalt.DefaultUnmarshalOptions(
			goschtalt.WithValidator(goschtalt.ValidatorFunc(validate.Validate)),
		),
		goschtalt.AddValue("built-in", goschtalt.Root, defaultConfig, goschtalt.AsDefault()),
	)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := gs.Unmarshal(goschtalt.Root, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// ResolveServers expands every EnsembleMember into a dialable
// "host:port" address, resolving Host/Port entries through r.
func ResolveServers(ctx context.Context, r Resolver, members []EnsembleMember) ([]string, error) {
	var out []string
	for _, m := range members {
		if m.Addr != "" {
			out = append(out, m.Addr)
			continue
		}
		if m.Host == "" || m.Port == 0 {
			return nil, errors.New("config: ensemble member has neither addr nor host/port")
		}
		addrs, err := r.LookupHost(ctx, m.Host)
		if err != nil {
			return nil, err
		}
		for _, a := range addrs {
			out = append(out, net.JoinHostPort(a, fmt.Sprintf("%d", m.Port)))
		}
	}
	if len(out) == 0 {
		return nil, errors.New("config: ensemble resolved to zero addresses")
	}
	return out, nil
}
