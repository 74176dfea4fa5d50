// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Command ztree-cli is a thin operational wrapper around a ztree.Session:
// it loads an ensemble configuration, resolves any hostname-based
// server entries, and keeps the session alive until interrupted,
// logging every state transition. It exists to exercise the engine end
// to end, not as a general ZooKeeper client shell.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"os"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/zkit-io/ztree"
	"github.com/zkit-io/ztree/auth"
	"github.com/zkit-io/ztree/internal/config"
	"github.com/zkit-io/ztree/state"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const applicationName = "ztree-cli"

var (
	commit  = "undefined"
	version = "undefined"
	date    = "undefined"
)

// CLI captures the command line arguments.
type CLI struct {
	Dev   bool     `optional:"" short:"d" help:"Run in development mode."`
	Files []string `optional:"" short:"f" help:"Specific configuration files or directories."`
}

type cliArgs []string

func provideCLI(args cliArgs) (*CLI, error) {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name(applicationName),
		kong.Description("Operational client for a ztree session.\n"+
			fmt.Sprintf("\tVersion: %s\n\tDate: %s\n\tCommit: %s\n", version, date, commit)),
		kong.UsageOnError(),
	)
	if err != nil {
		return nil, err
	}
	if _, err := parser.Parse(args); err != nil {
		parser.FatalIfErrorf(err)
	}
	return &cli, nil
}

func provideConfig(cli *CLI) (*config.Config, error) {
	return config.Load(cli.Files...)
}

func provideLogger(cli *CLI, cfg *config.Config) (*zap.Logger, error) {
	lcfg := cfg.Logger
	if cli.Dev {
		lcfg.Level = "DEBUG"
		lcfg.Development = true
		lcfg.Encoding = "console"
		lcfg.OutputPaths = append(lcfg.OutputPaths, "stderr")
		lcfg.ErrorOutputPaths = append(lcfg.ErrorOutputPaths, "stderr")
	}
	return lcfg.Build()
}

func provideAuthProvider(cfg *config.Config) (auth.Provider, error) {
	sa := cfg.Session.Auth
	switch {
	case sa.Secret != "":
		return auth.Static(auth.Credential{Scheme: sa.Scheme, Auth: []byte(sa.Secret)}), nil
	case sa.JWT != nil:
		key, err := hex.DecodeString(sa.JWT.KeyHex)
		if err != nil {
			return nil, fmt.Errorf("config: session auth jwt key: %w", err)
		}
		return auth.NewJWTProvider(sa.JWT.Issuer, sa.JWT.Subject, sa.JWT.Lifetime, key), nil
	default:
		return auth.None, nil
	}
}

func provideSession(cfg *config.Config, logger *zap.Logger, provider auth.Provider) (*ztree.Session, error) {
	servers, err := config.ResolveServers(context.Background(), net.DefaultResolver, cfg.Session.Ensemble)
	if err != nil {
		return nil, err
	}

	opts := []ztree.Option{
		ztree.Servers(servers...),
		ztree.SessionTimeout(cfg.Session.SessionTimeout),
		ztree.MaxPacketLen(cfg.Session.MaxPacketLen),
		ztree.WithAuth(provider),
		ztree.WithAutoReset(cfg.Session.AutoReset),
		ztree.WithLogger(logger.Named("ztree")),
	}
	if cfg.Session.DialTimeout > 0 {
		opts = append(opts, ztree.DialTimeout(cfg.Session.DialTimeout))
	}
	if cfg.Session.Chroot != "" {
		opts = append(opts, ztree.WithChroot(ztree.Chroot(cfg.Session.Chroot)))
	}

	return ztree.New(opts...)
}

func registerLifecycle(lc fx.Lifecycle, s *ztree.Session, logger *zap.Logger) {
	correlate := uuid.NewString()
	logger = logger.With(zap.String("correlationID", correlate))

	s.Subscribe(state.ListenerFunc(func(ev state.WatchedEvent) {
		logger.Info("session event", zap.String("event", ev.String()))
	}))

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return s.Close(ctx)
		},
	})
}

func ztreeCLI(args []string) (*fx.App, error) {
	app := fx.New(
		fx.Supply(cliArgs(args)),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Provide(
			provideCLI,
			provideConfig,
			provideLogger,
			provideAuthProvider,
			provideSession,
		),
		fx.Invoke(registerLifecycle),
	)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return app, nil
}

func main() {
	app, err := ztreeCLI(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	app.Run()
}
