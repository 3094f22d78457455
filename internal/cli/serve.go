// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/streamchat/internal/config"
	"github.com/jeranaias/streamchat/internal/logging"
	"github.com/jeranaias/streamchat/internal/server"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	var (
		addr      string
		noHistory bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the browser client and the JSON/WebSocket API",
		Long: `Serve one shared conversation over HTTP.

Open the listen address in a browser for the web client. The API lives
under /api and live updates under /ws. Edits to the config file are
picked up while running; stream settings apply from the next response.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, addr, noHistory)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "start with an empty conversation")
	return cmd
}

func runServe(cmd *cobra.Command, opts *globalOptions, addr string, noHistory bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cmd, opts, logging.Console)
	if err != nil {
		return err
	}
	defer a.Close()

	if addr != "" {
		a.cfg.Server.Addr = addr
	}
	if !noHistory {
		if err := a.svc.Reset(ctx); err != nil {
			return err
		}
	}

	srv := server.New(server.Config{
		Addr:         a.cfg.Server.Addr,
		RateLimit:    a.cfg.Server.RateLimit,
		RateBurst:    a.cfg.Server.RateBurst,
		Version:      Version,
		Conversation: a.svc,
		Events:       a.bus,
		Logger:       a.log,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	if a.path != "" {
		w := &config.Watcher{
			Path:     a.path,
			Logger:   a.log,
			OnChange: a.applyConfig,
		}
		g.Go(func() error {
			return w.Run(ctx)
		})
	}

	a.log.Info().Str("addr", a.cfg.Server.Addr).Msg("serving")
	return g.Wait()
}
