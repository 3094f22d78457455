// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jeranaias/streamchat/internal/logging"
	"github.com/jeranaias/streamchat/internal/ui/chat"
	"github.com/jeranaias/streamchat/internal/ui/styles"
)

// runTUI opens the full-screen chat on the generated history.
func runTUI(cmd *cobra.Command, opts *globalOptions) error {
	if err := RequiresTTY("start the terminal UI"); err != nil {
		return err
	}

	a, err := newApp(cmd, opts, logging.Quiet)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sub, err := a.bus.Subscribe(ctx)
	if err != nil {
		return errors.Wrap(err, "subscribe to conversation events")
	}
	if err := a.svc.Reset(ctx); err != nil {
		return err
	}

	m := chat.New(chat.Config{
		Conversation: a.svc,
		Events:       sub,
		Theme:        styles.NewTheme(a.cfg.UI.Theme),
		Markdown:     a.cfg.UI.Markdown,
		Logger:       a.log,
		Context:      ctx,
	})
	return chat.Run(ctx, m)
}
