// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jeranaias/streamchat/internal/export"
	"github.com/jeranaias/streamchat/internal/fixtures"
	"github.com/jeranaias/streamchat/internal/textsource"
	"github.com/jeranaias/streamchat/internal/util"
)

func newFixtureCommand(opts *globalOptions) *cobra.Command {
	var (
		format   string
		out      string
		words    int
		metadata bool
	)

	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Print a generated conversation",
		Long: `Generate the conversation history the chat starts with and print it.

Use --seed for a reproducible conversation and --words to change its size.`,
		Example: `  streamchat fixture --seed 7 --words 500
  streamchat fixture --format json --out history.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			fopts := cfg.Fixtures.Options()
			if cmd.Flags().Changed("words") {
				fopts.HistoryWords = words
			}

			exporter, err := export.ForFormat(format, &export.Options{IncludeMetadata: metadata})
			if err != nil {
				return errors.Wrapf(err, "format %q", format)
			}

			turns, err := fixtures.Generate(cmd.Context(), textsource.Default(), fopts)
			if err != nil {
				return err
			}
			data, err := exporter.Export(export.Conversation{
				Title: "Generated conversation",
				Turns: turns,
			})
			if err != nil {
				return err
			}

			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := util.AtomicWriteFile(out, data, 0644); err != nil {
				return errors.Wrapf(err, "write %s", out)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d turns to %s\n", len(turns), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "md", "output format: md or json")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to a file instead of stdout")
	cmd.Flags().IntVar(&words, "words", 0, "history size in words (default from config)")
	cmd.Flags().BoolVar(&metadata, "metadata", true, "include a metadata header (markdown)")
	return cmd
}
