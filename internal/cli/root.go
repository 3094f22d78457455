// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jeranaias/streamchat/internal/config"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	logFile    string
	seed       uint64
}

// NewRootCommand builds the streamchat command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "streamchat",
		Short: "Chat with a simulated streaming responder",
		Long: `streamchat is a chat client whose responses are streamed word by word
from a local text source. Without a subcommand it opens the full-screen
terminal UI.

Keys:
  Enter        send            Alt+Enter  newline
  Esc          stop response   Ctrl+R     regenerate last
  Ctrl+L       clear           End        jump to newest
  Ctrl+C       quit`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (default ~/.streamchat/config.toml)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&opts.logFile, "log-file", "", "write JSON logs to this file")
	pf.Uint64Var(&opts.seed, "seed", 0, "seed for generated history (0 = random)")

	cmd.AddCommand(
		newServeCommand(opts),
		newChatCommand(opts),
		newFixtureCommand(opts),
		newConfigCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCommand().ExecuteContext(context.Background())
}

// loadConfig reads the configuration named by --config, or the default
// location, and applies flag overrides on top.
func loadConfig(cmd *cobra.Command, opts *globalOptions) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if opts.configPath != "" {
		path = opts.configPath
		cfg, err = config.LoadFromPath(path)
	} else {
		cfg, path, err = config.Load()
	}
	if err != nil {
		return nil, "", errors.Wrap(err, "load config")
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-file") {
		cfg.Log.File = opts.logFile
	}
	if flags.Changed("seed") {
		cfg.Fixtures.Seed = opts.seed
	}
	return cfg, path, nil
}

// configFile returns the file the config subcommands read and write.
func configFile(opts *globalOptions) (string, error) {
	if opts.configPath != "" {
		return opts.configPath, nil
	}
	return config.PathTOML()
}

// readConfigFile loads path, or the defaults when it does not exist yet.
func readConfigFile(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return config.LoadFromPath(path)
}
