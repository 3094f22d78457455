// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and manages streamchat configuration.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (STREAMCHAT_*)
//   - ~/.streamchat/config.toml
//   - ~/.streamchat/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	ctrl.SetOptions(cfg.Stream.Options())
//
// Watch reloads a file on change and hands the new configuration to a
// callback; the serve command uses it to retune the stream controller.
package config
