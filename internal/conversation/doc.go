// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation implements the user-facing chat actions on top of the
// store and the stream controller. The terminal UI, the line REPL and the web
// server all drive the conversation through a Service.
package conversation
