// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the streamchat command line.
//
// # Commands
//
//   - streamchat: full-screen terminal chat (default)
//   - serve: browser client plus JSON and WebSocket API
//   - chat: line-mode chat with history and Ctrl-C to stop a response
//   - fixture: print a generated conversation as markdown or JSON
//   - config: show, init, get, set and locate the configuration file
//   - version: build information
//
// Every command builds the same stack: an event bus, the conversation
// store, a stream controller reading from the embedded corpus, and the
// conversation service on top.
package cli
