// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the browser UI and HTTP API for a shared
// conversation.
//
// Endpoints:
//   - GET    /                              - Embedded browser client
//   - GET    /api/conversation              - Full conversation snapshot
//   - DELETE /api/conversation              - Clear the conversation
//   - POST   /api/conversation/reset        - Reload fixture history
//   - GET    /api/conversation/export       - Export as markdown or JSON
//   - POST   /api/turns                     - Submit a message
//   - DELETE /api/turns/{index}             - Remove a turn
//   - POST   /api/turns/{index}/regenerate  - Regenerate a response
//   - POST   /api/stop                      - Stop the active stream
//   - GET    /api/status                    - Stream and conversation status
//   - GET    /health                        - Health check
//   - GET    /ws                            - Live updates over WebSocket
//
// The WebSocket sends a snapshot on connect and then incremental frames: an
// append frame carries only the text added to a response since the last
// frame, a set frame replaces one turn, and structural changes resend the
// snapshot.
package server
