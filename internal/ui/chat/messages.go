// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/streamchat/internal/events"
)

// =============================================================================
// EVENT MESSAGES
// =============================================================================

// eventsMsg carries every event that was waiting on the bus channel when the
// reader woke up. Closed is set when the channel has been closed.
type eventsMsg struct {
	Events []events.Event
	Closed bool
}

// =============================================================================
// RENDER MESSAGES
// =============================================================================

// renderedMsg delivers a finished markdown rendering.
type renderedMsg struct {
	Index  int
	Source string
	Width  int
	Output string
	Err    error
}
