// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the terminal chat view for streamchat.

The view is a Bubble Tea model over a conversation service. It never
mutates the conversation itself: key presses call the service, and the
view redraws from a fresh snapshot whenever the event bus reports a change.

# Key Components

## Model (model.go)

Model holds the composer (bubbles textarea), the history viewport, the
status spinner and the last snapshot of the conversation.

## Update Loop (update.go)

  - Key bindings from keys.go
  - Event batches read from the bus by waitForEvents
  - Markdown render results from the render queue
  - Window resize and mouse wheel scrolling

## View Rendering (view.go)

Turns are rendered into cached blocks so that only the streaming turn is
rebuilt on each delivery. Finished responses are shown as plain wrapped
text until their markdown rendering is ready.

## Markdown Queue (render.go)

Finished responses are rendered with glamour one at a time, newest turn
first. A newer request for the same turn replaces the pending one, and a
result whose source text no longer matches the turn is ignored.

# Scrolling

The history stays pinned to the bottom while new text arrives. Once the
user scrolls up the view stops following and shows a hint; End re-pins.

# Usage

	model := chat.New(chat.Config{
		Conversation: svc,
		Events:       ch,
		Theme:        styles.NewTheme(cfg.UI.Theme),
		Markdown:     cfg.UI.Markdown,
	})
	err := chat.Run(ctx, model)
*/
package chat
