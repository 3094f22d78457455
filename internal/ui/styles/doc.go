// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the streamchat TUI.

# Color System (colors.go)

All colors use Lip Gloss AdaptiveColor so they resolve against the
terminal background:

	Cyan    - Brand color, user turns
	Purple  - Response turns, spinner
	Emerald - Finished states
	Amber   - Scroll hint
	Rose    - Errors

# Theme System (theme.go)

A Theme binds the palette to a lipgloss renderer. The mode comes from the
[ui] theme setting:

	theme := styles.NewTheme("auto") // detect via termenv
	theme := styles.NewTheme("light") // force light palette

GlamourStyle names the matching glamour standard style for markdown
rendering.

# Animation System (animations.go)

StreamSpinner is the spinner shown while a response is generating.
RenderProgressBar draws the delivered/total bar in the status line.
*/
package styles
