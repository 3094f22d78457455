// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme modes accepted by NewTheme.
const (
	ModeAuto  = "auto"
	ModeDark  = "dark"
	ModeLight = "light"
)

// Theme holds the styled components for the chat view.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	ColorProfile termenv.Profile

	renderer *lipgloss.Renderer

	// ==========================================================================
	// HEADER STYLES
	// ==========================================================================

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style

	// ==========================================================================
	// TURN STYLES
	// ==========================================================================

	MeLabel   lipgloss.Style
	MeText    lipgloss.Style
	YouLabel  lipgloss.Style
	YouText   lipgloss.Style
	Streaming lipgloss.Style
	Empty     lipgloss.Style
	TurnIndex lipgloss.Style

	// ==========================================================================
	// COMPOSER STYLES
	// ==========================================================================

	Composer     lipgloss.Style
	ComposerBusy lipgloss.Style

	// ==========================================================================
	// STATUS BAR STYLES
	// ==========================================================================

	StatusBar    lipgloss.Style
	StatusIdle   lipgloss.Style
	StatusActive lipgloss.Style
	Spinner      lipgloss.Style
	Progress     lipgloss.Style
	ShortcutKey  lipgloss.Style
	ShortcutDesc lipgloss.Style
	ScrollHint   lipgloss.Style
	Error        lipgloss.Style
}

// NewTheme creates a theme writing to stdout. Mode "dark" or "light" forces
// the palette; anything else detects the terminal background.
func NewTheme(mode string) *Theme {
	return NewThemeFor(os.Stdout, mode)
}

// NewThemeFor creates a theme for output w.
func NewThemeFor(w io.Writer, mode string) *Theme {
	r := lipgloss.NewRenderer(w)
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeDark:
		r.SetHasDarkBackground(true)
	case ModeLight:
		r.SetHasDarkBackground(false)
	}

	t := &Theme{
		IsDark:       r.HasDarkBackground(),
		ColorProfile: r.ColorProfile(),
		renderer:     r,
	}
	t.initStyles()
	return t
}

// Renderer returns the lipgloss renderer the theme's styles are bound to.
func (t *Theme) Renderer() *lipgloss.Renderer {
	return t.renderer
}

// GlamourStyle names the glamour standard style matching the background.
func (t *Theme) GlamourStyle() string {
	if t.IsDark {
		return ModeDark
	}
	return ModeLight
}

func (t *Theme) initStyles() {
	s := t.renderer.NewStyle

	t.Header = s().
		Background(SurfaceDim).
		Foreground(TextPrimary).
		Padding(0, 1)
	t.HeaderTitle = s().
		Foreground(Cyan).
		Bold(true)

	t.MeLabel = s().
		Foreground(Cyan).
		Bold(true)
	t.MeText = s().
		Foreground(TextPrimary).
		PaddingLeft(2)
	t.YouLabel = s().
		Foreground(Purple).
		Bold(true)
	t.YouText = s().
		Foreground(TextPrimary).
		PaddingLeft(2)
	t.Streaming = s().
		Foreground(TextSecondary).
		PaddingLeft(2)
	t.Empty = s().
		Foreground(TextMuted).
		Italic(true).
		PaddingLeft(2)
	t.TurnIndex = s().
		Foreground(TextMuted)

	t.Composer = s().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Overlay)
	t.ComposerBusy = s().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Purple)

	t.StatusBar = s().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)
	t.StatusIdle = s().
		Foreground(Emerald)
	t.StatusActive = s().
		Foreground(Purple).
		Bold(true)
	t.Spinner = s().
		Foreground(Purple)
	t.Progress = s().
		Foreground(Purple)
	t.ShortcutKey = s().
		Foreground(Cyan)
	t.ShortcutDesc = s().
		Foreground(TextMuted)
	t.ScrollHint = s().
		Foreground(Amber).
		Bold(true)
	t.Error = s().
		Foreground(Rose)
}
