// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/ui/styles"
	"github.com/jeranaias/streamchat/internal/util"
)

const (
	emptyConversation = "No messages yet. Type below and press Enter."
	noResponse        = "(no response)"
	waitingResponse   = "..."
	scrollHint        = "new output below, End to follow"
	progressWidth     = 12
)

// =============================================================================
// VIEW
// =============================================================================

// View renders the chat interface.
func (m Model) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderStatusBar(),
		m.renderComposer(),
	)
}

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("streamchat")
	count := fmt.Sprintf(" %d turns", len(m.turns))
	return m.theme.Header.Width(m.width).Render(title + count)
}

func (m Model) renderComposer() string {
	style := m.theme.Composer
	if m.status.Generating {
		style = m.theme.ComposerBusy
	}
	return style.Render(m.composer.View())
}

// renderStatusBar shows the stream state on the left and key help on the
// right, dropping the help when the line is too narrow.
func (m Model) renderStatusBar() string {
	avail := m.width - 2
	if avail <= 0 {
		return ""
	}

	var prefix, text string
	style := m.theme.StatusIdle
	switch {
	case m.err != nil:
		text = "error: " + m.err.Error()
		style = m.theme.Error
	case m.unseen:
		text = scrollHint
		style = m.theme.ScrollHint
	case m.status.Generating:
		prefix = m.spinner.View() + " "
		text = fmt.Sprintf("streaming #%d %s %d/%d words",
			m.status.Turn+1,
			styles.RenderProgressBar(progressWidth, m.status.Delivered, m.status.Total),
			m.status.Delivered, m.status.Total)
		style = m.theme.StatusActive
	default:
		text = "idle"
	}
	left := prefix + style.Render(util.TruncateWidth(text, avail-lipgloss.Width(prefix)))

	help := m.helpText()
	gap := avail - lipgloss.Width(left) - lipgloss.Width(help)
	if gap < 2 {
		return m.theme.StatusBar.Width(m.width).Render(left)
	}
	return m.theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + help)
}

func (m Model) helpText() string {
	parts := make([]string, 0, len(m.keys.ShortHelp()))
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		parts = append(parts, m.theme.ShortcutKey.Render(h.Key)+" "+m.theme.ShortcutDesc.Render(h.Desc))
	}
	return strings.Join(parts, "  ")
}

// =============================================================================
// HISTORY
// =============================================================================

// renderHistory renders every turn. The streaming turn is always plain text;
// other responses use their markdown rendering once it is ready.
func (m Model) renderHistory() string {
	if len(m.turns) == 0 {
		return m.theme.Empty.Render(emptyConversation)
	}

	active := -1
	if m.status.Generating {
		active = m.status.Turn
	}
	width := m.wrapWidth()

	parts := make([]string, len(m.turns))
	for i, t := range m.turns {
		key := blockKey{turn: t, width: width, active: i == active}
		var md string
		if m.markdown && !key.active && t.You != "" {
			if out, ok := m.queue.Lookup(i, t.You, width); ok {
				md, key.rendered = out, true
			} else {
				m.queue.Request(i, t.You, width)
			}
		}
		if out, ok := m.blocks.Get(i, key); ok {
			parts[i] = out
			continue
		}
		out := m.renderTurn(i, t, key, md)
		m.blocks.Put(i, key, out)
		parts[i] = out
	}
	return strings.Join(parts, "\n\n")
}

func (m Model) renderTurn(i int, t model.Turn, key blockKey, md string) string {
	th := m.theme
	wrap := key.width + 2

	var sb strings.Builder
	sb.WriteString(th.MeLabel.Render("Me"))
	sb.WriteString(" ")
	sb.WriteString(th.TurnIndex.Render(fmt.Sprintf("#%d", i+1)))
	sb.WriteString("\n")
	sb.WriteString(th.MeText.Width(wrap).Render(t.Me))
	sb.WriteString("\n")
	sb.WriteString(th.YouLabel.Render("You"))
	sb.WriteString("\n")

	switch {
	case t.You == "" && key.active:
		sb.WriteString(th.Streaming.Render(waitingResponse))
	case t.You == "":
		sb.WriteString(th.Empty.Render(noResponse))
	case key.active:
		sb.WriteString(th.Streaming.Width(wrap).Render(t.You))
	case key.rendered:
		sb.WriteString(md)
	default:
		sb.WriteString(th.YouText.Width(wrap).Render(t.You))
	}
	return sb.String()
}

// =============================================================================
// BLOCK CACHE
// =============================================================================

// blockKey identifies everything a rendered turn depends on.
type blockKey struct {
	turn     model.Turn
	width    int
	active   bool
	rendered bool
}

type block struct {
	key blockKey
	out string
}

// blockCache keeps rendered turns between redraws. It is shared by pointer
// between Model copies and only touched from the Bubble Tea loop.
type blockCache struct {
	entries map[int]block
}

func newBlockCache() *blockCache {
	return &blockCache{entries: make(map[int]block)}
}

// Get returns the cached rendering of turn index when key still matches.
func (c *blockCache) Get(index int, key blockKey) (string, bool) {
	b, ok := c.entries[index]
	if !ok || b.key != key {
		return "", false
	}
	return b.out, true
}

// Put stores the rendering of turn index.
func (c *blockCache) Put(index int, key blockKey, out string) {
	c.entries[index] = block{key: key, out: out}
}

// Invalidate drops the rendering of turn index.
func (c *blockCache) Invalidate(index int) {
	delete(c.entries, index)
}

// Reset drops every rendering.
func (c *blockCache) Reset() {
	c.entries = make(map[int]block)
}

// Len returns the number of cached renderings.
func (c *blockCache) Len() int {
	return len(c.entries)
}
