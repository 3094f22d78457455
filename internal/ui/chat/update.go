// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	"github.com/jeranaias/streamchat/internal/conversation"
	"github.com/jeranaias/streamchat/internal/events"
)

// =============================================================================
// UPDATE
// =============================================================================

// Update handles Bubble Tea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.updatePinned()
		return m, cmd

	case eventsMsg:
		return m.handleEvents(msg)

	case renderedMsg:
		m.queue.Complete(msg)
		if msg.Err != nil {
			m.log.Debug().Err(msg.Err).Int("turn", msg.Index).Msg("markdown render failed")
		} else {
			m.blocks.Invalidate(msg.Index)
		}
		m.syncViewport(false)
		return m, m.queue.Next()

	case spinner.TickMsg:
		if !m.status.Generating {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	return m, cmd
}

func (m Model) handleResize(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height
	m.ready = true

	m.composer.SetWidth(max(1, msg.Width-composerFrame))
	m.viewport.Width = msg.Width
	m.viewport.Height = max(1, msg.Height-headerHeight-statusHeight-composerHeight-composerFrame)

	m.blocks.Reset()
	m.syncViewport(false)
	return m
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.Stop):
		m.conv.Stop()
		m.err = nil
		return m, nil

	case key.Matches(msg, m.keys.Regenerate):
		m.err = m.conv.RegenerateLast(m.ctx)
		if m.err == nil {
			m.repin()
		}
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		m.conv.Clear()
		m.err = nil
		m.repin()
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.ViewUp()
		m.updatePinned()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.ViewDown()
		m.updatePinned()
		return m, nil

	case key.Matches(msg, m.keys.LineUp):
		m.viewport.LineUp(1)
		m.updatePinned()
		return m, nil

	case key.Matches(msg, m.keys.LineDown):
		m.viewport.LineDown(1)
		m.updatePinned()
		return m, nil

	case key.Matches(msg, m.keys.Bottom):
		m.repin()
		return m, nil
	}

	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	_, err := m.conv.Submit(m.ctx, m.composer.Value())
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage):
		return m, nil
	case err != nil:
		m.err = err
		return m, nil
	}
	m.err = nil
	m.composer.Reset()
	m.repin()
	return m, nil
}

// =============================================================================
// EVENTS
// =============================================================================

func (m Model) handleEvents(msg eventsMsg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	for _, ev := range msg.Events {
		if ev.Structural() {
			m.queue.Reset()
			m.blocks.Reset()
		}
		if ev.Kind == events.StreamFailed {
			m.err = errors.New(ev.Error)
		}
	}

	m.refresh()
	m.syncViewport(len(msg.Events) > 0)

	if m.status.Generating && !m.spinning {
		m.spinning = true
		cmds = append(cmds, m.spinner.Tick)
	}
	if msg.Closed {
		m.closed = true
	} else {
		cmds = append(cmds, waitForEvents(m.events))
	}
	cmds = append(cmds, m.queue.Next())
	return m, tea.Batch(cmds...)
}

// =============================================================================
// SCROLLING
// =============================================================================

// syncViewport rebuilds the history content. When pinned the view follows
// the bottom; otherwise new output raises the scroll hint.
func (m *Model) syncViewport(newOutput bool) {
	content := m.renderHistory()
	changed := content != m.content
	m.content = content
	m.viewport.SetContent(content)
	if m.pinned {
		m.viewport.GotoBottom()
		return
	}
	if changed && newOutput {
		m.unseen = true
	}
}

func (m *Model) updatePinned() {
	m.pinned = m.viewport.AtBottom()
	if m.pinned {
		m.unseen = false
	}
}

func (m *Model) repin() {
	m.pinned = true
	m.unseen = false
	m.viewport.GotoBottom()
}
