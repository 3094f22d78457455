// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/jeranaias/streamchat/internal/conversation"
	"github.com/jeranaias/streamchat/internal/events"
	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/ui/styles"
)

// Layout constants.
const (
	headerHeight   = 1
	statusHeight   = 1
	composerHeight = 3
	composerFrame  = 2 // rounded border, top and bottom
	minWrapWidth   = 20
)

// Conversation is the part of the conversation service the view drives.
type Conversation interface {
	Submit(ctx context.Context, me string) (int, error)
	Stop()
	RegenerateLast(ctx context.Context) error
	Clear()
	Status() conversation.Status
	Snapshot() []model.Turn
}

// Config wires a Model.
type Config struct {
	Conversation Conversation
	// Events is a bus subscription. The view redraws on every event.
	Events <-chan events.Event
	Theme  *styles.Theme
	// Markdown renders finished responses with glamour.
	Markdown bool
	Logger   zerolog.Logger
	// Context bounds the fetches started from the view.
	Context context.Context
	// Render overrides the markdown renderer; nil uses glamour.
	Render renderFunc
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	ctx    context.Context
	conv   Conversation
	events <-chan events.Event
	theme  *styles.Theme
	keys   KeyMap
	log    zerolog.Logger

	composer textarea.Model
	viewport viewport.Model
	spinner  spinner.Model

	width  int
	height int
	ready  bool

	turns   []model.Turn
	status  conversation.Status
	content string
	err     error

	pinned   bool
	unseen   bool
	spinning bool
	closed   bool

	markdown bool
	queue    *markdownQueue
	blocks   *blockCache
}

// New creates the chat view and takes an initial snapshot.
func New(cfg Config) Model {
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	theme := cfg.Theme
	if theme == nil {
		theme = styles.NewTheme(styles.ModeAuto)
	}
	render := cfg.Render
	if render == nil {
		render = glamourRender(theme.GlamourStyle())
	}
	keys := DefaultKeyMap()

	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.ShowLineNumbers = false
	ta.Prompt = ""
	ta.CharLimit = 0
	ta.SetHeight(composerHeight)
	ta.KeyMap.InsertNewline = keys.Newline
	ta.Focus()

	vp := viewport.New(80, 20)
	vp.MouseWheelEnabled = true

	sp := spinner.New()
	sp.Spinner = styles.StreamSpinner
	sp.Style = theme.Spinner

	m := Model{
		ctx:      ctx,
		conv:     cfg.Conversation,
		events:   cfg.Events,
		theme:    theme,
		keys:     keys,
		log:      cfg.Logger.With().Str("component", "tui").Logger(),
		composer: ta,
		viewport: vp,
		spinner:  sp,
		width:    80,
		height:   24,
		pinned:   true,
		markdown: cfg.Markdown,
		queue:    newMarkdownQueue(render),
		blocks:   newBlockCache(),
	}
	m.refresh()
	return m
}

// Init starts the event reader and the cursor blink.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, waitForEvents(m.events))
}

// Turns returns the last snapshot the view rendered from.
func (m Model) Turns() []model.Turn {
	return m.turns
}

// Pinned reports whether the history follows new output.
func (m Model) Pinned() bool {
	return m.pinned
}

// Err returns the last action error shown in the status bar.
func (m Model) Err() error {
	return m.err
}

// refresh replaces the snapshot with the conversation's current state.
func (m *Model) refresh() {
	if m.conv == nil {
		return
	}
	m.turns = m.conv.Snapshot()
	m.status = m.conv.Status()
}

// wrapWidth is the width response text is wrapped to.
func (m Model) wrapWidth() int {
	w := m.viewport.Width - 4
	if w < minWrapWidth {
		w = minWrapWidth
	}
	return w
}

// =============================================================================
// EVENT READER
// =============================================================================

// maxEventBatch bounds how many queued events are folded into one redraw.
const maxEventBatch = 256

// waitForEvents blocks for the next event and then collects whatever else is
// already queued, so a burst of deliveries costs one redraw.
func waitForEvents(ch <-chan events.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsMsg{Closed: true}
		}
		batch := []events.Event{ev}
		for len(batch) < maxEventBatch {
			select {
			case ev, ok := <-ch:
				if !ok {
					return eventsMsg{Events: batch, Closed: true}
				}
				batch = append(batch, ev)
			default:
				return eventsMsg{Events: batch}
			}
		}
		return eventsMsg{Events: batch}
	}
}
