// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/pkg/errors"
)

// =============================================================================
// MARKDOWN QUEUE
// =============================================================================

// renderFunc renders markdown source wrapped to width.
type renderFunc func(source string, width int) (string, error)

type renderJob struct {
	source string
	width  int
}

// markdownQueue defers markdown rendering of finished responses. At most one
// rendering runs at a time; the highest pending turn index goes first.
//
// It is shared by pointer between Model copies.
type markdownQueue struct {
	mu      sync.Mutex
	render  renderFunc
	pending map[int]renderJob
	done    map[int]renderedMsg
	busy    bool
}

func newMarkdownQueue(render renderFunc) *markdownQueue {
	return &markdownQueue{
		render:  render,
		pending: make(map[int]renderJob),
		done:    make(map[int]renderedMsg),
	}
}

// Request queues source for turn index, replacing any pending request for
// that turn. Blank sources and sources already rendered at width are ignored.
func (q *markdownQueue) Request(index int, source string, width int) {
	if strings.TrimSpace(source) == "" || width <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if r, ok := q.done[index]; ok && r.Source == source && r.Width == width {
		return
	}
	q.pending[index] = renderJob{source: source, width: width}
}

// Lookup returns the rendering of source for turn index at width, if one
// has finished.
func (q *markdownQueue) Lookup(index int, source string, width int) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.done[index]
	if !ok || r.Source != source || r.Width != width {
		return "", false
	}
	return r.Output, true
}

// Next starts the next rendering. It returns nil while one is running or
// when nothing is pending.
func (q *markdownQueue) Next() tea.Cmd {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.busy || len(q.pending) == 0 {
		return nil
	}

	index := -1
	for i := range q.pending {
		if i > index {
			index = i
		}
	}
	job := q.pending[index]
	delete(q.pending, index)
	q.busy = true

	render := q.render
	return func() tea.Msg {
		out, err := render(job.source, job.width)
		return renderedMsg{
			Index:  index,
			Source: job.source,
			Width:  job.width,
			Output: out,
			Err:    err,
		}
	}
}

// Complete records a finished rendering and frees the queue for the next.
func (q *markdownQueue) Complete(msg renderedMsg) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.busy = false
	if msg.Err != nil {
		return
	}
	q.done[msg.Index] = msg
}

// Reset forgets every pending request and finished rendering. A rendering
// already running still completes but is only used if its source matches.
func (q *markdownQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = make(map[int]renderJob)
	q.done = make(map[int]renderedMsg)
}

// Pending returns the number of queued requests.
func (q *markdownQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// =============================================================================
// GLAMOUR
// =============================================================================

// glamourRender returns a renderFunc using the named glamour standard style.
// The term renderer is rebuilt only when the wrap width changes; the queue
// never calls it concurrently.
func glamourRender(style string) renderFunc {
	var (
		renderer *glamour.TermRenderer
		wrap     int
	)
	return func(source string, width int) (string, error) {
		if renderer == nil || wrap != width {
			r, err := glamour.NewTermRenderer(
				glamour.WithStandardStyle(style),
				glamour.WithWordWrap(width),
			)
			if err != nil {
				return "", errors.Wrap(err, "create markdown renderer")
			}
			renderer, wrap = r, width
		}
		out, err := renderer.Render(source)
		if err != nil {
			return "", errors.Wrap(err, "render markdown")
		}
		return strings.Trim(out, "\n"), nil
	}
}
