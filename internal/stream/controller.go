// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/textsource"
)

// =============================================================================
// OPTIONS
// =============================================================================

const (
	// DefaultWordCount is the number of words fetched per session.
	DefaultWordCount = 10000

	// DefaultChunkSize is the number of words released per tick.
	DefaultChunkSize = 25

	// DefaultTickInterval is the period of the delivery timer.
	DefaultTickInterval = 15 * time.Millisecond
)

// Options tunes a delivery session. Changes apply to the next session.
type Options struct {
	WordCount    int
	ChunkSize    int
	TickInterval time.Duration
}

// DefaultOptions returns the default delivery options.
func DefaultOptions() Options {
	return Options{
		WordCount:    DefaultWordCount,
		ChunkSize:    DefaultChunkSize,
		TickInterval: DefaultTickInterval,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.WordCount <= 0 {
		o.WordCount = d.WordCount
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = d.ChunkSize
	}
	if o.TickInterval <= 0 {
		o.TickInterval = d.TickInterval
	}
	return o
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// Sink receives response text. UpdateAt must ignore out-of-range indexes.
type Sink interface {
	UpdateAt(index int, patch model.TurnPatch) bool
}

// Reason says why a session ended.
type Reason string

const (
	ReasonExhausted  Reason = "exhausted"
	ReasonStopped    Reason = "stopped"
	ReasonSuperseded Reason = "superseded"
)

// Listener observes session lifecycle. Methods are called with the
// controller lock held; they must not block or call back into the controller.
type Listener interface {
	StreamStarted(session uint64, turn int)
	StreamFinished(session uint64, turn int, reason Reason)
	StreamFailed(session uint64, turn int, err error)
}

type nopListener struct{}

func (nopListener) StreamStarted(uint64, int) {}
func (nopListener) StreamFinished(uint64, int, Reason) {}
func (nopListener) StreamFailed(uint64, int, error) {}

// Config wires a Controller. Source and Sink are required.
type Config struct {
	Source    textsource.Provider
	Sink      Sink
	Scheduler Scheduler // Realtime with DefaultFrameInterval when nil
	Listener  Listener
	Logger    zerolog.Logger
	Options   Options
}

// =============================================================================
// CONTROLLER
// =============================================================================

// session is the delivery state of one stream. It is only touched with the
// controller lock held.
type session struct {
	id        uint64
	turn      int
	chunkSize int
	words     []string
	offset    int
	delivered string
	pending   []string
	exhausted bool
	flushes   int

	stopTick  Cancel
	stopFrame Cancel
}

// Status is a point-in-time view of the controller.
type Status struct {
	Generating bool   `json:"generating"`
	Session    uint64 `json:"session"`
	Turn       int    `json:"turn"`
	Delivered  int    `json:"delivered"`
	Total      int    `json:"total"`
}

// Controller streams words into a Sink. All methods are safe for concurrent
// use.
type Controller struct {
	src      textsource.Provider
	sink     Sink
	sched    Scheduler
	listener Listener
	log      zerolog.Logger

	mu         sync.Mutex
	opts       Options
	id         uint64
	generating bool
	activeID   uint64
	activeTurn int
	sess       *session
	stopFetch  context.CancelFunc
	closed     bool

	wg sync.WaitGroup
}

// New creates an idle Controller.
func New(cfg Config) *Controller {
	if cfg.Scheduler == nil {
		cfg.Scheduler = NewRealtime(DefaultFrameInterval)
	}
	if cfg.Listener == nil {
		cfg.Listener = nopListener{}
	}
	return &Controller{
		src:        cfg.Source,
		sink:       cfg.Sink,
		sched:      cfg.Scheduler,
		listener:   cfg.Listener,
		log:        cfg.Logger.With().Str("component", "stream").Logger(),
		opts:       cfg.Options.normalized(),
		activeTurn: -1,
	}
}

// Stream starts delivering a response into the turn at index and returns the
// new session identifier. Any previous session is torn down first. The word
// fetch runs in the background and is bounded by ctx.
func (c *Controller) Stream(ctx context.Context, index int) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.id
	}

	c.id++
	c.teardownLocked(ReasonSuperseded)

	id := c.id
	opts := c.opts
	c.generating = true
	c.activeID = id
	c.activeTurn = index

	fetchCtx, cancel := context.WithCancel(ctx)
	c.stopFetch = cancel

	c.log.Debug().Uint64("session", id).Int("turn", index).Int("words", opts.WordCount).Msg("stream started")
	c.listener.StreamStarted(id, index)

	c.wg.Add(1)
	go c.fetch(fetchCtx, cancel, id, index, opts)

	return id
}

// Stop ends the active session, if any. It is idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.id++
	c.teardownLocked(ReasonStopped)
}

// IsGenerating reports whether a session is fetching or delivering.
func (c *Controller) IsGenerating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generating
}

// Session returns the current session identifier.
func (c *Controller) Session() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Status returns a snapshot of the controller state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{Generating: c.generating, Session: c.id, Turn: -1}
	if c.generating {
		st.Turn = c.activeTurn
	}
	if s := c.sess; s != nil {
		st.Delivered = s.offset
		st.Total = len(s.words)
	}
	return st
}

// Options returns the options used for the next session.
func (c *Controller) Options() Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// SetOptions replaces the options used for the next session. Zero fields take
// their defaults; the active session is not affected.
func (c *Controller) SetOptions(opts Options) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts = opts.normalized()
}

// Close stops the controller and waits for background fetches to return.
// Stream is a no-op afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.id++
	c.teardownLocked(ReasonStopped)
	c.mu.Unlock()

	c.wg.Wait()
}

// teardownLocked cancels the timer, the pending flush and any in-flight fetch
// of the current session. The caller has already advanced c.id.
func (c *Controller) teardownLocked(reason Reason) {
	if s := c.sess; s != nil {
		if s.stopTick != nil {
			s.stopTick()
			s.stopTick = nil
		}
		if s.stopFrame != nil {
			s.stopFrame()
			s.stopFrame = nil
		}
		c.sess = nil
	}
	if c.stopFetch != nil {
		c.stopFetch()
		c.stopFetch = nil
	}
	if c.generating {
		prev := c.activeID
		c.generating = false
		c.log.Debug().Uint64("session", prev).Int("turn", c.activeTurn).Str("reason", string(reason)).Msg("stream ended")
		c.listener.StreamFinished(prev, c.activeTurn, reason)
	}
	c.activeTurn = -1
}

func (c *Controller) fetch(ctx context.Context, cancel context.CancelFunc, id uint64, index int, opts Options) {
	defer c.wg.Done()
	defer cancel()

	words, err := c.src.Words(ctx, opts.WordCount)

	c.mu.Lock()
	defer c.mu.Unlock()

	if id != c.id {
		return
	}
	c.stopFetch = nil

	if err != nil {
		c.generating = false
		c.activeTurn = -1
		c.log.Warn().Err(err).Uint64("session", id).Int("turn", index).Msg("word fetch failed")
		c.listener.StreamFailed(id, index, err)
		return
	}

	if len(words) > opts.WordCount {
		words = words[:opts.WordCount]
	}

	s := &session{
		id:        id,
		turn:      index,
		chunkSize: opts.ChunkSize,
		words:     words,
	}
	c.sess = s
	s.stopTick = c.sched.Every(opts.TickInterval, func() { c.tick(s) })
}

// current reports whether s is still the live session.
func (c *Controller) current(s *session) bool {
	return c.sess == s && s.id == c.id
}

func (c *Controller) tick(s *session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.current(s) || s.exhausted {
		return
	}

	end := min(s.offset+s.chunkSize, len(s.words))
	next := s.words[s.offset:end]

	if len(next) == 0 {
		s.exhausted = true
		if s.stopTick != nil {
			s.stopTick()
			s.stopTick = nil
		}
		c.requestFlushLocked(s)
		return
	}

	s.pending = append(s.pending, strings.Join(next, " "))
	s.offset = end
	c.requestFlushLocked(s)
}

// requestFlushLocked schedules a flush unless one is already pending.
func (c *Controller) requestFlushLocked(s *session) {
	if s.stopFrame != nil {
		return
	}
	s.stopFrame = c.sched.NextFrame(func() { c.flush(s) })
}

func (c *Controller) flush(s *session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.current(s) {
		return
	}
	s.stopFrame = nil

	if len(s.pending) > 0 {
		chunk := strings.Join(s.pending, " ")
		s.pending = s.pending[:0]
		if s.delivered == "" {
			s.delivered = chunk
		} else {
			s.delivered += " " + chunk
		}
		s.flushes++
		c.sink.UpdateAt(s.turn, model.PatchYou(s.delivered))
	}

	if s.exhausted && len(s.pending) == 0 {
		c.sess = nil
		c.generating = false
		c.activeTurn = -1
		c.log.Debug().Uint64("session", s.id).Int("turn", s.turn).Int("flushes", s.flushes).Msg("stream exhausted")
		c.listener.StreamFinished(s.id, s.turn, ReasonExhausted)
	}
}
