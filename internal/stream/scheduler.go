// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"sync"
	"time"
)

// DefaultFrameInterval approximates one display refresh.
const DefaultFrameInterval = 16 * time.Millisecond

// Cancel releases a scheduled callback. It never blocks and may be called
// more than once. A callback already running or about to run may still fire.
type Cancel func()

// Scheduler owns the two kinds of callbacks the controller needs.
type Scheduler interface {
	// Every calls fn repeatedly with period d until cancelled.
	Every(d time.Duration, fn func()) Cancel

	// NextFrame calls fn once at the start of the next frame.
	NextFrame(fn func()) Cancel
}

// =============================================================================
// REALTIME SCHEDULER
// =============================================================================

// Realtime schedules callbacks on wall-clock time. Frames are aligned to a
// fixed epoch so every callback requested within one frame fires together.
type Realtime struct {
	frame time.Duration
	epoch time.Time
}

// NewRealtime returns a Realtime scheduler with the given frame interval.
// Non-positive intervals use DefaultFrameInterval.
func NewRealtime(frame time.Duration) *Realtime {
	if frame <= 0 {
		frame = DefaultFrameInterval
	}
	return &Realtime{frame: frame, epoch: time.Now()}
}

// FrameInterval returns the frame clock period.
func (r *Realtime) FrameInterval() time.Duration {
	return r.frame
}

// Every implements Scheduler.
func (r *Realtime) Every(d time.Duration, fn func()) Cancel {
	if d <= 0 {
		d = time.Millisecond
	}
	ticker := time.NewTicker(d)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				// Stop wins over a tick that is ready at the same time.
				select {
				case <-done:
					return
				default:
				}
				fn()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

// NextFrame implements Scheduler.
func (r *Realtime) NextFrame(fn func()) Cancel {
	elapsed := time.Since(r.epoch) % r.frame
	t := time.AfterFunc(r.frame-elapsed, fn)
	return func() { t.Stop() }
}

// =============================================================================
// MANUAL SCHEDULER
// =============================================================================

type manualEntry struct {
	id        int
	fn        func()
	cancelled bool
}

// Manual is a Scheduler driven by explicit Tick and Frame calls. It runs
// nothing on its own and is safe for concurrent use.
type Manual struct {
	mu      sync.Mutex
	nextID  int
	tickers []*manualEntry
	frames  []*manualEntry
	periods []time.Duration
}

// NewManual returns an idle Manual scheduler.
func NewManual() *Manual {
	return &Manual{}
}

// Every implements Scheduler.
func (m *Manual) Every(d time.Duration, fn func()) Cancel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	e := &manualEntry{id: m.nextID, fn: fn}
	m.tickers = append(m.tickers, e)
	m.periods = append(m.periods, d)
	return m.canceller(e)
}

// NextFrame implements Scheduler.
func (m *Manual) NextFrame(fn func()) Cancel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	e := &manualEntry{id: m.nextID, fn: fn}
	m.frames = append(m.frames, e)
	return m.canceller(e)
}

func (m *Manual) canceller(e *manualEntry) Cancel {
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		e.cancelled = true
		m.tickers = removeEntry(m.tickers, e)
		m.frames = removeEntry(m.frames, e)
	}
}

func removeEntry(list []*manualEntry, e *manualEntry) []*manualEntry {
	for i, x := range list {
		if x == e {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Tick fires every active repeating callback once and returns how many ran.
func (m *Manual) Tick() int {
	m.mu.Lock()
	due := append([]*manualEntry(nil), m.tickers...)
	m.mu.Unlock()

	return m.run(due)
}

// Frame runs the frame callbacks requested before the call. Callbacks
// requested while it runs wait for the next Frame.
func (m *Manual) Frame() int {
	m.mu.Lock()
	due := m.frames
	m.frames = nil
	m.mu.Unlock()

	return m.run(due)
}

func (m *Manual) run(due []*manualEntry) int {
	ran := 0
	for _, e := range due {
		m.mu.Lock()
		skip := e.cancelled
		m.mu.Unlock()
		if skip {
			continue
		}
		e.fn()
		ran++
	}
	return ran
}

// Tickers returns the number of active repeating callbacks.
func (m *Manual) Tickers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickers)
}

// Frames returns the number of pending frame callbacks.
func (m *Manual) Frames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

// Periods returns the period of every repeating callback ever registered.
func (m *Manual) Periods() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.periods...)
}
