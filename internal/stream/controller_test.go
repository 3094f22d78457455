// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/streamchat/internal/textsource"
)

// =============================================================================
// OPTIONS TESTS
// =============================================================================

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 10000, opts.WordCount)
	assert.Equal(t, 25, opts.ChunkSize)
	assert.Equal(t, 15*time.Millisecond, opts.TickInterval)
}

func TestOptions_ZeroFieldsTakeDefaults(t *testing.T) {
	opts := Options{ChunkSize: 3}.normalized()
	assert.Equal(t, DefaultWordCount, opts.WordCount)
	assert.Equal(t, 3, opts.ChunkSize)
	assert.Equal(t, DefaultTickInterval, opts.TickInterval)
}

// =============================================================================
// DELIVERY TESTS
// =============================================================================

func TestController_ExhaustionDeliversTwoBatches(t *testing.T) {
	h := newHarness(t, prefixedProvider("w"), Options{WordCount: 30, ChunkSize: 25})

	id := h.ctrl.Stream(context.Background(), 3)
	assert.True(t, h.ctrl.IsGenerating())
	h.waitDelivering(t)

	h.sched.Tick()
	h.sched.Frame()
	h.sched.Tick()
	h.sched.Frame()

	// Words are exhausted but the session ends only after the final flush.
	h.sched.Tick()
	assert.Equal(t, 0, h.sched.Tickers(), "timer must be cancelled on exhaustion")
	assert.True(t, h.ctrl.IsGenerating())

	h.sched.Frame()
	assert.False(t, h.ctrl.IsGenerating())

	updates := h.sink.all()
	require.Len(t, updates, 2)
	assert.Equal(t, update{index: 3, you: joinedPrefix("w", 25)}, updates[0])
	assert.Equal(t, update{index: 3, you: joinedPrefix("w", 30)}, updates[1])

	events := h.listener.all()
	require.Len(t, events, 2)
	assert.Equal(t, event{kind: "started", session: id, turn: 3}, events[0])
	assert.Equal(t, event{kind: "finished", session: id, turn: 3, reason: ReasonExhausted}, events[1])
}

func TestController_CoalescesTicksWithinFrame(t *testing.T) {
	h := newHarness(t, prefixedProvider("w"), Options{WordCount: 100, ChunkSize: 25})

	h.ctrl.Stream(context.Background(), 0)
	h.waitDelivering(t)

	h.sched.Tick()
	h.sched.Tick()
	h.sched.Tick()
	assert.Equal(t, 1, h.sched.Frames(), "one flush per frame")

	h.sched.Frame()
	updates := h.sink.all()
	require.Len(t, updates, 1)
	assert.Equal(t, joinedPrefix("w", 75), updates[0].you)

	h.drain(t)
	updates = h.sink.all()
	assert.Equal(t, joinedPrefix("w", 100), updates[len(updates)-1].you)
}

func TestController_MonotonicPrefixes(t *testing.T) {
	h := newHarness(t, prefixedProvider("w"), Options{WordCount: 500, ChunkSize: 7})

	h.ctrl.Stream(context.Background(), 1)
	h.waitDelivering(t)

	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 10000 && h.ctrl.IsGenerating(); i++ {
		if r.IntN(3) == 0 {
			h.sched.Frame()
		} else {
			h.sched.Tick()
		}
	}
	h.drain(t)

	updates := h.sink.all()
	require.NotEmpty(t, updates)
	prev := ""
	for i, u := range updates {
		assert.Equal(t, 1, u.index)
		assert.Greater(t, len(u.you), len(prev), "update %d must grow", i)
		assert.True(t, strings.HasPrefix(u.you, prev), "update %d must extend the previous text", i)
		assert.False(t, strings.HasPrefix(u.you, " "))
		prev = u.you
	}
	assert.Equal(t, joinedPrefix("w", 500), prev)
}

func TestController_TruncatesToWordCount(t *testing.T) {
	src := textsource.ProviderFunc(func(context.Context, int) ([]string, error) {
		return strings.Fields("a b c d e f g h"), nil
	})
	h := newHarness(t, src, Options{WordCount: 5, ChunkSize: 2})

	h.ctrl.Stream(context.Background(), 0)
	h.waitDelivering(t)
	h.drain(t)

	updates := h.sink.all()
	assert.Equal(t, "a b c d e", updates[len(updates)-1].you)
}

func TestController_UsesTickInterval(t *testing.T) {
	h := newHarness(t, prefixedProvider("w"), Options{WordCount: 10, TickInterval: 40 * time.Millisecond})

	h.ctrl.Stream(context.Background(), 0)
	h.waitDelivering(t)
	assert.Equal(t, []time.Duration{40 * time.Millisecond}, h.sched.Periods())
}

// =============================================================================
// CANCELLATION TESTS
// =============================================================================

func TestController_StopBeforeFetchResolves(t *testing.T) {
	gate := newGatedProvider()
	h := newHarness(t, gate, Options{WordCount: 30})

	h.ctrl.Stream(context.Background(), 0)
	<-gate.entered
	h.ctrl.Stop()
	assert.False(t, h.ctrl.IsGenerating())

	close(gate.release)
	h.ctrl.Close()

	assert.Equal(t, 0, h.sched.Tickers())
	assert.Empty(t, h.sink.all())
	assert.False(t, h.ctrl.IsGenerating())
}

func TestController_StopBeforeFirstFlush(t *testing.T) {
	h := newHarness(t, prefixedProvider("w"), Options{WordCount: 100})

	h.ctrl.Stream(context.Background(), 0)
	h.waitDelivering(t)
	h.sched.Tick()

	h.ctrl.Stop()
	assert.False(t, h.ctrl.IsGenerating())
	assert.Equal(t, 0, h.sched.Tickers())
	assert.Equal(t, 0, h.sched.Frames())

	h.sched.Tick()
	h.sched.Frame()
	assert.Empty(t, h.sink.all())

	events := h.listener.all()
	require.Len(t, events, 2)
	assert.Equal(t, ReasonStopped, events[1].reason)
}

func TestController_StopIsIdempotent(t *testing.T) {
	h := newHarness(t, prefixedProvider("w"), Options{})

	h.ctrl.Stop()
	h.ctrl.Stop()
	assert.False(t, h.ctrl.IsGenerating())
	assert.Empty(t, h.listener.all(), "stopping while idle ends nothing")

	h.ctrl.Stream(context.Background(), 0)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.ctrl.Stop()
		}()
	}
	wg.Wait()

	assert.False(t, h.ctrl.IsGenerating())
	finished := 0
	for _, e := range h.listener.all() {
		if e.kind == "finished" {
			finished++
		}
	}
	assert.Equal(t, 1, finished)
}

func TestController_StaleCallbacksAreIgnored(t *testing.T) {
	h := newHarness(t, prefixedProvider("w"), Options{WordCount: 50})

	h.ctrl.Stream(context.Background(), 0)
	h.waitDelivering(t)

	h.ctrl.mu.Lock()
	stale := h.ctrl.sess
	h.ctrl.mu.Unlock()
	require.NotNil(t, stale)

	h.ctrl.Stop()

	// Callbacks that were already queued still run; they must not write.
	h.ctrl.tick(stale)
	h.ctrl.flush(stale)
	assert.Empty(t, h.sink.all())
	assert.False(t, h.ctrl.IsGenerating())
}

func TestController_FetchContextCancelledOnStop(t *testing.T) {
	cancelled := make(chan struct{})
	src := textsource.ProviderFunc(func(ctx context.Context, _ int) ([]string, error) {
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	})
	h := newHarness(t, src, Options{})

	h.ctrl.Stream(context.Background(), 0)
	h.ctrl.Stop()

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch context was not cancelled")
	}
	h.ctrl.Close()

	for _, e := range h.listener.all() {
		assert.NotEqual(t, "failed", e.kind, "a superseded fetch is not a failure")
	}
}

// =============================================================================
// RESTART RACE TESTS
// =============================================================================

func TestController_RestartBeforeFetchResolves(t *testing.T) {
	tests := []struct {
		name   string
		first  int
		second int
	}{
		{"different turn", 0, 1},
		{"same turn", 2, 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gate := newGatedProvider()
			h := newHarness(t, gate, Options{WordCount: 60, ChunkSize: 25})

			first := h.ctrl.Stream(context.Background(), tc.first)
			<-gate.entered
			second := h.ctrl.Stream(context.Background(), tc.second)
			<-gate.entered
			assert.Greater(t, second, first)

			close(gate.release)
			h.waitDelivering(t)
			h.drain(t)

			updates := h.sink.all()
			require.NotEmpty(t, updates)
			for _, u := range updates {
				assert.Equal(t, tc.second, u.index)
				assert.NotContains(t, u.you, "call1-", "first session must not write")
			}
			assert.Equal(t, joinedPrefix("call2-", 60), updates[len(updates)-1].you)

			events := h.listener.all()
			require.Len(t, events, 4)
			assert.Equal(t, event{kind: "finished", session: first, turn: tc.first, reason: ReasonSuperseded}, events[1])
			assert.Equal(t, event{kind: "finished", session: second, turn: tc.second, reason: ReasonExhausted}, events[3])
		})
	}
}

func TestController_RestartDuringDelivery(t *testing.T) {
	calls := 0
	src := textsource.ProviderFunc(func(_ context.Context, count int) ([]string, error) {
		calls++
		prefix := "a"
		if calls > 1 {
			prefix = "b"
		}
		return strings.Fields(strings.TrimSpace(strings.Repeat(prefix+" ", count))), nil
	})
	h := newHarness(t, src, Options{WordCount: 50, ChunkSize: 10})

	h.ctrl.Stream(context.Background(), 0)
	h.waitDelivering(t)
	h.sched.Tick()
	h.sched.Frame()

	h.ctrl.Stream(context.Background(), 1)
	h.waitDelivering(t)
	h.drain(t)

	updates := h.sink.all()
	require.NotEmpty(t, updates)
	assert.Equal(t, update{index: 0, you: strings.TrimSpace(strings.Repeat("a ", 10))}, updates[0])
	for _, u := range updates[1:] {
		assert.Equal(t, 1, u.index)
		assert.NotContains(t, u.you, "a")
	}
}

// =============================================================================
// FAILURE TESTS
// =============================================================================

func TestController_FetchFailureFailsClosed(t *testing.T) {
	boom := errors.New("backend down")
	src := textsource.ProviderFunc(func(context.Context, int) ([]string, error) {
		return nil, boom
	})
	h := newHarness(t, src, Options{})

	id := h.ctrl.Stream(context.Background(), 4)
	require.Eventually(t, func() bool { return !h.ctrl.IsGenerating() }, 2*time.Second, time.Millisecond)

	assert.Empty(t, h.sink.all())
	assert.Equal(t, 0, h.sched.Tickers())
	assert.Equal(t, -1, h.ctrl.Status().Turn)

	events := h.listener.all()
	require.Len(t, events, 2)
	assert.Equal(t, event{kind: "failed", session: id, turn: 4}, events[1])
}

// =============================================================================
// STATE TESTS
// =============================================================================

func TestController_Status(t *testing.T) {
	h := newHarness(t, prefixedProvider("w"), Options{WordCount: 40, ChunkSize: 10})

	st := h.ctrl.Status()
	assert.False(t, st.Generating)
	assert.Equal(t, -1, st.Turn)

	id := h.ctrl.Stream(context.Background(), 2)
	h.waitDelivering(t)
	h.sched.Tick()

	st = h.ctrl.Status()
	assert.True(t, st.Generating)
	assert.Equal(t, id, st.Session)
	assert.Equal(t, 2, st.Turn)
	assert.Equal(t, 10, st.Delivered)
	assert.Equal(t, 40, st.Total)
}

func TestController_SetOptionsAppliesToNextSession(t *testing.T) {
	h := newHarness(t, prefixedProvider("w"), Options{WordCount: 20, ChunkSize: 20})

	h.ctrl.Stream(context.Background(), 0)
	h.waitDelivering(t)
	h.ctrl.SetOptions(Options{WordCount: 5, ChunkSize: 5})
	h.drain(t)

	updates := h.sink.all()
	assert.Equal(t, joinedPrefix("w", 20), updates[len(updates)-1].you)

	h.ctrl.Stream(context.Background(), 1)
	h.waitDelivering(t)
	h.drain(t)

	updates = h.sink.all()
	assert.Equal(t, update{index: 1, you: joinedPrefix("w", 5)}, updates[len(updates)-1])
	assert.Equal(t, 5, h.ctrl.Options().WordCount)
}

func TestController_StreamAfterCloseIsNoop(t *testing.T) {
	h := newHarness(t, prefixedProvider("w"), Options{})
	h.ctrl.Close()

	h.ctrl.Stream(context.Background(), 0)
	assert.False(t, h.ctrl.IsGenerating())
	assert.Empty(t, h.listener.all())
}

// =============================================================================
// REALTIME TESTS
// =============================================================================

func TestController_Realtime(t *testing.T) {
	sink := &recordingSink{}
	ctrl := New(Config{
		Source:    prefixedProvider("w"),
		Sink:      sink,
		Scheduler: NewRealtime(2 * time.Millisecond),
		Logger:    zerolog.Nop(),
		Options:   Options{WordCount: 200, ChunkSize: 10, TickInterval: time.Millisecond},
	})
	defer ctrl.Close()

	ctrl.Stream(context.Background(), 0)
	require.Eventually(t, func() bool { return !ctrl.IsGenerating() }, 5*time.Second, time.Millisecond)

	updates := sink.all()
	require.NotEmpty(t, updates)
	assert.LessOrEqual(t, len(updates), 20)
	assert.Equal(t, joinedPrefix("w", 200), updates[len(updates)-1].you)
}

func TestController_RealtimeStopMidStream(t *testing.T) {
	sink := &recordingSink{}
	ctrl := New(Config{
		Source:    prefixedProvider("w"),
		Sink:      sink,
		Scheduler: NewRealtime(time.Millisecond),
		Logger:    zerolog.Nop(),
		Options:   Options{WordCount: 100000, ChunkSize: 1, TickInterval: time.Millisecond},
	})
	defer ctrl.Close()

	ctrl.Stream(context.Background(), 0)
	require.Eventually(t, func() bool { return len(sink.all()) > 0 }, 5*time.Second, time.Millisecond)
	ctrl.Stop()

	n := len(sink.all())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, len(sink.all()), "no writes after stop")
}
