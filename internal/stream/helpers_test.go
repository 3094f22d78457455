// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/textsource"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type update struct {
	index int
	you   string
}

type recordingSink struct {
	mu      sync.Mutex
	updates []update
}

func (r *recordingSink) UpdateAt(index int, p model.TurnPatch) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.You != nil {
		r.updates = append(r.updates, update{index: index, you: *p.You})
	}
	return true
}

func (r *recordingSink) all() []update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]update(nil), r.updates...)
}

type event struct {
	kind    string
	session uint64
	turn    int
	reason  Reason
}

type recordingListener struct {
	mu     sync.Mutex
	events []event
}

func (l *recordingListener) StreamStarted(session uint64, turn int) {
	l.add(event{kind: "started", session: session, turn: turn})
}

func (l *recordingListener) StreamFinished(session uint64, turn int, reason Reason) {
	l.add(event{kind: "finished", session: session, turn: turn, reason: reason})
}

func (l *recordingListener) StreamFailed(session uint64, turn int, _ error) {
	l.add(event{kind: "failed", session: session, turn: turn})
}

func (l *recordingListener) add(e event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *recordingListener) all() []event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]event(nil), l.events...)
}

// prefixedProvider returns "<prefix><i>" words and records each call.
func prefixedProvider(prefix string) textsource.Provider {
	return textsource.ProviderFunc(func(ctx context.Context, count int) ([]string, error) {
		words := make([]string, textsource.NormalizeCount(count))
		for i := range words {
			words[i] = fmt.Sprintf("%s%d", prefix, i)
		}
		return words, nil
	})
}

// gatedProvider blocks each call until release is closed. It ignores ctx so
// a superseded fetch still returns successfully.
type gatedProvider struct {
	release chan struct{}
	mu      sync.Mutex
	calls   int
	entered chan struct{}
}

func newGatedProvider() *gatedProvider {
	return &gatedProvider{release: make(chan struct{}), entered: make(chan struct{}, 16)}
}

func (g *gatedProvider) Words(_ context.Context, count int) ([]string, error) {
	g.mu.Lock()
	g.calls++
	call := g.calls
	g.mu.Unlock()

	g.entered <- struct{}{}
	<-g.release

	words := make([]string, count)
	for i := range words {
		words[i] = fmt.Sprintf("call%d-%d", call, i)
	}
	return words, nil
}

type harness struct {
	ctrl     *Controller
	sched    *Manual
	sink     *recordingSink
	listener *recordingListener
}

func newHarness(t *testing.T, src textsource.Provider, opts Options) *harness {
	t.Helper()
	h := &harness{
		sched:    NewManual(),
		sink:     &recordingSink{},
		listener: &recordingListener{},
	}
	h.ctrl = New(Config{
		Source:    src,
		Sink:      h.sink,
		Scheduler: h.sched,
		Listener:  h.listener,
		Logger:    zerolog.Nop(),
		Options:   opts,
	})
	t.Cleanup(h.ctrl.Close)
	return h
}

// waitDelivering blocks until the fetch finished and the delivery timer runs.
func (h *harness) waitDelivering(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return h.sched.Tickers() == 1 }, 2*time.Second, time.Millisecond)
}

// drain alternates ticks and frames until the controller goes idle.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	for i := 0; i < 100000 && h.ctrl.IsGenerating(); i++ {
		h.sched.Tick()
		h.sched.Frame()
	}
	require.False(t, h.ctrl.IsGenerating(), "stream did not finish")
}

func joinedPrefix(prefix string, n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(words, " ")
}
