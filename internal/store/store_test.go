// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/streamchat/internal/events"
	"github.com/jeranaias/streamchat/internal/fixtures"
	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/textsource"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func seeded(t *testing.T, rec *recorder) *Store {
	t.Helper()
	s := New(rec)
	s.ReplaceAll([]model.Turn{{Me: "a", You: "1"}, {Me: "b", You: "2"}, {Me: "c", You: "3"}})
	return s
}

// =============================================================================
// MUTATION TESTS
// =============================================================================

func TestStore_Append(t *testing.T) {
	rec := &recorder{}
	s := New(rec)

	assert.Equal(t, 0, s.Append(model.Turn{Me: "hi"}))
	assert.Equal(t, 1, s.Append(model.Turn{Me: "again"}))
	assert.Equal(t, 2, s.Len())

	turn, ok := s.At(1)
	require.True(t, ok)
	assert.Equal(t, "again", turn.Me)

	require.Len(t, rec.events, 2)
	assert.Equal(t, events.Event{Kind: events.TurnAppended, Index: 1, Version: 2}, rec.events[1])
}

func TestStore_UpdateAt(t *testing.T) {
	rec := &recorder{}
	s := seeded(t, rec)

	assert.True(t, s.UpdateAt(1, model.PatchYou("two")))
	turn, _ := s.At(1)
	assert.Equal(t, model.Turn{Me: "b", You: "two"}, turn, "untouched fields are kept")

	before, v := s.Snapshot()
	for _, index := range []int{-1, 3, 100} {
		assert.False(t, s.UpdateAt(index, model.PatchYou("x")))
	}
	after, v2 := s.Snapshot()
	assert.Equal(t, before, after)
	assert.Equal(t, v, v2, "out-of-range update does not bump the version")

	assert.Equal(t, []events.Kind{events.ConversationReplaced, events.TurnUpdated}, rec.kinds())
}

func TestStore_RemoveAt(t *testing.T) {
	s := seeded(t, &recorder{})

	assert.True(t, s.RemoveAt(1))
	turns, _ := s.Snapshot()
	assert.Equal(t, []model.Turn{{Me: "a", You: "1"}, {Me: "c", You: "3"}}, turns)

	assert.False(t, s.RemoveAt(2))
	assert.False(t, s.RemoveAt(-1))
	assert.Equal(t, 2, s.Len())
}

func TestStore_RemoveAtDoesNotCorruptSnapshots(t *testing.T) {
	s := seeded(t, &recorder{})
	snap, _ := s.Snapshot()

	s.RemoveAt(0)
	assert.Equal(t, "a", snap[0].Me)
	assert.Equal(t, "b", snap[1].Me)
}

func TestStore_ReplaceAllCopiesInput(t *testing.T) {
	s := New(nil)
	in := []model.Turn{{Me: "x"}}
	s.ReplaceAll(in)

	in[0].Me = "mutated"
	turn, _ := s.At(0)
	assert.Equal(t, "x", turn.Me)
}

func TestStore_Clear(t *testing.T) {
	rec := &recorder{}
	s := seeded(t, rec)

	s.Clear()
	assert.Equal(t, 0, s.Len())
	_, ok := s.At(0)
	assert.False(t, ok)
	assert.Equal(t, uint64(2), s.Version())
	assert.Equal(t, events.ConversationCleared, rec.kinds()[1])
}

func TestStore_ConcurrentWriters(t *testing.T) {
	s := New(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				idx := s.Append(model.Turn{Me: "m"})
				s.UpdateAt(idx, model.PatchYou("y"))
				s.Snapshot()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 800, s.Len())
	assert.Equal(t, uint64(1600), s.Version())
}

// =============================================================================
// LOAD TESTS
// =============================================================================

func TestStore_Load(t *testing.T) {
	s := New(nil)
	s.Append(model.Turn{Me: "old"})

	opts := fixtures.DefaultOptions()
	opts.HistoryWords = 500
	opts.Seed = 3
	require.NoError(t, s.Load(context.Background(), textsource.Default(), opts))

	turns, _ := s.Snapshot()
	require.NotEmpty(t, turns)
	assert.NotEqual(t, "old", turns[0].Me)
}

func TestStore_LoadKeepsLogOnError(t *testing.T) {
	s := New(nil)
	s.Append(model.Turn{Me: "old"})

	src := textsource.ProviderFunc(func(context.Context, int) ([]string, error) {
		return nil, errors.New("nope")
	})
	assert.Error(t, s.Load(context.Background(), src, fixtures.DefaultOptions()))
	assert.Equal(t, 1, s.Len())
}
