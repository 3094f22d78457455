// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/jeranaias/streamchat/internal/events"
	"github.com/jeranaias/streamchat/internal/fixtures"
	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/textsource"
)

// Store is an ordered, mutable conversation log. It is safe for concurrent
// use.
type Store struct {
	mu      sync.RWMutex
	turns   []model.Turn
	version uint64
	pub     events.Publisher
}

// New creates an empty store that reports changes to pub. A nil pub
// discards them.
func New(pub events.Publisher) *Store {
	if pub == nil {
		pub = events.Discard
	}
	return &Store{pub: pub}
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Append adds turn to the end of the log and returns its index.
func (s *Store) Append(turn model.Turn) int {
	s.mu.Lock()
	s.turns = append(s.turns, turn)
	index := len(s.turns) - 1
	v := s.bumpLocked()
	s.mu.Unlock()

	s.pub.Publish(events.Event{Kind: events.TurnAppended, Index: index, Version: v})
	return index
}

// UpdateAt applies patch to the turn at index. It reports false and changes
// nothing when index is out of range.
func (s *Store) UpdateAt(index int, patch model.TurnPatch) bool {
	s.mu.Lock()
	if index < 0 || index >= len(s.turns) {
		s.mu.Unlock()
		return false
	}
	s.turns[index] = s.turns[index].Apply(patch)
	v := s.bumpLocked()
	s.mu.Unlock()

	s.pub.Publish(events.Event{Kind: events.TurnUpdated, Index: index, Version: v})
	return true
}

// RemoveAt deletes the turn at index, keeping the order of the rest. It
// reports false and changes nothing when index is out of range.
func (s *Store) RemoveAt(index int) bool {
	s.mu.Lock()
	if index < 0 || index >= len(s.turns) {
		s.mu.Unlock()
		return false
	}
	s.turns = append(s.turns[:index:index], s.turns[index+1:]...)
	v := s.bumpLocked()
	s.mu.Unlock()

	s.pub.Publish(events.Event{Kind: events.TurnRemoved, Index: index, Version: v})
	return true
}

// ReplaceAll swaps the whole log for a copy of turns.
func (s *Store) ReplaceAll(turns []model.Turn) {
	next := model.CloneTurns(turns)

	s.mu.Lock()
	s.turns = next
	v := s.bumpLocked()
	s.mu.Unlock()

	s.pub.Publish(events.Event{Kind: events.ConversationReplaced, Index: -1, Version: v})
}

// Clear empties the log.
func (s *Store) Clear() {
	s.mu.Lock()
	s.turns = nil
	v := s.bumpLocked()
	s.mu.Unlock()

	s.pub.Publish(events.Event{Kind: events.ConversationCleared, Index: -1, Version: v})
}

func (s *Store) bumpLocked() uint64 {
	s.version++
	return s.version
}

// =============================================================================
// READS
// =============================================================================

// Snapshot returns a copy of the log and the version it was taken at.
func (s *Store) Snapshot() ([]model.Turn, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := make([]model.Turn, len(s.turns))
	copy(turns, s.turns)
	return turns, s.version
}

// At returns the turn at index.
func (s *Store) At(index int) (model.Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 0 || index >= len(s.turns) {
		return model.Turn{}, false
	}
	return s.turns[index], true
}

// Len returns the number of turns.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Version returns the mutation counter.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// =============================================================================
// LOADING
// =============================================================================

// Load replaces the log with generated fixture history.
func (s *Store) Load(ctx context.Context, src textsource.Provider, opts fixtures.Options) error {
	turns, err := fixtures.Generate(ctx, src, opts)
	if err != nil {
		return errors.Wrap(err, "store: load history")
	}
	s.ReplaceAll(turns)
	return nil
}
