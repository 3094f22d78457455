// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jeranaias/streamchat/internal/fixtures"
	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/store"
	"github.com/jeranaias/streamchat/internal/stream"
	"github.com/jeranaias/streamchat/internal/textsource"
)

var (
	// ErrEmptyMessage is returned when a submitted message is blank.
	ErrEmptyMessage = errors.New("conversation: message is empty")

	// ErrTurnOutOfRange is returned when an index does not name a turn.
	ErrTurnOutOfRange = errors.New("conversation: turn index out of range")
)

// Streamer is the part of the stream controller the service uses.
type Streamer interface {
	Stream(ctx context.Context, index int) uint64
	Stop()
	Status() stream.Status
}

// Status summarizes the conversation for status bars and the API.
type Status struct {
	stream.Status
	Turns   int    `json:"turns"`
	Version uint64 `json:"version"`
}

// Service coordinates the store and the stream controller. Structural
// operations are serialized so a stream never holds an index that another
// caller shifts.
type Service struct {
	mu sync.Mutex

	store    *store.Store
	streamer Streamer
	history  textsource.Provider
	fixtures fixtures.Options
	log      zerolog.Logger
}

// Config wires a Service. History feeds Reset; it may be nil when fixture
// history is not wanted.
type Config struct {
	Store    *store.Store
	Streamer Streamer
	History  textsource.Provider
	Fixtures fixtures.Options
	Logger   zerolog.Logger
}

// New creates a Service.
func New(cfg Config) *Service {
	return &Service{
		store:    cfg.Store,
		streamer: cfg.Streamer,
		history:  cfg.History,
		fixtures: cfg.Fixtures,
		log:      cfg.Logger.With().Str("component", "conversation").Logger(),
	}
}

// Store returns the underlying conversation log.
func (s *Service) Store() *store.Store {
	return s.store
}

// Submit appends a new turn for me and starts streaming its response. It
// returns the index of the new turn.
func (s *Service) Submit(ctx context.Context, me string) (int, error) {
	me = strings.TrimSpace(me)
	if me == "" {
		return -1, ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.store.Append(model.Turn{Me: me})
	session := s.streamer.Stream(ctx, index)
	s.log.Info().Int("turn", index).Uint64("session", session).Msg("message submitted")
	return index, nil
}

// Stop ends the active stream, if any.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamer.Stop()
}

// Regenerate clears the response of the turn at index and streams a new one.
// The previous stream is stopped before the clear so none of its pending
// text lands on the turn.
func (s *Service) Regenerate(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regenerateLocked(ctx, index)
}

// RegenerateLast regenerates the newest turn.
func (s *Service) RegenerateLast(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regenerateLocked(ctx, s.store.Len()-1)
}

func (s *Service) regenerateLocked(ctx context.Context, index int) error {
	if index < 0 || index >= s.store.Len() {
		return errors.Wrapf(ErrTurnOutOfRange, "regenerate %d", index)
	}
	s.streamer.Stop()
	if !s.store.UpdateAt(index, model.PatchYou("")) {
		return errors.Wrapf(ErrTurnOutOfRange, "regenerate %d", index)
	}
	session := s.streamer.Stream(ctx, index)
	s.log.Info().Int("turn", index).Uint64("session", session).Msg("regenerating")
	return nil
}

// Remove deletes the turn at index. The active stream is stopped first so it
// cannot write into a shifted index.
func (s *Service) Remove(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.streamer.Stop()
	if !s.store.RemoveAt(index) {
		return errors.Wrapf(ErrTurnOutOfRange, "remove %d", index)
	}
	return nil
}

// Clear stops the active stream and empties the conversation.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamer.Stop()
	s.store.Clear()
}

// Reset stops the active stream and reloads fixture history. Without a
// history source it behaves like Clear.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.streamer.Stop()
	if s.history == nil {
		s.store.Clear()
		return nil
	}
	if err := s.store.Load(ctx, s.history, s.fixtures); err != nil {
		return errors.Wrap(err, "conversation: reset")
	}
	s.log.Info().Int("turns", s.store.Len()).Msg("history loaded")
	return nil
}

// Status reports stream state and log size.
func (s *Service) Status() Status {
	return Status{
		Status:  s.streamer.Status(),
		Turns:   s.store.Len(),
		Version: s.store.Version(),
	}
}

// Turn returns the turn at index.
func (s *Service) Turn(index int) (model.Turn, bool) {
	return s.store.At(index)
}

// Snapshot returns a copy of the conversation.
func (s *Service) Snapshot() []model.Turn {
	turns, _ := s.store.Snapshot()
	return turns
}
