// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package events

import (
	"time"

	"github.com/jeranaias/streamchat/internal/stream"
)

// Kind names an event type.
type Kind string

const (
	TurnAppended         Kind = "turn.appended"
	TurnUpdated          Kind = "turn.updated"
	TurnRemoved          Kind = "turn.removed"
	ConversationReplaced Kind = "conversation.replaced"
	ConversationCleared  Kind = "conversation.cleared"
	StreamStarted        Kind = "stream.started"
	StreamFinished       Kind = "stream.finished"
	StreamFailed         Kind = "stream.failed"
)

// Event is a single change notification.
type Event struct {
	Kind    Kind          `json:"kind"`
	Index   int           `json:"index"`
	Version uint64        `json:"version,omitempty"`
	Session uint64        `json:"session,omitempty"`
	Reason  stream.Reason `json:"reason,omitempty"`
	Error   string        `json:"error,omitempty"`
	Time    time.Time     `json:"time"`
}

// Structural reports whether the event changes the shape of the conversation
// rather than the text of one turn.
func (e Event) Structural() bool {
	switch e.Kind {
	case TurnAppended, TurnRemoved, ConversationReplaced, ConversationCleared:
		return true
	}
	return false
}

// IsStream reports whether the event is a stream lifecycle event.
func (e Event) IsStream() bool {
	switch e.Kind {
	case StreamStarted, StreamFinished, StreamFailed:
		return true
	}
	return false
}

// Publisher accepts events. Implementations must not block.
type Publisher interface {
	Publish(Event)
}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}

// =============================================================================
// STREAM LISTENER ADAPTER
// =============================================================================

// StreamListener reports stream lifecycle events to a Publisher.
type StreamListener struct {
	Publisher
}

// StreamStarted implements stream.Listener.
func (l StreamListener) StreamStarted(session uint64, turn int) {
	l.Publish(Event{Kind: StreamStarted, Index: turn, Session: session})
}

// StreamFinished implements stream.Listener.
func (l StreamListener) StreamFinished(session uint64, turn int, reason stream.Reason) {
	l.Publish(Event{Kind: StreamFinished, Index: turn, Session: session, Reason: reason})
}

// StreamFailed implements stream.Listener.
func (l StreamListener) StreamFailed(session uint64, turn int, err error) {
	ev := Event{Kind: StreamFailed, Index: turn, Session: session}
	if err != nil {
		ev.Error = err.Error()
	}
	l.Publish(ev)
}

var _ stream.Listener = StreamListener{}
