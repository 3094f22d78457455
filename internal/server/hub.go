// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jeranaias/streamchat/internal/conversation"
	"github.com/jeranaias/streamchat/internal/events"
	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/stream"
)

// ============================================================================
// FRAMES
// ============================================================================

// Frame types sent over the WebSocket.
const (
	FrameSnapshot = "snapshot"
	FrameAppend   = "append"
	FrameSet      = "set"
	FrameStatus   = "status"
)

// Frame is one WebSocket message.
type Frame struct {
	Type    string               `json:"type"`
	Index   int                  `json:"index"`
	Text    string               `json:"text,omitempty"`
	Turn    *model.Turn          `json:"turn,omitempty"`
	Turns   []model.Turn         `json:"turns,omitempty"`
	Version uint64               `json:"version,omitempty"`
	Status  *conversation.Status `json:"status,omitempty"`
	Event   events.Kind          `json:"event,omitempty"`
	Session uint64               `json:"session,omitempty"`
	Reason  stream.Reason        `json:"reason,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// ============================================================================
// HUB
// ============================================================================

const (
	clientBuffer = 256
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	maxReadBytes = 4096
)

// Subscriber yields bus events until ctx ends.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan events.Event, error)
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans conversation changes out to WebSocket clients. It keeps a mirror
// of what it last sent so every client can be brought up to date with a
// snapshot and then follow the same deltas.
type Hub struct {
	conv Conversation
	bus  Subscriber
	log  zerolog.Logger

	register   chan *client
	unregister chan *client
	done       chan struct{}

	clients map[*client]struct{}
	mirror  []model.Turn
}

// NewHub creates a hub. Run must be called before clients can join.
func NewHub(conv Conversation, bus Subscriber, log zerolog.Logger) *Hub {
	return &Hub{
		conv:       conv,
		bus:        bus,
		log:        log.With().Str("component", "ws").Logger(),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
	}
}

// Run pumps bus events to clients until ctx ends. It closes every client
// connection on return.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	sub, err := h.bus.Subscribe(ctx)
	if err != nil {
		return errors.Wrap(err, "hub: subscribe")
	}
	h.mirror = h.conv.Snapshot()

	defer func() {
		for c := range h.clients {
			h.drop(c)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.sendTo(c, h.snapshotFrame())
			h.sendTo(c, h.statusFrame(events.Event{}))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}

		case ev, ok := <-sub:
			if !ok {
				return nil
			}
			h.handle(ev)
		}
	}
}

// handle turns one bus event into frames.
func (h *Hub) handle(ev events.Event) {
	switch {
	case ev.Structural():
		h.mirror = h.conv.Snapshot()
		h.broadcast(h.snapshotFrame())

	case ev.Kind == events.TurnUpdated:
		if frame, ok := h.deltaFrame(ev.Index); ok {
			h.broadcast(frame)
		}

	case ev.IsStream():
		h.broadcast(h.statusFrame(ev))
	}
}

// deltaFrame diffs the turn at index against the mirror. Growth of the
// response becomes an append frame, anything else a set frame.
func (h *Hub) deltaFrame(index int) (Frame, bool) {
	turn, ok := h.conv.Turn(index)
	if !ok || index >= len(h.mirror) {
		h.mirror = h.conv.Snapshot()
		return h.snapshotFrame(), true
	}

	prev := h.mirror[index]
	h.mirror[index] = turn
	switch {
	case turn == prev:
		return Frame{}, false
	case turn.Me == prev.Me && len(turn.You) > len(prev.You) && strings.HasPrefix(turn.You, prev.You):
		return Frame{Type: FrameAppend, Index: index, Text: turn.You[len(prev.You):]}, true
	default:
		return Frame{Type: FrameSet, Index: index, Turn: &turn}, true
	}
}

func (h *Hub) snapshotFrame() Frame {
	status := h.conv.Status()
	return Frame{Type: FrameSnapshot, Index: -1, Turns: h.mirror, Version: status.Version}
}

func (h *Hub) statusFrame(ev events.Event) Frame {
	status := h.conv.Status()
	return Frame{
		Type:    FrameStatus,
		Index:   status.Turn,
		Status:  &status,
		Event:   ev.Kind,
		Session: ev.Session,
		Reason:  ev.Reason,
		Error:   ev.Error,
	}
}

func (h *Hub) broadcast(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.log.Error().Err(err).Str("type", f.Type).Msg("encode frame")
		return
	}
	for c := range h.clients {
		h.queue(c, data)
	}
}

func (h *Hub) sendTo(c *client, f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.log.Error().Err(err).Str("type", f.Type).Msg("encode frame")
		return
	}
	h.queue(c, data)
}

// queue hands data to the client's writer. A client that cannot keep up is
// dropped; it reconnects and starts again from a snapshot.
func (h *Hub) queue(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.log.Warn().Str("remote", c.conn.RemoteAddr().String()).Msg("slow websocket client dropped")
		h.drop(c)
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
}

// join registers c with the running hub. It fails once the hub has stopped.
func (h *Hub) join(ctx context.Context, c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (h *Hub) leave(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ============================================================================
// CONNECTION PUMPS
// ============================================================================

// writePump sends queued frames and keepalive pings. It closes the
// connection when the hub closes the send channel.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages and returns when the connection fails.
func (c *client) readPump() {
	c.conn.SetReadLimit(maxReadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
