// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Topic is the watermill topic all events are published on.
const Topic = "chat.events"

// DefaultQueueSize is the number of events buffered ahead of the forwarder.
const DefaultQueueSize = 4096

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("events: bus closed")

// Bus is an in-process event bus. It is safe for concurrent use.
type Bus struct {
	pubsub *gochannel.GoChannel
	queue  chan Event
	done   chan struct{}
	log    zerolog.Logger

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewBus creates a Bus and starts its forwarder. queueSize <= 0 uses
// DefaultQueueSize.
func NewBus(log zerolog.Logger, queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	b := &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            int64(queueSize),
			BlockPublishUntilSubscriberAck: true,
		}, watermill.NopLogger{}),
		queue: make(chan Event, queueSize),
		done:  make(chan struct{}),
		log:   log.With().Str("component", "events").Logger(),
	}

	b.wg.Add(1)
	go b.forward()

	return b
}

// Publish queues ev for delivery. It never blocks; when the queue is full
// the event is dropped and logged.
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	select {
	case <-b.done:
		return
	default:
	}

	select {
	case b.queue <- ev:
	default:
		b.log.Warn().Str("kind", string(ev.Kind)).Int("index", ev.Index).Msg("event queue full, dropping")
	}
}

func (b *Bus) forward() {
	defer b.wg.Done()

	for {
		select {
		case <-b.done:
			return
		case ev := <-b.queue:
			payload, err := json.Marshal(ev)
			if err != nil {
				b.log.Error().Err(err).Msg("encode event")
				continue
			}
			msg := message.NewMessage(uuid.NewString(), payload)
			msg.Metadata.Set("kind", string(ev.Kind))
			if err := b.pubsub.Publish(Topic, msg); err != nil {
				select {
				case <-b.done:
					return
				default:
				}
				b.log.Error().Err(err).Str("kind", string(ev.Kind)).Msg("publish event")
			}
		}
	}
}

// Subscribe returns a channel of events published after the call. The
// channel is closed when ctx ends or the bus is closed. The subscriber must
// keep reading; a stalled subscriber stalls delivery to everyone.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, error) {
	select {
	case <-b.done:
		return nil, ErrClosed
	default:
	}

	msgs, err := b.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, errors.Wrap(err, "events: subscribe")
	}

	out := make(chan Event, 64)
	go func() {
		defer close(out)
		for msg := range msgs {
			var ev Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				b.log.Error().Err(err).Str("uuid", msg.UUID).Msg("decode event")
				msg.Ack()
				continue
			}
			select {
			case out <- ev:
				msg.Ack()
			case <-ctx.Done():
				msg.Ack()
				return
			}
		}
	}()

	return out, nil
}

// Close stops the forwarder and closes every subscription. Events still
// queued are discarded.
func (b *Bus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		err = b.pubsub.Close()
		b.wg.Wait()
	})
	return errors.Wrap(err, "events: close")
}
