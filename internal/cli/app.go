// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jeranaias/streamchat/internal/config"
	"github.com/jeranaias/streamchat/internal/conversation"
	"github.com/jeranaias/streamchat/internal/events"
	"github.com/jeranaias/streamchat/internal/logging"
	"github.com/jeranaias/streamchat/internal/store"
	"github.com/jeranaias/streamchat/internal/stream"
	"github.com/jeranaias/streamchat/internal/textsource"
)

// app is the wired conversation stack one command runs on.
type app struct {
	cfg    *config.Config
	path   string
	log    zerolog.Logger
	closer io.Closer

	bus   *events.Bus
	store *store.Store
	ctrl  *stream.Controller
	svc   *conversation.Service
}

// newApp loads configuration, sets up logging and builds the stack.
func newApp(cmd *cobra.Command, opts *globalOptions, mode logging.Mode) (*app, error) {
	cfg, path, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}
	log, closer, err := logging.Setup(cfg.Log, mode)
	if err != nil {
		return nil, err
	}

	a := buildApp(cfg, log, stream.NewRealtime(cfg.Stream.FrameInterval()))
	a.path = path
	a.closer = closer
	a.log.Debug().Str("config", path).Msg("stack ready")
	return a, nil
}

// buildApp wires the bus, store, controller and service for cfg.
func buildApp(cfg *config.Config, log zerolog.Logger, sched stream.Scheduler) *app {
	bus := events.NewBus(log, events.DefaultQueueSize)
	st := store.New(bus)
	corpus := textsource.Default()

	ctrl := stream.New(stream.Config{
		Source:    textsource.WithLatency(corpus, cfg.Stream.FetchLatency()),
		Sink:      st,
		Scheduler: sched,
		Listener:  events.StreamListener{Publisher: bus},
		Logger:    log,
		Options:   cfg.Stream.Options(),
	})

	svc := conversation.New(conversation.Config{
		Store:    st,
		Streamer: ctrl,
		History:  corpus,
		Fixtures: cfg.Fixtures.Options(),
		Logger:   log,
	})

	return &app{
		cfg:   cfg,
		log:   log,
		bus:   bus,
		store: st,
		ctrl:  ctrl,
		svc:   svc,
	}
}

// applyConfig pushes a reloaded configuration into the running stack.
// Stream options take effect from the next response; the frame clock and
// fetch latency are fixed for the life of the process.
func (a *app) applyConfig(cfg *config.Config) {
	a.ctrl.SetOptions(cfg.Stream.Options())
	if cfg.Stream.FrameIntervalMs != a.cfg.Stream.FrameIntervalMs ||
		cfg.Stream.FetchLatencyMs != a.cfg.Stream.FetchLatencyMs {
		a.log.Warn().Msg("frame_interval_ms and fetch_latency_ms apply after restart")
	}
	a.log.Info().
		Int("word_count", cfg.Stream.WordCount).
		Int("chunk_size", cfg.Stream.ChunkSize).
		Int("tick_interval_ms", cfg.Stream.TickIntervalMs).
		Msg("stream options updated")
}

// Close stops any stream and releases the bus and log file.
func (a *app) Close() error {
	a.ctrl.Close()
	err := a.bus.Close()
	if a.closer != nil {
		if cerr := a.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
