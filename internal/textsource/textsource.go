// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package textsource

import (
	"context"
	_ "embed"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrEmptyCorpus is returned when a corpus would contain no words.
var ErrEmptyCorpus = errors.New("textsource: corpus is empty")

//go:embed lorem.txt
var loremText string

// Provider supplies a word sequence of a requested length.
type Provider interface {
	Words(ctx context.Context, count int) ([]string, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, count int) ([]string, error)

// Words calls f(ctx, count).
func (f ProviderFunc) Words(ctx context.Context, count int) ([]string, error) {
	return f(ctx, count)
}

// NormalizeCount clamps a requested word count to at least one.
func NormalizeCount(count int) int {
	if count < 1 {
		return 1
	}
	return count
}

// =============================================================================
// CORPUS
// =============================================================================

// Corpus is a fixed, pre-tokenized word list. It is immutable after creation
// and safe for concurrent use.
type Corpus struct {
	words []string
}

// NewCorpus creates a corpus from words. Empty words are dropped.
func NewCorpus(words []string) (*Corpus, error) {
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		return nil, ErrEmptyCorpus
	}
	return &Corpus{words: kept}, nil
}

// ParseCorpus tokenizes text on whitespace.
func ParseCorpus(text string) (*Corpus, error) {
	return NewCorpus(strings.Fields(text))
}

var (
	defaultCorpus     *Corpus
	defaultCorpusOnce sync.Once
)

// Default returns the embedded lorem ipsum corpus.
func Default() *Corpus {
	defaultCorpusOnce.Do(func() {
		c, err := ParseCorpus(loremText)
		if err != nil {
			panic("textsource: embedded corpus is empty")
		}
		defaultCorpus = c
	})
	return defaultCorpus
}

// Len returns the number of words in the corpus.
func (c *Corpus) Len() int {
	return len(c.words)
}

// Words returns exactly NormalizeCount(count) words drawn from the corpus
// with wraparound. It fails only when ctx is already done.
func (c *Corpus) Words(ctx context.Context, count int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "textsource: words")
	}

	n := NormalizeCount(count)
	out := make([]string, n)
	for i := range out {
		out[i] = c.words[i%len(c.words)]
	}
	return out, nil
}

// =============================================================================
// LATENCY WRAPPER
// =============================================================================

type latencyProvider struct {
	next  Provider
	delay time.Duration
}

// WithLatency delays every fetch from p by d. The delay is abandoned with
// ctx's error if ctx ends first. A non-positive d returns p unchanged.
func WithLatency(p Provider, d time.Duration) Provider {
	if d <= 0 {
		return p
	}
	return &latencyProvider{next: p, delay: d}
}

func (l *latencyProvider) Words(ctx context.Context, count int) ([]string, error) {
	timer := time.NewTimer(l.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "textsource: fetch cancelled")
	case <-timer.C:
	}
	return l.next.Words(ctx, count)
}
