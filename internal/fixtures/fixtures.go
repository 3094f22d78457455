// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package fixtures

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/textsource"
)

const (
	// DefaultMinWords is the default lower bound of a group size.
	DefaultMinWords = 10

	// DefaultMaxWords is the default upper bound of a group size.
	DefaultMaxWords = 100

	// DefaultHistoryWords is the number of words used to fabricate history.
	DefaultHistoryWords = 100000
)

// =============================================================================
// CHUNKER
// =============================================================================

// Chunker splits word sequences into random-length groups.
// It is not safe for concurrent use.
type Chunker struct {
	Rand *rand.Rand
}

// NewChunker returns a Chunker. Seed 0 seeds from the clock, so grouping
// differs between runs; any other seed is reproducible.
func NewChunker(seed uint64) *Chunker {
	if seed == 0 {
		now := uint64(time.Now().UnixNano())
		return &Chunker{Rand: rand.New(rand.NewPCG(now, now>>1|1))}
	}
	return &Chunker{Rand: rand.New(rand.NewPCG(seed, seed))}
}

// Bounds returns the effective group size bounds for the requested ones.
func Bounds(minWords, maxWords int) (lo, hi int) {
	lo = max(1, minWords)
	hi = max(lo, maxWords)
	return lo, hi
}

func (c *Chunker) intn(lo, hi int) int {
	if c == nil || c.Rand == nil {
		return lo + rand.IntN(hi-lo+1)
	}
	return lo + c.Rand.IntN(hi-lo+1)
}

// WordsToSentences splits words into groups whose sizes are drawn uniformly
// from [min, max]. When fewer than min words remain they form a final, shorter
// group. Concatenating the groups reproduces words exactly.
func (c *Chunker) WordsToSentences(words []string, minWords, maxWords int) [][]string {
	lo, hi := Bounds(minWords, maxWords)
	var sentences [][]string

	for i := 0; i < len(words); {
		remaining := len(words) - i
		take := remaining
		if remaining >= lo {
			take = min(c.intn(lo, hi), remaining)
		}
		sentences = append(sentences, words[i:i+take:i+take])
		i += take
	}

	return sentences
}

// WordsToSentences splits words using the package-level random source.
func WordsToSentences(words []string, minWords, maxWords int) [][]string {
	return (*Chunker)(nil).WordsToSentences(words, minWords, maxWords)
}

// =============================================================================
// CONVERSATION ASSEMBLY
// =============================================================================

// SentencesToConversation pairs consecutive groups into turns. An odd trailing
// group becomes a turn with an empty response; pairs with both sides empty are
// skipped.
func SentencesToConversation(sentences [][]string) []model.Turn {
	turns := make([]model.Turn, 0, (len(sentences)+1)/2)

	for i := 0; i < len(sentences); i += 2 {
		me := sentences[i]
		var you []string
		if i+1 < len(sentences) {
			you = sentences[i+1]
		}
		if len(me) == 0 && len(you) == 0 {
			continue
		}
		turns = append(turns, model.Turn{
			Me:  strings.Join(me, " "),
			You: strings.Join(you, " "),
		})
	}

	return turns
}

// Options configures history generation.
type Options struct {
	HistoryWords int
	MinWords     int
	MaxWords     int
	Seed         uint64
}

// DefaultOptions returns the generation defaults.
func DefaultOptions() Options {
	return Options{
		HistoryWords: DefaultHistoryWords,
		MinWords:     DefaultMinWords,
		MaxWords:     DefaultMaxWords,
	}
}

// Generate fetches opts.HistoryWords words from src and assembles them into
// turns.
func Generate(ctx context.Context, src textsource.Provider, opts Options) ([]model.Turn, error) {
	if src == nil {
		return nil, errors.New("fixtures: nil text source")
	}
	words, err := src.Words(ctx, opts.HistoryWords)
	if err != nil {
		return nil, errors.Wrap(err, "fixtures: fetch words")
	}

	sentences := NewChunker(opts.Seed).WordsToSentences(words, opts.MinWords, opts.MaxWords)
	return SentencesToConversation(sentences), nil
}
