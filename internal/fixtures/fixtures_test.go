// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package fixtures

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/textsource"
)

func numbered(n int) []string {
	words := make([]string, n)
	for i := range words {
		words[i] = "w" + strconv.Itoa(i)
	}
	return words
}

func flatten(groups [][]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// =============================================================================
// CHUNKING TESTS
// =============================================================================

func TestWordsToSentences_Bounds(t *testing.T) {
	tests := []struct {
		name     string
		words    int
		minWords int
		maxWords int
	}{
		{"defaults", 5000, DefaultMinWords, DefaultMaxWords},
		{"fixed size", 103, 7, 7},
		{"max below min", 250, 20, 5},
		{"zero min", 64, 0, 3},
		{"fewer words than min", 4, 10, 100},
		{"exact multiple", 100, 10, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			words := numbered(tc.words)
			lo, hi := Bounds(tc.minWords, tc.maxWords)
			groups := NewChunker(42).WordsToSentences(words, tc.minWords, tc.maxWords)

			require.NotEmpty(t, groups)
			assert.Equal(t, words, flatten(groups), "groups must reproduce input")

			for i, g := range groups {
				last := i == len(groups)-1
				if last && len(g) < lo {
					continue
				}
				assert.GreaterOrEqual(t, len(g), lo, "group %d", i)
				assert.LessOrEqual(t, len(g), hi, "group %d", i)
			}
		})
	}
}

func TestWordsToSentences_ShortLastGroupOnlyWhenRemainderBelowMin(t *testing.T) {
	groups := NewChunker(7).WordsToSentences(numbered(995), 10, 100)

	for i, g := range groups[:len(groups)-1] {
		assert.GreaterOrEqual(t, len(g), 10, "group %d", i)
	}
}

func TestWordsToSentences_Empty(t *testing.T) {
	assert.Empty(t, WordsToSentences(nil, 10, 100))
}

func TestWordsToSentences_SeedIsReproducible(t *testing.T) {
	words := numbered(2000)
	a := NewChunker(99).WordsToSentences(words, 10, 100)
	b := NewChunker(99).WordsToSentences(words, 10, 100)
	assert.Equal(t, a, b)
}

func TestWordsToSentences_GroupsDoNotAlias(t *testing.T) {
	words := numbered(30)
	groups := NewChunker(1).WordsToSentences(words, 10, 10)
	require.Len(t, groups, 3)

	groups[0] = append(groups[0], "extra")
	assert.Equal(t, "w10", groups[1][0])
}

func TestBounds(t *testing.T) {
	lo, hi := Bounds(-3, -9)
	assert.Equal(t, 1, lo)
	assert.Equal(t, 1, hi)

	lo, hi = Bounds(10, 100)
	assert.Equal(t, 10, lo)
	assert.Equal(t, 100, hi)
}

// =============================================================================
// TURN PAIRING TESTS
// =============================================================================

func TestSentencesToConversation(t *testing.T) {
	tests := []struct {
		name      string
		sentences [][]string
		want      []model.Turn
	}{
		{
			name:      "odd count leaves empty response",
			sentences: [][]string{{"a", "b"}, {"c"}, {"d", "e"}},
			want:      []model.Turn{{Me: "a b", You: "c"}, {Me: "d e", You: ""}},
		},
		{
			name:      "empty trailing pair dropped",
			sentences: [][]string{{"a"}, {"b"}, {}, {}},
			want:      []model.Turn{{Me: "a", You: "b"}},
		},
		{
			name:      "empty me with response kept",
			sentences: [][]string{{}, {"x"}},
			want:      []model.Turn{{Me: "", You: "x"}},
		},
		{
			name:      "no input",
			sentences: nil,
			want:      []model.Turn{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SentencesToConversation(tc.sentences))
		})
	}
}

// =============================================================================
// GENERATE TESTS
// =============================================================================

func TestGenerate(t *testing.T) {
	opts := DefaultOptions()
	opts.HistoryWords = 1000
	opts.Seed = 5

	turns, err := Generate(context.Background(), textsource.Default(), opts)
	require.NoError(t, err)
	require.NotEmpty(t, turns)

	var words []string
	for _, turn := range turns {
		words = append(words, strings.Fields(turn.Me)...)
		words = append(words, strings.Fields(turn.You)...)
	}
	assert.Len(t, words, 1000)

	again, err := Generate(context.Background(), textsource.Default(), opts)
	require.NoError(t, err)
	assert.Equal(t, turns, again)
}

func TestGenerate_PropagatesSourceError(t *testing.T) {
	boom := errors.New("boom")
	src := textsource.ProviderFunc(func(context.Context, int) ([]string, error) {
		return nil, boom
	})

	_, err := Generate(context.Background(), src, DefaultOptions())
	assert.True(t, errors.Is(err, boom))
}

func TestGenerate_NilSource(t *testing.T) {
	_, err := Generate(context.Background(), nil, DefaultOptions())
	assert.Error(t, err)
}
