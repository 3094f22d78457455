// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package fixtures fabricates conversation history from a word sequence.
//
// Words are split into variable-length groups ("sentences") and consecutive
// groups are paired into turns. Group sizes are random; a Chunker built with
// a non-zero seed makes the grouping reproducible.
//
// # Usage
//
//	turns, err := fixtures.Generate(ctx, textsource.Default(), 100000, fixtures.NewChunker(0))
package fixtures
