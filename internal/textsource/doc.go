// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package textsource supplies deterministic word sequences for simulated
// responses and fixture history.
//
// A Corpus repeats a fixed word list with wraparound: element i of
// Words(ctx, n) is corpus[i mod L]. There is no shared cursor, so the same
// count always yields the same words.
//
// # Usage
//
//	words, err := textsource.Default().Words(ctx, 7)
//
// Simulate a slow backend:
//
//	p := textsource.WithLatency(textsource.Default(), 200*time.Millisecond)
package textsource
