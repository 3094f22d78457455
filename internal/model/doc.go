// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversation turns.
//
// A Turn pairs one user message with its (possibly partial) response. Turns
// carry no identity of their own: they are addressed by their position in the
// conversation log.
//
// # Key Types
//
//   - Turn: One user message (Me) and the response text so far (You)
//   - TurnPatch: Partial update applied to a Turn; nil fields are untouched
//
// # Usage
//
//	turn := model.Turn{Me: "hello"}
//	turn = turn.Apply(model.PatchYou("lorem ipsum"))
package model
