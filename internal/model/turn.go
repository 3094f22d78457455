// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "strings"

// =============================================================================
// TURN TYPE
// =============================================================================

// Turn is one user message and its response text so far.
// You grows monotonically while a response is streamed into it.
type Turn struct {
	Me  string `json:"me"`
	You string `json:"you"`
}

// IsEmpty reports whether both sides of the turn are empty.
func (t Turn) IsEmpty() bool {
	return t.Me == "" && t.You == ""
}

// Apply returns a copy of the turn with the non-nil patch fields applied.
func (t Turn) Apply(p TurnPatch) Turn {
	if p.Me != nil {
		t.Me = *p.Me
	}
	if p.You != nil {
		t.You = *p.You
	}
	return t
}

// WordCount returns the number of whitespace-separated words in the response.
func (t Turn) WordCount() int {
	return len(strings.Fields(t.You))
}

// =============================================================================
// TURN PATCH
// =============================================================================

// TurnPatch is a partial update of a Turn.
type TurnPatch struct {
	Me  *string `json:"me,omitempty"`
	You *string `json:"you,omitempty"`
}

// PatchYou returns a patch that replaces only the response text.
func PatchYou(you string) TurnPatch {
	return TurnPatch{You: &you}
}

// PatchMe returns a patch that replaces only the user message.
func PatchMe(me string) TurnPatch {
	return TurnPatch{Me: &me}
}

// IsZero reports whether the patch changes nothing.
func (p TurnPatch) IsZero() bool {
	return p.Me == nil && p.You == nil
}

// CloneTurns returns a copy of turns that shares no backing array with the input.
func CloneTurns(turns []Turn) []Turn {
	if turns == nil {
		return nil
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
