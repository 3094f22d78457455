// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package events carries conversation and stream change notifications.
//
// Bus wraps an in-memory watermill pub/sub. Publish never blocks: events are
// queued and forwarded by a single goroutine, and each subscriber sees them
// in publish order. Events only say what changed; readers fetch the current
// state from the store.
package events
