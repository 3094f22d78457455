// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the in-memory conversation log.
//
// The log is an ordered sequence of turns addressed by index. Every mutation
// bumps a version counter and publishes a change event once the lock is
// released. Out-of-range updates and removals are silent no-ops.
package store
