// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream delivers simulated response text into a conversation turn.
//
// A Controller fetches a bounded word sequence from a text source, then
// releases it in fixed-size chunks on a repeating timer. Chunks are buffered
// and written to the sink at most once per rendering frame, so the word rate
// and the redraw rate are independent.
//
// # Sessions
//
// Every Stream or Stop call advances a monotonic session identifier. All
// timer, frame and fetch callbacks carry the identifier they were created
// with and do nothing once it is stale. Teardown of the previous session is
// synchronous with respect to controller state.
//
// # Scheduling
//
// Timing is provided by a Scheduler. Realtime uses wall-clock tickers and a
// frame clock; Manual is advanced explicitly and is meant for tests.
//
// # Usage
//
//	ctrl := stream.New(stream.Config{
//	    Source: textsource.Default(),
//	    Sink:   st,
//	})
//	defer ctrl.Close()
//	ctrl.Stream(ctx, st.Append(model.Turn{Me: "hello"}))
package stream
