// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManual_TickAndCancel(t *testing.T) {
	m := NewManual()
	var n int
	cancel := m.Every(time.Second, func() { n++ })

	assert.Equal(t, 1, m.Tick())
	assert.Equal(t, 1, m.Tick())
	cancel()
	cancel()
	assert.Equal(t, 0, m.Tick())
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, m.Tickers())
}

func TestManual_FrameRunsOnlyEarlierRequests(t *testing.T) {
	m := NewManual()
	var order []string

	m.NextFrame(func() {
		order = append(order, "first")
		m.NextFrame(func() { order = append(order, "second") })
	})

	assert.Equal(t, 1, m.Frame())
	assert.Equal(t, []string{"first"}, order)
	assert.Equal(t, 1, m.Frames())

	assert.Equal(t, 1, m.Frame())
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestManual_CancelledFrameSkipped(t *testing.T) {
	m := NewManual()
	ran := false
	cancel := m.NextFrame(func() { ran = true })
	cancel()

	assert.Equal(t, 0, m.Frame())
	assert.False(t, ran)
}

func TestRealtime_EveryStops(t *testing.T) {
	r := NewRealtime(time.Millisecond)
	var n atomic.Int32
	cancel := r.Every(time.Millisecond, func() { n.Add(1) })

	require.Eventually(t, func() bool { return n.Load() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()
	cancel()

	time.Sleep(5 * time.Millisecond)
	after := n.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, after, n.Load())
}

func TestRealtime_NextFrameFiresOnce(t *testing.T) {
	r := NewRealtime(2 * time.Millisecond)
	var n atomic.Int32
	r.NextFrame(func() { n.Add(1) })

	require.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), n.Load())
}

func TestRealtime_NextFrameCancel(t *testing.T) {
	r := NewRealtime(20 * time.Millisecond)
	var n atomic.Int32
	cancel := r.NextFrame(func() { n.Add(1) })
	cancel()

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), n.Load())
}

func TestNewRealtime_DefaultFrame(t *testing.T) {
	assert.Equal(t, DefaultFrameInterval, NewRealtime(0).FrameInterval())
}
