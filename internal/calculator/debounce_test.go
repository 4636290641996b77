package calculator_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-metal/internal/calculator"
)

func TestDebouncerRunsOnlyLatest(t *testing.T) {
	d := calculator.NewDebouncer(30 * time.Millisecond)
	var first, second atomic.Int32

	d.Schedule(func() { first.Add(1) })
	d.Schedule(func() { second.Add(1) })
	require.True(t, d.Pending())

	require.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Zero(t, first.Load())
	require.EqualValues(t, 1, second.Load())
	require.False(t, d.Pending())
}

func TestDebouncerCancel(t *testing.T) {
	d := calculator.NewDebouncer(20 * time.Millisecond)
	var calls atomic.Int32
	d.Schedule(func() { calls.Add(1) })

	require.True(t, d.Cancel())
	require.False(t, d.Cancel())
	time.Sleep(50 * time.Millisecond)
	require.Zero(t, calls.Load())
}

func TestDebouncerFlush(t *testing.T) {
	d := calculator.NewDebouncer(time.Hour)
	var calls atomic.Int32
	d.Schedule(func() { calls.Add(1) })

	require.True(t, d.Flush())
	require.EqualValues(t, 1, calls.Load())
	require.False(t, d.Flush())
	require.False(t, d.Pending())
}
