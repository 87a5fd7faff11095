package clock

import (
	"context"
	"errors"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestRealSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Real{}.Sleep(ctx, time.Hour)
	assert.Assert(t, errors.Is(err, context.Canceled))
	assert.Assert(t, time.Since(start) < time.Second)
}

func TestRealSleep(t *testing.T) {
	start := time.Now()
	assert.NilError(t, Real{}.Sleep(context.Background(), 10*time.Millisecond))
	assert.Assert(t, time.Since(start) >= 10*time.Millisecond)
}

func TestFake(t *testing.T) {
	start := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.OnSleep(func(n int, d time.Duration) {
		if n == 2 {
			cancel()
		}
	})

	assert.NilError(t, f.Sleep(ctx, 5*time.Second))
	assert.Assert(t, errors.Is(f.Sleep(ctx, 10*time.Second), context.Canceled))
	assert.Assert(t, errors.Is(f.Sleep(ctx, time.Second), context.Canceled))

	assert.DeepEqual(t, f.Sleeps(), []time.Duration{5 * time.Second, 10 * time.Second})
	assert.Equal(t, f.Now(), start.Add(15*time.Second))
}
