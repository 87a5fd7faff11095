package clock

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time so retry and cadence behavior can run on simulated time.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the wall clock.
type Real struct{}

// Now returns time.Now.
func (Real) Now() time.Time {
	return time.Now()
}

// Sleep waits on a timer.
func (Real) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fake is a simulated clock. Sleep returns immediately after advancing Now.
type Fake struct {
	mux     *sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	onSleep func(n int, d time.Duration)
}

// NewFake returns a Fake clock set to start.
func NewFake(start time.Time) *Fake {
	return &Fake{mux: &sync.Mutex{}, now: start}
}

// OnSleep registers a hook called with the 1 based sleep count and duration.
func (f *Fake) OnSleep(hook func(n int, d time.Duration)) {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.onSleep = hook
}

// Now returns the simulated time.
func (f *Fake) Now() time.Time {
	f.mux.Lock()
	defer f.mux.Unlock()
	return f.now
}

// Sleep records d and advances the clock.
func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mux.Lock()
	f.now = f.now.Add(d)
	f.sleeps = append(f.sleeps, d)
	n := len(f.sleeps)
	hook := f.onSleep
	f.mux.Unlock()

	if hook != nil {
		hook(n, d)
	}
	return ctx.Err()
}

// Sleeps returns every recorded sleep in order.
func (f *Fake) Sleeps() []time.Duration {
	f.mux.Lock()
	defer f.mux.Unlock()
	return append([]time.Duration(nil), f.sleeps...)
}
