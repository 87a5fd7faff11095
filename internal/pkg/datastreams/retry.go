package datastreams

import (
	"context"
	"errors"
	"time"

	logs "github.com/danmuck/smplog"
	"github.com/ohowland/sestream/internal/pkg/clock"
)

// Dial makes a single connection attempt. Failures are always a *ConnectionFailure.
func Dial(ctx context.Context, client Client) error {
	err := client.Connect(ctx)
	if err == nil {
		return nil
	}
	var failure *ConnectionFailure
	if errors.As(err, &failure) {
		return err
	}
	return &ConnectionFailure{Addr: client.Addr(), Err: err}
}

// ConnectRetry dials until the client is up, sleeping backoff on clk between
// failed attempts. It only returns an error once ctx is done. attempt, when
// not nil, sees the outcome of every try.
func ConnectRetry(ctx context.Context, client Client, backoff time.Duration, clk clock.Clock,
	attempt func(n int, err error)) error {
	if clk == nil {
		clk = clock.Real{}
	}
	for n := 1; ; n++ {
		err := Dial(ctx, client)
		if attempt != nil {
			attempt(n, err)
		}
		if err == nil {
			logs.Infof("[Datastreams] connected to %s after %d attempt(s)", client.Addr(), n)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logs.Errorf(err, "[Datastreams] connection attempt %d failed, retrying in %v", n, backoff)
		if err := clk.Sleep(ctx, backoff); err != nil {
			return err
		}
	}
}
