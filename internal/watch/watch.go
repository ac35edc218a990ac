// Package watch waits for a page condition by racing push signals, a poll
// ticker and a deadline. Whichever fires first with the condition satisfied
// resolves the wait; everything is torn down before Until returns.
package watch

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Trigger says what resolved a wait.
type Trigger string

const (
	Immediate Trigger = "immediate"
	Signal    Trigger = "signal"
	Poll      Trigger = "poll"
	Timeout   Trigger = "timeout"
	Canceled  Trigger = "canceled"
)

// Satisfied reports whether the condition was met, as opposed to the wait ending.
func (t Trigger) Satisfied() bool {
	return t == Immediate || t == Signal || t == Poll
}

// Source subscribes to change signals. The returned channel must be closed
// once ctx is done.
type Source func(ctx context.Context) (<-chan struct{}, error)

// Options configures a wait.
type Options struct {
	// Source is optional. If it fails to subscribe the wait polls only.
	Source   Source
	Interval time.Duration
	Timeout  time.Duration
	Logger   *zap.Logger
}

// Until evaluates check now, then after every signal and poll tick, until
// check reports true, the timeout elapses or ctx is done.
func Until[T any](ctx context.Context, opts Options, check func(context.Context) (T, bool)) (T, Trigger) {
	var zero T
	if ctx.Err() != nil {
		return zero, Canceled
	}
	if v, ok := check(ctx); ok {
		return v, Immediate
	}
	if opts.Timeout <= 0 {
		return zero, Timeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	wctx, cancel := context.WithCancel(ctx)
	var signals <-chan struct{}
	if opts.Source != nil {
		ch, err := opts.Source(wctx)
		if err != nil {
			logger.Warn("Observer unavailable, polling only", zap.Error(err))
		} else {
			signals = ch
		}
	}
	sub := signals
	defer func() {
		cancel()
		// Wait for the subscription to close so no signal outlives the wait.
		if sub != nil {
			for range sub {
			}
		}
	}()

	// A change between the first check and the subscription raises no signal.
	if sub != nil {
		if v, ok := check(ctx); ok {
			return v, Signal
		}
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = opts.Timeout
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(opts.Timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return zero, Canceled
		case <-deadline.C:
			return zero, Timeout
		case _, open := <-signals:
			if !open {
				signals = nil
				continue
			}
			if v, ok := check(ctx); ok {
				return v, Signal
			}
		case <-ticker.C:
			if v, ok := check(ctx); ok {
				return v, Poll
			}
		}
	}
}
