// Package actuator activates a located control, escalating from the
// element's own activation to simulated pointer input to the keyboard.
package actuator

import (
	"context"
	"fmt"
	"time"

	"github.com/ace221390/work.ink/internal/humanoid"
	"github.com/ace221390/work.ink/internal/page"
	"go.uber.org/zap"
)

// ErrUnsupported is reported by a tier the control cannot perform.
var ErrUnsupported = page.ErrUnsupported

// Tier names an activation strategy.
type Tier string

const (
	TierNone     Tier = "none"
	TierDirect   Tier = "direct"
	TierPointer  Tier = "pointer"
	TierKeyboard Tier = "keyboard"
)

// Attempt is one failed tier.
type Attempt struct {
	Tier Tier
	Err  error
}

// Result describes an activation. Tier is TierNone when every tier failed.
type Result struct {
	Tier     Tier
	Failures []Attempt
}

// Activated reports whether any tier succeeded.
func (r Result) Activated() bool { return r.Tier != TierNone }

// Actuator runs the activation chain.
type Actuator struct {
	logger      *zap.Logger
	motor       humanoid.Config
	stepTimeout time.Duration
}

// New creates an Actuator. stepTimeout bounds each tier; zero means 5s.
func New(logger *zap.Logger, motor humanoid.Config, stepTimeout time.Duration) *Actuator {
	if stepTimeout <= 0 {
		stepTimeout = 5 * time.Second
	}
	return &Actuator{logger: logger.Named("actuator"), motor: motor, stepTimeout: stepTimeout}
}

// Activate tries each tier in order and stops at the first success. It never
// fails: total failure is logged and reported through the Result.
func (a *Actuator) Activate(ctx context.Context, c page.Control) Result {
	// Best effort; a control that cannot scroll or focus may still activate.
	if err := a.step(ctx, c.ScrollIntoView); err != nil {
		a.logger.Debug("Scroll into view failed", zap.Error(err))
	}
	if err := a.step(ctx, c.Focus); err != nil {
		a.logger.Debug("Focus failed", zap.Error(err))
	}

	var res Result
	tiers := []struct {
		tier Tier
		run  func(context.Context) error
	}{
		{TierDirect, c.Activate},
		{TierPointer, func(ctx context.Context) error { return a.pointer(ctx, c) }},
		{TierKeyboard, func(ctx context.Context) error { return c.PressKey(ctx, page.Enter) }},
	}
	for _, t := range tiers {
		if ctx.Err() != nil {
			res.Failures = append(res.Failures, Attempt{Tier: t.tier, Err: ctx.Err()})
			break
		}
		err := a.step(ctx, t.run)
		if err == nil {
			res.Tier = t.tier
			a.logger.Info("Control activated", zap.String("tier", string(t.tier)), zap.Int("fallbacks", len(res.Failures)))
			return res
		}
		a.logger.Debug("Activation tier failed", zap.String("tier", string(t.tier)), zap.Error(err))
		res.Failures = append(res.Failures, Attempt{Tier: t.tier, Err: err})
	}

	res.Tier = TierNone
	a.logger.Warn("All activation tiers failed", zap.Errors("errors", res.errors()))
	return res
}

// pointer hovers to the control center and presses and releases the primary button.
func (a *Actuator) pointer(ctx context.Context, c page.Control) error {
	center, err := c.Center(ctx)
	if err != nil {
		return fmt.Errorf("resolve control center: %w", err)
	}
	return humanoid.New(a.motor, a.logger, c).Click(ctx, center)
}

func (a *Actuator) step(ctx context.Context, fn func(context.Context) error) error {
	sctx, cancel := context.WithTimeout(ctx, a.stepTimeout)
	defer cancel()
	return fn(sctx)
}

func (r Result) errors() []error {
	out := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, fmt.Errorf("%s: %w", f.Tier, f.Err))
	}
	return out
}
