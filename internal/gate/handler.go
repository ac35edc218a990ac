// Package gate walks the gate page: it waits for the challenge to clear,
// activates the consent control and sends the browser to the destination.
package gate

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ace221390/work.ink/internal/actuator"
	"github.com/ace221390/work.ink/internal/dom"
	"github.com/ace221390/work.ink/internal/flow"
	"github.com/ace221390/work.ink/internal/humanoid"
	"github.com/ace221390/work.ink/internal/locator"
	"github.com/ace221390/work.ink/internal/page"
	"github.com/ace221390/work.ink/internal/store"
	"github.com/ace221390/work.ink/internal/watch"
	"go.uber.org/zap"
)

// Settings holds the gate handler's parameters.
type Settings struct {
	// FallbackParam is the query parameter carrying the destination when the store failed.
	FallbackParam  string
	SearchInterval time.Duration
	SearchTimeout  time.Duration
	// SettleDelay is waited between the activation and the final navigation.
	SettleDelay time.Duration
}

// Handler runs the gate state machine for one page load at a time.
type Handler struct {
	settings Settings
	handoff  *store.Handoff
	detector *Detector
	locator  *locator.Locator
	actuator *actuator.Actuator
	logger   *zap.Logger
}

func NewHandler(s Settings, handoff *store.Handoff, d *Detector, l *locator.Locator, a *actuator.Actuator, logger *zap.Logger) *Handler {
	return &Handler{
		settings: s,
		handoff:  handoff,
		detector: d,
		locator:  l,
		actuator: a,
		logger:   logger.Named("gate"),
	}
}

// visit is the state of one gate page load.
type visit struct {
	h       *Handler
	page    page.Page
	dest    string
	source  string
	logger  *zap.Logger
	outcome flow.Outcome
	// completed guards the locate/activate/navigate continuation.
	completed atomic.Bool
}

// Handle runs AcquireDestination, AwaitChallenge, LocateAndActivate and
// FinalNavigation against p.
func (h *Handler) Handle(ctx context.Context, p page.Page) flow.Outcome {
	v := &visit{h: h, page: p, logger: h.logger.With(zap.String("url", p.URL().String()))}

	raw, source := v.acquire(ctx)
	if raw == "" {
		v.logger.Debug("No pending destination")
		return flow.Outcome{Kind: flow.NoOp}
	}

	dest, err := flow.Normalize(raw, p.URL())
	if err != nil {
		v.logger.Error("Destination URL looks invalid", zap.String("destination", raw), zap.Error(err))
		if cerr := h.handoff.Clear(ctx); cerr != nil {
			v.logger.Warn("Failed to clear invalid destination", zap.Error(cerr))
		}
		return flow.Outcome{Kind: flow.InvalidDestination, Destination: raw, Source: source, Err: err}
	}
	v.dest, v.source = dest, source
	v.logger = v.logger.With(zap.String("destination", dest), zap.String("source", source))

	trig := h.detector.WaitReady(ctx, p)
	if trig == watch.Canceled {
		return v.aborted(ctx.Err())
	}

	out, _ := v.proceed(ctx)
	out.Challenge = string(trig)
	return out
}

// acquire reads the store once, then the query fallback.
func (v *visit) acquire(ctx context.Context) (string, string) {
	pending, err := v.h.handoff.Pending(ctx)
	if err != nil {
		v.logger.Warn("Store read failed, treating as absent", zap.Error(err))
	}
	if pending != "" {
		return pending, "store"
	}
	if q := flow.QueryValue(v.page.URL(), v.h.settings.FallbackParam); q != "" {
		return q, "query"
	}
	return "", ""
}

// proceed runs the completion path. Only the first call does anything; later
// calls report false.
func (v *visit) proceed(ctx context.Context) (flow.Outcome, bool) {
	if !v.completed.CompareAndSwap(false, true) {
		return flow.Outcome{}, false
	}

	tier := actuator.TierNone
	el, trig := v.locate(ctx)
	switch {
	case trig == watch.Canceled:
		return v.aborted(ctx.Err()), true
	case trig.Satisfied():
		res := v.h.actuator.Activate(ctx, v.page.Control(el))
		tier = res.Tier
	default:
		v.logger.Warn("Consent control not found, navigating anyway",
			zap.Duration("searched", v.h.settings.SearchTimeout))
	}

	out := v.finish(ctx)
	out.Tier = string(tier)
	return out, true
}

// locate searches now, then on every mutation and poll tick, until the search bound.
func (v *visit) locate(ctx context.Context) (dom.Element, watch.Trigger) {
	opts := watch.Options{
		Source:   v.page.ObserveMutations,
		Interval: v.h.settings.SearchInterval,
		Timeout:  v.h.settings.SearchTimeout,
		Logger:   v.logger,
	}
	return watch.Until(ctx, opts, func(ctx context.Context) (dom.Element, bool) {
		doc, err := v.page.Snapshot(ctx)
		if err != nil {
			v.logger.Debug("Snapshot failed", zap.Error(err))
			return dom.Element{}, false
		}
		return v.h.locator.Locate(doc)
	})
}

// finish clears the slot, lets the page settle and navigates to the destination.
func (v *visit) finish(ctx context.Context) flow.Outcome {
	if err := v.h.handoff.Clear(ctx); err != nil {
		v.logger.Warn("Failed to clear pending destination", zap.Error(err))
	}

	if err := humanoid.SleepContext(ctx, v.h.settings.SettleDelay); err != nil {
		return v.aborted(err)
	}

	if err := v.page.Navigate(ctx, v.dest); err != nil {
		v.logger.Error("Final navigation failed", zap.Error(err))
		return flow.Outcome{Kind: flow.Failed, Destination: v.dest, Source: v.source, Err: err}
	}
	v.logger.Info("Redirected to destination")
	return flow.Outcome{Kind: flow.Redirected, Destination: v.dest, Target: v.dest, Source: v.source}
}

func (v *visit) aborted(err error) flow.Outcome {
	v.logger.Debug("Gate visit aborted", zap.Error(err))
	return flow.Outcome{Kind: flow.Aborted, Destination: v.dest, Source: v.source, Err: err}
}
