// Package origin handles the source page: it hands the destination over to
// the gate and moves the browser there.
package origin

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/ace221390/work.ink/internal/flow"
	"github.com/ace221390/work.ink/internal/page"
	"github.com/ace221390/work.ink/internal/store"
	"go.uber.org/zap"
)

// ErrNoGate is returned when the gate root is not an absolute URL.
var ErrNoGate = errors.New("gate root must be an absolute URL")

// Settings holds the origin handler's parameters.
type Settings struct {
	// Param is the query parameter carrying the destination on the origin page.
	Param string
	// GateRoot is where the browser goes once the destination is handed off.
	GateRoot string
	// FallbackParam carries the destination in the gate URL when the store write fails.
	FallbackParam string
}

// Handler runs the origin step for one page load.
type Handler struct {
	param         string
	fallbackParam string
	gate          *url.URL
	handoff       *store.Handoff
	logger        *zap.Logger
}

func NewHandler(s Settings, handoff *store.Handoff, logger *zap.Logger) (*Handler, error) {
	gate, err := url.Parse(s.GateRoot)
	if err != nil || !gate.IsAbs() || gate.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrNoGate, s.GateRoot)
	}
	return &Handler{
		param:         s.Param,
		fallbackParam: s.FallbackParam,
		gate:          gate,
		handoff:       handoff,
		logger:        logger.Named("origin"),
	}, nil
}

// GateRoot returns the gate root URL.
func (h *Handler) GateRoot() string { return h.gate.String() }

// Handle extracts the destination from p, stores it and navigates to the gate.
// The store is written once; on failure the destination travels in the gate
// URL instead.
func (h *Handler) Handle(ctx context.Context, p page.Page) flow.Outcome {
	logger := h.logger.With(zap.String("url", p.URL().String()))

	raw := flow.QueryValue(p.URL(), h.param)
	if raw == "" {
		logger.Debug("No destination parameter", zap.String("param", h.param))
		return flow.Outcome{Kind: flow.NoOp}
	}
	dest := decodeOnce(raw)
	logger = logger.With(zap.String("destination", dest))

	if err := h.handoff.Put(ctx, dest); err != nil {
		logger.Warn("Store unavailable, passing destination in the gate URL", zap.Error(err))
		target := h.fallbackURL(dest)
		if nerr := p.Navigate(ctx, target); nerr != nil {
			logger.Error("Fallback navigation failed", zap.Error(nerr))
			return flow.Outcome{Kind: flow.Failed, Destination: dest, Target: target, Source: "query", Err: nerr}
		}
		return flow.Outcome{Kind: flow.FallbackNavigated, Destination: dest, Target: target, Source: "query"}
	}

	target := h.GateRoot()
	if err := p.Replace(ctx, target); err != nil {
		logger.Error("Navigation to gate failed", zap.Error(err))
		return flow.Outcome{Kind: flow.Failed, Destination: dest, Target: target, Source: "store", Err: err}
	}
	logger.Info("Destination handed off, moving to gate")
	return flow.Outcome{Kind: flow.Navigated, Destination: dest, Target: target, Source: "store"}
}

// fallbackURL returns the gate root with dest in the fallback parameter.
func (h *Handler) fallbackURL(dest string) string {
	u := *h.gate
	q := u.Query()
	q.Set(h.fallbackParam, dest)
	u.RawQuery = q.Encode()
	return u.String()
}

// decodeOnce undoes one level of percent-encoding, keeping raw on malformed input.
func decodeOnce(raw string) string {
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
