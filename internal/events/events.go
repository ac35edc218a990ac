// Package events publishes one record per handled page load.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/ace221390/work.ink/internal/flow"
	"go.uber.org/zap"
)

// Report describes how one page load was handled.
type Report struct {
	VisitID   string        `json:"visit_id"`
	TabID     string        `json:"tab_id"`
	URL       string        `json:"url"`
	Role      string        `json:"role"`
	Outcome   flow.Outcome  `json:"outcome"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Publisher delivers reports somewhere.
type Publisher interface {
	Publish(ctx context.Context, r Report) error
}

// Func adapts a function to a Publisher.
type Func func(ctx context.Context, r Report) error

func (f Func) Publish(ctx context.Context, r Report) error { return f(ctx, r) }

// Multi fans a report out to every publisher.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, r Report) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogPublisher writes reports to the log.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.Named("events")}
}

func (l *LogPublisher) Publish(_ context.Context, r Report) error {
	fields := []zap.Field{
		zap.String("visit_id", r.VisitID),
		zap.String("tab_id", r.TabID),
		zap.String("role", r.Role),
		zap.String("url", r.URL),
		zap.String("outcome", string(r.Outcome.Kind)),
		zap.Duration("duration", r.Duration),
	}
	if r.Outcome.Destination != "" {
		fields = append(fields, zap.String("destination", r.Outcome.Destination))
	}
	if r.Outcome.Tier != "" {
		fields = append(fields, zap.String("tier", r.Outcome.Tier))
	}
	if r.Error != "" {
		fields = append(fields, zap.String("error", r.Error))
	}

	switch r.Outcome.Kind {
	case flow.Ignored:
		l.logger.Debug("Page load ignored", fields...)
	case flow.Failed, flow.InvalidDestination:
		l.logger.Warn("Page load handled", fields...)
	default:
		l.logger.Info("Page load handled", fields...)
	}
	return nil
}
