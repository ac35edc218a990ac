package gate

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/ace221390/work.ink/internal/page"
	"github.com/ace221390/work.ink/internal/watch"
	"go.uber.org/zap"
)

// Detector decides when the interstitial challenge has cleared, judging by
// the document title.
type Detector struct {
	pattern  *regexp.Regexp
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewDetector compiles the challenge title pattern. Matching is case-insensitive.
func NewDetector(pattern string, interval, timeout time.Duration, logger *zap.Logger) (*Detector, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("compile challenge pattern: %w", err)
	}
	return &Detector{pattern: re, interval: interval, timeout: timeout, logger: logger.Named("detector")}, nil
}

// ChallengeActive reports whether title is the interstitial's title.
func (d *Detector) ChallengeActive(title string) bool {
	return d.pattern.MatchString(title)
}

// WaitReady blocks until the title stops matching, or the timeout elapses.
// Title changes, a poll and the deadline race; the first to fire wins and the
// others are torn down. Timeout is a normal way out: the caller proceeds.
func (d *Detector) WaitReady(ctx context.Context, p page.Page) watch.Trigger {
	opts := watch.Options{
		Source:   p.ObserveTitle,
		Interval: d.interval,
		Timeout:  d.timeout,
		Logger:   d.logger,
	}
	start := time.Now()
	_, trig := watch.Until(ctx, opts, func(ctx context.Context) (string, bool) {
		title, err := p.Title(ctx)
		if err != nil {
			d.logger.Debug("Title read failed", zap.Error(err))
			return "", false
		}
		return title, !d.ChallengeActive(title)
	})

	switch trig {
	case watch.Timeout:
		d.logger.Warn("Challenge did not clear in time, proceeding", zap.Duration("timeout", d.timeout))
	case watch.Canceled:
	default:
		d.logger.Debug("Challenge cleared", zap.String("trigger", string(trig)), zap.Duration("waited", time.Since(start)))
	}
	return trig
}
