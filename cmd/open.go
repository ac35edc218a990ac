package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ace221390/work.ink/internal/config"
	"github.com/ace221390/work.ink/internal/events"
	"github.com/ace221390/work.ink/internal/flow"
	"github.com/ace221390/work.ink/internal/observability"
)

// ErrFlowEnded is returned by open when the flow stopped short of the destination.
var ErrFlowEnded = errors.New("flow ended before reaching the destination")

// failureGrace is how long a gate failure waits for a landing report that
// raced ahead of it.
const failureGrace = 5 * time.Second

func newOpenCmd(factory ComponentFactory) *cobra.Command {
	var timeout time.Duration

	openCmd := &cobra.Command{
		Use:   "open <url>",
		Short: "Open an origin link and follow it through the gate",
		Long: `Opens the URL in a fresh tab and follows the flow. Prints the destination and
exits once the tab lands on it; exits with an error when the flow ends early.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			runCtx, cancel := context.WithTimeout(cmd.Context(), timeout)

			reports := make(chan events.Report, 16)
			tap := events.Func(func(_ context.Context, r events.Report) error {
				select {
				case reports <- r:
				default:
					logger.Warn("Report queue full, dropping report", zap.String("visit_id", r.VisitID))
				}
				return nil
			})

			c, err := factory.Create(runCtx, config.Get(), tap)
			if err != nil {
				cancel()
				return err
			}
			defer func() {
				cancel()
				c.Shutdown()
			}()

			c.Engine.Start(runCtx, c.Visits)
			if err := c.Browser.Watch(runCtx, c.Visits); err != nil {
				return err
			}
			if err := c.Browser.Open(runCtx, args[0]); err != nil {
				return err
			}

			var tr openTracker
			var grace <-chan time.Time
			for {
				select {
				case <-grace:
					return tr.failure
				case <-runCtx.Done():
					if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
						return fmt.Errorf("no destination reached within %s", timeout)
					}
					return runCtx.Err()
				case r := <-reports:
					done, err := tr.observe(r)
					if !done {
						if tr.failure != nil && grace == nil {
							grace = time.After(failureGrace)
						}
						continue
					}
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), tr.landed)
					return nil
				}
			}
		},
	}

	openCmd.Flags().DurationVar(&timeout, "timeout", 3*time.Minute, "give up after this long")
	return openCmd
}

// openTracker follows the reports of one tab until it lands on the destination
// or the flow stops. Reports of one tab may arrive out of order: the landing
// load is reported by the dispatcher while the gate visit is still finishing.
type openTracker struct {
	handled    bool
	redirected bool
	dest       string
	landed     string
	// failure holds a gate failure that a later landing may still overrule.
	failure error
}

// observe folds r into the tracker and reports whether the flow is over.
func (t *openTracker) observe(r events.Report) (bool, error) {
	switch r.Outcome.Kind {
	case flow.Navigated, flow.FallbackNavigated:
		t.handled = true
		t.expect(r.Outcome.Destination)
	case flow.Redirected:
		t.handled, t.redirected = true, true
		t.expect(r.Outcome.Destination)
	case flow.Aborted:
		// A newer load superseded the visit; its report follows.
	case flow.Failed:
		if !t.handled || t.dest == "" {
			return true, fmt.Errorf("%w: %s", ErrFlowEnded, r.Outcome)
		}
		if t.failure == nil {
			t.failure = fmt.Errorf("%w: %s", ErrFlowEnded, r.Outcome)
		}
	case flow.Ignored:
		if !t.handled {
			return false, nil
		}
		t.landed = r.URL
		if t.redirected || sameURL(r.URL, t.dest) {
			return true, nil
		}
		if t.failure != nil {
			return true, t.failure
		}
		return true, fmt.Errorf("%w: left the flow at %s", ErrFlowEnded, r.URL)
	case flow.NoOp:
		return true, fmt.Errorf("%w: no destination on %s page %s", ErrFlowEnded, r.Role, r.URL)
	default:
		return true, fmt.Errorf("%w: %s", ErrFlowEnded, r.Outcome)
	}
	return false, nil
}

func (t *openTracker) expect(dest string) {
	if dest != "" {
		t.dest = dest
	}
}

func sameURL(a, b string) bool {
	if b == "" {
		return false
	}
	if na, err := flow.Normalize(a, nil); err == nil {
		a = na
	}
	if nb, err := flow.Normalize(b, nil); err == nil {
		b = nb
	}
	return a == b
}
