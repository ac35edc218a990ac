package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/mafredri/cdp/devtool"
)

// ErrNoTarget is returned when a running browser has no page to attach to.
var ErrNoTarget = errors.New("no page target")

// Remote describes a running browser reached through its DevTools HTTP endpoint.
type Remote struct {
	// WebSocketURL is the browser-level debugger endpoint.
	WebSocketURL string
	// TargetID is the page to attach to first.
	TargetID string
}

// ResolveRemote asks the DevTools endpoint at devtoolsURL (e.g.
// http://127.0.0.1:9222) for the browser websocket and a page target. An
// empty targetID picks the first page.
func ResolveRemote(ctx context.Context, devtoolsURL, targetID string) (Remote, error) {
	dt := devtool.New(devtoolsURL)

	version, err := dt.Version(ctx)
	if err != nil {
		return Remote{}, fmt.Errorf("query devtools version at %s: %w", devtoolsURL, err)
	}
	if version.WebSocketDebuggerURL == "" {
		return Remote{}, fmt.Errorf("devtools at %s reported no browser websocket", devtoolsURL)
	}

	targets, err := dt.List(ctx)
	if err != nil {
		return Remote{}, fmt.Errorf("list devtools targets: %w", err)
	}
	var sel *devtool.Target
	for _, t := range targets {
		if t.Type != devtool.Page {
			continue
		}
		if targetID == "" || string(t.ID) == targetID {
			sel = t
			break
		}
	}
	if sel == nil {
		if targetID != "" {
			return Remote{}, fmt.Errorf("%w: %s", ErrNoTarget, targetID)
		}
		return Remote{}, ErrNoTarget
	}

	return Remote{WebSocketURL: version.WebSocketDebuggerURL, TargetID: string(sel.ID)}, nil
}
