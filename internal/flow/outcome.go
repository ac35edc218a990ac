// Package flow holds the tagged outcomes reported by the page handlers.
package flow

import (
	"fmt"
	"net/url"
	"strings"
)

// Kind tags how a page load ended.
type Kind string

const (
	// NoOp: nothing to do on this page.
	NoOp Kind = "noop"
	// Navigated: the origin page stored the destination and moved on to the gate.
	Navigated Kind = "navigated"
	// FallbackNavigated: the store was unavailable; the destination travels in the gate URL.
	FallbackNavigated Kind = "fallback_navigated"
	// Redirected: the gate page sent the browser to the destination.
	Redirected Kind = "redirected"
	// InvalidDestination: the pending value could not be resolved to a URL.
	InvalidDestination Kind = "invalid_destination"
	// Aborted: the page went away before the handler finished.
	Aborted Kind = "aborted"
	// Failed: the browser refused the final navigation.
	Failed Kind = "failed"
	// Ignored: the page matched no handler.
	Ignored Kind = "ignored"
)

// Outcome is the result of handling one page load.
type Outcome struct {
	Kind Kind `json:"kind"`
	// Destination is the final URL the flow is heading to, when known.
	Destination string `json:"destination,omitempty"`
	// Target is the URL this handler navigated to, when it navigated.
	Target string `json:"target,omitempty"`
	// Source says where the destination came from: "store" or "query".
	Source string `json:"source,omitempty"`
	// Challenge is what ended the challenge wait (see watch.Trigger).
	Challenge string `json:"challenge,omitempty"`
	// Tier is the activation tier that succeeded, "none" when the control was never activated.
	Tier string `json:"tier,omitempty"`
	Err  error  `json:"-"`
}

// ErrMessage returns the error message, or "" on success.
func (o Outcome) ErrMessage() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

func (o Outcome) String() string {
	var b strings.Builder
	b.WriteString(string(o.Kind))
	if o.Destination != "" {
		fmt.Fprintf(&b, " dest=%s", o.Destination)
	}
	if o.Target != "" && o.Target != o.Destination {
		fmt.Fprintf(&b, " target=%s", o.Target)
	}
	if o.Err != nil {
		fmt.Fprintf(&b, " err=%v", o.Err)
	}
	return b.String()
}

// Normalize resolves dest against base the way a browser resolves a link.
func Normalize(dest string, base *url.URL) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(dest))
	if err != nil {
		return "", fmt.Errorf("parse destination: %w", err)
	}
	u := ref
	if base != nil {
		u = base.ResolveReference(ref)
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("destination %q does not resolve to an absolute URL", dest)
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		if u.Host == "" {
			return "", fmt.Errorf("destination %q has no host", dest)
		}
		if u.Path == "" && u.Opaque == "" {
			u.Path = "/"
		}
	}
	return u.String(), nil
}
