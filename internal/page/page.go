// Package page defines what the handlers need from a loaded page. The
// browser package implements it over CDP; pagetest implements it in memory.
package page

import (
	"context"
	"errors"
	"net/url"

	"github.com/ace221390/work.ink/internal/dom"
	"github.com/ace221390/work.ink/internal/humanoid"
)

// ErrNoElement is returned when an element can no longer be resolved in the live page.
var ErrNoElement = errors.New("element not found")

// ErrUnsupported is returned by a control for an action it cannot perform.
var ErrUnsupported = errors.New("action not supported")

// Page is a single load of a document in a tab.
type Page interface {
	// URL is the address of this load.
	URL() *url.URL
	// Title reads the current document title.
	Title(ctx context.Context) (string, error)
	// Snapshot captures the current DOM.
	Snapshot(ctx context.Context) (*dom.Document, error)
	// Navigate loads target as a normal history entry.
	Navigate(ctx context.Context, target string) error
	// Replace loads target in place of the current history entry.
	Replace(ctx context.Context, target string) error
	// ObserveTitle signals after changes that may affect the title. The
	// channel is closed once ctx is done.
	ObserveTitle(ctx context.Context) (<-chan struct{}, error)
	// ObserveMutations signals after any subtree change. The channel is
	// closed once ctx is done.
	ObserveMutations(ctx context.Context) (<-chan struct{}, error)
	// Control returns a handle for acting on el.
	Control(el dom.Element) Control
}

// Control acts on one element of a live page.
type Control interface {
	// Pointer events are dispatched through the embedded executor.
	humanoid.Executor

	ScrollIntoView(ctx context.Context) error
	Focus(ctx context.Context) error
	// Activate invokes the element's own activation (element.click()).
	Activate(ctx context.Context) error
	// Center returns the geometric center of the element in viewport coordinates.
	Center(ctx context.Context) (humanoid.Vector2D, error)
	// PressKey sends a key down/up pair to the focused element.
	PressKey(ctx context.Context, key Key) error
}

// Key describes a keyboard key in CDP terms.
type Key struct {
	Key  string
	Code string
	Text string
	// VirtualKeyCode is the Windows virtual key code.
	VirtualKeyCode int64
}

// Enter is the key used for keyboard activation.
var Enter = Key{Key: "Enter", Code: "Enter", Text: "\r", VirtualKeyCode: 13}
