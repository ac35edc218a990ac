package pagetest

import (
	"context"
	"sync"
	"time"

	"github.com/ace221390/work.ink/internal/dom"
	"github.com/ace221390/work.ink/internal/humanoid"
	"github.com/ace221390/work.ink/internal/page"
)

// Control records every action performed on an element.
type Control struct {
	Element dom.Element

	mu          sync.Mutex
	behavior    ControlBehavior
	scrolls     int
	focuses     int
	activations int
	events      []humanoid.MouseEventData
	keys        []page.Key
}

var _ page.Control = (*Control)(nil)

// Stats is a copy of what happened to a control.
type Stats struct {
	Scrolls     int
	Focuses     int
	Activations int
	Events      []humanoid.MouseEventData
	Keys        []page.Key
}

func (c *Control) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Scrolls:     c.scrolls,
		Focuses:     c.focuses,
		Activations: c.activations,
		Events:      append([]humanoid.MouseEventData(nil), c.events...),
		Keys:        append([]page.Key(nil), c.keys...),
	}
}

func (c *Control) ScrollIntoView(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scrolls++
	return nil
}

func (c *Control) Focus(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focuses++
	return nil
}

func (c *Control) Activate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activations++
	return c.behavior.ActivateErr
}

func (c *Control) Center(context.Context) (humanoid.Vector2D, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.behavior.CenterErr != nil {
		return humanoid.Vector2D{}, c.behavior.CenterErr
	}
	return c.behavior.Center, nil
}

func (c *Control) DispatchMouseEvent(_ context.Context, data humanoid.MouseEventData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.behavior.DispatchErr != nil {
		return c.behavior.DispatchErr
	}
	c.events = append(c.events, data)
	return nil
}

// Sleep returns immediately so pointer simulations run at test speed.
func (c *Control) Sleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func (c *Control) PressKey(_ context.Context, key page.Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.behavior.KeyErr != nil {
		return c.behavior.KeyErr
	}
	c.keys = append(c.keys, key)
	return nil
}
