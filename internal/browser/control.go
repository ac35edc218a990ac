package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/ace221390/work.ink/internal/humanoid"
	"github.com/ace221390/work.ink/internal/page"
)

const clickFunction = `function() { this.click(); }`

// control acts on one element through its backend node id, which stays valid
// across snapshots of the same document.
type control struct {
	view      *pageView
	backendID cdp.BackendNodeID
}

var _ page.Control = (*control)(nil)

func (c *control) do(ctx context.Context, actions ...chromedp.Action) error {
	if c.backendID == 0 {
		return page.ErrNoElement
	}
	return c.view.run(ctx, c.view.tab.cfg.ActionTimeout, actions...)
}

func (c *control) ScrollIntoView(ctx context.Context) error {
	return c.do(ctx, cdpdom.ScrollIntoViewIfNeeded().WithBackendNodeID(c.backendID))
}

func (c *control) Focus(ctx context.Context) error {
	return c.do(ctx, cdpdom.Focus().WithBackendNodeID(c.backendID))
}

func (c *control) Activate(ctx context.Context) error {
	return c.do(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := cdpdom.ResolveNode().WithBackendNodeID(c.backendID).Do(ctx)
		if err != nil {
			return fmt.Errorf("resolve node: %w", err)
		}
		defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

		_, exc, err := runtime.CallFunctionOn(clickFunction).WithObjectID(obj.ObjectID).Do(ctx)
		if err != nil {
			return fmt.Errorf("call click: %w", err)
		}
		if exc != nil {
			return fmt.Errorf("click threw: %s", exc.Text)
		}
		return nil
	}))
}

func (c *control) Center(ctx context.Context) (humanoid.Vector2D, error) {
	var center humanoid.Vector2D
	err := c.do(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		box, err := cdpdom.GetBoxModel().WithBackendNodeID(c.backendID).Do(ctx)
		if err != nil {
			return fmt.Errorf("get box model: %w", err)
		}
		v, ok := humanoid.Center(box.Content)
		if !ok {
			return fmt.Errorf("%w: element has no layout", page.ErrNoElement)
		}
		center = v
		return nil
	}))
	return center, err
}

func (c *control) DispatchMouseEvent(ctx context.Context, data humanoid.MouseEventData) error {
	return c.view.run(ctx, c.view.tab.cfg.ActionTimeout, mouseEvent(data))
}

func (c *control) Sleep(ctx context.Context, d time.Duration) error {
	return humanoid.SleepContext(ctx, d)
}

func (c *control) PressKey(ctx context.Context, key page.Key) error {
	down, up := keyEvents(key)
	return c.view.run(ctx, c.view.tab.cfg.ActionTimeout, down, up)
}

func mouseEvent(data humanoid.MouseEventData) *input.DispatchMouseEventParams {
	p := input.DispatchMouseEvent(input.MouseType(data.Type), data.X, data.Y).
		WithButtons(data.Buttons)
	if data.Button != "" {
		p = p.WithButton(input.MouseButton(data.Button))
	}
	if data.ClickCount > 0 {
		p = p.WithClickCount(int64(data.ClickCount))
	}
	return p
}

func keyEvents(k page.Key) (*input.DispatchKeyEventParams, *input.DispatchKeyEventParams) {
	down := input.DispatchKeyEvent(input.KeyDown).
		WithKey(k.Key).
		WithCode(k.Code).
		WithWindowsVirtualKeyCode(k.VirtualKeyCode)
	if k.Text != "" {
		down = down.WithText(k.Text)
	}
	up := input.DispatchKeyEvent(input.KeyUp).
		WithKey(k.Key).
		WithCode(k.Code).
		WithWindowsVirtualKeyCode(k.VirtualKeyCode)
	return down, up
}
