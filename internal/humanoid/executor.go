package humanoid

import (
	"context"
	"time"
)

// MouseEventType mirrors the CDP Input.dispatchMouseEvent type strings.
type MouseEventType string

const (
	MouseMove    MouseEventType = "mouseMoved"
	MousePress   MouseEventType = "mousePressed"
	MouseRelease MouseEventType = "mouseReleased"
)

// MouseButton mirrors the CDP button names.
type MouseButton string

const (
	ButtonNone MouseButton = "none"
	ButtonLeft MouseButton = "left"
)

// MouseEventData is a single low-level pointer event.
type MouseEventData struct {
	Type       MouseEventType
	X          float64
	Y          float64
	Button     MouseButton
	Buttons    int64
	ClickCount int
}

// Executor performs the side effects of a simulated interaction. The browser
// tab implements it on top of CDP; tests record the events instead.
type Executor interface {
	DispatchMouseEvent(ctx context.Context, data MouseEventData) error
	Sleep(ctx context.Context, d time.Duration) error
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
