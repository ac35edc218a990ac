package humanoid

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// Click moves to target, presses the primary button, holds it briefly and
// releases. The browser synthesizes the click event from the press/release pair.
func (h *Humanoid) Click(ctx context.Context, target Vector2D) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.moveTo(ctx, target); err != nil {
		return err
	}

	pressAt := h.applyClickNoise(h.currentPos)
	err := h.dispatch(ctx, MouseEventData{
		Type:       MousePress,
		X:          pressAt.X,
		Y:          pressAt.Y,
		Button:     ButtonLeft,
		Buttons:    1,
		ClickCount: 1,
	}, pressAt)
	if err != nil {
		return err
	}
	h.buttonState = ButtonLeft

	if err := h.hesitate(ctx, h.clickHoldDuration()); err != nil {
		h.logger.Warn("Click hold interrupted, releasing", zap.Error(err))
		// Release on a fresh context so a cancelled hold does not leave the button down.
		_ = h.releaseMouse(context.WithoutCancel(ctx))
		return err
	}
	return h.releaseMouse(ctx)
}

// releaseMouse lifts the primary button if it is down. The internal state is
// reset even when dispatch fails.
func (h *Humanoid) releaseMouse(ctx context.Context) error {
	if h.buttonState != ButtonLeft {
		return nil
	}
	pos := h.currentPos
	err := h.executor.DispatchMouseEvent(ctx, MouseEventData{
		Type:       MouseRelease,
		X:          pos.X,
		Y:          pos.Y,
		Button:     ButtonLeft,
		Buttons:    0,
		ClickCount: 1,
	})
	if err != nil {
		h.logger.Error("Failed to dispatch mouse release", zap.Error(err))
	}
	h.buttonState = ButtonNone
	return err
}

// hesitate keeps the cursor alive for d with Perlin drift, preserving the
// button state. Elapsed time is accumulated from the requested sleeps.
func (h *Humanoid) hesitate(ctx context.Context, d time.Duration) error {
	start := h.currentPos
	buttons := buttonsBitfield(h.buttonState)
	// Pressed cursors barely move.
	amplitude := h.config.PerlinAmplitude * 0.3
	const frequency = 0.5
	const interval = 20 * time.Millisecond

	for elapsed := time.Duration(0); elapsed < d; {
		if err := ctx.Err(); err != nil {
			return err
		}
		drift := Vector2D{
			X: h.noiseX.Noise1D(elapsed.Seconds()*frequency) * amplitude,
			Y: h.noiseY.Noise1D(elapsed.Seconds()*frequency) * amplitude,
		}
		pos := start.Add(drift)
		err := h.dispatch(ctx, MouseEventData{
			Type:    MouseMove,
			X:       pos.X,
			Y:       pos.Y,
			Button:  ButtonNone,
			Buttons: buttons,
		}, pos)
		if err != nil {
			return err
		}
		pause := min(interval, d-elapsed)
		if err := h.executor.Sleep(ctx, pause); err != nil {
			return err
		}
		elapsed += pause
	}
	return nil
}

// clickHoldDuration draws a hold time skewed towards short clicks.
func (h *Humanoid) clickHoldDuration() time.Duration {
	minMs := float64(h.config.ClickHoldMinMs)
	maxMs := float64(h.config.ClickHoldMaxMs)
	mean := (minMs + maxMs) / 2.0 * 0.9
	stdDev := (maxMs - minMs) / 5.0
	ms := math.Max(minMs, math.Min(maxMs, mean+h.rng.NormFloat64()*stdDev))
	return time.Duration(ms) * time.Millisecond
}
