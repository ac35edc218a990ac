package humanoid

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"go.uber.org/zap"
)

// maxVelocity caps the simulated cursor speed (pixels per second).
const maxVelocity = 6000.0

// Humanoid drives a pointer the way a person would: a spring-damped approach
// with low-frequency drift and tremor, then a press, a short hold and a release.
type Humanoid struct {
	// mu guards every field below. Public methods take it, internal helpers assume it is held.
	mu          sync.Mutex
	config      Config
	logger      *zap.Logger
	executor    Executor
	rng         *rand.Rand
	noiseX      *perlin.Perlin
	noiseY      *perlin.Perlin
	currentPos  Vector2D
	positioned  bool
	buttonState MouseButton
}

// New creates a Humanoid that dispatches through executor.
func New(config Config, logger *zap.Logger, executor Executor) *Humanoid {
	config = config.withDefaults()
	seed := time.Now().UnixNano()
	rng := config.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(seed))
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Standard Perlin parameters.
	alpha, beta, n := 2.0, 2.0, int32(3)
	return &Humanoid{
		config:      config,
		logger:      logger.Named("humanoid"),
		executor:    executor,
		rng:         rng,
		noiseX:      perlin.NewPerlin(alpha, beta, n, seed),
		noiseY:      perlin.NewPerlin(alpha, beta, n, seed+1),
		buttonState: ButtonNone,
	}
}

// NewTestHumanoid creates a Humanoid with deterministic noise for tests.
func NewTestHumanoid(executor Executor, seed int64) *Humanoid {
	config := DefaultConfig()
	config.Rng = rand.New(rand.NewSource(seed))
	h := New(config, zap.NewNop(), executor)
	h.noiseX = perlin.NewPerlin(2, 2, 3, seed)
	h.noiseY = perlin.NewPerlin(2, 2, 3, seed+1)
	return h
}

// SetPosition tells the Humanoid where the cursor currently is.
func (h *Humanoid) SetPosition(p Vector2D) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentPos = p
	h.positioned = true
}

// Position returns the last dispatched cursor position.
func (h *Humanoid) Position() Vector2D {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentPos
}

// MoveTo glides the cursor to target.
func (h *Humanoid) MoveTo(ctx context.Context, target Vector2D) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.moveTo(ctx, target)
}

func (h *Humanoid) moveTo(ctx context.Context, target Vector2D) error {
	if !h.positioned {
		h.currentPos = h.approachOrigin(target)
		h.positioned = true
	}
	if _, err := h.simulateTrajectory(ctx, h.currentPos, target); err != nil {
		return err
	}
	// Land exactly on the target so the press hits it.
	return h.dispatch(ctx, MouseEventData{
		Type:    MouseMove,
		X:       target.X,
		Y:       target.Y,
		Button:  ButtonNone,
		Buttons: buttonsBitfield(h.buttonState),
	}, target)
}

// approachOrigin picks a plausible starting point when the real cursor
// position is unknown: somewhere 120-300px away, above the viewport origin.
func (h *Humanoid) approachOrigin(target Vector2D) Vector2D {
	angle := h.rng.Float64() * 2 * math.Pi
	dist := 120 + h.rng.Float64()*180
	p := target.Add(Vector2D{X: math.Cos(angle) * dist, Y: math.Sin(angle) * dist})
	p.X = math.Max(0, p.X)
	p.Y = math.Max(0, p.Y)
	return p
}

func (h *Humanoid) dispatch(ctx context.Context, data MouseEventData, pos Vector2D) error {
	if err := h.executor.DispatchMouseEvent(ctx, data); err != nil {
		return err
	}
	h.currentPos = pos
	return nil
}

// applyGaussianNoise adds high-frequency tremor to a point.
func (h *Humanoid) applyGaussianNoise(point Vector2D) Vector2D {
	strength := h.config.GaussianStrength * (0.5 + h.rng.Float64())
	return Vector2D{
		X: point.X + h.rng.NormFloat64()*strength,
		Y: point.Y + h.rng.NormFloat64()*strength,
	}
}

// applyClickNoise models the small, mostly downward slip when a finger presses.
func (h *Humanoid) applyClickNoise(point Vector2D) Vector2D {
	strength := h.config.ClickNoise * (0.5 + h.rng.Float64())
	return Vector2D{
		X: point.X + h.rng.NormFloat64()*strength*0.5,
		Y: point.Y + math.Abs(h.rng.NormFloat64()*strength),
	}
}

func buttonsBitfield(b MouseButton) int64 {
	if b == ButtonLeft {
		return 1
	}
	return 0
}
