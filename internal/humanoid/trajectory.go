package humanoid

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

const (
	// timeStep is the physics step, 200Hz.
	timeStep = 5 * time.Millisecond
	// maxSimulationTime bounds a single movement.
	maxSimulationTime = 3 * time.Second
)

// simulateTrajectory moves the cursor from start towards end with a
// spring-damped model plus Perlin drift and Gaussian tremor, dispatching a
// mouseMoved event per step. It assumes the caller holds the lock.
func (h *Humanoid) simulateTrajectory(ctx context.Context, start, end Vector2D) (Vector2D, error) {
	currentPos := start
	velocity := Vector2D{}
	t := time.Duration(0)

	omega := h.config.Omega
	zeta := h.config.Zeta
	const perlinFrequency = 0.8

	currentTarget := end
	correcting := false
	initialDist := start.Dist(end)
	buttons := buttonsBitfield(h.buttonState)

	for t < maxSimulationTime {
		if err := ctx.Err(); err != nil {
			return velocity, err
		}

		distance := currentPos.Dist(currentTarget)
		speed := velocity.Mag()
		if distance < 1.0 && speed < 50.0 {
			if currentTarget == end {
				break
			}
			currentTarget = end
			correcting = false
			continue
		}

		// Long moves may overshoot into a sub-target first and correct from there.
		if !correcting && initialDist > h.config.MicroCorrectionThreshold {
			ttc := distance / math.Max(1.0, speed)
			if ttc < 0.1 && distance > 15.0 && h.rng.Float64() < 0.3 {
				correcting = true
				adjust := 0.8 + h.rng.Float64()*0.4
				currentTarget = currentPos.Add(end.Sub(currentPos).Mul(adjust))
				h.logger.Debug("Initiating micro-correction",
					zap.Float64("distance", distance),
					zap.Float64("ttc", ttc))
			}
		}

		spring := currentTarget.Sub(currentPos).Mul(omega * omega)
		damping := velocity.Mul(-2.0 * zeta * omega)
		acceleration := spring.Add(damping)

		dt := timeStep.Seconds()
		velocity = velocity.Add(acceleration.Mul(dt))
		if velocity.Mag() > maxVelocity {
			velocity = velocity.Normalize().Mul(maxVelocity)
		}
		currentPos = currentPos.Add(velocity.Mul(dt))

		elapsed := t.Seconds()
		drift := Vector2D{
			X: h.noiseX.Noise1D(elapsed*perlinFrequency) * h.config.PerlinAmplitude,
			Y: h.noiseY.Noise1D(elapsed*perlinFrequency) * h.config.PerlinAmplitude,
		}
		point := h.applyGaussianNoise(currentPos.Add(drift))

		err := h.dispatch(ctx, MouseEventData{
			Type:    MouseMove,
			X:       point.X,
			Y:       point.Y,
			Button:  ButtonNone,
			Buttons: buttons,
		}, point)
		if err != nil {
			if ctx.Err() == nil {
				h.logger.Warn("Failed to dispatch mouse move", zap.Error(err))
			}
			return velocity, err
		}

		t += timeStep
		sleep := timeStep + time.Duration(h.rng.Intn(3)-1)*time.Millisecond
		if err := h.executor.Sleep(ctx, sleep); err != nil {
			return velocity, err
		}
	}

	if t >= maxSimulationTime {
		h.logger.Warn("Movement simulation timed out", zap.Any("start", start), zap.Any("end", end))
	}
	return velocity, nil
}
