package humanoid

import "math"

// Vector2D is a point or displacement in CSS pixels.
type Vector2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vector2D) Add(o Vector2D) Vector2D { return Vector2D{X: v.X + o.X, Y: v.Y + o.Y} }

func (v Vector2D) Sub(o Vector2D) Vector2D { return Vector2D{X: v.X - o.X, Y: v.Y - o.Y} }

func (v Vector2D) Mul(s float64) Vector2D { return Vector2D{X: v.X * s, Y: v.Y * s} }

// Mag returns the euclidean length.
func (v Vector2D) Mag() float64 { return math.Hypot(v.X, v.Y) }

// Dist returns the distance between two points.
func (v Vector2D) Dist(o Vector2D) float64 { return v.Sub(o).Mag() }

// Normalize returns the unit vector, or the zero vector for zero input.
func (v Vector2D) Normalize() Vector2D {
	m := v.Mag()
	if m == 0 {
		return Vector2D{}
	}
	return v.Mul(1 / m)
}

// Center returns the centroid of a quad given as x1,y1,...,x4,y4.
func Center(quad []float64) (Vector2D, bool) {
	if len(quad) < 8 {
		return Vector2D{}, false
	}
	var c Vector2D
	for i := 0; i < 8; i += 2 {
		c.X += quad[i]
		c.Y += quad[i+1]
	}
	return c.Mul(0.25), true
}
