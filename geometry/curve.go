// Package geometry holds canvas-space math for the editor: connection
// curves, port anchors and hit distances.
package geometry

import (
	"fmt"
	"math"
)

// DefaultMaxControlOffset caps how far bezier control points sit from their endpoints
const DefaultMaxControlOffset = 100.0

// Segments used when flattening a curve for distance queries
const flattenSegments = 32

// Point is a canvas coordinate
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the euclidean distance between p and q
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Cubic is a cubic bezier curve
type Cubic struct {
	P0, P1, P2, P3 Point
}

// Curve returns the connection curve from an output anchor to an input
// anchor: control points leave horizontally, offset by half the horizontal
// distance, capped at DefaultMaxControlOffset.
func Curve(start, end Point) Cubic {
	return CurveWithMax(start, end, DefaultMaxControlOffset)
}

// CurveWithMax is Curve with a custom control offset cap
func CurveWithMax(start, end Point, maxOffset float64) Cubic {
	off := math.Min(math.Abs(end.X-start.X)*0.5, maxOffset)
	return Cubic{
		P0: start,
		P1: Point{X: start.X + off, Y: start.Y},
		P2: Point{X: end.X - off, Y: end.Y},
		P3: end,
	}
}

// At evaluates the curve at t in [0, 1]
func (c Cubic) At(t float64) Point {
	mt := 1 - t
	a := mt * mt * mt
	b := 3 * mt * mt * t
	d := 3 * mt * t * t
	e := t * t * t
	return Point{
		X: a*c.P0.X + b*c.P1.X + d*c.P2.X + e*c.P3.X,
		Y: a*c.P0.Y + b*c.P1.Y + d*c.P2.Y + e*c.P3.Y,
	}
}

// Flatten approximates the curve by n+1 points
func (c Cubic) Flatten(n int) []Point {
	if n < 1 {
		n = 1
	}
	pts := make([]Point, n+1)
	for i := 0; i <= n; i++ {
		pts[i] = c.At(float64(i) / float64(n))
	}
	return pts
}

// Distance approximates the shortest distance from p to the curve
func (c Cubic) Distance(p Point) float64 {
	pts := c.Flatten(flattenSegments)
	best := math.Inf(1)
	for i := 1; i < len(pts); i++ {
		if d := segmentDistance(p, pts[i-1], pts[i]); d < best {
			best = d
		}
	}
	return best
}

// SVGPath renders the curve as an SVG path string
func (c Cubic) SVGPath() string {
	return fmt.Sprintf("M %g %g C %g %g, %g %g, %g %g",
		c.P0.X, c.P0.Y, c.P1.X, c.P1.Y, c.P2.X, c.P2.Y, c.P3.X, c.P3.Y)
}

func segmentDistance(p, a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return p.Dist(a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return p.Dist(Point{X: a.X + t*dx, Y: a.Y + t*dy})
}
