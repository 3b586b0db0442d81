package core

import "math"

// Vec3 is a position or displacement in metres. Ground mobility patterns
// keep Z at zero; the type stays three-dimensional so elevated cell sites
// and stations measure true slant distance.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Scale returns v multiplied by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Bounds is the rectangular simulation area in metres. Mobility patterns
// must not produce positions outside it; the random-directional pattern
// reflects off its edges instead of clamping.
type Bounds struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// Valid reports whether the bounds describe a non-empty area.
func (b Bounds) Valid() bool {
	return b.MaxX > b.MinX && b.MaxY > b.MinY
}

// Contains reports whether p lies inside the bounds. Z is ignored; area
// bounds constrain ground movement only.
func (b Bounds) Contains(p Vec3) bool {
	return p.X >= b.MinX && p.X <= b.MaxX && p.Y >= b.MinY && p.Y <= b.MaxY
}

// Clamp returns p with X and Y forced inside the bounds.
func (b Bounds) Clamp(p Vec3) Vec3 {
	p.X = math.Min(math.Max(p.X, b.MinX), b.MaxX)
	p.Y = math.Min(math.Max(p.Y, b.MinY), b.MaxY)
	return p
}

// Width returns the X extent of the bounds.
func (b Bounds) Width() float64 { return b.MaxX - b.MinX }

// Height returns the Y extent of the bounds.
func (b Bounds) Height() float64 { return b.MaxY - b.MinY }
