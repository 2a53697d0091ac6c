package model

import (
	gmath "github.com/Faultbox/m2view/pkg/math"
)

// Normalize returns a unit vector in the same direction as v, or +Z for
// degenerate input.
func Normalize(v [3]float32) [3]float32 {
	n := gmath.V3(v).Normalize(0.0001)
	if n == (gmath.Vec3{}) {
		return [3]float32{0, 0, 1}
	}
	return n.Array()
}

// computeBounds returns the bounding box of the vertices, or a zero box
// when there are none.
func computeBounds(vertices []Vertex) Bounds {
	if len(vertices) == 0 {
		return Bounds{}
	}
	box := gmath.EmptyBox()
	for i := range vertices {
		box = box.Extend(gmath.V3(vertices[i].Position))
	}
	return Bounds{Min: box.Min.Array(), Max: box.Max.Array()}
}

// CenterXY moves the mesh so its bounding box is centered on the vertical
// axis, keeping the feet at their original height. Returns the offset applied.
func CenterXY(m *Mesh) (dx, dy float32) {
	c := m.Bounds.box().Center()
	shift := gmath.Vec3{X: -c.X, Y: -c.Y}

	for i := range m.Vertices {
		m.Vertices[i].Position = gmath.V3(m.Vertices[i].Position).Add(shift).Array()
	}

	moved := m.Bounds.box().Translate(shift)
	m.Bounds = Bounds{Min: moved.Min.Array(), Max: moved.Max.Array()}

	return c.X, c.Y
}
