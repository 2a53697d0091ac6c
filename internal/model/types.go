// Package model assembles decoded M2 models, skins and textures into
// renderer-ready meshes.
package model

import (
	"github.com/Faultbox/m2view/pkg/formats"
	gmath "github.com/Faultbox/m2view/pkg/math"
)

// Vertex represents a mesh vertex with position, normal, and texture coordinates.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	TexCoord [2]float32
}

// Bounds holds the axis-aligned bounding box of the mesh.
type Bounds struct {
	Min [3]float32
	Max [3]float32
}

// Size returns the extent of the box on each axis.
func (b Bounds) Size() [3]float32 {
	return b.box().Size().Array()
}

func (b Bounds) box() gmath.Box {
	return gmath.Box{Min: gmath.V3(b.Min), Max: gmath.V3(b.Max)}
}

// AlphaThreshold is the alpha test cutoff used for alpha-keyed materials.
const AlphaThreshold = 0.5

// Material is the render state of one batch.
type Material struct {
	Blend          formats.BlendMode
	AlphaTest      bool
	AlphaThreshold float32
	Transparent    bool

	TwoSided   bool
	Unlit      bool
	Unfogged   bool
	DepthTest  bool
	DepthWrite bool
}

// Texture is a texture bound to a render unit.
type Texture struct {
	Definition int    // index into the model's texture table
	Name       string // lower-case base name, empty for runtime-replaced textures
	Image      *formats.BLP
	WrapS      bool
	WrapT      bool
}

// DrawGroup is one skin section: a slice of the skin's index buffer over
// the shared vertex set.
type DrawGroup struct {
	Section    int
	ID         uint16
	Indices    []uint16
	SortCenter [3]float32
	SortRadius float32
}

// RenderUnit binds a draw group to a material and texture.
type RenderUnit struct {
	Batch         int
	Group         int
	Material      Material
	Texture       *Texture // nil when the texture could not be bound
	PriorityPlane int8
	ShaderID      uint16
}

// Mesh is an assembled model ready for upload.
type Mesh struct {
	Name     string
	Vertices []Vertex
	Groups   []DrawGroup
	Units    []RenderUnit
	Bounds   Bounds

	// Warnings lists non-fatal problems found during assembly.
	Warnings []string
}

// IndexCount returns the total number of indices across all draw groups.
func (m *Mesh) IndexCount() int {
	n := 0
	for _, g := range m.Groups {
		n += len(g.Indices)
	}
	return n
}

// Input carries the decoded pieces of one model.
type Input struct {
	Model *formats.M2
	Skin  *formats.Skin

	// Textures maps lower-case texture base names to decoded images.
	Textures map[string]*formats.BLP
}

// AssembleOptions contains options for mesh assembly.
type AssembleOptions struct {
	// StrictBlending fails assembly on blending modes other than opaque,
	// alpha-keyed and alpha-blended instead of falling back to opaque.
	StrictBlending bool
}
