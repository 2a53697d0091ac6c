package model

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Faultbox/m2view/internal/logger"
	"github.com/Faultbox/m2view/pkg/formats"
)

// ErrUnsupportedBlendMode is returned by Assemble in strict mode for
// blending modes it cannot map.
var ErrUnsupportedBlendMode = fmt.Errorf("%w: unsupported blend mode", formats.ErrFormat)

const knownMaterialFlags = formats.MaterialUnlit | formats.MaterialUnfogged |
	formats.MaterialTwoSided | formats.MaterialDepthTestDisable | formats.MaterialDepthWriteDisable

// Assemble builds a mesh from a decoded model, one of its skin profiles and
// the textures it references. Structural problems (indices outside their
// tables) fail the whole assembly; unsupported render state only produces
// warnings.
func Assemble(in Input, opts AssembleOptions) (*Mesh, error) {
	if in.Model == nil || in.Skin == nil {
		return nil, errors.New("assemble: model and skin are required")
	}

	m, skin := in.Model, in.Skin
	mesh := &Mesh{Name: m.Name}
	log := logger.Named("model").With(zap.String("model", m.Name))

	warn := func(msg string, fields ...zap.Field) {
		log.Warn(msg, fields...)
		mesh.Warnings = append(mesh.Warnings, formatWarning(msg, fields))
	}

	// Shared vertex set in skin order
	mesh.Vertices = make([]Vertex, len(skin.Vertices))
	for i, gi := range skin.Vertices {
		if int(gi) >= len(m.Vertices) {
			return nil, fmt.Errorf("skin vertex %d: %w", i, formats.IndexError("vertex", int(gi), len(m.Vertices)))
		}
		v := &m.Vertices[gi]
		mesh.Vertices[i] = Vertex{
			Position: v.Position,
			Normal:   Normalize(v.Normal),
			TexCoord: v.TexCoords[0],
		}
	}

	// One draw group per section
	mesh.Groups = make([]DrawGroup, len(skin.Sections))
	for i, sec := range skin.Sections {
		first := sec.FirstIndex()
		end := first + int(sec.IndexCount)
		if end > len(skin.Indices) {
			return nil, fmt.Errorf("section %d: %w", i,
				&formats.BoundsError{Pos: first, Want: int(sec.IndexCount), Len: len(skin.Indices)})
		}
		indices := skin.Indices[first:end]
		for _, idx := range indices {
			if int(idx) >= len(mesh.Vertices) {
				return nil, fmt.Errorf("section %d: %w", i, formats.IndexError("local vertex", int(idx), len(mesh.Vertices)))
			}
		}
		mesh.Groups[i] = DrawGroup{
			Section:    i,
			ID:         sec.ID,
			Indices:    indices,
			SortCenter: sec.SortCenter,
			SortRadius: sec.SortRadius,
		}
	}

	// One render unit per batch
	mesh.Units = make([]RenderUnit, 0, len(skin.Batches))
	for i, b := range skin.Batches {
		if int(b.SkinSectionIndex) >= len(mesh.Groups) {
			return nil, fmt.Errorf("batch %d: %w", i, formats.IndexError("section", int(b.SkinSectionIndex), len(mesh.Groups)))
		}
		if int(b.MaterialIndex) >= len(m.Materials) {
			return nil, fmt.Errorf("batch %d: %w", i, formats.IndexError("material", int(b.MaterialIndex), len(m.Materials)))
		}
		texIdx, err := m.ResolveTexture(int(b.TextureComboIndex))
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}

		mat, err := buildMaterial(m.Materials[b.MaterialIndex], opts)
		if err != nil {
			return nil, fmt.Errorf("batch %d material %d: %w", i, b.MaterialIndex, err)
		}
		if !isSupportedBlend(mat.Blend) {
			warn("unsupported blend mode, using opaque",
				zap.Int("batch", i), zap.Stringer("blend", mat.Blend))
		}
		if extra := m.Materials[b.MaterialIndex].Flags &^ knownMaterialFlags; extra != 0 {
			warn("ignoring unknown material flags",
				zap.Int("batch", i), zap.Uint16("flags", uint16(extra)))
		}

		def := m.Textures[texIdx]
		tex := &Texture{
			Definition: texIdx,
			Name:       def.Filename,
			WrapS:      def.Flags.WrapX(),
			WrapT:      def.Flags.WrapY(),
		}
		switch img, ok := in.Textures[def.Filename]; {
		case def.Filename == "":
			warn("texture has no filename, leaving unbound",
				zap.Int("batch", i), zap.Int("texture", texIdx), zap.Uint32("type", uint32(def.Type)))
			tex = nil
		case !ok || img == nil:
			warn("texture not loaded, leaving unbound",
				zap.Int("batch", i), zap.String("texture", def.Filename))
			tex = nil
		default:
			tex.Image = img
		}

		mesh.Units = append(mesh.Units, RenderUnit{
			Batch:         i,
			Group:         int(b.SkinSectionIndex),
			Material:      mat,
			Texture:       tex,
			PriorityPlane: b.PriorityPlane,
			ShaderID:      b.ShaderID,
		})
	}

	sort.SliceStable(mesh.Units, func(a, b int) bool {
		return mesh.Units[a].PriorityPlane < mesh.Units[b].PriorityPlane
	})

	mesh.Bounds = computeBounds(mesh.Vertices)

	log.Debug("assembled mesh",
		zap.Int("vertices", len(mesh.Vertices)),
		zap.Int("groups", len(mesh.Groups)),
		zap.Int("units", len(mesh.Units)),
		zap.Int("warnings", len(mesh.Warnings)))

	return mesh, nil
}

// buildMaterial maps a model material to render state.
func buildMaterial(src formats.M2Material, opts AssembleOptions) (Material, error) {
	mat := Material{
		Blend:      src.Blend,
		TwoSided:   src.Flags&formats.MaterialTwoSided != 0,
		Unlit:      src.Flags&formats.MaterialUnlit != 0,
		Unfogged:   src.Flags&formats.MaterialUnfogged != 0,
		DepthTest:  src.Flags&formats.MaterialDepthTestDisable == 0,
		DepthWrite: src.Flags&formats.MaterialDepthWriteDisable == 0,
	}

	switch src.Blend {
	case formats.BlendOpaque:
	case formats.BlendAlphaKey:
		mat.AlphaTest = true
		mat.AlphaThreshold = AlphaThreshold
	case formats.BlendAlpha:
		mat.Transparent = true
	default:
		if opts.StrictBlending {
			return Material{}, fmt.Errorf("%w: %s", ErrUnsupportedBlendMode, src.Blend)
		}
	}
	return mat, nil
}

func isSupportedBlend(b formats.BlendMode) bool {
	return b == formats.BlendOpaque || b == formats.BlendAlphaKey || b == formats.BlendAlpha
}

// formatWarning renders a log message and its fields as one line.
func formatWarning(msg string, fields []zap.Field) string {
	s := msg
	for _, f := range fields {
		enc := zapcore.NewMapObjectEncoder()
		f.AddTo(enc)
		s += fmt.Sprintf(" %s=%v", f.Key, enc.Fields[f.Key])
	}
	return s
}
