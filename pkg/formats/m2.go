// M2 model parser: header and body chunks.

package formats

import (
	"fmt"
	"strings"
)

// M2 format versions that change the file layout.
const (
	VersionClassic uint32 = 256
	VersionBC      uint32 = 263 // last version with embedded skin profiles
	VersionWotLK   uint32 = 264 // first version with external .skin files
	VersionLegion  uint32 = 274 // not supported
)

const (
	m2WrapperMagic = "MD21"
	m2Magic        = "MD20"

	m2VertexSize   = 48
	m2TextureSize  = 16
	m2MaterialSize = 4
)

// Global model flags.
const (
	GlobalFlagTiltX                 uint32 = 0x01
	GlobalFlagTiltY                 uint32 = 0x02
	GlobalFlagTextureCombinerCombos uint32 = 0x08
)

// M2Array is a (count, offset) pair addressing a chunk relative to the chunk base.
type M2Array struct {
	Count  uint32
	Offset uint32
}

// Empty reports whether the chunk holds no records.
func (a M2Array) Empty() bool { return a.Count == 0 }

// M2Header holds the chunk table of an M2 model.
// Fields marked with a version comment are zero outside that range.
type M2Header struct {
	Version     uint32
	Name        M2Array
	GlobalFlags uint32

	GlobalLoops             M2Array
	Sequences               M2Array
	SequenceLookup          M2Array
	PlayableAnimationLookup M2Array // <= VersionBC
	Bones                   M2Array
	KeyBoneLookup           M2Array
	Vertices                M2Array
	SkinProfiles            M2Array // <= VersionBC
	NumSkinProfiles         uint32  // > VersionBC
	Colors                  M2Array
	Textures                M2Array
	TextureWeights          M2Array
	TextureFlipbooks        M2Array // <= VersionBC
	TextureTransforms       M2Array

	ReplaceableTextureLookup M2Array
	Materials                M2Array
	BoneLookup               M2Array
	TextureLookup            M2Array
	TextureUnitLookup        M2Array
	TransparencyLookup       M2Array
	TextureTransformLookup   M2Array

	BoundingBox           [2][3]float32 // min, max
	BoundingSphereRadius  float32
	CollisionBox          [2][3]float32
	CollisionSphereRadius float32

	CollisionIndices      M2Array
	CollisionPositions    M2Array
	CollisionFaceNormals  M2Array
	Attachments           M2Array
	AttachmentLookup      M2Array
	Events                M2Array
	Lights                M2Array
	Cameras               M2Array
	CameraLookup          M2Array
	RibbonEmitters        M2Array
	ParticleEmitters      M2Array
	TextureCombinerCombos M2Array // GlobalFlagTextureCombinerCombos only

	// ChunkBase is the absolute offset all chunk offsets are relative to.
	ChunkBase int
}

// HasEmbeddedSkins reports whether skin profiles are stored in the model file.
func (h *M2Header) HasEmbeddedSkins() bool {
	return h.Version <= VersionBC
}

// SkinProfileCount returns the number of skin profiles (levels of detail).
func (h *M2Header) SkinProfileCount() int {
	if h.HasEmbeddedSkins() {
		return int(h.SkinProfiles.Count)
	}
	return int(h.NumSkinProfiles)
}

// ChunkRange describes a chunk made of fixed-size records.
type ChunkRange struct {
	Name     string
	Array    M2Array
	ElemSize int
}

// Animation track headers: interpolation, global sequence, then timestamp
// and value arrays. Versions up to VersionBC carry an extra ranges array.
const (
	trackSize       = 20
	trackSizeBC     = 28
	trackBaseSize   = 12
	trackBaseSizeBC = 20
)

// Chunks lists every chunk of the header with its record size. Chunks whose
// records have a version dependent layout that is not decoded here use a
// size of 1, so they are still required to start and end inside the file.
func (h *M2Header) Chunks() []ChunkRange {
	track, trackBase := trackSize, trackBaseSize
	sequenceSize, boneSize := 64, 88
	if h.Version <= VersionBC {
		track, trackBase = trackSizeBC, trackBaseSizeBC
		sequenceSize, boneSize = 68, 1
	}

	chunks := []ChunkRange{
		{"name", h.Name, 1},
		{"globalLoops", h.GlobalLoops, 4},
		{"sequences", h.Sequences, sequenceSize},
		{"sequenceLookup", h.SequenceLookup, 2},
		{"bones", h.Bones, boneSize},
		{"keyBoneLookup", h.KeyBoneLookup, 2},
		{"vertices", h.Vertices, m2VertexSize},
		{"colors", h.Colors, 2 * track},
		{"textures", h.Textures, m2TextureSize},
		{"textureWeights", h.TextureWeights, track},
		{"textureTransforms", h.TextureTransforms, 3 * track},
		{"replaceableTextureLookup", h.ReplaceableTextureLookup, 2},
		{"materials", h.Materials, m2MaterialSize},
		{"boneLookup", h.BoneLookup, 2},
		{"textureLookup", h.TextureLookup, 2},
		{"textureUnitLookup", h.TextureUnitLookup, 2},
		{"transparencyLookup", h.TransparencyLookup, 2},
		{"textureTransformLookup", h.TextureTransformLookup, 2},
		{"collisionIndices", h.CollisionIndices, 2},
		{"collisionPositions", h.CollisionPositions, 12},
		{"collisionFaceNormals", h.CollisionFaceNormals, 12},
		{"attachments", h.Attachments, 20 + track},
		{"attachmentLookup", h.AttachmentLookup, 2},
		{"events", h.Events, 24 + trackBase},
		{"lights", h.Lights, 16 + 7*track},
		{"cameras", h.Cameras, 1},
		{"cameraLookup", h.CameraLookup, 2},
		{"ribbonEmitters", h.RibbonEmitters, 1},
		{"particleEmitters", h.ParticleEmitters, 1},
	}
	if h.Version <= VersionBC {
		chunks = append(chunks,
			ChunkRange{"playableAnimationLookup", h.PlayableAnimationLookup, 4},
			ChunkRange{"skinProfiles", h.SkinProfiles, skinProfileSize},
			ChunkRange{"textureFlipbooks", h.TextureFlipbooks, 1},
		)
	}
	if h.GlobalFlags&GlobalFlagTextureCombinerCombos != 0 {
		chunks = append(chunks, ChunkRange{"textureCombinerCombos", h.TextureCombinerCombos, 2})
	}
	return chunks
}

// ValidateChunks checks that every chunk listed by Chunks lies within a
// buffer of size limit.
func (h *M2Header) ValidateChunks(limit int) error {
	for _, ch := range h.Chunks() {
		if ch.Array.Empty() {
			continue
		}
		start := uint64(h.ChunkBase) + uint64(ch.Array.Offset)
		end := start + uint64(ch.Array.Count)*uint64(ch.ElemSize)
		if end > uint64(limit) {
			return chunkErr(ch.Name, &BoundsError{Pos: int(start), Want: int(end - start), Len: limit})
		}
	}
	return nil
}

// M2Vertex is a 48-byte model vertex.
type M2Vertex struct {
	Position    [3]float32
	BoneWeights [4]uint8
	BoneIndices [4]uint8
	Normal      [3]float32
	TexCoords   [2][2]float32
}

// TextureFlags are the wrap bits of a texture definition.
type TextureFlags uint32

const (
	TextureWrapX TextureFlags = 0x1
	TextureWrapY TextureFlags = 0x2
)

// WrapX reports horizontal tiling.
func (f TextureFlags) WrapX() bool { return f&TextureWrapX != 0 }

// WrapY reports vertical tiling.
func (f TextureFlags) WrapY() bool { return f&TextureWrapY != 0 }

// TextureType identifies hardcoded and replaceable textures.
type TextureType uint32

// TextureHardcoded textures name their file directly; other types are
// resolved at runtime and usually carry no filename.
const TextureHardcoded TextureType = 0

// TextureDefinition is one entry of the model's texture table.
type TextureDefinition struct {
	Type        TextureType
	Flags       TextureFlags
	RawFilename string // as stored, NULs stripped
	Filename    string // base name, lower case
}

// MaterialFlags are render flags of a material.
type MaterialFlags uint16

const (
	MaterialUnlit             MaterialFlags = 0x01
	MaterialUnfogged          MaterialFlags = 0x02
	MaterialTwoSided          MaterialFlags = 0x04
	MaterialDepthTestDisable  MaterialFlags = 0x08
	MaterialDepthWriteDisable MaterialFlags = 0x10
)

// BlendMode is the material blending mode.
type BlendMode uint16

const (
	BlendOpaque     BlendMode = 0
	BlendAlphaKey   BlendMode = 1
	BlendAlpha      BlendMode = 2
	BlendNoAlphaAdd BlendMode = 3
	BlendAdd        BlendMode = 4
	BlendMod        BlendMode = 5
	BlendMod2x      BlendMode = 6
	BlendBlendAdd   BlendMode = 7
)

// String returns a human-readable blending mode name.
func (b BlendMode) String() string {
	switch b {
	case BlendOpaque:
		return "Opaque"
	case BlendAlphaKey:
		return "AlphaKey"
	case BlendAlpha:
		return "Alpha"
	case BlendNoAlphaAdd:
		return "NoAlphaAdd"
	case BlendAdd:
		return "Add"
	case BlendMod:
		return "Mod"
	case BlendMod2x:
		return "Mod2x"
	case BlendBlendAdd:
		return "BlendAdd"
	default:
		return fmt.Sprintf("Unknown(%d)", b)
	}
}

// M2Material is a render flag and blending mode pair.
type M2Material struct {
	Flags MaterialFlags
	Blend BlendMode
}

// M2 is a decoded model file.
type M2 struct {
	Header    M2Header
	Name      string
	Vertices  []M2Vertex
	Textures  []TextureDefinition
	Materials []M2Material

	GlobalLoops            []uint32
	TextureLookup          []uint16
	BoneLookup             []uint16
	TextureUnitLookup      []uint16
	TransparencyLookup     []uint16
	TextureTransformLookup []uint16

	data []byte
}

// Data returns the buffer the model was decoded from.
func (m *M2) Data() []byte { return m.data }

// ParseM2 parses a complete model file.
func ParseM2(data []byte) (*M2, error) {
	c := NewCursor(data)
	h, err := ParseM2Header(c)
	if err != nil {
		return nil, err
	}
	return ParseM2Body(c, h)
}

// ParseM2Header reads the model header, leaving c positioned after it.
// The cursor's chunk base is set when the file starts with a wrapper chunk.
func ParseM2Header(c *Cursor) (*M2Header, error) {
	magic, err := c.ReadTag()
	if err != nil {
		return nil, chunkErr("header", err)
	}
	if magic == m2WrapperMagic {
		if _, err := c.ReadU32(); err != nil {
			return nil, chunkErr("header", err)
		}
		if err := c.SetChunkBase(); err != nil {
			return nil, err
		}
		if magic, err = c.ReadTag(); err != nil {
			return nil, chunkErr("header", err)
		}
	}
	if magic != m2Magic {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidM2Magic, magic)
	}

	h := &M2Header{ChunkBase: c.Base()}
	r := headerReader{c: c}

	r.u32(&h.Version)
	if r.err != nil {
		return nil, chunkErr("header", r.err)
	}
	if h.Version >= VersionLegion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedM2Version, h.Version)
	}

	r.array(&h.Name)
	r.u32(&h.GlobalFlags)
	r.array(&h.GlobalLoops)
	r.array(&h.Sequences)
	r.array(&h.SequenceLookup)
	if h.Version <= VersionBC {
		r.array(&h.PlayableAnimationLookup)
	}
	r.array(&h.Bones)
	r.array(&h.KeyBoneLookup)
	r.array(&h.Vertices)
	if h.Version <= VersionBC {
		r.array(&h.SkinProfiles)
	} else {
		r.u32(&h.NumSkinProfiles)
	}
	r.array(&h.Colors)
	r.array(&h.Textures)
	r.array(&h.TextureWeights)
	if h.Version <= VersionBC {
		r.array(&h.TextureFlipbooks)
	}
	r.array(&h.TextureTransforms)
	r.array(&h.ReplaceableTextureLookup)
	r.array(&h.Materials)
	r.array(&h.BoneLookup)
	r.array(&h.TextureLookup)
	r.array(&h.TextureUnitLookup)
	r.array(&h.TransparencyLookup)
	r.array(&h.TextureTransformLookup)
	r.vec3(&h.BoundingBox[0])
	r.vec3(&h.BoundingBox[1])
	r.f32(&h.BoundingSphereRadius)
	r.vec3(&h.CollisionBox[0])
	r.vec3(&h.CollisionBox[1])
	r.f32(&h.CollisionSphereRadius)
	r.array(&h.CollisionIndices)
	r.array(&h.CollisionPositions)
	r.array(&h.CollisionFaceNormals)
	r.array(&h.Attachments)
	r.array(&h.AttachmentLookup)
	r.array(&h.Events)
	r.array(&h.Lights)
	r.array(&h.Cameras)
	r.array(&h.CameraLookup)
	r.array(&h.RibbonEmitters)
	r.array(&h.ParticleEmitters)
	if h.GlobalFlags&GlobalFlagTextureCombinerCombos != 0 {
		r.array(&h.TextureCombinerCombos)
	}
	if r.err != nil {
		return nil, chunkErr("header", r.err)
	}

	return h, nil
}

// headerReader reads a run of header fields, stopping at the first error.
type headerReader struct {
	c   *Cursor
	err error
}

func (r *headerReader) u32(dst *uint32) {
	if r.err == nil {
		*dst, r.err = r.c.ReadU32()
	}
}

func (r *headerReader) f32(dst *float32) {
	if r.err == nil {
		*dst, r.err = r.c.ReadFloat32()
	}
}

func (r *headerReader) vec3(dst *[3]float32) {
	if r.err == nil {
		*dst, r.err = r.c.ReadVec3()
	}
}

func (r *headerReader) array(dst *M2Array) {
	if r.err == nil {
		*dst, r.err = r.c.ReadArray()
	}
}

// ParseM2Body decodes the body chunks addressed by h.
func ParseM2Body(c *Cursor, h *M2Header) (*M2, error) {
	if err := h.ValidateChunks(c.Len()); err != nil {
		return nil, err
	}

	m := &M2{Header: *h, data: c.data}
	var err error

	if m.Name, err = readName(c, h.Name); err != nil {
		return nil, chunkErr("name", err)
	}
	if m.Vertices, err = readVertices(c, h.Vertices); err != nil {
		return nil, chunkErr("vertices", err)
	}
	if m.Textures, err = readTextures(c, h.Textures); err != nil {
		return nil, chunkErr("textures", err)
	}
	if m.TextureLookup, err = readU16Table(c, h.TextureLookup); err != nil {
		return nil, chunkErr("textureLookup", err)
	}
	if m.Materials, err = readMaterials(c, h.Materials); err != nil {
		return nil, chunkErr("materials", err)
	}

	tables := []struct {
		name string
		arr  M2Array
		dst  *[]uint16
	}{
		{"boneLookup", h.BoneLookup, &m.BoneLookup},
		{"textureUnitLookup", h.TextureUnitLookup, &m.TextureUnitLookup},
		{"transparencyLookup", h.TransparencyLookup, &m.TransparencyLookup},
		{"textureTransformLookup", h.TextureTransformLookup, &m.TextureTransformLookup},
	}
	for _, t := range tables {
		if *t.dst, err = readU16Table(c, t.arr); err != nil {
			return nil, chunkErr(t.name, err)
		}
	}

	m.GlobalLoops = make([]uint32, h.GlobalLoops.Count)
	err = c.Excursion(h.GlobalLoops.Offset, func() error {
		for i := range m.GlobalLoops {
			if m.GlobalLoops[i], err = c.ReadU32(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, chunkErr("globalLoops", err)
	}

	return m, nil
}

func readName(c *Cursor, arr M2Array) (string, error) {
	var name string
	if arr.Empty() {
		return "", nil
	}
	err := c.Excursion(arr.Offset, func() error {
		s, err := c.ReadFixedString(int(arr.Count))
		name = trimNUL(s)
		return err
	})
	return name, err
}

func readVertices(c *Cursor, arr M2Array) ([]M2Vertex, error) {
	vertices := make([]M2Vertex, arr.Count)
	if arr.Empty() {
		return vertices, nil
	}
	err := c.Excursion(arr.Offset, func() error {
		for i := range vertices {
			if err := readVertex(c, &vertices[i]); err != nil {
				return fmt.Errorf("vertex %d: %w", i, err)
			}
		}
		return nil
	})
	return vertices, err
}

func readVertex(c *Cursor, v *M2Vertex) error {
	var err error
	if v.Position, err = c.ReadVec3(); err != nil {
		return err
	}
	weights, err := c.ReadBytes(4)
	if err != nil {
		return err
	}
	copy(v.BoneWeights[:], weights)
	indices, err := c.ReadBytes(4)
	if err != nil {
		return err
	}
	copy(v.BoneIndices[:], indices)
	if v.Normal, err = c.ReadVec3(); err != nil {
		return err
	}
	for i := range v.TexCoords {
		for j := range v.TexCoords[i] {
			if v.TexCoords[i][j], err = c.ReadFloat32(); err != nil {
				return err
			}
		}
	}
	return nil
}

func readTextures(c *Cursor, arr M2Array) ([]TextureDefinition, error) {
	textures := make([]TextureDefinition, arr.Count)
	if arr.Empty() {
		return textures, nil
	}
	err := c.Excursion(arr.Offset, func() error {
		for i := range textures {
			if err := readTexture(c, &textures[i]); err != nil {
				return fmt.Errorf("texture %d: %w", i, err)
			}
		}
		return nil
	})
	return textures, err
}

// readTexture reads one definition; the filename lives in a second chunk.
func readTexture(c *Cursor, t *TextureDefinition) error {
	typ, err := c.ReadU32()
	if err != nil {
		return err
	}
	flags, err := c.ReadU32()
	if err != nil {
		return err
	}
	filename, err := c.ReadArray()
	if err != nil {
		return err
	}
	t.Type = TextureType(typ)
	t.Flags = TextureFlags(flags)
	if filename.Empty() {
		return nil
	}

	return c.Excursion(filename.Offset, func() error {
		s, err := c.ReadFixedString(int(filename.Count))
		if err != nil {
			return fmt.Errorf("filename: %w", err)
		}
		t.RawFilename = trimNUL(s)
		t.Filename = NormalizeTextureName(t.RawFilename)
		return nil
	})
}

func readMaterials(c *Cursor, arr M2Array) ([]M2Material, error) {
	materials := make([]M2Material, arr.Count)
	if arr.Empty() {
		return materials, nil
	}
	err := c.Excursion(arr.Offset, func() error {
		for i := range materials {
			flags, err := c.ReadU16()
			if err != nil {
				return err
			}
			blend, err := c.ReadU16()
			if err != nil {
				return err
			}
			materials[i] = M2Material{Flags: MaterialFlags(flags), Blend: BlendMode(blend)}
		}
		return nil
	})
	return materials, err
}

func readU16Table(c *Cursor, arr M2Array) ([]uint16, error) {
	table := make([]uint16, arr.Count)
	if arr.Empty() {
		return table, nil
	}
	err := c.Excursion(arr.Offset, func() error {
		for i := range table {
			v, err := c.ReadU16()
			if err != nil {
				return err
			}
			table[i] = v
		}
		return nil
	})
	return table, err
}

// NormalizeTextureName strips NULs and any directory prefix and lower-cases
// ASCII letters, giving the key textures are fetched by. Other bytes are
// kept as they are.
func NormalizeTextureName(name string) string {
	name = trimNUL(name)
	if i := strings.LastIndexAny(name, `\/`); i >= 0 {
		name = name[i+1:]
	}
	return asciiLower(name)
}

func asciiLower(s string) string {
	b := []byte(s)
	for i, x := range b {
		if 'A' <= x && x <= 'Z' {
			b[i] = x + 'a' - 'A'
		}
	}
	return string(b)
}

func trimNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

// ResolveTexture maps a texture combo index through the lookup table to a
// texture definition index.
func (m *M2) ResolveTexture(combo int) (int, error) {
	if combo < 0 || combo >= len(m.TextureLookup) {
		return 0, IndexError("texture combo", combo, len(m.TextureLookup))
	}
	idx := int(m.TextureLookup[combo])
	if idx >= len(m.Textures) {
		return 0, IndexError("texture", idx, len(m.Textures))
	}
	return idx, nil
}

// TextureNames returns the distinct non-empty texture filenames in table order.
func (m *M2) TextureNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, t := range m.Textures {
		if t.Filename == "" || seen[t.Filename] {
			continue
		}
		seen[t.Filename] = true
		names = append(names, t.Filename)
	}
	return names
}
