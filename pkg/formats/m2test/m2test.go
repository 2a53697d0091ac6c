// Package m2test builds synthetic M2, skin and BLP2 files for tests.
//
// The builders write the same little-endian layouts the formats package
// reads, so tests can round-trip known values through the decoders.
package m2test

import (
	"encoding/binary"
	"math"
)

// Version cutoffs, duplicated so this package has no dependency on formats.
const (
	VersionBC    uint32 = 263
	VersionWotLK uint32 = 264
)

// Vertex is a model vertex.
type Vertex struct {
	Position    [3]float32
	BoneWeights [4]uint8
	BoneIndices [4]uint8
	Normal      [3]float32
	TexCoords   [2][2]float32
}

// Texture is a texture definition.
type Texture struct {
	Type     uint32
	Flags    uint32
	Filename string
}

// Material is a material record.
type Material struct {
	Flags uint16
	Blend uint16
}

// Section is a skin section.
type Section struct {
	ID, Level                uint16
	VertexStart, VertexCount uint16
	IndexStart, IndexCount   uint16
	BoneCount                uint16
	BoneComboIndex           uint16
	BoneInfluences           uint16
	CenterBoneIndex          uint16
	CenterPosition           [3]float32
	SortCenter               [3]float32
	SortRadius               float32
}

// Batch is a skin batch.
type Batch struct {
	Flags             uint8
	PriorityPlane     int8
	ShaderID          uint16
	SkinSectionIndex  uint16
	MaterialIndex     uint16
	TextureCount      uint16
	TextureComboIndex uint16
}

// Skin describes a skin profile.
type Skin struct {
	Vertices     []uint16
	Indices      []uint16
	Bones        [][4]uint8
	Sections     []Section
	Batches      []Batch
	BoneCountMax uint32
}

// Model describes an M2 file.
type Model struct {
	Version         uint32
	Wrapped         bool // prefix with an MD21 chunk
	GlobalFlags     uint32
	Name            string
	Vertices        []Vertex
	Textures        []Texture
	TextureLookup   []uint16
	Materials       []Material
	BoneLookup      []uint16
	NumSkinProfiles uint32
	Skin            *Skin // embedded profile, Version <= VersionBC only
}

// Writer is an append-only little-endian buffer.
type Writer struct {
	buf []byte
}

// Bytes returns the written data.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) U8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) U16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }

func (w *Writer) U32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

func (w *Writer) F32(v float32) { w.U32(math.Float32bits(v)) }

func (w *Writer) Vec3(v [3]float32) {
	for _, f := range v {
		w.F32(f)
	}
}

func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

func (w *Writer) Zero(n int) { w.buf = append(w.buf, make([]byte, n)...) }

// PutU32 overwrites a previously written uint32.
func (w *Writer) PutU32(at int, v uint32) { binary.LittleEndian.PutUint32(w.buf[at:], v) }

// pairs tracks (count, offset) slots written as placeholders.
type pairs struct {
	w     *Writer
	base  int
	slots map[string]int
}

func newPairs(w *Writer, base int) *pairs {
	return &pairs{w: w, base: base, slots: make(map[string]int)}
}

func (p *pairs) slot(name string) {
	p.slots[name] = p.w.Len()
	p.w.U32(0)
	p.w.U32(0)
}

// fill points the named slot at the current write position.
func (p *pairs) fill(name string, count int) {
	at := p.slots[name]
	p.w.PutU32(at, uint32(count))
	p.w.PutU32(at+4, uint32(p.w.Len()-p.base))
}

// BuildM2 lays out the header followed by every chunk payload.
func BuildM2(m Model) []byte {
	w := &Writer{}
	wrapperSize := -1
	if m.Wrapped {
		w.Raw([]byte("MD21"))
		wrapperSize = w.Len()
		w.U32(0)
	}
	base := w.Len()
	p := newPairs(w, base)
	old := m.Version <= VersionBC

	w.Raw([]byte("MD20"))
	w.U32(m.Version)
	p.slot("name")
	w.U32(m.GlobalFlags)
	p.slot("globalLoops")
	p.slot("sequences")
	p.slot("sequenceLookup")
	if old {
		p.slot("playableAnimationLookup")
	}
	p.slot("bones")
	p.slot("keyBoneLookup")
	p.slot("vertices")
	if old {
		p.slot("skinProfiles")
	} else {
		w.U32(m.NumSkinProfiles)
	}
	p.slot("colors")
	p.slot("textures")
	p.slot("textureWeights")
	if old {
		p.slot("textureFlipbooks")
	}
	p.slot("textureTransforms")
	p.slot("replaceableTextureLookup")
	p.slot("materials")
	p.slot("boneLookup")
	p.slot("textureLookup")
	p.slot("textureUnitLookup")
	p.slot("transparencyLookup")
	p.slot("textureTransformLookup")
	w.Zero(2*12 + 4 + 2*12 + 4) // bounding and collision boxes
	for _, name := range []string{
		"collisionIndices", "collisionPositions", "collisionFaceNormals",
		"attachments", "attachmentLookup", "events", "lights", "cameras",
		"cameraLookup", "ribbonEmitters", "particleEmitters",
	} {
		p.slot(name)
	}
	if m.GlobalFlags&0x08 != 0 {
		p.slot("textureCombinerCombos")
	}

	if m.Name != "" {
		p.fill("name", len(m.Name)+1)
		w.Raw([]byte(m.Name))
		w.U8(0)
	}

	if len(m.Vertices) > 0 {
		p.fill("vertices", len(m.Vertices))
		for _, v := range m.Vertices {
			WriteVertex(w, v)
		}
	}

	if len(m.Textures) > 0 {
		p.fill("textures", len(m.Textures))
		names := make([]int, len(m.Textures))
		for i, t := range m.Textures {
			w.U32(t.Type)
			w.U32(t.Flags)
			names[i] = w.Len()
			w.U32(0)
			w.U32(0)
		}
		for i, t := range m.Textures {
			if t.Filename == "" {
				continue
			}
			w.PutU32(names[i], uint32(len(t.Filename)+1))
			w.PutU32(names[i]+4, uint32(w.Len()-base))
			w.Raw([]byte(t.Filename))
			w.U8(0)
		}
	}

	writeU16s(w, p, "textureLookup", m.TextureLookup)
	writeU16s(w, p, "boneLookup", m.BoneLookup)

	if len(m.Materials) > 0 {
		p.fill("materials", len(m.Materials))
		for _, mat := range m.Materials {
			w.U16(mat.Flags)
			w.U16(mat.Blend)
		}
	}

	if old && m.Skin != nil {
		p.fill("skinProfiles", 1)
		writeSkinProfile(w, base, *m.Skin, m.Version)
	}

	if wrapperSize >= 0 {
		w.PutU32(wrapperSize, uint32(w.Len()-base))
	}
	return w.Bytes()
}

func writeU16s(w *Writer, p *pairs, name string, values []uint16) {
	if len(values) == 0 {
		return
	}
	p.fill(name, len(values))
	for _, v := range values {
		w.U16(v)
	}
}

// WriteVertex writes one 48-byte vertex record.
func WriteVertex(w *Writer, v Vertex) {
	w.Vec3(v.Position)
	w.Raw(v.BoneWeights[:])
	w.Raw(v.BoneIndices[:])
	w.Vec3(v.Normal)
	for _, tc := range v.TexCoords {
		w.F32(tc[0])
		w.F32(tc[1])
	}
}

// BuildSkin writes a standalone skin file for a model of the given version.
func BuildSkin(s Skin, version uint32) []byte {
	w := &Writer{}
	if version >= VersionWotLK {
		w.Raw([]byte("SKIN"))
	}
	writeSkinProfile(w, 0, s, version)
	return w.Bytes()
}

// writeSkinProfile writes the profile header at the current position and
// the payloads right after it.
func writeSkinProfile(w *Writer, base int, s Skin, version uint32) {
	p := newPairs(w, base)
	for _, name := range []string{"vertices", "indices", "bones", "submeshes", "batches"} {
		p.slot(name)
	}
	w.U32(s.BoneCountMax)

	writeU16s(w, p, "vertices", s.Vertices)
	writeU16s(w, p, "indices", s.Indices)

	if len(s.Bones) > 0 {
		p.fill("bones", len(s.Bones))
		for _, b := range s.Bones {
			w.Raw(b[:])
		}
	}

	if len(s.Sections) > 0 {
		p.fill("submeshes", len(s.Sections))
		for _, sec := range s.Sections {
			for _, v := range []uint16{
				sec.ID, sec.Level, sec.VertexStart, sec.VertexCount,
				sec.IndexStart, sec.IndexCount, sec.BoneCount,
				sec.BoneComboIndex, sec.BoneInfluences, sec.CenterBoneIndex,
			} {
				w.U16(v)
			}
			w.Vec3(sec.CenterPosition)
			if version >= VersionBC {
				w.Vec3(sec.SortCenter)
				w.F32(sec.SortRadius)
			}
		}
	}

	if len(s.Batches) > 0 {
		p.fill("batches", len(s.Batches))
		for _, b := range s.Batches {
			w.U8(b.Flags)
			w.U8(uint8(b.PriorityPlane))
			w.U16(b.ShaderID)
			w.U16(b.SkinSectionIndex)
			w.U16(0) // geoset
			w.U16(0) // color
			w.U16(b.MaterialIndex)
			w.U16(0) // material layer
			w.U16(b.TextureCount)
			w.U16(b.TextureComboIndex)
			w.U16(0)
			w.U16(0)
			w.U16(0)
		}
	}
}

// BLP describes a BLP2 texture.
type BLP struct {
	ColorEncoding   uint8
	AlphaSize       uint8
	PreferredFormat uint8
	HasMips         uint8
	Width, Height   uint32
	MipOffsets      [16]uint32
	MipSizes        [16]uint32
	Payload         []byte // written at offset 1172, after header and palette
}

// BLPPayloadOffset is where BuildBLP places the payload.
const BLPPayloadOffset = 148 + 1024

// DXTMips returns a BLP whose mip chain covers width x height with DXT1
// blocks packed after the header. Every block is filled with fill.
func DXTMips(width, height uint32, levels int, fill []byte) BLP {
	b := BLP{ColorEncoding: 2, HasMips: 1, Width: width, Height: height}
	offset := uint32(BLPPayloadOffset)
	w, h := width, height
	for i := 0; i < levels && i < 16; i++ {
		bw, bh := (w+3)/4, (h+3)/4
		size := bw * bh * uint32(len(fill))
		b.MipOffsets[i] = offset
		b.MipSizes[i] = size
		for j := uint32(0); j < bw*bh; j++ {
			b.Payload = append(b.Payload, fill...)
		}
		offset += size
		w, h = w/2, h/2
	}
	return b
}

// BuildBLP writes the header, a zero palette and the payload.
func BuildBLP(b BLP) []byte {
	w := &Writer{}
	w.Raw([]byte("BLP2"))
	w.U32(1)
	w.U8(b.ColorEncoding)
	w.U8(b.AlphaSize)
	w.U8(b.PreferredFormat)
	w.U8(b.HasMips)
	w.U32(b.Width)
	w.U32(b.Height)
	for _, o := range b.MipOffsets {
		w.U32(o)
	}
	for _, s := range b.MipSizes {
		w.U32(s)
	}
	w.Zero(1024)
	w.Raw(b.Payload)
	return w.Bytes()
}
