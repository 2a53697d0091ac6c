// Skin profile parser: triangulation, submeshes and render batches.

package formats

import "fmt"

const (
	skinMagic = "SKIN"

	// skinProfileSize is the size of an embedded profile header:
	// five (count, offset) pairs and the bone count.
	skinProfileSize = 44

	skinSectionSize       = 32
	skinSectionSortedSize = 48
	skinBatchSize         = 24
)

// SkinSection is a submesh: a range of the skin's vertex and index lists.
type SkinSection struct {
	ID              uint16
	Level           uint16
	VertexStart     uint16
	VertexCount     uint16
	IndexStart      uint16
	IndexCount      uint16
	BoneCount       uint16
	BoneComboIndex  uint16
	BoneInfluences  uint16
	CenterBoneIndex uint16
	CenterPosition  [3]float32
	SortCenter      [3]float32 // >= VersionBC
	SortRadius      float32    // >= VersionBC
}

// FirstIndex returns the absolute start of the section's index range.
// Level carries the high 16 bits for skins with more than 65535 indices.
func (s SkinSection) FirstIndex() int {
	return int(s.IndexStart) | int(s.Level)<<16
}

// SkinBatch binds a section to a material and a texture combo.
type SkinBatch struct {
	Flags                      uint8
	PriorityPlane              int8
	ShaderID                   uint16
	SkinSectionIndex           uint16
	GeosetIndex                uint16
	ColorIndex                 uint16
	MaterialIndex              uint16
	MaterialLayer              uint16
	TextureCount               uint16
	TextureComboIndex          uint16
	TextureCoordComboIndex     uint16
	TextureWeightComboIndex    uint16
	TextureTransformComboIndex uint16
}

// Skin is a decoded skin profile.
type Skin struct {
	Version      uint32
	Vertices     []uint16   // local vertex -> model vertex
	Indices      []uint16   // triangle list into Vertices
	Bones        [][4]uint8 // bone combo entries
	Sections     []SkinSection
	Batches      []SkinBatch
	BoneCountMax uint32
}

// SkinFileName returns the skin file name for a model path and profile.
func SkinFileName(modelPath string, profile int) string {
	base := modelPath
	if n := len(base); n >= 3 && (base[n-3:] == ".m2" || base[n-3:] == ".M2") {
		base = base[:n-3]
	}
	return fmt.Sprintf("%s%02d.skin", base, profile)
}

// ParseSkin parses a standalone skin file for a model of the given version.
func ParseSkin(data []byte, version uint32) (*Skin, error) {
	c := NewCursor(data)
	if version >= VersionWotLK {
		magic, err := c.ReadTag()
		if err != nil {
			return nil, chunkErr("header", err)
		}
		if magic != skinMagic {
			return nil, fmt.Errorf("%w: got %q", ErrInvalidSkinMagic, magic)
		}
	}
	return parseSkinProfile(c, version, true)
}

// ParseEmbeddedSkin decodes a skin profile stored inside a model file, as
// models up to VersionBC do.
func ParseEmbeddedSkin(data []byte, h *M2Header, profile int) (*Skin, error) {
	if !h.HasEmbeddedSkins() {
		return nil, fmt.Errorf("%w: version %d has no embedded skin profiles", ErrFormat, h.Version)
	}
	if profile < 0 || profile >= int(h.SkinProfiles.Count) {
		return nil, IndexError("skin profile", profile, int(h.SkinProfiles.Count))
	}

	c := NewCursor(data)
	if err := c.Skip(h.ChunkBase); err != nil {
		return nil, chunkErr("skinProfiles", err)
	}
	if err := c.SetChunkBase(); err != nil {
		return nil, err
	}
	if err := c.MoveTo(h.SkinProfiles.Offset + uint32(profile)*skinProfileSize); err != nil {
		return nil, chunkErr("skinProfiles", err)
	}
	return parseSkinProfile(c, h.Version, false)
}

// parseSkinProfile reads the five chunk pairs at the cursor, each chunk
// payload, and the bone count that follows the batch pair.
func parseSkinProfile(c *Cursor, version uint32, standalone bool) (*Skin, error) {
	var pairs [5]M2Array
	for i := range pairs {
		arr, err := c.ReadArray()
		if err != nil {
			return nil, chunkErr("header", err)
		}
		pairs[i] = arr
	}
	vertices, indices, bones, sections, batches := pairs[0], pairs[1], pairs[2], pairs[3], pairs[4]

	s := &Skin{Version: version}
	var err error

	if s.Vertices, err = readU16Table(c, vertices); err != nil {
		return nil, chunkErr("vertices", err)
	}
	if s.Indices, err = readU16Table(c, indices); err != nil {
		return nil, chunkErr("indices", err)
	}
	if s.Bones, err = readBoneCombos(c, bones); err != nil {
		return nil, chunkErr("bones", err)
	}
	if s.Sections, err = readSkinSections(c, sections, version); err != nil {
		return nil, chunkErr("submeshes", err)
	}
	if s.Batches, err = readSkinBatches(c, batches); err != nil {
		return nil, chunkErr("batches", err)
	}

	// The bone count is not addressed by a pair; it sits right after the
	// batch pair, where every excursion above returned the cursor to.
	if s.BoneCountMax, err = c.ReadU32(); err != nil {
		return nil, chunkErr("boneCountMax", err)
	}

	if standalone {
		headerEnd := c.Pos()
		for i, arr := range pairs {
			if !arr.Empty() && int(arr.Offset) < headerEnd {
				return nil, fmt.Errorf("%w: %s chunk at %d, header ends at %d",
					ErrSkinLayout, skinChunkNames[i], arr.Offset, headerEnd)
			}
		}
	}

	return s, nil
}

var skinChunkNames = [5]string{"vertices", "indices", "bones", "submeshes", "batches"}

func readBoneCombos(c *Cursor, arr M2Array) ([][4]uint8, error) {
	bones := make([][4]uint8, arr.Count)
	if arr.Empty() {
		return bones, nil
	}
	err := c.Excursion(arr.Offset, func() error {
		for i := range bones {
			b, err := c.ReadBytes(4)
			if err != nil {
				return err
			}
			copy(bones[i][:], b)
		}
		return nil
	})
	return bones, err
}

func readSkinSections(c *Cursor, arr M2Array, version uint32) ([]SkinSection, error) {
	sections := make([]SkinSection, arr.Count)
	if arr.Empty() {
		return sections, nil
	}
	err := c.Excursion(arr.Offset, func() error {
		for i := range sections {
			if err := readSkinSection(c, &sections[i], version); err != nil {
				return fmt.Errorf("submesh %d: %w", i, err)
			}
		}
		return nil
	})
	return sections, err
}

func readSkinSection(c *Cursor, s *SkinSection, version uint32) error {
	fields := []*uint16{
		&s.ID, &s.Level,
		&s.VertexStart, &s.VertexCount,
		&s.IndexStart, &s.IndexCount,
		&s.BoneCount, &s.BoneComboIndex, &s.BoneInfluences, &s.CenterBoneIndex,
	}
	for _, f := range fields {
		v, err := c.ReadU16()
		if err != nil {
			return err
		}
		*f = v
	}
	var err error
	if s.CenterPosition, err = c.ReadVec3(); err != nil {
		return err
	}
	if version >= VersionBC {
		if s.SortCenter, err = c.ReadVec3(); err != nil {
			return err
		}
		if s.SortRadius, err = c.ReadFloat32(); err != nil {
			return err
		}
	}
	return nil
}

func readSkinBatches(c *Cursor, arr M2Array) ([]SkinBatch, error) {
	batches := make([]SkinBatch, arr.Count)
	if arr.Empty() {
		return batches, nil
	}
	err := c.Excursion(arr.Offset, func() error {
		for i := range batches {
			if err := readSkinBatch(c, &batches[i]); err != nil {
				return fmt.Errorf("batch %d: %w", i, err)
			}
		}
		return nil
	})
	return batches, err
}

func readSkinBatch(c *Cursor, b *SkinBatch) error {
	var err error
	if b.Flags, err = c.ReadU8(); err != nil {
		return err
	}
	if b.PriorityPlane, err = c.ReadI8(); err != nil {
		return err
	}
	fields := []*uint16{
		&b.ShaderID,
		&b.SkinSectionIndex,
		&b.GeosetIndex,
		&b.ColorIndex,
		&b.MaterialIndex,
		&b.MaterialLayer,
		&b.TextureCount,
		&b.TextureComboIndex,
		&b.TextureCoordComboIndex,
		&b.TextureWeightComboIndex,
		&b.TextureTransformComboIndex,
	}
	for _, f := range fields {
		v, err := c.ReadU16()
		if err != nil {
			return err
		}
		*f = v
	}
	return nil
}
