package formats

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/Faultbox/m2view/pkg/formats/m2test"
)

func sampleModel(version uint32) m2test.Model {
	return m2test.Model{
		Version: version,
		Name:    "Creature\\Wolf\\Wolf",
		Vertices: []m2test.Vertex{
			{Position: [3]float32{1, 2, 3}, Normal: [3]float32{0, 0, 1}, TexCoords: [2][2]float32{{0.25, 0.5}}},
			{Position: [3]float32{-1, 0, 4}, BoneWeights: [4]uint8{255}, BoneIndices: [4]uint8{3}, Normal: [3]float32{0, 1, 0}},
			{Position: [3]float32{0, 5, 0}, Normal: [3]float32{1, 0, 0}, TexCoords: [2][2]float32{{1, 1}, {0.5, 0.5}}},
		},
		Textures: []m2test.Texture{
			{Type: 0, Flags: 3, Filename: "Creature\\Wolf\\WolfSkin.BLP"},
			{Type: 11, Flags: 0},
			{Type: 0, Flags: 1, Filename: "textures/Fur.blp"},
		},
		TextureLookup:   []uint16{2, 0, 1},
		Materials:       []m2test.Material{{Flags: 0x04, Blend: 1}, {Flags: 0x11, Blend: 2}},
		BoneLookup:      []uint16{0, 3},
		NumSkinProfiles: 2,
	}
}

func TestParseM2_MagicValidation(t *testing.T) {
	good := m2test.BuildM2(sampleModel(VersionWotLK))

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"valid", good, nil},
		{"invalid magic", append([]byte("XXXX"), good[4:]...), ErrInvalidM2Magic},
		{"wrapper around bad magic", append([]byte("MD21\x00\x00\x00\x00XXXX"), good[4:]...), ErrInvalidM2Magic},
		{"empty", nil, ErrOutOfBounds},
		{"truncated magic", []byte("MD"), ErrOutOfBounds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseM2(tt.data)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseM2_RoundTrip(t *testing.T) {
	m, err := ParseM2(m2test.BuildM2(sampleModel(VersionWotLK)))
	if err != nil {
		t.Fatalf("ParseM2 failed: %v", err)
	}

	if m.Name != "Creature\\Wolf\\Wolf" {
		t.Errorf("Name = %q", m.Name)
	}
	if m.Header.Version != VersionWotLK {
		t.Errorf("Version = %d", m.Header.Version)
	}
	if m.Header.SkinProfileCount() != 2 {
		t.Errorf("SkinProfileCount() = %d, want 2", m.Header.SkinProfileCount())
	}

	if len(m.Vertices) != 3 {
		t.Fatalf("vertex count = %d, want 3", len(m.Vertices))
	}
	v := m.Vertices[1]
	if v.Position != [3]float32{-1, 0, 4} {
		t.Errorf("Vertices[1].Position = %v", v.Position)
	}
	if v.BoneWeights[0] != 255 || v.BoneIndices[0] != 3 {
		t.Errorf("Vertices[1] bones = %v %v", v.BoneWeights, v.BoneIndices)
	}
	if m.Vertices[2].TexCoords[1] != [2]float32{0.5, 0.5} {
		t.Errorf("Vertices[2].TexCoords[1] = %v", m.Vertices[2].TexCoords[1])
	}

	if len(m.Textures) != 3 {
		t.Fatalf("texture count = %d, want 3", len(m.Textures))
	}
	if m.Textures[0].Filename != "wolfskin.blp" {
		t.Errorf("Textures[0].Filename = %q, want %q", m.Textures[0].Filename, "wolfskin.blp")
	}
	if m.Textures[0].RawFilename != "Creature\\Wolf\\WolfSkin.BLP" {
		t.Errorf("Textures[0].RawFilename = %q", m.Textures[0].RawFilename)
	}
	if !m.Textures[0].Flags.WrapX() || !m.Textures[0].Flags.WrapY() {
		t.Errorf("Textures[0].Flags = %#x, want both wrap bits", m.Textures[0].Flags)
	}
	if m.Textures[1].Type != 11 || m.Textures[1].Filename != "" {
		t.Errorf("Textures[1] = %+v", m.Textures[1])
	}
	if m.Textures[2].Filename != "fur.blp" {
		t.Errorf("Textures[2].Filename = %q", m.Textures[2].Filename)
	}

	if len(m.Materials) != 2 || m.Materials[0].Blend != BlendAlphaKey || m.Materials[1].Flags != MaterialUnlit|MaterialDepthWriteDisable {
		t.Errorf("Materials = %+v", m.Materials)
	}
	if len(m.TextureLookup) != 3 || m.TextureLookup[0] != 2 {
		t.Errorf("TextureLookup = %v", m.TextureLookup)
	}
	if len(m.BoneLookup) != 2 || m.BoneLookup[1] != 3 {
		t.Errorf("BoneLookup = %v", m.BoneLookup)
	}

	names := m.TextureNames()
	if len(names) != 2 || names[0] != "wolfskin.blp" || names[1] != "fur.blp" {
		t.Errorf("TextureNames() = %v", names)
	}
}

func TestParseM2_Wrapped(t *testing.T) {
	model := sampleModel(VersionWotLK + 8)
	model.Wrapped = true

	m, err := ParseM2(m2test.BuildM2(model))
	if err != nil {
		t.Fatalf("ParseM2 failed: %v", err)
	}
	if m.Header.ChunkBase != 8 {
		t.Errorf("ChunkBase = %d, want 8", m.Header.ChunkBase)
	}
	if len(m.Vertices) != 3 || m.Vertices[0].Position != [3]float32{1, 2, 3} {
		t.Errorf("Vertices = %+v", m.Vertices)
	}
	if m.Textures[0].Filename != "wolfskin.blp" {
		t.Errorf("Textures[0].Filename = %q", m.Textures[0].Filename)
	}
}

func TestParseM2Header_VersionGating(t *testing.T) {
	t.Run("last embedded-skin version", func(t *testing.T) {
		model := sampleModel(VersionBC)
		model.Skin = &m2test.Skin{Vertices: []uint16{0}}
		c := NewCursor(m2test.BuildM2(model))
		h, err := ParseM2Header(c)
		if err != nil {
			t.Fatal(err)
		}
		if h.SkinProfiles.Count != 1 || h.SkinProfiles.Offset == 0 {
			t.Errorf("SkinProfiles = %+v, want one profile", h.SkinProfiles)
		}
		if h.NumSkinProfiles != 0 {
			t.Errorf("NumSkinProfiles = %d, want 0", h.NumSkinProfiles)
		}
		if !h.HasEmbeddedSkins() {
			t.Error("HasEmbeddedSkins() = false")
		}
		// magic, version, 32 pairs, flags, bounding and collision boxes
		if want := 4 + 4 + 32*8 + 4 + 56; c.Pos() != want {
			t.Errorf("header size = %d, want %d", c.Pos(), want)
		}
	})

	t.Run("first external-skin version", func(t *testing.T) {
		model := sampleModel(VersionBC + 1)
		model.NumSkinProfiles = 4
		c := NewCursor(m2test.BuildM2(model))
		h, err := ParseM2Header(c)
		if err != nil {
			t.Fatal(err)
		}
		if h.NumSkinProfiles != 4 || h.SkinProfileCount() != 4 {
			t.Errorf("NumSkinProfiles = %d, want 4", h.NumSkinProfiles)
		}
		if !h.SkinProfiles.Empty() || !h.TextureFlipbooks.Empty() || !h.PlayableAnimationLookup.Empty() {
			t.Error("pre-WotLK pairs should be absent")
		}
		// Two pairs fewer, one pair replaced by a scalar.
		if want := 4 + 4 + 29*8 + 4 + 4 + 56; c.Pos() != want {
			t.Errorf("header size = %d, want %d", c.Pos(), want)
		}
	})

	t.Run("texture combiner combos flag", func(t *testing.T) {
		model := sampleModel(VersionWotLK)
		model.GlobalFlags = GlobalFlagTextureCombinerCombos
		plain := NewCursor(m2test.BuildM2(sampleModel(VersionWotLK)))
		flagged := NewCursor(m2test.BuildM2(model))
		if _, err := ParseM2Header(plain); err != nil {
			t.Fatal(err)
		}
		if _, err := ParseM2Header(flagged); err != nil {
			t.Fatal(err)
		}
		if flagged.Pos() != plain.Pos()+8 {
			t.Errorf("flagged header ends at %d, want %d", flagged.Pos(), plain.Pos()+8)
		}
	})
}

func TestParseM2Header_UnsupportedVersion(t *testing.T) {
	for _, v := range []uint32{VersionLegion, VersionLegion + 1, 0xffffffff} {
		data := m2test.BuildM2(sampleModel(v))
		// Only magic and version: any further read would fail.
		_, err := ParseM2Header(NewCursor(data[:8]))
		if !errors.Is(err, ErrUnsupportedM2Version) {
			t.Errorf("version %d: got %v, want ErrUnsupportedM2Version", v, err)
		}
	}

	for _, v := range []uint32{VersionClassic, VersionBC, VersionWotLK, VersionLegion - 1} {
		if _, err := ParseM2(m2test.BuildM2(sampleModel(v))); err != nil {
			t.Errorf("version %d: unexpected error %v", v, err)
		}
	}
}

func TestParseM2_Truncated(t *testing.T) {
	data := m2test.BuildM2(sampleModel(VersionWotLK))

	for _, n := range []int{0, 4, 7, 60, 200, len(data) - 1} {
		_, err := ParseM2(data[:n])
		if !errors.Is(err, ErrOutOfBounds) {
			t.Errorf("truncated to %d bytes: got %v, want ErrOutOfBounds", n, err)
		}
	}
}

func TestParseM2_ChunkErrorNamesChunk(t *testing.T) {
	data := m2test.BuildM2(sampleModel(VersionWotLK))
	_, err := ParseM2(data[:len(data)-1])

	var ce *ChunkError
	if !errors.As(err, &ce) {
		t.Fatalf("error %v is not a *ChunkError", err)
	}
	if ce.Chunk == "" {
		t.Error("ChunkError has no chunk name")
	}
}

func TestM2Header_ValidateChunks(t *testing.T) {
	h := &M2Header{Version: VersionWotLK, Vertices: M2Array{Count: 2, Offset: 100}}
	if err := h.ValidateChunks(196); err != nil {
		t.Errorf("exact fit: unexpected error %v", err)
	}
	if err := h.ValidateChunks(195); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("one byte short: got %v, want ErrOutOfBounds", err)
	}

	h.ChunkBase = 8
	if err := h.ValidateChunks(196); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("with chunk base: got %v, want ErrOutOfBounds", err)
	}
}

func TestParseM2_AnimationChunksOutOfRange(t *testing.T) {
	good := m2test.BuildM2(sampleModel(VersionWotLK))

	// Offsets of (count, offset) pairs in an unwrapped WotLK header
	pairs := []struct {
		chunk string
		at    int
	}{
		{"sequences", 28},
		{"bones", 44},
		{"colors", 72},
		{"textureWeights", 88},
		{"textureTransforms", 96},
	}
	for _, p := range pairs {
		t.Run(p.chunk, func(t *testing.T) {
			data := append([]byte(nil), good...)
			binary.LittleEndian.PutUint32(data[p.at:], 1000)
			binary.LittleEndian.PutUint32(data[p.at+4:], 0xfffffff0)

			_, err := ParseM2(data)
			if !errors.Is(err, ErrOutOfBounds) {
				t.Fatalf("got %v, want ErrOutOfBounds", err)
			}
			var ce *ChunkError
			if !errors.As(err, &ce) || ce.Chunk != p.chunk {
				t.Errorf("error %v does not name chunk %q", err, p.chunk)
			}
		})
	}
}

func TestM2Header_ValidateChunks_AllPairs(t *testing.T) {
	for _, version := range []uint32{VersionClassic, VersionBC, VersionWotLK} {
		h := &M2Header{Version: version}
		far := M2Array{Count: 1, Offset: 1 << 20}
		for _, arr := range []*M2Array{
			&h.Sequences, &h.Bones, &h.Colors, &h.TextureWeights, &h.TextureTransforms,
			&h.Attachments, &h.Events, &h.Lights, &h.Cameras, &h.RibbonEmitters,
			&h.ParticleEmitters, &h.TextureFlipbooks,
		} {
			if arr == &h.TextureFlipbooks && version > VersionBC {
				continue
			}
			*arr = far
			if err := h.ValidateChunks(1024); !errors.Is(err, ErrOutOfBounds) {
				t.Errorf("version %d: chunk at %d not rejected: %v", version, far.Offset, err)
			}
			*arr = M2Array{}
		}
	}

	// Record sizes follow the track layout of the version
	h := &M2Header{Version: VersionWotLK, Sequences: M2Array{Count: 2, Offset: 0}}
	if err := h.ValidateChunks(128); err != nil {
		t.Errorf("two WotLK sequences in 128 bytes: %v", err)
	}
	h.Version = VersionBC
	if err := h.ValidateChunks(128); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("two BC sequences in 128 bytes: got %v, want ErrOutOfBounds", err)
	}
}

func TestM2_ResolveTexture(t *testing.T) {
	m := &M2{
		Textures:      make([]TextureDefinition, 3),
		TextureLookup: []uint16{2, 0, 1},
	}

	tests := []struct {
		combo   int
		want    int
		wantErr bool
	}{
		{0, 2, false},
		{1, 0, false},
		{2, 1, false},
		{3, 0, true},
		{-1, 0, true},
	}
	for _, tt := range tests {
		got, err := m.ResolveTexture(tt.combo)
		if tt.wantErr {
			if !errors.Is(err, ErrOutOfBounds) {
				t.Errorf("combo %d: got %v, want ErrOutOfBounds", tt.combo, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("combo %d: got %d, %v; want %d", tt.combo, got, err, tt.want)
		}
	}

	m.TextureLookup = []uint16{7}
	if _, err := m.ResolveTexture(0); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("lookup past texture table: got %v, want ErrOutOfBounds", err)
	}
}

func TestNormalizeTextureName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Creature\\Wolf\\WolfSkin.BLP", "wolfskin.blp"},
		{"textures/Fur.blp", "fur.blp"},
		{"Plain.BLP\x00\x00", "plain.blp"},
		{"Tex\xC0.BLP", "tex\xC0.blp"},
		{"Tex\u00C9.BLP", "tex\u00C9.blp"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeTextureName(tt.in); got != tt.want {
			t.Errorf("NormalizeTextureName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if NormalizeTextureName("Tex\xC0.blp") == NormalizeTextureName("Tex\xE9.blp") {
		t.Error("distinct high bytes normalized to the same name")
	}
}

func TestParseM2_HighByteTextureNames(t *testing.T) {
	model := sampleModel(VersionWotLK)
	model.Textures = []m2test.Texture{
		{Filename: "Creature\\Tex\xC0.BLP"},
		{Filename: "Creature\\Tex\xE9.BLP"},
	}
	model.TextureLookup = []uint16{0, 1}

	m, err := ParseM2(m2test.BuildM2(model))
	if err != nil {
		t.Fatal(err)
	}

	if got, want := m.Textures[0].RawFilename, "Creature\\Tex\u00C0.BLP"; got != want {
		t.Errorf("RawFilename = %q, want %q", got, want)
	}
	want := []string{"tex\u00C0.blp", "tex\u00E9.blp"}
	names := m.TextureNames()
	if len(names) != 2 || names[0] != want[0] || names[1] != want[1] {
		t.Errorf("TextureNames = %q, want %q", names, want)
	}
}

func TestBlendMode_String(t *testing.T) {
	tests := []struct {
		mode BlendMode
		want string
	}{
		{BlendOpaque, "Opaque"},
		{BlendAlphaKey, "AlphaKey"},
		{BlendAlpha, "Alpha"},
		{BlendMod2x, "Mod2x"},
		{BlendMode(99), "Unknown(99)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.mode.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
