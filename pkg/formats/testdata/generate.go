//go:build ignore

// This program writes a small WotLK model with its skin and texture into
// the given directory (default ./sample), for trying out m2tool.
// Run with: go run generate.go [dir]
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Faultbox/m2view/pkg/formats/m2test"
)

func main() {
	dir := "sample"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	dir = filepath.Join(dir, "creature", "cube")

	model := m2test.Model{
		Version:         m2test.VersionWotLK,
		Name:            "Cube",
		NumSkinProfiles: 1,
		Textures: []m2test.Texture{
			{Type: 0, Flags: 3, Filename: `Creature\Cube\CubeSkin.blp`},
		},
		TextureLookup: []uint16{0},
		Materials:     []m2test.Material{{Flags: 0, Blend: 0}},
	}

	// Eight corners of a unit cube standing on the ground plane
	for i := 0; i < 8; i++ {
		x, y, z := float32(i&1), float32(i>>1&1), float32(i>>2&1)
		model.Vertices = append(model.Vertices, m2test.Vertex{
			Position:    [3]float32{x - 0.5, y - 0.5, z},
			BoneWeights: [4]uint8{255},
			Normal:      [3]float32{x - 0.5, y - 0.5, z - 0.5},
			TexCoords:   [2][2]float32{{x, y}},
		})
	}

	indices := []uint16{
		0, 2, 1, 1, 2, 3, // bottom
		4, 5, 6, 5, 7, 6, // top
		0, 1, 4, 1, 5, 4, // front
		2, 6, 3, 3, 6, 7, // back
		0, 4, 2, 2, 4, 6, // left
		1, 3, 5, 3, 7, 5, // right
	}
	skin := m2test.Skin{
		Vertices:     []uint16{0, 1, 2, 3, 4, 5, 6, 7},
		Indices:      indices,
		Bones:        [][4]uint8{{0, 0, 0, 0}},
		BoneCountMax: 21,
		Sections: []m2test.Section{
			{VertexCount: 8, IndexCount: uint16(len(indices)), BoneCount: 1, BoneInfluences: 1},
		},
		Batches: []m2test.Batch{{TextureCount: 1}},
	}

	// Solid red DXT1 blocks
	tex := m2test.DXTMips(16, 16, 5, []byte{0x00, 0xf8, 0x00, 0xf8, 0, 0, 0, 0})

	files := map[string][]byte{
		"cube.m2":      m2test.BuildM2(model),
		"cube00.skin":  m2test.BuildSkin(skin, m2test.VersionWotLK),
		"cubeskin.blp": m2test.BuildBLP(tex),
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for name, data := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated %s (%d bytes)\n", path, len(data))
	}
}
