package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/Faultbox/m2view/internal/logger"
	"github.com/Faultbox/m2view/internal/model"
	"github.com/Faultbox/m2view/internal/texture"
	"github.com/Faultbox/m2view/pkg/formats"
)

func (a *app) parseModel(name string) (*formats.M2, error) {
	data, err := a.fetch(name)
	if err != nil {
		return nil, err
	}
	return formats.ParseM2(data)
}

func (a *app) cmdInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() < 1 {
		commandUsage("info")
	}

	m, err := a.parseModel(fs.Arg(0))
	if err != nil {
		return err
	}
	h := &m.Header

	fmt.Printf("Model:    %s\n", fs.Arg(0))
	fmt.Printf("Name:     %s\n", m.Name)
	fmt.Printf("Size:     %s\n", humanize.Bytes(uint64(len(m.Data()))))
	fmt.Printf("Version:  %d\n", h.Version)
	fmt.Printf("Flags:    0x%08x\n", h.GlobalFlags)
	fmt.Printf("Skins:    %d", h.SkinProfileCount())
	if h.HasEmbeddedSkins() {
		fmt.Print(" (embedded)")
	}
	fmt.Println()
	fmt.Printf("Bounds:   (%.3f, %.3f, %.3f) - (%.3f, %.3f, %.3f)\n",
		h.BoundingBox[0][0], h.BoundingBox[0][1], h.BoundingBox[0][2],
		h.BoundingBox[1][0], h.BoundingBox[1][1], h.BoundingBox[1][2])
	fmt.Printf("Radius:   %.3f\n", h.BoundingSphereRadius)
	fmt.Println()
	fmt.Println("Chunks:")
	for _, ch := range h.Chunks() {
		if ch.Array.Empty() {
			continue
		}
		fmt.Printf("  %-26s %6d x %-3d @ 0x%08x\n", ch.Name, ch.Array.Count, ch.ElemSize, ch.Array.Offset)
	}
	return nil
}

func (a *app) cmdTextures(args []string) error {
	fs := flag.NewFlagSet("textures", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() < 1 {
		commandUsage("textures")
	}

	m, err := a.parseModel(fs.Arg(0))
	if err != nil {
		return err
	}

	fmt.Printf("Textures (%d):\n", len(m.Textures))
	for i, t := range m.Textures {
		name := t.RawFilename
		if name == "" {
			name = "(replaceable)"
		}
		wrap := ""
		if t.Flags.WrapX() {
			wrap += "S"
		}
		if t.Flags.WrapY() {
			wrap += "T"
		}
		fmt.Printf("  [%2d] type=%-2d wrap=%-2s %s\n", i, t.Type, wrap, name)
	}

	fmt.Printf("\nLookup (%d):", len(m.TextureLookup))
	for _, idx := range m.TextureLookup {
		fmt.Printf(" %d", idx)
	}
	fmt.Println()

	fmt.Printf("\nMaterials (%d):\n", len(m.Materials))
	for i, mat := range m.Materials {
		fmt.Printf("  [%2d] blend=%-10s flags=0x%04x\n", i, mat.Blend, uint16(mat.Flags))
	}
	return nil
}

func (a *app) cmdSkin(args []string) error {
	fs := flag.NewFlagSet("skin", flag.ExitOnError)
	profile := fs.Int("profile", 0, "Skin profile (level of detail)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		commandUsage("skin")
	}

	m, err := a.parseModel(fs.Arg(0))
	if err != nil {
		return err
	}

	var skin *formats.Skin
	if m.Header.HasEmbeddedSkins() {
		skin, err = formats.ParseEmbeddedSkin(m.Data(), &m.Header, *profile)
	} else {
		var data []byte
		if data, err = a.fetch(formats.SkinFileName(fs.Arg(0), *profile)); err != nil {
			return err
		}
		skin, err = formats.ParseSkin(data, m.Header.Version)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Profile:  %d of %d\n", *profile, m.Header.SkinProfileCount())
	fmt.Printf("Vertices: %d\n", len(skin.Vertices))
	fmt.Printf("Indices:  %d (%d triangles)\n", len(skin.Indices), len(skin.Indices)/3)
	fmt.Printf("Bones:    %d (max %d)\n", len(skin.Bones), skin.BoneCountMax)
	fmt.Println()

	fmt.Printf("Sections (%d):\n", len(skin.Sections))
	for i, s := range skin.Sections {
		fmt.Printf("  [%2d] id=%-5d vertices=%d+%d indices=%d+%d\n",
			i, s.ID, s.VertexStart, s.VertexCount, s.FirstIndex(), s.IndexCount)
	}

	fmt.Printf("\nBatches (%d):\n", len(skin.Batches))
	for i, b := range skin.Batches {
		fmt.Printf("  [%2d] section=%-3d material=%-3d texture=%-3d priority=%d\n",
			i, b.SkinSectionIndex, b.MaterialIndex, b.TextureComboIndex, b.PriorityPlane)
	}
	return nil
}

func (a *app) cmdBLP(args []string) error {
	fs := flag.NewFlagSet("blp", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() < 1 {
		commandUsage("blp")
	}

	data, err := a.fetch(fs.Arg(0))
	if err != nil {
		return err
	}
	tex, err := formats.ParseBLP(data, 0)
	if err != nil {
		return err
	}

	fmt.Printf("Texture:  %s\n", fs.Arg(0))
	fmt.Printf("File:     %s\n", humanize.Bytes(uint64(len(data))))
	fmt.Printf("Size:     %dx%d\n", tex.Width(), tex.Height())
	fmt.Printf("Format:   %s (alpha %d bits)\n", tex.Format, tex.Header.AlphaSize)
	fmt.Printf("Mipmaps:  %d\n", len(tex.Mipmaps))
	for i, mip := range tex.Mipmaps {
		fmt.Printf("  [%2d] %4dx%-4d %9s @ 0x%08x\n",
			i, mip.Width, mip.Height, humanize.Bytes(uint64(len(mip.Data))), tex.Header.MipOffsets[i])
	}
	return nil
}

func (a *app) cmdExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	level := fs.Int("mip", a.cfg.Export.MipLevel, "Mip level to export")
	fs.Parse(args)

	if fs.NArg() < 1 {
		commandUsage("export")
	}

	format, err := texture.ParseFormat(a.cfg.Export.Format)
	if err != nil {
		return err
	}

	target := fs.Arg(0)
	textures := make(map[string]*formats.BLP)
	if strings.HasSuffix(strings.TrimSuffix(strings.ToLower(target), ".zst"), ".blp") {
		data, err := a.fetch(target)
		if err != nil {
			return err
		}
		tex, err := formats.ParseBLP(data, 0)
		if err != nil {
			return err
		}
		textures[target] = tex
	} else {
		l, key, err := a.newLoader(target, -1)
		if err != nil {
			return err
		}
		m, err := l.LoadModel(a.ctx, key)
		if err != nil {
			return err
		}
		textures = m.Textures
		for _, name := range m.Missing {
			fmt.Fprintf(os.Stderr, "Missing: %s\n", name)
		}
	}

	names := make([]string, 0, len(textures))
	for name := range textures {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		tex := textures[name]
		lvl := min(*level, len(tex.Mipmaps)-1)
		img, err := texture.Decode(tex, lvl)
		if err != nil {
			return fmt.Errorf("decoding %s: %w", name, err)
		}
		path, err := texture.Save(a.cfg.Export.OutputDir, name, img, format)
		if err != nil {
			return err
		}
		logger.Debug("texture exported", zap.String("texture", name), zap.Int("level", lvl), zap.String("path", path))
		fmt.Printf("Exported: %s (%dx%d)\n", path, img.Bounds().Dx(), img.Bounds().Dy())
	}
	return nil
}

func (a *app) cmdMesh(args []string) error {
	fs := flag.NewFlagSet("mesh", flag.ExitOnError)
	profile := fs.Int("profile", -1, "Skin profile (default from config)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		commandUsage("mesh")
	}

	l, key, err := a.newLoader(fs.Arg(0), *profile)
	if err != nil {
		return err
	}
	m, err := l.LoadModel(a.ctx, key)
	if err != nil {
		return err
	}
	mesh := m.Mesh

	size := mesh.Bounds.Size()
	dx, dy := model.CenterXY(mesh)
	fmt.Printf("Mesh:      %s\n", mesh.Name)
	fmt.Printf("Vertices:  %d\n", len(mesh.Vertices))
	fmt.Printf("Indices:   %d\n", mesh.IndexCount())
	fmt.Printf("Size:      %.3f x %.3f x %.3f\n", size[0], size[1], size[2])
	fmt.Printf("Center:    offset (%.3f, %.3f)\n", dx, dy)
	fmt.Printf("Textures:  %d loaded, %d missing\n", len(m.Textures), len(m.Missing))
	fmt.Println()

	fmt.Printf("Render units (%d):\n", len(mesh.Units))
	for _, u := range mesh.Units {
		g := mesh.Groups[u.Group]
		tex := "(unbound)"
		if u.Texture != nil {
			tex = u.Texture.Name
		}
		fmt.Printf("  batch=%-3d group=%-3d tris=%-5d blend=%-10s priority=%-3d %s\n",
			u.Batch, u.Group, len(g.Indices)/3, u.Material.Blend, u.PriorityPlane, tex)
	}

	if len(mesh.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(mesh.Warnings))
		for _, w := range mesh.Warnings {
			fmt.Printf("  %s\n", w)
		}
	}
	return nil
}

func (a *app) cmdList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("n", 0, "Limit output to N files (0 = all)")
	fs.Parse(args)

	pattern := ""
	if fs.NArg() > 0 {
		pattern = fs.Arg(0)
	}

	m, _, err := a.manager("")
	if err != nil {
		return err
	}

	count := 0
	for _, key := range m.List(pattern) {
		fmt.Println(key)
		count++
		if *limit > 0 && count >= *limit {
			break
		}
	}

	if pattern != "" {
		fmt.Fprintf(os.Stderr, "\n(%d files matched)\n", count)
	}
	return nil
}
