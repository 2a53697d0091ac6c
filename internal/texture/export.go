package texture

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
)

// Format is an export image format.
type Format string

// Supported export formats.
const (
	FormatPNG  Format = "png"
	FormatBMP  Format = "bmp"
	FormatTGA  Format = "tga"
	FormatWebP Format = "webp"
)

// Formats lists the supported export formats.
var Formats = []Format{FormatPNG, FormatBMP, FormatTGA, FormatWebP}

// ParseFormat parses a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(s, ".")))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown image format %q (want png, bmp, tga or webp)", s)
}

// Ext returns the file extension for the format, including the dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// Encode writes img to w in the given format.
func Encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatBMP:
		return bmp.Encode(w, img)
	case FormatTGA:
		return tga.Encode(w, img)
	case FormatWebP:
		return nativewebp.Encode(w, img, nil)
	default:
		return fmt.Errorf("unknown image format %q", string(f))
	}
}

// Save encodes img into dir, replacing the extension of name with the
// format's. Returns the written path.
func Save(dir, name string, img image.Image, f Format) (string, error) {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base)) + f.Ext()
	path := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}

	if err := Encode(out, img, f); err != nil {
		out.Close()
		return "", fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", path, err)
	}
	return path, nil
}
