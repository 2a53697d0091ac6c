// Package texture provides block decompression of BLP mip levels and image
// export utilities.
package texture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"

	"github.com/woozymasta/bcn"

	"github.com/Faultbox/m2view/pkg/formats"
)

// Decode decompresses one mip level of a BLP texture.
func Decode(tex *formats.BLP, level int) (*image.NRGBA, error) {
	if level < 0 || level >= len(tex.Mipmaps) {
		return nil, formats.IndexError("mip level", level, len(tex.Mipmaps))
	}
	return DecodeMip(tex.Format, tex.Mipmaps[level])
}

// DecodeMip decompresses a DXT-compressed mip level into an NRGBA image.
// Images smaller than one block still occupy a full 4x4 block in the data.
func DecodeMip(format formats.PixelFormat, mip formats.MipLevel) (*image.NRGBA, error) {
	w, h := mip.Width, mip.Height
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid mip dimensions %dx%d", w, h)
	}

	var bf bcn.Format
	switch format {
	case formats.PixelFormatDXT1RGB, formats.PixelFormatDXT1RGBA:
		bf = bcn.FormatDXT1
	case formats.PixelFormatDXT3:
		bf = bcn.FormatDXT3
	case formats.PixelFormatDXT5:
		bf = bcn.FormatDXT5
	default:
		return nil, fmt.Errorf("%w: %s", formats.ErrUnsupportedPixelFormat, format)
	}

	blockSize := format.BlockSize()
	need := ((w + 3) / 4) * ((h + 3) / 4) * blockSize
	if len(mip.Data) < need {
		return nil, &formats.BoundsError{Want: need, Len: len(mip.Data)}
	}

	data := mip.Data[:need]
	if bf != bcn.FormatDXT1 {
		data = fourColorBlocks(data)
	}

	img, err := bcn.DecodeImage(data, w, h, bf)
	if errors.Is(err, bcn.ErrInsufficientData) {
		return nil, &formats.BoundsError{Want: need, Len: len(mip.Data)}
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s mip %dx%d: %w", format, w, h, err)
	}

	if format == formats.PixelFormatDXT1RGB {
		for i := 3; i < len(img.Pix); i += 4 {
			img.Pix[i] = 255
		}
	}
	return img, nil
}

// fourColorBlocks rewrites DXT3/DXT5 color endpoints so every block decodes
// with the four-color palette. DXT1's three-color mode never applies to
// these formats: c0 < c1 is swapped with its indices remapped, c0 == c1
// collapses to a single color. The input is copied only when a block changes.
func fourColorBlocks(data []byte) []byte {
	out, copied := data, false
	for off := 0; off+16 <= len(data); off += 16 {
		c0 := binary.LittleEndian.Uint16(data[off+8:])
		c1 := binary.LittleEndian.Uint16(data[off+10:])
		if c0 > c1 {
			continue
		}
		if !copied {
			out = append([]byte(nil), data...)
			copied = true
		}
		idx := binary.LittleEndian.Uint32(out[off+12:])
		if c0 == c1 {
			idx = 0
		} else {
			binary.LittleEndian.PutUint16(out[off+8:], c1)
			binary.LittleEndian.PutUint16(out[off+10:], c0)
			idx ^= 0x55555555
		}
		binary.LittleEndian.PutUint32(out[off+12:], idx)
	}
	return out
}
