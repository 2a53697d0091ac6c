// BLP2 compressed texture parser.

package formats

import "fmt"

const (
	blpMagic     = "BLP2"
	blpMipSlots  = 16
	blpHeaderLen = 4 + 4 + 4 + 8 + blpMipSlots*8
)

// BLPColorEncoding is how pixel data is stored.
type BLPColorEncoding uint8

const (
	BLPEncodingPalette BLPColorEncoding = 1
	BLPEncodingDXT     BLPColorEncoding = 2
	BLPEncodingARGB    BLPColorEncoding = 3
)

// BLP preferred formats that map to a supported block-compressed format.
const (
	blpPreferredDXT1 uint8 = 0
	blpPreferredDXT3 uint8 = 1
	blpPreferredDXT5 uint8 = 7
)

// PixelFormat is a block-compressed pixel format a texture decodes to.
type PixelFormat int

const (
	PixelFormatDXT1RGB PixelFormat = iota + 1
	PixelFormatDXT1RGBA
	PixelFormatDXT3
	PixelFormatDXT5
)

// String returns a human-readable format name.
func (f PixelFormat) String() string {
	switch f {
	case PixelFormatDXT1RGB:
		return "DXT1"
	case PixelFormatDXT1RGBA:
		return "DXT1A"
	case PixelFormatDXT3:
		return "DXT3"
	case PixelFormatDXT5:
		return "DXT5"
	default:
		return fmt.Sprintf("Unknown(%d)", int(f))
	}
}

// BlockSize returns the byte size of one 4x4 block.
func (f PixelFormat) BlockSize() int {
	if f == PixelFormatDXT1RGB || f == PixelFormatDXT1RGBA {
		return 8
	}
	return 16
}

// BLPHeader is the fixed BLP2 header.
type BLPHeader struct {
	Version         uint32
	ColorEncoding   BLPColorEncoding
	AlphaSize       uint8
	PreferredFormat uint8
	HasMips         uint8
	Width           uint32
	Height          uint32
	MipOffsets      [blpMipSlots]uint32
	MipSizes        [blpMipSlots]uint32
}

// MipLevel is one level of the mip chain. Data aliases the source buffer.
type MipLevel struct {
	Width  int
	Height int
	Data   []byte
}

// BLP is a decoded compressed texture.
type BLP struct {
	Header  BLPHeader
	Format  PixelFormat
	Mipmaps []MipLevel
	WrapS   bool
	WrapT   bool
}

// Width returns the width of the top mip level.
func (b *BLP) Width() int { return int(b.Header.Width) }

// Height returns the height of the top mip level.
func (b *BLP) Height() int { return int(b.Header.Height) }

// ParseBLP parses a BLP2 texture. The wrap flags come from the texture
// definition that referenced the file.
func ParseBLP(data []byte, flags TextureFlags) (*BLP, error) {
	c := NewCursor(data)
	h, err := parseBLPHeader(c)
	if err != nil {
		return nil, err
	}

	format, err := blpPixelFormat(h)
	if err != nil {
		return nil, err
	}

	mips, err := buildMipChain(data, h)
	if err != nil {
		return nil, chunkErr("mipmaps", err)
	}

	return &BLP{
		Header:  *h,
		Format:  format,
		Mipmaps: mips,
		WrapS:   flags.WrapX(),
		WrapT:   flags.WrapY(),
	}, nil
}

func parseBLPHeader(c *Cursor) (*BLPHeader, error) {
	magic, err := c.ReadTag()
	if err != nil {
		return nil, chunkErr("header", err)
	}
	if magic != blpMagic {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidBLPMagic, magic)
	}
	if c.Remaining() < blpHeaderLen-4 {
		return nil, chunkErr("header", &BoundsError{Pos: c.Pos(), Want: blpHeaderLen - 4, Len: c.Len()})
	}

	// Length was checked above, so the reads below cannot fail.
	h := &BLPHeader{}
	h.Version, _ = c.ReadU32()
	enc, _ := c.ReadU8()
	h.ColorEncoding = BLPColorEncoding(enc)
	h.AlphaSize, _ = c.ReadU8()
	h.PreferredFormat, _ = c.ReadU8()
	h.HasMips, _ = c.ReadU8()
	h.Width, _ = c.ReadU32()
	h.Height, _ = c.ReadU32()
	for i := range h.MipOffsets {
		h.MipOffsets[i], _ = c.ReadU32()
	}
	for i := range h.MipSizes {
		h.MipSizes[i], _ = c.ReadU32()
	}
	return h, nil
}

func blpPixelFormat(h *BLPHeader) (PixelFormat, error) {
	if h.ColorEncoding != BLPEncodingDXT {
		return 0, fmt.Errorf("%w: color encoding %d", ErrUnsupportedPixelFormat, h.ColorEncoding)
	}
	switch h.PreferredFormat {
	case blpPreferredDXT1:
		if h.AlphaSize > 0 {
			return PixelFormatDXT1RGBA, nil
		}
		return PixelFormatDXT1RGB, nil
	case blpPreferredDXT3:
		return PixelFormatDXT3, nil
	case blpPreferredDXT5:
		return PixelFormatDXT5, nil
	default:
		return 0, fmt.Errorf("%w: preferred format %d", ErrUnsupportedPixelFormat, h.PreferredFormat)
	}
}

// buildMipChain walks the 16 mip slots, halving the dimensions each level,
// and stops at the first zero offset or zero dimension.
func buildMipChain(data []byte, h *BLPHeader) ([]MipLevel, error) {
	var mips []MipLevel
	width, height := int(h.Width), int(h.Height)
	for i := 0; i < blpMipSlots; i++ {
		offset, size := h.MipOffsets[i], h.MipSizes[i]
		if offset == 0 || width == 0 || height == 0 {
			break
		}
		end := uint64(offset) + uint64(size)
		if end > uint64(len(data)) {
			return nil, fmt.Errorf("level %d: %w", i, &BoundsError{Pos: int(offset), Want: int(size), Len: len(data)})
		}
		mips = append(mips, MipLevel{
			Width:  width,
			Height: height,
			Data:   data[offset:end:end],
		})
		width /= 2
		height /= 2
	}
	return mips, nil
}
