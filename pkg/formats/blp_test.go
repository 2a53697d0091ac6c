package formats

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Faultbox/m2view/pkg/formats/m2test"
)

func TestParseBLP_MagicValidation(t *testing.T) {
	good := m2test.BuildBLP(m2test.DXTMips(8, 8, 1, make([]byte, 8)))

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"valid", good, nil},
		{"invalid magic", append([]byte("BLP1"), good[4:]...), ErrInvalidBLPMagic},
		{"empty", nil, ErrOutOfBounds},
		{"truncated header", good[:100], ErrOutOfBounds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBLP(tt.data, 0)
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

func TestParseBLP_SingleMip(t *testing.T) {
	b := m2test.BLP{ColorEncoding: 2, Width: 64, Height: 64}
	b.MipOffsets[0] = 1024
	b.MipSizes[0] = 2048
	data := m2test.BuildBLP(b)
	data = append(data, make([]byte, 4096)...)

	tex, err := ParseBLP(data, 0)
	if err != nil {
		t.Fatalf("ParseBLP failed: %v", err)
	}
	if len(tex.Mipmaps) != 1 {
		t.Fatalf("mip count = %d, want 1", len(tex.Mipmaps))
	}
	mip := tex.Mipmaps[0]
	if mip.Width != 64 || mip.Height != 64 || len(mip.Data) != 2048 {
		t.Errorf("mip = %dx%d, %d bytes", mip.Width, mip.Height, len(mip.Data))
	}
	if &mip.Data[0] != &data[1024] {
		t.Error("mip data should alias the source buffer")
	}
}

func TestParseBLP_MipChainStopsAtZeroDimension(t *testing.T) {
	b := m2test.BLP{ColorEncoding: 2, Width: 64, Height: 64}
	for i := range b.MipOffsets {
		b.MipOffsets[i] = uint32(m2test.BLPPayloadOffset + i*16)
		b.MipSizes[i] = 16
	}
	b.Payload = make([]byte, 16*16)

	tex, err := ParseBLP(m2test.BuildBLP(b), 0)
	if err != nil {
		t.Fatalf("ParseBLP failed: %v", err)
	}
	if len(tex.Mipmaps) != 7 {
		t.Fatalf("mip count = %d, want 7", len(tex.Mipmaps))
	}
	for i, mip := range tex.Mipmaps {
		want := 64 >> i
		if mip.Width != want || mip.Height != want {
			t.Errorf("level %d = %dx%d, want %dx%d", i, mip.Width, mip.Height, want, want)
		}
	}
}

func TestParseBLP_NonSquareChain(t *testing.T) {
	b := m2test.BLP{ColorEncoding: 2, Width: 64, Height: 16}
	for i := range b.MipOffsets {
		b.MipOffsets[i] = m2test.BLPPayloadOffset
		b.MipSizes[i] = 8
	}
	b.Payload = make([]byte, 8)

	tex, err := ParseBLP(m2test.BuildBLP(b), 0)
	if err != nil {
		t.Fatalf("ParseBLP failed: %v", err)
	}
	// 64x16, 32x8, 16x4, 8x2, 4x1, then height reaches 0.
	if len(tex.Mipmaps) != 5 {
		t.Errorf("mip count = %d, want 5", len(tex.Mipmaps))
	}
	last := tex.Mipmaps[len(tex.Mipmaps)-1]
	if last.Width != 4 || last.Height != 1 {
		t.Errorf("last level = %dx%d, want 4x1", last.Width, last.Height)
	}
}

func TestParseBLP_MipOutOfBounds(t *testing.T) {
	b := m2test.DXTMips(8, 8, 2, make([]byte, 8))
	data := m2test.BuildBLP(b)

	_, err := ParseBLP(data[:len(data)-1], 0)
	if !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("got %v, want ErrOutOfBounds", err)
	}
}

func TestParseBLP_PixelFormat(t *testing.T) {
	tests := []struct {
		name      string
		encoding  uint8
		preferred uint8
		alpha     uint8
		want      PixelFormat
		wantErr   bool
	}{
		{"dxt1 opaque", 2, 0, 0, PixelFormatDXT1RGB, false},
		{"dxt1 alpha", 2, 0, 1, PixelFormatDXT1RGBA, false},
		{"dxt3", 2, 1, 8, PixelFormatDXT3, false},
		{"dxt5", 2, 7, 8, PixelFormatDXT5, false},
		{"argb8888", 2, 2, 8, 0, true},
		{"rgb565", 2, 5, 0, 0, true},
		{"bc5", 2, 11, 0, 0, true},
		{"palettized", 1, 0, 0, 0, true},
		{"uncompressed", 3, 0, 8, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := m2test.DXTMips(4, 4, 1, make([]byte, 16))
			b.ColorEncoding = tt.encoding
			b.PreferredFormat = tt.preferred
			b.AlphaSize = tt.alpha

			tex, err := ParseBLP(m2test.BuildBLP(b), 0)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedPixelFormat) {
					t.Errorf("got %v, want ErrUnsupportedPixelFormat", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tex.Format != tt.want {
				t.Errorf("Format = %s, want %s", tex.Format, tt.want)
			}
		})
	}
}

func TestParseBLP_WrapFlags(t *testing.T) {
	data := m2test.BuildBLP(m2test.DXTMips(4, 4, 1, make([]byte, 8)))

	tests := []struct {
		flags        TextureFlags
		wrapS, wrapT bool
	}{
		{0, false, false},
		{TextureWrapX, true, false},
		{TextureWrapY, false, true},
		{TextureWrapX | TextureWrapY, true, true},
	}
	for _, tt := range tests {
		tex, err := ParseBLP(data, tt.flags)
		if err != nil {
			t.Fatal(err)
		}
		if tex.WrapS != tt.wrapS || tex.WrapT != tt.wrapT {
			t.Errorf("flags %#x: wrap = %v/%v, want %v/%v", tt.flags, tex.WrapS, tex.WrapT, tt.wrapS, tt.wrapT)
		}
	}
}

func TestParseBLP_HeaderFields(t *testing.T) {
	b := m2test.DXTMips(16, 8, 3, bytes.Repeat([]byte{0xab}, 16))
	b.PreferredFormat = 7
	b.AlphaSize = 8
	tex, err := ParseBLP(m2test.BuildBLP(b), 0)
	if err != nil {
		t.Fatal(err)
	}
	h := tex.Header
	if h.Version != 1 || h.ColorEncoding != BLPEncodingDXT || h.AlphaSize != 8 || h.HasMips != 1 {
		t.Errorf("header = %+v", h)
	}
	if tex.Width() != 16 || tex.Height() != 8 {
		t.Errorf("size = %dx%d, want 16x8", tex.Width(), tex.Height())
	}
	if len(tex.Mipmaps) != 3 || tex.Mipmaps[2].Width != 4 || tex.Mipmaps[2].Height != 2 {
		t.Errorf("mips = %+v", tex.Mipmaps)
	}
	if tex.Mipmaps[0].Data[0] != 0xab {
		t.Errorf("mip 0 data = %x", tex.Mipmaps[0].Data[:4])
	}
	if tex.Format.BlockSize() != 16 {
		t.Errorf("BlockSize() = %d, want 16", tex.Format.BlockSize())
	}
}
