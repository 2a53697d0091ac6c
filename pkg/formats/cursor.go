package formats

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// Cursor is a sequential little-endian reader over an immutable byte buffer.
//
// Offsets passed to MoveTo are relative to the chunk base, which is 0 for a
// plain file and the byte after the wrapper header for wrapped model files.
// Positions saved with Push are restored with Pop in LIFO order, so chunk
// excursions can nest.
type Cursor struct {
	data       []byte
	pos        int
	base       int
	baseLocked bool
	saved      []int
}

// NewCursor creates a cursor positioned at the start of data.
func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Pos returns the absolute read position.
func (c *Cursor) Pos() int { return c.pos }

// Base returns the chunk base offset.
func (c *Cursor) Base() int { return c.base }

// Len returns the size of the underlying buffer.
func (c *Cursor) Len() int { return len(c.data) }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.data) - c.pos }

// Depth returns the number of saved positions.
func (c *Cursor) Depth() int { return len(c.saved) }

// SetChunkBase fixes the chunk base at the current position.
// It may be called at most once per cursor.
func (c *Cursor) SetChunkBase() error {
	if c.baseLocked {
		return fmt.Errorf("%w: chunk base already set at %d", ErrFormat, c.base)
	}
	c.base = c.pos
	c.baseLocked = true
	return nil
}

// MoveTo positions the cursor at base+offset.
func (c *Cursor) MoveTo(offset uint32) error {
	abs := c.base + int(offset)
	if abs < 0 || abs > len(c.data) {
		return &BoundsError{Pos: abs, Len: len(c.data)}
	}
	c.pos = abs
	return nil
}

// Skip advances the cursor by n bytes.
func (c *Cursor) Skip(n int) error {
	if err := c.need(n); err != nil {
		return err
	}
	c.pos += n
	return nil
}

// Push saves the current position.
func (c *Cursor) Push() {
	c.saved = append(c.saved, c.pos)
}

// Pop restores the most recently saved position.
func (c *Cursor) Pop() error {
	n := len(c.saved)
	if n == 0 {
		return errors.New("cursor: pop without matching push")
	}
	c.pos = c.saved[n-1]
	c.saved = c.saved[:n-1]
	return nil
}

// Excursion saves the position, moves to offset, runs fn and restores the
// saved position whether or not fn succeeds.
func (c *Cursor) Excursion(offset uint32, fn func() error) (err error) {
	c.Push()
	defer func() {
		if perr := c.Pop(); perr != nil && err == nil {
			err = perr
		}
	}()
	if err := c.MoveTo(offset); err != nil {
		return err
	}
	return fn()
}

func (c *Cursor) need(n int) error {
	if n < 0 || c.pos+n > len(c.data) {
		return &BoundsError{Pos: c.pos, Want: n, Len: len(c.data)}
	}
	return nil
}

// ReadU8 reads an unsigned byte.
func (c *Cursor) ReadU8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := c.data[c.pos]
	c.pos++
	return v, nil
}

// ReadI8 reads a signed byte.
func (c *Cursor) ReadI8() (int8, error) {
	v, err := c.ReadU8()
	return int8(v), err
}

// ReadU16 reads a little-endian uint16.
func (c *Cursor) ReadU16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(c.data[c.pos:])
	c.pos += 2
	return v, nil
}

// ReadI16 reads a little-endian int16.
func (c *Cursor) ReadI16() (int16, error) {
	v, err := c.ReadU16()
	return int16(v), err
}

// ReadU32 reads a little-endian uint32.
func (c *Cursor) ReadU32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.data[c.pos:])
	c.pos += 4
	return v, nil
}

// ReadFloat32 reads a little-endian IEEE 754 float.
func (c *Cursor) ReadFloat32() (float32, error) {
	bits, err := c.ReadU32()
	return math.Float32frombits(bits), err
}

// ReadVec3 reads three consecutive floats.
func (c *Cursor) ReadVec3() ([3]float32, error) {
	var v [3]float32
	for i := range v {
		f, err := c.ReadFloat32()
		if err != nil {
			return v, err
		}
		v[i] = f
	}
	return v, nil
}

// ReadBytes returns the next n bytes without copying them.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	b := c.data[c.pos : c.pos+n : c.pos+n]
	c.pos += n
	return b, nil
}

// ReadFixedString reads exactly n bytes, one character per byte. Bytes above
// 0x7f are taken as Latin-1 so the result is valid UTF-8 and distinct bytes
// stay distinct. Embedded NULs are kept.
func (c *Cursor) ReadFixedString(n int) (string, error) {
	b, err := c.ReadBytes(n)
	if err != nil {
		return "", err
	}
	return latin1(b), nil
}

func latin1(b []byte) string {
	for i, x := range b {
		if x >= utf8.RuneSelf {
			var sb strings.Builder
			sb.Grow(len(b) + len(b) - i)
			sb.Write(b[:i])
			for _, x := range b[i:] {
				sb.WriteRune(rune(x))
			}
			return sb.String()
		}
	}
	return string(b)
}

// ReadTag reads a 4-byte magic tag.
func (c *Cursor) ReadTag() (string, error) {
	return c.ReadFixedString(4)
}

// ReadArray reads a (count, offset) pair.
func (c *Cursor) ReadArray() (M2Array, error) {
	count, err := c.ReadU32()
	if err != nil {
		return M2Array{}, err
	}
	offset, err := c.ReadU32()
	if err != nil {
		return M2Array{}, err
	}
	return M2Array{Count: count, Offset: offset}, nil
}
