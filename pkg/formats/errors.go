package formats

import (
	"errors"
	"fmt"
)

// Error classes. Every decode error wraps one of these.
var (
	ErrFormat      = errors.New("format error")
	ErrOutOfBounds = errors.New("out of bounds")
)

// M2 format errors.
var (
	ErrInvalidM2Magic       = fmt.Errorf("%w: invalid M2 magic: expected 'MD20'", ErrFormat)
	ErrUnsupportedM2Version = fmt.Errorf("%w: unsupported M2 version", ErrFormat)
)

// Skin format errors.
var (
	ErrInvalidSkinMagic = fmt.Errorf("%w: invalid skin magic: expected 'SKIN'", ErrFormat)
	ErrSkinLayout       = fmt.Errorf("%w: skin header overlaps chunk data", ErrFormat)
)

// BLP format errors.
var (
	ErrInvalidBLPMagic        = fmt.Errorf("%w: invalid BLP magic: expected 'BLP2'", ErrFormat)
	ErrUnsupportedPixelFormat = fmt.Errorf("%w: unsupported BLP pixel format", ErrFormat)
)

// BoundsError reports a read or lookup outside a buffer or table.
type BoundsError struct {
	Pos  int // position or index the access started at
	Want int // bytes requested, or the index for table lookups
	Len  int // buffer or table length
	What string
}

func (e *BoundsError) Error() string {
	if e.What != "" {
		return fmt.Sprintf("%s index %d out of range [0,%d)", e.What, e.Want, e.Len)
	}
	return fmt.Sprintf("read of %d bytes at %d past end of %d-byte buffer", e.Want, e.Pos, e.Len)
}

// Is lets errors.Is match ErrOutOfBounds.
func (e *BoundsError) Is(target error) bool {
	return target == ErrOutOfBounds
}

// IndexError returns a BoundsError for a failed table lookup.
func IndexError(table string, index, length int) error {
	return &BoundsError{Want: index, Len: length, What: table}
}

// ChunkError attaches the name of the chunk being decoded to an error.
type ChunkError struct {
	Chunk string
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %s: %v", e.Chunk, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

func chunkErr(name string, err error) error {
	if err == nil {
		return nil
	}
	return &ChunkError{Chunk: name, Err: err}
}
