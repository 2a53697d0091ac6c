package loader

import (
	"errors"
	"fmt"
)

// ErrResource matches any ResourceError.
var ErrResource = errors.New("resource unavailable")

// ResourceError reports a file the fetcher could not supply.
type ResourceError struct {
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrResource.
func (e *ResourceError) Is(target error) bool {
	return target == ErrResource
}
