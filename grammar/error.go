package grammar

import (
	"errors"
	"fmt"
)

// Common grammar image errors
var (
	// ErrImage indicates a malformed grammar image: bad table lengths,
	// out-of-range indices, unknown opcode kinds or incompatible word sizes.
	ErrImage = errors.New("malformed grammar image")

	// ErrOverflow indicates initializer data that does not fit the
	// interpreter's native word width.
	ErrOverflow = errors.New("grammar image value overflow")
)

// ImageError wraps a grammar image defect with its location.
type ImageError struct {
	Section string // table the defect was found in
	Index   int    // element index within the section, -1 if not applicable
	Message string
}

// Error implements the error interface.
func (e *ImageError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("grammar image: %s[%d]: %s", e.Section, e.Index, e.Message)
	}
	return fmt.Sprintf("grammar image: %s: %s", e.Section, e.Message)
}

// Unwrap returns ErrImage so errors.Is(err, ErrImage) holds.
func (e *ImageError) Unwrap() error {
	return ErrImage
}

func imageErr(section string, index int, format string, args ...any) error {
	return &ImageError{Section: section, Index: index, Message: fmt.Sprintf(format, args...)}
}
