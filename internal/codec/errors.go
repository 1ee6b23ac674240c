package codec

import "errors"

var (
	// ErrMalformed is returned when an encoding is truncated or invalid.
	ErrMalformed = errors.New("codec: malformed encoding")

	// ErrUnknownElementType is returned when a comparable set declares an
	// element type that has no binding.
	ErrUnknownElementType = errors.New("codec: unknown set element type")

	// ErrUnsupportedType is returned for Go values that cannot be stored.
	ErrUnsupportedType = errors.New("codec: unsupported value type")
)
