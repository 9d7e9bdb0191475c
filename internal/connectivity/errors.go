package connectivity

import "errors"

// Sentinel errors. Match with errors.Is; callers wrap them with context.
var (
	// ErrUnsupportedFormat is returned when a statistic does not carry 1, 2
	// or 3 values.
	ErrUnsupportedFormat = errors.New("connectivity: unsupported statistic format")

	// ErrLengthMismatch is returned when paired slices differ in length.
	ErrLengthMismatch = errors.New("connectivity: length mismatch")

	// ErrShapeMismatch is returned when labels or annotations do not match
	// the matrix they describe.
	ErrShapeMismatch = errors.New("connectivity: shape mismatch")
)
