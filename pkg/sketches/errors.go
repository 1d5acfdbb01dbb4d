package sketches

import "errors"

var (
	// ErrConfiguration is returned for invalid creation parameters or for
	// operations on sketches whose shapes do not agree.
	ErrConfiguration = errors.New("invalid sketch parameters")

	// ErrTypeMismatch is returned when an item's type differs from the type
	// already recorded by a sketch.
	ErrTypeMismatch = errors.New("item type mismatch")

	// ErrUnsupportedItem is returned when a composite item is offered to a
	// top-n collection.
	ErrUnsupportedItem = errors.New("unsupported item")

	// ErrInvalidEncoding is returned when decoding a malformed sketch.
	ErrInvalidEncoding = errors.New("invalid sketch encoding")
)
