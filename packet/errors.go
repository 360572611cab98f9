package packet

import (
	"errors"
	"fmt"
)

var (
	// ErrFraming is the parent of every error that desynchronizes the
	// stream. A connection that reports one cannot be read further.
	ErrFraming = errors.New("arbor: packet framing failed")

	// ErrMalformedLength is returned when the Length field is not a
	// decimal integer.
	ErrMalformedLength = fmt.Errorf("%w: malformed length field", ErrFraming)

	// ErrMissingLength is returned when a complete header block has no
	// Length line.
	ErrMissingLength = fmt.Errorf("%w: missing length field", ErrFraming)

	// ErrPacketTooLarge is returned when the declared body length exceeds
	// the configured maximum.
	ErrPacketTooLarge = fmt.Errorf("%w: packet too large", ErrFraming)

	// ErrHeaderTooLarge is returned when the header block grows past the
	// configured maximum without a terminator.
	ErrHeaderTooLarge = fmt.Errorf("%w: header too large", ErrFraming)

	// ErrInvalidPacket is returned when a complete packet cannot be
	// decoded. The stream itself stays in sync.
	ErrInvalidPacket = errors.New("arbor: invalid packet format")

	// ErrUnknownEncoding is returned for an Encoding field naming an
	// unsupported body compression.
	ErrUnknownEncoding = errors.New("arbor: unknown body encoding")
)
