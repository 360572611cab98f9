package packet

import (
	"bytes"
	"fmt"
	"strconv"
)

var (
	lengthMarker = []byte(FieldLength + ": ")
	lengthLine   = []byte("\n" + FieldLength + ": ")
	blankLine    = []byte("\n\n")
)

// Limits bounds the size of a single packet.
type Limits struct {
	// MaxPacketSize is the largest accepted body Length, in bytes.
	MaxPacketSize int

	// MaxHeaderSize is the largest accepted header block, in bytes,
	// including the blank line.
	MaxHeaderSize int
}

// DefaultLimits returns limits suitable for interactive sync traffic.
func DefaultLimits() Limits {
	return Limits{
		MaxPacketSize: 16 << 20,
		MaxHeaderSize: 64 << 10,
	}
}

// validate fills zero limits with defaults.
func (l *Limits) validate() {
	def := DefaultLimits()
	if l.MaxPacketSize <= 0 {
		l.MaxPacketSize = def.MaxPacketSize
	}
	if l.MaxHeaderSize <= 0 {
		l.MaxHeaderSize = def.MaxHeaderSize
	}
}

// Matcher finds the end of one packet in a growing buffer. The buffer
// passed to successive Match calls must start at the same packet; call
// Reset once the packet has been consumed.
//
// Once the header has been seen, the parsed body length and offset are
// kept so later calls only compare sizes.
type Matcher struct {
	limits    Limits
	bodyStart int
	expected  int
}

// NewMatcher returns a Matcher enforcing limits.
func NewMatcher(limits Limits) *Matcher {
	limits.validate()
	return &Matcher{limits: limits}
}

// Match reports whether buf holds a complete packet and, if so, the
// offset just past its last body byte. A nil error with complete false
// means more bytes are needed. Errors wrap ErrFraming.
func (m *Matcher) Match(buf []byte) (end int, complete bool, err error) {
	if m.bodyStart == 0 {
		if err := m.parseHeader(buf); err != nil {
			return 0, false, err
		}
		if m.bodyStart == 0 {
			return 0, false, nil
		}
	}

	end = m.bodyStart + m.expected
	if end > len(buf) {
		return 0, false, nil
	}
	return end, true, nil
}

// Reset forgets the current packet.
func (m *Matcher) Reset() {
	m.bodyStart = 0
	m.expected = 0
}

func (m *Matcher) parseHeader(buf []byte) error {
	headerEnd := bytes.Index(buf, blankLine)
	if headerEnd < 0 {
		return m.checkPending(buf)
	}
	if headerEnd+len(blankLine) > m.limits.MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	// Keep the newline ending the last header line.
	header := buf[:headerEnd+1]
	numStart := lengthValue(header)
	if numStart < 0 {
		return ErrMissingLength
	}
	numEnd := numStart + bytes.IndexByte(header[numStart:], '\n')
	n, err := strconv.ParseUint(string(header[numStart:numEnd]), 10, 63)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrMalformedLength, header[numStart:numEnd])
	}
	if n > uint64(m.limits.MaxPacketSize) {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrPacketTooLarge, n, m.limits.MaxPacketSize)
	}

	m.expected = int(n)
	m.bodyStart = headerEnd + len(blankLine)
	return nil
}

// lengthValue returns the offset of the value of the last Length line in
// header, or -1. Only whole-line field names match, and the last one wins
// as it does in Decode.
func lengthValue(header []byte) int {
	if pos := bytes.LastIndex(header, lengthLine); pos >= 0 {
		return pos + len(lengthLine)
	}
	if bytes.HasPrefix(header, lengthMarker) {
		return len(lengthMarker)
	}
	return -1
}

// checkPending rejects a header that keeps growing without a terminator.
func (m *Matcher) checkPending(buf []byte) error {
	if len(buf) > m.limits.MaxHeaderSize {
		return ErrHeaderTooLarge
	}
	return nil
}
