package packet

import (
	"io"
)

// readChunk is the size of each read from the underlying stream.
const readChunk = 32 << 10

// Reader splits a byte stream into packets. Bytes that arrive after the
// end of one packet are kept for the next call to Next, so pipelined
// requests are never lost.
type Reader struct {
	src     io.Reader
	matcher *Matcher
	buf     []byte
	scratch []byte
	err     error
}

// NewReader returns a Reader over src.
func NewReader(src io.Reader, limits Limits) *Reader {
	return &Reader{
		src:     src,
		matcher: NewMatcher(limits),
		scratch: make([]byte, readChunk),
	}
}

// Next blocks until one complete packet has been read and returns it,
// header included. The returned slice is not reused by the Reader.
//
// A clean end of stream between packets returns io.EOF; a stream that
// ends inside a packet returns io.ErrUnexpectedEOF. Framing errors wrap
// ErrFraming and are permanent.
func (r *Reader) Next() ([]byte, error) {
	for {
		if len(r.buf) > 0 {
			end, complete, err := r.matcher.Match(r.buf)
			if err != nil {
				r.err = err
				return nil, err
			}
			if complete {
				packet := r.buf[:end:end]
				r.buf = append([]byte(nil), r.buf[end:]...)
				r.matcher.Reset()
				return packet, nil
			}
		}

		if r.err != nil {
			if r.err == io.EOF && len(r.buf) > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, r.err
		}

		n, err := r.src.Read(r.scratch)
		r.buf = append(r.buf, r.scratch[:n]...)
		r.err = err
	}
}

// Buffered returns the number of bytes read past the last returned packet.
func (r *Reader) Buffered() int {
	return len(r.buf)
}
