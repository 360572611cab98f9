// Package packet implements the arbor wire format.
//
// A packet is a block of "Key: Value" header lines, a blank line, and a
// body of exactly Length bytes:
//
//	Login: alice
//	Password: secret
//	Length: 42
//
//	<42 bytes of CBOR-encoded operations>
//
// [Reader] frames packets out of a byte stream using a [Matcher], which
// only needs the Length line and the blank line to find the end of a
// packet. [Decode] and [Encode] convert between framed bytes and
// [Packet] values. The body may be compressed with zstd or lz4 when the
// Encoding field names one; Length always counts bytes on the wire.
package packet
