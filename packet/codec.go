package packet

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/jacentio/arbor/internal/codec"
	"github.com/jacentio/arbor/item"
)

// Packet is a decoded request or response.
type Packet struct {
	Fields     Fields
	Operations []item.Operation
}

// Decode parses one complete packet as returned by Reader.Next. Errors
// wrap ErrInvalidPacket.
func Decode(raw []byte) (*Packet, error) {
	headerEnd := bytes.Index(raw, blankLine)
	if headerEnd < 0 {
		return nil, fmt.Errorf("%w: missing header terminator", ErrInvalidPacket)
	}

	fields, err := parseFields(raw[:headerEnd])
	if err != nil {
		return nil, err
	}

	body := raw[headerEnd+len(blankLine):]
	lengthText, ok := fields.Lookup(FieldLength)
	if !ok {
		return nil, fmt.Errorf("%w: missing %s field", ErrInvalidPacket, FieldLength)
	}
	length, err := strconv.Atoi(lengthText)
	if err != nil || length != len(body) {
		return nil, fmt.Errorf("%w: %s %q does not match body of %d bytes", ErrInvalidPacket, FieldLength, lengthText, len(body))
	}

	ops, err := decodeBody(fields.Get(FieldEncoding), body)
	if err != nil {
		return nil, err
	}
	return &Packet{Fields: fields, Operations: ops}, nil
}

func parseFields(header []byte) (Fields, error) {
	var fields Fields
	for _, line := range strings.Split(string(header), "\n") {
		key, value, ok := strings.Cut(line, ": ")
		if !ok || key == "" {
			return Fields{}, fmt.Errorf("%w: bad header line %q", ErrInvalidPacket, line)
		}
		fields.Set(key, value)
	}
	return fields, nil
}

func decodeBody(encoding string, body []byte) ([]item.Operation, error) {
	if len(body) == 0 {
		return nil, nil
	}
	plain, err := decompressBody(encoding, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPacket, err)
	}
	var ops []item.Operation
	if err := codec.Unmarshal(plain, &ops); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPacket, err)
	}
	for i, op := range ops {
		if op.Kind == 0 {
			return nil, fmt.Errorf("%w: operation %d has no kind", ErrInvalidPacket, i)
		}
	}
	return ops, nil
}

// Encode serializes fields and ops into a packet. Fields are written in
// insertion order followed by the computed Length; any Length already in
// fields is ignored. When fields carries an Encoding, the body is
// compressed with it.
func Encode(fields Fields, ops []item.Operation) ([]byte, error) {
	var body []byte
	if len(ops) > 0 {
		plain, err := codec.Marshal(ops)
		if err != nil {
			return nil, fmt.Errorf("encoding operations: %w", err)
		}
		body, err = compressBody(fields.Get(FieldEncoding), plain)
		if err != nil {
			return nil, err
		}
	}

	var out bytes.Buffer
	for _, key := range fields.keys {
		if key == FieldLength {
			continue
		}
		if key == "" || strings.ContainsAny(key, ":\n") {
			return nil, fmt.Errorf("invalid header field name %q", key)
		}
		out.WriteString(key)
		out.WriteString(": ")
		out.WriteString(strings.ReplaceAll(fields.values[key], "\n", " "))
		out.WriteByte('\n')
	}
	out.WriteString(FieldLength)
	out.WriteString(": ")
	out.WriteString(strconv.Itoa(len(body)))
	out.Write(blankLine)
	out.Write(body)
	return out.Bytes(), nil
}

// ErrorFields returns the header of an error response.
func ErrorFields(reason string, code int) Fields {
	return NewFields(
		FieldStatus, StatusError,
		FieldReason, reason,
		FieldErrorCode, strconv.Itoa(code),
	)
}
