package packet

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Body encodings carried in the Encoding field.
const (
	EncodingIdentity = ""
	EncodingZstd     = "zstd"
	EncodingLZ4      = "lz4"
)

// maxDecodedBody caps the size of a decompressed body.
const maxDecodedBody = 64 << 20

// zstd.Encoder and zstd.Decoder are safe for concurrent use through
// EncodeAll and DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("packet: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedBody))
	if err != nil {
		panic("packet: zstd decoder initialization failed: " + err.Error())
	}
}

// ValidEncoding reports whether name is a supported body encoding.
func ValidEncoding(name string) bool {
	switch name {
	case EncodingIdentity, EncodingZstd, EncodingLZ4:
		return true
	default:
		return false
	}
}

func compressBody(encoding string, body []byte) ([]byte, error) {
	switch encoding {
	case EncodingIdentity:
		return body, nil
	case EncodingZstd:
		return zstdEncoder.EncodeAll(body, nil), nil
	case EncodingLZ4:
		var out bytes.Buffer
		w := lz4.NewWriter(&out)
		if _, err := w.Write(body); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		return out.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, encoding)
	}
}

func decompressBody(encoding string, body []byte) ([]byte, error) {
	switch encoding {
	case EncodingIdentity:
		return body, nil
	case EncodingZstd:
		out, err := zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return out, nil
	case EncodingLZ4:
		out, err := io.ReadAll(io.LimitReader(lz4.NewReader(bytes.NewReader(body)), maxDecodedBody+1))
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if len(out) > maxDecodedBody {
			return nil, fmt.Errorf("lz4 decompress: body exceeds %d bytes", maxDecodedBody)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, encoding)
	}
}
