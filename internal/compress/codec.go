// Package compress provides the codecs used for serialized bootstrap results.
package compress

import (
	"fmt"
	"strings"
)

// Type identifies a compression algorithm. The value is written into blobs,
// so existing values must never change.
type Type byte

const (
	None Type = 0
	Zstd Type = 1
	LZ4  Type = 2
)

// String returns the configuration name of t.
func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// ParseType maps a configuration name to a Type. Empty means zstd.
func ParseType(name string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none":
		return None, nil
	case "", "zstd":
		return Zstd, nil
	case "lz4":
		return LZ4, nil
	default:
		return None, fmt.Errorf("unsupported compression %q", name)
	}
}

// Codec compresses and decompresses whole payloads. Implementations are safe
// for concurrent use and return slices owned by the caller.
type Codec interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

var builtinCodecs = map[Type]Codec{
	None: noopCodec{},
	Zstd: zstdCodec{},
	LZ4:  lz4Codec{},
}

// GetCodec returns the built-in codec for t.
func GetCodec(t Type) (Codec, error) {
	if codec, ok := builtinCodecs[t]; ok {
		return codec, nil
	}
	return nil, fmt.Errorf("unsupported compression type: %s", t)
}

type noopCodec struct{}

func (noopCodec) Compress(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}

func (noopCodec) Decompress(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}
