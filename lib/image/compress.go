// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package image

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the algorithm applied to an image body. Tags
// are stored in the file header (1 byte); changing the values breaks
// compatibility with existing images.
type Compression uint8

const (
	// CompressionNone stores the payload as-is.
	CompressionNone Compression = 0

	// CompressionLZ4 is LZ4 block compression: fastest restore.
	CompressionLZ4 Compression = 1

	// CompressionZstd is zstd at the default level. Image payloads
	// are mostly strings (paths, arguments), which zstd handles best.
	CompressionZstd Compression = 2
)

// String returns the configuration name of a compression tag.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a configuration name. The empty string means
// zstd.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd", "":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want none, lz4, or zstd)", name)
	}
}

// errIncompressible is returned by the compressors when the output
// would not be smaller than the input. The caller stores the payload
// uncompressed instead.
var errIncompressible = errors.New("payload is incompressible")

// zstd.Encoder and zstd.Decoder are safe for concurrent use and
// expensive to construct, so one of each is shared.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("image: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("image: zstd decoder initialization failed: " + err.Error())
	}
}

// compress returns the compressed payload and the tag actually used,
// which is CompressionNone when compression does not help.
func compress(payload []byte, requested Compression) ([]byte, Compression, error) {
	var (
		compressed []byte
		err        error
	)
	switch requested {
	case CompressionNone:
		return payload, CompressionNone, nil
	case CompressionLZ4:
		compressed, err = compressLZ4(payload)
	case CompressionZstd:
		compressed, err = compressZstd(payload)
	default:
		return nil, 0, fmt.Errorf("unsupported compression: %s", requested)
	}
	if errors.Is(err, errIncompressible) {
		return payload, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return compressed, requested, nil
}

// decompress reverses compress. payloadSize must equal the original
// payload length exactly.
func decompress(body []byte, tag Compression, payloadSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(body) != payloadSize {
			return nil, fmt.Errorf("uncompressed body: size %d does not match header length %d", len(body), payloadSize)
		}
		return body, nil
	case CompressionLZ4:
		destination := make([]byte, payloadSize)
		read, err := lz4.UncompressBlock(body, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != payloadSize {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, payloadSize)
		}
		return destination, nil
	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(body, make([]byte, 0, payloadSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != payloadSize {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), payloadSize)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported compression tag %d", uint8(tag))
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}
