// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package image

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"filippo.io/age"
	"github.com/zeebo/blake3"
)

// formatVersion is the header version written by this package.
const formatVersion = 1

// flagSealed marks an age-encrypted body.
const flagSealed = 1 << 0

// headerSize is magic + version + compression + flags + digest + length.
const headerSize = 8 + 1 + 1 + 1 + 32 + 4

var magic = [8]byte{'B', 'C', 'R', 'A', 'C', 'I', 'M', 'G'}

// digestKey is the BLAKE3 key for image body digests: the ASCII domain
// name zero-padded to 32 bytes. Changing it invalidates every existing
// image.
var digestKey = [32]byte{
	'c', 'o', 'm', 'p', 'i', 'l', 'e', 'c', 'r', 'a', 'c', '.',
	'i', 'm', 'a', 'g', 'e', '.', 'v', '1',
}

var (
	// ErrNotImage is returned when the data does not start with the
	// image magic.
	ErrNotImage = errors.New("not a checkpoint image")

	// ErrCorrupt is returned when the stored digest does not match the
	// body, or the header is inconsistent.
	ErrCorrupt = errors.New("checkpoint image is corrupt")

	// ErrSealed is returned when a sealed image is decoded without any
	// identity to open it.
	ErrSealed = errors.New("checkpoint image is sealed and no identity was provided")
)

// EncodeOptions controls how an image is written.
type EncodeOptions struct {
	// Compression is the requested body compression. The encoder
	// silently stores the body uncompressed when compression would
	// not shrink it.
	Compression Compression

	// Recipients seal the body with age when non-empty.
	Recipients []age.Recipient
}

// Encode serializes img into the on-disk format.
func Encode(img *Image, options EncodeOptions) ([]byte, error) {
	payload, err := Marshal(img)
	if err != nil {
		return nil, fmt.Errorf("encoding image payload: %w", err)
	}
	if len(payload) > math.MaxUint32 {
		return nil, fmt.Errorf("image payload too large: %d bytes", len(payload))
	}

	body, tag, err := compress(payload, options.Compression)
	if err != nil {
		return nil, err
	}

	var flags byte
	if len(options.Recipients) > 0 {
		body, err = seal(body, options.Recipients)
		if err != nil {
			return nil, err
		}
		flags |= flagSealed
	}

	digest := bodyDigest(body)

	output := make([]byte, 0, headerSize+len(body))
	output = append(output, magic[:]...)
	output = append(output, formatVersion, byte(tag), flags)
	output = append(output, digest[:]...)
	output = binary.BigEndian.AppendUint32(output, uint32(len(payload)))
	output = append(output, body...)
	return output, nil
}

// Header is the decoded fixed-size prefix of an image file.
type Header struct {
	Version     uint8
	Compression Compression
	Sealed      bool
	PayloadSize int
}

// ReadHeader parses and validates the header of data, including the
// body digest. It does not decrypt or decompress anything, so it works
// on sealed images without an identity.
func ReadHeader(data []byte) (Header, error) {
	if len(data) < len(magic) || !bytes.Equal(data[:len(magic)], magic[:]) {
		return Header{}, ErrNotImage
	}
	if len(data) < headerSize {
		return Header{}, fmt.Errorf("%w: truncated header (%d bytes)", ErrCorrupt, len(data))
	}
	header := Header{
		Version:     data[8],
		Compression: Compression(data[9]),
		Sealed:      data[10]&flagSealed != 0,
		PayloadSize: int(binary.BigEndian.Uint32(data[43:47])),
	}
	if header.Version != formatVersion {
		return Header{}, fmt.Errorf("unsupported image format version %d (this build reads %d)", header.Version, formatVersion)
	}

	var stored [32]byte
	copy(stored[:], data[11:43])
	if bodyDigest(data[headerSize:]) != stored {
		return Header{}, fmt.Errorf("%w: digest mismatch", ErrCorrupt)
	}
	return header, nil
}

// Decode parses data written by [Encode]. Sealed images need at least
// one matching identity.
func Decode(data []byte, identities []age.Identity) (*Image, error) {
	header, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}

	body := data[headerSize:]
	if header.Sealed {
		if len(identities) == 0 {
			return nil, ErrSealed
		}
		body, err = unseal(body, identities)
		if err != nil {
			return nil, err
		}
	}

	payload, err := decompress(body, header.Compression, header.PayloadSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var img Image
	if err := Unmarshal(payload, &img); err != nil {
		return nil, fmt.Errorf("%w: decoding payload: %v", ErrCorrupt, err)
	}
	return &img, nil
}

func bodyDigest(body []byte) [32]byte {
	// NewKeyed only fails for a key that is not 32 bytes, which the
	// array type rules out.
	hasher, err := blake3.NewKeyed(digestKey[:])
	if err != nil {
		panic("image: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(body)
	var digest [32]byte
	copy(digest[:], hasher.Sum(nil))
	return digest
}
