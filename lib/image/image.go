// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package image

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Image is the decoded content of a checkpoint image.
type Image struct {
	// ID uniquely identifies this image. See [NewID].
	ID string `cbor:"id"`

	// Parent is the ID of the image this execution was restored
	// from, or empty for the first checkpoint of a lineage.
	Parent string `cbor:"parent,omitempty"`

	// Component names the program that wrote the image.
	Component string `cbor:"component"`

	// Generation counts checkpoints in this lineage, starting at 1.
	Generation uint64 `cbor:"generation"`

	// CreatedAt is when the checkpoint was taken.
	CreatedAt time.Time `cbor:"created_at"`

	// Hostname is the machine the checkpoint was taken on. Restore
	// may happen elsewhere; this is informational.
	Hostname string `cbor:"hostname,omitempty"`

	// Writer is the version string of the binary that wrote the image.
	Writer string `cbor:"writer,omitempty"`

	// Resources are the registered resources in registration order.
	Resources []Record `cbor:"resources"`
}

// Record is one persisted resource.
type Record struct {
	// Kind selects the factory that rebuilds the resource on restore.
	Kind string `cbor:"kind"`

	// State is the resource's own CBOR snapshot, embedded as-is so
	// diagnostic output shows its structure.
	State cbor.RawMessage `cbor:"state,omitempty"`
}

// NewID returns a fresh random image ID.
func NewID() string {
	return uuid.NewString()
}

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map
// keys, smallest integer encoding, no indefinite-length items. Times
// are written as RFC 3339 strings with nanoseconds so CreatedAt
// survives a round trip exactly.
var encMode cbor.EncMode

// decMode accepts standard CBOR. Unknown fields are ignored so older
// binaries can read images written by newer ones.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("image: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("image: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v with the image CBOR configuration. Resources use
// it to produce the State of their [Record].
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data produced by [Marshal] into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) of the
// image payload, for human inspection.
func Diagnose(img *Image) (string, error) {
	payload, err := Marshal(img)
	if err != nil {
		return "", fmt.Errorf("encoding image: %w", err)
	}
	return cbor.Diagnose(payload)
}
