// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package image reads and writes checkpoint images.
//
// An image is the durable record of a checkpoint: which resources were
// registered with the facility and the state each of them persisted,
// plus lineage metadata (image ID, parent image, generation). A later
// execution rebuilds the resources from the image and delivers the
// restore event to them.
//
// # File format
//
// One file, <directory>/image.crac, laid out as:
//
//	magic        8 bytes  "BCRACIMG"
//	version      1 byte   format version (currently 1)
//	compression  1 byte   [Compression] tag of the body
//	flags        1 byte   bit 0: body is sealed with age
//	digest      32 bytes  keyed BLAKE3 of the stored body
//	length       4 bytes  big-endian length of the CBOR payload
//	body         rest     payload, compressed then optionally sealed
//
// The payload is the [Image] encoded as CBOR with Core Deterministic
// Encoding, so the same image always produces identical bytes. The
// digest covers the body exactly as stored, so corruption is detected
// before any decryption or decompression is attempted.
//
// # Durability and exclusion
//
// [Store.Save] writes atomically: temporary file, fsync, rename, fsync
// of the parent directory. Readers never observe a partial image.
// Saving and restoring take an exclusive flock on <directory>/image.lock
// so two processes cannot restore from, or overwrite, the same image at
// the same time.
package image
