// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// compilecrac runs batches of compiler invocations around a
// checkpoint.
//
//	compilecrac run [flags] -- A B -- C
//
// splits the tokens on "--", invokes the tool once per group with
// ".java" appended to every token (javac A.java B.java, then javac
// C.java), stopping at the first failure, then writes a checkpoint
// image and exits 0.
//
//	compilecrac restore [flags] -- X -- Y
//
// rebuilds the checkpointed state from the image and runs the new
// tokens the same way. With no tokens, restore invokes nothing. The
// exit status is the first failing tool's status.
//
//	compilecrac inspect [--image-dir DIR]
//
// prints the image header, metadata, and CBOR diagnostic notation of
// its content.
package main
