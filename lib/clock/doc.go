// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Image timestamps, result-log durations, and invocation timings all
// read time through a [Clock]. In production, [Real] provides the
// standard library behavior. In tests, [Fake] provides a clock that
// moves only when told to, so recorded durations and creation times
// are exact.
//
// # Wiring Pattern
//
//	type Store struct {
//	    clock clock.Clock
//	}
//
//	s := &Store{clock: clock.Real()}               // production
//	s := &Store{clock: clock.Fake(epoch)}          // tests
package clock
