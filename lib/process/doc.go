// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers. These functions
// centralize the raw I/O and os.Exit calls that exist before or after
// the structured logger:
//
//   - Fatal error reporting to stderr when the logger may not be
//     initialized.
//   - Translating an error returned from run() into an exit code. A
//     failing compiler status must become the process status unchanged,
//     so errors carrying an ExitCode() method take precedence over the
//     generic code 1.
//   - Halting the process after a successful checkpoint.
package process
