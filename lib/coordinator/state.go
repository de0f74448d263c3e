// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import "fmt"

// State is a coordinator lifecycle state.
type State int

const (
	Starting State = iota
	RunningInitial
	RegisteredWaiting
	Restoring
	RunningRestored

	// Failed is terminal: a tool invocation failed and the process is
	// about to exit with its status.
	Failed
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case RunningInitial:
		return "running-initial"
	case RegisteredWaiting:
		return "registered-waiting"
	case Restoring:
		return "restoring"
	case RunningRestored:
		return "running-restored"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
