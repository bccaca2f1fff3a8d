/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import "fmt"

// RunState represents the lifecycle state of a supervised service.
//
// Legal transitions form a cycle:
// Starting → Running → Idle → Stopping → Stopped → Starting,
// with Idle able to re-enter Running and error paths short-cutting
// Starting → Stopped and Running → Stopping.
type RunState int32

// Lifecycle states.
const (
	Starting RunState = iota + 1
	Running
	Idle
	Stopping
	Stopped
)

// runStates lists all states in lifecycle order.
var runStates = []RunState{Starting, Running, Idle, Stopping, Stopped}

var runStateNames = map[RunState]string{
	Starting: "starting",
	Running:  "running",
	Idle:     "idle",
	Stopping: "stopping",
	Stopped:  "stopped",
}

// String implements fmt.Stringer interface.
func (s RunState) String() string {
	if name, ok := runStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("RunState(%d)", int32(s))
}
