// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package history parses the execution history of a failed state machine
// run into a failure record: which state failed, the input it received,
// and the states that completed before it.
package history

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType is the history event type as reported by the execution
// engine (TaskStateEntered, ParallelStateExited, ExecutionFailed, ...).
type EventType string

// Execution-level event types.
const (
	ExecutionStarted   EventType = "ExecutionStarted"
	ExecutionSucceeded EventType = "ExecutionSucceeded"
	ExecutionFailed    EventType = "ExecutionFailed"
	ExecutionAborted   EventType = "ExecutionAborted"
	ExecutionTimedOut  EventType = "ExecutionTimedOut"
)

// State-level event types the parser inspects by name. Entered/exited
// types exist for every state kind and are classified by suffix.
const (
	TaskStateEntered     EventType = "TaskStateEntered"
	TaskStateExited      EventType = "TaskStateExited"
	ParallelStateEntered EventType = "ParallelStateEntered"
	ParallelStateExited  EventType = "ParallelStateExited"
	ParallelStateFailed  EventType = "ParallelStateFailed"
	MapStateEntered      EventType = "MapStateEntered"
	MapStateExited       EventType = "MapStateExited"
	MapStateFailed       EventType = "MapStateFailed"
	TaskFailed           EventType = "TaskFailed"
)

// StateEntered reports whether the event marks entry into a state.
func (t EventType) StateEntered() bool {
	return strings.HasSuffix(string(t), "StateEntered")
}

// StateExited reports whether the event marks a successful exit from a
// state.
func (t EventType) StateExited() bool {
	return strings.HasSuffix(string(t), "StateExited")
}

// Failure reports whether the event is a failure of any granularity:
// the execution itself, a state, or the work item a state was running
// (TaskFailed, LambdaFunctionFailed, ActivityFailed, ...).
func (t EventType) Failure() bool {
	return t == ExecutionFailed || strings.HasSuffix(string(t), "Failed")
}

// opensScope reports whether the event opens a nested branch scope.
// States entered inside that scope are not routable resume targets.
func (t EventType) opensScope() bool {
	return t == ParallelStateEntered || t == MapStateEntered
}

// closesScope reports whether the event closes a nested branch scope.
func (t EventType) closesScope() bool {
	return t == ParallelStateExited || t == MapStateExited
}

// Event is one entry in the ordered execution history.
type Event struct {
	// ID is the event's sequence number, unique and increasing within
	// one execution
	ID int64

	// PreviousID is the sequence number of the causally preceding event
	PreviousID int64

	// Type is the history event type
	Type EventType

	// Timestamp is when the event occurred
	Timestamp time.Time

	// StateName is the associated state, when the event has one
	// (entered/exited events); empty for execution-level events
	StateName string

	// Input is the payload handed to the state on entered events
	Input json.RawMessage

	// Output is the payload produced on exited events
	Output json.RawMessage

	// Error is the error code on failure events
	Error string

	// Cause is the failure detail on failure events
	Cause string
}
