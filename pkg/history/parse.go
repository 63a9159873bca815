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

package history

import (
	"encoding/json"

	"github.com/tombee/stepresume/pkg/errors"
)

// FailureRecord is the parsed outcome of a failed execution. It is
// computed once per history and not modified afterwards.
type FailureRecord struct {
	// FailedState is the name of the top-level state the failure is
	// attributed to
	FailedState string

	// Input is the payload the failed state was entered with
	Input json.RawMessage

	// Succeeded lists, in completion order, the top-level states that
	// exited successfully before the failure
	Succeeded []string
}

// Parse scans an ordered execution history and returns the failure
// record for its terminal failure.
//
// The scan is a single forward pass. It tracks the innermost open
// top-level state and the set of top-level states that exited
// successfully; the first failure event of any granularity ends the scan
// (an execution has at most one terminal failure, and every event after
// it is teardown). A failure inside a Parallel or Map branch is
// attributed to the enclosing top-level state, since that is the only
// state a resume can route to.
//
// It returns errors.ErrNoFailureFound if the history contains no failure
// event, and errors.ErrUnresolvableFailureState if the failure cannot be
// attributed to a named state (an execution-level failure with no state
// open, such as an invalid-input or infrastructure failure).
func Parse(events []Event) (*FailureRecord, error) {
	var (
		depth     int
		current   *Event
		succeeded []string
	)

	for i := range events {
		ev := &events[i]
		switch {
		case ev.Type.StateEntered():
			if depth == 0 {
				current = ev
			}
			if ev.Type.opensScope() {
				depth++
			}

		case ev.Type.StateExited():
			if ev.Type.closesScope() {
				depth--
			}
			if depth == 0 {
				succeeded = append(succeeded, ev.StateName)
				current = nil
			}

		case ev.Type.Failure():
			if current != nil {
				return &FailureRecord{
					FailedState: current.StateName,
					Input:       current.Input,
					Succeeded:   succeeded,
				}, nil
			}
			// Failure events rarely name a state themselves, but if
			// this one does, it is authoritative.
			if ev.StateName != "" {
				return &FailureRecord{
					FailedState: ev.StateName,
					Input:       ev.Input,
					Succeeded:   succeeded,
				}, nil
			}
			return nil, errors.ErrUnresolvableFailureState
		}
	}

	return nil, errors.ErrNoFailureFound
}
