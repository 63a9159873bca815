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
	"reflect"
	"testing"

	"github.com/tombee/stepresume/pkg/errors"
)

// seq assigns sequence IDs so fixtures read top to bottom like a real
// history.
func seq(events []Event) []Event {
	for i := range events {
		events[i].ID = int64(i + 1)
		if i > 0 {
			events[i].PreviousID = int64(i)
		}
	}
	return events
}

func TestParseTaskFailure(t *testing.T) {
	events := seq([]Event{
		{Type: ExecutionStarted},
		{Type: TaskStateEntered, StateName: "Validate", Input: json.RawMessage(`{"order": 1}`)},
		{Type: TaskStateExited, StateName: "Validate", Output: json.RawMessage(`{"order": 1, "ok": true}`)},
		{Type: TaskStateEntered, StateName: "Ship", Input: json.RawMessage(`{"order": 1, "ok": true}`)},
		{Type: TaskFailed, Error: "States.TaskFailed", Cause: "no carrier"},
		{Type: ExecutionFailed, Error: "States.TaskFailed"},
	})

	record, err := Parse(events)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if record.FailedState != "Ship" {
		t.Errorf("FailedState = %q, want %q", record.FailedState, "Ship")
	}
	if string(record.Input) != `{"order": 1, "ok": true}` {
		t.Errorf("Input = %s", record.Input)
	}
	if !reflect.DeepEqual(record.Succeeded, []string{"Validate"}) {
		t.Errorf("Succeeded = %v, want [Validate]", record.Succeeded)
	}
}

func TestParseNoFailure(t *testing.T) {
	events := seq([]Event{
		{Type: ExecutionStarted},
		{Type: TaskStateEntered, StateName: "Validate"},
		{Type: TaskStateExited, StateName: "Validate"},
		{Type: ExecutionSucceeded},
	})

	_, err := Parse(events)
	if !errors.Is(err, errors.ErrNoFailureFound) {
		t.Fatalf("Parse() error = %v, want ErrNoFailureFound", err)
	}

	if _, err := Parse(nil); !errors.Is(err, errors.ErrNoFailureFound) {
		t.Fatalf("Parse(nil) error = %v, want ErrNoFailureFound", err)
	}
}

func TestParseUnresolvableFailure(t *testing.T) {
	// The execution failed before any state opened, so there is no
	// state to attribute the failure to.
	events := seq([]Event{
		{Type: ExecutionStarted},
		{Type: ExecutionFailed, Error: "States.Runtime", Cause: "invalid execution input"},
	})

	_, err := Parse(events)
	if !errors.Is(err, errors.ErrUnresolvableFailureState) {
		t.Fatalf("Parse() error = %v, want ErrUnresolvableFailureState", err)
	}
}

func TestParseParallelBranchFailure(t *testing.T) {
	// A failure inside a branch is attributed to the enclosing
	// top-level Parallel state, with the parallel's own input.
	events := seq([]Event{
		{Type: ExecutionStarted},
		{Type: TaskStateEntered, StateName: "Validate", Input: json.RawMessage(`{"order": 2}`)},
		{Type: TaskStateExited, StateName: "Validate"},
		{Type: ParallelStateEntered, StateName: "Enrich", Input: json.RawMessage(`{"order": 2, "ok": true}`)},
		{Type: TaskStateEntered, StateName: "LookupStock", Input: json.RawMessage(`{"order": 2}`)},
		{Type: TaskFailed, Error: "States.TaskFailed", Cause: "stock service down"},
		{Type: ParallelStateFailed},
		{Type: ExecutionFailed, Error: "States.TaskFailed"},
	})

	record, err := Parse(events)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if record.FailedState != "Enrich" {
		t.Errorf("FailedState = %q, want the enclosing parallel state", record.FailedState)
	}
	if string(record.Input) != `{"order": 2, "ok": true}` {
		t.Errorf("Input = %s, want the parallel state's input", record.Input)
	}
}

func TestParseParallelSuccessIsOneState(t *testing.T) {
	// States inside a completed parallel do not appear in Succeeded;
	// the parallel itself does.
	events := seq([]Event{
		{Type: ExecutionStarted},
		{Type: ParallelStateEntered, StateName: "Enrich"},
		{Type: TaskStateEntered, StateName: "LookupCustomer"},
		{Type: TaskStateExited, StateName: "LookupCustomer"},
		{Type: TaskStateEntered, StateName: "LookupStock"},
		{Type: TaskStateExited, StateName: "LookupStock"},
		{Type: ParallelStateExited, StateName: "Enrich"},
		{Type: TaskStateEntered, StateName: "Ship", Input: json.RawMessage(`{}`)},
		{Type: TaskFailed},
	})

	record, err := Parse(events)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if record.FailedState != "Ship" {
		t.Errorf("FailedState = %q, want %q", record.FailedState, "Ship")
	}
	if !reflect.DeepEqual(record.Succeeded, []string{"Enrich"}) {
		t.Errorf("Succeeded = %v, want [Enrich]", record.Succeeded)
	}
}

func TestParseFailureAtFirstState(t *testing.T) {
	events := seq([]Event{
		{Type: ExecutionStarted},
		{Type: TaskStateEntered, StateName: "Validate", Input: json.RawMessage(`{"foo": "missing"}`)},
		{Type: TaskFailed, Error: "States.TaskFailed"},
		{Type: ExecutionFailed},
	})

	record, err := Parse(events)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if record.FailedState != "Validate" {
		t.Errorf("FailedState = %q, want %q", record.FailedState, "Validate")
	}
	if len(record.Succeeded) != 0 {
		t.Errorf("Succeeded = %v, want empty", record.Succeeded)
	}
}

func TestParseIdempotent(t *testing.T) {
	events := seq([]Event{
		{Type: ExecutionStarted},
		{Type: TaskStateEntered, StateName: "A", Input: json.RawMessage(`{"n": 1}`)},
		{Type: TaskStateExited, StateName: "A"},
		{Type: TaskStateEntered, StateName: "B", Input: json.RawMessage(`{"n": 2}`)},
		{Type: TaskFailed},
	})

	first, err := Parse(events)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	second, err := Parse(events)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated parse differs: %+v vs %+v", first, second)
	}
}

func TestEventTypeClassification(t *testing.T) {
	tests := []struct {
		typ     EventType
		entered bool
		exited  bool
		failure bool
	}{
		{TaskStateEntered, true, false, false},
		{ParallelStateEntered, true, false, false},
		{EventType("WaitStateEntered"), true, false, false},
		{TaskStateExited, false, true, false},
		{MapStateExited, false, true, false},
		{TaskFailed, false, false, true},
		{EventType("LambdaFunctionFailed"), false, false, true},
		{ParallelStateFailed, false, false, true},
		{ExecutionFailed, false, false, true},
		{ExecutionSucceeded, false, false, false},
		{ExecutionStarted, false, false, false},
	}

	for _, tt := range tests {
		if got := tt.typ.StateEntered(); got != tt.entered {
			t.Errorf("%s.StateEntered() = %v, want %v", tt.typ, got, tt.entered)
		}
		if got := tt.typ.StateExited(); got != tt.exited {
			t.Errorf("%s.StateExited() = %v, want %v", tt.typ, got, tt.exited)
		}
		if got := tt.typ.Failure(); got != tt.failure {
			t.Errorf("%s.Failure() = %v, want %v", tt.typ, got, tt.failure)
		}
	}
}
