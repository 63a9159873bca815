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

package resume

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tombee/stepresume/internal/commands/shared"
	"github.com/tombee/stepresume/pkg/history"
)

// Diagnostic is a read-only projection of a failure record for operator
// display. It carries the input the failed state received so the
// operator can correct it before re-running.
type Diagnostic struct {
	// FailedState is the state the new execution will jump to
	FailedState string `json:"failed_state"`

	// Input is the payload the failed state was entered with
	Input json.RawMessage `json:"input"`

	// SucceededStates are the top-level states the resumed execution
	// will skip
	SucceededStates []string `json:"succeeded_states,omitempty"`
}

// Report projects a failure record into its diagnostic form.
func Report(failure *history.FailureRecord) *Diagnostic {
	return &Diagnostic{
		FailedState:     failure.FailedState,
		Input:           failure.Input,
		SucceededStates: failure.Succeeded,
	}
}

// Text renders the diagnostic for terminal output. Skipped states do not
// run again, so any outputs they would have produced for downstream
// states must be included in the new execution's input by the operator.
func (d *Diagnostic) Text() string {
	var b strings.Builder
	fmt.Fprintln(&b, shared.RenderError("Execution failed at state: "+d.FailedState))
	if len(d.Input) > 0 {
		fmt.Fprintln(&b, shared.Header.Render("Input to failed state:"))
		fmt.Fprintln(&b, indentJSON(d.Input))
	}
	if len(d.SucceededStates) > 0 {
		fmt.Fprintf(&b, "%s %s\n", shared.RenderLabel("States skipped on resume:"), strings.Join(d.SucceededStates, ", "))
	}
	fmt.Fprintln(&b, shared.RenderInfo(`Start a new execution with "resuming" set to true to jump to `+d.FailedState+"."))
	fmt.Fprintln(&b, shared.Muted.Render("Outputs of skipped states are not replayed; supply them in the new input if later states need them."))
	return b.String()
}

func indentJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
