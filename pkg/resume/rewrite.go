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

// Package resume rewrites a state machine definition so a fresh
// execution can skip straight to a previously failed state.
//
// The rewrite injects a Choice state, GoToState, as the new entry point.
// Its single rule sends executions started with {"resuming": false} (or
// where the flag selects the normal path) to the original start state;
// the default edge jumps to the failed state. Everything else in the
// definition is carried over unchanged.
package resume

import (
	"github.com/tombee/stepresume/pkg/errors"
	"github.com/tombee/stepresume/pkg/history"
	"github.com/tombee/stepresume/pkg/statemachine"
)

const (
	// RouterStateName is the reserved name of the injected Choice state.
	RouterStateName = "GoToState"

	// ResumeVariable is the JSONPath of the input flag that selects
	// between a normal start and a jump to the failed state.
	ResumeVariable = "$.resuming"
)

// Rewrite returns a copy of def whose start state is a synthesized
// router: executions with resuming=true jump to the failed state,
// everything else runs from the original start state.
//
// The operation is pure and deterministic; def is not modified. It
// returns *errors.UnreachableResumeTargetError if the failed state is
// not a top-level state of def, and *errors.NameCollisionError if def
// already defines a state named GoToState.
func Rewrite(def *statemachine.Definition, failure *history.FailureRecord) (*statemachine.Definition, error) {
	if _, err := def.Resolve(failure.FailedState); err != nil {
		return nil, &errors.UnreachableResumeTargetError{Name: failure.FailedState, Cause: err}
	}
	if _, err := def.Resolve(RouterStateName); err == nil {
		return nil, &errors.NameCollisionError{Name: RouterStateName}
	}

	out, err := def.Clone()
	if err != nil {
		return nil, err
	}

	notResuming := false
	router := &statemachine.ChoiceState{
		Choices: []*statemachine.ChoiceRule{
			{
				Variable:      ResumeVariable,
				BooleanEquals: &notResuming,
				Next:          out.StartAt,
			},
		},
		Default: failure.FailedState,
	}

	out.States[RouterStateName] = router
	out.StartAt = RouterStateName
	return out, nil
}
