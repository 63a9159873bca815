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

// Package statemachine models Amazon States Language (ASL) definitions.
//
// A definition is loaded from its JSON form into a graph of kind-tagged
// states keyed by name. Transition targets (Next, Default, Choice rule
// targets, StartAt) are validated at load time, per scope: the top-level
// state table and each Parallel/Map branch resolve names independently.
// Fields the model does not interpret (Resource, Retry, Catch, ResultPath
// and friends) are preserved verbatim so a definition round-trips through
// Load and Marshal without loss.
package statemachine

import (
	"encoding/json"

	"github.com/tombee/stepresume/pkg/errors"
)

// Definition represents one scope of a state machine: the top-level
// machine, or the body of a single Parallel/Map branch. Each scope owns
// its own state table; names resolve within their scope only.
type Definition struct {
	// Comment is the optional human-readable description
	Comment string

	// StartAt names the state execution begins at
	StartAt string

	// States maps state names to their definitions
	States map[string]State

	// extra preserves top-level fields the model does not interpret
	// (Version, TimeoutSeconds, ProcessorConfig on Map bodies, ...)
	extra fields
}

// Load parses and validates a state machine definition.
//
// It returns *errors.MalformedDefinitionError if the document is not valid
// JSON or required fields (StartAt, States) are absent, and
// *errors.DanglingReferenceError if any transition target or start state
// does not resolve within its scope.
func Load(data []byte) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		if malformed, ok := err.(*errors.MalformedDefinitionError); ok {
			return nil, malformed
		}
		return nil, &errors.MalformedDefinitionError{Field: "definition", Cause: err}
	}
	if err := def.validate(""); err != nil {
		return nil, err
	}
	return &def, nil
}

// Resolve looks up a state by name in the definition's top-level state
// table. It returns *errors.UnknownStateError if the name is absent.
// Names inside Parallel or Map branches are not visible here.
func (d *Definition) Resolve(name string) (State, error) {
	state, ok := d.States[name]
	if !ok {
		return nil, &errors.UnknownStateError{Name: name}
	}
	return state, nil
}

// Clone returns a structurally independent deep copy of the definition.
// The copy shares no mutable state with the receiver.
func (d *Definition) Clone() (*Definition, error) {
	data, err := d.Marshal()
	if err != nil {
		return nil, err
	}
	var out Definition
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Marshal serializes the definition back to ASL JSON. Object keys are
// emitted in sorted order, so structurally identical definitions marshal
// to identical bytes.
func (d *Definition) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Definition) UnmarshalJSON(data []byte) error {
	raw := fields{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if err := raw.take("Comment", &d.Comment); err != nil {
		return &errors.MalformedDefinitionError{Field: "Comment", Cause: err}
	}
	if err := raw.take("StartAt", &d.StartAt); err != nil {
		return &errors.MalformedDefinitionError{Field: "StartAt", Cause: err}
	}

	var states map[string]json.RawMessage
	if err := raw.take("States", &states); err != nil {
		return &errors.MalformedDefinitionError{Field: "States", Cause: err}
	}
	if states != nil {
		d.States = make(map[string]State, len(states))
		for name, body := range states {
			state, err := decodeState(body)
			if err != nil {
				return err
			}
			d.States[name] = state
		}
	}

	d.extra = raw
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d *Definition) MarshalJSON() ([]byte, error) {
	out := d.extra.merge(nil)
	if d.Comment != "" {
		out["Comment"] = d.Comment
	}
	out["StartAt"] = d.StartAt
	out["States"] = d.States
	return json.Marshal(out)
}

// validate checks the scope's structural invariants and recurses into
// nested branch scopes. scope is "" for the top level, otherwise the name
// of the Parallel or Map state owning the branch.
func (d *Definition) validate(scope string) error {
	if d.StartAt == "" {
		return &errors.MalformedDefinitionError{Field: scopedField(scope, "StartAt")}
	}
	if len(d.States) == 0 {
		return &errors.MalformedDefinitionError{Field: scopedField(scope, "States")}
	}
	if _, ok := d.States[d.StartAt]; !ok {
		return &errors.DanglingReferenceError{Scope: scope, From: "StartAt", To: d.StartAt}
	}

	for name, state := range d.States {
		for _, target := range state.Targets() {
			if _, ok := d.States[target]; !ok {
				return &errors.DanglingReferenceError{Scope: scope, From: name, To: target}
			}
		}
		if choice, ok := state.(*ChoiceState); ok && len(choice.Choices) == 0 {
			return &errors.MalformedDefinitionError{Field: scopedField(scope, name+".Choices")}
		}
		for _, branch := range state.branches() {
			if err := branch.validate(name); err != nil {
				return err
			}
		}
	}
	return nil
}

func scopedField(scope, field string) string {
	if scope == "" {
		return field
	}
	return scope + "." + field
}
