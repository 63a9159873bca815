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

package statemachine

import (
	"encoding/json"
	"fmt"

	"github.com/tombee/stepresume/pkg/errors"
)

// Kind discriminates the state variants of the States Language.
type Kind string

const (
	KindTask     Kind = "Task"
	KindParallel Kind = "Parallel"
	KindChoice   Kind = "Choice"
	KindPass     Kind = "Pass"
	KindWait     Kind = "Wait"
	KindSucceed  Kind = "Succeed"
	KindFail     Kind = "Fail"
	KindMap      Kind = "Map"
)

// State is one node in a definition scope. Each kind carries only the
// fields the model interprets for that kind; everything else rides along
// raw for round-tripping.
type State interface {
	json.Marshaler

	// Kind returns the state's Type tag.
	Kind() Kind

	// Targets returns the transition targets that must resolve to state
	// names within the same scope.
	Targets() []string

	// Terminal reports whether the state ends its scope's execution.
	Terminal() bool

	// branches returns nested branch scopes owned by this state, if any.
	branches() []*Definition
}

// fields holds the raw JSON fields of an object being decoded. Known
// fields are taken out one by one; the remainder is kept as passthrough.
type fields map[string]json.RawMessage

// take decodes the named field into v and removes it from the set.
// A missing field is not an error; v is left untouched.
func (f fields) take(key string, v interface{}) error {
	raw, ok := f[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("field %s: %w", key, err)
	}
	delete(f, key)
	return nil
}

// merge copies the passthrough fields into a fresh map and overlays the
// given known fields on top.
func (f fields) merge(known map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(f)+len(known)+1)
	for k, v := range f {
		out[k] = v
	}
	for k, v := range known {
		out[k] = v
	}
	return out
}

// transition holds the outgoing edge shared by Task, Pass, Wait, Parallel
// and Map states: exactly one of Next or End.
type transition struct {
	// Next names the state to transition to
	Next string

	// End marks the state as terminal for its scope
	End bool

	extra fields
}

func (t *transition) Targets() []string {
	if t.Next == "" {
		return nil
	}
	return []string{t.Next}
}

func (t *transition) Terminal() bool { return t.End }

func (t *transition) decode(raw fields) error {
	if err := raw.take("Next", &t.Next); err != nil {
		return err
	}
	if err := raw.take("End", &t.End); err != nil {
		return err
	}
	t.extra = raw
	return nil
}

func (t *transition) encode(kind Kind) map[string]interface{} {
	out := t.extra.merge(nil)
	out["Type"] = kind
	if t.Next != "" {
		out["Next"] = t.Next
	}
	if t.End {
		out["End"] = true
	}
	return out
}

// TaskState performs a unit of work (its Resource and retry policy are
// preserved but not interpreted).
type TaskState struct {
	transition
}

func (s *TaskState) Kind() Kind { return KindTask }

func (s *TaskState) branches() []*Definition { return nil }

func (s *TaskState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.encode(KindTask))
}

// PassState passes its input through, optionally injecting a result.
type PassState struct {
	transition
}

func (s *PassState) Kind() Kind { return KindPass }

func (s *PassState) branches() []*Definition { return nil }

func (s *PassState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.encode(KindPass))
}

// WaitState delays execution before transitioning.
type WaitState struct {
	transition
}

func (s *WaitState) Kind() Kind { return KindWait }

func (s *WaitState) branches() []*Definition { return nil }

func (s *WaitState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.encode(KindWait))
}

// ParallelState fans out into branches, each an independent scope.
type ParallelState struct {
	transition

	// Branches are the sub-machines executed concurrently
	Branches []*Definition
}

func (s *ParallelState) Kind() Kind { return KindParallel }

func (s *ParallelState) branches() []*Definition { return s.Branches }

func (s *ParallelState) MarshalJSON() ([]byte, error) {
	out := s.encode(KindParallel)
	out["Branches"] = s.Branches
	return json.Marshal(out)
}

// MapState iterates a sub-machine over items of its input. The body is
// carried under ItemProcessor, or Iterator in older definitions.
type MapState struct {
	transition

	// ItemProcessor is the iteration body
	ItemProcessor *Definition

	// Iterator is the legacy field name for the iteration body
	Iterator *Definition
}

func (s *MapState) Kind() Kind { return KindMap }

func (s *MapState) branches() []*Definition {
	var out []*Definition
	if s.ItemProcessor != nil {
		out = append(out, s.ItemProcessor)
	}
	if s.Iterator != nil {
		out = append(out, s.Iterator)
	}
	return out
}

func (s *MapState) MarshalJSON() ([]byte, error) {
	out := s.encode(KindMap)
	if s.ItemProcessor != nil {
		out["ItemProcessor"] = s.ItemProcessor
	}
	if s.Iterator != nil {
		out["Iterator"] = s.Iterator
	}
	return json.Marshal(out)
}

// ChoiceRule is one conditional edge of a Choice state. The model
// interprets BooleanEquals (the comparator it synthesizes); any other
// comparator is preserved raw.
type ChoiceRule struct {
	// Variable is the JSONPath the comparator is applied to
	Variable string

	// BooleanEquals compares the variable against a boolean literal
	BooleanEquals *bool

	// Next names the state to transition to when the rule matches
	Next string

	extra fields
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *ChoiceRule) UnmarshalJSON(data []byte) error {
	raw := fields{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := raw.take("Variable", &r.Variable); err != nil {
		return err
	}
	if err := raw.take("BooleanEquals", &r.BooleanEquals); err != nil {
		return err
	}
	if err := raw.take("Next", &r.Next); err != nil {
		return err
	}
	r.extra = raw
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r *ChoiceRule) MarshalJSON() ([]byte, error) {
	out := r.extra.merge(nil)
	if r.Variable != "" {
		out["Variable"] = r.Variable
	}
	if r.BooleanEquals != nil {
		out["BooleanEquals"] = *r.BooleanEquals
	}
	if r.Next != "" {
		out["Next"] = r.Next
	}
	return json.Marshal(out)
}

// ChoiceState branches on its input. Choice states have no Next/End of
// their own; every outgoing edge is a rule target or the Default.
type ChoiceState struct {
	// Choices are the ordered conditional edges
	Choices []*ChoiceRule

	// Default names the state taken when no rule matches
	Default string

	extra fields
}

func (s *ChoiceState) Kind() Kind { return KindChoice }

func (s *ChoiceState) Targets() []string {
	var out []string
	for _, rule := range s.Choices {
		if rule.Next != "" {
			out = append(out, rule.Next)
		}
	}
	if s.Default != "" {
		out = append(out, s.Default)
	}
	return out
}

func (s *ChoiceState) Terminal() bool { return false }

func (s *ChoiceState) branches() []*Definition { return nil }

func (s *ChoiceState) MarshalJSON() ([]byte, error) {
	out := s.extra.merge(nil)
	out["Type"] = KindChoice
	out["Choices"] = s.Choices
	if s.Default != "" {
		out["Default"] = s.Default
	}
	return json.Marshal(out)
}

// SucceedState terminates its scope successfully.
type SucceedState struct {
	extra fields
}

func (s *SucceedState) Kind() Kind { return KindSucceed }

func (s *SucceedState) Targets() []string { return nil }

func (s *SucceedState) Terminal() bool { return true }

func (s *SucceedState) branches() []*Definition { return nil }

func (s *SucceedState) MarshalJSON() ([]byte, error) {
	out := s.extra.merge(nil)
	out["Type"] = KindSucceed
	return json.Marshal(out)
}

// FailState terminates its scope with an error.
type FailState struct {
	extra fields
}

func (s *FailState) Kind() Kind { return KindFail }

func (s *FailState) Targets() []string { return nil }

func (s *FailState) Terminal() bool { return true }

func (s *FailState) branches() []*Definition { return nil }

func (s *FailState) MarshalJSON() ([]byte, error) {
	out := s.extra.merge(nil)
	out["Type"] = KindFail
	return json.Marshal(out)
}

// decodeState dispatches on the Type tag to the matching variant.
func decodeState(data json.RawMessage) (State, error) {
	raw := fields{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &errors.MalformedDefinitionError{Field: "States", Cause: err}
	}

	var kind Kind
	if err := raw.take("Type", &kind); err != nil {
		return nil, &errors.MalformedDefinitionError{Field: "Type", Cause: err}
	}

	switch kind {
	case KindTask:
		state := &TaskState{}
		if err := state.decode(raw); err != nil {
			return nil, &errors.MalformedDefinitionError{Field: string(kind), Cause: err}
		}
		return state, nil
	case KindPass:
		state := &PassState{}
		if err := state.decode(raw); err != nil {
			return nil, &errors.MalformedDefinitionError{Field: string(kind), Cause: err}
		}
		return state, nil
	case KindWait:
		state := &WaitState{}
		if err := state.decode(raw); err != nil {
			return nil, &errors.MalformedDefinitionError{Field: string(kind), Cause: err}
		}
		return state, nil
	case KindParallel:
		state := &ParallelState{}
		if err := raw.take("Branches", &state.Branches); err != nil {
			return nil, &errors.MalformedDefinitionError{Field: "Branches", Cause: err}
		}
		if err := state.decode(raw); err != nil {
			return nil, &errors.MalformedDefinitionError{Field: string(kind), Cause: err}
		}
		return state, nil
	case KindMap:
		state := &MapState{}
		if err := raw.take("ItemProcessor", &state.ItemProcessor); err != nil {
			return nil, &errors.MalformedDefinitionError{Field: "ItemProcessor", Cause: err}
		}
		if err := raw.take("Iterator", &state.Iterator); err != nil {
			return nil, &errors.MalformedDefinitionError{Field: "Iterator", Cause: err}
		}
		if err := state.decode(raw); err != nil {
			return nil, &errors.MalformedDefinitionError{Field: string(kind), Cause: err}
		}
		return state, nil
	case KindChoice:
		state := &ChoiceState{}
		if err := raw.take("Choices", &state.Choices); err != nil {
			return nil, &errors.MalformedDefinitionError{Field: "Choices", Cause: err}
		}
		if err := raw.take("Default", &state.Default); err != nil {
			return nil, &errors.MalformedDefinitionError{Field: "Default", Cause: err}
		}
		state.extra = raw
		return state, nil
	case KindSucceed:
		return &SucceedState{extra: raw}, nil
	case KindFail:
		return &FailState{extra: raw}, nil
	case "":
		return nil, &errors.MalformedDefinitionError{Field: "Type"}
	default:
		return nil, &errors.MalformedDefinitionError{Field: "Type", Cause: fmt.Errorf("unsupported state type %q", kind)}
	}
}
