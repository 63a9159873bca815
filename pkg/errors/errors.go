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

// Package errors defines the error values returned by the history parser,
// the definition model, and the resume rewriter. All of them are local
// validation failures: callers get the specific kind and decide how to
// present it. Service errors from the Step Functions API are wrapped with
// context elsewhere and never reinterpreted into these kinds.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for failures that carry no payload beyond their kind.
var (
	// ErrNoFailureFound indicates the execution history contains no
	// failure event; there is nothing to resume from.
	ErrNoFailureFound = errors.New("execution did not fail: no failure event in history")

	// ErrUnresolvableFailureState indicates the failure event could not be
	// attributed to a named state (for example an infrastructure-level
	// failure before any state ran). The rewrite cannot target an unknown
	// state.
	ErrUnresolvableFailureState = errors.New("failure cannot be attributed to a named state")
)

// MalformedDefinitionError indicates a state machine definition is missing
// a required field and cannot be loaded.
type MalformedDefinitionError struct {
	// Field is the missing or invalid field (e.g., "StartAt", "States")
	Field string

	// Cause is the underlying error (e.g., a JSON parse error)
	Cause error
}

// Error implements the error interface.
func (e *MalformedDefinitionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed definition: %s: %v", e.Field, e.Cause)
	}
	return fmt.Sprintf("malformed definition: missing %s", e.Field)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *MalformedDefinitionError) Unwrap() error {
	return e.Cause
}

// DanglingReferenceError indicates a transition target or start state does
// not resolve to a state within its scope.
type DanglingReferenceError struct {
	// Scope identifies where resolution was attempted: "" for the
	// top-level state table, otherwise the name of the Parallel or Map
	// state owning the branch.
	Scope string

	// From is the state (or "StartAt") holding the reference
	From string

	// To is the name that failed to resolve
	To string
}

// Error implements the error interface.
func (e *DanglingReferenceError) Error() string {
	if e.Scope != "" {
		return fmt.Sprintf("dangling reference in branch of %s: %s -> %s", e.Scope, e.From, e.To)
	}
	return fmt.Sprintf("dangling reference: %s -> %s", e.From, e.To)
}

// UnknownStateError indicates a name is not present in the definition's
// top-level state table.
type UnknownStateError struct {
	// Name is the state name that was not found
	Name string
}

// Error implements the error interface.
func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("unknown state: %s", e.Name)
}

// UnreachableResumeTargetError indicates the failed state recorded in the
// history does not resolve to a top-level state in the definition, so the
// router cannot branch to it. Routing never targets states nested inside
// Parallel or Map branches.
type UnreachableResumeTargetError struct {
	// Name is the resume target that could not be reached
	Name string

	// Cause is the resolution failure (typically *UnknownStateError)
	Cause error
}

// Error implements the error interface.
func (e *UnreachableResumeTargetError) Error() string {
	return fmt.Sprintf("resume target %s is not a routable top-level state", e.Name)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *UnreachableResumeTargetError) Unwrap() error {
	return e.Cause
}

// NameCollisionError indicates the definition already contains a state
// using the reserved router name, so injecting the router would silently
// overwrite it.
type NameCollisionError struct {
	// Name is the reserved name that collided
	Name string
}

// Error implements the error interface.
func (e *NameCollisionError) Error() string {
	return fmt.Sprintf("definition already contains a state named %s", e.Name)
}

// Is reports whether any error in err's tree matches target.
// This is a convenience wrapper around errors.Is from the standard library.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target type,
// and if one is found, sets target to that error value and returns true.
// This is a convenience wrapper around errors.As from the standard library.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap creates a new error that wraps the given error with additional context.
// If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf creates a new error that wraps the given error with formatted context.
// If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}
