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

package shared

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for stepresume commands
const (
	ExitSuccess           = 0
	ExitServiceError      = 1
	ExitInvalidDefinition = 2
	ExitNoFailureFound    = 3
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewServiceError creates an error for Step Functions API failures
func NewServiceError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitServiceError,
		Message: msg,
		Cause:   cause,
	}
}

// NewInvalidDefinitionError creates an error for definitions that fail
// structural validation or cannot be rewritten
func NewInvalidDefinitionError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitInvalidDefinition,
		Message: msg,
		Cause:   cause,
	}
}

// NewNoFailureFoundError creates an error for executions with nothing to
// resume from
func NewNoFailureFoundError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitNoFailureFound,
		Message: msg,
		Cause:   cause,
	}
}

// HandleExitError checks if an error is an ExitError and exits with the
// appropriate code
func HandleExitError(err error) {
	if err == nil {
		return
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", exitErr.Error())
		os.Exit(exitErr.Code)
	}

	// Default to service error
	fmt.Fprintln(os.Stderr, "Error:", err.Error())
	os.Exit(ExitServiceError)
}
