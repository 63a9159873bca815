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
	"testing"
)

func TestExitErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  *ExitError
		code int
	}{
		{"service error", NewServiceError("fetching history", nil), ExitServiceError},
		{"invalid definition", NewInvalidDefinitionError("loading definition", nil), ExitInvalidDefinition},
		{"no failure found", NewNoFailureFoundError("nothing to resume", nil), ExitNoFailureFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %d, want %d", tt.err.Code, tt.code)
			}
		})
	}
}

func TestExitErrorMessage(t *testing.T) {
	err := NewServiceError("fetching history", errors.New("throttled"))
	if got, want := err.Error(), "fetching history: throttled"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	bare := NewServiceError("fetching history", nil)
	if got, want := bare.Error(), "fetching history"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestExitErrorUnwrap(t *testing.T) {
	cause := errors.New("throttled")
	err := NewServiceError("fetching history", cause)
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}

func TestVersionRoundTrip(t *testing.T) {
	SetVersion("1.2.3", "abc123", "2026-01-01")
	defer SetVersion("dev", "unknown", "unknown")

	v, c, b := GetVersion()
	if v != "1.2.3" || c != "abc123" || b != "2026-01-01" {
		t.Errorf("GetVersion() = %q %q %q", v, c, b)
	}
}
