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

package sfn

import (
	"fmt"
	"strings"
)

// StateMachineARN derives a state machine ARN from one of its execution
// ARNs. An execution ARN has the shape
//
//	arn:aws:states:<region>:<account>:execution:<machine>:<execution>
//
// while the owning machine is
//
//	arn:aws:states:<region>:<account>:stateMachine:<machine>
//
// so the resource type is swapped and the execution name dropped.
func StateMachineARN(executionARN string) (string, error) {
	parts := strings.Split(executionARN, ":")
	if len(parts) != 8 || parts[0] != "arn" || parts[5] != "execution" {
		return "", fmt.Errorf("not an execution ARN: %q", executionARN)
	}
	parts[5] = "stateMachine"
	return strings.Join(parts[:len(parts)-1], ":"), nil
}
