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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepresume/internal/commands/shared"
	"github.com/tombee/stepresume/internal/sfn"
	"github.com/tombee/stepresume/pkg/history"
)

const testExecutionARN = "arn:aws:states:us-east-1:123456789012:execution:OrderPipeline:run-42"

const testDefinition = `{
	"StartAt": "A",
	"States": {
		"A": {"Type": "Task", "Resource": "arn:aws:lambda:us-east-1:123456789012:function:a", "Next": "B"},
		"B": {"Type": "Task", "Resource": "arn:aws:lambda:us-east-1:123456789012:function:b", "Next": "Done"},
		"Done": {"Type": "Succeed"}
	}
}`

// failedAtB is a history where A succeeded and B failed.
func failedAtB() []history.Event {
	return []history.Event{
		{ID: 1, Type: history.ExecutionStarted},
		{ID: 2, PreviousID: 1, Type: history.TaskStateEntered, StateName: "A", Input: json.RawMessage(`{"order": 1}`)},
		{ID: 3, PreviousID: 2, Type: history.TaskStateExited, StateName: "A"},
		{ID: 4, PreviousID: 3, Type: history.TaskStateEntered, StateName: "B", Input: json.RawMessage(`{"foo": "missing"}`)},
		{ID: 5, PreviousID: 4, Type: history.TaskFailed, Error: "States.TaskFailed"},
		{ID: 6, PreviousID: 5, Type: history.ExecutionFailed},
	}
}

type fakeGateway struct {
	events  []history.Event
	info    *sfn.MachineInfo
	created struct {
		name       string
		definition []byte
		roleARN    string
		calls      int
	}
	historyErr error
	createErr  error
}

func (f *fakeGateway) FetchHistory(_ context.Context, executionARN string) ([]history.Event, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.events, nil
}

func (f *fakeGateway) FetchDefinitionForExecution(_ context.Context, executionARN string) (*sfn.MachineInfo, error) {
	return f.info, nil
}

func (f *fakeGateway) CreateStateMachine(_ context.Context, name string, definition []byte, roleARN string) (string, error) {
	f.created.calls++
	f.created.name = name
	f.created.definition = definition
	f.created.roleARN = roleARN
	if f.createErr != nil {
		return "", f.createErr
	}
	return "arn:aws:states:us-east-1:123456789012:stateMachine:" + name, nil
}

func newFakeGateway(definition string) *fakeGateway {
	return &fakeGateway{
		events: failedAtB(),
		info: &sfn.MachineInfo{
			ARN:        "arn:aws:states:us-east-1:123456789012:stateMachine:OrderPipeline",
			Name:       "OrderPipeline",
			RoleARN:    "arn:aws:iam::123456789012:role/pipeline",
			Definition: []byte(definition),
		},
	}
}

func testCmd(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetContext(context.Background())
	return cmd, buf
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunCreatesRewrittenMachine(t *testing.T) {
	gw := newFakeGateway(testDefinition)
	cmd, buf := testCmd(t)

	err := run(cmd, gw, discardLogger(), testExecutionARN, options{})
	require.NoError(t, err)

	assert.Equal(t, 1, gw.created.calls)
	assert.Equal(t, "OrderPipeline-with-GoToState", gw.created.name)
	assert.Equal(t, "arn:aws:iam::123456789012:role/pipeline", gw.created.roleARN)

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(gw.created.definition, &created))
	assert.Equal(t, "GoToState", created["StartAt"])
	states := created["States"].(map[string]interface{})
	router := states["GoToState"].(map[string]interface{})
	assert.Equal(t, "B", router["Default"])

	out := buf.String()
	assert.Contains(t, out, "New state machine: arn:aws:states:us-east-1:123456789012:stateMachine:OrderPipeline-with-GoToState")
	assert.Contains(t, out, shared.SymbolOK)
	assert.Contains(t, out, "Execution failed at state: B")
	assert.Contains(t, out, `"foo": "missing"`)
}

func TestRunCustomName(t *testing.T) {
	gw := newFakeGateway(testDefinition)
	cmd, _ := testCmd(t)

	err := run(cmd, gw, discardLogger(), testExecutionARN, options{name: "retry-pipeline"})
	require.NoError(t, err)
	assert.Equal(t, "retry-pipeline", gw.created.name)
}

func TestRunDryRun(t *testing.T) {
	gw := newFakeGateway(testDefinition)
	cmd, buf := testCmd(t)

	err := run(cmd, gw, discardLogger(), testExecutionARN, options{dryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 0, gw.created.calls, "dry run must not create anything")
	assert.Contains(t, buf.String(), "Would create state machine OrderPipeline-with-GoToState")
	assert.Contains(t, buf.String(), shared.SymbolWarn)
	assert.Contains(t, buf.String(), `"GoToState"`)
}

func TestRunQuery(t *testing.T) {
	gw := newFakeGateway(testDefinition)
	cmd, buf := testCmd(t)

	err := run(cmd, gw, discardLogger(), testExecutionARN, options{query: ".foo"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `Query result: "missing"`)
}

func TestRunJSONOutput(t *testing.T) {
	_, _, jsonFlag, _ := shared.RegisterFlagPointers()
	*jsonFlag = true
	defer func() { *jsonFlag = false }()

	gw := newFakeGateway(testDefinition)
	cmd, buf := testCmd(t)

	err := run(cmd, gw, discardLogger(), testExecutionARN, options{})
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "OrderPipeline-with-GoToState", out["name"])
	diag := out["diagnostic"].(map[string]interface{})
	assert.Equal(t, "B", diag["failed_state"])
}

func TestRunNoFailureExitCode(t *testing.T) {
	gw := newFakeGateway(testDefinition)
	gw.events = []history.Event{
		{ID: 1, Type: history.ExecutionStarted},
		{ID: 2, PreviousID: 1, Type: history.ExecutionSucceeded},
	}
	cmd, _ := testCmd(t)

	err := run(cmd, gw, discardLogger(), testExecutionARN, options{})
	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, shared.ExitNoFailureFound, exitErr.Code)
}

func TestRunNameCollisionExitCode(t *testing.T) {
	def := `{
		"StartAt": "A",
		"States": {
			"A": {"Type": "Task", "Resource": "arn:aws:lambda:us-east-1:123456789012:function:a", "Next": "B"},
			"B": {"Type": "Task", "Resource": "arn:aws:lambda:us-east-1:123456789012:function:b", "Next": "GoToState"},
			"GoToState": {"Type": "Succeed"}
		}
	}`
	gw := newFakeGateway(def)
	cmd, _ := testCmd(t)

	err := run(cmd, gw, discardLogger(), testExecutionARN, options{})
	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, shared.ExitInvalidDefinition, exitErr.Code)
}

func TestRunServiceErrorExitCode(t *testing.T) {
	gw := newFakeGateway(testDefinition)
	gw.historyErr = fmt.Errorf("throttled")
	cmd, _ := testCmd(t)

	logBuf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logBuf, nil))

	err := run(cmd, gw, logger, testExecutionARN, options{})
	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, shared.ExitServiceError, exitErr.Code)
	assert.Contains(t, err.Error(), "throttled")

	assert.Contains(t, logBuf.String(), "fetching execution history failed")
	assert.Contains(t, logBuf.String(), "error=throttled")
}

func TestRunCreateFailure(t *testing.T) {
	gw := newFakeGateway(testDefinition)
	gw.createErr = fmt.Errorf("StateMachineAlreadyExists")
	cmd, _ := testCmd(t)

	err := run(cmd, gw, discardLogger(), testExecutionARN, options{})
	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, shared.ExitServiceError, exitErr.Code)
}
