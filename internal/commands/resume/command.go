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

// Package resume implements the resume command: fetch a failed
// execution's history and definition, rewrite the definition with a
// routing state, create the new machine, and report the failing input.
package resume

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tombee/stepresume/internal/commands/shared"
	"github.com/tombee/stepresume/internal/jq"
	"github.com/tombee/stepresume/internal/log"
	"github.com/tombee/stepresume/internal/sfn"
	"github.com/tombee/stepresume/pkg/errors"
	"github.com/tombee/stepresume/pkg/history"
	resumepkg "github.com/tombee/stepresume/pkg/resume"
	"github.com/tombee/stepresume/pkg/statemachine"
)

// nameSuffix is appended to the original machine name when --name is not
// given, matching the convention operators expect from the rewrite.
const nameSuffix = "-with-GoToState"

// gateway is the slice of the Step Functions gateway the command needs.
// Tests substitute a fake.
type gateway interface {
	FetchHistory(ctx context.Context, executionARN string) ([]history.Event, error)
	FetchDefinitionForExecution(ctx context.Context, executionARN string) (*sfn.MachineInfo, error)
	CreateStateMachine(ctx context.Context, name string, definition []byte, roleARN string) (string, error)
}

type options struct {
	name   string
	dryRun bool
	query  string
}

// NewCommand creates the resume command
func NewCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "resume <execution-arn>",
		Short: "Create a resumable copy of a failed state machine",
		Long: `Resume parses the history of a failed execution to find the state it
failed at and the input that state received, then creates a copy of the
state machine whose entry point is a "GoToState" Choice state.

Starting the new machine with {"resuming": true, ...} jumps straight to
the failed state; {"resuming": false} runs it from the original start
state. States skipped on resume are not re-executed, so outputs they
would have produced must be included in the new execution's input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := jq.NewExecutor(0).Validate(opts.query); err != nil {
				return shared.NewInvalidDefinitionError("invalid --query expression", err)
			}

			logCfg := log.FromEnv()
			if shared.GetVerbose() {
				logCfg.Level = "debug"
			}
			logger := log.WithExecution(log.New(logCfg), args[0])

			gw, err := sfn.New(cmd.Context(), shared.GetRegion())
			if err != nil {
				return shared.NewServiceError("initializing Step Functions client", err)
			}
			return run(cmd, gw, logger, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "", "Name for the new state machine (default: <original>"+nameSuffix+")")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print the rewritten definition without creating it")
	cmd.Flags().StringVar(&opts.query, "query", "", "jq expression applied to the failed state's input")

	return cmd
}

// result is the command's JSON output shape.
type result struct {
	StateMachineARN string                `json:"state_machine_arn,omitempty"`
	Name            string                `json:"name"`
	DryRun          bool                  `json:"dry_run,omitempty"`
	Definition      json.RawMessage       `json:"definition,omitempty"`
	Diagnostic      *resumepkg.Diagnostic `json:"diagnostic"`
	QueryResult     interface{}           `json:"query_result,omitempty"`
}

func run(cmd *cobra.Command, gw gateway, logger *slog.Logger, executionARN string, opts options) error {
	ctx := cmd.Context()

	events, err := gw.FetchHistory(ctx, executionARN)
	if err != nil {
		logger.Error("fetching execution history failed", log.Error(err))
		return shared.NewServiceError("fetching execution history", err)
	}

	record, err := history.Parse(events)
	if err != nil {
		if errors.Is(err, errors.ErrNoFailureFound) || errors.Is(err, errors.ErrUnresolvableFailureState) {
			return shared.NewNoFailureFoundError("nothing to resume", err)
		}
		return shared.NewServiceError("parsing execution history", err)
	}
	logger.Debug("parsed failure record",
		slog.String(log.StateKey, record.FailedState),
		slog.Int("succeeded_states", len(record.Succeeded)))

	info, err := gw.FetchDefinitionForExecution(ctx, executionARN)
	if err != nil {
		logger.Error("fetching state machine definition failed", log.Error(err))
		return shared.NewServiceError("fetching state machine definition", err)
	}

	def, err := statemachine.Load(info.Definition)
	if err != nil {
		return shared.NewInvalidDefinitionError("loading state machine definition", err)
	}

	newDef, err := resumepkg.Rewrite(def, record)
	if err != nil {
		return shared.NewInvalidDefinitionError("rewriting state machine definition", err)
	}

	data, err := newDef.Marshal()
	if err != nil {
		return shared.NewInvalidDefinitionError("serializing rewritten definition", err)
	}

	out := &result{
		Name:       opts.name,
		Diagnostic: resumepkg.Report(record),
	}
	if out.Name == "" {
		out.Name = info.Name + nameSuffix
	}

	if opts.query != "" {
		queried, err := jq.NewExecutor(0).Query(ctx, opts.query, record.Input)
		if err != nil {
			return shared.NewInvalidDefinitionError("evaluating --query expression", err)
		}
		out.QueryResult = queried
	}

	if opts.dryRun {
		out.DryRun = true
		out.Definition = data
	} else {
		arn, err := gw.CreateStateMachine(ctx, out.Name, data, info.RoleARN)
		if err != nil {
			logger.Error("creating state machine failed", log.Error(err))
			return shared.NewServiceError("creating state machine", err)
		}
		out.StateMachineARN = arn
	}

	return printResult(cmd, out)
}

func printResult(cmd *cobra.Command, out *result) error {
	if shared.GetJSON() {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if out.DryRun {
		cmd.Println(shared.RenderWarn("Would create state machine " + out.Name + " with definition:"))
		cmd.Printf("%s\n", out.Definition)
	} else {
		cmd.Println(shared.RenderOK("New state machine: " + out.StateMachineARN))
	}

	if !shared.GetQuiet() {
		cmd.Print(out.Diagnostic.Text())
		if out.QueryResult != nil {
			data, err := json.Marshal(out.QueryResult)
			if err != nil {
				return fmt.Errorf("failed to marshal query result: %w", err)
			}
			cmd.Printf("%s %s\n", shared.RenderLabel("Query result:"), data)
		}
	}
	return nil
}
