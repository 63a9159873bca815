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

// Package sfn is the gateway to the AWS Step Functions API: it fetches
// execution histories and state machine definitions, and creates the
// rewritten machines. Service failures are wrapped with context and
// surfaced unchanged; retry policy belongs to the SDK, not to callers.
package sfn

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awssfn "github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/sfn/types"

	"github.com/tombee/stepresume/internal/log"
	"github.com/tombee/stepresume/pkg/errors"
	"github.com/tombee/stepresume/pkg/history"
)

// historyPageSize is the maximum page size GetExecutionHistory allows.
const historyPageSize = 1000

// API is the subset of the Step Functions client the gateway uses.
// Tests substitute a fake.
type API interface {
	GetExecutionHistory(ctx context.Context, params *awssfn.GetExecutionHistoryInput, optFns ...func(*awssfn.Options)) (*awssfn.GetExecutionHistoryOutput, error)
	DescribeStateMachine(ctx context.Context, params *awssfn.DescribeStateMachineInput, optFns ...func(*awssfn.Options)) (*awssfn.DescribeStateMachineOutput, error)
	CreateStateMachine(ctx context.Context, params *awssfn.CreateStateMachineInput, optFns ...func(*awssfn.Options)) (*awssfn.CreateStateMachineOutput, error)
}

// MachineInfo describes an existing state machine.
type MachineInfo struct {
	// ARN is the machine's resource identifier
	ARN string

	// Name is the machine's name
	Name string

	// RoleARN is the IAM role the machine executes as; the rewritten
	// copy is created with the same role
	RoleARN string

	// Definition is the raw ASL JSON
	Definition []byte
}

// Gateway wraps the Step Functions API for the resume pipeline.
type Gateway struct {
	client API
	logger *slog.Logger
}

// New creates a gateway backed by the default AWS credential chain.
// An empty region defers to the chain's region resolution.
func New(ctx context.Context, region string) (*Gateway, error) {
	var optFns []func(*config.LoadOptions) error
	if region != "" {
		optFns = append(optFns, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, errors.Wrap(err, "loading AWS configuration")
	}
	return NewWithClient(awssfn.NewFromConfig(cfg), nil), nil
}

// NewWithClient creates a gateway with an explicit client. A nil logger
// defaults to slog's default logger.
func NewWithClient(client API, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{client: client, logger: logger}
}

// FetchHistory returns the execution's full event history in forward
// order, concatenating all pages.
func (g *Gateway) FetchHistory(ctx context.Context, executionARN string) ([]history.Event, error) {
	var (
		events    []history.Event
		nextToken *string
	)

	for {
		out, err := g.client.GetExecutionHistory(ctx, &awssfn.GetExecutionHistoryInput{
			ExecutionArn: aws.String(executionARN),
			MaxResults:   historyPageSize,
			NextToken:    nextToken,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "fetching execution history for %s", executionARN)
		}
		for _, he := range out.Events {
			events = append(events, mapEvent(he))
		}
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}

	attrs := []any{
		slog.String(log.ExecutionARNKey, executionARN),
		slog.Int("events", len(events)),
	}
	if len(events) > 0 {
		// The last event says how the execution ended.
		attrs = append(attrs, slog.String(log.EventTypeKey, string(events[len(events)-1].Type)))
	}
	g.logger.Debug("fetched execution history", attrs...)
	return events, nil
}

// FetchDefinitionForExecution derives the state machine owning the
// execution and returns its description.
func (g *Gateway) FetchDefinitionForExecution(ctx context.Context, executionARN string) (*MachineInfo, error) {
	machineARN, err := StateMachineARN(executionARN)
	if err != nil {
		return nil, err
	}

	out, err := g.client.DescribeStateMachine(ctx, &awssfn.DescribeStateMachineInput{
		StateMachineArn: aws.String(machineARN),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "describing state machine %s", machineARN)
	}

	g.logger.Debug("fetched state machine definition",
		slog.String(log.StateMachineARNKey, machineARN))
	return &MachineInfo{
		ARN:        aws.ToString(out.StateMachineArn),
		Name:       aws.ToString(out.Name),
		RoleARN:    aws.ToString(out.RoleArn),
		Definition: []byte(aws.ToString(out.Definition)),
	}, nil
}

// CreateStateMachine creates a new standard state machine and returns
// its ARN.
func (g *Gateway) CreateStateMachine(ctx context.Context, name string, definition []byte, roleARN string) (string, error) {
	out, err := g.client.CreateStateMachine(ctx, &awssfn.CreateStateMachineInput{
		Name:       aws.String(name),
		Definition: aws.String(string(definition)),
		RoleArn:    aws.String(roleARN),
	})
	if err != nil {
		return "", errors.Wrapf(err, "creating state machine %s", name)
	}

	arn := aws.ToString(out.StateMachineArn)
	g.logger.Info("created state machine",
		slog.String(log.StateMachineARNKey, arn))
	return arn, nil
}

// mapEvent converts an SDK history event into the parser's model.
func mapEvent(he types.HistoryEvent) history.Event {
	ev := history.Event{
		ID:         he.Id,
		PreviousID: he.PreviousEventId,
		Type:       history.EventType(he.Type),
		Timestamp:  aws.ToTime(he.Timestamp),
	}

	if d := he.StateEnteredEventDetails; d != nil {
		ev.StateName = aws.ToString(d.Name)
		if d.Input != nil {
			ev.Input = json.RawMessage(*d.Input)
		}
	}
	if d := he.StateExitedEventDetails; d != nil {
		ev.StateName = aws.ToString(d.Name)
		if d.Output != nil {
			ev.Output = json.RawMessage(*d.Output)
		}
	}

	switch {
	case he.ExecutionFailedEventDetails != nil:
		ev.Error = aws.ToString(he.ExecutionFailedEventDetails.Error)
		ev.Cause = aws.ToString(he.ExecutionFailedEventDetails.Cause)
	case he.TaskFailedEventDetails != nil:
		ev.Error = aws.ToString(he.TaskFailedEventDetails.Error)
		ev.Cause = aws.ToString(he.TaskFailedEventDetails.Cause)
	case he.LambdaFunctionFailedEventDetails != nil:
		ev.Error = aws.ToString(he.LambdaFunctionFailedEventDetails.Error)
		ev.Cause = aws.ToString(he.LambdaFunctionFailedEventDetails.Cause)
	case he.ActivityFailedEventDetails != nil:
		ev.Error = aws.ToString(he.ActivityFailedEventDetails.Error)
		ev.Cause = aws.ToString(he.ActivityFailedEventDetails.Cause)
	}

	return ev
}
