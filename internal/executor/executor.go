// Package executor dispatches steps to the user's test code: over the HTTP
// wire protocol (base path /altwalker), optionally supervising the service
// process that hosts it.
package executor

import (
	"context"

	"github.com/altwalker/gowalker/internal/planner"
)

// StepError is the failure a step reported, as opposed to a protocol or
// transport failure.
type StepError struct {
	Message string `json:"message"`
	Trace   string `json:"trace,omitempty"`
}

// Result is the outcome of one executed step. A non-nil Error means the step
// failed.
type Result struct {
	Output string         `json:"output"`
	Data   map[string]any `json:"data,omitempty"`
	Value  any            `json:"result,omitempty"`
	Error  *StepError     `json:"error,omitempty"`
}

// Failed reports whether the step reported a failure.
func (r Result) Failed() bool { return r.Error != nil }

// Executor is the walker's test-code surface. An empty modelName addresses a
// run-level fixture.
type Executor interface {
	// Load points the executor at the test code. For subprocess-owned
	// executors this (re)starts the service.
	Load(ctx context.Context, path string) error
	// Reset clears any per-run state in the test code.
	Reset(ctx context.Context) error
	HasModel(ctx context.Context, name string) (bool, error)
	HasStep(ctx context.Context, modelName, name string) (bool, error)
	// ExecuteStep runs one step, passing the current model context; the step
	// itself travels along for test code that wants its metadata.
	ExecuteStep(ctx context.Context, modelName, name string, data map[string]string, step planner.Step) (Result, error)
	// Kill tears down the owned service process, if any. Idempotent.
	Kill() error
}

// Noop is an executor that accepts everything and does nothing. Useful for
// walking a path without running test code.
type Noop struct{}

func (Noop) Load(ctx context.Context, path string) error { return nil }
func (Noop) Reset(ctx context.Context) error             { return nil }

func (Noop) HasModel(ctx context.Context, name string) (bool, error) { return true, nil }

func (Noop) HasStep(ctx context.Context, modelName, name string) (bool, error) {
	return true, nil
}

func (Noop) ExecuteStep(ctx context.Context, modelName, name string, data map[string]string, step planner.Step) (Result, error) {
	return Result{}, nil
}

func (Noop) Kill() error { return nil }
