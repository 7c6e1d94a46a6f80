// Package report fans run progress out to reporters: console printing, step
// path collection, file and JUnit XML output.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/altwalker/gowalker/internal/planner"
)

// Status is the outcome of a step or of the whole run.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Failure describes a failed step: what the test code reported, or what
// broke around it.
type Failure struct {
	Message string `json:"message"`
	Trace   string `json:"trace,omitempty"`
}

// StepResult is the outcome of one executed step.
type StepResult struct {
	Status   Status        `json:"status"`
	Output   string        `json:"output,omitempty"`
	Error    *Failure      `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RunInfo identifies a run when it starts.
type RunInfo struct {
	RunID       string   `json:"id"`
	Models      []string `json:"models,omitempty"`
	Expression  string   `json:"expression,omitempty"`
	Fingerprint string   `json:"fingerprint,omitempty"`
}

// RunResult closes out a run.
type RunResult struct {
	Passed      bool               `json:"passed"`
	Interrupted bool               `json:"interrupted,omitempty"`
	Statistics  planner.Statistics `json:"statistics,omitempty"`
}

// Reporter receives run progress. Implementations must tolerate End without
// a matching Start when a run dies during setup.
type Reporter interface {
	Start(info RunInfo)
	End(result RunResult)
	StepStart(step planner.Step)
	StepEnd(step planner.Step, result StepResult)
	Error(step planner.Step, message, trace string)
	// Report returns the reporter's accumulated artifact, if it keeps one.
	Report() (any, bool)
}

// Reporting fans every event out to its registered reporters, in key order.
type Reporting struct {
	reporters map[string]Reporter
}

// NewReporting returns an empty fan-out.
func NewReporting() *Reporting {
	return &Reporting{reporters: make(map[string]Reporter)}
}

// Register adds a reporter under key. Registering a taken key is an error.
func (r *Reporting) Register(key string, reporter Reporter) error {
	if _, ok := r.reporters[key]; ok {
		return fmt.Errorf("a reporter is already registered under the key %q", key)
	}
	r.reporters[key] = reporter
	return nil
}

// Unregister removes the reporter under key. Unknown keys are an error.
func (r *Reporting) Unregister(key string) error {
	if _, ok := r.reporters[key]; !ok {
		return fmt.Errorf("no reporter is registered under the key %q", key)
	}
	delete(r.reporters, key)
	return nil
}

func (r *Reporting) ordered() []Reporter {
	keys := make([]string, 0, len(r.reporters))
	for key := range r.reporters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]Reporter, 0, len(keys))
	for _, key := range keys {
		out = append(out, r.reporters[key])
	}
	return out
}

func (r *Reporting) Start(info RunInfo) {
	for _, reporter := range r.ordered() {
		reporter.Start(info)
	}
}

func (r *Reporting) End(result RunResult) {
	for _, reporter := range r.ordered() {
		reporter.End(result)
	}
}

func (r *Reporting) StepStart(step planner.Step) {
	for _, reporter := range r.ordered() {
		reporter.StepStart(step)
	}
}

func (r *Reporting) StepEnd(step planner.Step, result StepResult) {
	for _, reporter := range r.ordered() {
		reporter.StepEnd(step, result)
	}
}

func (r *Reporting) Error(step planner.Step, message, trace string) {
	for _, reporter := range r.ordered() {
		reporter.Error(step, message, trace)
	}
}

// Report collects the artifacts of reporters that keep one, keyed by their
// registration key.
func (r *Reporting) Report() (any, bool) {
	out := make(map[string]any)
	keys := make([]string, 0, len(r.reporters))
	for key := range r.reporters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if artifact, ok := r.reporters[key].Report(); ok {
			out[key] = artifact
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}
