// Package walker drives a run: it pulls steps from a planner, dispatches
// them to an executor wrapped in the fixture protocol, and reports progress.
package walker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/altwalker/gowalker/internal/executor"
	"github.com/altwalker/gowalker/internal/planner"
	"github.com/altwalker/gowalker/internal/report"
)

// Fixture names recognized by the walker.
const (
	fixtureSetUpRun      = "setUpRun"
	fixtureTearDownRun   = "tearDownRun"
	fixtureSetUpModel    = "setUpModel"
	fixtureTearDownModel = "tearDownModel"
	fixtureBeforeStep    = "beforeStep"
	fixtureAfterStep     = "afterStep"
)

// DefaultTeardownTimeout bounds each teardown fixture call after the run's
// context was canceled.
const DefaultTeardownTimeout = 10 * time.Second

// Options wires a walker together. Planner, Executor and Reporter are
// required.
type Options struct {
	Planner  planner.Planner
	Executor executor.Executor
	Reporter report.Reporter

	// Info is handed to the reporter when the run starts.
	Info report.RunInfo

	// TeardownTimeout bounds teardown fixtures once the run's context is
	// gone; zero means DefaultTeardownTimeout.
	TeardownTimeout time.Duration

	Logger *zerolog.Logger
}

// Walker is the run state machine. All planner and executor calls are
// strictly serial; a walker runs once.
type Walker struct {
	planner  planner.Planner
	executor executor.Executor
	reporter report.Reporter
	log      zerolog.Logger

	info            report.RunInfo
	teardownTimeout time.Duration

	failed      bool
	interrupted bool

	currentModel string
	modelOpen    bool
	modelFailed  bool

	fixtures map[string]bool
}

// New returns a walker ready to run.
func New(opts Options) *Walker {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	timeout := opts.TeardownTimeout
	if timeout <= 0 {
		timeout = DefaultTeardownTimeout
	}
	return &Walker{
		planner:         opts.Planner,
		executor:        opts.Executor,
		reporter:        opts.Reporter,
		log:             log,
		info:            opts.Info,
		teardownTimeout: timeout,
		fixtures:        make(map[string]bool),
	}
}

// Run walks the path to its end. Transport and generator failures are
// returned after best-effort teardown; step and fixture failures are
// absorbed into the result.
func (w *Walker) Run(ctx context.Context) (report.RunResult, error) {
	w.reporter.Start(w.info)
	fatal := w.walk(ctx)

	// Teardown is best-effort: a canceled context gets a bounded clock per
	// fixture, and failures flag the run without stopping shutdown.
	if w.modelOpen && !w.modelFailed {
		if _, err := w.runTeardownFixture(ctx, w.currentModel, fixtureTearDownModel); err != nil && fatal == nil {
			fatal = err
		}
	}
	if _, err := w.runTeardownFixture(ctx, "", fixtureTearDownRun); err != nil && fatal == nil {
		fatal = err
	}

	result := report.RunResult{
		Passed:      fatal == nil && !w.failed,
		Interrupted: w.interrupted,
	}
	if stats, err := w.statistics(ctx); err == nil {
		result.Statistics = stats
	}
	w.reporter.End(result)
	return result, fatal
}

func (w *Walker) walk(ctx context.Context) error {
	ok, err := w.runFixture(ctx, "", fixtureSetUpRun)
	if err != nil {
		return err
	}
	if !ok {
		// A failed setUpRun skips every model; tearDownRun still runs.
		return nil
	}

	for {
		if ctx.Err() != nil {
			w.log.Debug().Msg("run interrupted")
			w.interrupted = true
			return nil
		}

		more, err := w.planner.HasNext(ctx)
		if err != nil {
			return w.abort(planner.Step{}, err)
		}
		if !more {
			return nil
		}
		step, err := w.planner.GetNext(ctx)
		if err != nil {
			return w.abort(planner.Step{}, err)
		}
		// Replayed paths may carry fixture entries; the walker drives its
		// own fixtures.
		if step.IsFixture() {
			continue
		}

		if err := w.switchModel(ctx, step.ModelName); err != nil {
			return err
		}
		if w.modelFailed {
			w.reportSkipped(step)
			continue
		}

		// Anonymous elements are walked but never dispatched.
		if step.Name == "" {
			w.reporter.StepStart(step)
			w.reporter.StepEnd(step, report.StepResult{Status: report.StatusPassed})
			continue
		}

		beforeOK := true
		for _, scope := range []string{"", step.ModelName} {
			ok, err := w.runFixture(ctx, scope, fixtureBeforeStep)
			if err != nil {
				return err
			}
			if !ok {
				beforeOK = false
				break
			}
		}

		if beforeOK {
			if err := w.executeStep(ctx, step); err != nil {
				return err
			}
		} else {
			w.reportSkipped(step)
		}

		// afterStep runs even when beforeStep or the step itself failed.
		for _, scope := range []string{step.ModelName, ""} {
			if _, err := w.runFixture(ctx, scope, fixtureAfterStep); err != nil {
				return err
			}
		}
	}
}

// switchModel closes the open model and sets up the next one when the step
// crosses a model boundary.
func (w *Walker) switchModel(ctx context.Context, modelName string) error {
	if w.modelOpen && w.currentModel == modelName {
		return nil
	}
	if w.modelOpen && !w.modelFailed {
		if _, err := w.runFixture(ctx, w.currentModel, fixtureTearDownModel); err != nil {
			return err
		}
	}
	w.currentModel = modelName
	w.modelOpen = true
	ok, err := w.runFixture(ctx, modelName, fixtureSetUpModel)
	if err != nil {
		return err
	}
	// A failed setUpModel flags the run and skips this model's steps until
	// the next boundary.
	w.modelFailed = !ok
	return nil
}

// executeStep runs one model step: fetch the generator's data, dispatch,
// write modified keys back, flag failures.
func (w *Walker) executeStep(ctx context.Context, step planner.Step) error {
	data, err := w.planner.GetData(ctx)
	if err != nil {
		return w.abort(step, err)
	}

	w.reporter.StepStart(step)
	started := time.Now()
	result, err := w.executor.ExecuteStep(ctx, step.ModelName, step.Name, data, step)
	duration := time.Since(started)

	if err != nil {
		var execErr *executor.Error
		if errors.As(err, &execErr) && !execErr.Fatal() {
			w.failed = true
			w.reporter.StepEnd(step, report.StepResult{
				Status:   report.StatusFailed,
				Duration: duration,
				Error:    &report.Failure{Message: execErr.Error(), Trace: execErr.Trace},
			})
			return w.plannerFail(ctx, execErr.Error())
		}
		w.reporter.StepEnd(step, report.StepResult{
			Status:   report.StatusFailed,
			Duration: duration,
			Error:    &report.Failure{Message: err.Error()},
		})
		return w.abort(step, err)
	}

	// Data changes are written back even when the step failed: the run
	// continues, and later steps must observe them.
	if err := w.propagateData(ctx, data, result.Data); err != nil {
		return w.abort(step, err)
	}

	if result.Failed() {
		w.failed = true
		w.reporter.StepEnd(step, report.StepResult{
			Status:   report.StatusFailed,
			Output:   result.Output,
			Duration: duration,
			Error:    &report.Failure{Message: result.Error.Message, Trace: result.Error.Trace},
		})
		return w.plannerFail(ctx, result.Error.Message)
	}

	w.reporter.StepEnd(step, report.StepResult{
		Status:   report.StatusPassed,
		Output:   result.Output,
		Duration: duration,
	})
	return nil
}

// reportSkipped reports a step that was never dispatched.
func (w *Walker) reportSkipped(step planner.Step) {
	w.reporter.StepStart(step)
	w.reporter.StepEnd(step, report.StepResult{Status: report.StatusSkipped})
}

// propagateData writes keys the step changed back into the generator, so the
// next step observes them.
func (w *Walker) propagateData(ctx context.Context, before map[string]string, after map[string]any) error {
	if len(after) == 0 {
		return nil
	}
	keys := make([]string, 0, len(after))
	for key := range after {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := after[key]
		if prior, ok := before[key]; ok && prior == fmt.Sprint(value) {
			continue
		}
		if err := w.planner.SetData(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}

// runFixture dispatches a fixture if the test code defines it. The returned
// bool is false when the fixture ran and failed; failures flag the run.
func (w *Walker) runFixture(ctx context.Context, modelName, name string) (bool, error) {
	present, err := w.hasFixture(ctx, modelName, name)
	if err != nil {
		return false, w.abort(planner.Step{Name: name, ModelName: modelName}, err)
	}
	if !present {
		return true, nil
	}

	// Fixtures see and mutate the graph context the same way model steps
	// do.
	step := planner.Step{Name: name, ModelName: modelName}
	data, err := w.planner.GetData(ctx)
	if err != nil {
		return false, w.abort(step, err)
	}

	w.reporter.StepStart(step)
	started := time.Now()
	result, err := w.executor.ExecuteStep(ctx, modelName, name, data, step)
	duration := time.Since(started)

	if err != nil {
		var execErr *executor.Error
		if errors.As(err, &execErr) && !execErr.Fatal() {
			w.failed = true
			w.reporter.StepEnd(step, report.StepResult{
				Status:   report.StatusFailed,
				Duration: duration,
				Error:    &report.Failure{Message: execErr.Error(), Trace: execErr.Trace},
			})
			return false, nil
		}
		w.reporter.StepEnd(step, report.StepResult{
			Status:   report.StatusFailed,
			Duration: duration,
			Error:    &report.Failure{Message: err.Error()},
		})
		return false, w.abort(step, err)
	}
	if err := w.propagateData(ctx, data, result.Data); err != nil {
		return false, w.abort(step, err)
	}

	if result.Failed() {
		w.failed = true
		w.reporter.StepEnd(step, report.StepResult{
			Status:   report.StatusFailed,
			Output:   result.Output,
			Duration: duration,
			Error:    &report.Failure{Message: result.Error.Message, Trace: result.Error.Trace},
		})
		return false, nil
	}
	w.reporter.StepEnd(step, report.StepResult{
		Status:   report.StatusPassed,
		Output:   result.Output,
		Duration: duration,
	})
	return true, nil
}

// runTeardownFixture is runFixture on a clock that survives cancellation.
func (w *Walker) runTeardownFixture(ctx context.Context, modelName, name string) (bool, error) {
	if ctx.Err() != nil {
		bounded, cancel := context.WithTimeout(context.Background(), w.teardownTimeout)
		defer cancel()
		ctx = bounded
	}
	return w.runFixture(ctx, modelName, name)
}

// hasFixture queries and caches fixture presence per (model, name).
func (w *Walker) hasFixture(ctx context.Context, modelName, name string) (bool, error) {
	key := modelName + "\x00" + name
	if present, ok := w.fixtures[key]; ok {
		return present, nil
	}
	present, err := w.executor.HasStep(ctx, modelName, name)
	if err != nil {
		return false, err
	}
	w.fixtures[key] = present
	return present, nil
}

func (w *Walker) statistics(ctx context.Context) (planner.Statistics, error) {
	if ctx.Err() != nil {
		bounded, cancel := context.WithTimeout(context.Background(), w.teardownTimeout)
		defer cancel()
		ctx = bounded
	}
	return w.planner.GetStatistics(ctx)
}

func (w *Walker) plannerFail(ctx context.Context, message string) error {
	if err := w.planner.Fail(ctx, message); err != nil {
		return w.abort(planner.Step{}, err)
	}
	return nil
}

// abort marks a fatal failure: report it, flag the run, hand the error back
// up for teardown.
func (w *Walker) abort(step planner.Step, err error) error {
	w.failed = true
	trace := ""
	var execErr *executor.Error
	if errors.As(err, &execErr) {
		trace = execErr.Trace
	}
	w.log.Error().Err(err).Msg("run aborted")
	w.reporter.Error(step, err.Error(), trace)
	return err
}
