package run

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/altwalker/gowalker/internal/code"
	"github.com/altwalker/gowalker/internal/executor"
	"github.com/altwalker/gowalker/internal/graphwalker"
	"github.com/altwalker/gowalker/internal/model"
	"github.com/altwalker/gowalker/internal/planner"
	"github.com/altwalker/gowalker/internal/report"
	"github.com/altwalker/gowalker/internal/walker"
)

// Run executes one command against a config. The zero value is unusable;
// fill Config at least.
type Run struct {
	Config   Config
	Reporter report.Reporter
	Logger   *zerolog.Logger

	// Executable overrides the generator binary; tests point it at a stub.
	Executable string
	// NewExecutor overrides executor construction; nil builds one from
	// Config.
	NewExecutor func(ctx context.Context) (executor.Executor, error)
}

// NewRunID mints the identifier stamped into reports.
func NewRunID() string {
	return ulid.Make().String()
}

// Check validates the models locally and then hands them to the generator's
// own analysis. The returned text is the generator's report.
func (r *Run) Check(ctx context.Context) (string, error) {
	if _, err := r.loadSuite(ctx); err != nil {
		return "", err
	}
	return graphwalker.Check(ctx, graphwalker.CommandOptions{
		Executable: r.Executable,
		Models:     r.modelStops(),
		Blocked:    r.Config.Blocked,
		LogLevel:   r.Config.Generator.LogLevel,
	})
}

// Verify checks the test code against the model set and returns what is
// missing.
func (r *Run) Verify(ctx context.Context) ([]code.Missing, error) {
	suite, err := r.loadSuite(ctx)
	if err != nil {
		return nil, err
	}
	exec, err := r.buildExecutor(ctx)
	if err != nil {
		return nil, err
	}
	defer exec.Kill()
	if err := exec.Load(ctx, r.Config.Tests); err != nil {
		return nil, err
	}
	return code.Verify(ctx, exec, model.Methods(suite, r.Config.Blocked))
}

// Online walks a generator-planned path against the test code.
func (r *Run) Online(ctx context.Context) (report.RunResult, error) {
	suite, err := r.loadSuite(ctx)
	if err != nil {
		return report.RunResult{}, err
	}
	pl, err := r.onlinePlanner(ctx, suite)
	if err != nil {
		return report.RunResult{}, err
	}
	defer pl.Close()

	info := report.RunInfo{
		RunID:       NewRunID(),
		Models:      modelNames(suite),
		Expression:  r.expression(),
		Fingerprint: suite.Fingerprint(),
	}
	return r.walk(ctx, pl, info)
}

// Offline asks the generator for a complete path up front.
func (r *Run) Offline(ctx context.Context) ([]planner.Step, error) {
	if err := r.validateOfflineStopConditions(); err != nil {
		return nil, err
	}
	if _, err := r.loadSuite(ctx); err != nil {
		return nil, err
	}
	return graphwalker.Offline(ctx, graphwalker.CommandOptions{
		Executable:   r.Executable,
		Models:       r.modelStops(),
		StartElement: r.Config.StartElement,
		Verbose:      r.Config.Verbose,
		Unvisited:    r.Config.Unvisited,
		Blocked:      r.Config.Blocked,
		LogLevel:     r.Config.Generator.LogLevel,
	})
}

// Walk replays a recorded path against the test code.
func (r *Run) Walk(ctx context.Context, stepsPath string) (report.RunResult, error) {
	steps, err := planner.LoadPath(stepsPath)
	if err != nil {
		return report.RunResult{}, err
	}
	pl := planner.NewOffline(steps)
	defer pl.Close()

	info := report.RunInfo{RunID: NewRunID()}
	return r.walk(ctx, pl, info)
}

func (r *Run) walk(ctx context.Context, pl planner.Planner, info report.RunInfo) (report.RunResult, error) {
	exec, err := r.buildExecutor(ctx)
	if err != nil {
		return report.RunResult{}, err
	}
	defer exec.Kill()
	if err := exec.Load(ctx, r.Config.Tests); err != nil {
		return report.RunResult{}, err
	}
	if err := exec.Reset(ctx); err != nil {
		return report.RunResult{}, err
	}

	w := walker.New(walker.Options{
		Planner:  pl,
		Executor: exec,
		Reporter: r.reporter(),
		Info:     info,
		Logger:   r.Logger,
	})
	return w.Run(ctx)
}

// onlinePlanner connects to a configured generator host, or spawns a local
// generator service.
func (r *Run) onlinePlanner(ctx context.Context, suite *model.Suite) (planner.Planner, error) {
	cfg := r.Config
	if cfg.Generator.Host != "" {
		client := graphwalker.NewClient(cfg.Generator.Host, cfg.Generator.Port, cfg.Verbose, r.Logger)
		if err := client.Load(ctx, suite); err != nil {
			return nil, err
		}
		return planner.NewOnline(client, nil), nil
	}

	service, err := graphwalker.StartService(ctx, graphwalker.ServiceOptions{
		Models:       r.modelStops(),
		Port:         cfg.Generator.Port,
		StartElement: cfg.StartElement,
		Unvisited:    cfg.Unvisited,
		Blocked:      cfg.Blocked,
		LogLevel:     cfg.Generator.LogLevel,
		Executable:   r.Executable,
		Logger:       r.Logger,
	})
	if err != nil {
		return nil, err
	}
	client := graphwalker.NewClient("127.0.0.1", service.Port(), cfg.Verbose, r.Logger)
	client.BindService(service)
	return planner.NewOnline(client, service), nil
}

func (r *Run) buildExecutor(ctx context.Context) (executor.Executor, error) {
	if r.NewExecutor != nil {
		return r.NewExecutor(ctx)
	}
	cfg := r.Config
	switch cfg.Executor {
	case ExecutorNoop:
		return executor.Noop{}, nil
	case ExecutorDotnet:
		url := cfg.URL
		if url == "" {
			url = executor.DefaultURL
		}
		service, err := executor.StartService(ctx, executor.ServiceOptions{
			Path:   cfg.Tests,
			URL:    url,
			Logger: r.Logger,
		})
		if err != nil {
			return nil, err
		}
		e := executor.NewHTTP(url, r.Logger)
		e.AttachService(service)
		return e, nil
	default:
		return executor.NewHTTP(cfg.URL, r.Logger), nil
	}
}

// loadSuite expands the model arguments, converts GraphML files through the
// generator, decodes everything, and validates the combined suite.
func (r *Run) loadSuite(ctx context.Context) (*model.Suite, error) {
	patterns := make([]string, 0, len(r.Config.Models))
	for _, m := range r.Config.Models {
		patterns = append(patterns, m.Path)
	}
	paths, err := model.ExpandPaths(patterns)
	if err != nil {
		return nil, err
	}

	suite := &model.Suite{}
	for _, path := range paths {
		var part *model.Suite
		if filepath.Ext(path) == ".graphml" {
			raw, err := graphwalker.ConvertModel(ctx, graphwalker.CommandOptions{
				Executable: r.Executable,
				ModelPath:  path,
			})
			if err != nil {
				return nil, err
			}
			part, err = model.LoadBytes(raw, path)
			if err != nil {
				return nil, err
			}
		} else {
			part, err = model.LoadFile(path)
			if err != nil {
				return nil, err
			}
		}
		suite.Models = append(suite.Models, part.Models...)
		if suite.Name == "" {
			suite.Name = part.Name
		}
	}
	if err := model.ValidateOrError(suite); err != nil {
		return nil, err
	}
	return suite, nil
}

func (r *Run) modelStops() []graphwalker.ModelStop {
	stops := make([]graphwalker.ModelStop, 0, len(r.Config.Models))
	for _, m := range r.Config.Models {
		stops = append(stops, graphwalker.ModelStop{Path: m.Path, StopCondition: m.StopCondition})
	}
	return stops
}

func (r *Run) expression() string {
	var parts []string
	for _, m := range r.Config.Models {
		if m.StopCondition != "" {
			parts = append(parts, m.StopCondition)
		}
	}
	return strings.Join(parts, ", ")
}

func (r *Run) reporter() report.Reporter {
	if r.Reporter != nil {
		return r.Reporter
	}
	return report.NewReporting()
}

// ValidateOfflineStopConditions rejects conditions that never end or end on
// a clock; an offline path must be finite and reproducible.
func ValidateOfflineStopConditions(models []Model) error {
	for _, m := range models {
		normalized := strings.ReplaceAll(strings.ToLower(m.StopCondition), " ", "")
		normalized = strings.ReplaceAll(normalized, "_", "")
		if strings.Contains(normalized, "never") || strings.Contains(normalized, "timeduration") {
			return fmt.Errorf("the stop condition %q cannot bound an offline path", m.StopCondition)
		}
	}
	return nil
}

func (r *Run) validateOfflineStopConditions() error {
	return ValidateOfflineStopConditions(r.Config.Models)
}

func modelNames(suite *model.Suite) []string {
	names := make([]string, 0, len(suite.Models))
	for _, m := range suite.Models {
		names = append(names, m.Name)
	}
	return names
}
