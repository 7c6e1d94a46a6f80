package run

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/altwalker/gowalker/internal/executor"
	"github.com/altwalker/gowalker/internal/model"
	"github.com/altwalker/gowalker/internal/planner"
	"github.com/altwalker/gowalker/internal/report"
)

const loginModel = `{
  "name": "Example",
  "models": [
    {
      "name": "Login",
      "startElementId": "v0",
      "vertices": [
        {"id": "v0", "name": "logged_out"},
        {"id": "v1", "name": "logged_in"}
      ],
      "edges": [
        {"id": "e0", "name": "log_in", "sourceVertexId": "v0", "targetVertexId": "v1"},
        {"id": "e1", "name": "log_out", "sourceVertexId": "v1", "targetVertexId": "v0"}
      ]
    }
  ]
}`

func writeModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "login.json")
	if err := os.WriteFile(path, []byte(loginModel), 0o644); err != nil {
		t.Fatalf("writing model: %v", err)
	}
	return path
}

func writeGenerator(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gw.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("writing script: %v", err)
	}
	return path
}

func TestRun_Check(t *testing.T) {
	script := writeGenerator(t, `echo "No issues found with the model(s)"
`)
	r := &Run{
		Config:     Config{Models: []Model{{Path: writeModel(t), StopCondition: "random(length(2))"}}},
		Executable: script,
	}
	out, err := r.Check(context.Background())
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if !strings.Contains(out, "No issues found") {
		t.Fatalf("output: %q", out)
	}
}

func TestRun_Check_InvalidModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte(`{"models": []}`), 0o644); err != nil {
		t.Fatalf("writing model: %v", err)
	}
	r := &Run{Config: Config{Models: []Model{{Path: path}}}}
	_, err := r.Check(context.Background())
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error: %v", err)
	}
}

func TestRun_Offline(t *testing.T) {
	script := writeGenerator(t, `printf '%s\n' '{"currentElementID": "v0", "currentElementName": "logged_out", "modelName": "Login"}'
printf '%s\n' '{"currentElementID": "e0", "currentElementName": "log_in", "modelName": "Login"}'
`)
	r := &Run{
		Config:     Config{Models: []Model{{Path: writeModel(t), StopCondition: "random(length(2))"}}},
		Executable: script,
	}
	steps, err := r.Offline(context.Background())
	if err != nil {
		t.Fatalf("Offline() error: %v", err)
	}
	if len(steps) != 2 || steps[0].ID != "v0" || steps[1].Name != "log_in" {
		t.Fatalf("steps: %+v", steps)
	}
}

func TestRun_Offline_RejectsUnboundedConditions(t *testing.T) {
	for _, stop := range []string{"random(never)", "random(time_duration(60))", "Random(Time Duration(60))"} {
		r := &Run{Config: Config{Models: []Model{{Path: "login.json", StopCondition: stop}}}}
		_, err := r.Offline(context.Background())
		if err == nil || !strings.Contains(err.Error(), "cannot bound an offline path") {
			t.Fatalf("stop %q: %v", stop, err)
		}
	}
}

func TestRun_Walk(t *testing.T) {
	stepsPath := filepath.Join(t.TempDir(), "steps.json")
	err := planner.SavePath(stepsPath, []planner.Step{
		{ID: "v0", Name: "logged_out", ModelName: "Login"},
		{ID: "e0", Name: "log_in", ModelName: "Login"},
	})
	if err != nil {
		t.Fatalf("SavePath() error: %v", err)
	}

	reporting := report.NewReporting()
	path := report.NewPath()
	if err := reporting.Register("path", path); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	r := &Run{
		Config:   Config{Executor: ExecutorNoop},
		Reporter: reporting,
		NewExecutor: func(ctx context.Context) (executor.Executor, error) {
			return executor.Noop{}, nil
		},
	}
	result, err := r.Walk(context.Background(), stepsPath)
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if !result.Passed {
		t.Fatalf("result: %+v", result)
	}
	if steps := path.Path(); len(steps) != 2 || steps[1].ID != "e0" {
		t.Fatalf("walked path: %+v", steps)
	}
}

type fakeVerifyExecutor struct {
	executor.Noop
	steps map[string]bool
}

func (f *fakeVerifyExecutor) HasStep(ctx context.Context, modelName, name string) (bool, error) {
	return f.steps[modelName+"."+name], nil
}

func TestRun_Verify(t *testing.T) {
	r := &Run{
		Config: Config{
			Tests:  "tests/",
			Models: []Model{{Path: writeModel(t)}},
		},
		NewExecutor: func(ctx context.Context) (executor.Executor, error) {
			return &fakeVerifyExecutor{steps: map[string]bool{
				"Login.log_in":     true,
				"Login.logged_in":  true,
				"Login.logged_out": true,
			}}, nil
		},
	}
	misses, err := r.Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if len(misses) != 1 || misses[0].Model != "Login" {
		t.Fatalf("misses: %+v", misses)
	}
	if len(misses[0].Methods) != 1 || misses[0].Methods[0] != "log_out" {
		t.Fatalf("missing methods: %+v", misses[0].Methods)
	}
}

func TestRunExpression(t *testing.T) {
	r := &Run{Config: Config{Models: []Model{
		{Path: "a.json", StopCondition: "random(length(2))"},
		{Path: "b.json"},
		{Path: "c.json", StopCondition: "quick_random(edge_coverage(100))"},
	}}}
	want := "random(length(2)), quick_random(edge_coverage(100))"
	if got := r.expression(); got != want {
		t.Fatalf("expression: %q", got)
	}
}
