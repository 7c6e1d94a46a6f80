package graphwalker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildCommand(t *testing.T) {
	argv := buildCommand("offline", CommandOptions{
		Models: []ModelStop{
			{Path: "login.json", StopCondition: "random(edge_coverage(100))"},
			{Path: "cart.json", StopCondition: "quick_random(vertex_coverage(50))"},
		},
		StartElement: "v0",
		Verbose:      true,
		Unvisited:    true,
		Blocked:      true,
		LogLevel:     "debug",
	})
	want := []string{
		"gw", "--debug", "DEBUG", "offline",
		"--model", "login.json", "random(edge_coverage(100))",
		"--model", "cart.json", "quick_random(vertex_coverage(50))",
		"--start-element", "v0",
		"--verbose", "--unvisited",
		"--blocked", "true",
	}
	if len(argv) != len(want) {
		t.Fatalf("argv: got %v, want %v", argv, want)
	}
	for i := range want {
		if argv[i] != want[i] {
			t.Fatalf("argv[%d]: got %q, want %q", i, argv[i], want[i])
		}
	}
}

func TestBuildCommand_Minimal(t *testing.T) {
	argv := buildCommand("check", CommandOptions{
		Models: []ModelStop{{Path: "m.json", StopCondition: "random(never)"}},
	})
	joined := strings.Join(argv, " ")
	if strings.Contains(joined, "--debug") || strings.Contains(joined, "--verbose") {
		t.Fatalf("unexpected flags: %v", argv)
	}
	if !strings.HasSuffix(joined, "--blocked false") {
		t.Fatalf("blocked flag always passed: %v", argv)
	}
}

func TestGeneratorLogLevel(t *testing.T) {
	cases := map[string]string{
		"debug":   "DEBUG",
		"info":    "INFO",
		"warn":    "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"trace":   "ALL",
		"fatal":   "TRACE",
		"":        "OFF",
		"bogus":   "OFF",
	}
	for in, want := range cases {
		if got := generatorLogLevel(in); got != want {
			t.Fatalf("generatorLogLevel(%q): got %q, want %q", in, got, want)
		}
	}
}

// writeScript drops an executable shell script to stand in for the generator
// binary.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gw")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestOffline_ParsesStepLines(t *testing.T) {
	script := writeScript(t, `cat <<'EOF'
{"currentElementID":"v0","currentElementName":"logged_out","modelName":"Login","data":[{"count":0}]}
{"currentElementID":"e0","currentElementName":"log_in","modelName":"Login","data":[{"count":1}]}
EOF`)
	steps, err := Offline(context.Background(), CommandOptions{
		Executable: script,
		Models:     []ModelStop{{Path: "login.json", StopCondition: "random(length(2))"}},
	})
	if err != nil {
		t.Fatalf("Offline() error: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("steps: %+v", steps)
	}
	if steps[0].ID != "v0" || steps[1].Name != "log_in" {
		t.Fatalf("steps: %+v", steps)
	}
	// Non-verbose replay drops the model context.
	if steps[0].Data != nil {
		t.Fatalf("data kept without verbose: %+v", steps[0])
	}
}

func TestOffline_VerboseKeepsData(t *testing.T) {
	script := writeScript(t, `echo '{"currentElementID":"v0","currentElementName":"logged_out","modelName":"Login","data":[{"count":0}]}'`)
	steps, err := Offline(context.Background(), CommandOptions{
		Executable: script,
		Verbose:    true,
		Models:     []ModelStop{{Path: "login.json", StopCondition: "random(length(1))"}},
	})
	if err != nil {
		t.Fatalf("Offline() error: %v", err)
	}
	if steps[0].Data["count"] != "0" {
		t.Fatalf("data: %+v", steps[0])
	}
}

func TestCheck_StderrBecomesError(t *testing.T) {
	script := writeScript(t, `echo "Model syntax error" 1>&2; exit 1`)
	_, err := Check(context.Background(), CommandOptions{
		Executable: script,
		Models:     []ModelStop{{Path: "m.json", StopCondition: "random(never)"}},
	})
	if !IsGeneratorError(err) {
		t.Fatalf("Check() error: %v", err)
	}
	if !strings.Contains(err.Error(), "Model syntax error") {
		t.Fatalf("Check() message: %v", err)
	}
}

func TestCheck_Passthrough(t *testing.T) {
	script := writeScript(t, `echo "No issues found with the model(s)."`)
	out, err := Check(context.Background(), CommandOptions{
		Executable: script,
		Models:     []ModelStop{{Path: "m.json", StopCondition: "random(never)"}},
	})
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if !strings.HasPrefix(out, "No issues found") {
		t.Fatalf("Check() output: %q", out)
	}
}

func TestMethodNames(t *testing.T) {
	script := writeScript(t, "printf 'logged_out\\nlog_in\\n'")
	names, err := MethodNames(context.Background(), CommandOptions{Executable: script, ModelPath: "m.graphml"})
	if err != nil {
		t.Fatalf("MethodNames() error: %v", err)
	}
	if len(names) != 2 || names[0] != "logged_out" || names[1] != "log_in" {
		t.Fatalf("names: %v", names)
	}
}

func TestMethodNames_Empty(t *testing.T) {
	script := writeScript(t, "true")
	names, err := MethodNames(context.Background(), CommandOptions{Executable: script, ModelPath: "m.graphml"})
	if err != nil {
		t.Fatalf("MethodNames() error: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("names: %v", names)
	}
}

func TestExtractErrorMessage(t *testing.T) {
	logs := "INFO some noise\nAn error occurred when running command: online\nAddress already in use\nmore noise"
	if got := extractErrorMessage(logs); got != "Address already in use" {
		t.Fatalf("extractErrorMessage(): %q", got)
	}
	if got := extractErrorMessage("clean logs"); got != "" {
		t.Fatalf("extractErrorMessage() on clean logs: %q", got)
	}
}
