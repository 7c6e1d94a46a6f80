package run

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
tests: tests/
executor: dotnet
url: http://localhost:5001
models:
  - path: models/login.json
    stopCondition: random(vertex_coverage(100))
graphwalker:
  port: 9000
report:
  file: run.log
  path: true
verbose: true
`)
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}
	if cfg.Tests != "tests/" || cfg.Executor != ExecutorDotnet || cfg.URL != "http://localhost:5001" {
		t.Fatalf("config: %+v", cfg)
	}
	if len(cfg.Models) != 1 || cfg.Models[0].StopCondition != "random(vertex_coverage(100))" {
		t.Fatalf("models: %+v", cfg.Models)
	}
	if cfg.Generator.Port != 9000 || !cfg.Report.Path || cfg.Report.File != "run.log" || !cfg.Verbose {
		t.Fatalf("config: %+v", cfg)
	}
}

func TestLoadConfigFile_UnknownKey(t *testing.T) {
	path := writeConfig(t, "tests: tests/\nbogus: true\n")
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatal("expected an error for an unknown key")
	}
}

func TestLoadConfigFile_TrailingDocument(t *testing.T) {
	path := writeConfig(t, "tests: tests/\n---\ntests: other/\n")
	_, err := LoadConfigFile(path)
	if err == nil || !strings.Contains(err.Error(), "trailing document") {
		t.Fatalf("error: %v", err)
	}
}

func TestLoadConfigFile_InvalidExecutor(t *testing.T) {
	path := writeConfig(t, "executor: carrier-pigeon\n")
	_, err := LoadConfigFile(path)
	if err == nil || !strings.Contains(err.Error(), "unknown executor type") {
		t.Fatalf("error: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Executor: ExecutorDotnet}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for dotnet without tests")
	}
	cfg = Config{Models: []Model{{StopCondition: "random(never)"}}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a model without a path")
	}
}

func TestDefaultConfig_Environment(t *testing.T) {
	t.Setenv("ALTWALKER_GRAPHWALKER_HOST", "gw.internal")
	t.Setenv("ALTWALKER_GRAPHWALKER_PORT", "8887")
	t.Setenv("GRAPHWALKER_LOG_LEVEL", "DEBUG")

	cfg := DefaultConfig()
	if cfg.Generator.Host != "gw.internal" || cfg.Generator.Port != 8887 {
		t.Fatalf("generator config: %+v", cfg.Generator)
	}
	if cfg.Generator.LogLevel != "DEBUG" {
		t.Fatalf("log level: %q", cfg.Generator.LogLevel)
	}
	if cfg.Executor != ExecutorHTTP {
		t.Fatalf("executor: %q", cfg.Executor)
	}
}
