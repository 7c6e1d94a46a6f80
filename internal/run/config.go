// Package run composes the pieces of a run: models, generator, executor,
// walker, reporters. It also owns the run-config file format.
package run

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Executor types the config accepts.
const (
	ExecutorHTTP   = "http"
	ExecutorDotnet = "dotnet"
	ExecutorNoop   = "noop"
)

// Model pairs a model file with the stop condition to run it under.
type Model struct {
	Path          string `yaml:"path"`
	StopCondition string `yaml:"stopCondition"`
}

// GeneratorConfig locates the path generator.
type GeneratorConfig struct {
	// Host of an already-running generator service. Empty means the runner
	// spawns its own.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// LogLevel maps to the generator's --debug flag.
	LogLevel string `yaml:"logLevel"`
}

// ReportConfig selects run outputs.
type ReportConfig struct {
	File     string `yaml:"file"`
	Path     bool   `yaml:"path"`
	PathFile string `yaml:"pathFile"`
	XMLFile  string `yaml:"xmlFile"`
}

// Config is the run-config file. Flags override whatever it sets.
type Config struct {
	Tests  string  `yaml:"tests"`
	Models []Model `yaml:"models"`

	Executor string `yaml:"executor"`
	URL      string `yaml:"url"`

	Generator GeneratorConfig `yaml:"graphwalker"`

	StartElement string `yaml:"startElement"`
	Verbose      bool   `yaml:"verbose"`
	Unvisited    bool   `yaml:"unvisited"`
	Blocked      bool   `yaml:"blocked"`

	Report ReportConfig `yaml:"report"`

	LogLevel string `yaml:"logLevel"`
}

// DefaultConfig returns the config used when no file is given. Generator
// host and port default from ALTWALKER_GRAPHWALKER_HOST / _PORT.
func DefaultConfig() Config {
	cfg := Config{Executor: ExecutorHTTP}
	cfg.Generator.Host = os.Getenv("ALTWALKER_GRAPHWALKER_HOST")
	if port := os.Getenv("ALTWALKER_GRAPHWALKER_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			cfg.Generator.Port = n
		}
	}
	cfg.Generator.LogLevel = os.Getenv("GRAPHWALKER_LOG_LEVEL")
	return cfg
}

// LoadConfigFile reads and strictly decodes a run-config file. Unknown keys
// and trailing YAML documents are errors.
func LoadConfigFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config file %s: %w", path, err)
	}
	if err := dec.Decode(new(struct{})); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config file %s: trailing document", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configs the runner cannot act on.
func (c Config) Validate() error {
	switch c.Executor {
	case "", ExecutorHTTP, ExecutorDotnet, ExecutorNoop:
	default:
		return fmt.Errorf("unknown executor type %q", c.Executor)
	}
	if c.Executor == ExecutorDotnet && c.Tests == "" {
		return errors.New("the dotnet executor needs a tests path")
	}
	for _, m := range c.Models {
		if m.Path == "" {
			return errors.New("a model entry is missing its path")
		}
	}
	return nil
}
