package graphwalker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/altwalker/gowalker/internal/planner"
)

// DefaultExecutable is the generator CLI looked up on PATH.
const DefaultExecutable = "gw"

// CommandOptions configures one generator subcommand invocation.
type CommandOptions struct {
	// Executable overrides the generator binary; empty means DefaultExecutable.
	Executable string

	// Models pairs each model path with its stop condition (check, offline).
	Models []ModelStop
	// ModelPath is a single bare model path (methods, convert).
	ModelPath string

	StartElement string
	Verbose      bool
	Unvisited    bool
	Blocked      bool

	// LogLevel sets the generator's --debug flag; empty leaves it off.
	LogLevel string
}

// ModelStop pairs a model file with the stop condition to run it under.
type ModelStop struct {
	Path          string
	StopCondition string
}

// Check runs the generator's model analysis and returns its report text.
func Check(ctx context.Context, opts CommandOptions) (string, error) {
	return runCommand(ctx, buildCommand("check", opts))
}

// MethodNames asks the generator for the element names of a model file. Used
// for formats the runner does not parse itself.
func MethodNames(ctx context.Context, opts CommandOptions) ([]string, error) {
	out, err := runCommand(ctx, buildCommand("methods", opts))
	if err != nil {
		return nil, err
	}
	out = strings.Trim(out, "\n")
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// Offline generates a complete path up front, one JSON step per output line.
// The command always runs verbose so steps carry their model name; the
// Verbose option controls whether data and properties are kept.
func Offline(ctx context.Context, opts CommandOptions) ([]planner.Step, error) {
	verbose := opts.Verbose
	opts.Verbose = true
	out, err := runCommand(ctx, buildCommand("offline", opts))
	if err != nil {
		return nil, err
	}
	var steps []planner.Step
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		step, err := normalizeStepLine([]byte(line), verbose)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// ConvertModel translates a model file (e.g. GraphML) to the JSON format via
// the generator's convert subcommand and returns the converted document.
func ConvertModel(ctx context.Context, opts CommandOptions) ([]byte, error) {
	argv := commandPrefix(opts)
	argv = append(argv, "convert", "--input", opts.ModelPath, "--format", "json")
	out, err := runArgv(ctx, argv)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

func buildCommand(name string, opts CommandOptions) []string {
	argv := commandPrefix(opts)
	argv = append(argv, name)

	if opts.ModelPath != "" {
		argv = append(argv, "--model", opts.ModelPath)
	}
	for _, m := range opts.Models {
		argv = append(argv, "--model", m.Path, m.StopCondition)
	}
	if opts.StartElement != "" {
		argv = append(argv, "--start-element", opts.StartElement)
	}
	if opts.Verbose {
		argv = append(argv, "--verbose")
	}
	if opts.Unvisited {
		argv = append(argv, "--unvisited")
	}
	argv = append(argv, "--blocked", strconv.FormatBool(opts.Blocked))
	return argv
}

func commandPrefix(opts CommandOptions) []string {
	executable := opts.Executable
	if executable == "" {
		executable = DefaultExecutable
	}
	argv := []string{executable}
	if opts.LogLevel != "" {
		argv = append(argv, "--debug", generatorLogLevel(opts.LogLevel))
	}
	return argv
}

// generatorLogLevel maps a runner log level to the generator's --debug
// vocabulary. Unknown levels silence the generator.
func generatorLogLevel(level string) string {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "NOTSET", "TRACE", "ALL":
		return "ALL"
	case "CRITICAL", "FATAL":
		return "TRACE"
	case "ERROR":
		return "ERROR"
	case "WARNING", "WARN":
		return "WARN"
	case "INFO":
		return "INFO"
	case "DEBUG":
		return "DEBUG"
	default:
		return "OFF"
	}
}

func runCommand(ctx context.Context, argv []string) (string, error) {
	return runArgv(ctx, argv)
}

// runArgv executes one short-lived generator command. Anything on stderr is
// treated as a failure, matching the generator's CLI conventions.
func runArgv(ctx context.Context, argv []string) (string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 3 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		return "", &Error{Message: msg, ExitCode: exitCode}
	}
	if err != nil {
		return "", &Error{
			Message:  fmt.Sprintf("command %q failed: %v", strings.Join(argv, " "), err),
			ExitCode: exitCode,
			Tail:     strings.TrimSpace(stdout.String()),
		}
	}
	return stdout.String(), nil
}
