package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/altwalker/gowalker/internal/code"
	"github.com/altwalker/gowalker/internal/planner"
	"github.com/altwalker/gowalker/internal/report"
	"github.com/altwalker/gowalker/internal/run"
)

// cliOptions collects everything the subcommands parse from argv.
type cliOptions struct {
	cfg run.Config

	positional []string

	outputFile  string // offline -f
	language    string
	suggestions bool

	logLevel string
	logFile  string
}

// parseArgs walks argv in declaration order. withStops controls whether -m
// consumes a stop-condition argument after the model path.
func parseArgs(args []string, withStops bool, stderr io.Writer) (cliOptions, bool) {
	opts := cliOptions{cfg: run.DefaultConfig()}

	// The config file is the base layer; flags override it regardless of
	// their position, so it loads first.
	for i := 0; i < len(args); i++ {
		if args[i] != "--config" {
			continue
		}
		if i+1 >= len(args) {
			fmt.Fprintln(stderr, "--config requires a value")
			return opts, false
		}
		cfg, err := run.LoadConfigFile(args[i+1])
		if err != nil {
			fmt.Fprintln(stderr, err)
			return opts, false
		}
		opts.cfg = cfg
	}

	value := func(i *int, name string) (string, bool) {
		*i++
		if *i >= len(args) {
			fmt.Fprintf(stderr, "%s requires a value\n", name)
			return "", false
		}
		return args[*i], true
	}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			i++ // loaded above
		case "-m", "--model":
			path, ok := value(&i, "-m")
			if !ok {
				return opts, false
			}
			m := run.Model{Path: path}
			if withStops {
				stop, ok := value(&i, "-m")
				if !ok {
					return opts, false
				}
				m.StopCondition = stop
			}
			opts.cfg.Models = append(opts.cfg.Models, m)
		case "-x", "--executor":
			v, ok := value(&i, "-x")
			if !ok {
				return opts, false
			}
			opts.cfg.Executor = v
		case "--url":
			v, ok := value(&i, "--url")
			if !ok {
				return opts, false
			}
			opts.cfg.URL = v
		case "--gw-host":
			v, ok := value(&i, "--gw-host")
			if !ok {
				return opts, false
			}
			opts.cfg.Generator.Host = v
		case "--gw-port":
			v, ok := value(&i, "--gw-port")
			if !ok {
				return opts, false
			}
			port, err := strconv.Atoi(v)
			if err != nil {
				fmt.Fprintf(stderr, "--gw-port %q is not a number\n", v)
				return opts, false
			}
			opts.cfg.Generator.Port = port
		case "--start-element":
			v, ok := value(&i, "--start-element")
			if !ok {
				return opts, false
			}
			opts.cfg.StartElement = v
		case "--verbose":
			opts.cfg.Verbose = true
		case "--unvisited":
			opts.cfg.Unvisited = true
		case "--blocked":
			opts.cfg.Blocked = true
		case "-f", "--output-file":
			v, ok := value(&i, "-f")
			if !ok {
				return opts, false
			}
			opts.outputFile = v
		case "-l", "--language":
			v, ok := value(&i, "-l")
			if !ok {
				return opts, false
			}
			opts.language = v
		case "--suggestions":
			opts.suggestions = true
		case "--report-file":
			v, ok := value(&i, "--report-file")
			if !ok {
				return opts, false
			}
			opts.cfg.Report.File = v
		case "--report-path":
			opts.cfg.Report.Path = true
		case "--report-path-file":
			v, ok := value(&i, "--report-path-file")
			if !ok {
				return opts, false
			}
			opts.cfg.Report.PathFile = v
		case "--report-xml-file":
			v, ok := value(&i, "--report-xml-file")
			if !ok {
				return opts, false
			}
			opts.cfg.Report.XMLFile = v
		case "--log-level":
			v, ok := value(&i, "--log-level")
			if !ok {
				return opts, false
			}
			opts.logLevel = v
		case "--log-file":
			v, ok := value(&i, "--log-file")
			if !ok {
				return opts, false
			}
			opts.logFile = v
		default:
			if len(args[i]) > 0 && args[i][0] == '-' {
				fmt.Fprintf(stderr, "unknown flag: %s\n", args[i])
				return opts, false
			}
			opts.positional = append(opts.positional, args[i])
		}
	}
	return opts, true
}

// buildReporting assembles the reporters a run writes to. The returned Path
// reporter is nil unless a path output was requested.
func buildReporting(opts cliOptions, stdout io.Writer) (*report.Reporting, *report.Path, error) {
	reporting := report.NewReporting()
	if err := reporting.Register("print", report.NewPrint(stdout)); err != nil {
		return nil, nil, err
	}
	if opts.cfg.Report.File != "" {
		if err := reporting.Register("file", report.NewFile(opts.cfg.Report.File)); err != nil {
			return nil, nil, err
		}
	}
	var pathReporter *report.Path
	if opts.cfg.Report.Path || opts.cfg.Report.PathFile != "" {
		pathReporter = report.NewPath()
		if err := reporting.Register("path", pathReporter); err != nil {
			return nil, nil, err
		}
	}
	if opts.cfg.Report.XMLFile != "" {
		if err := reporting.Register("junit", report.NewJUnit(opts.cfg.Report.XMLFile, "")); err != nil {
			return nil, nil, err
		}
	}
	return reporting, pathReporter, nil
}

// writePathReport saves or prints the walked path after a run.
func writePathReport(opts cliOptions, pathReporter *report.Path, stdout, stderr io.Writer) {
	if pathReporter == nil {
		return
	}
	steps := pathReporter.Path()
	if opts.cfg.Report.PathFile != "" {
		if err := planner.SavePath(opts.cfg.Report.PathFile, steps); err != nil {
			fmt.Fprintln(stderr, err)
		}
		return
	}
	raw, err := json.MarshalIndent(steps, "", "  ")
	if err != nil {
		fmt.Fprintln(stderr, err)
		return
	}
	fmt.Fprintln(stdout, string(raw))
}

func runCheck(args []string, stdout, stderr io.Writer) int {
	opts, ok := parseArgs(args, true, stderr)
	if !ok {
		return exitUsage
	}
	if len(opts.cfg.Models) == 0 {
		usage(stderr)
		return exitUsage
	}
	logger, closeLog, err := newLogger(opts.logLevel, opts.logFile, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	defer closeLog()

	ctx, cancel := runContext()
	defer cancel()

	r := &run.Run{Config: opts.cfg, Logger: &logger}
	out, err := r.Check(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitCodeFor(err)
	}
	fmt.Fprint(stdout, out)
	return exitPassed
}

func runVerify(args []string, stdout, stderr io.Writer) int {
	opts, ok := parseArgs(args, false, stderr)
	if !ok {
		return exitUsage
	}
	if len(opts.positional) != 1 || len(opts.cfg.Models) == 0 {
		usage(stderr)
		return exitUsage
	}
	opts.cfg.Tests = opts.positional[0]

	logger, closeLog, err := newLogger(opts.logLevel, opts.logFile, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	defer closeLog()

	ctx, cancel := runContext()
	defer cancel()

	r := &run.Run{Config: opts.cfg, Logger: &logger}
	misses, err := r.Verify(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitCodeFor(err)
	}
	fmt.Fprint(stdout, code.Format(misses))
	if len(misses) == 0 {
		return exitPassed
	}
	if opts.suggestions {
		language := opts.language
		if language == "" && opts.cfg.Executor == run.ExecutorDotnet {
			language = "csharp"
		}
		if language == "" {
			language = "python"
		}
		text, err := code.Suggestions(language, misses)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitUsage
		}
		fmt.Fprint(stdout, text)
	}
	return exitFailed
}

func runOnline(args []string, stdout, stderr io.Writer) int {
	opts, ok := parseArgs(args, true, stderr)
	if !ok {
		return exitUsage
	}
	if len(opts.positional) == 1 {
		opts.cfg.Tests = opts.positional[0]
	}
	if opts.cfg.Tests == "" || len(opts.cfg.Models) == 0 {
		usage(stderr)
		return exitUsage
	}

	logger, closeLog, err := newLogger(opts.logLevel, opts.logFile, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	defer closeLog()

	reporting, pathReporter, err := buildReporting(opts, stdout)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitInternal
	}

	ctx, cancel := runContext()
	defer cancel()

	r := &run.Run{Config: opts.cfg, Reporter: reporting, Logger: &logger}
	result, err := r.Online(ctx)
	writePathReport(opts, pathReporter, stdout, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitCodeFor(err)
	}
	if result.Passed && !result.Interrupted {
		return exitPassed
	}
	return exitFailed
}

func runOffline(args []string, stdout, stderr io.Writer) int {
	opts, ok := parseArgs(args, true, stderr)
	if !ok {
		return exitUsage
	}
	if len(opts.cfg.Models) == 0 {
		usage(stderr)
		return exitUsage
	}
	if err := run.ValidateOfflineStopConditions(opts.cfg.Models); err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	logger, closeLog, err := newLogger(opts.logLevel, opts.logFile, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	defer closeLog()

	ctx, cancel := runContext()
	defer cancel()

	r := &run.Run{Config: opts.cfg, Logger: &logger}
	steps, err := r.Offline(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitCodeFor(err)
	}
	if opts.outputFile != "" {
		if err := planner.SavePath(opts.outputFile, steps); err != nil {
			fmt.Fprintln(stderr, err)
			return exitInternal
		}
		return exitPassed
	}
	raw, err := json.MarshalIndent(steps, "", "  ")
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitInternal
	}
	fmt.Fprintln(stdout, string(raw))
	return exitPassed
}

func runWalk(args []string, stdout, stderr io.Writer) int {
	opts, ok := parseArgs(args, false, stderr)
	if !ok {
		return exitUsage
	}
	if len(opts.positional) != 2 {
		usage(stderr)
		return exitUsage
	}
	opts.cfg.Tests = opts.positional[0]
	stepsPath := opts.positional[1]

	logger, closeLog, err := newLogger(opts.logLevel, opts.logFile, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	defer closeLog()

	reporting, pathReporter, err := buildReporting(opts, stdout)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitInternal
	}

	ctx, cancel := runContext()
	defer cancel()

	r := &run.Run{Config: opts.cfg, Reporter: reporting, Logger: &logger}
	result, err := r.Walk(ctx, stepsPath)
	writePathReport(opts, pathReporter, stdout, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitCodeFor(err)
	}
	if result.Passed && !result.Interrupted {
		return exitPassed
	}
	return exitFailed
}
