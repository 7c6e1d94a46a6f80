package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/altwalker/gowalker/internal/executor"
	"github.com/altwalker/gowalker/internal/graphwalker"
	"github.com/altwalker/gowalker/internal/model"
)

// Exit codes are a stable contract for CI callers.
const (
	exitPassed    = 0
	exitFailed    = 1
	exitUsage     = 2
	exitGenerator = 3
	exitInternal  = 4
)

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdout, os.Stderr))
}

func realMain(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return exitUsage
	}
	switch args[0] {
	case "check":
		return runCheck(args[1:], stdout, stderr)
	case "verify":
		return runVerify(args[1:], stdout, stderr)
	case "online":
		return runOnline(args[1:], stdout, stderr)
	case "offline":
		return runOffline(args[1:], stdout, stderr)
	case "walk":
		return runWalk(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[0])
		usage(stderr)
		return exitUsage
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  gowalker check -m <model> <stop-condition> ... [--blocked]")
	fmt.Fprintln(w, "  gowalker verify <tests> -m <model> ... [-x http|dotnet|noop] [--url <url>] [--suggestions [-l <language>]]")
	fmt.Fprintln(w, "  gowalker online <tests> -m <model> <stop-condition> ... [-x http|dotnet|noop] [--url <url>]")
	fmt.Fprintln(w, "                  [--gw-host <host>] [--gw-port <port>] [--start-element <name>]")
	fmt.Fprintln(w, "                  [--verbose] [--unvisited] [--blocked] [--config <run.yaml>]")
	fmt.Fprintln(w, "                  [--report-file <file>] [--report-path] [--report-path-file <file>] [--report-xml-file <file>]")
	fmt.Fprintln(w, "  gowalker offline -m <model> <stop-condition> ... [-f <file>] [--start-element <name>]")
	fmt.Fprintln(w, "                  [--verbose] [--unvisited] [--blocked]")
	fmt.Fprintln(w, "  gowalker walk <tests> <steps.json> [-x http|dotnet|noop] [--url <url>] [report flags]")
	fmt.Fprintln(w, "common: [--log-level debug|info|warn|error] [--log-file <file>]")
}

// exitCodeFor maps an error to the exit-code contract.
func exitCodeFor(err error) int {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return exitInternal
	}
	if graphwalker.IsGeneratorError(err) {
		return exitGenerator
	}
	var execErr *executor.Error
	if errors.As(err, &execErr) {
		return exitInternal
	}
	return exitInternal
}

// newLogger builds the CLI logger: console on stderr, or a plain file when
// --log-file is set. Empty level (and ALTWALKER_LOG_LEVEL unset) disables
// logging.
func newLogger(level, file string, stderr io.Writer) (zerolog.Logger, func(), error) {
	cleanup := func() {}
	if level == "" {
		level = os.Getenv("ALTWALKER_LOG_LEVEL")
	}
	if level == "" {
		return zerolog.Nop(), cleanup, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), cleanup, fmt.Errorf("unknown log level %q", level)
	}

	var w io.Writer = zerolog.ConsoleWriter{Out: stderr}
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), cleanup, fmt.Errorf("open log file: %w", err)
		}
		w = f
		cleanup = func() { f.Close() }
	}
	logger := zerolog.New(w).With().Timestamp().Logger().Level(lvl)
	return logger, cleanup, nil
}

// runContext is canceled on the first interrupt; a second interrupt kills
// the process the hard way.
func runContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
