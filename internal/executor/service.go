package executor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/altwalker/gowalker/internal/proc"
)

// ServiceOptions configures a spawned executor service process.
type ServiceOptions struct {
	// Command is the full argv to run. Empty means a .NET service built from
	// Path (dotnet run for a project directory, plain dotnet for a compiled
	// artifact).
	Command []string
	// Path is the test project or artifact handed to the default command.
	Path string
	// URL is where the service is told to listen and where the health wait
	// polls.
	URL string

	// WaitTimeout bounds the health wait; zero means 60s.
	WaitTimeout time.Duration

	Logger *zerolog.Logger
}

// Service is an executor service process owned by the runner.
type Service struct {
	url  string
	proc *proc.Process
	log  zerolog.Logger
}

// StartService spawns the service and waits until its URL answers HTTP. On
// any failure the child is killed before returning.
func StartService(ctx context.Context, opts ServiceOptions) (*Service, error) {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	serviceURL := opts.URL
	if serviceURL == "" {
		serviceURL = DefaultURL
	}

	argv := opts.Command
	if len(argv) == 0 {
		argv = dotnetCommand(opts.Path, serviceURL)
	}

	child, err := proc.Start(argv, proc.Options{Logger: &log})
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: err.Error()}
	}
	log.Debug().Strs("command", argv).Int("pid", child.PID()).Msg("executor service starting")

	s := &Service{url: serviceURL, proc: child, log: log}
	if err := s.waitReachable(ctx, opts.WaitTimeout); err != nil {
		_ = s.Close()
		return nil, err
	}
	log.Debug().Str("url", serviceURL).Msg("executor service ready")
	return s, nil
}

// waitReachable polls the service URL until any HTTP response arrives. The
// status code does not matter, reachability does.
func (s *Service) waitReachable(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := &http.Client{Timeout: time.Second}
	deadline := time.Now().Add(timeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.proc.Done():
			return &Error{
				Kind: KindTransport,
				Message: fmt.Sprintf("could not start the executor service on %s (exit code %d)",
					s.url, s.proc.ExitCode()),
				Trace: s.proc.Tail(),
			}
		default:
		}
		if time.Now().After(deadline) {
			return &Error{
				Kind:    KindTransport,
				Message: fmt.Sprintf("executor service on %s did not come up within %s", s.url, timeout),
				Trace:   s.proc.Tail(),
			}
		}
		resp, err := client.Get(s.url)
		if err == nil {
			resp.Body.Close()
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// Alive reports whether the service process is still running.
func (s *Service) Alive() bool { return s.proc.Alive() }

// Tail returns the retained tail of the service's output.
func (s *Service) Tail() string { return s.proc.Tail() }

// Close kills the service process group. Idempotent.
func (s *Service) Close() error {
	s.log.Debug().Str("url", s.url).Msg("killing executor service")
	return s.proc.Kill()
}

func dotnetCommand(path, serviceURL string) []string {
	argv := []string{"dotnet"}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		argv = append(argv, "run", "-p")
	}
	argv = append(argv, path, "--server.urls="+serviceURL)
	return argv
}
