package graphwalker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/altwalker/gowalker/internal/proc"
)

// ServiceOptions configures a locally spawned generator REST service.
type ServiceOptions struct {
	Models []ModelStop

	// Port 0 asks the OS for a free port; Port reports the one chosen.
	Port int

	StartElement string
	Unvisited    bool
	Blocked      bool

	// LogLevel sets the generator's --debug flag (see generatorLogLevel).
	LogLevel string

	// WaitTimeout bounds the health wait; zero means 60s.
	WaitTimeout time.Duration

	// Executable overrides the generator binary; empty means DefaultExecutable.
	Executable string
	// HealthURL overrides the polled endpoint. Tests use this to point the
	// wait loop at a stub server.
	HealthURL string

	Logger *zerolog.Logger
}

// Service is a running generator REST service owned by the runner. The
// service is always started verbose so steps carry their model name.
type Service struct {
	port int
	proc *proc.Process
	log  zerolog.Logger
}

// StartService spawns the generator in online RESTFUL mode and waits until
// its REST surface answers or the wait deadline passes. On any failure the
// child is killed before returning.
func StartService(ctx context.Context, opts ServiceOptions) (*Service, error) {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	port := opts.Port
	if port == 0 {
		var err error
		port, err = freePort()
		if err != nil {
			return nil, &Error{Message: "no free port: " + err.Error(), ExitCode: -1}
		}
	}

	argv := buildCommand("online", CommandOptions{
		Executable:   opts.Executable,
		Models:       opts.Models,
		StartElement: opts.StartElement,
		Verbose:      true,
		Unvisited:    opts.Unvisited,
		Blocked:      opts.Blocked,
		LogLevel:     opts.LogLevel,
	})
	argv = append(argv, "--port", strconv.Itoa(port), "--service", "RESTFUL")

	child, err := proc.Start(argv, proc.Options{Logger: &log})
	if err != nil {
		return nil, &Error{Message: err.Error(), ExitCode: -1}
	}
	log.Debug().Int("port", port).Int("pid", child.PID()).Msg("generator service starting")

	s := &Service{port: port, proc: child, log: log}
	if err := s.waitHealthy(ctx, opts); err != nil {
		_ = s.Close()
		return nil, err
	}
	log.Debug().Int("port", port).Msg("generator service ready")
	return s, nil
}

// waitHealthy polls the REST surface until it returns a well-formed JSON
// body. A child exit during the wait is reported with its output tail.
func (s *Service) waitHealthy(ctx context.Context, opts ServiceOptions) error {
	timeout := opts.WaitTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	healthURL := opts.HealthURL
	if healthURL == "" {
		healthURL = fmt.Sprintf("http://127.0.0.1:%d/graphwalker/hasNext", s.port)
	}
	client := &http.Client{Timeout: time.Second}
	deadline := time.Now().Add(timeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.proc.Done():
			return s.startError()
		default:
		}
		if time.Now().After(deadline) {
			return &Error{
				Message:  fmt.Sprintf("service on port %d did not come up within %s", s.port, timeout),
				ExitCode: -1,
				Tail:     s.Tail(),
			}
		}
		if resp, err := client.Get(healthURL); err == nil {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr == nil && json.Valid(body) {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func (s *Service) startError() error {
	tail := s.Tail()
	msg := extractErrorMessage(tail)
	if msg == "" {
		msg = fmt.Sprintf("could not start the service on port %d", s.port)
	} else {
		msg = fmt.Sprintf("could not start the service on port %d: %s", s.port, msg)
	}
	return &Error{Message: msg, ExitCode: s.ExitCode(), Tail: tail}
}

// Port returns the port the service listens on.
func (s *Service) Port() int { return s.port }

// Alive reports whether the service process is still running.
func (s *Service) Alive() bool { return s.proc.Alive() }

// ExitCode returns the service's exit code, -1 while running.
func (s *Service) ExitCode() int { return s.proc.ExitCode() }

// Tail returns the retained tail of the service's output.
func (s *Service) Tail() string { return s.proc.Tail() }

// Close kills the service process group. Idempotent.
func (s *Service) Close() error {
	s.log.Debug().Int("port", s.port).Msg("killing generator service")
	return s.proc.Kill()
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
