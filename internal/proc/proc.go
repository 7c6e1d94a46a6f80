// Package proc supervises long-lived child processes: it spawns them in their
// own process group, captures the tail of their combined output, and provides
// an idempotent kill that takes the whole group down.
package proc

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Options configures Start.
type Options struct {
	// Dir is the working directory for the child. Empty means inherit.
	Dir string
	// Env is appended to the parent environment.
	Env []string
	// TailBytes bounds the retained output; zero means DefaultTailBytes.
	TailBytes int
	// Logger defaults to zerolog.Nop().
	Logger *zerolog.Logger
}

// Process is a running (or exited) supervised child.
type Process struct {
	cmd  *exec.Cmd
	ring *Ring
	log  zerolog.Logger

	done chan struct{}

	killOnce sync.Once
	killErr  error

	mu      sync.Mutex
	waitErr error
}

// Start launches argv in its own process group with stdout and stderr both
// wired into a bounded ring buffer. The returned Process is already being
// waited on; observe exit via Done or Wait.
func Start(argv []string, opts Options) (*Process, error) {
	if len(argv) == 0 {
		return nil, errors.New("proc: empty command")
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	// Own process group so Kill can take down the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = 3 * time.Second

	ring := NewRing(opts.TailBytes)
	cmd.Stdout = ring
	cmd.Stderr = ring

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("proc: start %q: %w", argv[0], err)
	}
	log.Debug().Str("command", argv[0]).Int("pid", cmd.Process.Pid).Msg("child started")

	p := &Process{
		cmd:  cmd,
		ring: ring,
		log:  log,
		done: make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(p.done)
		log.Debug().Int("pid", cmd.Process.Pid).Int("exit_code", p.ExitCode()).Msg("child exited")
	}()
	return p, nil
}

// PID returns the child's process id.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// Done is closed once the child has exited and its output is fully drained.
func (p *Process) Done() <-chan struct{} { return p.done }

// Alive reports whether the child has not yet exited.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// ExitCode returns the child's exit code, or -1 if it is still running or was
// terminated by a signal.
func (p *Process) ExitCode() int {
	select {
	case <-p.done:
	default:
		return -1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(p.waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Tail returns the retained tail of the child's combined output.
func (p *Process) Tail() string { return p.ring.Tail() }

// Kill terminates the child's entire process group with SIGKILL and waits for
// the exit to be observed. It is idempotent and safe to call from multiple
// goroutines; killing an already-exited child is not an error.
func (p *Process) Kill() error {
	p.killOnce.Do(func() {
		if p.Alive() {
			err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
			if err != nil && !errors.Is(err, syscall.ESRCH) {
				p.killErr = fmt.Errorf("proc: kill pgid %d: %w", p.cmd.Process.Pid, err)
			}
		}
		select {
		case <-p.done:
		case <-time.After(5 * time.Second):
			if p.killErr == nil {
				p.killErr = fmt.Errorf("proc: pid %d did not exit after SIGKILL", p.cmd.Process.Pid)
			}
		}
	})
	return p.killErr
}
