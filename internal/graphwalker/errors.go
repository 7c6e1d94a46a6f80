package graphwalker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Error reports a generator failure: a crashed or unstartable process, a
// non-200 response, or a failure envelope. When the process exited the exit
// code and the tail of its output are attached for diagnosis.
type Error struct {
	Message  string
	ExitCode int // -1 when unknown or still running
	Tail     string
}

func (e *Error) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "generator failed"
	}
	if e.ExitCode >= 0 {
		return fmt.Sprintf("graphwalker: %s (exit code %d)", msg, e.ExitCode)
	}
	return "graphwalker: " + msg
}

// IsGeneratorError reports whether err carries a generator failure.
func IsGeneratorError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

var errorLinePattern = regexp.MustCompile(`An error occurred when running command:.*[\r\n]+([^\r\n]+)`)

// extractErrorMessage pulls the human-readable failure line out of the
// generator's log output, if one is present.
func extractErrorMessage(logs string) string {
	m := errorLinePattern.FindStringSubmatch(logs)
	if len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return ""
}
