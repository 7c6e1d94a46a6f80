package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/altwalker/gowalker/internal/planner"
)

// Durations below a millisecond are noise in a run log.
const timePrecision = time.Millisecond

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Print writes a human-readable run log to a writer as the run progresses.
type Print struct {
	w     io.Writer
	steps int
}

// NewPrint returns a reporter printing to w.
func NewPrint(w io.Writer) *Print {
	return &Print{w: w}
}

func (p *Print) Start(info RunInfo) {
	fmt.Fprintf(p.w, "Running run %s\n", info.RunID)
	if len(info.Models) > 0 {
		fmt.Fprintf(p.w, "  models: %s\n", strings.Join(info.Models, ", "))
	}
	if info.Expression != "" {
		fmt.Fprintf(p.w, "  expression: %s\n", info.Expression)
	}
	fmt.Fprintln(p.w)
}

func (p *Print) End(result RunResult) {
	fmt.Fprintln(p.w)
	if result.Interrupted {
		fmt.Fprintln(p.w, "Run interrupted.")
	}
	if result.Passed {
		fmt.Fprintf(p.w, "Run passed. (%d steps)\n", p.steps)
	} else {
		fmt.Fprintf(p.w, "Run failed. (%d steps)\n", p.steps)
	}
	printStatistics(p.w, result.Statistics)
}

func (p *Print) StepStart(step planner.Step) {
	fmt.Fprintf(p.w, "[%d] %s\n", p.steps, stepLabel(step))
	p.steps++
}

func (p *Print) StepEnd(step planner.Step, result StepResult) {
	fmt.Fprintf(p.w, "  status: %s (%s)\n", result.Status, result.Duration.Round(timePrecision))
	if output := strings.TrimRight(result.Output, "\n"); output != "" {
		for _, line := range strings.Split(output, "\n") {
			fmt.Fprintf(p.w, "  | %s\n", line)
		}
	}
	if result.Error != nil {
		fmt.Fprintf(p.w, "  error: %s\n", result.Error.Message)
	}
}

func (p *Print) Error(step planner.Step, message, trace string) {
	if step.Name != "" {
		fmt.Fprintf(p.w, "Error in %s: %s\n", stepLabel(step), message)
	} else {
		fmt.Fprintf(p.w, "Error: %s\n", message)
	}
	if trace != "" {
		fmt.Fprintln(p.w, trace)
	}
}

func (p *Print) Report() (any, bool) { return nil, false }

func stepLabel(step planner.Step) string {
	if step.IsFixture() {
		return step.Name
	}
	return step.ModelName + "." + step.Name
}

func printStatistics(w io.Writer, stats planner.Statistics) {
	if len(stats) == 0 {
		return
	}
	fmt.Fprintln(w, "Statistics:")
	for _, key := range sortedKeys(stats) {
		fmt.Fprintf(w, "  %s: %v\n", key, stats[key])
	}
}

// Path collects the executed model steps in order; its report replays as an
// offline path.
type Path struct {
	steps []planner.Step
}

// NewPath returns a reporter recording the walked path.
func NewPath() *Path {
	return &Path{}
}

func (p *Path) Start(info RunInfo)   {}
func (p *Path) End(result RunResult) {}

func (p *Path) StepStart(step planner.Step) {
	// Fixture steps carry no element id and do not replay.
	if step.ID == "" {
		return
	}
	p.steps = append(p.steps, step)
}

func (p *Path) StepEnd(step planner.Step, result StepResult)   {}
func (p *Path) Error(step planner.Step, message, trace string) {}

// Path returns the recorded steps.
func (p *Path) Path() []planner.Step {
	out := make([]planner.Step, len(p.steps))
	copy(out, p.steps)
	return out
}

func (p *Path) Report() (any, bool) {
	return p.Path(), true
}

// File buffers the printed run log and writes it to a file when the run
// ends. The write replaces the file atomically.
type File struct {
	Print
	path string
	buf  strings.Builder
}

// NewFile returns a reporter writing the run log to path at run end.
func NewFile(path string) *File {
	f := &File{path: path}
	f.Print.w = &f.buf
	return f
}

func (f *File) End(result RunResult) {
	f.Print.End(result)
	if err := writeFileAtomic(f.path, []byte(f.buf.String())); err != nil {
		fmt.Fprintf(os.Stderr, "could not write the run log to %s: %v\n", f.path, err)
	}
}

// writeFileAtomic writes data under a temporary name and renames it into
// place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
