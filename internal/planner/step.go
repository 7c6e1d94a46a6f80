// Package planner supplies the walker with steps: either live from the
// generator's REST service (online) or replayed from a recorded path
// (offline).
package planner

// Step is one element of a generated path. Fixture steps carry no model name.
type Step struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	ModelName string `json:"modelName,omitempty"`

	// Populated only in verbose mode.
	Data       map[string]string `json:"data,omitempty"`
	Properties map[string]any    `json:"properties,omitempty"`

	Actions []string `json:"actions,omitempty"`

	// Populated only in unvisited mode.
	NumberOfElements          int   `json:"numberOfElements,omitempty"`
	NumberOfUnvisitedElements int   `json:"numberOfUnvisitedElements,omitempty"`
	UnvisitedElements         []any `json:"unvisitedElements,omitempty"`
}

// IsFixture reports whether the step is a run-level fixture rather than a
// model element.
func (s Step) IsFixture() bool { return s.ModelName == "" }

// Statistics is the generator's session statistics, passed through opaquely.
type Statistics map[string]any
