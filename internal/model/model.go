// Package model holds the test-model data types and their loading and
// validation. A model file is a JSON document with a "models" list; the
// effective model set of a run is the concatenation of every file supplied
// on the command line.
package model

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/zeebo/blake3"
)

// Suite is a named collection of models, the unit the generator loads.
type Suite struct {
	Name   string  `json:"name,omitempty"`
	Models []Model `json:"models"`
}

type Model struct {
	ID             string   `json:"id,omitempty"`
	Name           string   `json:"name"`
	Generator      string   `json:"generator,omitempty"`
	StartElementID string   `json:"startElementId,omitempty"`
	Actions        []string `json:"actions,omitempty"`
	Vertices       []Vertex `json:"vertices"`
	Edges          []Edge   `json:"edges"`
}

type Vertex struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	SharedState  string         `json:"sharedState,omitempty"`
	Properties   map[string]any `json:"properties,omitempty"`
	Requirements []string       `json:"requirements,omitempty"`
}

type Edge struct {
	ID             string         `json:"id"`
	Name           string         `json:"name,omitempty"`
	SourceVertexID string         `json:"sourceVertexId"`
	TargetVertexID string         `json:"targetVertexId"`
	Guard          string         `json:"guard,omitempty"`
	Actions        []string       `json:"actions,omitempty"`
	Weight         float64        `json:"weight,omitempty"`
	Dependency     any            `json:"dependency,omitempty"`
	Properties     map[string]any `json:"properties,omitempty"`
}

// Blocked reports whether the vertex carries the "blocked" property.
func (v Vertex) Blocked() bool { return propBlocked(v.Properties) }

// Blocked reports whether the edge carries the "blocked" property.
func (e Edge) Blocked() bool { return propBlocked(e.Properties) }

func propBlocked(props map[string]any) bool {
	b, _ := props["blocked"].(bool)
	return b
}

// ExpandPaths expands doublestar glob patterns into concrete file paths.
// Patterns are expanded in argument order with each pattern's matches sorted;
// a plain path (no glob metacharacters) is required to exist. Duplicates are
// dropped.
func ExpandPaths(patterns []string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if !strings.ContainsAny(pattern, "*?[{") {
			if _, err := os.Stat(pattern); err != nil {
				return nil, fmt.Errorf("model file %s: %w", pattern, err)
			}
			if !seen[pattern] {
				seen[pattern] = true
				out = append(out, pattern)
			}
			continue
		}
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("model pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("model pattern %q matched no files", pattern)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out, nil
}

// LoadFile reads one model file, rejects structurally invalid documents, and
// decodes it. Unknown keys inside individual elements are preserved by the
// schema but dropped on decode; unknown top-level keys are an error.
func LoadFile(path string) (*Suite, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	return LoadBytes(raw, path)
}

// LoadBytes decodes a model document. The origin names the source in
// diagnostics; it need not be a real path.
func LoadBytes(raw []byte, origin string) (*Suite, error) {
	if err := ValidateSchema(raw); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			for i := range verr.Diagnostics {
				verr.Diagnostics[i].File = origin
			}
		}
		return nil, err
	}
	var suite Suite
	if err := json.Unmarshal(raw, &suite); err != nil {
		return nil, &ValidationError{Diagnostics: []Diagnostic{{
			Rule:     "json_syntax",
			Severity: SeverityError,
			Message:  fmt.Sprintf("invalid json file: %v", err),
			File:     origin,
		}}}
	}
	return &suite, nil
}

// LoadSuite concatenates the models of every given file into one suite. The
// suite name comes from the first file that sets one.
func LoadSuite(paths []string) (*Suite, error) {
	suite := &Suite{}
	for _, path := range paths {
		part, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		suite.Models = append(suite.Models, part.Models...)
		if suite.Name == "" {
			suite.Name = part.Name
		}
	}
	return suite, nil
}

// Fingerprint returns a stable content hash of the suite, recorded in run
// reports and compared on replay to detect a steps file generated from
// different models.
func (s *Suite) Fingerprint() string {
	b, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ModelMethods lists the method names the test code must provide for one
// model: the unique, sorted names of its vertices and edges.
type ModelMethods struct {
	Model   string
	Methods []string
}

// Methods extracts the required methods per model, in model declaration
// order. Anonymous elements are skipped; when blocked is set, elements
// carrying the "blocked" property are skipped too.
func Methods(s *Suite, blocked bool) []ModelMethods {
	var out []ModelMethods
	for _, m := range s.Models {
		set := map[string]bool{}
		for _, v := range m.Vertices {
			if v.Name == "" || (blocked && v.Blocked()) {
				continue
			}
			set[v.Name] = true
		}
		for _, e := range m.Edges {
			if e.Name == "" || (blocked && e.Blocked()) {
				continue
			}
			set[e.Name] = true
		}
		names := make([]string, 0, len(set))
		for name := range set {
			names = append(names, name)
		}
		sort.Strings(names)
		out = append(out, ModelMethods{Model: m.Name, Methods: names})
	}
	return out
}
