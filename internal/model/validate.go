package model

import (
	"fmt"
	"strings"
	"unicode"
)

type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Diagnostic is one validation finding, attributable to a model or element.
type Diagnostic struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	File     string   `json:"file,omitempty"`
	ModelID  string   `json:"model_id,omitempty"`
	Element  string   `json:"element_id,omitempty"`
}

// ValidationError aggregates diagnostics from schema or semantic validation.
type ValidationError struct {
	Diagnostics []Diagnostic
}

func (e *ValidationError) Error() string {
	if len(e.Diagnostics) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(e.Diagnostics))
	for _, d := range e.Diagnostics {
		msgs = append(msgs, d.Rule+": "+d.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Validate runs every semantic rule against the suite and returns the
// findings in stable order (model declaration order, vertices before edges).
func Validate(s *Suite) []Diagnostic {
	var diags []Diagnostic
	if s == nil || len(s.Models) == 0 {
		return []Diagnostic{{
			Rule:     "empty_model_set",
			Severity: SeverityError,
			Message:  "model set contains no models",
		}}
	}
	diags = append(diags, lintUniqueIDs(s)...)
	diags = append(diags, lintNames(s)...)
	diags = append(diags, lintEdgeEndpoints(s)...)
	diags = append(diags, lintStartElement(s)...)
	diags = append(diags, lintActions(s)...)
	return diags
}

// ValidateOrError returns a *ValidationError when any rule reported an
// error-severity finding.
func ValidateOrError(s *Suite) error {
	diags := Validate(s)
	var errs []Diagnostic
	for _, d := range diags {
		if d.Severity == SeverityError {
			errs = append(errs, d)
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Diagnostics: errs}
	}
	return nil
}

func lintUniqueIDs(s *Suite) []Diagnostic {
	var diags []Diagnostic
	seen := map[string]bool{}
	report := func(id string, modelID string) {
		if id == "" {
			return
		}
		if seen[id] {
			diags = append(diags, Diagnostic{
				Rule:     "unique_ids",
				Severity: SeverityError,
				Message:  fmt.Sprintf("duplicate id %q", id),
				ModelID:  modelID,
				Element:  id,
			})
			return
		}
		seen[id] = true
	}
	for _, m := range s.Models {
		report(m.ID, m.ID)
		for _, v := range m.Vertices {
			report(v.ID, m.ID)
		}
		for _, e := range m.Edges {
			report(e.ID, m.ID)
		}
	}
	return diags
}

func lintNames(s *Suite) []Diagnostic {
	var diags []Diagnostic
	report := func(kind, name, modelID, elementID string) {
		if !IsIdentifier(name) {
			diags = append(diags, Diagnostic{
				Rule:     "name_identifier",
				Severity: SeverityError,
				Message:  fmt.Sprintf("invalid %s name: %q is not a valid identifier", kind, name),
				ModelID:  modelID,
				Element:  elementID,
			})
			return
		}
		if IsReservedWord(name) {
			diags = append(diags, Diagnostic{
				Rule:     "name_reserved",
				Severity: SeverityError,
				Message:  fmt.Sprintf("invalid %s name: %q is a reserved word", kind, name),
				ModelID:  modelID,
				Element:  elementID,
			})
		}
	}
	for _, m := range s.Models {
		// Model names are class names and may not be empty.
		report("model", m.Name, m.ID, m.ID)
		for _, v := range m.Vertices {
			if v.Name == "" {
				continue // anonymous vertex
			}
			report("vertex", v.Name, m.ID, v.ID)
		}
		for _, e := range m.Edges {
			if e.Name == "" {
				continue // unnamed edge
			}
			report("edge", e.Name, m.ID, e.ID)
		}
	}
	return diags
}

func lintEdgeEndpoints(s *Suite) []Diagnostic {
	var diags []Diagnostic
	for _, m := range s.Models {
		vertices := map[string]bool{}
		for _, v := range m.Vertices {
			vertices[v.ID] = true
		}
		for _, e := range m.Edges {
			if !vertices[e.SourceVertexID] {
				diags = append(diags, Diagnostic{
					Rule:     "edge_endpoints",
					Severity: SeverityError,
					Message:  fmt.Sprintf("edge references missing source vertex %q", e.SourceVertexID),
					ModelID:  m.ID,
					Element:  e.ID,
				})
			}
			if !vertices[e.TargetVertexID] {
				diags = append(diags, Diagnostic{
					Rule:     "edge_endpoints",
					Severity: SeverityError,
					Message:  fmt.Sprintf("edge references missing target vertex %q", e.TargetVertexID),
					ModelID:  m.ID,
					Element:  e.ID,
				})
			}
		}
	}
	return diags
}

func lintStartElement(s *Suite) []Diagnostic {
	var diags []Diagnostic
	for _, m := range s.Models {
		if m.StartElementID == "" {
			continue
		}
		found := false
		for _, v := range m.Vertices {
			if v.ID == m.StartElementID {
				found = true
				break
			}
		}
		if !found {
			for _, e := range m.Edges {
				if e.ID == m.StartElementID {
					found = true
					break
				}
			}
		}
		if !found {
			diags = append(diags, Diagnostic{
				Rule:     "start_element_exists",
				Severity: SeverityError,
				Message:  fmt.Sprintf("startElementId %q does not exist in the model", m.StartElementID),
				ModelID:  m.ID,
			})
		}
	}
	return diags
}

func lintActions(s *Suite) []Diagnostic {
	var diags []Diagnostic
	report := func(action, modelID, elementID string) {
		if !strings.HasSuffix(strings.TrimSpace(action), ";") {
			diags = append(diags, Diagnostic{
				Rule:     "action_semicolon",
				Severity: SeverityError,
				Message:  fmt.Sprintf("action %q must end with a semicolon", action),
				ModelID:  modelID,
				Element:  elementID,
			})
		}
	}
	for _, m := range s.Models {
		for _, a := range m.Actions {
			report(a, m.ID, m.ID)
		}
		for _, e := range m.Edges {
			for _, a := range e.Actions {
				report(a, m.ID, e.ID)
			}
		}
	}
	return diags
}

// IsIdentifier reports whether name is usable as a method identifier: a
// letter or underscore followed by letters, digits, or underscores.
func IsIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

// IsReservedWord reports whether the lower-cased name collides with a
// reserved word of any supported test language.
func IsReservedWord(name string) bool {
	return reservedWords[strings.ToLower(name)]
}

// Union of Python and C# keywords, compared case-insensitively.
var reservedWords = func() map[string]bool {
	words := []string{
		// Python
		"false", "none", "true", "and", "as", "assert", "async", "await",
		"break", "class", "continue", "def", "del", "elif", "else", "except",
		"finally", "for", "from", "global", "if", "import", "in", "is",
		"lambda", "nonlocal", "not", "or", "pass", "raise", "return", "try",
		"while", "with", "yield",
		// C#
		"abstract", "add", "alias", "ascending", "base", "bool", "by", "byte",
		"case", "catch", "char", "checked", "const", "decimal", "default",
		"delegate", "descending", "do", "double", "dynamic", "enum", "equals",
		"event", "explicit", "extern", "fixed", "float", "foreach", "get",
		"goto", "group", "implicit", "int", "interface", "internal", "into",
		"join", "let", "lock", "long", "nameof", "namespace", "new", "null",
		"object", "on", "operator", "orderby", "out", "override", "params",
		"partial", "private", "protected", "public", "readonly", "ref",
		"remove", "sbyte", "sealed", "select", "set", "short", "static",
		"string", "struct", "switch", "this", "throw", "typeof", "uint",
		"ulong", "unchecked", "unsafe", "ushort", "using", "value", "var",
		"virtual", "void", "volatile", "when", "where",
	}
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}()
