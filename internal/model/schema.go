package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// modelFileSchema is the structural contract for a model file. Unknown keys
// at the top level are rejected; unknown keys on individual elements are
// accepted so files written for newer generator releases still load.
const modelFileSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "required": ["models"],
  "properties": {
    "name": {"type": "string"},
    "models": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "vertices", "edges"],
        "properties": {
          "id": {"type": "string"},
          "name": {"type": "string"},
          "generator": {"type": "string"},
          "startElementId": {"type": "string"},
          "actions": {"type": "array", "items": {"type": "string"}},
          "vertices": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["id", "name"],
              "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "sharedState": {"type": "string"},
                "properties": {"type": "object"},
                "requirements": {"type": "array", "items": {"type": "string"}}
              }
            }
          },
          "edges": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["id", "sourceVertexId", "targetVertexId"],
              "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "sourceVertexId": {"type": "string"},
                "targetVertexId": {"type": "string"},
                "guard": {"type": "string"},
                "actions": {"type": "array", "items": {"type": "string"}},
                "weight": {"type": "number"},
                "properties": {"type": "object"}
              }
            }
          }
        }
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("model-file.json", modelFileSchema)

// ValidateSchema checks raw model-file bytes against the structural schema.
// It returns a *ValidationError listing every violation, or nil.
func ValidateSchema(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &ValidationError{Diagnostics: []Diagnostic{{
			Rule:     "json_syntax",
			Severity: SeverityError,
			Message:  fmt.Sprintf("invalid json file: %v", err),
		}}}
	}
	err := compiledSchema.Validate(doc)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return &ValidationError{Diagnostics: []Diagnostic{{
			Rule:     "schema",
			Severity: SeverityError,
			Message:  err.Error(),
		}}}
	}
	var diags []Diagnostic
	for _, leaf := range leafCauses(verr) {
		diags = append(diags, Diagnostic{
			Rule:     "schema",
			Severity: SeverityError,
			Message:  fmt.Sprintf("%s: %s", locationOrRoot(leaf.InstanceLocation), leaf.Message),
		})
	}
	return &ValidationError{Diagnostics: diags}
}

// leafCauses flattens the cause tree into the most specific violations.
func leafCauses(err *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(err.Causes) == 0 {
		return []*jsonschema.ValidationError{err}
	}
	var out []*jsonschema.ValidationError
	for _, c := range err.Causes {
		out = append(out, leafCauses(c)...)
	}
	return out
}

func locationOrRoot(loc string) string {
	if strings.TrimSpace(loc) == "" {
		return "/"
	}
	return loc
}
