package graphwalker

import (
	"encoding/json"

	"github.com/altwalker/gowalker/internal/planner"
)

// normalizeStep flattens a generator step into the step shape the rest of
// the runner uses. The wire shape names the element fields
// currentElementID/currentElementName, wraps data in a list of single-entry
// objects, and wraps each action in an {"Action": …} object. Non-verbose
// clients drop data and properties.
func normalizeStep(fields map[string]json.RawMessage, verbose bool) (planner.Step, error) {
	var step planner.Step

	if raw, ok := fields["currentElementID"]; ok {
		_ = json.Unmarshal(raw, &step.ID)
	} else {
		return planner.Step{}, &Error{Message: "step has no currentElementID", ExitCode: -1}
	}
	if raw, ok := fields["currentElementName"]; ok {
		_ = json.Unmarshal(raw, &step.Name)
	}
	if raw, ok := fields["modelName"]; ok {
		_ = json.Unmarshal(raw, &step.ModelName)
	}

	if verbose {
		if raw, ok := fields["data"]; ok {
			var entries []map[string]json.RawMessage
			if err := json.Unmarshal(raw, &entries); err == nil {
				step.Data = make(map[string]string)
				for _, entry := range entries {
					for k, v := range entry {
						step.Data[k] = rawToString(v)
					}
				}
			}
		}
		if raw, ok := fields["properties"]; ok {
			_ = json.Unmarshal(raw, &step.Properties)
		}
	}

	if raw, ok := fields["actions"]; ok {
		var wrapped []struct {
			Action string `json:"Action"`
		}
		if err := json.Unmarshal(raw, &wrapped); err == nil {
			for _, a := range wrapped {
				step.Actions = append(step.Actions, a.Action)
			}
		}
	}

	if raw, ok := fields["numberOfElements"]; ok {
		_ = json.Unmarshal(raw, &step.NumberOfElements)
	}
	if raw, ok := fields["numberOfUnvisitedElements"]; ok {
		_ = json.Unmarshal(raw, &step.NumberOfUnvisitedElements)
	}
	if raw, ok := fields["unvisitedElements"]; ok {
		_ = json.Unmarshal(raw, &step.UnvisitedElements)
	}

	return step, nil
}

// normalizeStepLine parses one JSON line of offline command output.
func normalizeStepLine(line []byte, verbose bool) (planner.Step, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return planner.Step{}, &Error{Message: "malformed offline step: " + err.Error(), ExitCode: -1}
	}
	return normalizeStep(fields, verbose)
}
