// Package code checks test code against a model set: every model needs a
// class and every named element needs a method.
package code

import (
	"context"
	"fmt"
	"strings"

	"github.com/altwalker/gowalker/internal/executor"
	"github.com/altwalker/gowalker/internal/model"
)

// Missing reports what the test code lacks for one model, in model
// declaration order.
type Missing struct {
	Model string
	// ModelMissing is set when the executor has no class for the model at
	// all; Methods then lists every required method.
	ModelMissing bool
	Methods      []string
}

// Verify asks the executor about every model and method and collects what is
// missing. A nil result means the code covers the model set.
func Verify(ctx context.Context, exec executor.Executor, methods []model.ModelMethods) ([]Missing, error) {
	var out []Missing
	for _, mm := range methods {
		hasModel, err := exec.HasModel(ctx, mm.Model)
		if err != nil {
			return nil, err
		}
		if !hasModel {
			out = append(out, Missing{Model: mm.Model, ModelMissing: true, Methods: mm.Methods})
			continue
		}
		var missing []string
		for _, name := range mm.Methods {
			hasStep, err := exec.HasStep(ctx, mm.Model, name)
			if err != nil {
				return nil, err
			}
			if !hasStep {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			out = append(out, Missing{Model: mm.Model, Methods: missing})
		}
	}
	return out, nil
}

// Format renders the misses as a human-readable report.
func Format(misses []Missing) string {
	if len(misses) == 0 {
		return "No issues found with the code.\n"
	}
	var b strings.Builder
	for _, miss := range misses {
		if miss.ModelMissing {
			fmt.Fprintf(&b, "Model %s is missing from the test code.\n", miss.Model)
		} else {
			fmt.Fprintf(&b, "Model %s is missing methods:\n", miss.Model)
		}
		for _, name := range miss.Methods {
			fmt.Fprintf(&b, "  - %s\n", name)
		}
	}
	return b.String()
}

// Suggestions renders code stubs for the missing classes and methods in the
// given language. Supported languages: python, csharp (dotnet).
func Suggestions(language string, misses []Missing) (string, error) {
	if len(misses) == 0 {
		return "", nil
	}
	var b strings.Builder
	switch strings.ToLower(language) {
	case "python":
		for _, miss := range misses {
			pythonSuggestion(&b, miss)
		}
	case "csharp", "dotnet", "c#":
		for _, miss := range misses {
			csharpSuggestion(&b, miss)
		}
	default:
		return "", fmt.Errorf("no code suggestions available for the language %q", language)
	}
	return b.String(), nil
}

func pythonSuggestion(b *strings.Builder, miss Missing) {
	if miss.ModelMissing {
		fmt.Fprintf(b, "class %s:\n\n", miss.Model)
		for _, name := range miss.Methods {
			fmt.Fprintf(b, "    def %s(self):\n        pass\n\n", name)
		}
		return
	}
	fmt.Fprintf(b, "# add inside the class %s\n\n", miss.Model)
	for _, name := range miss.Methods {
		fmt.Fprintf(b, "def %s(self):\n    pass\n\n", name)
	}
}

func csharpSuggestion(b *strings.Builder, miss Missing) {
	if miss.ModelMissing {
		fmt.Fprintf(b, "public class %s\n{\n", miss.Model)
		for _, name := range miss.Methods {
			fmt.Fprintf(b, "    public void %s()\n    {\n    }\n\n", name)
		}
		fmt.Fprintf(b, "}\n\n")
		return
	}
	fmt.Fprintf(b, "// add inside the class %s\n\n", miss.Model)
	for _, name := range miss.Methods {
		fmt.Fprintf(b, "public void %s()\n{\n}\n\n", name)
	}
}
