package recipe

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed recipe.schema.json
var schemaJSON []byte

const schemaURL = "recipe.schema.json"

var (
	compileOnce    sync.Once
	compiledSchema *sjsonschema.Schema
	compileErr     error
)

// Problem is a structural defect found in a recipe document.
type Problem struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (p Problem) Error() string {
	if p.Path == "" {
		return p.Message
	}
	return fmt.Sprintf("%s: %s", p.Path, p.Message)
}

// ValidateDocument checks a raw recipe document against the recipe JSON Schema
// and reports unknown step commands. It is meant for authoring and diagnostics
// tooling; the engine itself assumes recipes are already well formed.
func ValidateDocument(data []byte) []Problem {
	sch, err := recipeSchema()
	if err != nil {
		return []Problem{{Message: fmt.Sprintf("compile schema: %v", err)}}
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return []Problem{{Message: fmt.Sprintf("unmarshal document: %v", err)}}
	}

	var problems []Problem
	if err := sch.Validate(doc); err != nil {
		var ve *sjsonschema.ValidationError
		if errors.As(err, &ve) {
			for _, cause := range flattenValidationErrors(ve) {
				problems = append(problems, Problem{
					Path:    "/" + strings.Join(cause.InstanceLocation, "/"),
					Message: fmt.Sprintf("%v", cause.ErrorKind),
				})
			}
		} else {
			problems = append(problems, Problem{Message: err.Error()})
		}
		return problems
	}

	r, err := Parse(data)
	if err != nil {
		return []Problem{{Message: err.Error()}}
	}
	for _, t := range StepTypes {
		for i, step := range r.Steps(t) {
			if !step.Command.Known() {
				problems = append(problems, Problem{
					Path:    fmt.Sprintf("/%s/%d/command", t, i),
					Message: fmt.Sprintf("unknown command %q", step.Command),
				})
			}
		}
	}
	return problems
}

func recipeSchema() (*sjsonschema.Schema, error) {
	compileOnce.Do(func() {
		var schemaDoc any
		if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
			compileErr = fmt.Errorf("unmarshal schema: %w", err)
			return
		}
		c := sjsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, schemaDoc); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile(schemaURL)
	})
	return compiledSchema, compileErr
}

// flattenValidationErrors collects the leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}
