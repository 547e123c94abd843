package fields

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"

	"scout/internal/recipe"
)

// Severity of a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

const (
	ReasonShowRequired = `"show" is required`
	ReasonUnknownKey   = "unknown output key"
)

// loopSuffix matches "$i" style references appended to output names.
var loopSuffix = regexp.MustCompile(`\$[A-Za-z0-9_]+`)

// BaseName strips loop index references from an output name: "TITLE$i" -> "TITLE".
func BaseName(name string) string {
	return loopSuffix.ReplaceAllString(name, "")
}

// Result is the outcome of validating one step's output.
type Result struct {
	Valid    bool     `json:"valid"`
	Field    string   `json:"field,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	Severity Severity `json:"severity,omitempty"`
}

// Issue is a failed Result located in a recipe.
type Issue struct {
	StepType recipe.StepType `json:"step_type"`
	Index    int             `json:"index"`
	Name     string          `json:"name"`
	Field    string          `json:"field"`
	Reason   string          `json:"reason"`
	Severity Severity        `json:"severity"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s[%d] %s: %s", i.StepType, i.Index, i.Name, i.Reason)
}

// Report collects the issues of one step list. Ignored holds the sorted base
// names of visible fields that the schema does not know.
type Report struct {
	Errors   []Issue  `json:"errors,omitempty"`
	Warnings []Issue  `json:"warnings,omitempty"`
	Ignored  []string `json:"ignored,omitempty"`
}

// OK reports whether the report has no issues.
func (r Report) OK() bool {
	return len(r.Errors) == 0 && len(r.Warnings) == 0
}

// Validator checks step outputs against a Schema.
type Validator struct {
	schema *Schema
	logger *slog.Logger
}

// NewValidator creates a Validator. A nil schema behaves as EmptySchema.
func NewValidator(schema *Schema, logger *slog.Logger) *Validator {
	if schema == nil {
		schema = EmptySchema()
	}
	return &Validator{schema: schema, logger: logger}
}

// ValidateField checks a single step's output declaration.
func (v *Validator) ValidateField(step recipe.Step, stepType recipe.StepType) Result {
	name := step.Output.Name
	if name == "" {
		return Result{Valid: true}
	}
	if step.Output.Show == nil {
		return Result{Field: name, Reason: ReasonShowRequired, Severity: SeverityError}
	}
	if !*step.Output.Show {
		return Result{Valid: true, Field: name}
	}
	base := BaseName(name)
	if !v.schema.Has(stepType, base) {
		return Result{Field: base, Reason: ReasonUnknownKey, Severity: SeverityWarning}
	}
	return Result{Valid: true, Field: base}
}

// ValidateRecipeFields checks every step of one list. Validation is advisory:
// it logs and reports, it never changes how the steps execute.
func (v *Validator) ValidateRecipeFields(r *recipe.Recipe, stepType recipe.StepType) Report {
	var report Report
	ignored := make(map[string]struct{})

	for i, step := range r.Steps(stepType) {
		res := v.ValidateField(step, stepType)
		if res.Valid {
			continue
		}
		issue := Issue{
			StepType: stepType,
			Index:    i,
			Name:     step.Output.Name,
			Field:    res.Field,
			Reason:   res.Reason,
			Severity: res.Severity,
		}
		switch res.Severity {
		case SeverityError:
			v.logger.Error("invalid output field", "step_type", stepType, "index", i, "name", issue.Name, "reason", issue.Reason)
			report.Errors = append(report.Errors, issue)
		default:
			v.logger.Warn("ignored output field", "step_type", stepType, "index", i, "name", issue.Name, "field", issue.Field, "reason", issue.Reason)
			report.Warnings = append(report.Warnings, issue)
			ignored[res.Field] = struct{}{}
		}
	}

	for name := range ignored {
		report.Ignored = append(report.Ignored, name)
	}
	sort.Strings(report.Ignored)
	return report
}
