// Package recipe defines the recipe document: site metadata plus the two
// ordered step lists the engine interprets.
package recipe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// StepType names one of a recipe's step lists.
type StepType string

const (
	AutocompleteSteps StepType = "autocomplete_steps" // query -> candidate list
	URLSteps          StepType = "url_steps"          // detail URL -> structured record
)

// StepTypes lists every valid StepType.
var StepTypes = []StepType{AutocompleteSteps, URLSteps}

// Valid reports whether t names a known step list.
func (t StepType) Valid() bool {
	return t == AutocompleteSteps || t == URLSteps
}

// Recipe describes how to extract data from one site.
type Recipe struct {
	Title              string            `json:"title"`
	Description        string            `json:"description,omitempty"`
	EngineVersion      string            `json:"engine_version,omitempty"`
	URLAvailable       []string          `json:"url_available,omitempty"`
	LanguagesAvailable []string          `json:"languages_available,omitempty"`
	LanguageDefault    string            `json:"language_default,omitempty"`
	RegionsAvailable   []string          `json:"regions_available,omitempty"`
	RegionDefault      string            `json:"region_default,omitempty"`
	Headers            map[string]string `json:"headers,omitempty"`
	AutocompleteSteps  []Step            `json:"autocomplete_steps,omitempty"`
	URLSteps           []Step            `json:"url_steps,omitempty"`
}

// Steps returns the step list selected by t, or nil for an unknown type.
func (r *Recipe) Steps(t StepType) []Step {
	switch t {
	case AutocompleteSteps:
		return r.AutocompleteSteps
	case URLSteps:
		return r.URLSteps
	default:
		return nil
	}
}

// Header returns the recipe header named name, matched case-insensitively.
func (r *Recipe) Header(name string) (string, bool) {
	return lookupHeader(r.Headers, name)
}

// Step is one typed operation of a recipe.
type Step struct {
	Command       Command    `json:"command"`
	Description   string     `json:"description,omitempty"`
	Locator       string     `json:"locator,omitempty"`
	URL           string     `json:"url,omitempty"`
	Input         string     `json:"input,omitempty"`
	Expression    string     `json:"expression,omitempty"`
	AttributeName string     `json:"attribute_name,omitempty"`
	Find          *string    `json:"find,omitempty"`
	Replace       *string    `json:"replace,omitempty"`
	Config        StepConfig `json:"config,omitempty"`
	Output        Output     `json:"output,omitempty"`
}

// StepConfig carries navigation options, HTTP request options and the loop.
type StepConfig struct {
	JS      bool              `json:"js,omitempty"`
	Timeout int               `json:"timeout,omitempty"` // milliseconds
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
	Loop    *Loop             `json:"loop,omitempty"`
}

// Header returns the step header named name, matched case-insensitively.
func (c StepConfig) Header(name string) (string, bool) {
	return lookupHeader(c.Headers, name)
}

// BodyTemplate returns the request body as template text. A JSON string body
// is returned unquoted; any other JSON value is returned as its encoding.
func (c StepConfig) BodyTemplate() string {
	body := bytes.TrimSpace(c.Body)
	if len(body) == 0 || string(body) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return s
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return string(body)
	}
	return compact.String()
}

// Loop repeats a step over the inclusive range [From, To] with Index bound to
// the current value.
type Loop struct {
	Index string `json:"index"`
	From  Bound  `json:"from"`
	To    Bound  `json:"to"`
	Step  Bound  `json:"step,omitempty"`
}

// Bound is a loop bound: a JSON number or a template string such as "$COUNT".
type Bound string

// UnmarshalJSON accepts both numbers and strings.
func (b *Bound) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*b = Bound(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("loop bound must be a number or string: %s", data)
	}
	*b = Bound(n.String())
	return nil
}

// MarshalJSON writes integer bounds as numbers and everything else as strings.
func (b Bound) MarshalJSON() ([]byte, error) {
	if _, err := strconv.Atoi(string(b)); err == nil {
		return []byte(b), nil
	}
	return json.Marshal(string(b))
}

// Output binds a step result to a variable.
type Output struct {
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
	Show *bool  `json:"show,omitempty"`
}

// Load reads and decodes a recipe file.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse recipe %s: %w", path, err)
	}
	return r, nil
}

// Parse decodes a recipe document.
func Parse(data []byte) (*Recipe, error) {
	var r Recipe
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func lookupHeader(headers map[string]string, name string) (string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}
