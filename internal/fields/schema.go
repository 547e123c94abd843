// Package fields checks recipe output names against the allow-list of fields
// each step list may surface.
package fields

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"scout/internal/recipe"

	"gopkg.in/yaml.v3"
)

//go:embed default_fields.json
var defaultFieldsJSON []byte

// Meta describes one permitted field.
type Meta struct {
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Schema maps each step list to the output base names it may surface.
type Schema struct {
	AutocompleteFields map[string]Meta `json:"autocomplete_fields" yaml:"autocomplete_fields"`
	URLFields          map[string]Meta `json:"url_fields" yaml:"url_fields"`
}

// EmptySchema permits no visible field at all.
func EmptySchema() *Schema {
	return &Schema{
		AutocompleteFields: map[string]Meta{},
		URLFields:          map[string]Meta{},
	}
}

// DefaultSchema returns the built-in field schema.
func DefaultSchema() *Schema {
	s, err := parseSchema(defaultFieldsJSON, ".json")
	if err != nil {
		panic(fmt.Sprintf("fields: invalid embedded schema: %v", err))
	}
	return s
}

// LoadSchema reads a schema file (.json, .yaml or .yml). A missing or invalid
// file degrades to EmptySchema and is logged; it never fails the caller.
func LoadSchema(path string, logger *slog.Logger) *Schema {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("failed to read field schema, using empty schema", "path", path, "error", err)
		return EmptySchema()
	}
	s, err := parseSchema(data, filepath.Ext(path))
	if err != nil {
		logger.Warn("failed to parse field schema, using empty schema", "path", path, "error", err)
		return EmptySchema()
	}
	return s
}

func parseSchema(data []byte, ext string) (*Schema, error) {
	s := EmptySchema()
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, s); err != nil {
			return nil, err
		}
	}
	if s.AutocompleteFields == nil {
		s.AutocompleteFields = map[string]Meta{}
	}
	if s.URLFields == nil {
		s.URLFields = map[string]Meta{}
	}
	return s, nil
}

// Fields returns the permitted fields for a step list, or nil for an unknown one.
func (s *Schema) Fields(t recipe.StepType) map[string]Meta {
	switch t {
	case recipe.AutocompleteSteps:
		return s.AutocompleteFields
	case recipe.URLSteps:
		return s.URLFields
	default:
		return nil
	}
}

// Has reports whether name is a permitted base name for t.
func (s *Schema) Has(t recipe.StepType, name string) bool {
	_, ok := s.Fields(t)[name]
	return ok
}

// Names returns the sorted permitted base names for t.
func (s *Schema) Names(t recipe.StepType) []string {
	fields := s.Fields(t)
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
