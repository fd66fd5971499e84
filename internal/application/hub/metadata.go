package hub

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cardhub/connectors/internal/domain/shared"
	"github.com/xeipuuv/gojsonschema"
)

// Metadata is the discovery document a connector publishes to the hub.
type Metadata struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Version     string                 `json:"version,omitempty"`
	ObjectTypes map[string]ObjectType  `json:"object_types,omitempty"`
	Config      map[string]ConfigField `json:"config,omitempty"`
}

// ObjectType describes one kind of object the connector serves.
type ObjectType struct {
	Endpoint string   `json:"endpoint"`
	Fields   []string `json:"fields,omitempty"`
}

// ConfigField is one administrator-provided configuration value.
type ConfigField struct {
	Label       string      `json:"label"`
	Description string      `json:"description,omitempty"`
	Default     string      `json:"default,omitempty"`
	Validators  []Validator `json:"validators,omitempty"`
}

// Validator types understood by the hub admin console.
const (
	ValidatorRequired = "required"
	ValidatorRegex    = "regex"
)

type Validator struct {
	Type        string `json:"type"`
	Value       string `json:"value,omitempty"`
	Description string `json:"description,omitempty"`
}

// ParseMetadata decodes a connector metadata document.
func ParseMetadata(raw []byte) (Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, fmt.Errorf("parse connector metadata: %w", err)
	}
	return m, nil
}

// JSONSchema renders the config validators as a JSON schema document.
func (m Metadata) JSONSchema() map[string]any {
	properties := map[string]any{}
	var required []string
	for key, field := range m.Config {
		prop := map[string]any{"type": "string"}
		for _, v := range field.Validators {
			switch v.Type {
			case ValidatorRequired:
				required = append(required, key)
				prop["minLength"] = 1
			case ValidatorRegex:
				prop["pattern"] = v.Value
			}
		}
		properties[key] = prop
	}
	schema := map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sort.Strings(required)
		schema["required"] = required
	}
	return schema
}

// ConfigValidator checks connector configuration maps against metadata.
type ConfigValidator struct {
	schema *gojsonschema.Schema
}

// NewConfigValidator compiles the schema derived from m.
func NewConfigValidator(m Metadata) (*ConfigValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(m.JSONSchema()))
	if err != nil {
		return nil, fmt.Errorf("compile config schema for %s: %w", m.Name, err)
	}
	return &ConfigValidator{schema: schema}, nil
}

// Validate returns a ValidationError naming every missing or invalid key.
func (v *ConfigValidator) Validate(config map[string]string) error {
	doc := map[string]any{}
	for k, val := range config {
		doc[k] = strings.TrimSpace(val)
	}

	result, err := v.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validate connector config: %w", err)
	}
	if result.Valid() {
		return nil
	}

	seen := map[string]bool{}
	var keys []string
	for _, e := range result.Errors() {
		key := e.Field()
		if e.Type() == "required" {
			if p, ok := e.Details()["property"].(string); ok {
				key = p
			}
		}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return shared.NewMissingKeysError(keys...)
}
