package schemaformat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInvoiceSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"vendor": map[string]interface{}{
				"type":        "string",
				"description": "Vendor legal name",
			},
			"total": map[string]interface{}{
				"type":        "number",
				"description": "Invoice total including tax",
			},
			"lines": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"amount": map[string]interface{}{
							"type":        "number",
							"description": "Line amount",
						},
					},
				},
			},
		},
		"required": []interface{}{"vendor", "total"},
	}
}

func TestValidateAcceptsWellFormedSchema(t *testing.T) {
	result := Validate(validInvoiceSchema())
	assert.True(t, result.Valid())
	assert.Empty(t, result.Errors)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(s map[string]interface{})
		expected string
	}{
		{
			name:     "root must be object",
			mutate:   func(s map[string]interface{}) { s["type"] = "array" },
			expected: "root schema must have type",
		},
		{
			name: "unknown property type",
			mutate: func(s map[string]interface{}) {
				props := s["properties"].(map[string]interface{})
				props["vendor"].(map[string]interface{})["type"] = "text"
			},
			expected: "unknown type",
		},
		{
			name: "missing type",
			mutate: func(s map[string]interface{}) {
				props := s["properties"].(map[string]interface{})
				delete(props["vendor"].(map[string]interface{}), "type")
			},
			expected: "missing \"type\"",
		},
		{
			name: "array without items",
			mutate: func(s map[string]interface{}) {
				props := s["properties"].(map[string]interface{})
				delete(props["lines"].(map[string]interface{}), "items")
			},
			expected: "requires \"items\"",
		},
		{
			name: "object without properties",
			mutate: func(s map[string]interface{}) {
				delete(s, "properties")
			},
			expected: "requires \"properties\"",
		},
		{
			name: "required references undeclared property",
			mutate: func(s map[string]interface{}) {
				s["required"] = []interface{}{"vendor", "missing_field"}
			},
			expected: "is not declared",
		},
		{
			name: "non-object schema node",
			mutate: func(s map[string]interface{}) {
				props := s["properties"].(map[string]interface{})
				props["vendor"] = "string"
			},
			expected: "must be a JSON object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := validInvoiceSchema()
			tt.mutate(schema)

			result := Validate(schema)
			require.False(t, result.Valid())
			found := false
			for _, issue := range result.Errors {
				if strings.Contains(issue.Message, tt.expected) {
					found = true
				}
			}
			assert.True(t, found, "expected an error containing %q, got %v", tt.expected, result.Errors)
		})
	}
}

func TestValidateCollectsAllFindings(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"a": map[string]interface{}{"type": "text"},
			"b": map[string]interface{}{"type": "array"},
			"c": map[string]interface{}{"type": "string"},
		},
	}

	result := Validate(schema)
	require.Len(t, result.Errors, 2, "both errors are reported, not just the first")
	assert.Equal(t, "a", result.Errors[0].Path)
	assert.Equal(t, "b", result.Errors[1].Path)

	// c is valid but undescribed.
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "c", result.Warnings[0].Path)
}

func TestValidateWarnings(t *testing.T) {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
	result := Validate(schema)
	assert.True(t, result.Valid(), "warnings do not fail validation")
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, "no properties")
}

func TestValidateBytes(t *testing.T) {
	result := ValidateBytes([]byte(`{"type":"object","properties":{"x":{"type":"string","description":"x"}}}`))
	assert.True(t, result.Valid())

	result = ValidateBytes([]byte(`{not json`))
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "invalid JSON")
}

func TestPropertyType(t *testing.T) {
	schema := validInvoiceSchema()

	tests := []struct {
		path     string
		expected string
		ok       bool
	}{
		{path: "vendor", expected: "string", ok: true},
		{path: "total", expected: "number", ok: true},
		{path: "lines", expected: "array", ok: true},
		{path: "lines.[]", expected: "object", ok: true},
		{path: "lines.[].amount", expected: "number", ok: true},
		{path: "", expected: "object", ok: true},
		{path: "missing", ok: false},
		{path: "vendor.deeper", ok: false},
		{path: "lines.amount", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			typ, ok := PropertyType(schema, tt.path)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, typ)
			}
		})
	}
}
