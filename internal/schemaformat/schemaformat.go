// Package schemaformat validates extraction schema documents: JSON Schema
// trees describing the object an LLM extraction must produce. Validation is
// structural and recursive, collecting every problem into ordered error and
// warning lists instead of failing on the first one.
package schemaformat

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// Issue is one finding at a specific location in the schema tree. Path is a
// dotted property path from the root ("" for the root itself).
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// Result holds the ordered findings of one validation pass. Errors make the
// schema unusable; warnings flag constructs the extraction UI renders poorly
// but the backend accepts.
type Result struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Valid reports whether the schema produced no errors. Warnings do not affect
// validity.
func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

func (r *Result) errorf(path, format string, args ...interface{}) {
	r.Errors = append(r.Errors, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (r *Result) warnf(path, format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}

// scalar types the extraction backend can fill.
var knownTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"integer": true,
	"boolean": true,
	"array":   true,
	"object":  true,
}

// maxDepth bounds nesting; deeper schemas render unusably in the field mapper.
const maxDepth = 10

// Validate checks a decoded schema document. The root must be an object
// schema; every node must declare a known type; arrays need items; objects
// need properties. After the structural walk the document is compiled as a
// JSON Schema to catch anything the walk does not model.
func Validate(schema map[string]interface{}) *Result {
	result := &Result{}
	if schema == nil {
		result.errorf("", "schema document is empty")
		return result
	}

	if typ, _ := schema["type"].(string); typ != "object" {
		result.errorf("", "root schema must have type \"object\", got %q", schema["type"])
		return result
	}

	validateObject(schema, "", 0, result)

	if len(result.Errors) == 0 {
		compile(schema, result)
	}
	return result
}

// ValidateBytes decodes and validates a raw schema document.
func ValidateBytes(raw []byte) *Result {
	var schema map[string]interface{}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return &Result{Errors: []Issue{{Message: fmt.Sprintf("invalid JSON: %v", err)}}}
	}
	return Validate(schema)
}

func validateNode(node interface{}, path string, depth int, result *Result) {
	schema, ok := node.(map[string]interface{})
	if !ok {
		result.errorf(path, "schema node must be a JSON object, got %T", node)
		return
	}

	if depth > maxDepth {
		result.errorf(path, "nesting exceeds %d levels", maxDepth)
		return
	}

	rawType, present := schema["type"]
	typ, isString := rawType.(string)
	switch {
	case !present:
		result.errorf(path, "missing \"type\"")
		return
	case !isString:
		result.errorf(path, "\"type\" must be a string, got %T", rawType)
		return
	case !knownTypes[typ]:
		result.errorf(path, "unknown type %q", typ)
		return
	}

	if _, ok := schema["description"].(string); !ok && typ != "object" && typ != "array" {
		result.warnf(path, "field has no description; extraction quality degrades without one")
	}

	switch typ {
	case "object":
		validateObject(schema, path, depth, result)
	case "array":
		items, ok := schema["items"]
		if !ok {
			result.errorf(path, "array type requires \"items\"")
			return
		}
		validateNode(items, joinPath(path, "[]"), depth+1, result)
	}

	if enum, ok := schema["enum"]; ok {
		values, isList := enum.([]interface{})
		if !isList || len(values) == 0 {
			result.errorf(path, "\"enum\" must be a non-empty array")
		}
	}
}

func validateObject(schema map[string]interface{}, path string, depth int, result *Result) {
	rawProps, present := schema["properties"]
	if !present {
		result.errorf(path, "object type requires \"properties\"")
		return
	}
	props, ok := rawProps.(map[string]interface{})
	if !ok {
		result.errorf(path, "\"properties\" must be a JSON object, got %T", rawProps)
		return
	}
	if len(props) == 0 {
		result.warnf(path, "object has no properties")
	}

	// Map iteration order is random; findings must be deterministic.
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if name == "" {
			result.errorf(path, "property with empty name")
			continue
		}
		validateNode(props[name], joinPath(path, name), depth+1, result)
	}

	if required, ok := schema["required"]; ok {
		list, isList := required.([]interface{})
		if !isList {
			result.errorf(path, "\"required\" must be an array of property names")
			return
		}
		for _, entry := range list {
			name, isString := entry.(string)
			if !isString {
				result.errorf(path, "\"required\" entries must be strings, got %T", entry)
				continue
			}
			if _, declared := props[name]; !declared {
				result.errorf(path, "required property %q is not declared", name)
			}
		}
	}
}

// compile runs the document through a real JSON Schema compiler as a final
// check for constructs the structural walk does not model.
func compile(schema map[string]interface{}, result *Result) {
	if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema)); err != nil {
		result.errorf("", "schema does not compile: %v", err)
	}
}

// PropertyType resolves the declared type at a dotted property path, e.g.
// "invoice.lines.[].amount". The boolean reports whether the path exists.
// The form field mapper uses this to check mapping compatibility.
func PropertyType(schema map[string]interface{}, path string) (string, bool) {
	node := schema
	if path == "" {
		typ, _ := node["type"].(string)
		return typ, typ != ""
	}

	for _, segment := range splitPath(path) {
		typ, _ := node["type"].(string)
		switch typ {
		case "object":
			props, _ := node["properties"].(map[string]interface{})
			child, ok := props[segment].(map[string]interface{})
			if !ok {
				return "", false
			}
			node = child
		case "array":
			if segment != "[]" {
				return "", false
			}
			items, ok := node["items"].(map[string]interface{})
			if !ok {
				return "", false
			}
			node = items
		default:
			return "", false
		}
	}

	typ, _ := node["type"].(string)
	return typ, typ != ""
}

func joinPath(base, segment string) string {
	if base == "" {
		return segment
	}
	return base + "." + segment
}

func splitPath(path string) []string {
	var segments []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			segments = append(segments, path[start:i])
			start = i + 1
		}
	}
	return append(segments, path[start:])
}
