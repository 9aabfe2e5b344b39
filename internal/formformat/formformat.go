// Package formformat validates form definitions: trees of layout and field
// components rendered by the form builder, optionally mapped onto the
// properties of an extraction schema. Like the schema validator, it walks the
// whole tree and collects ordered error and warning lists instead of stopping
// at the first problem.
package formformat

import (
	"encoding/json"
	"fmt"

	"github.com/sigagent/docrouter-go/internal/schemaformat"
)

// Issue is one finding at a specific component location. Path addresses the
// component by index, e.g. "components[1].children[0]".
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Result holds the ordered findings of one validation pass.
type Result struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Valid reports whether the form produced no errors.
func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

func (r *Result) errorf(path, format string, args ...interface{}) {
	r.Errors = append(r.Errors, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (r *Result) warnf(path, format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}

// layoutTypes hold children and carry no value of their own.
var layoutTypes = map[string]bool{
	"panel":   true,
	"section": true,
	"columns": true,
}

// fieldTypes map each input kind to the schema property types it may be
// mapped to. Container schema types (object, array) are never mappable to a
// single input.
var fieldTypes = map[string]map[string]bool{
	"text":     {"string": true},
	"textarea": {"string": true},
	"number":   {"number": true, "integer": true},
	"checkbox": {"boolean": true},
	"date":     {"string": true},
	"select":   {"string": true},
}

// walker carries the per-pass state of one validation.
type walker struct {
	result *Result
	schema map[string]interface{}
	names  map[string]string // field name -> path of first declaration
}

// Validate checks a decoded form definition against its structural rules and,
// when schema is non-nil, checks every field mapping against the schema's
// property types. A nil schema downgrades mapping checks to a warning per
// mapped field.
func Validate(form map[string]interface{}, schema map[string]interface{}) *Result {
	result := &Result{}
	if form == nil {
		result.errorf("", "form document is empty")
		return result
	}

	rawComponents, present := form["components"]
	if !present {
		result.errorf("", "missing \"components\"")
		return result
	}
	components, ok := rawComponents.([]interface{})
	if !ok {
		result.errorf("components", "\"components\" must be an array, got %T", rawComponents)
		return result
	}
	if len(components) == 0 {
		result.warnf("components", "form has no components")
	}

	w := &walker{result: result, schema: schema, names: make(map[string]string)}
	w.walkList(components, "components")
	return result
}

// ValidateBytes decodes and validates a raw form definition.
func ValidateBytes(raw []byte, schema map[string]interface{}) *Result {
	var form map[string]interface{}
	if err := json.Unmarshal(raw, &form); err != nil {
		return &Result{Errors: []Issue{{Message: fmt.Sprintf("invalid JSON: %v", err)}}}
	}
	return Validate(form, schema)
}

func (w *walker) walkList(components []interface{}, path string) {
	for i, raw := range components {
		w.walkComponent(raw, fmt.Sprintf("%s[%d]", path, i))
	}
}

func (w *walker) walkComponent(raw interface{}, path string) {
	component, ok := raw.(map[string]interface{})
	if !ok {
		w.result.errorf(path, "component must be a JSON object, got %T", raw)
		return
	}

	typ, _ := component["type"].(string)
	switch {
	case typ == "":
		w.result.errorf(path, "missing component \"type\"")
	case layoutTypes[typ]:
		w.walkLayout(component, path)
	case fieldTypes[typ] != nil:
		w.walkField(component, typ, path)
	default:
		w.result.errorf(path, "unknown component type %q", typ)
	}
}

func (w *walker) walkLayout(component map[string]interface{}, path string) {
	rawChildren, present := component["children"]
	if !present {
		w.result.warnf(path, "layout component has no children")
		return
	}
	children, ok := rawChildren.([]interface{})
	if !ok {
		w.result.errorf(path, "\"children\" must be an array, got %T", rawChildren)
		return
	}
	if len(children) == 0 {
		w.result.warnf(path, "layout component has no children")
	}
	w.walkList(children, path+".children")
}

func (w *walker) walkField(component map[string]interface{}, typ, path string) {
	name, _ := component["name"].(string)
	if name == "" {
		w.result.errorf(path, "field component requires a non-empty \"name\"")
	} else if first, dup := w.names[name]; dup {
		w.result.errorf(path, "duplicate field name %q (first declared at %s)", name, first)
	} else {
		w.names[name] = path
	}

	if label, _ := component["label"].(string); label == "" {
		w.result.warnf(path, "field has no label")
	}

	if typ == "select" {
		options, ok := component["options"].([]interface{})
		if !ok || len(options) == 0 {
			w.result.errorf(path, "select field requires a non-empty \"options\" array")
		}
	}

	w.checkMapping(component, typ, path)
}

// checkMapping verifies a field's schema mapping, when present: the mapped
// property must exist and its declared type must be fillable by this input
// kind.
func (w *walker) checkMapping(component map[string]interface{}, typ, path string) {
	rawMapping, present := component["mapping"]
	if !present {
		return
	}
	mapping, ok := rawMapping.(string)
	if !ok || mapping == "" {
		w.result.errorf(path, "\"mapping\" must be a non-empty property path")
		return
	}

	if w.schema == nil {
		w.result.warnf(path, "mapping %q cannot be checked without a schema", mapping)
		return
	}

	propType, exists := schemaformat.PropertyType(w.schema, mapping)
	if !exists {
		w.result.errorf(path, "mapping %q does not exist in the schema", mapping)
		return
	}
	if !fieldTypes[typ][propType] {
		w.result.errorf(path, "field type %q cannot be mapped to schema type %q at %q", typ, propType, mapping)
	}
}
