package schema

import (
	"fmt"
	"strings"
)

// Validate checks a decoded JSON value (the output of encoding/json into
// any) against a schema. All violations are collected into one error so a
// retry prompt can name everything that was wrong at once.
func Validate(value any, s Schema) error {
	var violations []string
	walk("$", value, Property{
		Type:       s.Type,
		Properties: s.Properties,
		Required:   s.Required,
	}, &violations)
	if len(violations) == 0 {
		return nil
	}
	return fmt.Errorf("schema violations: %s", strings.Join(violations, "; "))
}

func walk(path string, value any, prop Property, violations *[]string) {
	switch prop.Type {
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			*violations = append(*violations, fmt.Sprintf("%s: expected object, got %s", path, typeName(value)))
			return
		}
		for _, req := range prop.Required {
			if _, present := obj[req]; !present {
				*violations = append(*violations, fmt.Sprintf("%s: missing required field %q", path, req))
			}
		}
		for name, child := range prop.Properties {
			v, present := obj[name]
			if !present || v == nil {
				continue
			}
			walk(path+"."+name, v, child, violations)
		}

	case "array":
		arr, ok := value.([]any)
		if !ok {
			*violations = append(*violations, fmt.Sprintf("%s: expected array, got %s", path, typeName(value)))
			return
		}
		if prop.MinItems > 0 && len(arr) < prop.MinItems {
			*violations = append(*violations, fmt.Sprintf("%s: wants at least %d items, has %d", path, prop.MinItems, len(arr)))
		}
		if prop.MaxItems > 0 && len(arr) > prop.MaxItems {
			*violations = append(*violations, fmt.Sprintf("%s: wants at most %d items, has %d", path, prop.MaxItems, len(arr)))
		}
		if prop.Items != nil {
			for i, item := range arr {
				walk(fmt.Sprintf("%s[%d]", path, i), item, *prop.Items, violations)
			}
		}

	case "string":
		s, ok := value.(string)
		if !ok {
			*violations = append(*violations, fmt.Sprintf("%s: expected string, got %s", path, typeName(value)))
			return
		}
		if prop.MinLength > 0 && len(s) < prop.MinLength {
			*violations = append(*violations, fmt.Sprintf("%s: shorter than %d", path, prop.MinLength))
		}
		if prop.MaxLength > 0 && len(s) > prop.MaxLength {
			*violations = append(*violations, fmt.Sprintf("%s: longer than %d", path, prop.MaxLength))
		}
		if len(prop.Enum) > 0 && !contains(prop.Enum, s) {
			*violations = append(*violations, fmt.Sprintf("%s: %q not in %v", path, s, prop.Enum))
		}

	case "boolean":
		if _, ok := value.(bool); !ok {
			*violations = append(*violations, fmt.Sprintf("%s: expected boolean, got %s", path, typeName(value)))
		}

	case "number", "integer":
		if _, ok := value.(float64); !ok {
			*violations = append(*violations, fmt.Sprintf("%s: expected %s, got %s", path, prop.Type, typeName(value)))
		}

	case "":
		// Untyped property: anything goes.

	default:
		*violations = append(*violations, fmt.Sprintf("%s: unknown schema type %q", path, prop.Type))
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
