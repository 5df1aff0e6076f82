// Package schema defines JSON Schema contracts for structured model output
// and validates decoded values against them. Instead of trusting model
// text, callers declare the exact shape they expect and check every
// response before it goes anywhere near the cache.
package schema

// Schema defines a JSON Schema object.
type Schema struct {
	Type        string              `json:"type"`
	Description string              `json:"description,omitempty"`
	Properties  map[string]Property `json:"properties,omitempty"`
	Required    []string            `json:"required,omitempty"`
}

// Property defines a single property in a JSON Schema.
type Property struct {
	Type        string              `json:"type"`
	Description string              `json:"description,omitempty"`
	Enum        []string            `json:"enum,omitempty"`
	Items       *Property           `json:"items,omitempty"`
	Properties  map[string]Property `json:"properties,omitempty"`
	Required    []string            `json:"required,omitempty"`
	MaxLength   int                 `json:"maxLength,omitempty"`
	MinLength   int                 `json:"minLength,omitempty"`
	MinItems    int                 `json:"minItems,omitempty"`
	MaxItems    int                 `json:"maxItems,omitempty"`
}

// ObjectSchema creates a schema for an object type with the given properties.
func ObjectSchema(props map[string]Property, required ...string) Schema {
	return Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

// StringProperty creates a string property.
func StringProperty(desc string) Property {
	return Property{
		Type:        "string",
		Description: desc,
	}
}

// StringEnumProperty creates a string property constrained to specific values.
func StringEnumProperty(desc string, values ...string) Property {
	return Property{
		Type:        "string",
		Description: desc,
		Enum:        values,
	}
}

// BoolProperty creates a boolean property.
func BoolProperty(desc string) Property {
	return Property{
		Type:        "boolean",
		Description: desc,
	}
}

// ArrayProperty creates an array property with the given item type.
func ArrayProperty(desc string, items Property) Property {
	return Property{
		Type:        "array",
		Description: desc,
		Items:       &items,
	}
}

// ObjectProperty creates a nested object property.
func ObjectProperty(desc string, props map[string]Property, required ...string) Property {
	return Property{
		Type:        "object",
		Description: desc,
		Properties:  props,
		Required:    required,
	}
}

// NumberProperty creates a number property.
func NumberProperty(desc string) Property {
	return Property{
		Type:        "number",
		Description: desc,
	}
}
