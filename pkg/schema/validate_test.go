package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func testSchema() Schema {
	return ObjectSchema(map[string]Property{
		"word":       StringProperty("the word"),
		"confidence": StringEnumProperty("grade", "high", "medium", "low"),
		"roots": ArrayProperty("root morphemes", ObjectProperty("one root", map[string]Property{
			"text":    StringProperty("root text"),
			"ancient": BoolProperty("whether reconstructed"),
		}, "text")),
		"score": NumberProperty("match score"),
	}, "word", "roots")
}

func TestValidateAccepts(t *testing.T) {
	v := decode(t, `{
		"word": "perfidy",
		"confidence": "high",
		"roots": [{"text": "fides", "ancient": false}],
		"score": 0.9
	}`)
	assert.NoError(t, Validate(v, testSchema()))
}

func TestValidateMissingRequired(t *testing.T) {
	v := decode(t, `{"word": "perfidy"}`)
	err := Validate(v, testSchema())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required field "roots"`)
}

func TestValidateWrongTypes(t *testing.T) {
	v := decode(t, `{"word": 42, "roots": "not an array"}`)
	err := Validate(v, testSchema())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$.word: expected string")
	assert.Contains(t, err.Error(), "$.roots: expected array")
}

func TestValidateEnum(t *testing.T) {
	v := decode(t, `{"word": "x", "confidence": "certain", "roots": []}`)
	err := Validate(v, testSchema())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"certain" not in`)
}

func TestValidateNestedArrayItems(t *testing.T) {
	v := decode(t, `{"word": "x", "roots": [{"ancient": true}, {"text": 5}]}`)
	err := Validate(v, testSchema())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `$.roots[0]: missing required field "text"`)
	assert.Contains(t, err.Error(), "$.roots[1].text: expected string")
}

func TestValidateCollectsAllViolations(t *testing.T) {
	v := decode(t, `{"score": "high"}`)
	err := Validate(v, testSchema())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required field "word"`)
	assert.Contains(t, err.Error(), `missing required field "roots"`)
	assert.Contains(t, err.Error(), "$.score: expected number")
}

func TestValidateNullOptionalFieldIsSkipped(t *testing.T) {
	v := decode(t, `{"word": "x", "roots": [], "confidence": null}`)
	assert.NoError(t, Validate(v, testSchema()))
}
