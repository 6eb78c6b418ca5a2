package invoke

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type weatherArgs struct {
	City    string   `json:"city" description:"City name"`
	Days    int      `json:"days,omitempty"`
	Celsius *bool    `json:"celsius"`
	Tags    []string `json:"tags,omitempty"`

	internal string
}

func TestSchemaFor(t *testing.T) {
	schema := SchemaFor(weatherArgs{})

	assert.Equal(t, "object", schema["type"])

	properties, ok := schema["properties"].(map[string]any)
	require.True(t, ok)

	city, ok := properties["city"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", city["type"])
	assert.Equal(t, "City name", city["description"])

	days := properties["days"].(map[string]any)
	assert.Equal(t, "integer", days["type"])

	celsius := properties["celsius"].(map[string]any)
	assert.Equal(t, "boolean", celsius["type"])

	tags := properties["tags"].(map[string]any)
	assert.Equal(t, "array", tags["type"])

	_, hasInternal := properties["internal"]
	assert.False(t, hasInternal, "unexported fields must be skipped")

	// Only city is required: days/tags are omitempty, celsius is a pointer.
	assert.Equal(t, []string{"city"}, schema["required"])
}

func TestSchemaForNonStruct(t *testing.T) {
	schema := SchemaFor(42)
	assert.Equal(t, "object", schema["type"])
	assert.Empty(t, schema["properties"])
}

func TestValidateArguments(t *testing.T) {
	schema := SchemaFor(weatherArgs{})

	err := ValidateArguments(map[string]any{"city": "Berlin", "days": float64(3)}, schema)
	assert.NoError(t, err)

	err = ValidateArguments(map[string]any{"days": float64(3)}, schema)
	require.Error(t, err)
	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "city", argErr.Field)

	err = ValidateArguments(map[string]any{"city": 7}, schema)
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "city", argErr.Field)

	// Fractional value for an integer field.
	err = ValidateArguments(map[string]any{"city": "Berlin", "days": 2.5}, schema)
	assert.Error(t, err)

	// Unknown fields pass through.
	err = ValidateArguments(map[string]any{"city": "Berlin", "extra": true}, schema)
	assert.NoError(t, err)
}

func TestValidateArgumentsJSONRoundTrippedRequired(t *testing.T) {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"q": map[string]any{"type": "string"}},
		"required":   []any{"q"},
	}
	err := ValidateArguments(map[string]any{}, schema)
	assert.Error(t, err)
	err = ValidateArguments(map[string]any{"q": "x"}, schema)
	assert.NoError(t, err)
}
