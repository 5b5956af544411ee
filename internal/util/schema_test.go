package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleArgs struct {
	Path       string  `json:"path" description:"File path"`
	MaxResults int     `json:"max_results,omitempty"`
	Ratio      float64 `json:"ratio,omitempty"`
	Recursive  bool    `json:"recursive,omitempty"`
	Note       *string `json:"note"`
	Skipped    string  `json:"-"`

	ignored string
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(sampleArgs{})

	assert.Equal(t, "object", schema["type"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)

	path, ok := props["path"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", path["type"])
	assert.Equal(t, "File path", path["description"])

	assert.Equal(t, "integer", props["max_results"].(map[string]any)["type"])
	assert.Equal(t, "number", props["ratio"].(map[string]any)["type"])
	assert.Equal(t, "boolean", props["recursive"].(map[string]any)["type"])

	_, hasUnexported := props["ignored"]
	assert.False(t, hasUnexported)
	_, hasSkipped := props["Skipped"]
	assert.False(t, hasSkipped)

	// Only non-pointer fields without omitempty are required.
	assert.Equal(t, []string{"path"}, schema["required"])
}

func TestValidateParametersRequired(t *testing.T) {
	schema := CreateSchema(sampleArgs{})

	err := ValidateParameters(map[string]any{}, schema)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "path", verr.Field)

	assert.NoError(t, ValidateParameters(map[string]any{"path": "a.go"}, schema))
}

func TestValidateParametersTypes(t *testing.T) {
	schema := CreateSchema(sampleArgs{})

	err := ValidateParameters(map[string]any{"path": 42}, schema)
	require.Error(t, err)

	// JSON decoding yields float64 for every number; whole values pass as
	// integers, fractional values do not.
	assert.NoError(t, ValidateParameters(map[string]any{"path": "a", "max_results": 3.0}, schema))
	assert.Error(t, ValidateParameters(map[string]any{"path": "a", "max_results": 3.5}, schema))

	// Extra fields are tolerated.
	assert.NoError(t, ValidateParameters(map[string]any{"path": "a", "extra": true}, schema))
}

func TestValidateParametersRequiredAsAnySlice(t *testing.T) {
	// Schemas that round-tripped through JSON carry required as []any.
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
		},
		"required": []any{"query"},
	}
	assert.Error(t, ValidateParameters(map[string]any{}, schema))
	assert.NoError(t, ValidateParameters(map[string]any{"query": "x"}, schema))
}
