package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
  "type": "object",
  "required": ["items"],
  "properties": {
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "days"],
        "properties": {
          "id": {"type": "string"},
          "days": {"type": "integer", "minimum": 1}
        }
      }
    }
  }
}`

func TestDocumentSchema_ValidateYAML(t *testing.T) {
	schema, err := CompileSchema("test.json", []byte(testSchema))
	require.NoError(t, err)

	assert.NoError(t, schema.ValidateYAML([]byte("items:\n  - id: a\n    days: 3\n")))
	assert.Error(t, schema.ValidateYAML([]byte("items:\n  - id: a\n    days: 0\n")))
	assert.Error(t, schema.ValidateYAML([]byte("other: true\n")))
	assert.Error(t, schema.ValidateYAML([]byte("items: [\n")))
}

func TestCompileSchema_Invalid(t *testing.T) {
	_, err := CompileSchema("bad.json", []byte(`{"type": 5}`))
	assert.Error(t, err)
}
