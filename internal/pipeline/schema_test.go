package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairoslabs/convocore/pkg/models"
)

type schemaRegistry struct {
	fakeRegistry
	schemas map[string]json.RawMessage
}

func (f *schemaRegistry) SchemaFor(toolName string) (json.RawMessage, bool) {
	raw, ok := f.schemas[toolName]
	return raw, ok
}

func TestToolEnhancement_ValidateArguments_NonStructuredSkipsCheck(t *testing.T) {
	te := &ToolEnhancement{Registry: &schemaRegistry{schemas: map[string]json.RawMessage{
		"search": json.RawMessage(`{"type":"object"}`),
	}}}
	err := te.ValidateArguments("search", models.ToolArgs{Kind: models.ToolArgsString, String: "hi"})
	require.NoError(t, err)
}

func TestToolEnhancement_ValidateArguments_NoSchemaPassesThrough(t *testing.T) {
	te := &ToolEnhancement{Registry: &fakeRegistry{}}
	err := te.ValidateArguments("search", models.ToolArgs{
		Kind:       models.ToolArgsStructured,
		Structured: json.RawMessage(`{"anything": true}`),
	})
	require.NoError(t, err)
}

func TestToolEnhancement_ValidateArguments_MatchingSchemaPasses(t *testing.T) {
	te := &ToolEnhancement{Registry: &schemaRegistry{schemas: map[string]json.RawMessage{
		"search": json.RawMessage(`{
			"type": "object",
			"properties": {"query": {"type": "string"}},
			"required": ["query"]
		}`),
	}}}
	err := te.ValidateArguments("search", models.ToolArgs{
		Kind:       models.ToolArgsStructured,
		Structured: json.RawMessage(`{"query": "weather"}`),
	})
	require.NoError(t, err)
}

func TestToolEnhancement_ValidateArguments_MismatchedSchemaFails(t *testing.T) {
	te := &ToolEnhancement{Registry: &schemaRegistry{schemas: map[string]json.RawMessage{
		"search": json.RawMessage(`{
			"type": "object",
			"properties": {"query": {"type": "string"}},
			"required": ["query"]
		}`),
	}}}
	err := te.ValidateArguments("search", models.ToolArgs{
		Kind:       models.ToolArgsStructured,
		Structured: json.RawMessage(`{"query": 42}`),
	})
	assert.Error(t, err)
}
