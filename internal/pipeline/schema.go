package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kairoslabs/convocore/pkg/models"
)

// SchemaProvider is a capability a ToolRegistry may additionally implement
// to supply a tool's JSON Schema, keyed by tool name, for structured-argument
// validation. A registry with no schema for a tool (or one that doesn't
// implement this at all) means arguments are passed through unvalidated.
type SchemaProvider interface {
	SchemaFor(toolName string) (json.RawMessage, bool)
}

// ValidateArguments checks a tool call's structured argument payload
// against the schema the ToolEnhancement stage's registry supplies for that
// tool, if any. Non-structured argument kinds (string, string list) are not
// schema-checked. Called from the Tool Engine's dispatch path, not from
// Process itself, since a tool call doesn't exist yet when ToolEnhancement
// runs at the start of a turn.
func (t *ToolEnhancement) ValidateArguments(toolName string, args models.ToolArgs) error {
	if args.Kind != models.ToolArgsStructured {
		return nil
	}
	provider, ok := t.Registry.(SchemaProvider)
	if !ok {
		return nil
	}
	raw, ok := provider.SchemaFor(toolName)
	if !ok || len(raw) == 0 {
		return nil
	}

	compiler := jsonschema.NewCompiler()
	resource := toolName + ".schema.json"
	if err := compiler.AddResource(resource, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("compile schema for tool %s: %w", toolName, err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return fmt.Errorf("compile schema for tool %s: %w", toolName, err)
	}

	var value any
	if err := json.Unmarshal(args.Structured, &value); err != nil {
		return fmt.Errorf("decode structured arguments for tool %s: %w", toolName, err)
	}
	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("arguments for tool %s: %w", toolName, err)
	}
	return nil
}
