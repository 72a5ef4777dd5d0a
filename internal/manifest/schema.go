package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/manifest-v1.schema.json
var schemaV1 []byte

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("manifest-v1.schema.json", bytes.NewReader(schemaV1)); err != nil {
		panic(fmt.Sprintf("manifest: add schema resource: %v", err))
	}
	s, err := c.Compile("manifest-v1.schema.json")
	if err != nil {
		panic(fmt.Sprintf("manifest: compile schema: %v", err))
	}
	return s
}

// ValidateSchema checks raw manifest JSON against the embedded v1
// schema. This is a shape check only; it says nothing about signature
// validity or freshness.
func ValidateSchema(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("manifest schema: %w", err)
	}
	return nil
}
