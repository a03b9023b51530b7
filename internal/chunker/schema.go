package chunker

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed chunk.schema.json
var chunkSchemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func recordSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("chunk.schema.json", bytes.NewReader(chunkSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("load chunk schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("chunk.schema.json")
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile chunk schema: %w", schemaErr)
		}
	})
	return schema, schemaErr
}

// ValidateRecords checks decoded chunk records against the record schema.
// The first invalid record is reported with its index.
func ValidateRecords(records []map[string]any) error {
	s, err := recordSchema()
	if err != nil {
		return err
	}
	for i, r := range records {
		if err := s.Validate(map[string]any(r)); err != nil {
			return fmt.Errorf("record %d (%v): %w", i, r["type"], err)
		}
	}
	return nil
}
