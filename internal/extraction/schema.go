package extraction

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const batchSchemaJSON = `{
  "type": "object",
  "properties": {
    "accountType": {"type": ["string", "null"]},
    "institutionName": {"type": ["string", "null"]},
    "accountName": {"type": ["string", "null"]},
    "transactions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["date", "description"],
        "properties": {
          "date": {"type": ["string", "null"]},
          "description": {"type": ["string", "null"]},
          "credit": {"type": ["string", "number", "null"]},
          "debit": {"type": ["string", "number", "null"]}
        }
      }
    }
  },
  "required": ["transactions"]
}`

var (
	batchSchemaOnce sync.Once
	batchSchema     *jsonschema.Schema
	batchSchemaErr  error
)

func compiledBatchSchema() (*jsonschema.Schema, error) {
	batchSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("batch.json", strings.NewReader(batchSchemaJSON)); err != nil {
			batchSchemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		batchSchema, batchSchemaErr = compiler.Compile("batch.json")
	})
	return batchSchema, batchSchemaErr
}

// validateBatchDocument checks a decoded brace payload against the expected
// shape. The parser is lenient, so callers only log the result.
func validateBatchDocument(doc map[string]any) error {
	schema, err := compiledBatchSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("payload does not match schema: %w", err)
	}
	return nil
}
