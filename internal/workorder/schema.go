package workorder

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// documentSchema describes the on-disk JSON shape of a work order: field
// types, enum values for condition kinds, and the minimum cardinality of
// acceptance_commands. It intentionally does not encode path-safety rules
// (no "..", no glob characters, postconditions subset of allowed_files) —
// those are cross-field and filesystem-adjacent invariants better
// expressed as Go validation than as JSON Schema, and are enforced by
// Validate after the document passes the schema check.
const documentSchemaJSON = `{
  "type": "object",
  "required": ["id", "allowed_files", "acceptance_commands"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "preconditions": {"type": "array", "items": {"$ref": "#/$defs/condition"}},
    "postconditions": {"type": "array", "items": {"$ref": "#/$defs/condition"}},
    "allowed_files": {"type": "array", "items": {"type": "string"}},
    "forbidden": {"type": "string"},
    "acceptance_commands": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "minLength": 1}
    },
    "context_files": {"type": "array", "maxItems": 10, "items": {"type": "string"}},
    "notes": {"type": "string"},
    "verify_exempt": {"type": "boolean"},
    "provenance": {
      "type": "object",
      "properties": {
        "planner_run_id": {"type": "string"},
        "bootstrap": {"type": "boolean"}
      }
    }
  },
  "$defs": {
    "condition": {
      "type": "object",
      "required": ["kind", "path"],
      "properties": {
        "kind": {"type": "string", "enum": ["file_exists", "file_absent"]},
        "path": {"type": "string", "minLength": 1}
      }
    }
  }
}`

var compiledDocumentSchema *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("work_order.schema.json", strings.NewReader(documentSchemaJSON)); err != nil {
		panic(fmt.Sprintf("workorder: invalid embedded schema: %v", err))
	}
	s, err := c.Compile("work_order.schema.json")
	if err != nil {
		panic(fmt.Sprintf("workorder: embedded schema does not compile: %v", err))
	}
	compiledDocumentSchema = s
}

// validateDocumentShape checks raw JSON bytes against the embedded schema
// before any attempt to unmarshal into a WorkOrder, so a malformed
// document produces one coherent validation error rather than a
// zero-valued struct silently passing later checks.
func validateDocumentShape(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("work order is not valid JSON: %w", err)
	}
	if err := compiledDocumentSchema.Validate(doc); err != nil {
		return fmt.Errorf("work order does not match schema: %w", err)
	}
	return nil
}
