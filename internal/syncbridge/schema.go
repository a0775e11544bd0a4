package syncbridge

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const recordSchemaURL = "tabgroupsync://record.json"

const recordSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["kind", "guid", "position"],
  "properties": {
    "kind": {"enum": ["group", "tab"]},
    "guid": {"$ref": "#/$defs/uuid"},
    "group_guid": {"$ref": "#/$defs/uuid"},
    "deleted": {"type": "boolean"},
    "title": {"type": "string", "maxLength": 4096},
    "color": {"enum": ["", "grey", "blue", "red", "yellow", "green", "pink", "purple", "cyan", "orange"]},
    "url": {"type": "string", "maxLength": 2097152},
    "position": {"type": "integer", "minimum": 0},
    "pinned": {"type": "boolean"},
    "creator_cache_guid": {"type": "string"},
    "updater_cache_guid": {"type": "string"},
    "creation_time": {"type": "string"},
    "update_time": {"type": "string"},
    "writer": {"type": "string"}
  },
  "allOf": [
    {
      "if": {"properties": {"kind": {"const": "tab"}}},
      "then": {"required": ["group_guid"]}
    }
  ],
  "$defs": {
    "uuid": {
      "type": "string",
      "pattern": "^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$"
    }
  }
}`

// validator checks raw record JSON before it is decoded.
type validator struct {
	schema *jsonschema.Schema
}

func newValidator() (*validator, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(recordSchema))
	if err != nil {
		return nil, fmt.Errorf("parse record schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(recordSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add record schema: %w", err)
	}
	sch, err := c.Compile(recordSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile record schema: %w", err)
	}
	return &validator{schema: sch}, nil
}

func (v *validator) validate(data []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := v.schema.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return nil
}
