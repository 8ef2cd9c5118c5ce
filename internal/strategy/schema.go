// internal/strategy/schema.go
package strategy

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/mwiater/ragbench/internal/gateway"
)

// strategySchema is the structural contract for a strategy file. Semantic
// rules (unique names, hybrid weight handling) live in Validate.
const strategySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "definitions": {
    "strategy": {
      "type": "object",
      "required": ["name", "kind", "topK"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "kind": {"type": "string", "enum": ["vector", "lexical", "bm25", "hybrid"]},
        "topK": {"type": "integer"},
        "vectorWeight": {"type": "number"},
        "bm25Weight": {"type": "number"},
        "enabled": {"type": "boolean"},
        "generate": {"type": "boolean"},
        "clientFusion": {"type": "boolean"}
      },
      "additionalProperties": false
    },
    "strategyList": {
      "type": "array",
      "items": {"$ref": "#/definitions/strategy"}
    }
  },
  "oneOf": [
    {"$ref": "#/definitions/strategyList"},
    {
      "type": "object",
      "required": ["strategies"],
      "properties": {
        "strategies": {"$ref": "#/definitions/strategyList"}
      },
      "additionalProperties": false
    }
  ]
}`

// validateSchema checks raw against the strategy file schema before decoding.
func validateSchema(raw []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(strategySchema)
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return gateway.Wrap(gateway.KindInvalidConfig, err, "strategy file is not valid JSON")
	}
	if result.Valid() {
		return nil
	}
	var details []string
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return gateway.Errorf(gateway.KindInvalidConfig, "strategy file failed schema validation: %s", strings.Join(details, "; "))
}
