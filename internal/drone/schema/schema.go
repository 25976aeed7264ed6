// Package schema holds the JSON schemas of the drone helper protocol.
package schema

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type SchemaType int

const (
	SchemaTypeBatch SchemaType = iota
	SchemaTypeResponse
)

var ErrInvalidDocument = errors.New("invalid document")

type Schema struct {
	schemas map[SchemaType]*gojsonschema.Schema
}

//go:embed batch.json
var batch json.RawMessage
var batchLoader = gojsonschema.NewBytesLoader(batch)

//go:embed response.json
var response json.RawMessage
var responseLoader = gojsonschema.NewBytesLoader(response)

func New() (*Schema, error) {
	batchSchema, err := gojsonschema.NewSchema(batchLoader)
	if err != nil {
		return nil, err
	}

	responseSchema, err := gojsonschema.NewSchema(responseLoader)
	if err != nil {
		return nil, err
	}

	return &Schema{
		schemas: map[SchemaType]*gojsonschema.Schema{
			SchemaTypeBatch:    batchSchema,
			SchemaTypeResponse: responseSchema,
		},
	}, nil
}

// Validate checks a serialized document against the schema of the
// given type. Violations are reported as ErrInvalidDocument listing
// every failed constraint.
func (s *Schema) Validate(schemaType SchemaType, data []byte) error {
	schema, ok := s.schemas[schemaType]
	if !ok {
		return errors.New("schema not found")
	}

	res, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(msgs, "; "))
	}

	return nil
}
