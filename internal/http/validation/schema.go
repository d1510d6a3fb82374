// Package validation checks request bodies against JSON schemas before they are decoded.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// predictionRequestSchema describes the accepted shape of a prediction request.
// Unknown properties are allowed and ignored. Business rules such as non-negative
// amounts are left to the predictor.
const predictionRequestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["member_id", "balance", "last_purchase_size"],
  "properties": {
    "member_id": {"type": "string", "minLength": 1},
    "balance": {"type": "number"},
    "last_purchase_size": {"type": "number"},
    "last_purchase_date": {"type": ["string", "null"], "format": "date"}
  }
}`

const predictionRequestURL = "prediction_request.json"

// Violation describes the first schema failure found in a document.
type Violation struct {
	Field   string
	Message string
}

func (v *Violation) Error() string {
	if v.Field == "" {
		return v.Message
	}
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// ErrMalformedJSON is returned when the document is not JSON at all.
var ErrMalformedJSON = errors.New("malformed json")

// Schema is a compiled JSON schema.
type Schema struct {
	schema *jsonschema.Schema
}

// PredictionRequest compiles the prediction request schema.
func PredictionRequest() (*Schema, error) {
	return Compile(predictionRequestURL, predictionRequestSchema)
}

// MustPredictionRequest is like PredictionRequest but panics if the embedded schema does not compile.
func MustPredictionRequest() *Schema {
	s, err := PredictionRequest()
	if err != nil {
		panic(err)
	}
	return s
}

// Compile compiles raw as a draft 2020-12 schema registered under url.
func Compile(url, raw string) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true
	if err := compiler.AddResource(url, strings.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{schema: schema}, nil
}

// Validate checks data against the schema.
// It returns ErrMalformedJSON (wrapped) for unparsable input and a *Violation for schema failures.
func (s *Schema) Validate(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedJSON, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after top-level value", ErrMalformedJSON)
	}

	err := s.schema.Validate(v)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("validate: %w", err)
	}
	return toViolation(ve)
}

// toViolation reports the deepest cause, which names the offending field.
func toViolation(ve *jsonschema.ValidationError) *Violation {
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	field := strings.TrimPrefix(leaf.InstanceLocation, "/")
	if field == "" {
		field = missingProperty(leaf.Message)
	}
	return &Violation{Field: field, Message: leaf.Message}
}

// missingProperty extracts the first name from a "missing properties: 'a', 'b'" message.
func missingProperty(msg string) string {
	_, rest, ok := strings.Cut(msg, "missing properties:")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(strings.TrimSpace(rest), ",")
	return strings.Trim(strings.TrimSpace(name), "'")
}
