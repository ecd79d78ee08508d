package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/AnTengye/contractledger/model"
)

const payloadSchema = `{
  "type": "object",
  "required": ["app_name"],
  "properties": {
    "app_name": {"type": "string", "minLength": 1},
    "category": {"type": ["string", "null"]},
    "renewal_date": {"type": ["string", "null"]},
    "review_date": {"type": ["string", "null"]},
    "contract_url": {"type": ["string", "null"]},
    "notes": {"type": ["string", "null"]},
    "contact_details": {"type": ["string", "object", "null"]},
    "overall_total_cost": {"type": ["number", "string", "null"]},
    "overall_total_value": {"type": ["number", "string", "null"]},
    "services": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string"},
          "license_type": {"type": ["string", "null"]},
          "pricing_model": {"type": ["string", "null"]},
          "cost_per_user": {"type": ["number", "string", "null"]},
          "cost_per_license": {"type": ["number", "string", "null"]},
          "number_of_licenses": {"type": ["number", "string", "null"]},
          "total_cost": {"type": ["number", "string", "null"]}
        }
      }
    }
  }
}`

// PayloadParser checks the shape of an extraction payload and decodes it for
// the Normalizer.
type PayloadParser struct {
	schema *jsonschema.Schema
}

func NewPayloadParser() (*PayloadParser, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("payload.json", strings.NewReader(payloadSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("payload.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &PayloadParser{schema: schema}, nil
}

// Parse validates data and decodes it. Numbers are kept as json.Number and
// the contact_details object is decoded as Fields in document order.
func (p *PayloadParser) Parse(data []byte) (map[string]any, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, &model.ValidationError{Reason: "payload is not valid JSON: " + err.Error()}
	}
	if err := p.schema.Validate(doc); err != nil {
		return nil, schemaError(err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, &model.ValidationError{Reason: "payload is not a JSON object"}
	}

	out := make(map[string]any, len(top))
	for key, raw := range top {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var (
			v   any
			err error
		)
		if key == "contact_details" {
			v, err = decodeOrdered(dec)
		} else {
			err = dec.Decode(&v)
		}
		if err != nil {
			return nil, &model.ValidationError{Field: key, Reason: err.Error()}
		}
		out[key] = v
	}
	return out, nil
}

// decodeOrdered decodes the next value, keeping object keys in order.
func decodeOrdered(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		fields := Fields{}
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected object key %v", kt)
			}
			v, err := decodeOrdered(dec)
			if err != nil {
				return nil, err
			}
			fields = append(fields, Field{Key: key, Value: v})
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return fields, nil
	case '[':
		arr := []any{}
		for dec.More() {
			v, err := decodeOrdered(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %v", delim)
	}
}

// schemaError converts the most specific schema violation into a ValidationError.
func schemaError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &model.ValidationError{Reason: err.Error()}
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return &model.ValidationError{Field: pointerToField(ve.InstanceLocation), Reason: ve.Message}
}

// pointerToField renders a JSON pointer such as /services/0/name as services[0].name.
func pointerToField(ptr string) string {
	var b strings.Builder
	for _, tok := range strings.Split(strings.TrimPrefix(ptr, "/"), "/") {
		if tok == "" {
			continue
		}
		if _, err := strconv.Atoi(tok); err == nil {
			b.WriteString("[" + tok + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(tok)
	}
	return b.String()
}
