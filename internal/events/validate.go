package events

import (
	"bytes"
	_ "embed"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

const envelopeSchemaURL = "https://notifier.local/envelope.schema.json"

//go:embed schema/envelope.schema.json
var envelopeSchema []byte

// Validator checks unwrapped events against the envelope JSON schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded envelope schema.
func NewValidator() (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(envelopeSchema))
	if err != nil {
		return nil, errors.Wrap(err, "parse envelope schema")
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(envelopeSchemaURL, doc); err != nil {
		return nil, errors.Wrap(err, "add envelope schema")
	}
	sch, err := c.Compile(envelopeSchemaURL)
	if err != nil {
		return nil, errors.Wrap(err, "compile envelope schema")
	}
	return &Validator{schema: sch}, nil
}

// Validate unwraps raw and checks the event it carries.
func (v *Validator) Validate(raw []byte) error {
	inner, err := Unwrap(raw)
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(inner))
	if err != nil {
		return errors.Wrap(ErrInvalidEnvelope, err.Error())
	}
	if err := v.schema.Validate(inst); err != nil {
		return errors.Wrap(ErrInvalidEnvelope, err.Error())
	}
	return nil
}
