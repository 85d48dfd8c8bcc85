package schema

import (
	"strings"
	"sync"

	"github.com/goliatone/go-strm/core"
	"github.com/hamba/avro/v2"
)

var parsed sync.Map

// Parse returns the parsed schema for definition. Successful parses are
// cached by definition text.
func Parse(definition string) (avro.Schema, error) {
	definition = strings.TrimSpace(definition)
	if definition == "" {
		return nil, core.NewEncodingError(nil, "schema: definition is required", nil)
	}
	if cached, ok := parsed.Load(definition); ok {
		return cached.(avro.Schema), nil
	}
	schema, err := avro.Parse(definition)
	if err != nil {
		return nil, core.NewEncodingError(err, "schema: parse avro definition", nil)
	}
	actual, _ := parsed.LoadOrStore(definition, schema)
	return actual.(avro.Schema), nil
}

// Validate reports whether definition is a usable Avro schema.
func Validate(definition string) error {
	_, err := Parse(definition)
	return err
}

// Avro is an envelope that encodes value as a single Avro binary datum
// without container framing.
type Avro[T any] struct {
	ref        string
	definition string
	value      T
}

func NewAvro[T any](ref string, definition string, value T) *Avro[T] {
	return &Avro[T]{
		ref:        strings.TrimSpace(ref),
		definition: definition,
		value:      value,
	}
}

func (a *Avro[T]) SchemaRef() string {
	return a.ref
}

func (a *Avro[T]) SchemaDefinition() string {
	return a.definition
}

func (a *Avro[T]) Value() T {
	return a.value
}

func (a *Avro[T]) Encode() ([]byte, error) {
	return Encode(a.definition, a.value)
}

func Encode(definition string, value any) ([]byte, error) {
	schema, err := Parse(definition)
	if err != nil {
		return nil, err
	}
	data, err := avro.Marshal(schema, value)
	if err != nil {
		return nil, core.NewEncodingError(err, "schema: encode avro datum", map[string]any{
			"schema_type": string(schema.Type()),
		})
	}
	return data, nil
}

func Decode[T any](definition string, data []byte) (T, error) {
	var out T
	schema, err := Parse(definition)
	if err != nil {
		return out, err
	}
	if err := avro.Unmarshal(schema, data, &out); err != nil {
		return out, core.NewEncodingError(err, "schema: decode avro datum", nil)
	}
	return out, nil
}

var _ core.Envelope = (*Avro[struct{}])(nil)
