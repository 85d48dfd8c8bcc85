// Package demo holds the strmprivacy/demo event contract used by examples
// and integration tests.
package demo

import (
	"github.com/goliatone/go-strm/core"
	"github.com/goliatone/go-strm/schema"
)

const SchemaRef = "strmprivacy/demo/1.0.2"

const SchemaDefinition = `{
    "type": "record",
    "name": "DemoEvent",
    "namespace": "io.strmprivacy.schemas.demo.v1",
    "fields": [
        {
            "name": "strmMeta",
            "type": {
                "type": "record",
                "name": "StrmMeta",
                "fields": [
                    {"name": "eventContractRef", "type": "string"},
                    {"name": "nonce", "type": ["null", "int"], "default": null},
                    {"name": "timestamp", "type": ["null", "long"], "default": null},
                    {"name": "keyLink", "type": ["null", "string"], "default": null},
                    {"name": "billingId", "type": ["null", "string"], "default": null},
                    {"name": "consentLevels", "type": {"type": "array", "items": "int"}}
                ]
            }
        },
        {"name": "uniqueIdentifier", "type": ["null", "string"], "default": null},
        {"name": "consistentValue", "type": "string"},
        {"name": "someSensitiveValue", "type": ["null", "string"], "default": null},
        {"name": "notSensitiveValue", "type": ["null", "string"], "default": null}
    ]
}`

type StrmMeta struct {
	EventContractRef string  `avro:"eventContractRef" json:"eventContractRef"`
	Nonce            *int32  `avro:"nonce" json:"nonce,omitempty"`
	Timestamp        *int64  `avro:"timestamp" json:"timestamp,omitempty"`
	KeyLink          *string `avro:"keyLink" json:"keyLink,omitempty"`
	BillingID        *string `avro:"billingId" json:"billingId,omitempty"`
	ConsentLevels    []int32 `avro:"consentLevels" json:"consentLevels"`
}

type DemoEvent struct {
	StrmMeta           StrmMeta `avro:"strmMeta" json:"strmMeta"`
	UniqueIdentifier   *string  `avro:"uniqueIdentifier" json:"uniqueIdentifier,omitempty"`
	ConsistentValue    string   `avro:"consistentValue" json:"consistentValue"`
	SomeSensitiveValue *string  `avro:"someSensitiveValue" json:"someSensitiveValue,omitempty"`
	NotSensitiveValue  *string  `avro:"notSensitiveValue" json:"notSensitiveValue,omitempty"`
}

func (DemoEvent) SchemaRef() string {
	return SchemaRef
}

func (DemoEvent) SchemaDefinition() string {
	return SchemaDefinition
}

func (e DemoEvent) Encode() ([]byte, error) {
	if e.StrmMeta.ConsentLevels == nil {
		e.StrmMeta.ConsentLevels = []int32{}
	}
	return schema.Encode(SchemaDefinition, e)
}

func Decode(data []byte) (DemoEvent, error) {
	return schema.Decode[DemoEvent](SchemaDefinition, data)
}

func String(value string) *string {
	return &value
}

var _ core.Envelope = DemoEvent{}
