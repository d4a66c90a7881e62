package object

import (
	"bytes"
	"reflect"

	"github.com/ugorji/go/codec"
)

// jsonHandle is shared by every encoder and decoder so that an object
// decoded from the store re-encodes to the exact bytes it was hashed from.
var jsonHandle = newJSONHandle()

func newJSONHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	jh.MapType = reflect.TypeOf(map[string]interface{}(nil))
	jh.SignedInteger = true
	return jh
}

// Marshal returns the canonical JSON encoding of v: map keys are sorted.
func Marshal(v interface{}) ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, jsonHandle)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal decodes a JSON object. Nested objects decode as
// map[string]interface{}, integers as int64.
func Unmarshal(data []byte) (Object, error) {
	var m map[string]interface{}

	dec := codec.NewDecoderBytes(data, jsonHandle)
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}

	return Object(m), nil
}

// UnmarshalInto decodes data into v with the canonical handle.
func UnmarshalInto(data []byte, v interface{}) error {
	dec := codec.NewDecoderBytes(data, jsonHandle)
	return dec.Decode(v)
}
