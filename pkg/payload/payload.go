// Package payload encodes the opaque bytes exchanged with spokes.
//
// Payloads are CBOR. A spoke answers either with a plain text status (for
// example "model received" or an error message) or with a map of named
// fields, and Response tells the two apart.
package payload

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

var (
	ErrEmptyPayload   = errors.New("empty payload")
	ErrUnexpectedType = errors.New("payload is neither a status nor a map")
	ErrMissingField   = errors.New("missing payload field")
)

var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}

	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}

	return dm
}

func Encode(v any) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	return data, nil
}

func Decode(data []byte, v any) error {
	if len(data) == 0 {
		return ErrEmptyPayload
	}
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}

	return nil
}

// Response is a decoded spoke answer.
type Response struct {
	status   string
	isStatus bool
	fields   map[string]cbor.RawMessage
}

func DecodeResponse(data []byte) (Response, error) {
	var v any
	if err := Decode(data, &v); err != nil {
		return Response{}, err
	}

	switch s := v.(type) {
	case string:
		return Response{status: s, isStatus: true}, nil
	case map[string]any:
		fields := make(map[string]cbor.RawMessage, len(s))
		if err := Decode(data, &fields); err != nil {
			return Response{}, err
		}

		return Response{fields: fields}, nil
	default:
		return Response{}, fmt.Errorf("%w: %T", ErrUnexpectedType, v)
	}
}

func (r Response) IsStatus() bool {
	return r.isStatus
}

func (r Response) Status() string {
	return r.status
}

// Keys returns the field names in sorted order.
func (r Response) Keys() []string {
	keys := make([]string, 0, len(r.fields))
	for k := range r.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

func (r Response) Has(key string) bool {
	_, ok := r.fields[key]

	return ok
}

// Field decodes the named field into v.
func (r Response) Field(key string, v any) error {
	raw, ok := r.fields[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	if err := decMode.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode field %s: %w", key, err)
	}

	return nil
}
