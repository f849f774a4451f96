package cache

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CBOR modes shared by every cached value.
// Encoding is canonical so equal values produce equal bytes; decoding is
// bounded because cached bytes may come from another process.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

//nolint:gochecknoinits // CBOR modes must exist before the first Marshal
func init() {
	var err error

	encMode, err = cbor.EncOptions{
		Sort: cbor.SortCanonical,
		Time: cbor.TimeRFC3339,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoding mode: %v", err))
	}

	decMode, err = cbor.DecOptions{
		MaxArrayElements: 10000,
		MaxMapPairs:      10000,
		MaxNestedLevels:  16,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoding mode: %v", err))
	}
}

// Marshal serializes a value to CBOR bytes.
// Struct fields use their `cbor` tag, falling back to the `json` tag.
func Marshal[T any](v T) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cbor marshal failed: %w", err)
	}
	return data, nil
}

// Unmarshal deserializes CBOR bytes into a value of type T.
func Unmarshal[T any](data []byte) (T, error) {
	var v T
	if err := decMode.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("cbor unmarshal failed: %w", err)
	}
	return v, nil
}
