// Package codec provides the single canonical binary encoding used for both
// wire frames and hash preimages. Two nodes encoding the same structure must
// produce identical bytes, so every serialisation in the protocol goes
// through this package.
package codec

import (
	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	// Core deterministic encoding: sorted map keys, shortest integer forms,
	// shortest float forms. Identical structures encode to identical bytes
	// regardless of platform or insertion order.
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic("codec: init canonical encoder: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 1 << 20,
		MaxMapPairs:      1 << 20,
	}.DecMode()
	if err != nil {
		panic("codec: init decoder: " + err.Error())
	}
}

// Marshal encodes v with the canonical encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes canonical-encoded data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
