package crypto

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CanonicalJSON renders v as JSON with lexicographically sorted object keys
// and no insignificant whitespace. Two structurally equal values always
// produce identical bytes, which is what makes content hashes stable across
// encode/decode round trips.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal for canonicalization: %w", err)
	}
	// Round-trip through any: encoding/json sorts map keys on output, which
	// normalizes field order regardless of the input type's declaration order.
	var intermediate any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber() // keep numbers verbatim, avoid float drift
	if err := dec.Decode(&intermediate); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	canonical, err := json.Marshal(intermediate)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return canonical, nil
}
