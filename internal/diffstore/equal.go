package diffstore

import (
	"bytes"
	"encoding/json"

	"github.com/google/go-cmp/cmp"
)

// Decode parses raw JSON into a generic tree, using json.Number so large
// integers and exact decimals survive the round trip unlike the default
// float64 decode target.
func Decode(data json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// numberComparer compares json.Number values by numeric value when
// possible, falling back to their literal text — this is what makes
// jsonEqual treat `1.50` and `1.5` as equal while still being exact for
// values too large for float64.
var numberComparer = cmp.Comparer(func(a, b json.Number) bool {
	af, aerr := a.Float64()
	bf, berr := b.Float64()
	if aerr == nil && berr == nil {
		return af == bf
	}
	return a.String() == b.String()
})

// Equal reports whether two decoded JSON trees are structurally equal:
// objects compared by key set and per-key value, arrays positionally,
// numbers by value — reflexive, symmetric and transitive because it
// delegates to cmp.Equal.
func Equal(a, b any) bool {
	return cmp.Equal(a, b, numberComparer)
}

// jsonEqual decodes two raw JSON documents and compares them structurally.
// Malformed input compares unequal rather than panicking; callers that
// need to surface bad_json do so before reaching here.
func jsonEqual(a, b json.RawMessage) bool {
	av, aerr := Decode(a)
	bv, berr := Decode(b)
	if aerr != nil || berr != nil {
		return false
	}
	return Equal(av, bv)
}
