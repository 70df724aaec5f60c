package reconcile

import (
	"bytes"
	"encoding/json"
	"math/big"

	"github.com/hrygo/prefsense/plugin/preference/catalog"
)

// Equal reports whether two JSON documents are structurally equal.
//
// Object key order and insignificant whitespace are ignored. Two absent
// values are equal; an absent value never equals a present one, including
// a present null.
func Equal(a, b json.RawMessage) bool {
	a, b = bytes.TrimSpace(a), bytes.TrimSpace(b)
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}

	va, errA := catalog.DecodeJSON(a)
	vb, errB := catalog.DecodeJSON(b)
	if errA != nil || errB != nil {
		// Not both decodable: only byte-identical input counts as equal.
		return errA != nil && errB != nil && bytes.Equal(a, b)
	}
	return equalValues(va, vb)
}

// equalValues compares decoded values. Numbers compare exactly by value,
// so 72 equals 72.0 and integers beyond float64 precision stay distinct.
func equalValues(a, b any) bool {
	switch va := a.(type) {
	case nil:
		return b == nil
	case bool:
		vb, ok := b.(bool)
		return ok && va == vb
	case string:
		vb, ok := b.(string)
		return ok && va == vb
	case json.Number:
		vb, ok := b.(json.Number)
		if !ok {
			return false
		}
		ra, okA := new(big.Rat).SetString(va.String())
		rb, okB := new(big.Rat).SetString(vb.String())
		if !okA || !okB {
			return va == vb
		}
		return ra.Cmp(rb) == 0
	case []any:
		vb, ok := b.([]any)
		if !ok || len(va) != len(vb) {
			return false
		}
		for i := range va {
			if !equalValues(va[i], vb[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		vb, ok := b.(map[string]any)
		if !ok || len(va) != len(vb) {
			return false
		}
		for k, x := range va {
			y, found := vb[k]
			if !found || !equalValues(x, y) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// isPresent reports whether raw carries a non-null value.
func isPresent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func clone(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
