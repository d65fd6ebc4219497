package value

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// FromJSON decodes raw JSON into a cty value, inferring its type.
func FromJSON(raw []byte) (cty.Value, error) {
	if len(raw) == 0 {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	ty, err := ctyjson.ImpliedType(raw)
	if err != nil {
		return cty.NilVal, fmt.Errorf("infer type: %w", err)
	}
	v, err := ctyjson.Unmarshal(raw, ty)
	if err != nil {
		return cty.NilVal, fmt.Errorf("decode value: %w", err)
	}
	return v, nil
}

// ErrNoJSONForm is returned by ToJSON for values holding a function or a
// promise.
var ErrNoJSONForm = errors.New("value has no JSON form")

// ToJSON encodes v. Capsules have no JSON form and are rejected, also when
// nested in a collection or object.
func ToJSON(v cty.Value) (json.RawMessage, error) {
	if v == cty.NilVal || v.IsNull() {
		return json.RawMessage("null"), nil
	}
	if !v.IsWhollyKnown() {
		return nil, fmt.Errorf("cannot encode unknown value")
	}
	if err := rejectCapsules(v); err != nil {
		return nil, err
	}
	raw, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return raw, nil
}

func rejectCapsules(v cty.Value) error {
	return cty.Walk(v, func(_ cty.Path, el cty.Value) (bool, error) {
		if el.IsNull() || !el.Type().IsCapsuleType() {
			return true, nil
		}
		return false, fmt.Errorf("%w: %s", ErrNoJSONForm, el.Type().FriendlyName())
	})
}

// FromGo converts a plain Go value (as produced by encoding/json) to cty.
func FromGo(v any) (cty.Value, error) {
	if v == nil {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	if cv, ok := v.(cty.Value); ok {
		return cv, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return FromJSON(raw)
	}
	ty, err := gocty.ImpliedType(v)
	if err != nil {
		// Maps and slices of interface{} have no implied type; round trip
		// them through JSON instead.
		raw, jerr := json.Marshal(v)
		if jerr != nil {
			return cty.NilVal, fmt.Errorf("convert value: %w", err)
		}
		return FromJSON(raw)
	}
	return gocty.ToCtyValue(v, ty)
}

// Equal reports whether two values are equal, treating a nil value like null.
func Equal(a, b cty.Value) bool {
	if a == cty.NilVal || b == cty.NilVal {
		return a == b
	}
	if !a.IsWhollyKnown() || !b.IsWhollyKnown() {
		return false
	}
	if a.IsNull() || b.IsNull() {
		return a.IsNull() && b.IsNull()
	}
	if !a.Type().Equals(b.Type()) {
		return false
	}
	return a.RawEquals(b)
}
