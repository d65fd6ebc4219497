package value_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/calcgrid/internal/promise"
	"github.com/vk/calcgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

type addOne struct{}

func (addOne) Name() string { return "addOne" }
func (addOne) Call(args []cty.Value) value.Result {
	if len(args) != 1 {
		return value.Failed(errors.New("need one arg"))
	}
	return value.Of(args[0].Add(cty.NumberIntVal(1)))
}

func TestFromError_Classifies(t *testing.T) {
	assert.Equal(t, value.KindInvalid, value.FromError(value.ErrInvalid).Kind)
	assert.Equal(t, value.KindPending, value.FromError(fmt.Errorf("wrapped: %w", value.ErrPending)).Kind)

	res := value.FromError(errors.New("boom"))
	assert.Equal(t, value.KindError, res.Kind)
	assert.EqualError(t, res.Err, "boom")
}

func TestFunctionCapsule(t *testing.T) {
	fv := value.FunctionVal(addOne{})
	c, ok := value.AsCallable(fv)
	require.True(t, ok)
	assert.Equal(t, "addOne", c.Name())

	_, ok = value.AsCallable(cty.StringVal("nope"))
	assert.False(t, ok)

	fn := value.CallFunction(c)
	out, err := fn.Call([]cty.Value{cty.NumberIntVal(3)})
	require.NoError(t, err)
	assert.True(t, out.RawEquals(cty.NumberIntVal(4)))
}

func TestJSON(t *testing.T) {
	v, err := value.FromJSON([]byte(`{"a":[1,2],"b":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "x", v.GetAttr("b").AsString())

	raw, err := value.ToJSON(cty.NumberIntVal(7))
	require.NoError(t, err)
	assert.JSONEq(t, `7`, string(raw))

	raw, err = value.ToJSON(cty.NilVal)
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))

	_, err = value.ToJSON(value.FunctionVal(addOne{}))
	assert.ErrorIs(t, err, value.ErrNoJSONForm)
}

func TestToJSON_RejectsNestedCapsules(t *testing.T) {
	fn := value.FunctionVal(addOne{})
	tests := []struct {
		name string
		v    cty.Value
	}{
		{"promise", value.PromiseVal(promise.New())},
		{"object attribute", cty.ObjectVal(map[string]cty.Value{"n": cty.NumberIntVal(1), "f": fn})},
		{"tuple element", cty.TupleVal([]cty.Value{cty.StringVal("a"), fn})},
		{"deep", cty.ObjectVal(map[string]cty.Value{
			"inner": cty.ObjectVal(map[string]cty.Value{"f": fn}),
		})},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := value.ToJSON(tc.v)
			assert.ErrorIs(t, err, value.ErrNoJSONForm)
			assert.Nil(t, raw)
		})
	}

	raw, err := value.ToJSON(cty.ObjectVal(map[string]cty.Value{
		"n":    cty.NumberIntVal(1),
		"none": cty.NullVal(value.FunctionType),
	}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1,"none":null}`, string(raw))
}

func TestFromGo(t *testing.T) {
	v, err := value.FromGo(map[string]any{"n": 1.5, "s": "t"})
	require.NoError(t, err)
	assert.Equal(t, "t", v.GetAttr("s").AsString())

	v, err = value.FromGo("plain")
	require.NoError(t, err)
	assert.True(t, v.RawEquals(cty.StringVal("plain")))

	v, err = value.FromGo(nil)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestEqual(t *testing.T) {
	assert.True(t, value.Equal(cty.NumberIntVal(1), cty.NumberIntVal(1)))
	assert.False(t, value.Equal(cty.NumberIntVal(1), cty.StringVal("1")))
	assert.True(t, value.Equal(cty.NullVal(cty.String), cty.NullVal(cty.Number)))
	assert.True(t, value.Equal(cty.NilVal, cty.NilVal))
}
