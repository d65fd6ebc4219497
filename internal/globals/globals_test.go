package globals_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/calcgrid/internal/globals"
	"github.com/vk/calcgrid/internal/promise"
	"github.com/vk/calcgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

func TestDefault_ProvidesStdlib(t *testing.T) {
	r := globals.Default()

	fn, ok := r.ModelFunction("upper")
	require.True(t, ok)
	out, err := fn.Call([]cty.Value{cty.StringVal("abc")})
	require.NoError(t, err)
	assert.Equal(t, "ABC", out.AsString())

	_, ok = r.ModelFunction("file")
	assert.False(t, ok, "host file access is never whitelisted")
	assert.Contains(t, r.FunctionNames(), "jsonencode")
}

func TestRegisterValue(t *testing.T) {
	r := globals.New()
	r.RegisterValue("answer", cty.NumberIntVal(42))

	v, ok := r.ModelGlobal("answer")
	require.True(t, ok)
	assert.True(t, v.RawEquals(cty.NumberIntVal(42)))

	_, ok = r.ModelGlobal("missing")
	assert.False(t, ok)
}

func TestSeal(t *testing.T) {
	r := globals.New()
	r.Seal()
	assert.Panics(t, func() { r.RegisterValue("late", cty.True) })
}

func TestDelay_ResolvesAfterWait(t *testing.T) {
	fn, ok := globals.Default().ModelFunction("delay")
	require.True(t, ok)

	out, err := fn.Call([]cty.Value{cty.StringVal("done"), cty.NumberIntVal(5)})
	require.NoError(t, err)
	p, ok := value.AsPromise(out)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := p.(*promise.Promise).Result(ctx)
	require.NoError(t, err)
	assert.Equal(t, "done", got.AsString())
}

func TestDelay_RejectsBadWait(t *testing.T) {
	for _, ms := range []int64{-1, globals.MaxDelay.Milliseconds() + 1} {
		_, err := globals.DelayFunc.Call([]cty.Value{cty.True, cty.NumberIntVal(ms)})
		assert.ErrorContains(t, err, "delay must be between 0 and", "ms=%d", ms)
	}
}
