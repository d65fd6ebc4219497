package promise_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/calcgrid/internal/promise"
	"github.com/vk/calcgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

func TestPromise_ResolveFiresCallbacksInOrder(t *testing.T) {
	p := promise.New()
	var order []int
	p.Then(func(v cty.Value, err error) { order = append(order, 1) })
	p.Then(func(v cty.Value, err error) { order = append(order, 2) })

	require.NoError(t, p.Resolve(cty.StringVal("ok")))
	assert.Equal(t, []int{1, 2}, order)

	// Late registration runs immediately.
	var got cty.Value
	p.Then(func(v cty.Value, err error) { got = v })
	assert.Equal(t, "ok", got.AsString())
}

func TestPromise_SettlesOnce(t *testing.T) {
	p := promise.New()
	require.NoError(t, p.Reject(errors.New("nope")))
	assert.ErrorIs(t, p.Resolve(cty.True), promise.ErrAlreadySettled)

	_, err := p.Result(context.Background())
	assert.EqualError(t, err, "nope")
}

func TestGo_ResolvesAsynchronously(t *testing.T) {
	release := make(chan struct{})
	p := promise.Go(context.Background(), func(ctx context.Context) (cty.Value, error) {
		<-release
		return cty.NumberIntVal(9), nil
	})

	select {
	case <-p.Done():
		t.Fatal("promise settled before release")
	default:
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := p.Result(ctx)
	require.NoError(t, err)
	assert.True(t, v.RawEquals(cty.NumberIntVal(9)))
}

func TestPromise_AsCapsule(t *testing.T) {
	p := promise.New()
	v := value.PromiseVal(p)
	got, ok := value.AsPromise(v)
	require.True(t, ok)
	assert.Equal(t, p.ID(), got.ID())
}
