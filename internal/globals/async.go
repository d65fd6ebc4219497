package globals

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/calcgrid/internal/promise"
	"github.com/vk/calcgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/gocty"
)

// MaxDelay caps the wait of the delay function.
const MaxDelay = time.Hour

// DelayFunc returns a promise that resolves to its first argument after the
// number of milliseconds given as the second. A member calculating to it is
// pending until then.
var DelayFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "value", Type: cty.DynamicPseudoType, AllowNull: true, AllowDynamicType: true},
		{Name: "ms", Type: cty.Number},
	},
	Type: function.StaticReturnType(value.PromiseType),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		var ms int64
		if err := gocty.FromCtyValue(args[1], &ms); err != nil {
			return cty.NilVal, function.NewArgError(1, err)
		}
		wait := time.Duration(ms) * time.Millisecond
		if ms < 0 || wait > MaxDelay {
			return cty.NilVal, function.NewArgError(1, fmt.Errorf("delay must be between 0 and %d ms", MaxDelay.Milliseconds()))
		}
		v := args[0]
		p := promise.Go(context.Background(), func(ctx context.Context) (cty.Value, error) {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-timer.C:
				return v, nil
			case <-ctx.Done():
				return cty.NilVal, ctx.Err()
			}
		})
		return value.PromiseVal(p), nil
	},
})
