// Package value defines the engine's value domain: the tri-state outcome of
// evaluating member code, and the capsule types that let functions and
// pending promises travel as ordinary cty values.
package value

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

var (
	// ErrInvalid marks a value that is deliberately not computable.
	ErrInvalid = errors.New("invalid value")
	// ErrPending marks a value that is not yet available.
	ErrPending = errors.New("pending value")
)

// Kind classifies a Result.
type Kind int

const (
	KindValue Kind = iota
	KindInvalid
	KindPending
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindInvalid:
		return "invalid"
	case KindPending:
		return "pending"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is what member code evaluates to.
type Result struct {
	Kind  Kind
	Value cty.Value
	Err   error
}

// Of wraps a plain value.
func Of(v cty.Value) Result { return Result{Kind: KindValue, Value: v} }

// Invalid is the invalid result.
func Invalid() Result { return Result{Kind: KindInvalid, Err: ErrInvalid} }

// Pending is the pending result.
func Pending() Result { return Result{Kind: KindPending, Err: ErrPending} }

// Failed wraps an error.
func Failed(err error) Result { return FromError(err) }

// FromError classifies err. The invalid and pending sentinels map onto their
// kinds, anything else is an error result.
func FromError(err error) Result {
	switch {
	case err == nil:
		return Of(cty.NullVal(cty.DynamicPseudoType))
	case errors.Is(err, ErrInvalid):
		return Invalid()
	case errors.Is(err, ErrPending):
		return Pending()
	default:
		return Result{Kind: KindError, Err: err}
	}
}

// Callable is the Go side of a function-valued member.
type Callable interface {
	// Name is used in error messages.
	Name() string
	Call(args []cty.Value) Result
}

type callableBox struct {
	c Callable
}

// FunctionType is the capsule type carrying a Callable.
var FunctionType = cty.Capsule("function", reflect.TypeOf(callableBox{}))

// FunctionVal wraps c as a cty value.
func FunctionVal(c Callable) cty.Value {
	return cty.CapsuleVal(FunctionType, &callableBox{c: c})
}

// AsCallable unwraps a function capsule.
func AsCallable(v cty.Value) (Callable, bool) {
	if v == cty.NilVal || !v.IsKnown() || v.IsNull() || !v.Type().Equals(FunctionType) {
		return nil, false
	}
	return v.EncapsulatedValue().(*callableBox).c, true
}

// Promise is the minimal surface the engine needs from an asynchronous value.
type Promise interface {
	ID() string
	// Then registers a callback fired once the promise settles.
	Then(func(cty.Value, error))
}

type promiseBox struct {
	p Promise
}

// PromiseType is the capsule type carrying a Promise.
var PromiseType = cty.Capsule("promise", reflect.TypeOf(promiseBox{}))

// PromiseVal wraps p as a cty value.
func PromiseVal(p Promise) cty.Value {
	return cty.CapsuleVal(PromiseType, &promiseBox{p: p})
}

// AsPromise unwraps a promise capsule.
func AsPromise(v cty.Value) (Promise, bool) {
	if v == cty.NilVal || !v.IsKnown() || v.IsNull() || !v.Type().Equals(PromiseType) {
		return nil, false
	}
	return v.EncapsulatedValue().(*promiseBox).p, true
}

// CallFunction adapts a function capsule to a cty function so user code can
// call a function-valued member by name.
func CallFunction(c Callable) function.Function {
	return function.New(&function.Spec{
		VarParam: &function.Parameter{
			Name:             "args",
			Type:             cty.DynamicPseudoType,
			AllowNull:        true,
			AllowUnknown:     true,
			AllowDynamicType: true,
		},
		Type: function.StaticReturnType(cty.DynamicPseudoType),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			res := c.Call(args)
			if res.Kind == KindValue {
				return res.Value, nil
			}
			return cty.DynamicVal, res.Err
		},
	})
}
