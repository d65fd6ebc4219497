package codecompiler

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/calcgrid/internal/hclutil"
	"github.com/vk/calcgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// UndefinedError lists the free names no scope could resolve.
type UndefinedError struct {
	Names []string
}

func (e *UndefinedError) Error() string {
	return "Variable(s) not defined: " + strings.Join(e.Names, ", ")
}

// EvalError is a failure raised while evaluating member code.
type EvalError struct {
	Message string
	Range   *hcl.Range
}

func (e *EvalError) Error() string { return e.Message }

// ScopeInitializer binds every non-local name of the code through lookup.
func (ci *CompiledInfo) ScopeInitializer(lookup Lookup) (*Bindings, error) {
	if !ci.Valid {
		return nil, errors.New(ci.ErrorMsg)
	}

	b := &Bindings{
		Variables: make(map[string]cty.Value),
		Functions: make(map[string]function.Function),
	}
	missing := make(map[string]bool)

	for _, ni := range ci.VarInfo.NonLocal() {
		for _, use := range ni.Uses {
			if use.IsCall {
				key := strings.Join(use.Path, "::")
				if _, done := b.Functions[key]; done {
					continue
				}
				fn, ok := lookup.LookupFunction(use.Path)
				if !ok {
					missing[key] = true
					continue
				}
				b.Functions[key] = fn
				continue
			}
			if use.IsLocal {
				continue
			}
			if _, done := b.Variables[ni.Name]; done {
				continue
			}
			v, ok := lookup.LookupValue(ni.Name)
			if !ok {
				missing[ni.Name] = true
				continue
			}
			b.Variables[ni.Name] = v
		}
	}

	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for name := range missing {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, &UndefinedError{Names: names}
	}
	return b, nil
}

// Generator closes over bindings and returns the member function.
func (ci *CompiledInfo) Generator(b *Bindings) MemberFunction {
	return func(args []cty.Value) value.Result {
		vars := make(map[string]cty.Value, len(b.Variables)+len(ci.params)+len(ci.locals))
		for k, v := range b.Variables {
			vars[k] = v
		}
		for i, p := range ci.params {
			if i < len(args) {
				vars[p] = args[i]
			} else {
				vars[p] = cty.NullVal(cty.DynamicPseudoType)
			}
		}
		ctx := &hcl.EvalContext{Variables: vars, Functions: b.Functions}

		for _, local := range ci.locals {
			v, diags := local.expr.Value(ctx)
			if diags.HasErrors() {
				return resultFromDiags(diags)
			}
			vars[local.name] = v
		}

		v, diags := ci.main.Value(ctx)
		if diags.HasErrors() {
			return resultFromDiags(diags)
		}
		if !v.IsWhollyKnown() {
			return value.Pending()
		}
		return value.Of(v)
	}
}

// resultFromDiags recovers the error a called function raised, so invalid
// and pending signals survive the trip through HCL evaluation.
func resultFromDiags(diags hcl.Diagnostics) value.Result {
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		if extra, ok := hcl.DiagnosticExtra[hclsyntax.FunctionCallDiagExtra](d); ok {
			if err := extra.FunctionCallError(); err != nil {
				return value.FromError(err)
			}
		}
	}
	d := hclutil.FirstError(diags)
	return value.Failed(&EvalError{Message: hclutil.DiagMessage(d), Range: d.Subject})
}

// String summarizes the compiled code for debugging.
func (ci *CompiledInfo) String() string {
	if !ci.Valid {
		return fmt.Sprintf("invalid: %s", ci.ErrorMsg)
	}
	return fmt.Sprintf("valid: %d free names", len(ci.VarInfo.NonLocal()))
}
