package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/typeexpr"
	"github.com/vk/calcgrid/internal/ctxlog"
	"github.com/vk/calcgrid/internal/hclutil"
	"github.com/zclconf/go-cty/cty"
)

// globalType parses the `type` expression of a global block, such as
// `string` or `list(object({name = string}))`. An omitted type accepts any
// value.
func globalType(ctx context.Context, expr hcl.Expression) (cty.Type, error) {
	if expr == nil {
		return cty.DynamicPseudoType, nil
	}
	// gohcl fills an omitted optional expression with a static null.
	if val, diags := expr.Value(nil); !diags.HasErrors() && val.IsNull() {
		ctxlog.FromContext(ctx).Debug("Type expression omitted, defaulting to any.")
		return cty.DynamicPseudoType, nil
	}

	typ, diags := typeexpr.TypeConstraint(expr)
	if diags.HasErrors() {
		return cty.DynamicPseudoType, fmt.Errorf("invalid type: %s", hclutil.DiagMessage(hclutil.FirstError(diags)))
	}
	ctxlog.FromContext(ctx).Debug("Parsed type expression.", "type", typ.FriendlyName())
	return typ, nil
}
