package codecompiler

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// lazyExpr is an expression with its conditionals lifted out into
// placeholders. A lifted conditional evaluates its condition first and then
// only the branch it selects, so recursive function members reach their base
// case. Conditionals under a for or splat expression stay in place, since
// they read the iteration symbols.
type lazyExpr struct {
	expr  hclsyntax.Expression
	conds []*lazyCond
}

type lazyCond struct {
	name      string
	src       *hclsyntax.ConditionalExpr
	cond      *lazyExpr
	then, els *lazyExpr
}

// newLazyExpr lifts the conditionals of expr. The parsed expression is not
// modified. seq numbers the placeholders.
func newLazyExpr(expr hclsyntax.Expression, seq *int) *lazyExpr {
	le := &lazyExpr{}
	le.expr = le.lift(expr, seq)
	return le
}

func (le *lazyExpr) lift(expr hclsyntax.Expression, seq *int) hclsyntax.Expression {
	switch e := expr.(type) {
	case *hclsyntax.ConditionalExpr:
		// The '#' keeps placeholders out of the identifier space of member code.
		name := fmt.Sprintf("cond#%d", *seq)
		*seq++
		le.conds = append(le.conds, &lazyCond{
			name: name,
			src:  e,
			cond: newLazyExpr(e.Condition, seq),
			then: newLazyExpr(e.TrueResult, seq),
			els:  newLazyExpr(e.FalseResult, seq),
		})
		return &hclsyntax.ScopeTraversalExpr{
			Traversal: hcl.Traversal{hcl.TraverseRoot{Name: name, SrcRange: e.SrcRange}},
			SrcRange:  e.SrcRange,
		}
	case *hclsyntax.ParenthesesExpr:
		cp := *e
		cp.Expression = le.lift(e.Expression, seq)
		return &cp
	case *hclsyntax.BinaryOpExpr:
		cp := *e
		cp.LHS = le.lift(e.LHS, seq)
		cp.RHS = le.lift(e.RHS, seq)
		return &cp
	case *hclsyntax.UnaryOpExpr:
		cp := *e
		cp.Val = le.lift(e.Val, seq)
		return &cp
	case *hclsyntax.FunctionCallExpr:
		cp := *e
		cp.Args = make([]hclsyntax.Expression, len(e.Args))
		for i, arg := range e.Args {
			cp.Args[i] = le.lift(arg, seq)
		}
		return &cp
	case *hclsyntax.IndexExpr:
		cp := *e
		cp.Collection = le.lift(e.Collection, seq)
		cp.Key = le.lift(e.Key, seq)
		return &cp
	case *hclsyntax.RelativeTraversalExpr:
		cp := *e
		cp.Source = le.lift(e.Source, seq)
		return &cp
	case *hclsyntax.SplatExpr:
		cp := *e
		cp.Source = le.lift(e.Source, seq)
		return &cp
	case *hclsyntax.ForExpr:
		cp := *e
		cp.CollExpr = le.lift(e.CollExpr, seq)
		return &cp
	case *hclsyntax.TupleConsExpr:
		cp := *e
		cp.Exprs = make([]hclsyntax.Expression, len(e.Exprs))
		for i, item := range e.Exprs {
			cp.Exprs[i] = le.lift(item, seq)
		}
		return &cp
	case *hclsyntax.ObjectConsExpr:
		cp := *e
		cp.Items = make([]hclsyntax.ObjectConsItem, len(e.Items))
		for i, item := range e.Items {
			cp.Items[i] = hclsyntax.ObjectConsItem{
				KeyExpr:   item.KeyExpr,
				ValueExpr: le.lift(item.ValueExpr, seq),
			}
		}
		return &cp
	case *hclsyntax.TemplateExpr:
		cp := *e
		cp.Parts = make([]hclsyntax.Expression, len(e.Parts))
		for i, part := range e.Parts {
			cp.Parts[i] = le.lift(part, seq)
		}
		return &cp
	case *hclsyntax.TemplateWrapExpr:
		cp := *e
		cp.Wrapped = le.lift(e.Wrapped, seq)
		return &cp
	}
	return expr
}

// Value evaluates the lifted conditionals in order, then the expression in a
// child context holding their results.
func (le *lazyExpr) Value(ctx *hcl.EvalContext) (cty.Value, hcl.Diagnostics) {
	if len(le.conds) == 0 {
		return le.expr.Value(ctx)
	}
	child := ctx.NewChild()
	child.Variables = make(map[string]cty.Value, len(le.conds))
	for _, c := range le.conds {
		v, diags := c.Value(ctx)
		if diags.HasErrors() {
			return cty.DynamicVal, diags
		}
		child.Variables[c.name] = v
	}
	return le.expr.Value(child)
}

func (c *lazyCond) Value(ctx *hcl.EvalContext) (cty.Value, hcl.Diagnostics) {
	cond, diags := c.cond.Value(ctx)
	if diags.HasErrors() {
		return cty.DynamicVal, diags
	}
	rng := c.src.Condition.Range()
	if cond.IsNull() {
		return cty.DynamicVal, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Null condition",
			Detail:   "The condition value is null. Conditions must either be true or false.",
			Subject:  &rng,
		}}
	}
	if !cond.IsKnown() {
		return cty.DynamicVal, nil
	}
	b, err := convert.Convert(cond, cty.Bool)
	if err != nil {
		return cty.DynamicVal, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Incorrect condition type",
			Detail:   fmt.Sprintf("The condition expression must be of type bool: %s.", err),
			Subject:  &rng,
		}}
	}
	if b.True() {
		return c.then.Value(ctx)
	}
	return c.els.Value(ctx)
}
