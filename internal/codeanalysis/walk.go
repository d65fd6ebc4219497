package codeanalysis

import (
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/calcgrid/internal/hclutil"
)

type walker struct {
	info      VarInfo
	funcScope map[string]bool
	blocks    []map[string]bool
	diag      *hcl.Diagnostic
}

func newWalker(params []string) *walker {
	w := &walker{
		info:      make(VarInfo),
		funcScope: make(map[string]bool, len(params)),
	}
	for _, p := range params {
		w.funcScope[p] = true
	}
	return w
}

func (w *walker) isLocal(name string) bool {
	for i := len(w.blocks) - 1; i >= 0; i-- {
		if w.blocks[i][name] {
			return true
		}
	}
	return w.funcScope[name]
}

func (w *walker) use(path []string, isCall bool, rng hcl.Range) {
	if len(path) == 0 {
		return
	}
	name := path[0]
	local := !isCall && w.isLocal(name)
	ni, ok := w.info[name]
	if !ok {
		ni = &NameInfo{Name: name, IsLocal: true}
		w.info[name] = ni
	}
	ni.Uses = append(ni.Uses, Use{Path: path, IsLocal: local, IsCall: isCall, Range: rng})
	ni.IsLocal = ni.IsLocal && local
}

// walk visits expr, recording free names. It stops at the first forbidden
// construct, leaving it in w.diag.
func (w *walker) walk(expr hclsyntax.Expression) {
	if expr == nil || w.diag != nil {
		return
	}
	switch e := expr.(type) {
	case *hclsyntax.LiteralValueExpr, *hclsyntax.AnonSymbolExpr:
	case *hclsyntax.ScopeTraversalExpr:
		w.use(hclutil.NamePath(e.Traversal), false, e.SrcRange)
	case *hclsyntax.RelativeTraversalExpr:
		w.walk(e.Source)
	case *hclsyntax.IndexExpr:
		w.walk(e.Collection)
		w.walk(e.Key)
	case *hclsyntax.SplatExpr:
		w.walk(e.Source)
		w.walk(e.Each)
	case *hclsyntax.FunctionCallExpr:
		if msg, bad := forbiddenFunctions[e.Name]; bad {
			w.diag = &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Forbidden function call",
				Detail:   msg,
				Subject:  e.NameRange.Ptr(),
			}
			return
		}
		w.use(strings.Split(e.Name, "::"), true, e.NameRange)
		for _, arg := range e.Args {
			w.walk(arg)
		}
	case *hclsyntax.ForExpr:
		w.walk(e.CollExpr)
		scope := map[string]bool{e.ValVar: true}
		if e.KeyVar != "" {
			scope[e.KeyVar] = true
		}
		w.blocks = append(w.blocks, scope)
		w.walk(e.KeyExpr)
		w.walk(e.ValExpr)
		w.walk(e.CondExpr)
		w.blocks = w.blocks[:len(w.blocks)-1]
	case *hclsyntax.BinaryOpExpr:
		w.walk(e.LHS)
		w.walk(e.RHS)
	case *hclsyntax.UnaryOpExpr:
		w.walk(e.Val)
	case *hclsyntax.ConditionalExpr:
		w.walk(e.Condition)
		w.walk(e.TrueResult)
		w.walk(e.FalseResult)
	case *hclsyntax.ParenthesesExpr:
		w.walk(e.Expression)
	case *hclsyntax.TemplateExpr:
		for _, part := range e.Parts {
			w.walk(part)
		}
	case *hclsyntax.TemplateWrapExpr:
		w.walk(e.Wrapped)
	case *hclsyntax.TemplateJoinExpr:
		w.walk(e.Tuple)
	case *hclsyntax.TupleConsExpr:
		for _, item := range e.Exprs {
			w.walk(item)
		}
	case *hclsyntax.ObjectConsExpr:
		for _, item := range e.Items {
			w.walk(item.KeyExpr)
			w.walk(item.ValueExpr)
		}
	case *hclsyntax.ObjectConsKeyExpr:
		// A bare identifier key is a literal attribute name, not a reference.
		if !e.ForceNonLiteral && hcl.ExprAsKeyword(e.Wrapped) != "" {
			return
		}
		w.walk(e.Wrapped)
	default:
		for _, t := range expr.Variables() {
			w.use(hclutil.NamePath(t), false, t.SourceRange())
		}
	}
}
