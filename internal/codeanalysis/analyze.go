package codeanalysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/calcgrid/internal/hclutil"
)

const errorType = "parseError"

// forbiddenFunctions construct code from strings at run time.
var forbiddenFunctions = map[string]string{
	"templatestring": "Constructing templates from strings is not allowed!",
	"templatefile":   "Loading templates from files is not allowed!",
}

// Analyze parses src, the combined member source, and collects its free
// names. mainName is the attribute holding the body; params are in scope for
// every attribute.
func Analyze(src []byte, params []string, mainName string) *Result {
	file, diags := hclsyntax.ParseConfig(src, mainName+".hcl", hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return failure(src, diags)
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return failure(src, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Unexpected body type",
		}})
	}
	if len(body.Blocks) > 0 {
		block := body.Blocks[0]
		return failure(src, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Blocks are not allowed in member code",
			Detail:   fmt.Sprintf("Found block %q.", block.Type),
			Subject:  block.TypeRange.Ptr(),
		}})
	}

	attrs := make([]*hclsyntax.Attribute, 0, len(body.Attributes))
	for _, attr := range body.Attributes {
		attrs = append(attrs, attr)
	}
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].SrcRange.Start.Byte < attrs[j].SrcRange.Start.Byte
	})

	w := newWalker(params)
	prog := &Program{Params: params, MainName: mainName}
	for _, attr := range attrs {
		w.walk(attr.Expr)
		if w.diag != nil {
			return failure(src, hcl.Diagnostics{w.diag})
		}
		if attr.Name == mainName {
			prog.Main = attr.Expr
			continue
		}
		// Declared after its own expression, so a self reference is free.
		w.funcScope[attr.Name] = true
		prog.Locals = append(prog.Locals, Local{Name: attr.Name, Expr: attr.Expr})
	}
	if prog.Main == nil {
		return failure(src, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Missing member body",
			Detail:   fmt.Sprintf("Attribute %q not found.", mainName),
		}})
	}

	return &Result{Success: true, VarInfo: w.info, Program: prog}
}

func failure(src []byte, diags hcl.Diagnostics) *Result {
	info := &ErrorInfo{Type: errorType, Code: string(src)}
	var texts []string
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		text := hclutil.DiagMessage(d)
		texts = append(texts, text)
		pos := Position{Description: text}
		if d.Subject != nil {
			pos.Line = d.Subject.Start.Line
			pos.Column = d.Subject.Start.Column
		}
		info.Errors = append(info.Errors, pos)
	}
	msg := "Error parsing user code: " + strings.Join(texts, "; ")
	info.Description = msg
	return &Result{Success: false, ErrorMsg: msg, ErrorInfo: info}
}

