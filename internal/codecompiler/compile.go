package codecompiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vk/calcgrid/internal/codeanalysis"
	"github.com/vk/calcgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// MemberFunction evaluates member code for the given arguments.
type MemberFunction func(args []cty.Value) value.Result

// Lookup resolves the free names of member code.
type Lookup interface {
	LookupValue(name string) (cty.Value, bool)
	LookupFunction(path []string) (function.Function, bool)
}

// Bindings are the resolved free names.
type Bindings struct {
	Variables map[string]cty.Value
	Functions map[string]function.Function
}

// CompiledInfo is the outcome of Compile.
type CompiledInfo struct {
	Valid     bool
	VarInfo   codeanalysis.VarInfo
	ErrorMsg  string
	ErrorInfo *codeanalysis.ErrorInfo

	params []string
	locals []lazyLocal
	main   *lazyExpr
}

type lazyLocal struct {
	name string
	expr *lazyExpr
}

var namePattern = regexp.MustCompile(`^[a-zA-Z_][0-9a-zA-Z_]*$`)

var keywords = map[string]bool{
	"true": true, "false": true, "null": true,
	"for": true, "in": true, "if": true, "else": true,
	"endif": true, "endfor": true,
}

var reservedNames = map[string]bool{
	"data_update":          true,
	"compound_data_update": true,
}

// ValidateMemberName checks a member or argument name.
func ValidateMemberName(name string) error {
	switch {
	case keywords[name]:
		return fmt.Errorf("Illegal name: %s - HCL reserved keyword", name)
	case reservedNames[name]:
		return fmt.Errorf("Illegal name: %s - reserved name", name)
	case !namePattern.MatchString(name):
		return fmt.Errorf("Illegal name format: %s", name)
	}
	return nil
}

// Compile analyzes member code. argList names the parameters, functionBody is
// the main expression and supplementalCode holds private locals as
// name = expr attributes.
func Compile(argList []string, functionBody, supplementalCode, memberName string) *CompiledInfo {
	for _, arg := range argList {
		if err := ValidateMemberName(arg); err != nil {
			return invalid(err.Error(), nil)
		}
	}

	mainName := mainAttributeName(memberName)
	src := combinedSource(mainName, functionBody, supplementalCode)
	res := codeanalysis.Analyze([]byte(src), argList, mainName)
	if !res.Success {
		return invalid(res.ErrorMsg, res.ErrorInfo)
	}

	ci := &CompiledInfo{
		Valid:   true,
		VarInfo: res.VarInfo,
		params:  res.Program.Params,
	}
	seq := 0
	for _, local := range res.Program.Locals {
		ci.locals = append(ci.locals, lazyLocal{name: local.Name, expr: newLazyExpr(local.Expr, &seq)})
	}
	ci.main = newLazyExpr(res.Program.Main, &seq)
	return ci
}

func invalid(msg string, info *codeanalysis.ErrorInfo) *CompiledInfo {
	if info == nil {
		info = &codeanalysis.ErrorInfo{Type: "compileError", Description: msg}
	}
	return &CompiledInfo{Valid: false, ErrorMsg: msg, ErrorInfo: info}
}

func mainAttributeName(memberName string) string {
	if memberName == "" {
		return "member_main"
	}
	return memberName + "_main"
}

// NormalizeBody strips an optional leading "return" and trailing semicolon.
func NormalizeBody(body string) string {
	body = strings.TrimSpace(body)
	if rest, ok := strings.CutPrefix(body, "return "); ok {
		body = strings.TrimSpace(rest)
	}
	body = strings.TrimSpace(strings.TrimSuffix(body, ";"))
	if body == "" {
		return "null"
	}
	return body
}

func combinedSource(mainName, functionBody, supplementalCode string) string {
	var sb strings.Builder
	if strings.TrimSpace(supplementalCode) != "" {
		sb.WriteString(supplementalCode)
		sb.WriteString("\n")
	}
	sb.WriteString(mainName)
	sb.WriteString(" = (\n")
	sb.WriteString(NormalizeBody(functionBody))
	sb.WriteString("\n)\n")
	return sb.String()
}
