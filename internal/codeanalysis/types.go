package codeanalysis

import (
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
)

// Use is a single reference to a name.
type Use struct {
	Path    []string
	IsLocal bool
	IsCall  bool
	Range   hcl.Range
}

// NameInfo collects the uses of one base name.
type NameInfo struct {
	Name string
	Uses []Use
	// IsLocal is true iff every use is local.
	IsLocal bool
}

// VarInfo maps each base name to its uses.
type VarInfo map[string]*NameInfo

// NonLocal returns the uses that must be resolved outside the member, in
// name order.
func (vi VarInfo) NonLocal() []*NameInfo {
	out := make([]*NameInfo, 0, len(vi))
	for _, name := range vi.Names() {
		if ni := vi[name]; !ni.IsLocal {
			out = append(out, ni)
		}
	}
	return out
}

// Names returns the base names in sorted order.
func (vi VarInfo) Names() []string {
	names := make([]string, 0, len(vi))
	for name := range vi {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ErrorInfo describes a parse failure.
type ErrorInfo struct {
	Type        string     `json:"type"`
	Description string     `json:"description"`
	Errors      []Position `json:"errors,omitempty"`
	Code        string     `json:"code,omitempty"`
}

// Position is a 1-based source location.
type Position struct {
	Description string `json:"description,omitempty"`
	Line        int    `json:"lineNumber"`
	Column      int    `json:"column"`
}

// Local is a private local in declaration order.
type Local struct {
	Name string
	Expr hclsyntax.Expression
}

// Program is the parsed member source, ready for evaluation.
type Program struct {
	Params   []string
	Locals   []Local
	MainName string
	Main     hclsyntax.Expression
}

// Result is the analyzer outcome.
type Result struct {
	Success   bool
	VarInfo   VarInfo
	Program   *Program
	ErrorMsg  string
	ErrorInfo *ErrorInfo
}
