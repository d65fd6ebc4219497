// Package codeanalysis parses member code and reports every free name it
// reads.
//
// Member code is HCL native syntax. A member's source is a sequence of
// attributes: zero or more private locals followed by one main attribute
// holding the body expression.
//
//	scale = 2
//	total_main = (
//	  x * scale + length([for v in items : v if v > 0])
//	)
//
// For every base name the analyzer records the dotted path of each use and
// whether the use is local. A use is local when the name is a parameter, a
// local declared earlier in the source, or a for-expression symbol in an
// enclosing for. Traversal paths stop at the first index or splat: a.b[i].c
// records [a b] plus a separate use of i. Function calls are recorded as
// uses too, with namespaced calls split on "::".
package codeanalysis
