// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import (
	"errors"
	"strings"

	"github.com/vk/calcgrid/internal/codeanalysis"
)

// ErrCircularReference is the error state of every member on a reference cycle.
var ErrCircularReference = errors.New("Circular reference error")

// MemberRef identifies a member in an error.
type MemberRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DependsOnError marks a member whose inputs are in error. It is passed
// through nested calculations unchanged.
type DependsOnError struct {
	Members []MemberRef
}

func (e *DependsOnError) Error() string {
	prefix := "Error in dependencies: "
	if len(e.Members) == 1 {
		prefix = "Error in dependency: "
	}
	names := make([]string, len(e.Members))
	for i, ref := range e.Members {
		names[i] = ref.Name
	}
	return prefix + strings.Join(names, ", ")
}

func newDependsOnError(m *Model, members []Member) *DependsOnError {
	refs := make([]MemberRef, len(members))
	for i, member := range members {
		refs[i] = MemberRef{ID: member.ID(), Name: member.FullName(m)}
	}
	return &DependsOnError{Members: refs}
}

// IsDependsOnError reports whether err is, or wraps, a DependsOnError.
func IsDependsOnError(err error) bool {
	var target *DependsOnError
	return errors.As(err, &target)
}

// CompileError is the error state of a member whose code does not compile.
type CompileError struct {
	Message string
	Info    *codeanalysis.ErrorInfo
}

func (e *CompileError) Error() string { return e.Message }

// RuntimeError wraps a failure raised by member code. Trace lists the members
// whose code was running, innermost first.
type RuntimeError struct {
	Err   error
	Trace []MemberRef
}

func (e *RuntimeError) Error() string { return e.Err.Error() }

func (e *RuntimeError) Unwrap() error { return e.Err }

// Description is a one-line summary naming the outermost member.
func (e *RuntimeError) Description() string {
	if len(e.Trace) == 0 {
		return "Error in code evaluating member"
	}
	return "Error in code evaluating member: " + e.Trace[len(e.Trace)-1].Name
}

// withTrace adds member to the trace of err, wrapping it on first use. A
// member already in the trace is not repeated.
func withTrace(m *Model, err error, member Member) error {
	var rt *RuntimeError
	if errors.As(err, &rt) {
		for _, ref := range rt.Trace {
			if ref.ID == member.ID() {
				return rt
			}
		}
		rt.Trace = append(rt.Trace, MemberRef{ID: member.ID(), Name: member.FullName(m)})
		return rt
	}
	ref := MemberRef{ID: member.ID(), Name: member.FullName(m)}
	return &RuntimeError{Err: err, Trace: []MemberRef{ref}}
}

// StoredError is an error restored from a saved document.
type StoredError struct {
	Message string
}

func (e *StoredError) Error() string { return e.Message }

// errorMessage renders err for storage, never returning an empty message.
func errorMessage(err error) string {
	if err == nil {
		return "Unknown Error"
	}
	return err.Error()
}
