// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import (
	"github.com/vk/calcgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// ScopeManager resolves the free names of member code. Lookups start at the
// holder, try its children when the holder is a container, and walk up
// through the parents until the scope root, where the globals whitelist is
// consulted.
type ScopeManager struct {
	holder ScopeHolder
	// children is nil for holders without child entries.
	children Parent
	root     bool
}

func newScopeManager(holder ScopeHolder, children Parent, root bool) *ScopeManager {
	return &ScopeManager{holder: holder, children: children, root: root}
}

func (s *ScopeManager) parentScope(m *Model) *ScopeManager {
	if s.root {
		return nil
	}
	member, ok := s.holder.(Member)
	if !ok {
		return nil
	}
	sh, ok := m.LookupObjectByID(member.ParentID()).(ScopeHolder)
	if !ok {
		return nil
	}
	return sh.ScopeManager()
}

// GetValue resolves a base name to a value.
func (s *ScopeManager) GetValue(m *Model, name string) (cty.Value, bool) {
	if v, ok := s.lookupValue(m, name); ok {
		return v, true
	}
	if parent := s.parentScope(m); parent != nil {
		return parent.GetValue(m, name)
	}
	if !s.root {
		panic("scope chain has no root")
	}
	return cty.NilVal, false
}

func (s *ScopeManager) lookupValue(m *Model, name string) (cty.Value, bool) {
	if s.children != nil {
		if child := s.children.LookupChild(m, name); child != nil {
			v := child.Data()
			if v == cty.NilVal {
				v = cty.NullVal(cty.DynamicPseudoType)
			}
			return v, true
		}
	}
	if s.root {
		return m.env.globals().ModelGlobal(name)
	}
	return cty.NilVal, false
}

// GetMember resolves a name path to the deepest member it names.
func (s *ScopeManager) GetMember(m *Model, path []string) Member {
	member, _ := s.getMember(m, path)
	return member
}

func (s *ScopeManager) getMember(m *Model, path []string) (Member, int) {
	if member, depth := s.lookupMember(m, path, 0); member != nil {
		return member, depth
	}
	if parent := s.parentScope(m); parent != nil {
		return parent.getMember(m, path)
	}
	return nil, 0
}

// lookupMember returns the member found for path[index:] and how many path
// elements were consumed in total.
func (s *ScopeManager) lookupMember(m *Model, path []string, index int) (Member, int) {
	if s.children == nil || index >= len(path) {
		return nil, 0
	}
	child := s.children.LookupChild(m, path[index])
	if child == nil {
		return nil, 0
	}
	if holder, ok := child.(ScopeHolder); ok {
		if deeper, depth := holder.ScopeManager().lookupMember(m, path, index+1); deeper != nil {
			return deeper, depth
		}
	}
	return child, index + 1
}

// GetFunction resolves a called name path. A member is callable when the
// whole path names it and its data is a function. Otherwise a single name
// falls back to the globals whitelist.
func (s *ScopeManager) GetFunction(m *Model, path []string) (function.Function, bool) {
	member, depth := s.getMember(m, path)
	if member != nil {
		if depth != len(path) {
			return function.Function{}, false
		}
		c, ok := value.AsCallable(member.Data())
		if !ok {
			return function.Function{}, false
		}
		return value.CallFunction(c), true
	}
	if len(path) == 1 {
		return m.env.globals().ModelFunction(path[0])
	}
	return function.Function{}, false
}

// codeLookup adapts a scope to the compiler's Lookup for one member.
type codeLookup struct {
	m      *Model
	member Member
	scope  *ScopeManager
}

func (l codeLookup) LookupValue(name string) (cty.Value, bool) {
	return l.scope.GetValue(l.m, name)
}

func (l codeLookup) LookupFunction(path []string) (function.Function, bool) {
	if len(path) == 1 {
		if fn, ok := messengerFunction(l.m, l.member, path[0]); ok {
			return fn, true
		}
	}
	return l.scope.GetFunction(l.m, path)
}
