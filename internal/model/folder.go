// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import (
	"sync"

	"github.com/zclconf/go-cty/cty"
)

// Folder groups members. Its data is an object of its children's data and
// its state follows theirs.
type Folder struct {
	dependent

	scopeOnce sync.Once
	scope     *ScopeManager
}

// NewFolder creates a detached, empty folder.
func NewFolder(name, id string) *Folder {
	f := &Folder{}
	f.initDependent(f, TypeFolder, name, id)
	f.MustSetField(fieldChildIDMap, emptyChildMap)
	return f
}

func createFolder(m *Model, mj *MemberJSON) (Member, error) {
	f := NewFolder(mj.Name, mj.SpecialCaseIDValue)
	f.SetData(m, cty.EmptyObjectVal)
	return f, nil
}

func (f *Folder) copyMember() Member {
	cp := &Folder{}
	cp.initCopy(cp, &f.memberBase)
	return cp
}

func (f *Folder) ChildMap() *ChildMap { return childMapOf(&f.memberBase) }

func (f *Folder) LookupChild(m *Model, name string) Member {
	return lookupChild(m, f.ChildMap(), name)
}

func (f *Folder) AddChild(m *Model, child Member) error {
	if err := addChild(&f.memberBase, child); err != nil {
		return err
	}
	f.updateDependencies(m, f.ChildMap().IDs())
	f.refresh(m, child.Name(), child.Data())
	return nil
}

func (f *Folder) RemoveChild(m *Model, child Member) {
	if !removeChild(&f.memberBase, child) {
		return
	}
	f.updateDependencies(m, f.ChildMap().IDs())
	f.refresh(m, child.Name(), cty.NilVal)
}

func (f *Folder) ChildDataUpdate(m *Model, child Member) {
	if id, ok := f.ChildMap().Get(child.Name()); !ok || id != child.ID() {
		return
	}
	f.refresh(m, child.Name(), child.Data())
}

// refresh splices one child into the folder data and re-derives the state.
func (f *Folder) refresh(m *Model, name string, data cty.Value) {
	spliced := spliceObject(f.Data(), name, data)
	state, err := f.calculateDependentState(m, false)
	f.setStateAndData(m, state, spliced, err)
}

func (f *Folder) ChildFullName(m *Model, childName string) string {
	return f.FullName(m) + "." + childName
}

func (f *Folder) ScopeManager() *ScopeManager {
	f.scopeOnce.Do(func() {
		f.scope = newScopeManager(f, f, false)
	})
	return f.scope
}

func (f *Folder) Calculate(m *Model) {
	f.initializeImpactors(m)
	if f.State() == StateNone {
		state, err := f.calculateDependentState(m, false)
		f.setStateAndData(m, state, f.Data(), err)
	}
	f.ClearCalcPending()
}

func (f *Folder) UpdateDependenciesForModelChange(m *Model, updated *[]Member) {
	updateContainerDependencies(m, f, &f.dependent, updated)
}

func (f *Folder) ToJSON(m *Model) (*MemberJSON, error) {
	mj := f.jsonHeader()
	children, err := childrenJSON(m, f)
	if err != nil {
		return nil, err
	}
	mj.Children = children
	return mj, nil
}

// Shared container helpers for folders and folder functions.

func childMapOf(b *memberBase) *ChildMap {
	cm, _ := b.GetField(fieldChildIDMap).(*ChildMap)
	return cm
}

func lookupChild(m *Model, cm *ChildMap, name string) Member {
	id, ok := cm.Get(name)
	if !ok {
		return nil
	}
	return m.LookupMemberByID(id)
}

func addChild(b *memberBase, child Member) error {
	cm := childMapOf(b)
	if _, exists := cm.Get(child.Name()); exists {
		return errDuplicateName
	}
	b.MustSetField(fieldChildIDMap, cm.with(child.Name(), child.ID()))
	return nil
}

func removeChild(b *memberBase, child Member) bool {
	if child.ParentID() != b.ID() {
		return false
	}
	b.MustSetField(fieldChildIDMap, childMapOf(b).without(child.Name()))
	return true
}

// updateContainerDependencies keeps the dependency list of a container equal
// to its children and recurses into them.
func updateContainerDependencies(m *Model, p Parent, d *dependent, updated *[]Member) {
	ids := p.ChildMap().IDs()
	if !sameDependencies(d.DependsOn(), ids) {
		if mutable := m.GetMutableMember(d.ID()); mutable != nil {
			mutable.(containerMember).dependentPart().updateDependencies(m, ids)
			*updated = append(*updated, mutable)
		}
	}
	for _, id := range ids {
		if child, ok := m.LookupMemberByID(id).(Dependent); ok {
			child.UpdateDependenciesForModelChange(m, updated)
		}
	}
}

type containerMember interface {
	Member
	dependentPart() *dependent
}

func (d *dependent) dependentPart() *dependent { return d }

// spliceObject returns obj with attribute name set to v, or removed when v is
// nil.
func spliceObject(obj cty.Value, name string, v cty.Value) cty.Value {
	attrs := make(map[string]cty.Value)
	if obj != cty.NilVal && !obj.IsNull() && obj.IsKnown() && obj.Type().IsObjectType() {
		for k, av := range obj.AsValueMap() {
			attrs[k] = av
		}
	}
	if v == cty.NilVal {
		delete(attrs, name)
	} else {
		attrs[name] = v
	}
	if len(attrs) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(attrs)
}
