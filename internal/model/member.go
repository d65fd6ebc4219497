// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import (
	"github.com/vk/calcgrid/internal/fieldobject"
	"github.com/vk/calcgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// Object is anything registered in a model: the model itself or a member.
type Object interface {
	ID() string
	IsLocked() bool
	Lock()
}

// Member is a named node of the model tree.
type Member interface {
	Object

	Name() string
	TypeName() string
	ParentID() string
	// FullName is the dotted name from the model root.
	FullName(m *Model) string

	State() State
	// Data is cty.NilVal unless the member is in the normal state (folders
	// keep their assembled data in every state).
	Data() cty.Value
	Error() error
	PendingPromiseID() string

	SetData(m *Model, v cty.Value)
	SetError(m *Model, err error)
	SetResultPending(m *Model, p value.Promise)
	SetResultInvalid(m *Model)
	ClearState()

	ToJSON(m *Model) (*MemberJSON, error)

	base() *memberBase
	copyMember() Member
	onDelete(m *Model)
}

// Parent is a member container: a folder, a folder function or the model.
type Parent interface {
	Object
	ChildMap() *ChildMap
	LookupChild(m *Model, name string) Member
	AddChild(m *Model, child Member) error
	RemoveChild(m *Model, child Member)
	ChildDataUpdate(m *Model, child Member)
	ChildFullName(m *Model, childName string) string
}

// ScopeHolder owns a scope manager for resolving names in member code.
type ScopeHolder interface {
	Object
	ScopeManager() *ScopeManager
}

const (
	fieldName           = "name"
	fieldParentID       = "parentId"
	fieldState          = "state"
	fieldData           = "data"
	fieldPendingPromise = "pendingPromise"
)

// memberBase carries the fields every member has. self is the concrete
// member that embeds it.
type memberBase struct {
	*fieldobject.FieldObject
	typeName string
	self     Member
}

func (b *memberBase) init(self Member, typeName, name, id string) {
	b.FieldObject = fieldobject.New("member", id)
	b.typeName = typeName
	b.self = self
	b.MustSetField(fieldName, name)
	b.MustSetField(fieldState, &stateInfo{state: StateNone})
}

func (b *memberBase) initCopy(self Member, src *memberBase) {
	b.FieldObject = fieldobject.NewCopy(src.FieldObject)
	b.typeName = src.typeName
	b.self = self
}

func (b *memberBase) base() *memberBase { return b }

func (b *memberBase) Name() string {
	name, _ := b.GetField(fieldName).(string)
	return name
}

func (b *memberBase) TypeName() string { return b.typeName }

func (b *memberBase) ParentID() string {
	id, _ := b.GetField(fieldParentID).(string)
	return id
}

func (b *memberBase) setParentID(id string) {
	b.MustSetField(fieldParentID, id)
}

// Parent returns the container of the member, or nil for a detached member.
func (b *memberBase) Parent(m *Model) Parent {
	pid := b.ParentID()
	if pid == "" {
		return nil
	}
	p, _ := m.LookupObjectByID(pid).(Parent)
	return p
}

func (b *memberBase) FullName(m *Model) string {
	name := b.Name()
	if m == nil {
		return name
	}
	if parent := b.Parent(m); parent != nil {
		return parent.ChildFullName(m, name)
	}
	return name
}

func (b *memberBase) stateInfo() *stateInfo {
	si, _ := b.GetField(fieldState).(*stateInfo)
	return si
}

func (b *memberBase) State() State {
	if si := b.stateInfo(); si != nil {
		return si.state
	}
	return StateNone
}

func (b *memberBase) Error() error {
	if si := b.stateInfo(); si != nil {
		return si.err
	}
	return nil
}

func (b *memberBase) Data() cty.Value {
	v, ok := b.GetField(fieldData).(cty.Value)
	if !ok {
		return cty.NilVal
	}
	return v
}

func (b *memberBase) PendingPromiseID() string {
	id, _ := b.GetField(fieldPendingPromise).(string)
	return id
}

// PendingPromiseMatches reports whether id is the token of the promise the
// member is currently waiting on.
func (b *memberBase) PendingPromiseMatches(id string) bool {
	return id != "" && b.PendingPromiseID() == id
}

func (b *memberBase) ClearState() {
	b.MustSetField(fieldState, &stateInfo{state: StateNone})
}

func (b *memberBase) SetData(m *Model, v cty.Value) {
	if v == cty.NilVal {
		v = cty.NullVal(cty.DynamicPseudoType)
	}
	b.setStateAndData(m, StateNormal, v, nil)
}

func (b *memberBase) SetError(m *Model, err error) {
	b.setStateAndData(m, StateError, cty.NilVal, err)
}

func (b *memberBase) SetResultPending(m *Model, p value.Promise) {
	b.setStateAndData(m, StatePending, cty.NilVal, nil)
	if p != nil {
		b.MustSetField(fieldPendingPromise, p.ID())
	}
}

func (b *memberBase) SetResultInvalid(m *Model) {
	b.setStateAndData(m, StateInvalid, cty.NilVal, nil)
}

// ApplyValue sets a plain value, or a pending state when v carries a promise.
// The promise completion is wired separately by the data member.
func (b *memberBase) ApplyValue(m *Model, v cty.Value) {
	if p, ok := value.AsPromise(v); ok {
		b.self.SetResultPending(m, p)
		return
	}
	b.self.SetData(m, v)
}

func (b *memberBase) setStateAndData(m *Model, state State, data cty.Value, err error) {
	old := b.stateInfo()
	if state == StateError || old == nil || old.state != state {
		si := &stateInfo{state: state}
		if state == StateError {
			si.err = err
		}
		b.MustSetField(fieldState, si)
	}
	if data == cty.NilVal {
		b.MustClearField(fieldData)
	} else {
		b.MustSetField(fieldData, data)
	}
	b.MustClearField(fieldPendingPromise)

	if m == nil {
		return
	}
	if pid := b.ParentID(); pid != "" {
		if parent := m.GetMutableParent(pid); parent != nil {
			parent.ChildDataUpdate(m, b.self)
		}
	}
}

func (b *memberBase) onDelete(*Model) {}

func (b *memberBase) jsonHeader() *MemberJSON {
	return &MemberJSON{Name: b.Name(), Type: b.typeName}
}
