// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/vk/calcgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

const (
	fieldReturnValue = "returnValue"
	fieldSterilized  = "sterilized"
)

// FolderFunction turns its internal folder into a function. Each call runs
// the folder in an isolated copy of the model with the arguments written to
// the input members, and returns the value of the output member.
type FolderFunction struct {
	dependent

	scopeOnce sync.Once
	scope     *ScopeManager
}

// NewFolderFunction creates a detached folder function.
func NewFolderFunction(name, id string) *FolderFunction {
	ff := &FolderFunction{}
	ff.initDependent(ff, TypeFolderFunction, name, id)
	ff.MustSetField(fieldChildIDMap, emptyChildMap)
	ff.MustSetField(fieldSterilized, false)
	ff.MustSetField(fieldArgList, []string{})
	ff.MustSetField(fieldReturnValue, "")
	return ff
}

func createFolderFunction(m *Model, mj *MemberJSON) (Member, error) {
	ff := NewFolderFunction(mj.Name, mj.SpecialCaseIDValue)
	ff.SetData(m, value.FunctionVal(nullCallable{name: mj.Name}))

	argList := []string{}
	if err := readField(mj.Fields, fieldArgList, &argList); err != nil {
		return nil, err
	}
	returnValue := ""
	if err := readField(mj.Fields, fieldReturnValue, &returnValue); err != nil {
		return nil, err
	}
	ff.SetArgList(argList)
	ff.SetReturnValue(returnValue)
	return ff, nil
}

func (ff *FolderFunction) copyMember() Member {
	cp := &FolderFunction{}
	cp.initCopy(cp, &ff.memberBase)
	return cp
}

// ArgList names the input members of the internal folder, in call order.
func (ff *FolderFunction) ArgList() []string {
	args, _ := ff.GetField(fieldArgList).([]string)
	return args
}

// ReturnValue names the output member of the internal folder.
func (ff *FolderFunction) ReturnValue() string {
	rv, _ := ff.GetField(fieldReturnValue).(string)
	return rv
}

func (ff *FolderFunction) SetArgList(argList []string) {
	if argList == nil {
		argList = []string{}
	}
	if !equalStrings(ff.ArgList(), argList) {
		ff.MustSetField(fieldArgList, argList)
	}
}

func (ff *FolderFunction) SetReturnValue(returnValue string) {
	if ff.ReturnValue() != returnValue {
		ff.MustSetField(fieldReturnValue, returnValue)
	}
}

// Sterilized folder functions never produce a function. The copy inside a
// virtual model is sterilized so a call can not recurse into itself.
func (ff *FolderFunction) Sterilized() bool {
	s, _ := ff.GetField(fieldSterilized).(bool)
	return s
}

// SetInternalField applies a setField action.
func (ff *FolderFunction) SetInternalField(name string, v any) error {
	if name != fieldSterilized {
		return fmt.Errorf("Field can not be set: %s", name)
	}
	ff.MustSetField(fieldSterilized, truthy(v))
	return nil
}

// InternalFolder returns the body folder.
func (ff *FolderFunction) InternalFolder(m *Model) Member {
	return ff.LookupChild(m, FolderFunctionBodyName)
}

func (ff *FolderFunction) ChildMap() *ChildMap { return childMapOf(&ff.memberBase) }

func (ff *FolderFunction) LookupChild(m *Model, name string) Member {
	return lookupChild(m, ff.ChildMap(), name)
}

func (ff *FolderFunction) AddChild(m *Model, child Member) error {
	if err := addChild(&ff.memberBase, child); err != nil {
		return err
	}
	ff.updateDependencies(m, ff.ChildMap().IDs())
	return nil
}

func (ff *FolderFunction) RemoveChild(m *Model, child Member) {
	if removeChild(&ff.memberBase, child) {
		ff.updateDependencies(m, ff.ChildMap().IDs())
	}
}

func (ff *FolderFunction) ChildDataUpdate(*Model, Member) {}

func (ff *FolderFunction) ChildFullName(m *Model, childName string) string {
	return ff.FullName(m) + "." + childName
}

func (ff *FolderFunction) ScopeManager() *ScopeManager {
	ff.scopeOnce.Do(func() {
		ff.scope = newScopeManager(ff, ff, false)
	})
	return ff.scope
}

func (ff *FolderFunction) Calculate(m *Model) {
	defer ff.ClearCalcPending()
	if ff.Sterilized() {
		ff.SetResultInvalid(m)
		return
	}
	ff.initializeImpactors(m)
	if state, _ := ff.calculateDependentState(m, true); state != StateNormal {
		return
	}
	ff.SetData(m, value.FunctionVal(&folderCallable{m: m, ff: ff}))
}

func (ff *FolderFunction) UpdateDependenciesForModelChange(m *Model, updated *[]Member) {
	updateContainerDependencies(m, ff, &ff.dependent, updated)
}

func (ff *FolderFunction) ToJSON(m *Model) (*MemberJSON, error) {
	mj := ff.jsonHeader()
	mj.Fields = make(map[string]json.RawMessage)
	if err := writeField(mj.Fields, fieldArgList, ff.ArgList()); err != nil {
		return nil, err
	}
	if err := writeField(mj.Fields, fieldReturnValue, ff.ReturnValue()); err != nil {
		return nil, err
	}
	children, err := childrenJSON(m, ff)
	if err != nil {
		return nil, err
	}
	mj.Children = children
	return mj, nil
}

// folderCallable is the function value of a FolderFunction. The virtual
// base model is built on the first call.
type folderCallable struct {
	m  *Model
	ff *FolderFunction

	mu       sync.Mutex
	ready    bool
	base     *Model
	inputIDs []string
	outputID string
}

func (c *folderCallable) Name() string { return c.ff.Name() }

func (c *folderCallable) prepare() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready {
		return nil
	}

	if body, ok := c.ff.InternalFolder(c.m).(Parent); ok {
		for _, arg := range c.ff.ArgList() {
			if member := body.LookupChild(c.m, arg); member != nil {
				c.inputIDs = append(c.inputIDs, member.ID())
			}
		}
		if member := body.LookupChild(c.m, c.ff.ReturnValue()); member != nil {
			c.outputID = member.ID()
		}
	}

	base := c.m.GetCleanCopy(NewRunContextLink(nil))
	res := c.m.env.Runner.Do(c.m.Context(), base, &ActionData{
		Action:     ActionSetField,
		MemberID:   c.ff.ID(),
		FieldName:  fieldSterilized,
		FieldValue: true,
	})
	if !res.ActionDone {
		return errors.New("Error calculating folder function")
	}
	c.base = base
	c.ready = true
	return nil
}

func (c *folderCallable) Call(args []cty.Value) value.Result {
	if err := c.prepare(); err != nil {
		return value.Failed(err)
	}

	updates := make([]*ActionData, 0, len(c.inputIDs))
	for i, id := range c.inputIDs {
		arg := cty.NullVal(cty.DynamicPseudoType)
		if i < len(args) {
			arg = args[i]
		}
		updates = append(updates, &ActionData{Action: ActionUpdateData, MemberID: id, Data: arg})
	}

	instance := c.base.GetMutableModel(c.base.link)
	res := c.m.env.Runner.Do(c.m.Context(), instance, &ActionData{Action: ActionCompound, Actions: updates})
	if !res.ActionDone {
		msg := res.ErrorMsg
		if msg == "" {
			msg = "Unknown error evaluating Folder Function " + c.ff.Name()
		}
		return value.Failed(errors.New(msg))
	}
	if c.outputID == "" {
		return value.Of(cty.NullVal(cty.DynamicPseudoType))
	}

	out := instance.LookupMemberByID(c.outputID)
	switch out.State() {
	case StateNormal:
		return value.Of(out.Data())
	case StateError:
		return value.Failed(c.modelError(instance))
	case StatePending:
		return value.Failed(errors.New("Error; asynchronous functions not supported!"))
	case StateInvalid:
		return value.Invalid()
	default:
		return value.Failed(errors.New("Unknown internal state in function!"))
	}
}

// modelError collects the root errors of the virtual model.
func (c *folderCallable) modelError(instance *Model) error {
	var msgs []string
	for _, member := range sortedMembers(instance) {
		if member.State() != StateError {
			continue
		}
		if err := member.Error(); err != nil && !IsDependsOnError(err) {
			msgs = append(msgs, fmt.Sprintf("Member %s: %s", member.Name(), err.Error()))
		}
	}
	return fmt.Errorf("Error in function call %s: %s", c.ff.Name(), strings.Join(msgs, "; "))
}

// nullCallable is the placeholder function of a folder function that has not
// been calculated.
type nullCallable struct {
	name string
}

func (n nullCallable) Name() string { return n.name }

func (nullCallable) Call([]cty.Value) value.Result {
	return value.Of(cty.NullVal(cty.DynamicPseudoType))
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true"
	case cty.Value:
		return t.Type() == cty.Bool && t.IsKnown() && !t.IsNull() && t.True()
	default:
		return v != nil
	}
}
