// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/vk/calcgrid/internal/codecompiler"
	"github.com/vk/calcgrid/internal/ctxlog"
	"github.com/vk/calcgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

const (
	fieldArgList                 = "argList"
	fieldFunctionBody            = "functionBody"
	fieldSupplementalCode        = "supplementalCode"
	fieldCompiledInfo            = "compiledInfo"
	fieldNoSave                  = "noSave"
	fieldBaseFields              = "baseFields"
	fieldFieldsLocked            = "fieldsLocked"
	fieldContextParentGeneration = "contextParentGeneration"
	fieldInvalidValue            = "invalidValue"
	fieldError                   = "error"
)

// Codeable is a member whose value may come from user code.
type Codeable interface {
	Dependent
	ScopeHolder
	ArgList() []string
	FunctionBody() string
	SupplementalCode() string
	CompiledInfo() *codecompiler.CompiledInfo
	HasCode() bool
	ApplyCode(argList []string, functionBody, supplementalCode string)
	ClearCode(m *Model)
	InitializeDependencies(m *Model)
	SetCodeOK() bool
	SetDataOK() bool
	DefaultData() cty.Value
	PendingPromiseMatches(id string) bool
	ApplyValue(m *Model, v cty.Value)
}

// codeable is the capability shared by data and function members.
// initInProgress is a working variable of one instance.
type codeable struct {
	dependent
	baseSetCodeOK  bool
	baseSetDataOK  bool
	initInProgress bool

	// config carries the settings a hardcoded type fixes. Nil for the
	// built-in types.
	config *TypeConfig

	scopeOnce sync.Once
	scope     *ScopeManager
}

func (c *codeable) initCodeable(self Member, typeName, name, id string, setCodeOK, setDataOK bool) {
	c.initDependent(self, typeName, name, id)
	c.baseSetCodeOK = setCodeOK
	c.baseSetDataOK = setDataOK
	c.MustSetField(fieldArgList, []string{})
}

func (c *codeable) initCodeableCopy(self Member, src *codeable) {
	c.initCopy(self, &src.memberBase)
	c.baseSetCodeOK = src.baseSetCodeOK
	c.baseSetDataOK = src.baseSetDataOK
	c.config = src.config
}

func (c *codeable) fixedNoSave() *bool {
	if c.config == nil {
		return nil
	}
	return c.config.NoSave
}

func (c *codeable) fixedFieldsLocked() *bool {
	if c.config == nil {
		return nil
	}
	return c.config.FieldsLocked
}

// ScopeManager of a code member has no child entries; lookups go straight to
// the parent.
func (c *codeable) ScopeManager() *ScopeManager {
	c.scopeOnce.Do(func() {
		c.scope = newScopeManager(c.self.(ScopeHolder), nil, false)
	})
	return c.scope
}

// codeScope is the scope the code is evaluated in: the member's own, or an
// ancestor's when contextParentGeneration is set.
func (c *codeable) codeScope(m *Model) *ScopeManager {
	gen, _ := c.GetField(fieldContextParentGeneration).(int)
	if gen <= 0 {
		return c.ScopeManager()
	}
	var holder ScopeHolder = c.self.(ScopeHolder)
	for ; gen > 0 && holder != nil; gen-- {
		member, ok := holder.(Member)
		if !ok {
			break
		}
		next, _ := m.LookupObjectByID(member.ParentID()).(ScopeHolder)
		holder = next
	}
	if holder == nil {
		return c.ScopeManager()
	}
	return holder.ScopeManager()
}

func (c *codeable) ArgList() []string {
	args, _ := c.GetField(fieldArgList).([]string)
	return args
}

func (c *codeable) FunctionBody() string {
	s, _ := c.GetField(fieldFunctionBody).(string)
	return s
}

func (c *codeable) SupplementalCode() string {
	s, _ := c.GetField(fieldSupplementalCode).(string)
	return s
}

func (c *codeable) CompiledInfo() *codecompiler.CompiledInfo {
	ci, _ := c.GetField(fieldCompiledInfo).(*codecompiler.CompiledInfo)
	return ci
}

func (c *codeable) HasCode() bool { return c.CompiledInfo() != nil }

func (c *codeable) fieldsLocked() bool {
	locked, _ := c.GetField(fieldFieldsLocked).(bool)
	return locked
}

func (c *codeable) noSave() bool {
	ns, _ := c.GetField(fieldNoSave).(bool)
	return ns
}

func (c *codeable) SetCodeOK() bool { return c.baseSetCodeOK && !c.fieldsLocked() }

func (c *codeable) SetDataOK() bool { return c.baseSetDataOK && !c.fieldsLocked() }

func (c *codeable) DefaultData() cty.Value { return DefaultDataValue }

func (c *codeable) ApplyCode(argList []string, functionBody, supplementalCode string) {
	if argList == nil {
		argList = []string{}
	}
	if !equalStrings(c.ArgList(), argList) {
		c.MustSetField(fieldArgList, argList)
	}
	if c.FunctionBody() != functionBody || !c.HasField(fieldFunctionBody) {
		c.MustSetField(fieldFunctionBody, functionBody)
	}
	if c.SupplementalCode() != supplementalCode || !c.HasField(fieldSupplementalCode) {
		c.MustSetField(fieldSupplementalCode, supplementalCode)
	}
	c.MustSetField(fieldCompiledInfo, codecompiler.Compile(argList, functionBody, supplementalCode, c.Name()))
}

func (c *codeable) ClearCode(m *Model) {
	if c.FunctionBody() != "" {
		c.MustSetField(fieldFunctionBody, "")
	}
	if c.SupplementalCode() != "" {
		c.MustSetField(fieldSupplementalCode, "")
	}
	c.MustClearField(fieldCompiledInfo)
	c.ClearCalcPending()
	c.updateDependencies(m, nil)
}

// dependencyIDs resolves every non-local use of the code to a member id.
func (c *codeable) dependencyIDs(m *Model) []string {
	ci := c.CompiledInfo()
	if ci == nil || !ci.Valid {
		return nil
	}
	scope := c.codeScope(m)
	var ids []string
	seen := make(map[string]bool)
	for _, ni := range ci.VarInfo.NonLocal() {
		for _, use := range ni.Uses {
			if use.IsLocal {
				continue
			}
			impactor := scope.GetMember(m, use.Path)
			if impactor == nil || seen[impactor.ID()] {
				continue
			}
			seen[impactor.ID()] = true
			ids = append(ids, impactor.ID())
		}
	}
	return ids
}

func (c *codeable) InitializeDependencies(m *Model) {
	c.updateDependencies(m, c.dependencyIDs(m))
}

func (c *codeable) UpdateDependenciesForModelChange(m *Model, updated *[]Member) {
	ci := c.CompiledInfo()
	if ci == nil || !ci.Valid {
		return
	}
	deps := c.dependencyIDs(m)
	if sameDependencies(c.DependsOn(), deps) {
		return
	}
	mutable, ok := m.GetMutableMember(c.ID()).(codeableMember)
	if !ok {
		return
	}
	mutable.codeablePart().updateDependencies(m, deps)
	*updated = append(*updated, mutable)
}

// codeableMember gives access to the embedded capability of a concrete type.
type codeableMember interface {
	Codeable
	codeablePart() *codeable
	processMemberFunction(m *Model, ci *codecompiler.CompiledInfo)
}

func (c *codeable) codeablePart() *codeable { return c }

// Calculate evaluates the code of the member.
func (c *codeable) Calculate(m *Model) {
	defer c.ClearCalcPending()

	ci := c.CompiledInfo()
	if ci == nil {
		c.self.SetError(m, fmt.Errorf("Code not found for member: %s", c.Name()))
		return
	}
	if !ci.Valid {
		msg := ci.ErrorMsg
		if msg == "" {
			msg = "Unknown error parsing user code"
		}
		c.self.SetError(m, &CompileError{Message: msg, Info: ci.ErrorInfo})
		return
	}
	c.self.(codeableMember).processMemberFunction(m, ci)
}

// applyResult stores the outcome of evaluating member code.
func (c *codeable) applyResult(m *Model, res value.Result) {
	switch res.Kind {
	case value.KindValue:
		c.self.(Codeable).ApplyValue(m, res.Value)
	case value.KindInvalid:
		c.self.SetResultInvalid(m)
	case value.KindPending:
		c.self.SetResultPending(m, nil)
	default:
		c.applyError(m, res.Err)
	}
}

func (c *codeable) applyError(m *Model, err error) {
	switch {
	case IsDependsOnError(err), errors.Is(err, ErrCircularReference):
		c.self.SetError(m, err)
	default:
		ctxlog.FromContext(m.Context()).Debug("Error calculating member.",
			"member", c.FullName(m), "error", err)
		c.self.SetError(m, withTrace(m, err, c.self))
	}
}

// initializeMemberFunction calculates the impactors and binds the free names
// of the code. It returns false, with the member state already set, when the
// code can not run.
func (c *codeable) initializeMemberFunction(m *Model) (codecompiler.MemberFunction, bool) {
	id := c.ID()
	if c.initInProgress {
		m.markCircular(id)
		c.self.SetError(m, ErrCircularReference)
		return nil, false
	}

	c.initInProgress = true
	m.pushInit(id)
	defer func() {
		c.initInProgress = false
		m.popInit(id)
	}()

	c.initializeImpactors(m)
	if m.isCircular(id) {
		c.self.SetError(m, ErrCircularReference)
		return nil, false
	}
	if state, _ := c.calculateDependentState(m, true); state != StateNormal {
		return nil, false
	}

	ci := c.CompiledInfo()
	b, err := ci.ScopeInitializer(codeLookup{m: m, member: c.self, scope: c.codeScope(m)})
	if err != nil {
		c.self.SetError(m, err)
		return nil, false
	}
	return ci.Generator(b), true
}

// loadFields applies the saved fields of a new member. A type that fixes
// noSave loads its default fields instead of the saved ones.
func (c *codeable) loadFields(m *Model, fields map[string]json.RawMessage) error {
	if fixed := c.fixedNoSave(); fixed != nil {
		c.MustSetField(fieldNoSave, *fixed)
		if *fixed {
			fields = c.config.DefaultFields
		}
	} else {
		noSave := false
		if err := readField(fields, fieldNoSave, &noSave); err != nil {
			return err
		}
		c.MustSetField(fieldNoSave, noSave)
		if noSave {
			c.MustSetField(fieldBaseFields, copyFields(fields))
		}
	}

	if fixed := c.fixedFieldsLocked(); fixed != nil {
		c.MustSetField(fieldFieldsLocked, *fixed)
	} else {
		fieldsLocked := false
		if err := readField(fields, fieldFieldsLocked, &fieldsLocked); err != nil {
			return err
		}
		c.MustSetField(fieldFieldsLocked, fieldsLocked)
	}

	gen := 0
	if err := readField(fields, fieldContextParentGeneration, &gen); err != nil {
		return err
	}
	if gen != 0 {
		c.MustSetField(fieldContextParentGeneration, gen)
	}

	_, hasBody := fields[fieldFunctionBody]
	if (hasBody || !c.baseSetDataOK) && c.baseSetCodeOK {
		argList := []string{}
		body, supplemental := "", ""
		if err := readField(fields, fieldArgList, &argList); err != nil {
			return err
		}
		if err := readField(fields, fieldFunctionBody, &body); err != nil {
			return err
		}
		if err := readField(fields, fieldSupplementalCode, &supplemental); err != nil {
			return err
		}
		c.ApplyCode(argList, body, supplemental)
		return nil
	}

	if c.baseSetDataOK {
		var errMsg string
		invalid := false
		if err := readField(fields, fieldError, &errMsg); err != nil {
			return err
		}
		if err := readField(fields, fieldInvalidValue, &invalid); err != nil {
			return err
		}
		switch {
		case errMsg != "":
			c.self.SetError(m, &StoredError{Message: errMsg})
		case invalid:
			c.self.SetResultInvalid(m)
		default:
			data := c.self.(Codeable).DefaultData()
			if raw, ok := fields[fieldData]; ok {
				v, err := value.FromJSON(raw)
				if err != nil {
					return fmt.Errorf("member %s data: %w", c.Name(), err)
				}
				data = v
			}
			c.self.SetData(m, data)
		}
		c.MustSetField(fieldFunctionBody, "")
		c.MustSetField(fieldSupplementalCode, "")
	}
	return nil
}

// savedFields renders the fields written to a document.
func (c *codeable) savedFields() (map[string]json.RawMessage, error) {
	noSave := c.noSave()
	if noSave && c.fixedNoSave() != nil {
		// The type restores its default fields on load.
		return nil, nil
	}
	fields := make(map[string]json.RawMessage)
	if noSave {
		fields[fieldNoSave] = json.RawMessage("true")
	}
	if gen, _ := c.GetField(fieldContextParentGeneration).(int); gen != 0 {
		if err := writeField(fields, fieldContextParentGeneration, gen); err != nil {
			return nil, err
		}
	}
	if c.fieldsLocked() && c.fixedFieldsLocked() == nil {
		fields[fieldFieldsLocked] = json.RawMessage("true")
	}
	if noSave {
		if base, ok := c.GetField(fieldBaseFields).(map[string]json.RawMessage); ok {
			for k, v := range base {
				fields[k] = v
			}
		}
		return fields, nil
	}
	if err := c.writeCodeAndDataFields(fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func (c *codeable) writeCodeAndDataFields(fields map[string]json.RawMessage) error {
	if c.HasCode() {
		if err := writeField(fields, fieldArgList, c.self.(Codeable).ArgList()); err != nil {
			return err
		}
		if err := writeField(fields, fieldFunctionBody, c.FunctionBody()); err != nil {
			return err
		}
		return writeField(fields, fieldSupplementalCode, c.SupplementalCode())
	}

	switch c.State() {
	case StateInvalid:
		fields[fieldInvalidValue] = json.RawMessage("true")
	case StatePending:
		return writeField(fields, fieldData, pendingDataPlaceholder)
	case StateError:
		return writeField(fields, fieldError, errorMessage(c.Error()))
	default:
		raw, err := value.ToJSON(c.Data())
		if err != nil {
			return fmt.Errorf("member %s data: %w", c.Name(), err)
		}
		fields[fieldData] = raw
	}
	return nil
}

func (c *codeable) codeableJSON(m *Model) (*MemberJSON, error) {
	mj := c.jsonHeader()
	fields, err := c.savedFields()
	if err != nil {
		return nil, err
	}
	mj.Fields = fields
	return mj, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
