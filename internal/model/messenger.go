// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
)

// Names of the messenger functions visible to member code.
const (
	MessengerDataUpdate         = "data_update"
	MessengerCompoundDataUpdate = "compound_data_update"
)

// messengerFunction returns the messenger function bound to member, if name
// is one.
func messengerFunction(m *Model, member Member, name string) (function.Function, bool) {
	msgr := &messenger{link: m.link, fallback: m, fromID: member.ID()}
	switch name {
	case MessengerDataUpdate:
		return function.New(&function.Spec{
			Params: []function.Parameter{
				{Name: "path", Type: cty.String},
				{Name: "value", Type: cty.DynamicPseudoType, AllowNull: true, AllowDynamicType: true},
			},
			Type: function.StaticReturnType(cty.DynamicPseudoType),
			Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
				return cty.NullVal(cty.DynamicPseudoType), msgr.dataUpdate(args[0].AsString(), args[1])
			},
		}), true
	case MessengerCompoundDataUpdate:
		return function.New(&function.Spec{
			Params: []function.Parameter{
				{Name: "updates", Type: cty.DynamicPseudoType},
			},
			Type: function.StaticReturnType(cty.DynamicPseudoType),
			Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
				return cty.NullVal(cty.DynamicPseudoType), msgr.compoundDataUpdate(args[0])
			},
		}), true
	default:
		return function.Function{}, false
	}
}

// messenger lets member code post data updates to other members. The
// updates run after the current calculation, as part of the same action
// when one is in progress.
type messenger struct {
	link     *RunContextLink
	fallback *Model
	fromID   string
}

func (msgr *messenger) dataUpdate(path string, v cty.Value) error {
	if !msgr.link.IsActive() {
		return nil
	}
	m, member, err := msgr.target(path)
	if err != nil {
		return err
	}
	m.ExecuteAction(&ActionData{Action: ActionUpdateData, MemberID: member.ID(), Data: v})
	return nil
}

func (msgr *messenger) compoundDataUpdate(updates cty.Value) error {
	if !msgr.link.IsActive() {
		return nil
	}
	if updates.IsNull() || !updates.CanIterateElements() {
		return errors.New("compound_data_update expects a list of [path, value] pairs")
	}

	var (
		m       *Model
		actions []*ActionData
	)
	for it := updates.ElementIterator(); it.Next(); {
		_, entry := it.Element()
		if entry.IsNull() || !entry.CanIterateElements() || entry.LengthInt() != 2 {
			return errors.New("compound_data_update expects a list of [path, value] pairs")
		}
		pathVal, err := convert.Convert(entry.Index(cty.NumberIntVal(0)), cty.String)
		if err != nil || pathVal.IsNull() {
			return errors.New("compound_data_update: member path must be a string")
		}
		target, member, err := msgr.target(pathVal.AsString())
		if err != nil {
			return err
		}
		m = target
		actions = append(actions, &ActionData{
			Action:   ActionUpdateData,
			MemberID: member.ID(),
			Data:     entry.Index(cty.NumberIntVal(1)),
		})
	}
	if m == nil {
		return nil
	}
	m.ExecuteAction(&ActionData{Action: ActionCompound, Actions: actions})
	return nil
}

func (msgr *messenger) target(path string) (*Model, Member, error) {
	m := msgr.link.CurrentModel()
	if m == nil {
		m = msgr.fallback
	}
	from, ok := m.LookupObjectByID(msgr.fromID).(ScopeHolder)
	if !ok {
		return nil, nil, errors.New("Error calling messenger - source member not found!")
	}
	member := from.ScopeManager().GetMember(m, strings.Split(path, "."))
	if member == nil {
		return nil, nil, fmt.Errorf("Error calling messenger - member not found: %s", path)
	}
	return m, member, nil
}
