// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import (
	"github.com/zclconf/go-cty/cty"
)

const fieldCompleteJSON = "completeJson"

// ErrorMember stands in for a member whose type is not registered. It keeps
// the saved form untouched so the document round trips.
type ErrorMember struct {
	memberBase
}

// NewErrorMember wraps the saved form of an unloadable member.
func NewErrorMember(m *Model, mj *MemberJSON) *ErrorMember {
	e := &ErrorMember{}
	e.init(e, TypeErrorMember, mj.Name, mj.SpecialCaseIDValue)
	complete := mj.Clone()
	complete.SpecialCaseIDValue = ""
	e.SetData(m, cty.StringVal(""))
	e.MustSetField(fieldCompleteJSON, complete)
	return e
}

func (e *ErrorMember) copyMember() Member {
	cp := &ErrorMember{}
	cp.initCopy(cp, &e.memberBase)
	return cp
}

// ToJSON returns the saved form the member was created from.
func (e *ErrorMember) ToJSON(*Model) (*MemberJSON, error) {
	complete, _ := e.GetField(fieldCompleteJSON).(*MemberJSON)
	return complete.Clone(), nil
}
