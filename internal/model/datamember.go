// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import (
	"errors"

	"github.com/vk/calcgrid/internal/codecompiler"
	"github.com/vk/calcgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// DataMember holds a value, either set directly or computed by its code.
type DataMember struct {
	codeable
}

// NewDataMember creates a detached data member. An empty id gets a fresh one.
func NewDataMember(name, id string) *DataMember {
	d := &DataMember{}
	d.initCodeable(d, TypeDataMember, name, id, true, true)
	return d
}

func createDataMember(m *Model, mj *MemberJSON) (Member, error) {
	d := NewDataMember(mj.Name, mj.SpecialCaseIDValue)
	if err := d.loadFields(m, mj.Fields); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DataMember) copyMember() Member {
	cp := &DataMember{}
	cp.initCodeableCopy(cp, &d.codeable)
	return cp
}

// ArgList of a data member is always empty.
func (d *DataMember) ArgList() []string { return []string{} }

func (d *DataMember) processMemberFunction(m *Model, ci *codecompiler.CompiledInfo) {
	fn, ok := d.initializeMemberFunction(m)
	if !ok {
		return
	}
	d.applyResult(m, fn(nil))
}

// ApplyValue stores v. A promise puts the member in the pending state until
// the promise settles; its outcome comes back as an updateData action that
// carries the promise token.
func (d *DataMember) ApplyValue(m *Model, v cty.Value) {
	p, ok := value.AsPromise(v)
	if !ok {
		d.SetData(m, v)
		return
	}
	d.SetResultPending(m, p)

	link, modelID, memberID := m.link, m.ID(), d.ID()
	p.Then(func(result cty.Value, err error) {
		data := &ActionData{
			Action:        ActionUpdateData,
			MemberID:      memberID,
			SourcePromise: p.ID(),
		}
		switch {
		case errors.Is(err, value.ErrInvalid):
			data.InvalidValue = true
		case err != nil:
			data.DataError = err
		default:
			data.Data = result
		}
		link.FutureExecuteAction(modelID, data)
	})
}

func (d *DataMember) ToJSON(m *Model) (*MemberJSON, error) {
	return d.codeableJSON(m)
}
