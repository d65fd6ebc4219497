// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import (
	"encoding/json"
	"fmt"
)

// Hardcoded member types carry their code in the type itself. Their fields
// are locked and never saved: a document stores only the name and type, and
// the code is restored from the type on load.

// DefineHardcodedDataMember registers a data member type whose value is
// computed by functionBody.
func DefineHardcodedDataMember(r *TypeRegistry, typeName, functionBody, supplementalCode string) {
	cfg := hardcodedConfig(typeName, nil, functionBody, supplementalCode)
	cfg.Create = func(m *Model, mj *MemberJSON) (Member, error) {
		d := &DataMember{}
		d.initCodeable(d, typeName, mj.Name, mj.SpecialCaseIDValue, true, true)
		d.config = cfg
		if err := d.loadFields(m, mj.Fields); err != nil {
			return nil, err
		}
		return d, nil
	}
	r.Register(*cfg)
}

// DefineHardcodedFunctionMember registers a function member type with a
// fixed signature and body.
func DefineHardcodedFunctionMember(r *TypeRegistry, typeName string, argList []string, functionBody, supplementalCode string) {
	cfg := hardcodedConfig(typeName, argList, functionBody, supplementalCode)
	cfg.Create = func(m *Model, mj *MemberJSON) (Member, error) {
		f := &FunctionMember{}
		f.initCodeable(f, typeName, mj.Name, mj.SpecialCaseIDValue, true, false)
		f.config = cfg
		if err := f.loadFields(m, mj.Fields); err != nil {
			return nil, err
		}
		return f, nil
	}
	r.Register(*cfg)
}

// HardcodedMemberJSON is the saved form of a hardcoded member.
func HardcodedMemberJSON(name, typeName string) *MemberJSON {
	return &MemberJSON{Name: name, Type: typeName}
}

func hardcodedConfig(typeName string, argList []string, functionBody, supplementalCode string) *TypeConfig {
	if argList == nil {
		argList = []string{}
	}
	locked, noSave := true, true
	return &TypeConfig{
		Type: typeName,
		DefaultFields: map[string]json.RawMessage{
			fieldArgList:          mustMarshal(argList),
			fieldFunctionBody:     mustMarshal(functionBody),
			fieldSupplementalCode: mustMarshal(supplementalCode),
		},
		FieldsLocked: &locked,
		NoSave:       &noSave,
	}
}

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal default field: %v", err))
	}
	return raw
}
