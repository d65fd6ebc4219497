// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vk/calcgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// Action names.
const (
	ActionCreateMember         = "createMember"
	ActionDeleteMember         = "deleteMember"
	ActionUpdateData           = "updateData"
	ActionUpdateCode           = "updateCode"
	ActionUpdateFolderFunction = "updateFolderFunction"
	ActionCompound             = "compoundAction"
	ActionSetField             = "setField"
)

// Change event names.
const (
	EventCreated   = "created"
	EventUpdated   = "updated"
	EventDeleted   = "deleted"
	eventTransient = "transient"
)

// ActionData is a request to change a model.
type ActionData struct {
	Action        string
	MemberID      string
	ParentID      string
	ModelIsParent bool
	CreateData    *MemberJSON

	// Data is the new value for updateData. It may carry a promise.
	Data cty.Value
	// DataError sets the member to the error state instead.
	DataError error
	// InvalidValue sets the member to the invalid state instead.
	InvalidValue bool
	// SourcePromise is the token of the promise that produced Data. A
	// mismatch with the member's pending token drops the update.
	SourcePromise  string
	PromiseRefresh bool

	ArgList          []string
	FunctionBody     string
	SupplementalCode string
	ReturnValue      string

	FieldName  string
	FieldValue any

	Actions []*ActionData
}

type actionDataJSON struct {
	Action           string          `json:"action"`
	MemberID         string          `json:"memberId,omitempty"`
	ParentID         string          `json:"parentId,omitempty"`
	ModelIsParent    bool            `json:"modelIsParent,omitempty"`
	CreateData       *MemberJSON     `json:"createData,omitempty"`
	Data             json.RawMessage `json:"data,omitempty"`
	Error            string          `json:"error,omitempty"`
	InvalidValue     bool            `json:"invalidValue,omitempty"`
	SourcePromise    string          `json:"sourcePromise,omitempty"`
	PromiseRefresh   bool            `json:"promiseRefresh,omitempty"`
	ArgList          []string        `json:"argList,omitempty"`
	FunctionBody     string          `json:"functionBody,omitempty"`
	SupplementalCode string          `json:"supplementalCode,omitempty"`
	ReturnValue      string          `json:"returnValue,omitempty"`
	FieldName        string          `json:"fieldName,omitempty"`
	FieldValue       any             `json:"fieldValue,omitempty"`
	Actions          []*ActionData   `json:"actions,omitempty"`
}

// MarshalJSON encodes the action with the document field names.
func (a *ActionData) MarshalJSON() ([]byte, error) {
	out := actionDataJSON{
		Action:           a.Action,
		MemberID:         a.MemberID,
		ParentID:         a.ParentID,
		ModelIsParent:    a.ModelIsParent,
		CreateData:       a.CreateData,
		InvalidValue:     a.InvalidValue,
		SourcePromise:    a.SourcePromise,
		PromiseRefresh:   a.PromiseRefresh,
		ArgList:          a.ArgList,
		FunctionBody:     a.FunctionBody,
		SupplementalCode: a.SupplementalCode,
		ReturnValue:      a.ReturnValue,
		FieldName:        a.FieldName,
		FieldValue:       a.FieldValue,
		Actions:          a.Actions,
	}
	if a.DataError != nil {
		out.Error = a.DataError.Error()
	}
	if a.Data != cty.NilVal {
		raw, err := value.ToJSON(a.Data)
		if err != nil {
			return nil, fmt.Errorf("action %s: %w", a.Action, err)
		}
		out.Data = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an action.
func (a *ActionData) UnmarshalJSON(raw []byte) error {
	var in actionDataJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return err
	}
	*a = ActionData{
		Action:           in.Action,
		MemberID:         in.MemberID,
		ParentID:         in.ParentID,
		ModelIsParent:    in.ModelIsParent,
		CreateData:       in.CreateData,
		InvalidValue:     in.InvalidValue,
		SourcePromise:    in.SourcePromise,
		PromiseRefresh:   in.PromiseRefresh,
		ArgList:          in.ArgList,
		FunctionBody:     in.FunctionBody,
		SupplementalCode: in.SupplementalCode,
		ReturnValue:      in.ReturnValue,
		FieldName:        in.FieldName,
		FieldValue:       in.FieldValue,
		Actions:          in.Actions,
	}
	if in.Error != "" {
		a.DataError = errors.New(in.Error)
	}
	if len(in.Data) > 0 {
		v, err := value.FromJSON(in.Data)
		if err != nil {
			return fmt.Errorf("action %s data: %w", in.Action, err)
		}
		a.Data = v
	}
	return nil
}

// ActionResult reports the outcome of an action.
type ActionResult struct {
	ActionDone    bool
	ActionPending bool
	ErrorMsg      string
	Member        Member
	Event         string

	UpdateModelDependencies     bool
	UpdateMemberDependencies    bool
	RecalculateMember           bool
	RecalculateDependsOnMembers bool

	ChildActionResults []*ActionResult

	// Events is filled on the top level result of a completed action.
	Events []ChangeEvent
}

// Failed builds a result for an action that was not done.
func Failed(msg string) *ActionResult {
	return &ActionResult{ActionDone: false, ErrorMsg: msg}
}

// ChangeEvent describes one member changed by an action.
type ChangeEvent struct {
	Event    string `json:"event"`
	MemberID string `json:"memberId"`
	FullName string `json:"fullName"`
	State    State  `json:"state,omitempty"`

	Member Member `json:"-"`
}
