// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import "github.com/zclconf/go-cty/cty"

// State is the calculation state of a member.
type State string

const (
	StateNone    State = "none"
	StateNormal  State = "normal"
	StateError   State = "error"
	StatePending State = "pending"
	StateInvalid State = "invalid"
)

// stateInfo is the value of the "state" field.
type stateInfo struct {
	state State
	err   error
}

// Member type names. These are the names used in saved documents.
const (
	TypeDataMember     = "apogee.DataMember"
	TypeFunctionMember = "apogee.FunctionMember"
	TypeFolder         = "apogee.Folder"
	TypeFolderFunction = "apogee.FolderFunction"
	TypeErrorMember    = "apogee.ErrorMember"
)

// Document constants.
const (
	DefaultModelName = "Workspace"
	RootFolderName   = "main"
	SaveFileType     = "apogee model"
	SaveFileVersion  = "1.0"

	// ConsecutiveActionInitialLimit bounds how many queued messenger actions may
	// run back to back before the queue is dropped.
	ConsecutiveActionInitialLimit = 500

	// FolderFunctionBodyName is the name of the internal folder of a folder
	// function.
	FolderFunctionBodyName = "body"

	pendingDataPlaceholder = "<unknown pending value>"
)

// DefaultDataValue is the data a data member holds when nothing else is set.
var DefaultDataValue = cty.StringVal("")
