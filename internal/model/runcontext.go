// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import "sync"

// RunContext hosts a model lineage: it holds the confirmed model and accepts
// actions that must run after the current one finishes.
type RunContext interface {
	ConfirmedModel() *Model
	// FutureExecuteAction queues an action against the model with the given
	// id. It must not run the action on the calling goroutine.
	FutureExecuteAction(modelID string, data *ActionData)
	IsActive() bool
}

type linkState int

const (
	linkUnset linkState = iota
	linkOK
	linkNOK
)

// RunContextLink ties the models created during one action to the run
// context. Once the action is judged the link is marked valid or not; an
// invalid link never forwards future actions, so work started by a rolled
// back model is dropped.
type RunContextLink struct {
	rc RunContext

	mu    sync.Mutex
	state linkState
	model *Model
}

// NewRunContextLink links to rc. A nil rc gives an inactive link, used by
// models that must never post work anywhere.
func NewRunContextLink(rc RunContext) *RunContextLink {
	return &RunContextLink{rc: rc}
}

// SetStateValid records whether the action that created the linked model was
// accepted.
func (l *RunContextLink) SetStateValid(valid bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if valid {
		l.state = linkOK
	} else {
		l.state = linkNOK
	}
	l.model = nil
}

// IsActive reports whether future actions posted through the link will run.
func (l *RunContextLink) IsActive() bool {
	if l == nil || l.rc == nil {
		return false
	}
	l.mu.Lock()
	nok := l.state == linkNOK
	l.mu.Unlock()
	return !nok && l.rc.IsActive()
}

func (l *RunContextLink) registerModel(m *Model) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.model = m
}

// CurrentModel is the model in process while the link is unjudged, and the
// confirmed model afterwards.
func (l *RunContextLink) CurrentModel() *Model {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	state, m := l.state, l.model
	l.mu.Unlock()
	if state == linkUnset && m != nil {
		return m
	}
	if l.rc == nil {
		return m
	}
	return l.rc.ConfirmedModel()
}

// FutureExecuteAction forwards an action to the run context when the link is
// active and drops it otherwise.
func (l *RunContextLink) FutureExecuteAction(modelID string, data *ActionData) {
	if !l.IsActive() {
		return
	}
	l.rc.FutureExecuteAction(modelID, data)
}
