// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import "sort"

const fieldDependsOn = "dependsOn"

// Dependent is a member whose value is derived from other members.
type Dependent interface {
	Member
	// DependsOn returns the ids of the members this one reads, in first-use
	// order.
	DependsOn() []string
	CalcPending() bool
	ClearCalcPending()
	// PrepareForCalculate marks the member for recalculation and resets its
	// state.
	PrepareForCalculate()
	Calculate(m *Model)
	// UpdateDependenciesForModelChange re-resolves the dependencies after a
	// structural change. Members whose dependencies changed are appended to
	// updated.
	UpdateDependenciesForModelChange(m *Model, updated *[]Member)
}

// dependent is the capability shared by every Dependent. calcPending is a
// working variable of one instance and is never copied.
type dependent struct {
	memberBase
	calcPending bool
}

func (d *dependent) initDependent(self Member, typeName, name, id string) {
	d.init(self, typeName, name, id)
	d.MustSetField(fieldDependsOn, []string(nil))
}

func (d *dependent) DependsOn() []string {
	deps, _ := d.GetField(fieldDependsOn).([]string)
	return deps
}

func (d *dependent) CalcPending() bool { return d.calcPending }

func (d *dependent) ClearCalcPending() { d.calcPending = false }

func (d *dependent) PrepareForCalculate() {
	d.calcPending = true
	d.ClearState()
}

// calculateDependentState folds the states of the impactors. Errors win over
// pending, pending over invalid. When setState is true a non-normal outcome
// is also applied to the member.
func (d *dependent) calculateDependentState(m *Model, setState bool) (State, error) {
	var errorImpactors []Member
	pending, invalid := false, false
	for _, id := range d.DependsOn() {
		impactor := m.LookupMemberByID(id)
		if impactor == nil {
			continue
		}
		switch impactor.State() {
		case StateError:
			errorImpactors = append(errorImpactors, impactor)
		case StatePending:
			pending = true
		case StateInvalid:
			invalid = true
		}
	}

	switch {
	case len(errorImpactors) > 0:
		err := newDependsOnError(m, errorImpactors)
		if setState {
			d.self.SetError(m, err)
		}
		return StateError, err
	case pending:
		if setState {
			d.self.SetResultPending(m, nil)
		}
		return StatePending, nil
	case invalid:
		if setState {
			d.self.SetResultInvalid(m)
		}
		return StateInvalid, nil
	default:
		return StateNormal, nil
	}
}

// initializeImpactors calculates every impactor still waiting for it.
func (d *dependent) initializeImpactors(m *Model) {
	for _, id := range d.DependsOn() {
		impactor, ok := m.LookupMemberByID(id).(Dependent)
		if ok && impactor.CalcPending() {
			impactor.Calculate(m)
		}
	}
}

// updateDependencies replaces the dependency list and keeps the impacts map
// in step. It reports whether the set of dependencies changed.
func (d *dependent) updateDependencies(m *Model, deps []string) bool {
	old := d.DependsOn()
	oldSet := make(map[string]bool, len(old))
	for _, id := range old {
		oldSet[id] = true
	}
	newSet := make(map[string]bool, len(deps))
	for _, id := range deps {
		newSet[id] = true
	}

	changed := false
	for _, id := range deps {
		if !oldSet[id] {
			changed = true
			m.AddToImpactsList(d.ID(), id)
		}
	}
	for _, id := range old {
		if !newSet[id] {
			changed = true
			m.RemoveFromImpactsList(d.ID(), id)
		}
	}
	if changed || len(old) != len(deps) {
		d.MustSetField(fieldDependsOn, dedupe(deps))
	}
	return changed
}

func (d *dependent) onDelete(m *Model) {
	for _, id := range d.DependsOn() {
		m.RemoveFromImpactsList(d.ID(), id)
	}
}

func sameDependencies(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
