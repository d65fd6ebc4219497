package action

import (
	"errors"

	"github.com/vk/calcgrid/internal/dag"
	"github.com/vk/calcgrid/internal/model"
)

// recalculate brings the model up to date after a successful action.
func recalculate(m *model.Model, result *model.ActionResult) {
	var updated []model.Member
	if needsModelDependencies(result) {
		m.UpdateDependenciesForModelChange(&updated)
	}

	var roots []string
	collectRoots(m, result, &roots)
	for _, member := range updated {
		roots = append(roots, member.ID())
	}

	pending := markPending(m, roots)
	if len(pending) == 0 {
		return
	}

	m.SetCalculating(true)
	defer m.SetCalculating(false)
	for _, id := range orderPending(m, pending) {
		// Calculating one member may already have calculated others.
		if d, ok := m.LookupMemberByID(id).(model.Dependent); ok && d.CalcPending() {
			d.Calculate(m)
		}
	}
}

func needsModelDependencies(result *model.ActionResult) bool {
	if result.UpdateModelDependencies {
		return true
	}
	for _, child := range result.ChildActionResults {
		if needsModelDependencies(child) {
			return true
		}
	}
	return false
}

// collectRoots walks the result tree, refreshes member dependencies where
// asked and gathers the members to recalculate.
func collectRoots(m *model.Model, result *model.ActionResult, roots *[]string) {
	if result.Member != nil {
		// Skip members deleted by the action.
		if current := m.LookupMemberByID(result.Member.ID()); current != nil {
			if result.UpdateMemberDependencies {
				if c, ok := current.(model.Codeable); ok && !c.IsLocked() {
					c.InitializeDependencies(m)
				}
			}
			if result.RecalculateMember {
				*roots = append(*roots, current.ID())
			}
			if result.RecalculateDependsOnMembers {
				*roots = append(*roots, m.ImpactsList(current.ID())...)
			}
		}
	}
	for _, child := range result.ChildActionResults {
		collectRoots(m, child, roots)
	}
}

// markPending flags the roots and everything downstream of them for
// recalculation. It returns the flagged ids in the order they were reached.
func markPending(m *model.Model, roots []string) []string {
	var pending []string
	seen := make(map[string]bool)
	queue := append([]string(nil), roots...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true

		if !recalculable(m.LookupMemberByID(id)) {
			continue
		}
		d := m.GetMutableMember(id).(model.Dependent)
		d.PrepareForCalculate()
		pending = append(pending, id)
		queue = append(queue, m.ImpactsList(id)...)
	}
	return pending
}

// recalculable reports whether a member derives its value. A codeable member
// without code holds plain data and is left alone.
func recalculable(member model.Member) bool {
	if member == nil {
		return false
	}
	if c, ok := member.(model.Codeable); ok {
		return c.HasCode()
	}
	_, ok := member.(model.Dependent)
	return ok
}

// orderPending sorts the pending members so each follows the pending members
// it depends on. Members on a cycle are appended in reach order; the reentry
// guard of the model flags them when they are calculated.
func orderPending(m *model.Model, pending []string) []string {
	g := dag.New()
	for _, id := range pending {
		g.AddNode(id)
	}
	for _, id := range pending {
		d, ok := m.LookupMemberByID(id).(model.Dependent)
		if !ok {
			continue
		}
		for _, dep := range d.DependsOn() {
			if g.HasNode(dep) {
				// Self edges are rejected; a member reading itself is caught at
				// calculation.
				_ = g.AddEdge(dep, id)
			}
		}
	}

	order, err := g.TopoSort()
	var cycle *dag.CycleError
	if errors.As(err, &cycle) {
		order = append(order, cycle.Remaining...)
	}
	return order
}
