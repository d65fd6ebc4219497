// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/petermattis/goid"
	"github.com/vk/calcgrid/internal/fieldobject"
)

const (
	fieldModelName  = "name"
	fieldObjectMap  = "objectMap"
	fieldImpactsMap = "impactsMap"
	fieldChildIDMap = "childIdMap"
)

// Model is the root of a member tree. A locked model is an immutable
// snapshot; every action works on a mutable successor obtained with
// GetMutableModel and locks it when done.
type Model struct {
	*fieldobject.FieldObject
	env  *Environment
	link *RunContextLink

	// Working state of one instance. None of it is copied.
	workingObjects map[string]Member
	workingImpacts map[string][]string
	changes        *changeLog

	actionInProgress bool
	actionOwner      int64
	calculating      bool
	messengerActions []*ActionData
	consecutiveCount int
	consecutiveLimit int
	initStack        []string
	circular         map[string]bool
	ctx              context.Context

	scopeOnce sync.Once
	scope     *ScopeManager
}

// NewModel creates an empty, unlocked model.
func NewModel(env *Environment, link *RunContextLink) *Model {
	m := &Model{
		FieldObject:      fieldobject.New("model", ""),
		env:              env,
		link:             link,
		changes:          newChangeLog(),
		consecutiveLimit: ConsecutiveActionInitialLimit,
	}
	m.MustSetField(fieldModelName, DefaultModelName)
	m.MustSetField(fieldObjectMap, map[string]Member{})
	m.MustSetField(fieldImpactsMap, map[string][]string{})
	m.MustSetField(fieldChildIDMap, emptyChildMap)
	link.registerModel(m)
	return m
}

func (m *Model) copyModel(link *RunContextLink) *Model {
	cp := &Model{
		FieldObject:      fieldobject.NewCopy(m.FieldObject),
		env:              m.env,
		link:             link,
		changes:          newChangeLog(),
		consecutiveLimit: ConsecutiveActionInitialLimit,
	}
	link.registerModel(cp)
	return cp
}

// Env returns the environment shared by the lineage.
func (m *Model) Env() *Environment { return m.env }

// Types returns the member type registry of the lineage.
func (m *Model) Types() *TypeRegistry { return m.env.types() }

// Link returns the run context link of this instance.
func (m *Model) Link() *RunContextLink { return m.link }

// Name returns the model name.
func (m *Model) Name() string {
	name, _ := m.GetField(fieldModelName).(string)
	return name
}

// SetName renames the model.
func (m *Model) SetName(name string) { m.MustSetField(fieldModelName, name) }

// Context is the context of the action in progress.
func (m *Model) Context() context.Context {
	if m.ctx == nil {
		return context.Background()
	}
	return m.ctx
}

// SetContext sets the context used by calculations on this instance.
func (m *Model) SetContext(ctx context.Context) { m.ctx = ctx }

// GetMutableModel returns a model that may be changed under link: a new
// successor of a locked model, or the model itself when it is already open
// under the same link.
func (m *Model) GetMutableModel(link *RunContextLink) *Model {
	if m.IsLocked() {
		return m.copyModel(link)
	}
	if m.link == link {
		return m
	}
	panic("Unknown run context change in model!")
}

// GetCleanCopy returns an unlocked copy under a new link. Unlocked members
// are copied, locked ones are shared.
func (m *Model) GetCleanCopy(link *RunContextLink) *Model {
	if !m.IsLocked() {
		m.finalize()
	}
	cp := m.copyModel(link)
	cp.populateWorkingObjects()
	for id, member := range m.objectMap() {
		if !member.IsLocked() {
			cp.workingObjects[id] = member.copyMember()
		}
	}
	return cp
}

// LockAll completes any lazy initialization and locks the model and every
// member.
func (m *Model) LockAll() {
	var lazy []*FunctionMember
	for _, member := range m.activeObjects() {
		if fm, ok := member.(*FunctionMember); ok && !fm.IsLocked() {
			lazy = append(lazy, fm)
		}
	}
	for _, fm := range lazy {
		fm.lazyInitializeIfNeeded()
	}

	m.finalize()
	for _, member := range m.objectMap() {
		member.Lock()
	}
	m.Lock()
}

func (m *Model) finalize() {
	if m.workingImpacts != nil {
		m.MustSetField(fieldImpactsMap, m.workingImpacts)
		m.workingImpacts = nil
	}
	if m.workingObjects != nil {
		m.MustSetField(fieldObjectMap, m.workingObjects)
		m.workingObjects = nil
	}
}

func (m *Model) objectMap() map[string]Member {
	objects, _ := m.GetField(fieldObjectMap).(map[string]Member)
	return objects
}

func (m *Model) activeObjects() map[string]Member {
	if m.workingObjects != nil {
		return m.workingObjects
	}
	return m.objectMap()
}

func (m *Model) populateWorkingObjects() {
	src := m.objectMap()
	m.workingObjects = make(map[string]Member, len(src)+1)
	for id, member := range src {
		m.workingObjects[id] = member
	}
}

// LookupObjectByID returns the model itself or one of its members, or nil.
func (m *Model) LookupObjectByID(id string) Object {
	if id == m.ID() {
		return m
	}
	if member, ok := m.activeObjects()[id]; ok {
		return member
	}
	return nil
}

// LookupMemberByID returns a member, or nil.
func (m *Model) LookupMemberByID(id string) Member {
	member, ok := m.activeObjects()[id]
	if !ok {
		return nil
	}
	return member
}

// LookupMemberByPath resolves a dotted full name such as "main.ns.x".
func (m *Model) LookupMemberByPath(fullName string) Member {
	if fullName == "" {
		return nil
	}
	return lookupChildFromPath(m, m, strings.Split(fullName, "."))
}

func lookupChildFromPath(m *Model, parent Parent, path []string) Member {
	child := parent.LookupChild(m, path[0])
	if child == nil || len(path) == 1 {
		return child
	}
	if p, ok := child.(Parent); ok {
		return lookupChildFromPath(m, p, path[1:])
	}
	return child
}

// Members returns every member of the model.
func (m *Model) Members() []Member {
	objects := m.activeObjects()
	out := make([]Member, 0, len(objects))
	for _, member := range objects {
		out = append(out, member)
	}
	return out
}

func sortedMembers(m *Model) []Member {
	members := m.Members()
	sort.Slice(members, func(i, j int) bool {
		return members[i].FullName(m) < members[j].FullName(m)
	})
	return members
}

// GetMutableMember returns a writable instance of a member, copying and
// registering a locked one. It returns nil for an unknown id.
func (m *Model) GetMutableMember(id string) Member {
	if m.IsLocked() {
		panic("The model must be unlocked to get a mutable member.")
	}
	if id == m.ID() {
		panic("Given ID is not a member ID!")
	}
	member := m.LookupMemberByID(id)
	if member == nil {
		return nil
	}
	if !member.IsLocked() {
		return member
	}
	cp := member.copyMember()
	m.RegisterMember(cp)
	return cp
}

// AttachMember links a new member to its parent.
func (m *Model) AttachMember(parent Parent, member Member) error {
	member.base().setParentID(parent.ID())
	return parent.AddChild(m, member)
}

// DeleteMember drops the dependency bookkeeping of member and unregisters
// it. The caller removes it from its parent.
func (m *Model) DeleteMember(member Member) {
	member.onDelete(m)
	m.UnregisterMember(member)
}

// GetMutableParent returns a writable parent: the model itself or a
// container member.
func (m *Model) GetMutableParent(id string) Parent {
	if id == m.ID() {
		if m.IsLocked() {
			panic("The model is locked!")
		}
		return m
	}
	p, _ := m.GetMutableMember(id).(Parent)
	return p
}

// RegisterMember adds or replaces a member instance.
func (m *Model) RegisterMember(member Member) {
	if m.workingObjects == nil {
		m.populateWorkingObjects()
	}
	id := member.ID()
	_, exists := m.workingObjects[id]
	m.changes.register(id, member, exists)
	m.workingObjects[id] = member
}

// UnregisterMember removes a member instance.
func (m *Model) UnregisterMember(member Member) {
	if m.workingObjects == nil {
		m.populateWorkingObjects()
	}
	m.changes.unregister(member.ID(), member)
	delete(m.workingObjects, member.ID())
}

// Changes returns the change events of the current action in registration
// order. Created and updated entries carry the current instance.
func (m *Model) Changes() []ChangeEvent {
	var out []ChangeEvent
	for _, entry := range m.changes.entries() {
		ev := ChangeEvent{Event: entry.action, MemberID: entry.id, Member: entry.instance}
		switch entry.action {
		case eventTransient:
			continue
		case EventCreated, EventUpdated:
			if current := m.LookupMemberByID(entry.id); current != nil {
				ev.Member = current
			}
		}
		ev.FullName = ev.Member.FullName(m)
		if ev.Event != EventDeleted {
			ev.State = ev.Member.State()
		}
		out = append(out, ev)
	}
	return out
}

// impactsMap returns the active impacts map.
func (m *Model) impactsMap() map[string][]string {
	if m.workingImpacts != nil {
		return m.workingImpacts
	}
	impacts, _ := m.GetField(fieldImpactsMap).(map[string][]string)
	return impacts
}

// ImpactsList returns the ids of the members that depend on memberID.
func (m *Model) ImpactsList(memberID string) []string {
	list := m.impactsMap()[memberID]
	out := make([]string, len(list))
	copy(out, list)
	return out
}

func (m *Model) workingImpactsList(memberID string) []string {
	if m.workingImpacts == nil {
		src, _ := m.GetField(fieldImpactsMap).(map[string][]string)
		m.workingImpacts = make(map[string][]string, len(src))
		for id, list := range src {
			m.workingImpacts[id] = append([]string(nil), list...)
		}
	}
	return m.workingImpacts[memberID]
}

// AddToImpactsList records that dependentID reads memberID. Self edges and
// duplicates are ignored. It reports whether the entry was added.
func (m *Model) AddToImpactsList(dependentID, memberID string) bool {
	if dependentID == memberID {
		return false
	}
	list := m.workingImpactsList(memberID)
	for _, id := range list {
		if id == dependentID {
			return false
		}
	}
	m.workingImpacts[memberID] = append(list, dependentID)
	return true
}

// RemoveFromImpactsList drops the dependentID entry for memberID.
func (m *Model) RemoveFromImpactsList(dependentID, memberID string) {
	list := m.workingImpactsList(memberID)
	for i, id := range list {
		if id == dependentID {
			next := make([]string, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(m.workingImpacts, memberID)
			} else {
				m.workingImpacts[memberID] = next
			}
			return
		}
	}
}

// UpdateDependenciesForModelChange re-resolves the dependencies of every
// member after a structural change.
func (m *Model) UpdateDependenciesForModelChange(updated *[]Member) {
	for _, child := range m.children() {
		if d, ok := child.(Dependent); ok {
			d.UpdateDependenciesForModelChange(m, updated)
		}
	}
}

// Parent implementation. The model is the scope root.

func (m *Model) ChildMap() *ChildMap {
	cm, _ := m.GetField(fieldChildIDMap).(*ChildMap)
	return cm
}

func (m *Model) LookupChild(_ *Model, name string) Member {
	id, ok := m.ChildMap().Get(name)
	if !ok {
		return nil
	}
	return m.LookupMemberByID(id)
}

func (m *Model) children() []Member {
	var out []Member
	for _, id := range m.ChildMap().IDs() {
		if child := m.LookupMemberByID(id); child != nil {
			out = append(out, child)
		}
	}
	return out
}

func (m *Model) AddChild(_ *Model, child Member) error {
	if _, exists := m.ChildMap().Get(child.Name()); exists {
		return errDuplicateName
	}
	m.MustSetField(fieldChildIDMap, m.ChildMap().with(child.Name(), child.ID()))
	return nil
}

func (m *Model) RemoveChild(_ *Model, child Member) {
	if child.ParentID() != m.ID() {
		return
	}
	m.MustSetField(fieldChildIDMap, m.ChildMap().without(child.Name()))
}

func (m *Model) ChildDataUpdate(*Model, Member) {}

func (m *Model) ChildFullName(_ *Model, childName string) string { return childName }

func (m *Model) ScopeManager() *ScopeManager {
	m.scopeOnce.Do(func() {
		m.scope = newScopeManager(m, m, true)
	})
	return m.scope
}

var errDuplicateName = errors.New("There is already an object with the given name.")

// Action bookkeeping used by the action pipeline.

// IsActionInProgress reports whether an action is running on this instance.
func (m *Model) IsActionInProgress() bool { return m.actionInProgress }

// ActionOwnedByCaller reports whether the running action belongs to the
// calling goroutine.
func (m *Model) ActionOwnedByCaller() bool {
	return m.actionInProgress && m.actionOwner == goid.Get()
}

// SetActionInProgress marks the start or end of an action on the calling
// goroutine.
func (m *Model) SetActionInProgress(inProgress bool) {
	m.actionInProgress = inProgress
	if inProgress {
		m.actionOwner = goid.Get()
	} else {
		m.actionOwner = 0
	}
}

// IsCalculating reports whether a recalculation is running.
func (m *Model) IsCalculating() bool { return m.calculating }

// SetCalculating marks the recalculation phase.
func (m *Model) SetCalculating(calculating bool) {
	m.calculating = calculating
	if !calculating {
		m.initStack = nil
		m.circular = nil
	}
}

// SaveMessengerAction queues an action posted during recalculation.
func (m *Model) SaveMessengerAction(data *ActionData) {
	m.messengerActions = append(m.messengerActions, data)
}

// TakeMessengerAction returns the queued actions as one compound action and
// empties the queue. It returns nil when nothing is queued.
func (m *Model) TakeMessengerAction() *ActionData {
	if len(m.messengerActions) == 0 {
		return nil
	}
	actions := m.messengerActions
	m.messengerActions = nil
	return &ActionData{Action: ActionCompound, Actions: actions}
}

// CheckConsecutiveQueuedActionLimitExceeded counts one more queued round and
// reports whether the limit was passed. Passing it doubles the limit.
func (m *Model) CheckConsecutiveQueuedActionLimitExceeded() bool {
	m.consecutiveCount++
	exceeded := m.consecutiveCount > m.consecutiveLimit
	if exceeded {
		m.consecutiveLimit *= 2
	}
	return exceeded
}

// ClearConsecutiveQueuedTracking resets the queued round counter.
func (m *Model) ClearConsecutiveQueuedTracking() {
	m.consecutiveCount = 0
	m.consecutiveLimit = ConsecutiveActionInitialLimit
}

// ClearCommandQueue drops the queued actions.
func (m *Model) ClearCommandQueue() {
	m.messengerActions = nil
	m.ClearConsecutiveQueuedTracking()
}

// ExecuteAction runs an action posted by member code. Inside the action in
// progress on this goroutine it goes through the pipeline directly, which
// queues it while recalculating. Otherwise it is handed to the run context.
func (m *Model) ExecuteAction(data *ActionData) {
	if m.ActionOwnedByCaller() && m.env != nil && m.env.Runner != nil {
		m.env.Runner.Do(m.Context(), m, data)
		return
	}
	m.link.FutureExecuteAction(m.ID(), data)
}

func (m *Model) pushInit(id string) { m.initStack = append(m.initStack, id) }

func (m *Model) popInit(id string) {
	if n := len(m.initStack); n > 0 && m.initStack[n-1] == id {
		m.initStack = m.initStack[:n-1]
	}
	delete(m.circular, id)
}

// markCircular flags every member on the init stack from the first entry of
// id onwards.
func (m *Model) markCircular(id string) {
	for i, stacked := range m.initStack {
		if stacked != id {
			continue
		}
		if m.circular == nil {
			m.circular = make(map[string]bool)
		}
		for _, member := range m.initStack[i:] {
			m.circular[member] = true
		}
		return
	}
}

func (m *Model) isCircular(id string) bool { return m.circular[id] }

func (m *Model) String() string {
	return fmt.Sprintf("Model(%s, %d members)", m.Name(), len(m.activeObjects()))
}

// changeLog records the members touched by one action, in first-touch order.
type changeLog struct {
	order []string
	byID  map[string]*changeEntry
}

type changeEntry struct {
	id       string
	action   string
	instance Member
}

func newChangeLog() *changeLog {
	return &changeLog{byID: make(map[string]*changeEntry)}
}

func (c *changeLog) register(id string, member Member, existed bool) {
	if _, ok := c.byID[id]; ok {
		return
	}
	action := EventCreated
	if existed {
		action = EventUpdated
	}
	c.add(&changeEntry{id: id, action: action, instance: member})
}

func (c *changeLog) unregister(id string, member Member) {
	entry, ok := c.byID[id]
	if !ok {
		c.add(&changeEntry{id: id, action: EventDeleted, instance: member})
		return
	}
	switch entry.action {
	case EventCreated:
		entry.action = eventTransient
	case eventTransient:
	default:
		entry.action = EventDeleted
	}
	entry.instance = member
}

func (c *changeLog) add(entry *changeEntry) {
	c.order = append(c.order, entry.id)
	c.byID[entry.id] = entry
}

func (c *changeLog) entries() []*changeEntry {
	out := make([]*changeEntry, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}
