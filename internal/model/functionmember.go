// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import (
	"errors"
	"fmt"
	"sync"

	"github.com/petermattis/goid"
	"github.com/vk/calcgrid/internal/codecompiler"
	"github.com/vk/calcgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// FunctionMember exposes its code as a function other members can call. The
// code's dependencies are bound lazily, on the first call or when the model
// is locked.
type FunctionMember struct {
	codeable
}

// NewFunctionMember creates a detached function member.
func NewFunctionMember(name, id string) *FunctionMember {
	f := &FunctionMember{}
	f.initCodeable(f, TypeFunctionMember, name, id, true, false)
	return f
}

func createFunctionMember(m *Model, mj *MemberJSON) (Member, error) {
	f := NewFunctionMember(mj.Name, mj.SpecialCaseIDValue)
	if err := f.loadFields(m, mj.Fields); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FunctionMember) copyMember() Member {
	cp := &FunctionMember{}
	cp.initCodeableCopy(cp, &f.codeable)
	return cp
}

func (f *FunctionMember) processMemberFunction(m *Model, _ *codecompiler.CompiledInfo) {
	f.SetData(m, value.FunctionVal(&memberCallable{m: m, member: f}))
}

func (f *FunctionMember) ToJSON(m *Model) (*MemberJSON, error) {
	return f.codeableJSON(m)
}

// lazyInitializeIfNeeded binds the function now if it has not been called
// yet. Failures are already recorded in the member state.
func (f *FunctionMember) lazyInitializeIfNeeded() {
	if c, ok := value.AsCallable(f.Data()); ok {
		if mc, ok := c.(*memberCallable); ok && mc.member == f {
			_ = mc.initIfNeeded()
		}
	}
}

type initState int

const (
	initNone initState = iota
	initRunning
	initDone
)

// memberCallable is the function value of a FunctionMember.
type memberCallable struct {
	m      *Model
	member *FunctionMember

	mu    sync.Mutex
	state initState
	fn    codecompiler.MemberFunction
	err   error
}

func (c *memberCallable) Name() string { return c.member.Name() }

func (c *memberCallable) initIfNeeded() error {
	c.mu.Lock()
	switch c.state {
	case initDone:
		c.mu.Unlock()
		return c.err
	case initRunning:
		c.mu.Unlock()
		return fmt.Errorf("Recursive call to function %s during initialization", c.member.Name())
	}
	c.state = initRunning
	c.mu.Unlock()

	fn, err := c.initialize()

	c.mu.Lock()
	c.fn, c.err, c.state = fn, err, initDone
	c.mu.Unlock()
	return err
}

func (c *memberCallable) initialize() (codecompiler.MemberFunction, error) {
	if fn, ok := c.member.initializeMemberFunction(c.m); ok {
		return fn, nil
	}
	switch c.member.State() {
	case StateError:
		return nil, newDependsOnError(c.m, []Member{c.member})
	case StatePending:
		return nil, value.ErrPending
	case StateInvalid:
		return nil, value.ErrInvalid
	default:
		return nil, fmt.Errorf("Unknown problem in initializing: %s", c.member.Name())
	}
}

func (c *memberCallable) Call(args []cty.Value) value.Result {
	if err := c.initIfNeeded(); err != nil {
		return value.FromError(err)
	}
	gid, ok := callDepths.enter()
	if !ok {
		return value.Failed(withTrace(c.m, ErrMaxCallDepth, c.member))
	}
	defer callDepths.leave(gid)
	res := c.fn(args)
	if res.Kind == value.KindError && !IsDependsOnError(res.Err) && !errors.Is(res.Err, ErrCircularReference) {
		res.Err = withTrace(c.m, res.Err, c.member)
	}
	return res
}

// MaxCallDepth bounds the nesting of function member calls on one goroutine.
const MaxCallDepth = 1000

// ErrMaxCallDepth is raised by a function call nested deeper than
// MaxCallDepth.
var ErrMaxCallDepth = errors.New("Maximum call depth exceeded")

var callDepths = &callDepthTable{depth: make(map[int64]int)}

// callDepthTable counts the function member calls in progress per goroutine.
type callDepthTable struct {
	mu    sync.Mutex
	depth map[int64]int
}

func (t *callDepthTable) enter() (int64, bool) {
	gid := goid.Get()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.depth[gid] >= MaxCallDepth {
		return gid, false
	}
	t.depth[gid]++
	return gid, true
}

func (t *callDepthTable) leave(gid int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.depth[gid] <= 1 {
		delete(t.depth, gid)
		return
	}
	t.depth[gid]--
}
