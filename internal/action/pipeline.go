package action

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vk/calcgrid/internal/ctxlog"
	"github.com/vk/calcgrid/internal/model"
)

// Handler applies one kind of action to an unlocked model.
type Handler func(p *Pipeline, m *model.Model, data *model.ActionData) *model.ActionResult

// Pipeline runs actions. It implements model.ActionRunner.
type Pipeline struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// New returns a pipeline with the built-in actions registered.
func New() *Pipeline {
	p := &Pipeline{handlers: make(map[string]Handler)}
	p.Register(model.ActionCreateMember, createMemberAction)
	p.Register(model.ActionDeleteMember, deleteMemberAction)
	p.Register(model.ActionUpdateData, updateDataAction)
	p.Register(model.ActionUpdateCode, updateCodeAction)
	p.Register(model.ActionUpdateFolderFunction, updateFolderFunctionAction)
	p.Register(model.ActionSetField, setFieldAction)
	p.Register(model.ActionCompound, compoundAction)
	return p
}

// Register adds a handler. Registering a name twice panics.
func (p *Pipeline) Register(name string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.handlers[name]; exists {
		panic(fmt.Sprintf("action handler with name '%s' already registered", name))
	}
	slog.Debug("Registering action handler.", "name", name)
	p.handlers[name] = h
}

func (p *Pipeline) handler(name string) (Handler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handlers[name]
	return h, ok
}

// run dispatches one action without any of the transaction steps.
func (p *Pipeline) run(m *model.Model, data *model.ActionData) *model.ActionResult {
	if data == nil {
		return model.Failed("Missing action data")
	}
	h, ok := p.handler(data.Action)
	if !ok {
		return model.Failed("Unknown action: " + data.Action)
	}
	return h(p, m, data)
}

// Do applies data to m, an unlocked successor from GetMutableModel, and locks
// it. An action issued while another one is in progress on the same
// goroutine runs inline, or is queued when a recalculation is running.
//
// Do always returns a result. A result with ActionDone false leaves a model
// the caller should discard.
func (p *Pipeline) Do(ctx context.Context, m *model.Model, data *model.ActionData) *model.ActionResult {
	if data == nil {
		return model.Failed("Missing action data")
	}
	if _, ok := p.handler(data.Action); !ok {
		return model.Failed("Unknown action: " + data.Action)
	}

	if m.IsActionInProgress() {
		if !m.ActionOwnedByCaller() {
			panic("action started on a model owned by another goroutine")
		}
		if m.IsCalculating() {
			m.SaveMessengerAction(data)
			return &model.ActionResult{ActionDone: true, ActionPending: true}
		}
		return p.run(m, data)
	}

	if m.IsLocked() {
		panic("The model must be unlocked to run an action.")
	}

	result := p.transact(ctx, m, data)
	if result.ActionDone {
		p.drainMessengerActions(ctx, m)
	}
	result.Events = m.Changes()
	m.LockAll()
	return result
}

// transact runs one top level action and the recalculation it calls for.
func (p *Pipeline) transact(ctx context.Context, m *model.Model, data *model.ActionData) *model.ActionResult {
	m.SetContext(ctx)
	m.SetActionInProgress(true)
	defer m.SetActionInProgress(false)

	result := p.run(m, data)
	if !result.ActionDone {
		ctxlog.FromContext(ctx).Debug("Action failed.", "action", data.Action, "error", result.ErrorMsg)
		return result
	}
	recalculate(m, result)
	return result
}

// drainMessengerActions runs the actions member code queued during
// recalculation, round after round, until nothing is left.
func (p *Pipeline) drainMessengerActions(ctx context.Context, m *model.Model) {
	logger := ctxlog.FromContext(ctx)
	for {
		queued := m.TakeMessengerAction()
		if queued == nil {
			m.ClearConsecutiveQueuedTracking()
			return
		}
		if m.CheckConsecutiveQueuedActionLimitExceeded() {
			logger.Error("Too many consecutive messenger actions; dropping the queue.", "model", m.Name())
			m.ClearCommandQueue()
			return
		}
		if res := p.transact(ctx, m, queued); !res.ActionDone {
			logger.Warn("Messenger action failed.", "error", res.ErrorMsg)
		}
	}
}
