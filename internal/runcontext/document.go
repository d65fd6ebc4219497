package runcontext

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vk/calcgrid/internal/action"
	"github.com/vk/calcgrid/internal/ctxlog"
	"github.com/vk/calcgrid/internal/eventbus"
	"github.com/vk/calcgrid/internal/model"
)

// ErrClosed is returned for actions sent to a closed document.
var ErrClosed = errors.New("document is closed")

// job is one queued action. reply is nil for fire-and-forget actions.
type job struct {
	data  *model.ActionData
	reply chan *model.ActionResult
}

// Document is a run context serving one model lineage.
type Document struct {
	id        string
	env       *model.Environment
	publisher eventbus.Publisher

	mu        sync.RWMutex
	confirmed *model.Model
	closed    bool
	queue     []job

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
	ctx  context.Context
}

var _ model.RunContext = (*Document)(nil)

// Open loads doc and starts serving it. The publisher may be nil. A document
// that fails to load is not opened.
func Open(ctx context.Context, id string, env *model.Environment, doc *model.ModelJSON, publisher eventbus.Publisher) (*Document, error) {
	ctx = ctxlog.With(ctx, "document", id)
	d := &Document{
		id:        id,
		env:       env,
		publisher: publisher,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		ctx:       ctx,
	}

	link := model.NewRunContextLink(d)
	m, res := action.LoadModel(ctx, env, link, doc)
	link.SetStateValid(res.ActionDone)
	if !res.ActionDone {
		return nil, fmt.Errorf("load document %s: %s", id, res.ErrorMsg)
	}
	d.confirmed = m

	go d.loop()
	ctxlog.FromContext(ctx).Debug("Document opened.", "members", len(m.Members()))
	return d, nil
}

// ID returns the document id.
func (d *Document) ID() string { return d.id }

// ConfirmedModel implements model.RunContext.
func (d *Document) ConfirmedModel() *model.Model {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.confirmed
}

// IsActive implements model.RunContext.
func (d *Document) IsActive() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.closed
}

// FutureExecuteAction implements model.RunContext. The action runs after
// everything already queued. Actions for another model id are dropped.
func (d *Document) FutureExecuteAction(modelID string, data *model.ActionData) {
	logger := ctxlog.FromContext(d.ctx)
	if current := d.ConfirmedModel(); current != nil && current.ID() != modelID {
		logger.Warn("Dropping action for another model.", "model", modelID, "action", data.Action)
		return
	}
	if err := d.enqueue(job{data: data}); err != nil {
		logger.Debug("Dropping action for a closed document.", "action", data.Action)
	}
}

// Execute runs an action and waits for its result. The context bounds the
// wait only: an action that has started always runs to completion.
func (d *Document) Execute(ctx context.Context, data *model.ActionData) (*model.ActionResult, error) {
	reply := make(chan *model.ActionResult, 1)
	if err := d.enqueue(job{data: data, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.done:
		select {
		case res := <-reply:
			return res, nil
		default:
			return nil, ErrClosed
		}
	}
}

// Snapshot renders the confirmed model as a document.
func (d *Document) Snapshot() (*model.ModelJSON, error) {
	return d.ConfirmedModel().ToJSON()
}

// Close stops the document after the action in progress. Queued actions are
// dropped. Close is safe to call more than once.
func (d *Document) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	dropped := len(d.queue)
	d.queue = nil
	d.mu.Unlock()

	close(d.stop)
	<-d.done
	ctxlog.FromContext(d.ctx).Debug("Document closed.", "dropped_actions", dropped)
}

func (d *Document) enqueue(j job) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.queue = append(d.queue, j)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

func (d *Document) next() (job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || len(d.queue) == 0 {
		return job{}, false
	}
	j := d.queue[0]
	d.queue[0] = job{}
	d.queue = d.queue[1:]
	return j, true
}

// loop is the only goroutine that changes the lineage.
func (d *Document) loop() {
	defer close(d.done)
	for {
		select {
		case <-d.stop:
			return
		case <-d.wake:
		}
		for {
			j, ok := d.next()
			if !ok {
				break
			}
			res := d.apply(j.data)
			if j.reply != nil {
				j.reply <- res
			}
		}
	}
}

// apply runs one action on a successor of the confirmed model and confirms
// the successor when the action is done.
func (d *Document) apply(data *model.ActionData) *model.ActionResult {
	link := model.NewRunContextLink(d)
	next := d.ConfirmedModel().GetMutableModel(link)
	res := d.env.Runner.Do(d.ctx, next, data)
	link.SetStateValid(res.ActionDone)
	if !res.ActionDone {
		return res
	}

	d.mu.Lock()
	d.confirmed = next
	d.mu.Unlock()

	if d.publisher != nil && len(res.Events) > 0 {
		if err := d.publisher.Publish(d.ctx, eventbus.NewMessage(d.id, res.Events)); err != nil {
			ctxlog.FromContext(d.ctx).Warn("Failed to publish change events.", "error", err)
		}
	}
	return res
}
