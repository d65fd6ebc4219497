package runcontext_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/calcgrid/internal/action"
	"github.com/vk/calcgrid/internal/eventbus"
	"github.com/vk/calcgrid/internal/globals"
	"github.com/vk/calcgrid/internal/model"
	"github.com/vk/calcgrid/internal/promise"
	"github.com/vk/calcgrid/internal/runcontext"
	"github.com/vk/calcgrid/internal/testutil"
	"github.com/vk/calcgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

func openDocument(t *testing.T, g *globals.Resolver, pub eventbus.Publisher) *runcontext.Document {
	t.Helper()
	if g == nil {
		g = globals.Default()
	}
	d, err := runcontext.Open(context.Background(), "doc-1", action.NewEnvironment(g), model.EmptyModelJSON(), pub)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func create(t *testing.T, d *runcontext.Document, mj *model.MemberJSON) *model.ActionResult {
	t.Helper()
	res, err := d.Execute(context.Background(), &model.ActionData{
		Action:     model.ActionCreateMember,
		ParentID:   member(t, d, "main").ID(),
		CreateData: mj,
	})
	require.NoError(t, err)
	return res
}

func member(t *testing.T, d *runcontext.Document, path string) model.Member {
	t.Helper()
	m := d.ConfirmedModel().LookupMemberByPath(path)
	require.NotNil(t, m, "member %s not found", path)
	return m
}

func TestDocument_ExecuteConfirms(t *testing.T) {
	d := openDocument(t, nil, nil)
	first := d.ConfirmedModel()
	require.True(t, first.IsLocked())

	res := create(t, d, testutil.DataJSON("x", cty.NumberIntVal(2)))
	require.True(t, res.ActionDone, res.ErrorMsg)
	res = create(t, d, testutil.FormulaJSON("y", "x * 3"))
	require.True(t, res.ActionDone, res.ErrorMsg)

	assert.NotSame(t, first, d.ConfirmedModel())
	assert.Equal(t, first.ID(), d.ConfirmedModel().ID())
	testutil.AssertNormal(t, member(t, d, "main.y"), cty.NumberIntVal(6))
	assert.Nil(t, first.LookupMemberByPath("main.y"), "earlier snapshots are unchanged")
}

func TestDocument_FailedActionRollsBack(t *testing.T) {
	d := openDocument(t, nil, nil)
	create(t, d, testutil.DataJSON("x", cty.NumberIntVal(1)))
	before := d.ConfirmedModel()

	res, err := d.Execute(context.Background(), &model.ActionData{Action: model.ActionCompound, Actions: []*model.ActionData{
		{Action: model.ActionUpdateData, MemberID: member(t, d, "main.x").ID(), Data: cty.NumberIntVal(2)},
		{Action: model.ActionDeleteMember, MemberID: "nope"},
	}})
	require.NoError(t, err)
	assert.False(t, res.ActionDone)
	assert.Same(t, before, d.ConfirmedModel())
	testutil.AssertNormal(t, member(t, d, "main.x"), cty.NumberIntVal(1))
}

func TestDocument_PromiseCompletionIsApplied(t *testing.T) {
	g := globals.Default()
	p := promise.New()
	g.RegisterValue("quote", value.PromiseVal(p))

	hub := eventbus.NewHub()
	d := openDocument(t, g, hub)
	events, cancel := hub.Subscribe(d.ID(), 16)
	defer cancel()

	create(t, d, testutil.FormulaJSON("price", "quote"))
	create(t, d, testutil.FormulaJSON("total", "price * 2"))
	require.Equal(t, model.StatePending, member(t, d, "main.total").State())

	require.NoError(t, p.Resolve(cty.NumberIntVal(21)))
	require.Eventually(t, func() bool {
		return member(t, d, "main.total").State() == model.StateNormal
	}, 2*time.Second, 5*time.Millisecond)
	testutil.AssertNormal(t, member(t, d, "main.total"), cty.NumberIntVal(42))

	// Two creates and the promise update.
	var got []eventbus.Message
	require.Eventually(t, func() bool {
		for {
			select {
			case msg := <-events:
				got = append(got, msg)
			default:
				return len(got) >= 3
			}
		}
	}, 2*time.Second, 5*time.Millisecond)
	last := got[len(got)-1]
	assert.Equal(t, d.ID(), last.DocumentID)
	var names []string
	for _, ev := range last.Events {
		names = append(names, ev.FullName)
	}
	assert.Contains(t, names, "main.price")
	assert.Contains(t, names, "main.total")
}

func TestDocument_FutureActionForAnotherModelIsDropped(t *testing.T) {
	d := openDocument(t, nil, nil)
	create(t, d, testutil.DataJSON("x", cty.NumberIntVal(1)))
	before := d.ConfirmedModel()

	d.FutureExecuteAction("some-other-model", &model.ActionData{
		Action:   model.ActionUpdateData,
		MemberID: member(t, d, "main.x").ID(),
		Data:     cty.NumberIntVal(2),
	})
	// Execute is queued behind anything posted before it.
	create(t, d, testutil.DataJSON("z", cty.NumberIntVal(0)))
	testutil.AssertNormal(t, member(t, d, "main.x"), cty.NumberIntVal(1))
	assert.NotSame(t, before, d.ConfirmedModel())
}

func TestDocument_ActionsAreSerialized(t *testing.T) {
	d := openDocument(t, nil, nil)
	create(t, d, testutil.DataJSON("n", cty.NumberIntVal(0)))
	create(t, d, testutil.FormulaJSON("double", "n * 2"))
	id := member(t, d, "main.n").ID()

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := d.Execute(context.Background(), &model.ActionData{
				Action: model.ActionUpdateData, MemberID: id, Data: cty.NumberIntVal(int64(i)),
			})
			assert.NoError(t, err)
			assert.True(t, res.ActionDone)
		}(i)
	}
	wg.Wait()

	n := member(t, d, "main.n").Data()
	double := member(t, d, "main.double").Data()
	assert.True(t, n.Multiply(cty.NumberIntVal(2)).RawEquals(double), "n=%#v double=%#v", n, double)
}

func TestDocument_Close(t *testing.T) {
	d := openDocument(t, nil, nil)
	d.Close()
	d.Close()

	assert.False(t, d.IsActive())
	_, err := d.Execute(context.Background(), &model.ActionData{Action: model.ActionCompound})
	assert.ErrorIs(t, err, runcontext.ErrClosed)

	snap, err := d.Snapshot()
	require.NoError(t, err)
	assert.NotNil(t, snap.Children.Get(model.RootFolderName))
}

func TestOpen_BadDocument(t *testing.T) {
	doc := model.EmptyModelJSON()
	doc.Children.Add(&model.MemberJSON{Name: "for", Type: model.TypeFolder})

	_, err := runcontext.Open(context.Background(), "bad", action.NewEnvironment(globals.Default()), doc, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Illegal name: for")
}

func TestExecute_ContextCancelled(t *testing.T) {
	d := openDocument(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Either outcome is fine as long as Execute returns.
	res, err := d.Execute(ctx, &model.ActionData{Action: model.ActionCompound})
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	} else {
		assert.True(t, res.ActionDone)
	}
}
