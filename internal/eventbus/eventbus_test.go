package eventbus_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/calcgrid/internal/eventbus"
	"github.com/vk/calcgrid/internal/model"
	"github.com/vk/calcgrid/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

func TestHub_PublishAndCancel(t *testing.T) {
	hub := eventbus.NewHub()
	ctx := context.Background()

	a, cancelA := hub.Subscribe("doc", 4)
	b, cancelB := hub.Subscribe("doc", 4)
	other, cancelOther := hub.Subscribe("other", 4)
	defer cancelOther()
	assert.Equal(t, 2, hub.Subscribers("doc"))

	msg := eventbus.Message{DocumentID: "doc", Events: []eventbus.Event{{Event: model.EventUpdated, MemberID: "x"}}}
	require.NoError(t, hub.Publish(ctx, msg))

	assert.Equal(t, msg, <-a)
	assert.Equal(t, msg, <-b)
	select {
	case got := <-other:
		t.Fatalf("unexpected message for another document: %+v", got)
	default:
	}

	cancelA()
	cancelA()
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, hub.Subscribers("doc"))

	cancelB()
	assert.Equal(t, 0, hub.Subscribers("doc"))
	require.NoError(t, hub.Publish(ctx, msg))
}

func TestHub_SlowSubscriberMissesMessages(t *testing.T) {
	hub := eventbus.NewHub()
	ch, cancel := hub.Subscribe("doc", 1)
	defer cancel()

	for i := 0; i < 3; i++ {
		require.NoError(t, hub.Publish(context.Background(), eventbus.Message{DocumentID: "doc"}))
	}
	assert.Len(t, ch, 1)
}

func TestNewMessage_RendersMemberState(t *testing.T) {
	h := testutil.NewHarness(t)
	res := h.Create("main", testutil.DataJSON("x", cty.NumberIntVal(5)))
	require.True(t, res.ActionDone)
	h.Create("main", testutil.FormulaJSON("bad", "missing + 1"))
	h.Create("main", testutil.FunctionJSON("fn", []string{"v"}, "v"))
	res = h.SetData("main.x", cty.NumberIntVal(6))

	msg := eventbus.NewMessage("doc-1", res.Events)
	assert.Equal(t, "doc-1", msg.DocumentID)

	x := findEvent(t, msg, "main.x")
	assert.Equal(t, model.EventUpdated, x.Event)
	assert.Equal(t, model.StateNormal, x.State)
	assert.JSONEq(t, "6", string(x.Data))

	bad := eventbus.NewEvent(model.ChangeEvent{
		Event:    model.EventUpdated,
		MemberID: h.Member("main.bad").ID(),
		FullName: "main.bad",
		State:    model.StateError,
		Member:   h.Member("main.bad"),
	})
	assert.Equal(t, "Variable(s) not defined: missing", bad.Error)
	assert.Empty(t, bad.Data)

	fn := eventbus.NewEvent(model.ChangeEvent{
		Event:  model.EventCreated,
		State:  model.StateNormal,
		Member: h.Member("main.fn"),
	})
	assert.Empty(t, fn.Data, "functions have no JSON form")

	h.Create("main", testutil.FolderJSON("lib", testutil.FunctionJSON("g", []string{"v"}, "v")))
	lib := eventbus.NewEvent(model.ChangeEvent{
		Event:  model.EventUpdated,
		State:  model.StateNormal,
		Member: h.Member("main.lib"),
	})
	assert.Empty(t, lib.Data, "a folder holding a function has no JSON form either")

	gone := eventbus.NewEvent(model.ChangeEvent{Event: model.EventDeleted, MemberID: "id", Member: h.Member("main.x")})
	assert.Empty(t, gone.Data)
}

func findEvent(t *testing.T, msg eventbus.Message, fullName string) eventbus.Event {
	t.Helper()
	for _, ev := range msg.Events {
		if ev.FullName == fullName {
			return ev
		}
	}
	t.Fatalf("no event for %s in %+v", fullName, msg.Events)
	return eventbus.Event{}
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, eventbus.Message) error { return f.err }

func TestFanout_JoinsErrors(t *testing.T) {
	hub := eventbus.NewHub()
	ch, cancel := hub.Subscribe("doc", 1)
	defer cancel()
	boom := errors.New("boom")

	err := eventbus.Fanout{failingPublisher{boom}, hub}.Publish(context.Background(), eventbus.Message{DocumentID: "doc"})
	require.ErrorIs(t, err, boom)
	assert.Len(t, ch, 1, "later publishers still run")

	assert.NoError(t, eventbus.Fanout{hub}.Publish(context.Background(), eventbus.Message{DocumentID: "x"}))
}

func TestRedis_Channel(t *testing.T) {
	r := eventbus.NewRedis(nil, "")
	assert.Equal(t, "calcgrid:doc:budget", r.Channel("budget"))
	assert.Equal(t, "p:budget", eventbus.NewRedis(nil, "p:").Channel("budget"))
}

// TestRedis_RoundTrip needs a server: set CALCGRID_REDIS_URL, e.g.
// redis://localhost:6379/0.
func TestRedis_RoundTrip(t *testing.T) {
	url := os.Getenv("CALCGRID_REDIS_URL")
	if url == "" {
		t.Skip("CALCGRID_REDIS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r, err := eventbus.Dial(ctx, url, "calcgrid-test:")
	require.NoError(t, err)
	defer r.Close()

	ch, closeSub := r.Subscribe(ctx, "doc")
	defer closeSub()

	msg := eventbus.Message{DocumentID: "doc", Events: []eventbus.Event{{Event: model.EventCreated, MemberID: "m1", FullName: "main.x"}}}
	require.Eventually(t, func() bool {
		if err := r.Publish(ctx, msg); err != nil {
			return false
		}
		select {
		case got := <-ch:
			return assert.Equal(t, msg, got)
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 4*time.Second, 50*time.Millisecond)
}
