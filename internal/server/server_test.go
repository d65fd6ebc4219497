package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/calcgrid/internal/action"
	"github.com/vk/calcgrid/internal/eventbus"
	"github.com/vk/calcgrid/internal/globals"
	"github.com/vk/calcgrid/internal/inmemorystore"
	"github.com/vk/calcgrid/internal/model"
	"github.com/vk/calcgrid/internal/server"
	"github.com/vk/calcgrid/internal/session"
	"github.com/zclconf/go-cty/cty"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := eventbus.NewHub()
	mgr := session.NewManager(ctx, action.NewEnvironment(globals.Default()), inmemorystore.New(), hub)
	ts := httptest.NewServer(server.New(ctx, mgr, hub).Handler())
	t.Cleanup(func() {
		cancel()
		ts.Close()
		mgr.Close(context.Background())
	})
	return ts
}

func do(t *testing.T, method, url, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func getMember(t *testing.T, ts *httptest.Server, doc, path string) server.MemberResponse {
	t.Helper()
	status, raw := do(t, http.MethodGet, ts.URL+"/documents/"+doc+"/members/"+path, "")
	require.Equal(t, http.StatusOK, status, string(raw))
	var out server.MemberResponse
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func postAction(t *testing.T, ts *httptest.Server, doc string, data *model.ActionData) server.ActionResponse {
	t.Helper()
	body, err := json.Marshal(data)
	require.NoError(t, err)
	status, raw := do(t, http.MethodPost, ts.URL+"/documents/"+doc+"/actions", string(body))
	require.Equal(t, http.StatusOK, status, string(raw))
	var out server.ActionResponse
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func createMember(name string, fields string) *model.MemberJSON {
	var mj model.MemberJSON
	if err := json.Unmarshal([]byte(`{"name":"`+name+`","type":"apogee.DataMember","fields":`+fields+`}`), &mj); err != nil {
		panic(err)
	}
	return &mj
}

func findEvent(events []eventbus.Event, fullName string) *eventbus.Event {
	for i := range events {
		if events[i].FullName == fullName {
			return &events[i]
		}
	}
	return nil
}

func TestServer_DocumentLifecycle(t *testing.T) {
	ts := newTestServer(t)

	status, raw := do(t, http.MethodGet, ts.URL+"/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK\n", string(raw))

	status, raw = do(t, http.MethodPost, ts.URL+"/documents/budget", "")
	require.Equal(t, http.StatusCreated, status, string(raw))
	var created model.ModelJSON
	require.NoError(t, json.Unmarshal(raw, &created))
	assert.Equal(t, model.DefaultModelName, created.Name)

	status, _ = do(t, http.MethodPost, ts.URL+"/documents/budget", "")
	assert.Equal(t, http.StatusConflict, status)

	mainID := getMember(t, ts, "budget", "main").ID
	res := postAction(t, ts, "budget", &model.ActionData{
		Action:     model.ActionCreateMember,
		ParentID:   mainID,
		CreateData: createMember("x", `{"data": 2}`),
	})
	require.True(t, res.ActionDone, res.ErrorMsg)
	ev := findEvent(res.Events, "main.x")
	require.NotNil(t, ev)
	assert.Equal(t, model.EventCreated, ev.Event)
	assert.JSONEq(t, `2`, string(ev.Data))

	res = postAction(t, ts, "budget", &model.ActionData{
		Action:     model.ActionCreateMember,
		ParentID:   mainID,
		CreateData: createMember("y", `{"argList": [], "functionBody": "x * 3", "supplementalCode": ""}`),
	})
	require.True(t, res.ActionDone, res.ErrorMsg)

	y := getMember(t, ts, "budget", "main.y")
	assert.Equal(t, model.StateNormal, y.State)
	assert.Equal(t, model.TypeDataMember, y.Type)
	assert.JSONEq(t, `6`, string(y.Data))

	x := getMember(t, ts, "budget", "main.x")
	res = postAction(t, ts, "budget", &model.ActionData{
		Action:   model.ActionUpdateData,
		MemberID: x.ID,
		Data:     cty.NumberIntVal(5),
	})
	require.True(t, res.ActionDone, res.ErrorMsg)
	ev = findEvent(res.Events, "main.y")
	require.NotNil(t, ev)
	assert.Equal(t, model.EventUpdated, ev.Event)
	assert.JSONEq(t, `15`, string(ev.Data))

	status, raw = do(t, http.MethodPost, ts.URL+"/documents/budget/save", "")
	require.Equal(t, http.StatusOK, status, string(raw))
	var info server.InfoResponse
	require.NoError(t, json.Unmarshal(raw, &info))
	assert.Equal(t, "budget", info.ID)
	assert.NotEmpty(t, info.Revision)

	status, raw = do(t, http.MethodGet, ts.URL+"/documents", "")
	require.Equal(t, http.StatusOK, status)
	var infos []server.InfoResponse
	require.NoError(t, json.Unmarshal(raw, &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, info.Revision, infos[0].Revision)

	status, raw = do(t, http.MethodGet, ts.URL+"/documents/budget", "")
	require.Equal(t, http.StatusOK, status)
	snapshot, err := model.ParseModelJSON(raw)
	require.NoError(t, err)
	assert.NotNil(t, snapshot.Children.Get(model.RootFolderName))

	status, _ = do(t, http.MethodDelete, ts.URL+"/documents/budget", "")
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = do(t, http.MethodGet, ts.URL+"/documents/budget", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_RejectedActionIsReported(t *testing.T) {
	ts := newTestServer(t)
	status, _ := do(t, http.MethodPost, ts.URL+"/documents/d", "")
	require.Equal(t, http.StatusCreated, status)

	res := postAction(t, ts, "d", &model.ActionData{
		Action:   model.ActionUpdateData,
		MemberID: "no-such-member",
		Data:     cty.NumberIntVal(1),
	})
	assert.False(t, res.ActionDone)
	assert.NotEmpty(t, res.ErrorMsg)
	assert.Empty(t, res.Events)
}

func TestServer_BadRequests(t *testing.T) {
	ts := newTestServer(t)

	status, _ := do(t, http.MethodGet, ts.URL+"/documents/missing", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, http.MethodPost, ts.URL+"/documents/bad", `{"fileType": "spreadsheet"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, http.MethodPost, ts.URL+"/documents/d", "")
	require.Equal(t, http.StatusCreated, status)

	status, raw := do(t, http.MethodPost, ts.URL+"/documents/d/actions", `{`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(raw), "invalid action")

	status, _ = do(t, http.MethodGet, ts.URL+"/documents/d/members/main.nothing", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, http.MethodPost, ts.URL+"/documents/missing/save", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_CreateFromDocument(t *testing.T) {
	ts := newTestServer(t)
	doc := `{"fileType": "apogee model", "version": "1.0", "name": "Imported", "children": {
		"main": {"name": "main", "type": "apogee.Folder", "children": {
			"a": {"name": "a", "type": "apogee.DataMember", "fields": {"data": "hi"}}
		}}}}`
	status, raw := do(t, http.MethodPost, ts.URL+"/documents/imported", doc)
	require.Equal(t, http.StatusCreated, status, string(raw))

	a := getMember(t, ts, "imported", "main.a")
	assert.JSONEq(t, `"hi"`, string(a.Data))
	assert.Equal(t, "main.a", a.FullName)
}

func TestServer_EventStream(t *testing.T) {
	ts := newTestServer(t)
	status, _ := do(t, http.MethodPost, ts.URL+"/documents/live", "")
	require.Equal(t, http.StatusCreated, status)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/documents/live/events"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	mainID := getMember(t, ts, "live", "main").ID
	res := postAction(t, ts, "live", &model.ActionData{
		Action:     model.ActionCreateMember,
		ParentID:   mainID,
		CreateData: createMember("n", `{"data": {"k": [1, 2]}}`),
	})
	require.True(t, res.ActionDone, res.ErrorMsg)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg eventbus.Message
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, "live", msg.DocumentID)
	ev := findEvent(msg.Events, "main.n")
	require.NotNil(t, ev)
	assert.Equal(t, model.EventCreated, ev.Event)
	assert.JSONEq(t, `{"k": [1, 2]}`, string(ev.Data))

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/documents/none/events", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_StartAndShutdown(t *testing.T) {
	hub := eventbus.NewHub()
	mgr := session.NewManager(context.Background(), action.NewEnvironment(globals.Default()), inmemorystore.New(), hub)
	defer mgr.Close(context.Background())

	srv := server.New(context.Background(), mgr, hub)
	require.NoError(t, srv.Shutdown(context.Background()), "shutdown before start is a no-op")

	srv.Start("127.0.0.1:0")
	require.NoError(t, srv.Shutdown(context.Background()))
}
