package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vk/calcgrid/internal/action"
	"github.com/vk/calcgrid/internal/ctxlog"
	"github.com/vk/calcgrid/internal/globals"
	"github.com/vk/calcgrid/internal/model"
	"github.com/zclconf/go-cty/cty"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Harness owns a model lineage for tests. It plays the run context: actions
// posted for later are held until RunFuture.
type Harness struct {
	t       *testing.T
	ctx     context.Context
	Env     *model.Environment
	Globals *globals.Resolver
	Logs    *SafeBuffer

	mu     sync.Mutex
	model  *model.Model
	future []*model.ActionData
}

// NewHarness returns a harness holding an empty model with the root folder.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	logs := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	g := globals.Default()
	h := &Harness{
		t:       t,
		ctx:     ctxlog.WithLogger(context.Background(), logger),
		Env:     action.NewEnvironment(g),
		Globals: g,
		Logs:    logs,
	}

	m, res := action.NewEmptyModel(h.ctx, h.Env, model.NewRunContextLink(h))
	require.True(t, res.ActionDone, res.ErrorMsg)
	h.model = m

	t.Cleanup(func() {
		if os.Getenv("CALCGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})
	return h
}

// Context returns the context actions run with.
func (h *Harness) Context() context.Context { return h.ctx }

// ConfirmedModel implements model.RunContext.
func (h *Harness) ConfirmedModel() *model.Model {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.model
}

// FutureExecuteAction implements model.RunContext.
func (h *Harness) FutureExecuteAction(_ string, data *model.ActionData) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.future = append(h.future, data)
}

// IsActive implements model.RunContext.
func (h *Harness) IsActive() bool { return true }

// Model returns the confirmed model.
func (h *Harness) Model() *model.Model { return h.ConfirmedModel() }

// Apply runs an action on a successor of the confirmed model and confirms it
// when the action succeeds.
func (h *Harness) Apply(data *model.ActionData) *model.ActionResult {
	h.t.Helper()
	link := model.NewRunContextLink(h)
	next := h.ConfirmedModel().GetMutableModel(link)
	res := h.Env.Runner.Do(h.ctx, next, data)
	link.SetStateValid(res.ActionDone)
	if res.ActionDone {
		h.mu.Lock()
		h.model = next
		h.mu.Unlock()
	}
	return res
}

// MustApply is Apply that fails the test when the action is not done.
func (h *Harness) MustApply(data *model.ActionData) *model.ActionResult {
	h.t.Helper()
	res := h.Apply(data)
	require.True(h.t, res.ActionDone, "action %s failed: %s", data.Action, res.ErrorMsg)
	return res
}

// PendingFuture returns how many posted actions are waiting.
func (h *Harness) PendingFuture() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.future)
}

// WaitFuture blocks until at least n posted actions are waiting.
func (h *Harness) WaitFuture(n int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.PendingFuture() >= n },
		2*time.Second, 5*time.Millisecond, "expected %d posted actions", n)
}

// RunFuture applies the posted actions in order, including any they post in
// turn, and returns how many ran.
func (h *Harness) RunFuture() int {
	h.t.Helper()
	ran := 0
	for {
		h.mu.Lock()
		if len(h.future) == 0 {
			h.mu.Unlock()
			return ran
		}
		next := h.future[0]
		h.future = h.future[1:]
		h.mu.Unlock()

		h.Apply(next)
		ran++
	}
}

// Member returns the member at a dotted path of the confirmed model.
func (h *Harness) Member(path string) model.Member {
	h.t.Helper()
	member := h.Model().LookupMemberByPath(path)
	require.NotNil(h.t, member, "member %s not found", path)
	return member
}

// Create adds a member under the member at parentPath, or under the model
// when parentPath is empty.
func (h *Harness) Create(parentPath string, mj *model.MemberJSON) *model.ActionResult {
	h.t.Helper()
	data := &model.ActionData{Action: model.ActionCreateMember, CreateData: mj}
	if parentPath == "" {
		data.ModelIsParent = true
	} else {
		data.ParentID = h.Member(parentPath).ID()
	}
	return h.Apply(data)
}

// SetData sets plain data on the member at path.
func (h *Harness) SetData(path string, v cty.Value) *model.ActionResult {
	h.t.Helper()
	return h.Apply(&model.ActionData{
		Action:   model.ActionUpdateData,
		MemberID: h.Member(path).ID(),
		Data:     v,
	})
}

// SetCode sets the code of the member at path.
func (h *Harness) SetCode(path string, argList []string, body, supplemental string) *model.ActionResult {
	h.t.Helper()
	return h.Apply(&model.ActionData{
		Action:           model.ActionUpdateCode,
		MemberID:         h.Member(path).ID(),
		ArgList:          argList,
		FunctionBody:     body,
		SupplementalCode: supplemental,
	})
}

// Delete removes the member at path.
func (h *Harness) Delete(path string) *model.ActionResult {
	h.t.Helper()
	return h.Apply(&model.ActionData{
		Action:   model.ActionDeleteMember,
		MemberID: h.Member(path).ID(),
	})
}

// LogContains reports whether the captured log output contains s.
func (h *Harness) LogContains(s string) bool {
	return strings.Contains(h.Logs.String(), s)
}
