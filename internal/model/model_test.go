// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/calcgrid/internal/fieldobject"
	"github.com/vk/calcgrid/internal/model"
	"github.com/vk/calcgrid/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

type fieldWriter interface {
	SetField(name string, value any) error
}

func TestLockAll_IsIdempotent(t *testing.T) {
	h := testutil.NewHarness(t)
	res := h.Create("main", testutil.FormulaJSON("x", "1+2"))
	require.True(t, res.ActionDone, res.ErrorMsg)

	m := h.Model()
	require.True(t, m.IsLocked())
	assert.NotPanics(t, m.LockAll)
	assert.NotPanics(t, m.LockAll)

	for _, member := range m.Members() {
		assert.True(t, member.IsLocked(), "member %s", member.Name())
	}
	testutil.AssertNormal(t, h.Member("main.x"), cty.NumberIntVal(3))
}

func TestLockedMember_RejectsWrites(t *testing.T) {
	h := testutil.NewHarness(t)
	h.MustApply(&model.ActionData{
		Action:     model.ActionCreateMember,
		ParentID:   h.Member("main").ID(),
		CreateData: testutil.DataJSON("x", cty.NumberIntVal(1)),
	})
	x := h.Member("main.x")

	w, ok := x.(fieldWriter)
	require.True(t, ok)
	err := w.SetField("data", cty.NumberIntVal(2))
	var mutErr *fieldobject.IllegalMutationError
	require.True(t, errors.As(err, &mutErr))
	assert.Equal(t, x.ID(), mutErr.ID)

	assert.Panics(t, func() { h.Model().GetMutableMember(x.ID()) })
	testutil.AssertNormal(t, x, cty.NumberIntVal(1))
}

func TestGetMutableMember_CopyOnWrite(t *testing.T) {
	h := testutil.NewHarness(t)
	h.Create("main", testutil.DataJSON("x", cty.NumberIntVal(1)))
	confirmed := h.Model()
	original := h.Member("main.x")

	next := confirmed.GetMutableModel(model.NewRunContextLink(h))
	require.NotSame(t, confirmed, next)
	assert.Equal(t, confirmed.ID(), next.ID())

	mutable := next.GetMutableMember(original.ID())
	require.NotNil(t, mutable)
	assert.NotSame(t, original, mutable)
	assert.Equal(t, original.ID(), mutable.ID())
	assert.Same(t, mutable, next.GetMutableMember(original.ID()), "one copy per action")

	mutable.SetData(next, cty.NumberIntVal(42))
	testutil.AssertNormal(t, next.LookupMemberByID(original.ID()), cty.NumberIntVal(42))
	testutil.AssertNormal(t, confirmed.LookupMemberByID(original.ID()), cty.NumberIntVal(1))
	assert.Same(t, original, confirmed.LookupMemberByPath("main.x"))

	assert.Nil(t, next.GetMutableMember("no-such-id"))
	assert.Panics(t, func() { next.GetMutableMember(next.ID()) })
}

func TestGetMutableModel_OpenModelIsReused(t *testing.T) {
	h := testutil.NewHarness(t)
	link := model.NewRunContextLink(h)
	next := h.Model().GetMutableModel(link)

	assert.Same(t, next, next.GetMutableModel(link))
	assert.Panics(t, func() { next.GetMutableModel(model.NewRunContextLink(h)) })
}

func TestChanges_CreatedUpdatedDeletedTransient(t *testing.T) {
	h := testutil.NewHarness(t)
	h.Create("main", testutil.DataJSON("kept", cty.NumberIntVal(1)))
	h.Create("main", testutil.DataJSON("gone", cty.NumberIntVal(2)))
	keptID := h.Member("main.kept").ID()
	gone := h.Member("main.gone")

	next := h.Model().GetMutableModel(model.NewRunContextLink(h))

	fresh := model.NewDataMember("fresh", "fresh-id")
	next.RegisterMember(fresh)
	transient := model.NewDataMember("tmp", "tmp-id")
	next.RegisterMember(transient)
	next.UnregisterMember(transient)
	next.GetMutableMember(keptID)
	next.UnregisterMember(gone)

	events := next.Changes()
	require.Len(t, events, 3)
	assert.Equal(t, model.EventCreated, events[0].Event)
	assert.Equal(t, "fresh-id", events[0].MemberID)
	assert.Equal(t, model.EventUpdated, events[1].Event)
	assert.Equal(t, keptID, events[1].MemberID)
	assert.Equal(t, "main.kept", events[1].FullName)
	assert.Equal(t, model.EventDeleted, events[2].Event)
	assert.Equal(t, gone.ID(), events[2].MemberID)
	assert.Nil(t, testutil.FindEvent(events, "tmp-id"))
}

func TestImpactsList_NoSelfEdgesNoDuplicates(t *testing.T) {
	h := testutil.NewHarness(t)
	next := h.Model().GetMutableModel(model.NewRunContextLink(h))

	assert.False(t, next.AddToImpactsList("a", "a"))
	assert.True(t, next.AddToImpactsList("b", "a"))
	assert.False(t, next.AddToImpactsList("b", "a"))
	assert.True(t, next.AddToImpactsList("c", "a"))
	assert.Equal(t, []string{"b", "c"}, next.ImpactsList("a"))

	list := next.ImpactsList("a")
	list[0] = "mutated"
	assert.Equal(t, []string{"b", "c"}, next.ImpactsList("a"), "callers get a copy")

	next.RemoveFromImpactsList("b", "a")
	next.RemoveFromImpactsList("c", "a")
	assert.Empty(t, next.ImpactsList("a"))
	assert.Empty(t, h.Model().ImpactsList("a"), "the confirmed model is untouched")
}

func TestImpactsList_FollowsCode(t *testing.T) {
	h := testutil.NewHarness(t)
	h.Create("main", testutil.DataJSON("a", cty.NumberIntVal(1)))
	h.Create("main", testutil.FormulaJSON("b", "a + a * a"))
	h.Create("main", testutil.FormulaJSON("c", "a + b"))
	a, b, c := h.Member("main.a"), h.Member("main.b"), h.Member("main.c")

	impacts := h.Model().ImpactsList(a.ID())
	assert.Contains(t, impacts, b.ID())
	assert.Contains(t, impacts, c.ID())
	assert.Len(t, impacts, 3, "b, c and the folder main")

	assert.ElementsMatch(t, []string{a.ID()}, b.(model.Dependent).DependsOn())
	assert.ElementsMatch(t, []string{a.ID(), b.ID()}, c.(model.Dependent).DependsOn())
	assert.NotContains(t, h.Model().ImpactsList(c.ID()), c.ID())
}

func TestScope_NearestNameWins(t *testing.T) {
	h := testutil.NewHarness(t)
	h.Create("main", testutil.DataJSON("x", cty.NumberIntVal(100)))
	h.Create("main", testutil.DataJSON("z", cty.NumberIntVal(7)))
	h.Create("main", testutil.FolderJSON("ns",
		testutil.DataJSON("x", cty.NumberIntVal(1)),
		testutil.FormulaJSON("near", "x + 1"),
		testutil.FormulaJSON("outer", "z * 2"),
	))
	h.Create("main", testutil.FormulaJSON("qualified", "ns.x + x"))

	testutil.AssertNormal(t, h.Member("main.ns.near"), cty.NumberIntVal(2))
	testutil.AssertNormal(t, h.Member("main.ns.outer"), cty.NumberIntVal(14))
	testutil.AssertNormal(t, h.Member("main.qualified"), cty.NumberIntVal(101))
	assert.Equal(t, "main.ns.near", h.Member("main.ns.near").FullName(h.Model()))
}

func TestScope_GlobalsAreWhitelisted(t *testing.T) {
	h := testutil.NewHarness(t)
	h.Globals.RegisterValue("tax_rate", cty.NumberFloatVal(0.5))
	h.Create("main", testutil.FormulaJSON("tax", "tax_rate * 10"))
	h.Create("main", testutil.FormulaJSON("env", "os_environ"))

	testutil.AssertNormal(t, h.Member("main.tax"), cty.NumberIntVal(5))
	testutil.AssertError(t, h.Member("main.env"), "Variable(s) not defined: os_environ")
}

func TestFolder_DataIsChildObject(t *testing.T) {
	h := testutil.NewHarness(t)
	h.Create("main", testutil.FolderJSON("ns",
		testutil.DataJSON("a", cty.NumberIntVal(1)),
		testutil.DataJSON("b", cty.StringVal("two")),
	))

	data := h.Member("main.ns").Data()
	require.True(t, data.Type().IsObjectType())
	assert.True(t, data.GetAttr("a").RawEquals(cty.NumberIntVal(1)))
	assert.True(t, data.GetAttr("b").RawEquals(cty.StringVal("two")))

	h.SetData("main.ns.a", cty.NumberIntVal(9))
	assert.True(t, h.Member("main.ns").Data().GetAttr("a").RawEquals(cty.NumberIntVal(9)))
}

func TestModelJSON_Constructors(t *testing.T) {
	empty := model.EmptyModelJSON()
	assert.Equal(t, model.SaveFileType, empty.FileType)
	assert.Equal(t, model.SaveFileVersion, empty.Version)
	assert.Equal(t, model.DefaultModelName, empty.Name)
	require.Equal(t, 1, empty.Children.Len())
	assert.Equal(t, model.TypeFolder, empty.Children.Get(model.RootFolderName).Type)

	wrapped := model.CreateModelJSONFromFolderJSON("Sheet", testutil.FolderJSON("data"))
	assert.Equal(t, "Sheet", wrapped.Name)
	assert.NotNil(t, wrapped.Children.Get("data"))
}

func TestChildrenJSON_KeepsOrder(t *testing.T) {
	raw := []byte(`{"zeta": {"name": "zeta", "type": "apogee.Folder"}, "alpha": {"name": "alpha", "type": "apogee.Folder"}, "mid": {"name": "mid", "type": "apogee.Folder"}}`)
	var children model.ChildrenJSON
	require.NoError(t, children.UnmarshalJSON(raw))

	var names []string
	for _, mj := range children.Members() {
		names = append(names, mj.Name)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names)

	out, err := children.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t,
		`{"zeta":{"name":"zeta","type":"apogee.Folder"},"alpha":{"name":"alpha","type":"apogee.Folder"},"mid":{"name":"mid","type":"apogee.Folder"}}`,
		string(out))
}
