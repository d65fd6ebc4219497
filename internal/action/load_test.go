package action_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/calcgrid/internal/action"
	"github.com/vk/calcgrid/internal/globals"
	"github.com/vk/calcgrid/internal/model"
	"github.com/vk/calcgrid/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

const savedWorkspace = `{
	"fileType": "apogee model",
	"version": "1.0",
	"name": "Budget",
	"children": {
		"main": {
			"name": "main",
			"type": "apogee.Folder",
			"children": {
				"rate": {"name": "rate", "type": "apogee.DataMember", "fields": {"data": 3}},
				"label": {"name": "label", "type": "apogee.DataMember", "fields": {"data": {"title": "q1", "tags": ["a", "b"]}}},
				"total": {
					"name": "total",
					"type": "apogee.DataMember",
					"fields": {"argList": [], "functionBody": "scale(rate) + bonus", "supplementalCode": "bonus = 1"}
				},
				"scale": {
					"name": "scale",
					"type": "apogee.FunctionMember",
					"fields": {"argList": ["v"], "functionBody": "v * 10", "supplementalCode": ""}
				},
				"broken": {"name": "broken", "type": "apogee.DataMember", "fields": {"error": "bad input"}},
				"unknown": {"name": "unknown", "type": "apogee.DataMember", "fields": {"invalidValue": true}},
				"plugin": {
					"name": "plugin",
					"type": "acme.Chart",
					"fields": {"width": 300},
					"children": {"series": {"name": "series", "type": "apogee.DataMember", "fields": {"data": 1}}}
				},
				"calc": {
					"name": "calc",
					"type": "apogee.FolderFunction",
					"fields": {"argList": ["x"], "returnValue": "y"},
					"children": {
						"body": {
							"name": "body",
							"type": "apogee.Folder",
							"children": {
								"x": {"name": "x", "type": "apogee.DataMember", "fields": {"data": 0}},
								"y": {
									"name": "y",
									"type": "apogee.DataMember",
									"fields": {"argList": [], "functionBody": "x * x", "supplementalCode": ""}
								}
							}
						}
					}
				},
				"squared": {
					"name": "squared",
					"type": "apogee.DataMember",
					"fields": {"argList": [], "functionBody": "calc(4)", "supplementalCode": ""}
				}
			}
		}
	}
}`

func loadDocument(t *testing.T, raw string) (*model.Model, *model.ActionResult) {
	t.Helper()
	doc, err := model.ParseModelJSON([]byte(raw))
	require.NoError(t, err)

	h := testutil.NewHarness(t)
	env := action.NewEnvironment(globals.Default())
	return action.LoadModel(h.Context(), env, model.NewRunContextLink(h), doc)
}

func TestLoadModel_RoundTrip(t *testing.T) {
	m, res := loadDocument(t, savedWorkspace)
	require.True(t, res.ActionDone, res.ErrorMsg)
	assert.True(t, m.IsLocked())
	assert.Equal(t, "Budget", m.Name())

	testutil.AssertNormal(t, m.LookupMemberByPath("main.total"), cty.NumberIntVal(31))
	testutil.AssertNormal(t, m.LookupMemberByPath("main.squared"), cty.NumberIntVal(16))
	testutil.AssertError(t, m.LookupMemberByPath("main.broken"), "bad input")
	assert.Equal(t, model.StateInvalid, m.LookupMemberByPath("main.unknown").State())
	assert.Equal(t, model.TypeErrorMember, m.LookupMemberByPath("main.plugin").TypeName())

	saved, err := m.ToJSON()
	require.NoError(t, err)
	raw, err := json.Marshal(saved)
	require.NoError(t, err)
	assert.JSONEq(t, savedWorkspace, string(raw))

	// A second load of the saved form saves identically.
	again, res := loadDocument(t, string(raw))
	require.True(t, res.ActionDone, res.ErrorMsg)
	savedAgain, err := again.ToJSON()
	require.NoError(t, err)
	rawAgain, err := json.Marshal(savedAgain)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(rawAgain))
}

func TestLoadModel_KeepsChildOrder(t *testing.T) {
	m, res := loadDocument(t, savedWorkspace)
	require.True(t, res.ActionDone, res.ErrorMsg)

	main, ok := m.LookupMemberByPath("main").(model.Parent)
	require.True(t, ok)
	assert.Equal(t,
		[]string{"rate", "label", "total", "scale", "broken", "unknown", "plugin", "calc", "squared"},
		main.ChildMap().Names())

	saved, err := m.ToJSON()
	require.NoError(t, err)
	folder := saved.Children.Get("main")
	require.NotNil(t, folder)
	var names []string
	for _, child := range folder.Children.Members() {
		names = append(names, child.Name)
	}
	assert.Equal(t, main.ChildMap().Names(), names)
}

func TestLoadModel_PendingPlaceholderIsData(t *testing.T) {
	doc := model.CreateModelJSONFromFolderJSON("Pending", testutil.FolderJSON("main",
		testutil.DataJSON("later", cty.StringVal("<unknown pending value>")),
	))
	h := testutil.NewHarness(t)
	m, res := action.LoadModel(h.Context(), h.Env, model.NewRunContextLink(h), doc)
	require.True(t, res.ActionDone, res.ErrorMsg)
	testutil.AssertNormal(t, m.LookupMemberByPath("main.later"), cty.StringVal("<unknown pending value>"))
}

func TestLoadModel_BadDocument(t *testing.T) {
	_, err := model.ParseModelJSON([]byte(`{"fileType": "spreadsheet", "version": "1.0"}`))
	assert.ErrorContains(t, err, "bad file type")

	_, err = model.ParseModelJSON([]byte(`{`))
	assert.Error(t, err)
}

func TestCreateMember_RootNameIsTaken(t *testing.T) {
	h := testutil.NewHarness(t)

	res := h.Create("", testutil.FolderJSON(model.RootFolderName))
	assert.False(t, res.ActionDone)
	assert.Equal(t, "There is already an object with the given name.", res.ErrorMsg)
}
