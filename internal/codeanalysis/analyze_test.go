package codeanalysis_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/calcgrid/internal/codeanalysis"
)

// source wraps a body the way the compiler does.
func source(supplemental, body string) []byte {
	return []byte(supplemental + "\nm_main = (\n" + body + "\n)\n")
}

func analyze(t *testing.T, supplemental, body string, params ...string) *codeanalysis.Result {
	t.Helper()
	res := codeanalysis.Analyze(source(supplemental, body), params, "m_main")
	require.True(t, res.Success, res.ErrorMsg)
	return res
}

func paths(ni *codeanalysis.NameInfo) [][]string {
	out := make([][]string, 0, len(ni.Uses))
	for _, u := range ni.Uses {
		out = append(out, u.Path)
	}
	return out
}

func TestAnalyze_DottedPaths(t *testing.T) {
	res := analyze(t, "", "a.b.c + x")

	require.Contains(t, res.VarInfo, "a")
	assert.Equal(t, [][]string{{"a", "b", "c"}}, paths(res.VarInfo["a"]))
	assert.False(t, res.VarInfo["a"].IsLocal)
	assert.Contains(t, res.VarInfo, "x")
}

func TestAnalyze_IndexTruncatesPath(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"numeric index", "a.b[0].c", []string{"a", "b"}},
		{"string index", `a["k"].c`, []string{"a"}},
		{"variable index", "a.b[i].c", []string{"a", "b"}},
		{"splat", "a.list[*].id", []string{"a", "list"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := analyze(t, "", tc.body)
			require.Contains(t, res.VarInfo, "a")
			assert.Equal(t, [][]string{tc.want}, paths(res.VarInfo["a"]))
		})
	}

	res := analyze(t, "", "a.b[i].c")
	require.Contains(t, res.VarInfo, "i", "index key is visited for its own names")
}

func TestAnalyze_ParamsAndLocals(t *testing.T) {
	res := analyze(t, "scale = 2\noffset = scale + base", "v * scale + offset + other", "v")

	assert.True(t, res.VarInfo["v"].IsLocal)
	assert.True(t, res.VarInfo["scale"].IsLocal)
	assert.True(t, res.VarInfo["offset"].IsLocal)
	assert.False(t, res.VarInfo["base"].IsLocal)
	assert.False(t, res.VarInfo["other"].IsLocal)

	require.Len(t, res.Program.Locals, 2)
	assert.Equal(t, "scale", res.Program.Locals[0].Name)
	assert.Equal(t, "offset", res.Program.Locals[1].Name)
	assert.Equal(t, []string{"v"}, res.Program.Params)
}

func TestAnalyze_UseBeforeDeclarationIsFree(t *testing.T) {
	res := analyze(t, "first = later + 1\nlater = 2\nself = self + 1", "first")

	later := res.VarInfo["later"]
	require.NotNil(t, later)
	assert.False(t, later.IsLocal)

	self := res.VarInfo["self"]
	require.NotNil(t, self)
	assert.False(t, self.IsLocal, "self reference resolves outside")
}

func TestAnalyze_MixedUsesAreNotLocal(t *testing.T) {
	// n is a for symbol inside the for and free outside it.
	res := analyze(t, "", "[for n in list : n * 2][0] + n")

	n := res.VarInfo["n"]
	require.Len(t, n.Uses, 2)
	assert.True(t, n.Uses[0].IsLocal)
	assert.False(t, n.Uses[1].IsLocal)
	assert.False(t, n.IsLocal)
	assert.False(t, res.VarInfo["list"].IsLocal)
}

func TestAnalyze_ForKeyValueScope(t *testing.T) {
	res := analyze(t, "", "{for k, v in src : k => v if v != skip}")
	assert.True(t, res.VarInfo["k"].IsLocal)
	assert.True(t, res.VarInfo["v"].IsLocal)
	assert.False(t, res.VarInfo["skip"].IsLocal)
}

func TestAnalyze_FunctionCalls(t *testing.T) {
	res := analyze(t, "", `upper(name) + ns::helper(1)`)

	up := res.VarInfo["upper"]
	require.NotNil(t, up)
	assert.True(t, up.Uses[0].IsCall)
	assert.Equal(t, [][]string{{"ns", "helper"}}, paths(res.VarInfo["ns"]))
	assert.Contains(t, res.VarInfo, "name")
}

func TestAnalyze_ObjectKeysAreLiteral(t *testing.T) {
	res := analyze(t, "", `{ label = value, (dyn) = 1 }`)
	assert.NotContains(t, res.VarInfo, "label")
	assert.Contains(t, res.VarInfo, "value")
	assert.Contains(t, res.VarInfo, "dyn")
}

func TestAnalyze_TemplateInterpolation(t *testing.T) {
	res := analyze(t, "", `"Hello ${user.name}!"`)
	assert.Equal(t, [][]string{{"user", "name"}}, paths(res.VarInfo["user"]))
}

func TestAnalyze_Failures(t *testing.T) {
	t.Run("syntax error carries position", func(t *testing.T) {
		res := codeanalysis.Analyze(source("", "1 +"), nil, "m_main")
		require.False(t, res.Success)
		assert.Contains(t, res.ErrorMsg, "Error parsing user code:")
		require.NotNil(t, res.ErrorInfo)
		assert.Equal(t, "parseError", res.ErrorInfo.Type)
		require.NotEmpty(t, res.ErrorInfo.Errors)
		assert.Positive(t, res.ErrorInfo.Errors[0].Line)
	})

	t.Run("blocks rejected", func(t *testing.T) {
		res := codeanalysis.Analyze([]byte("thing {}\nm_main = 1\n"), nil, "m_main")
		require.False(t, res.Success)
		assert.Contains(t, res.ErrorMsg, "Blocks are not allowed in member code")
	})

	t.Run("dynamic templates rejected", func(t *testing.T) {
		res := codeanalysis.Analyze(source("", `templatestring(t, {})`), nil, "m_main")
		require.False(t, res.Success)
		assert.Contains(t, res.ErrorMsg, "Constructing templates from strings is not allowed!")
	})

	t.Run("missing main", func(t *testing.T) {
		res := codeanalysis.Analyze([]byte("a = 1\n"), nil, "m_main")
		require.False(t, res.Success)
		assert.Contains(t, res.ErrorMsg, "Missing member body")
	})
}
