package hclutil_test

import (
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/calcgrid/internal/hclutil"
)

func parseTraversal(t *testing.T, src string) hcl.Traversal {
	t.Helper()
	trav, diags := hclsyntax.ParseTraversalAbs([]byte(src), "test.hcl", hcl.Pos{Line: 1, Column: 1})
	require.False(t, diags.HasErrors(), diags.Error())
	return trav
}

func TestNamePath(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, hclutil.NamePath(parseTraversal(t, "a.b.c")))
	assert.Equal(t, []string{"a", "b"}, hclutil.NamePath(parseTraversal(t, "a.b[0].c")))
	assert.Equal(t, []string{"x"}, hclutil.NamePath(parseTraversal(t, `x["k"]`)))
}

func TestTraversalKey(t *testing.T) {
	assert.Equal(t, "a.b[0]", hclutil.TraversalKey(parseTraversal(t, "a.b[0]")))
}

func TestFindUniqueBlock(t *testing.T) {
	src := `
store {}
server {}
store {}
`
	file, diags := hclsyntax.ParseConfig([]byte(src), "test.hcl", hcl.Pos{Line: 1, Column: 1})
	require.False(t, diags.HasErrors())
	content, _, diags := file.Body.PartialContent(&hcl.BodySchema{
		Blocks: []hcl.BlockHeaderSchema{{Type: "store"}, {Type: "server"}},
	})
	require.False(t, diags.HasErrors())

	block, diags := hclutil.FindUniqueBlock(content.Blocks, "store")
	require.NotNil(t, block)
	require.True(t, diags.HasErrors())
	assert.Contains(t, hclutil.DiagMessage(hclutil.FirstError(diags)), `Duplicate "store" block`)

	block, diags = hclutil.FindUniqueBlock(content.Blocks, "server")
	require.NotNil(t, block)
	assert.False(t, diags.HasErrors())

	block, _ = hclutil.FindUniqueBlock(content.Blocks, "missing")
	assert.Nil(t, block)
}
