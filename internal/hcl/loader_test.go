package hcl_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/calcgrid/internal/config"
	"github.com/vk/calcgrid/internal/hcl"
	"github.com/zclconf/go-cty/cty"
)

const fullConfig = `
logging {
  level  = "debug"
  format = "json"
}

store {
  driver = "sqlite"
  path   = "data/calcgrid.db"
}

server {
  address          = "127.0.0.1:9000"
  healthcheck_port = 9001
}

redis {
  url            = "redis://localhost:6379/0"
  channel_prefix = "grid:"
}

globals {
  tax_rate = 0.2
  company  = "Acme"
}

global "regions" {
  type        = list(string)
  value       = ["eu", "us"]
  description = "sales regions"
}

global "threshold" {
  type  = number
  value = "15"
}
`

func TestLoader_Parse_FullConfig(t *testing.T) {
	m, err := hcl.NewLoader().Parse(context.Background(), []byte(fullConfig), "calcgrid.hcl")
	require.NoError(t, err)

	assert.Equal(t, config.Logging{Level: "debug", Format: "json"}, m.Logging)
	assert.Equal(t, config.Store{Driver: config.StoreSQLite, Path: "data/calcgrid.db"}, m.Store)
	assert.Equal(t, config.Server{Address: "127.0.0.1:9000", HealthcheckPort: 9001}, m.Server)
	require.NotNil(t, m.Redis)
	assert.Equal(t, "redis://localhost:6379/0", m.Redis.URL)
	assert.Equal(t, "grid:", m.Redis.ChannelPrefix)

	assert.Equal(t, []string{"company", "regions", "tax_rate", "threshold"}, m.GlobalNames())
	assert.True(t, m.Globals["tax_rate"].Value.RawEquals(cty.NumberFloatVal(0.2)))
	assert.True(t, m.Globals["company"].Value.RawEquals(cty.StringVal("Acme")))

	regions := m.Globals["regions"]
	assert.Equal(t, cty.List(cty.String), regions.Type)
	assert.True(t, regions.Value.RawEquals(cty.ListVal([]cty.Value{cty.StringVal("eu"), cty.StringVal("us")})))
	assert.Equal(t, "sales regions", regions.Description)

	threshold := m.Globals["threshold"]
	assert.Equal(t, cty.Number, threshold.Type)
	assert.True(t, threshold.Value.RawEquals(cty.NumberIntVal(15)), "converted from a string")
}

func TestLoader_Parse_DefaultsFillGaps(t *testing.T) {
	m, err := hcl.NewLoader().Parse(context.Background(), []byte(`logging { level = "warn" }`), "partial.hcl")
	require.NoError(t, err)

	def := config.Default()
	assert.Equal(t, "warn", m.Logging.Level)
	assert.Equal(t, def.Logging.Format, m.Logging.Format)
	assert.Equal(t, def.Store, m.Store)
	assert.Equal(t, def.Server, m.Server)
	assert.Nil(t, m.Redis)
	assert.Empty(t, m.Globals)
}

func TestLoader_Parse_ObjectGlobal(t *testing.T) {
	m, err := hcl.NewLoader().Parse(context.Background(), []byte(`
global "owner" {
  type  = object({ name = string, age = number })
  value = { name = "ada", age = "36" }
}
`), "object.hcl")
	require.NoError(t, err)
	g := m.Globals["owner"]
	require.NotNil(t, g)
	assert.Equal(t, cty.Object(map[string]cty.Type{"name": cty.String, "age": cty.Number}), g.Type)
	assert.True(t, g.Value.GetAttr("age").RawEquals(cty.NumberIntVal(36)))
}

func TestLoader_Parse_UntypedGlobalBlock(t *testing.T) {
	m, err := hcl.NewLoader().Parse(context.Background(), []byte(`
global "anything" {
  value = { a = 1 }
}
`), "untyped.hcl")
	require.NoError(t, err)
	g := m.Globals["anything"]
	require.NotNil(t, g)
	assert.Equal(t, cty.DynamicPseudoType, g.Type)
	assert.True(t, g.Value.Type().IsObjectType())
}

func TestLoader_Parse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"syntax", `logging {`, "failed to parse HCL file"},
		{"unknown block", `cluster {}`, "failed to decode HCL file"},
		{"duplicate block", "store {}\nstore {}", `Duplicate "store" block`},
		{"unknown attribute", `server { port = 1 }`, "invalid server block"},
		{"redis needs url", `redis {}`, "invalid redis block"},
		{"variables in globals", `globals { x = y }`, `global "x"`},
		{"duplicate global", "globals { x = 1 }\nglobal \"x\" { value = 2 }", `global "x" is declared more than once`},
		{"type mismatch", `global "n" {
  type  = number
  value = "abc"
}`, "value does not match type number"},
		{"bad type", `global "n" {
  type  = float
  value = 1
}`, `The keyword "float" is not a valid type specification`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := hcl.NewLoader().Parse(context.Background(), []byte(tc.src), "bad.hcl")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoader_Load(t *testing.T) {
	loader := hcl.NewLoader()

	m, err := loader.Load(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), m)

	path := filepath.Join(t.TempDir(), "calcgrid.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`store { driver = "memory" }`), 0o644))
	m, err = loader.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, config.StoreMemory, m.Store.Driver)

	_, err = loader.Load(context.Background(), filepath.Join(t.TempDir(), "missing.hcl"))
	assert.ErrorContains(t, err, "failed to read config file")
}
