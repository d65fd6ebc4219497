package hcl

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/calcgrid/internal/config"
	"github.com/vk/calcgrid/internal/ctxlog"
	"github.com/vk/calcgrid/internal/hclutil"
	"github.com/vk/calcgrid/internal/schema"
	"github.com/zclconf/go-cty/cty/convert"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

var _ config.Loader = (*Loader)(nil)

// Load reads the file at path over config.Default. An empty path returns the
// defaults unchanged.
func (l *Loader) Load(ctx context.Context, path string) (*config.Model, error) {
	if path == "" {
		ctxlog.FromContext(ctx).Debug("No config file given, using defaults.")
		return config.Default(), nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return l.Parse(ctx, src, path)
}

// Parse decodes configuration source. filename is used in diagnostics only.
func (l *Loader) Parse(ctx context.Context, src []byte, filename string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL config loader started.", "file", filename)

	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	content, diags := file.Body.Content(schema.RootBlocks)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	m := config.Default()

	var logging schema.Logging
	if err := decodeUnique(content.Blocks, "logging", &logging); err != nil {
		return nil, err
	}
	setString(&m.Logging.Level, logging.Level)
	setString(&m.Logging.Format, logging.Format)

	var store schema.Store
	if err := decodeUnique(content.Blocks, "store", &store); err != nil {
		return nil, err
	}
	setString(&m.Store.Driver, store.Driver)
	setString(&m.Store.Path, store.Path)

	var server schema.Server
	if err := decodeUnique(content.Blocks, "server", &server); err != nil {
		return nil, err
	}
	setString(&m.Server.Address, server.Address)
	if server.HealthcheckPort != 0 {
		m.Server.HealthcheckPort = server.HealthcheckPort
	}

	block, diags := hclutil.FindUniqueBlock(content.Blocks, "redis")
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid config: %w", diags)
	}
	if block != nil {
		var redis schema.Redis
		if diags := gohcl.DecodeBody(block.Body, nil, &redis); diags.HasErrors() {
			return nil, fmt.Errorf("invalid redis block: %w", diags)
		}
		m.Redis = &config.Redis{URL: redis.URL, ChannelPrefix: redis.ChannelPrefix}
	}

	if err := l.translateGlobals(ctx, content.Blocks, m); err != nil {
		return nil, err
	}

	logger.Debug("HCL config loading complete.", "globals", len(m.Globals), "store", m.Store.Driver)
	return m, nil
}

// translateGlobals collects the untyped `globals` attributes and the typed
// `global "name"` blocks. A name may be declared once.
func (l *Loader) translateGlobals(ctx context.Context, blocks hcl.Blocks, m *config.Model) error {
	block, diags := hclutil.FindUniqueBlock(blocks, "globals")
	if diags.HasErrors() {
		return fmt.Errorf("invalid config: %w", diags)
	}
	if block != nil {
		attrs, diags := block.Body.JustAttributes()
		if diags.HasErrors() {
			return fmt.Errorf("invalid globals block: %w", diags)
		}
		names := make([]string, 0, len(attrs))
		for name := range attrs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			val, diags := attrs[name].Expr.Value(nil)
			if diags.HasErrors() {
				return fmt.Errorf("global %q: %w", name, diags)
			}
			m.Globals[name] = &config.Global{Name: name, Type: val.Type(), Value: val}
		}
	}

	for _, block := range blocks {
		if block.Type != "global" {
			continue
		}
		name := block.Labels[0]
		if _, dup := m.Globals[name]; dup {
			return fmt.Errorf("global %q is declared more than once", name)
		}
		var g schema.Global
		if diags := gohcl.DecodeBody(block.Body, nil, &g); diags.HasErrors() {
			return fmt.Errorf("global %q: %w", name, diags)
		}
		typ, err := globalType(ctx, g.Type)
		if err != nil {
			return fmt.Errorf("global %q: %w", name, err)
		}
		val, diags := g.Value.Value(nil)
		if diags.HasErrors() {
			return fmt.Errorf("global %q: %w", name, diags)
		}
		val, err = convert.Convert(val, typ)
		if err != nil {
			return fmt.Errorf("global %q: value does not match type %s: %w", name, typ.FriendlyName(), err)
		}
		m.Globals[name] = &config.Global{Name: name, Type: typ, Value: val, Description: g.Description}
	}
	return nil
}

func decodeUnique(blocks hcl.Blocks, name string, target any) error {
	block, diags := hclutil.FindUniqueBlock(blocks, name)
	if diags.HasErrors() {
		return fmt.Errorf("invalid config: %w", diags)
	}
	if block == nil {
		return nil
	}
	if diags := gohcl.DecodeBody(block.Body, nil, target); diags.HasErrors() {
		return fmt.Errorf("invalid %s block: %w", name, diags)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
