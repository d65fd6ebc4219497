// Package schema holds the gohcl decoding targets of the calcgrid
// configuration file.
package schema

import (
	"github.com/hashicorp/hcl/v2"
)

// Logging is the `logging` block.
type Logging struct {
	Level  string `hcl:"level,optional"`
	Format string `hcl:"format,optional"`
}

// Store is the `store` block. Driver is "sqlite" or "memory".
type Store struct {
	Driver string `hcl:"driver,optional"`
	Path   string `hcl:"path,optional"`
}

// Server is the `server` block.
type Server struct {
	Address         string `hcl:"address,optional"`
	HealthcheckPort int    `hcl:"healthcheck_port,optional"`
}

// Redis is the `redis` block.
type Redis struct {
	URL           string `hcl:"url"`
	ChannelPrefix string `hcl:"channel_prefix,optional"`
}

// Global is a `global "name"` block declaring one typed value.
type Global struct {
	Name        string         `hcl:"name,label"`
	Type        hcl.Expression `hcl:"type,optional"`
	Value       hcl.Expression `hcl:"value"`
	Description string         `hcl:"description,optional"`
}

// RootBlocks lists the top-level blocks of a configuration file.
var RootBlocks = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "logging"},
		{Type: "store"},
		{Type: "server"},
		{Type: "redis"},
		// Every attribute of `globals` becomes a value visible to member code.
		{Type: "globals"},
		{Type: "global", LabelNames: []string{"name"}},
	},
}
