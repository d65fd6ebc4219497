package config

import (
	"sort"

	"github.com/zclconf/go-cty/cty"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Model is the unified, format-agnostic representation of the process
// configuration.
type Model struct {
	Logging Logging
	Store   Store
	Server  Server
	Redis   *Redis
	Globals map[string]*Global
}

// Logging selects the log level and format.
type Logging struct {
	Level  string
	Format string
}

// Store selects where document snapshots are kept.
type Store struct {
	Driver string
	Path   string
}

// Server configures the HTTP API.
type Server struct {
	Address         string
	HealthcheckPort int
}

// Redis enables publishing change events to Redis.
type Redis struct {
	URL           string
	ChannelPrefix string
}

// Global is a value added to the whitelist member code may read.
type Global struct {
	Name        string
	Type        cty.Type
	Value       cty.Value
	Description string
}

// Default returns the configuration used when no file is given.
func Default() *Model {
	return &Model{
		Logging: Logging{Level: "info", Format: "text"},
		Store:   Store{Driver: StoreMemory},
		Server:  Server{Address: ":8080"},
		Globals: make(map[string]*Global),
	}
}

// GlobalNames returns the names of the configured globals in order.
func (m *Model) GlobalNames() []string {
	names := make([]string, 0, len(m.Globals))
	for name := range m.Globals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValueRegistrar accepts global values.
type ValueRegistrar interface {
	RegisterValue(name string, v cty.Value)
}

// RegisterGlobals adds every configured global to r.
func (m *Model) RegisterGlobals(r ValueRegistrar) {
	for _, name := range m.GlobalNames() {
		r.RegisterValue(name, m.Globals[name].Value)
	}
}
