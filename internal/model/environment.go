// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// MemberFactory builds a member from its saved form. The member is not yet
// registered with the model or attached to a parent.
type MemberFactory func(m *Model, data *MemberJSON) (Member, error)

// TypeConfig describes a member type.
type TypeConfig struct {
	Type   string
	Create MemberFactory

	// DefaultFields are loaded in place of the saved fields when NoSave is
	// fixed to true.
	DefaultFields map[string]json.RawMessage
	// FieldsLocked and NoSave fix those settings for every member of the
	// type. Nil leaves the setting to the document.
	FieldsLocked *bool
	NoSave       *bool
}

// TypeRegistry maps member type names to their factories.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]TypeConfig
}

// NewTypeRegistry returns an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{types: make(map[string]TypeConfig)}
}

// DefaultTypes returns a registry holding the built-in member types.
func DefaultTypes() *TypeRegistry {
	r := NewTypeRegistry()
	r.Register(TypeConfig{Type: TypeDataMember, Create: createDataMember})
	r.Register(TypeConfig{Type: TypeFunctionMember, Create: createFunctionMember})
	r.Register(TypeConfig{Type: TypeFolder, Create: createFolder})
	r.Register(TypeConfig{Type: TypeFolderFunction, Create: createFolderFunction})
	return r
}

// Register adds a member type. Registering a name twice is a programming
// error and panics.
func (r *TypeRegistry) Register(cfg TypeConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[cfg.Type]; exists {
		panic(fmt.Sprintf("member type with name '%s' already registered", cfg.Type))
	}
	slog.Debug("Registering member type.", "type", cfg.Type)
	r.types[cfg.Type] = cfg
}

// Lookup returns the config for a type name.
func (r *TypeRegistry) Lookup(typeName string) (TypeConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.types[typeName]
	return cfg, ok
}

// Names returns the registered type names in sorted order.
func (r *TypeRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GlobalResolver is the whitelist of names visible to member code beyond the
// model itself. Lookups of unknown names report false.
type GlobalResolver interface {
	ModelGlobal(name string) (cty.Value, bool)
	ModelFunction(name string) (function.Function, bool)
}

// ActionRunner executes an action against a model. It is implemented by the
// action pipeline and lets the model run messenger actions inline.
type ActionRunner interface {
	Do(ctx context.Context, m *Model, data *ActionData) *ActionResult
}

// Environment is what every model of a lineage shares.
type Environment struct {
	Types   *TypeRegistry
	Globals GlobalResolver
	Runner  ActionRunner
}

type noGlobals struct{}

func (noGlobals) ModelGlobal(string) (cty.Value, bool)             { return cty.NilVal, false }
func (noGlobals) ModelFunction(string) (function.Function, bool) { return function.Function{}, false }

func (e *Environment) globals() GlobalResolver {
	if e == nil || e.Globals == nil {
		return noGlobals{}
	}
	return e.Globals
}

func (e *Environment) types() *TypeRegistry {
	if e == nil || e.Types == nil {
		return defaultTypes()
	}
	return e.Types
}

var (
	defaultTypesOnce sync.Once
	defaultTypesReg  *TypeRegistry
)

func defaultTypes() *TypeRegistry {
	defaultTypesOnce.Do(func() { defaultTypesReg = DefaultTypes() })
	return defaultTypesReg
}
