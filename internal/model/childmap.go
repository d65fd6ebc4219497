// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

// ChildMap is an immutable, insertion-ordered map of child name to member id.
// Changes return a new map, so a ChildMap can be shared between snapshots.
type ChildMap struct {
	names []string
	ids   map[string]string
}

var emptyChildMap = &ChildMap{ids: map[string]string{}}

// Get returns the id registered under name.
func (c *ChildMap) Get(name string) (string, bool) {
	if c == nil {
		return "", false
	}
	id, ok := c.ids[name]
	return id, ok
}

// Len returns the number of children.
func (c *ChildMap) Len() int {
	if c == nil {
		return 0
	}
	return len(c.names)
}

// Names returns the child names in insertion order.
func (c *ChildMap) Names() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// IDs returns the child ids in insertion order.
func (c *ChildMap) IDs() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.names))
	for i, name := range c.names {
		out[i] = c.ids[name]
	}
	return out
}

func (c *ChildMap) with(name, id string) *ChildMap {
	next := &ChildMap{
		names: make([]string, 0, c.Len()+1),
		ids:   make(map[string]string, c.Len()+1),
	}
	if c != nil {
		next.names = append(next.names, c.names...)
		for k, v := range c.ids {
			next.ids[k] = v
		}
	}
	if _, exists := next.ids[name]; !exists {
		next.names = append(next.names, name)
	}
	next.ids[name] = id
	return next
}

func (c *ChildMap) without(name string) *ChildMap {
	if _, ok := c.Get(name); !ok {
		return c
	}
	next := &ChildMap{
		names: make([]string, 0, c.Len()-1),
		ids:   make(map[string]string, c.Len()-1),
	}
	for _, n := range c.names {
		if n == name {
			continue
		}
		next.names = append(next.names, n)
		next.ids[n] = c.ids[n]
	}
	return next
}
