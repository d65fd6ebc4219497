// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MemberJSON is the saved form of a member.
type MemberJSON struct {
	Name               string                     `json:"name"`
	Type               string                     `json:"type"`
	Fields             map[string]json.RawMessage `json:"fields,omitempty"`
	Children           *ChildrenJSON              `json:"children,omitempty"`
	SpecialCaseIDValue string                     `json:"specialCaseIdValue,omitempty"`
}

// Clone returns a deep copy.
func (mj *MemberJSON) Clone() *MemberJSON {
	if mj == nil {
		return nil
	}
	cp := &MemberJSON{
		Name:               mj.Name,
		Type:               mj.Type,
		Fields:             copyFields(mj.Fields),
		SpecialCaseIDValue: mj.SpecialCaseIDValue,
	}
	if mj.Children != nil {
		cp.Children = &ChildrenJSON{}
		for _, child := range mj.Children.Members() {
			cp.Children.Add(child.Clone())
		}
	}
	return cp
}

// ChildrenJSON is an insertion-ordered map of child name to member. The
// order is kept through encoding and decoding.
type ChildrenJSON struct {
	names   []string
	members map[string]*MemberJSON
}

// NewChildrenJSON builds an ordered child map.
func NewChildrenJSON(members ...*MemberJSON) *ChildrenJSON {
	c := &ChildrenJSON{}
	for _, mj := range members {
		c.Add(mj)
	}
	return c
}

// Add appends a child, replacing one of the same name in place.
func (c *ChildrenJSON) Add(mj *MemberJSON) {
	if c.members == nil {
		c.members = make(map[string]*MemberJSON)
	}
	if _, exists := c.members[mj.Name]; !exists {
		c.names = append(c.names, mj.Name)
	}
	c.members[mj.Name] = mj
}

// Get returns a child by name.
func (c *ChildrenJSON) Get(name string) *MemberJSON {
	if c == nil {
		return nil
	}
	return c.members[name]
}

// Len returns the number of children.
func (c *ChildrenJSON) Len() int {
	if c == nil {
		return 0
	}
	return len(c.names)
}

// Members returns the children in order.
func (c *ChildrenJSON) Members() []*MemberJSON {
	if c == nil {
		return nil
	}
	out := make([]*MemberJSON, len(c.names))
	for i, name := range c.names {
		out[i] = c.members[name]
	}
	return out
}

// MarshalJSON writes the children as an object in insertion order.
func (c *ChildrenJSON) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range c.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(c.members[name])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a children object keeping the key order.
func (c *ChildrenJSON) UnmarshalJSON(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("children: expected object")
	}
	*c = ChildrenJSON{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("children: expected key")
		}
		var mj MemberJSON
		if err := dec.Decode(&mj); err != nil {
			return fmt.Errorf("children: %s: %w", key, err)
		}
		if mj.Name == "" {
			mj.Name = key
		}
		c.names = append(c.names, key)
		if c.members == nil {
			c.members = make(map[string]*MemberJSON)
		}
		c.members[key] = &mj
	}
	_, err = dec.Token()
	return err
}

// ModelJSON is the saved form of a model.
type ModelJSON struct {
	FileType string        `json:"fileType"`
	Version  string        `json:"version"`
	Name     string        `json:"name"`
	Children *ChildrenJSON `json:"children"`
}

// EmptyModelJSON is a new document holding only the root folder.
func EmptyModelJSON() *ModelJSON {
	return &ModelJSON{
		FileType: SaveFileType,
		Version:  SaveFileVersion,
		Name:     DefaultModelName,
		Children: NewChildrenJSON(&MemberJSON{Name: RootFolderName, Type: TypeFolder}),
	}
}

// CreateModelJSONFromFolderJSON wraps a single folder into a document.
func CreateModelJSONFromFolderJSON(name string, folder *MemberJSON) *ModelJSON {
	return &ModelJSON{
		FileType: SaveFileType,
		Version:  SaveFileVersion,
		Name:     name,
		Children: NewChildrenJSON(folder),
	}
}

// ParseModelJSON decodes a document.
func ParseModelJSON(raw []byte) (*ModelJSON, error) {
	var mj ModelJSON
	if err := json.Unmarshal(raw, &mj); err != nil {
		return nil, fmt.Errorf("parse model document: %w", err)
	}
	if mj.FileType != SaveFileType {
		return nil, fmt.Errorf("parse model document: bad file type %q", mj.FileType)
	}
	return &mj, nil
}

// ToJSON renders the model as a document.
func (m *Model) ToJSON() (*ModelJSON, error) {
	out := &ModelJSON{
		FileType: SaveFileType,
		Version:  SaveFileVersion,
		Name:     m.Name(),
		Children: &ChildrenJSON{},
	}
	for _, child := range m.children() {
		cj, err := child.ToJSON(m)
		if err != nil {
			return nil, err
		}
		out.Children.Add(cj)
	}
	return out, nil
}

func childrenJSON(m *Model, p Parent) (*ChildrenJSON, error) {
	out := &ChildrenJSON{}
	for _, id := range p.ChildMap().IDs() {
		child := m.LookupMemberByID(id)
		if child == nil {
			continue
		}
		cj, err := child.ToJSON(m)
		if err != nil {
			return nil, err
		}
		out.Add(cj)
	}
	return out, nil
}

func readField(fields map[string]json.RawMessage, name string, target any) error {
	raw, ok := fields[name]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("field %s: %w", name, err)
	}
	return nil
}

func writeField(fields map[string]json.RawMessage, name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("field %s: %w", name, err)
	}
	fields[name] = raw
	return nil
}

func copyFields(fields map[string]json.RawMessage) map[string]json.RawMessage {
	if fields == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
