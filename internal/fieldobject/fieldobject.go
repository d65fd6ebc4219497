// Package fieldobject implements the copy-on-write record every stateful
// engine entity is built on.
//
// A FieldObject is a bag of named fields. While unlocked it may be written in
// place. Once locked it is frozen for good: it can then be shared between any
// number of model snapshots and read concurrently. Changing a locked record
// means making a copy with NewCopy, which shares the field values by reference
// and clones the field map on its first write so the original never observes
// the change.
package fieldobject

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// IllegalMutationError is returned when a locked record is written.
type IllegalMutationError struct {
	ID    string
	Kind  string
	Field string
}

func (e *IllegalMutationError) Error() string {
	return fmt.Sprintf("illegal mutation of locked %s %s: field %q", e.Kind, e.ID, e.Field)
}

// FieldObject is a versioned bag of named fields.
type FieldObject struct {
	id     string
	kind   string
	fields map[string]any
	// owned is false while fields is still shared with the instance this one
	// was copied from.
	owned  bool
	locked bool
}

// New creates an unlocked record of the given kind. An empty id gets a fresh
// uuid.
func New(kind, id string) *FieldObject {
	if id == "" {
		id = uuid.NewString()
	}
	return &FieldObject{
		id:     id,
		kind:   kind,
		fields: make(map[string]any),
		owned:  true,
	}
}

// NewCopy creates an unlocked copy of src with the same id. The field values
// are shared, not cloned. A locked source also shares its field map until
// the copy's first write; an unlocked source may still change in place, so
// its map is cloned up front.
func NewCopy(src *FieldObject) *FieldObject {
	cp := &FieldObject{
		id:     src.id,
		kind:   src.kind,
		fields: src.fields,
		owned:  false,
	}
	if !src.locked {
		cp.own()
	}
	return cp
}

// ID returns the stable identifier shared by every copy of this record.
func (o *FieldObject) ID() string { return o.id }

// Kind returns the record kind, e.g. "member" or "model".
func (o *FieldObject) Kind() string { return o.kind }

// GetField returns the value of a field, or nil when it is not set.
func (o *FieldObject) GetField(name string) any {
	return o.fields[name]
}

// HasField reports whether the field is set.
func (o *FieldObject) HasField(name string) bool {
	_, ok := o.fields[name]
	return ok
}

// FieldNames returns the names of the set fields in sorted order.
func (o *FieldObject) FieldNames() []string {
	names := make([]string, 0, len(o.fields))
	for name := range o.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetField writes a field. It fails on a locked record.
func (o *FieldObject) SetField(name string, value any) error {
	if o.locked {
		return &IllegalMutationError{ID: o.id, Kind: o.kind, Field: name}
	}
	o.own()
	o.fields[name] = value
	return nil
}

// MustSetField is SetField for callers that already hold an unlocked record.
// Writing a locked record is a contract violation and panics.
func (o *FieldObject) MustSetField(name string, value any) {
	if err := o.SetField(name, value); err != nil {
		panic(err)
	}
}

// ClearField removes a field. It fails on a locked record.
func (o *FieldObject) ClearField(name string) error {
	if o.locked {
		return &IllegalMutationError{ID: o.id, Kind: o.kind, Field: name}
	}
	if _, ok := o.fields[name]; !ok {
		return nil
	}
	o.own()
	delete(o.fields, name)
	return nil
}

// MustClearField is ClearField that panics on a locked record.
func (o *FieldObject) MustClearField(name string) {
	if err := o.ClearField(name); err != nil {
		panic(err)
	}
}

// Lock freezes the record. Locking twice is a no-op.
func (o *FieldObject) Lock() {
	o.locked = true
}

// IsLocked reports whether the record is frozen.
func (o *FieldObject) IsLocked() bool {
	return o.locked
}

func (o *FieldObject) own() {
	if o.owned {
		return
	}
	fields := make(map[string]any, len(o.fields)+1)
	for k, v := range o.fields {
		fields[k] = v
	}
	o.fields = fields
	o.owned = true
}
