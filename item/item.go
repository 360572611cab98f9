package item

import (
	"errors"
	"fmt"
	"maps"
)

var (
	// ErrInvalidArgument is returned when two items with different ids are merged.
	ErrInvalidArgument = errors.New("arbor: invalid argument")

	// ErrUnsupportedValue is returned when a field value is outside the scalar set.
	ErrUnsupportedValue = errors.New("arbor: unsupported field value")
)

// Item is a versioned record in a tenant's item tree.
type Item struct {
	// ID is unique within a tenant store.
	ID string `cbor:"id"`

	// ParentID is the id of the parent item. Empty means root.
	ParentID string `cbor:"parent_id,omitempty"`

	// Seq is the store-assigned version. Zero only for items never persisted.
	Seq uint64 `cbor:"seq"`

	// Fields holds the record payload.
	Fields map[string]Value `cbor:"fields,omitempty"`
}

// New returns an Item with the given identity and no fields.
func New(id, parentID string, seq uint64) Item {
	return Item{ID: id, ParentID: parentID, Seq: seq}
}

// Field returns the named field, or the null Value when it is not set.
func (it Item) Field(name string) Value {
	return it.Fields[name]
}

// SetField sets or replaces the named field.
func (it *Item) SetField(name string, v Value) {
	if it.Fields == nil {
		it.Fields = make(map[string]Value)
	}
	it.Fields[name] = v
}

// Merge overlays other's fields onto it, field by field, and takes
// other's seq. Both items must have the same id.
func (it *Item) Merge(other Item) error {
	if it.ID != other.ID {
		return fmt.Errorf("%w: cannot merge item %q into item %q", ErrInvalidArgument, other.ID, it.ID)
	}
	for name, v := range other.Fields {
		it.SetField(name, v)
	}
	it.Seq = other.Seq
	return nil
}

// Clone returns a copy of it that shares no field map with the original.
func (it Item) Clone() Item {
	it.Fields = maps.Clone(it.Fields)
	return it
}

// Short projects it onto its identity and version.
func (it Item) Short() ShortItem {
	return ShortItem{ID: it.ID, ParentID: it.ParentID, Seq: it.Seq}
}

// ShortItem is an Item without its field payload, used when enumerating
// children.
type ShortItem struct {
	ID       string
	ParentID string
	Seq      uint64
}

// Item returns s as an Item with no fields.
func (s ShortItem) Item() Item {
	return Item{ID: s.ID, ParentID: s.ParentID, Seq: s.Seq}
}
