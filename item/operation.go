package item

import (
	"fmt"

	"github.com/jacentio/arbor/internal/codec"
)

// Kind selects what an Operation does.
type Kind uint8

const (
	KindList Kind = iota + 1
	KindFetch
	KindAppend
	KindModify
	KindRemove
	KindRefetch
)

var kindNames = map[Kind]string{
	KindList:    "list",
	KindFetch:   "fetch",
	KindAppend:  "append",
	KindModify:  "modify",
	KindRemove:  "remove",
	KindRefetch: "refetch",
}

// String returns the wire name of k.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(k))
}

// ParseKind parses a wire name.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown operation kind %q", name)
}

// MarshalText encodes k as its wire name.
func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("cannot encode operation kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a wire name.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalCBOR encodes k as a CBOR text string.
func (k Kind) MarshalCBOR() ([]byte, error) {
	text, err := k.MarshalText()
	if err != nil {
		return nil, err
	}
	return codec.Marshal(string(text))
}

// UnmarshalCBOR decodes a CBOR text string into k.
func (k *Kind) UnmarshalCBOR(data []byte) error {
	var name string
	if err := codec.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("operation kind: %w", err)
	}
	return k.UnmarshalText([]byte(name))
}

// Operation is the unit of both requests and responses.
type Operation struct {
	Kind  Kind   `cbor:"kind"`
	Items []Item `cbor:"items"`
}

// NewOperation returns an Operation of the given kind carrying items.
func NewOperation(kind Kind, items ...Item) Operation {
	return Operation{Kind: kind, Items: items}
}

// Add appends it to the operation. An item whose id is already present
// is merged into the existing entry instead; items with different ids
// are never combined.
func (op *Operation) Add(it Item) {
	for i := range op.Items {
		if op.Items[i].ID == it.ID {
			// Same id, so Merge cannot fail.
			_ = op.Items[i].Merge(it)
			return
		}
	}
	op.Items = append(op.Items, it.Clone())
}
